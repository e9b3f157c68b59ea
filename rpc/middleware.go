package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	telemetry "stylustx/observability/otel"
)

const requestIDHeader = "X-Request-ID"

type contextKey string

const (
	contextKeyRequestID contextKey = "stylustx.request_id"
	contextKeySubject   contextKey = "stylustx.subject"
)

// RequestIDFromContext returns the id assigned to the in-flight request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

// requestID propagates a caller-supplied X-Request-ID or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// --- Rate limiting ---

// RateLimit bounds submissions per client.
type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiter struct {
	limit    RateLimit
	mu       sync.Mutex
	visitors map[string]*rateEntry
	clockNow func() time.Time
}

const visitorTTL = 5 * time.Minute

func newRateLimiter(limit RateLimit) *rateLimiter {
	return &rateLimiter{
		limit:    limit,
		visitors: make(map[string]*rateEntry),
		clockNow: time.Now,
	}
}

func (r *rateLimiter) allow(id string) bool {
	now := r.clockNow()
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, entry := range r.visitors {
		if now.Sub(entry.lastSeen) > visitorTTL {
			delete(r.visitors, key)
		}
	}
	entry, ok := r.visitors[id]
	if !ok {
		perSecond := r.limit.RequestsPerMinute / 60.0
		if perSecond <= 0 {
			perSecond = 1
		}
		burst := r.limit.Burst
		if burst <= 0 {
			burst = 1
		}
		entry = &rateEntry{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
		r.visitors[id] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (r *rateLimiter) middleware(onThrottle func(*http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !r.allow(clientID(req)) {
				if onThrottle != nil {
					onThrottle(req)
				}
				writeError(w, http.StatusTooManyRequests, ErrorBody{Message: "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func clientID(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if parsed := net.ParseIP(strings.TrimSpace(first)); parsed != nil {
			return parsed.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// --- Observability ---

type observability struct {
	logger    *slog.Logger
	tracer    trace.Tracer
	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

func newObservability(reg prometheus.Registerer, logger *slog.Logger) *observability {
	o := &observability{
		logger: logger,
		tracer: telemetry.Tracer(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stylustx",
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Total relay HTTP requests segmented by route, method and status.",
		}, []string{"route", "method", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stylustx",
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for relay HTTP handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stylustx",
			Subsystem: "rpc",
			Name:      "throttles_total",
			Help:      "Requests rejected by the per-client rate limiter.",
		}, []string{"route"}),
	}
	reg.MustRegister(o.requests, o.durations, o.throttles)
	return o
}

func (o *observability) middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, span := o.tracer.Start(r.Context(), route, trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("request.id", RequestIDFromContext(r.Context())),
			))
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(ctx))
			span.SetAttributes(attribute.Int("http.status_code", recorder.status))
			span.End()

			duration := time.Since(start)
			o.requests.WithLabelValues(route, r.Method, http.StatusText(recorder.status)).Inc()
			o.durations.WithLabelValues(route, r.Method).Observe(duration.Seconds())
			o.logger.Debug("rpc request",
				slog.String("route", route),
				slog.String("method", r.Method),
				slog.Int("status", recorder.status),
				slog.String("request_id", RequestIDFromContext(r.Context())),
				slog.Duration("duration", duration))
		})
	}
}

func (o *observability) recordThrottle(route string) func(*http.Request) {
	return func(*http.Request) {
		o.throttles.WithLabelValues(route).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// --- Admin authentication ---

// AdminAuth configures bearer-token verification for owner-only routes.
type AdminAuth struct {
	HMACSecret string
	Issuer     string
	Audience   string
	ClockSkew  time.Duration
}

const adminScope = "relay:admin"

type authenticator struct {
	cfg    AdminAuth
	secret []byte
	logger *slog.Logger
}

func newAuthenticator(cfg AdminAuth, logger *slog.Logger) *authenticator {
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &authenticator{cfg: cfg, secret: []byte(strings.TrimSpace(cfg.HMACSecret)), logger: logger}
}

func (a *authenticator) enabled() bool {
	return a != nil && len(a.secret) > 0
}

func (a *authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled() {
			writeError(w, http.StatusNotFound, ErrorBody{Message: "admin interface disabled"})
			return
		}
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, ErrorBody{Message: "missing bearer token"})
			return
		}
		claims, err := a.parseToken(tokenString)
		if err != nil {
			a.logger.Warn("admin token rejected", slog.Any("error", err))
			writeError(w, http.StatusUnauthorized, ErrorBody{Message: "invalid token"})
			return
		}
		if !hasScope(claims, adminScope) {
			writeError(w, http.StatusForbidden, ErrorBody{Message: "insufficient scope"})
			return
		}
		subject, _ := claims.GetSubject()
		ctx := context.WithValue(r.Context(), contextKeySubject, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}

func hasScope(claims jwt.MapClaims, required string) bool {
	switch v := claims["scope"].(type) {
	case string:
		for _, scope := range strings.Fields(v) {
			if scope == required {
				return true
			}
		}
	case []interface{}:
		for _, entry := range v {
			if s, ok := entry.(string); ok && s == required {
				return true
			}
		}
	}
	return false
}

func extractBearer(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
