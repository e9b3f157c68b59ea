package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"stylustx/core/events"
	"stylustx/native/paymaster"
)

const (
	maxRequestBytes   = 1 << 20 // 1 MiB
	defaultEventLimit = 100
	maxEventLimit     = 1000
	shutdownTimeout   = 10 * time.Second
)

// Submitter runs top-level transactions against the execution host. View
// runs read-only work serialized with those transactions.
type Submitter interface {
	Submit(from, to common.Address, value *uint256.Int, data []byte) ([]byte, error)
	View(fn func() error) error
}

// Config captures the dependencies required to construct the server.
type Config struct {
	// Relay is the address the paymaster program is deployed at.
	Relay common.Address
	// Relayer is the account that submits (and pays for) execute calls.
	Relayer common.Address
	// Operator is the caller used for admin submissions; it must be the
	// relay owner for them to succeed.
	Operator        common.Address
	ChainID         uint64
	DefaultDeadline time.Duration
	RateLimit       RateLimit
	Admin           AdminAuth
	Registry        *prometheus.Registry
	Logger          *slog.Logger
}

// Server exposes the relay over HTTP.
type Server struct {
	engine    *paymaster.Engine
	submitter Submitter
	events    *events.Log
	cfg       Config
	logger    *slog.Logger

	obs     *observability
	limiter *rateLimiter
	auth    *authenticator
	router  http.Handler
}

// NewServer wires the HTTP surface over engine. Execute and admin calls go
// through submitter so they are serialized with every other submission.
func NewServer(engine *paymaster.Engine, submitter Submitter, eventLog *events.Log, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	if cfg.DefaultDeadline <= 0 {
		cfg.DefaultDeadline = 5 * time.Minute
	}
	logger := cfg.Logger.With(slog.String("component", "rpc"))
	s := &Server{
		engine:    engine,
		submitter: submitter,
		events:    eventLog,
		cfg:       cfg,
		logger:    logger,
		obs:       newObservability(cfg.Registry, logger),
		limiter:   newRateLimiter(cfg.RateLimit),
		auth:      newAuthenticator(cfg.Admin, logger),
	}
	s.router = otelhttp.NewHandler(s.buildRouter(), "stylustx.rpc")
	return s
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.With(s.obs.middleware("healthz")).Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.cfg.Registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(api chi.Router) {
		api.With(s.obs.middleware("metatx.hash")).Post("/metatx/hash", s.handleHash)
		api.With(s.obs.middleware("metatx.verify")).Post("/metatx/verify", s.handleVerify)
		api.With(
			s.obs.middleware("metatx.execute"),
			s.limiter.middleware(s.obs.recordThrottle("metatx.execute")),
		).Post("/metatx/execute", s.handleExecute)
		api.With(s.obs.middleware("nonce")).Get("/nonce/{address}", s.handleNonce)
		api.With(s.obs.middleware("config")).Get("/config", s.handleConfig)
		api.With(s.obs.middleware("events")).Get("/events", s.handleEvents)

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(s.obs.middleware("admin"))
			admin.Use(s.auth.middleware)
			admin.Post("/pause", s.handlePause)
			admin.Post("/unpause", s.handleUnpause)
			admin.Post("/target", s.handleSetTarget)
			admin.Post("/owner", s.handleTransferOwnership)
		})
	})
	return r
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("relay rpc listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
