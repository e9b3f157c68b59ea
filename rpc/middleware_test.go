package rpc

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestRequestIDPropagation(t *testing.T) {
	const fixedID = "5a0c1b0e-7f6d-4c55-9a57-3c1b4d3b8e21"
	var seen string
	handler := requestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, fixedID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, fixedID, seen)
	require.Equal(t, fixedID, rec.Header().Get(requestIDHeader))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	require.NotEqual(t, fixedID, seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "not a uuid")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.NotEqual(t, "not a uuid", seen)
}

func TestRateLimiterPerClient(t *testing.T) {
	limiter := newRateLimiter(RateLimit{RequestsPerMinute: 1, Burst: 2})
	require.True(t, limiter.allow("a"))
	require.True(t, limiter.allow("a"))
	require.False(t, limiter.allow("a"))
	require.True(t, limiter.allow("b"))
}

func TestExtractBearer(t *testing.T) {
	require.Equal(t, "tok", extractBearer("Bearer tok"))
	require.Equal(t, "tok", extractBearer("  bearer   tok "))
	require.Empty(t, extractBearer("Basic tok"))
	require.Empty(t, extractBearer("tok"))
}

func TestAuthenticatorRejectsBadTokens(t *testing.T) {
	auth := newAuthenticator(AdminAuth{HMACSecret: testSecret, Issuer: "ops"}, nil)
	sign := func(claims jwt.MapClaims, method jwt.SigningMethod, secret string) string {
		signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return signed
	}
	future := time.Now().Add(time.Hour).Unix()

	_, err := auth.parseToken(sign(jwt.MapClaims{"iss": "ops", "exp": future}, jwt.SigningMethodHS256, testSecret))
	require.NoError(t, err)

	_, err = auth.parseToken(sign(jwt.MapClaims{"iss": "ops"}, jwt.SigningMethodHS256, testSecret))
	require.Error(t, err, "expiry is mandatory")

	_, err = auth.parseToken(sign(jwt.MapClaims{"iss": "other", "exp": future}, jwt.SigningMethodHS256, testSecret))
	require.Error(t, err)

	_, err = auth.parseToken(sign(jwt.MapClaims{"iss": "ops", "exp": future}, jwt.SigningMethodHS256, "wrong"))
	require.Error(t, err)

	_, err = auth.parseToken(sign(jwt.MapClaims{"iss": "ops", "exp": time.Now().Add(-time.Hour).Unix()}, jwt.SigningMethodHS256, testSecret))
	require.Error(t, err)
}

func TestHasScope(t *testing.T) {
	require.True(t, hasScope(jwt.MapClaims{"scope": "relay:read relay:admin"}, adminScope))
	require.True(t, hasScope(jwt.MapClaims{"scope": []interface{}{"relay:admin"}}, adminScope))
	require.False(t, hasScope(jwt.MapClaims{"scope": "relay:read"}, adminScope))
	require.False(t, hasScope(jwt.MapClaims{}, adminScope))
}
