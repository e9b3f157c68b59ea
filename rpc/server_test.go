package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"stylustx/core/events"
	"stylustx/core/host"
	"stylustx/core/state"
	"stylustx/crypto"
	"stylustx/native/paymaster"
	"stylustx/storage"
)

var (
	relayAddr  = common.HexToAddress("0x0000000000000000000000000000000000005354")
	targetAddr = common.HexToAddress("0x0000000000000000000000000000000000005355")
	ownerAddr  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	relayerEOA = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

const testSecret = "test-admin-secret"

type testRelay struct {
	server *httptest.Server
	client *Client
	engine *paymaster.Engine
	log    *events.Log
}

func newTestRelay(t *testing.T, mutate func(cfg *Config)) *testRelay {
	t.Helper()
	h := host.New()
	eventLog := events.NewLog()
	engine := paymaster.Deploy(h, relayAddr, state.NewManager(storage.NewMemDB()), paymaster.WithEmitter(eventLog))
	h.Deploy(targetAddr, func(call host.Call) ([]byte, error) {
		if strings.HasPrefix(string(call.Input), "fail") {
			return nil, errors.New("target rejected payload")
		}
		return append([]byte("echo:"), call.Input...), nil
	})
	require.NoError(t, engine.Initialize(ownerAddr, targetAddr))

	cfg := Config{
		Relay:           relayAddr,
		Relayer:         relayerEOA,
		Operator:        ownerAddr,
		ChainID:         421614,
		DefaultDeadline: time.Minute,
		RateLimit:       RateLimit{RequestsPerMinute: 600, Burst: 100},
		Registry:        prometheus.NewRegistry(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv := httptest.NewServer(NewServer(engine, h, eventLog, cfg).Handler())
	t.Cleanup(srv.Close)
	return &testRelay{server: srv, client: NewClient(srv.URL), engine: engine, log: eventLog}
}

func signedRequest(t *testing.T, key *crypto.PrivateKey, nonce uint64, data []byte) *paymaster.MetaTx {
	t.Helper()
	tx := &paymaster.MetaTx{
		From:     key.Address(),
		To:       targetAddr,
		Value:    uint256.NewInt(0),
		Data:     data,
		Nonce:    uint256.NewInt(nonce),
		Deadline: crypto.DefaultDeadline(time.Now(), time.Minute),
	}
	require.NoError(t, crypto.SignMetaTx(key, tx))
	return tx
}

func newSigner(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return key
}

func TestHealthz(t *testing.T) {
	relay := newTestRelay(t, nil)
	resp, err := http.Get(relay.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestExecuteAndReplay(t *testing.T) {
	relay := newTestRelay(t, nil)
	ctx := context.Background()
	key := newSigner(t)

	tx := signedRequest(t, key, 0, []byte("hello"))
	resp, err := relay.client.Execute(ctx, tx)
	require.NoError(t, err)
	require.Equal(t, []byte("echo:hello"), []byte(resp.Result))
	require.Equal(t, "0", resp.Nonce)
	require.Equal(t, "1", resp.NextNonce)

	nonce, err := relay.client.Nonce(ctx, key.Address())
	require.NoError(t, err)
	require.Equal(t, uint64(1), nonce.Uint64())

	_, err = relay.client.Execute(ctx, tx)
	require.ErrorIs(t, err, paymaster.ErrInvalidNonce)
	var pmErr *paymaster.Error
	require.ErrorAs(t, err, &pmErr)
	require.Equal(t, uint64(1), pmErr.ExpectedNonce.Uint64())
	require.Equal(t, uint64(0), pmErr.ProvidedNonce.Uint64())
}

func TestExecuteFailedCallReportsCallFailed(t *testing.T) {
	relay := newTestRelay(t, nil)
	ctx := context.Background()
	key := newSigner(t)

	_, err := relay.client.Execute(ctx, signedRequest(t, key, 0, []byte("fail please")))
	require.ErrorIs(t, err, paymaster.ErrCallFailed)

	nonce, err := relay.client.Nonce(ctx, key.Address())
	require.NoError(t, err)
	require.Equal(t, uint64(1), nonce.Uint64())
}

func TestHashAndVerify(t *testing.T) {
	relay := newTestRelay(t, nil)
	ctx := context.Background()
	key := newSigner(t)
	tx := signedRequest(t, key, 0, []byte{0x01})

	hash, err := relay.client.MessageHash(ctx, tx)
	require.NoError(t, err)
	require.Equal(t, tx.Hash(), hash)

	verdict, err := relay.client.Verify(ctx, tx)
	require.NoError(t, err)
	require.Equal(t, "ready", verdict.Status)
	require.NotNil(t, verdict.Signer)
	require.Equal(t, key.Address(), *verdict.Signer)

	forged := signedRequest(t, newSigner(t), 0, []byte{0x01})
	forged.From = key.Address()
	verdict, err = relay.client.Verify(ctx, forged)
	require.NoError(t, err)
	require.Equal(t, "rejected", verdict.Status)
	require.Equal(t, "InvalidSignature", verdict.Error.Kind)
	decoded, err := paymaster.DecodeError(verdict.Error.RevertData)
	require.NoError(t, err)
	require.Equal(t, key.Address(), decoded.ExpectedSigner)

	nonce, err := relay.engine.Nonce(key.Address())
	require.NoError(t, err)
	require.True(t, nonce.IsZero())
}

func TestConcurrentVerifyAndExecute(t *testing.T) {
	relay := newTestRelay(t, nil)
	ctx := context.Background()

	const workers, rounds = 4, 10
	executes := make([][]*paymaster.MetaTx, workers)
	verifies := make([]*paymaster.MetaTx, workers)
	for i := 0; i < workers; i++ {
		key := newSigner(t)
		for n := uint64(0); n < rounds; n++ {
			executes[i] = append(executes[i], signedRequest(t, key, n, []byte{byte(n)}))
		}
		verifies[i] = signedRequest(t, newSigner(t), 0, nil)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2*workers*rounds)
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func(batch []*paymaster.MetaTx) {
			defer wg.Done()
			for _, tx := range batch {
				resp, err := relay.client.Execute(ctx, tx)
				if err == nil && resp.NextNonce != strconv.FormatUint(tx.Nonce.Uint64()+1, 10) {
					err = fmt.Errorf("nonce %s reported next %s", resp.Nonce, resp.NextNonce)
				}
				errs <- err
			}
		}(executes[i])
		go func(tx *paymaster.MetaTx) {
			defer wg.Done()
			for n := 0; n < rounds; n++ {
				verdict, err := relay.client.Verify(ctx, tx)
				if err == nil && verdict.Status != "ready" {
					err = fmt.Errorf("verify status %q", verdict.Status)
				}
				errs <- err
			}
		}(verifies[i])
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	for i := 0; i < workers; i++ {
		nonce, err := relay.engine.Nonce(executes[i][0].From)
		require.NoError(t, err)
		require.Equal(t, uint64(rounds), nonce.Uint64())
	}
}

func TestSignAndExecute(t *testing.T) {
	relay := newTestRelay(t, nil)
	ctx := context.Background()
	key := newSigner(t)

	for i := 0; i < 3; i++ {
		resp, tx, err := relay.client.SignAndExecute(ctx, key, nil, []byte{byte(i)}, 0)
		require.NoError(t, err)
		require.Equal(t, uint64(i), tx.Nonce.Uint64())
		require.Equal(t, targetAddr, tx.To)
		require.Equal(t, []byte{'e', 'c', 'h', 'o', ':', byte(i)}, []byte(resp.Result))
	}
}

func TestConfigEndpoint(t *testing.T) {
	relay := newTestRelay(t, nil)
	cfg, err := relay.client.Config(context.Background())
	require.NoError(t, err)
	require.Equal(t, relayAddr, cfg.Relay)
	require.Equal(t, ownerAddr, cfg.Owner)
	require.Equal(t, targetAddr, cfg.AllowedTarget)
	require.True(t, cfg.Initialized)
	require.False(t, cfg.Paused)
	require.Equal(t, uint64(421614), cfg.ChainID)
	require.Equal(t, uint64(60), cfg.DefaultDeadlineSeconds)
}

func TestBadRequests(t *testing.T) {
	relay := newTestRelay(t, nil)

	resp, err := http.Get(relay.server.URL + "/v1/nonce/not-an-address")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	cases := []string{
		``,
		`{"from":"0x01"}`,
		`{"from":"0x00000000000000000000000000000000000000aa","to":"0x00000000000000000000000000000000000000aa","nonce":"-1","deadline":"1","data":"0x"}`,
		`{"unknown":true}`,
	}
	for _, body := range cases {
		resp, err := http.Post(relay.server.URL+"/v1/metatx/execute", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		payload, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, "body %q -> %s", body, payload)
	}
}

func TestExecuteRateLimited(t *testing.T) {
	relay := newTestRelay(t, func(cfg *Config) {
		cfg.RateLimit = RateLimit{RequestsPerMinute: 1, Burst: 1}
	})
	ctx := context.Background()
	key := newSigner(t)

	_, err := relay.client.Execute(ctx, signedRequest(t, key, 0, nil))
	require.NoError(t, err)

	_, err = relay.client.Execute(ctx, signedRequest(t, key, 1, nil))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.Status)

	// Reads are not throttled.
	_, err = relay.client.Nonce(ctx, key.Address())
	require.NoError(t, err)
}

func TestEventsPaging(t *testing.T) {
	relay := newTestRelay(t, nil)
	ctx := context.Background()
	key := newSigner(t)
	for i := uint64(0); i < 3; i++ {
		_, err := relay.client.Execute(ctx, signedRequest(t, key, i, nil))
		require.NoError(t, err)
	}

	var page EventsResponse
	getJSON(t, relay.server.URL+"/v1/events?limit=2", &page)
	require.Len(t, page.Events, 2)
	require.Equal(t, uint64(2), page.Next)
	require.Equal(t, events.TypeMetaTxExecuted, page.Events[0].Type)
	require.Equal(t, "true", page.Events[0].Attributes["success"])

	getJSON(t, relay.server.URL+"/v1/events?cursor=2", &page)
	require.Len(t, page.Events, 1)
	require.Equal(t, "2", page.Events[0].Attributes["nonce"])
	require.Equal(t, uint64(3), page.Next)

	getJSON(t, relay.server.URL+"/v1/events?cursor=3", &page)
	require.Empty(t, page.Events)
	require.Equal(t, uint64(3), page.Next)

	viaClient, err := relay.client.Events(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, viaClient.Events, 2)
	require.Equal(t, uint64(1), viaClient.Events[0].Seq)
}

func TestAdminDisabledWithoutSecret(t *testing.T) {
	relay := newTestRelay(t, nil)
	_, err := NewClient(relay.server.URL, WithAdminToken(adminToken(t, "relay:admin"))).Pause(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestAdminRoutes(t *testing.T) {
	relay := newTestRelay(t, func(cfg *Config) {
		cfg.Admin = AdminAuth{HMACSecret: testSecret, Audience: "stylustx"}
	})
	ctx := context.Background()

	_, err := relay.client.Pause(ctx)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)

	_, err = NewClient(relay.server.URL, WithAdminToken(adminToken(t, "relay:read"))).Pause(ctx)
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.Status)

	admin := NewClient(relay.server.URL, WithAdminToken(adminToken(t, "relay:admin")))
	cfg, err := admin.Pause(ctx)
	require.NoError(t, err)
	require.True(t, cfg.Paused)

	key := newSigner(t)
	_, err = relay.client.Execute(ctx, signedRequest(t, key, 0, nil))
	require.ErrorIs(t, err, paymaster.ErrContractPaused)

	cfg, err = admin.Unpause(ctx)
	require.NoError(t, err)
	require.False(t, cfg.Paused)

	other := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	cfg, err = admin.SetAllowedTarget(ctx, other)
	require.NoError(t, err)
	require.Equal(t, other, cfg.AllowedTarget)

	cfg, err = admin.TransferOwnership(ctx, other)
	require.NoError(t, err)
	require.Equal(t, other, cfg.Owner)

	// The operator key no longer owns the relay.
	_, err = admin.Pause(ctx)
	require.ErrorIs(t, err, paymaster.ErrNotOwner)

	require.Len(t, relay.log.Filter(events.TypePausedStateChanged), 2)
	require.Len(t, relay.log.Filter(events.TypeOwnershipTransferred), 1)
}

func TestMetricsEndpoint(t *testing.T) {
	relay := newTestRelay(t, nil)
	_, err := relay.client.Config(context.Background())
	require.NoError(t, err)

	resp, err := http.Get(relay.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "stylustx_rpc_requests_total")
}

func TestParseWord(t *testing.T) {
	cases := map[string]uint64{"": 0, "42": 42, "0x2a": 42, "0X2A": 42, "010": 10}
	for raw, want := range cases {
		got, err := parseWord("value", raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got.Uint64(), raw)
	}
	_, err := parseWord("value", "0x1"+strings.Repeat("0", 64))
	require.Error(t, err)
	_, err = parseWord("value", "abc")
	require.Error(t, err)
}

func adminToken(t *testing.T, scope string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "ops@example.com",
		"aud":   "stylustx",
		"scope": scope,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func getJSON(t *testing.T, url string, out interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}
