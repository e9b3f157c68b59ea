package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"stylustx/config"
	"stylustx/core/events"
	"stylustx/core/host"
	"stylustx/core/state"
	"stylustx/crypto"
	"stylustx/native/paymaster"
	"stylustx/rpc"
	"stylustx/storage"
)

var (
	relayAddr  = common.HexToAddress(config.DefaultRelayAddress)
	targetAddr = common.HexToAddress(config.DefaultTargetAddress)
	ownerAddr  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

const adminSecret = "cli-test-secret"

func startRelay(t *testing.T) *paymaster.Engine {
	t.Helper()
	h := host.New()
	eventLog := events.NewLog()
	engine := paymaster.Deploy(h, relayAddr, state.NewManager(storage.NewMemDB()), paymaster.WithEmitter(eventLog))
	h.Deploy(targetAddr, func(call host.Call) ([]byte, error) {
		return append([]byte(nil), call.Input...), nil
	})
	require.NoError(t, engine.Initialize(ownerAddr, targetAddr))

	srv := httptest.NewServer(rpc.NewServer(engine, h, eventLog, rpc.Config{
		Relay:     relayAddr,
		Relayer:   ownerAddr,
		Operator:  ownerAddr,
		RateLimit: rpc.RateLimit{RequestsPerMinute: 600, Burst: 100},
		Admin:     rpc.AdminAuth{HMACSecret: adminSecret},
		Registry:  prometheus.NewRegistry(),
	}).Handler())
	t.Cleanup(srv.Close)

	previous := rpcEndpoint
	rpcEndpoint = srv.URL
	t.Cleanup(func() { rpcEndpoint = previous })
	return engine
}

func invoke(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func newKeystore(t *testing.T) (string, common.Address) {
	t.Helper()
	t.Setenv(config.DefaultPassphraseEnv, "cli-pass")
	path := filepath.Join(t.TempDir(), "signer.keystore")
	code, stdout, stderr := invoke("generate-key", "--out", path)
	require.Equal(t, 0, code, stderr)
	key, err := crypto.LoadFromKeystore(path, "cli-pass")
	require.NoError(t, err)
	require.Contains(t, stdout, key.Address().Hex())
	return path, key.Address()
}

func TestApplyGlobalFlags(t *testing.T) {
	previous := rpcEndpoint
	defer func() { rpcEndpoint = previous }()

	args, err := applyGlobalFlags([]string{"--rpc", "http://relay:9000", "nonce", "0x01"})
	require.NoError(t, err)
	require.Equal(t, []string{"nonce", "0x01"}, args)
	require.Equal(t, "http://relay:9000", rpcEndpoint)

	args, err = applyGlobalFlags([]string{"config", "--rpc=http://other"})
	require.NoError(t, err)
	require.Equal(t, []string{"config"}, args)
	require.Equal(t, "http://other", rpcEndpoint)

	_, err = applyGlobalFlags([]string{"--rpc"})
	require.Error(t, err)
}

func TestUnknownCommand(t *testing.T) {
	code, _, stderr := invoke("bogus")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "Unknown command: bogus")
}

func TestAddressCommand(t *testing.T) {
	path, addr := newKeystore(t)
	code, stdout, _ := invoke("address", "--keystore", path)
	require.Equal(t, 0, code)
	require.Equal(t, addr.Hex(), strings.TrimSpace(stdout))

	code, _, _ = invoke("generate-key", "--out", path)
	require.Equal(t, 1, code, "existing keystores are never overwritten")
}

func TestSignVerifySubmitFlow(t *testing.T) {
	engine := startRelay(t)
	path, addr := newKeystore(t)

	code, signed, stderr := invoke("sign", "--keystore", path, "--data", "0xc0ffee")
	require.Equal(t, 0, code, stderr)
	var body rpc.MetaTxJSON
	require.NoError(t, json.Unmarshal([]byte(signed), &body))
	require.Equal(t, addr, body.From)
	require.Equal(t, targetAddr, body.To)
	require.Equal(t, "0", body.Nonce)
	require.NotNil(t, body.Signature)

	txFile := filepath.Join(t.TempDir(), "tx.json")
	require.NoError(t, os.WriteFile(txFile, []byte(signed), 0o600))

	tx, err := body.ToMetaTx()
	require.NoError(t, err)
	code, stdout, _ := invoke("hash", "--tx", txFile)
	require.Equal(t, 0, code)
	require.Equal(t, tx.Hash().Hex(), strings.TrimSpace(stdout))
	code, stdout, _ = invoke("hash", "--tx", txFile, "--remote")
	require.Equal(t, 0, code)
	require.Equal(t, tx.Hash().Hex(), strings.TrimSpace(stdout))

	code, stdout, _ = invoke("verify", "--tx", txFile)
	require.Equal(t, 0, code, stdout)
	require.Contains(t, stdout, `"ready"`)

	code, stdout, stderr = invoke("submit", "--tx", txFile)
	require.Equal(t, 0, code, stderr)
	var resp rpc.ExecuteResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Equal(t, []byte{0xc0, 0xff, 0xee}, []byte(resp.Result))

	code, _, stderr = invoke("submit", "--tx", txFile)
	require.Equal(t, 2, code)
	require.Contains(t, stderr, "InvalidNonce")

	code, stdout, _ = invoke("nonce", addr.Hex())
	require.Equal(t, 0, code)
	require.Equal(t, "1", strings.TrimSpace(stdout))

	nonce, err := engine.Nonce(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(1), nonce.Uint64())
}

func TestSendAndEvents(t *testing.T) {
	startRelay(t)
	path, _ := newKeystore(t)

	for i := 0; i < 2; i++ {
		code, _, stderr := invoke("send", "--keystore", path, "--data", "ab", "--ttl", time.Minute.String())
		require.Equal(t, 0, code, stderr)
	}

	code, stdout, _ := invoke("events", "--cursor", "1")
	require.Equal(t, 0, code)
	var page rpc.EventsResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &page))
	require.Len(t, page.Events, 1)
	require.Equal(t, "1", page.Events[0].Attributes["nonce"])
	require.Equal(t, uint64(2), page.Next)
}

func TestSignRejectsBadFlags(t *testing.T) {
	startRelay(t)
	path, _ := newKeystore(t)

	code, _, stderr := invoke("sign", "--keystore", path, "--value", "-5")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "invalid --value")

	code, _, stderr = invoke("sign", "--keystore", path, "--data", "0xzz")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "invalid --data")

	code, _, stderr = invoke("sign", "--keystore", path, "--to", "nope")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "invalid --to")
}

func TestAdminCommands(t *testing.T) {
	startRelay(t)

	code, _, stderr := invoke("admin", "pause", "--token", "")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "admin token required")

	code, _, stderr = invoke("admin", "target", "--token", "x", "--address", "bad")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "--address must be a hex address")

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"scope": "relay:admin",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(adminSecret))
	require.NoError(t, err)

	code, stdout, stderr := invoke("admin", "pause", "--token", token)
	require.Equal(t, 0, code, stderr)
	var cfg rpc.ConfigResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &cfg))
	require.True(t, cfg.Paused)

	next := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	code, stdout, stderr = invoke("admin", "target", "--token", token, "--address", next.Hex())
	require.Equal(t, 0, code, stderr)
	require.NoError(t, json.Unmarshal([]byte(stdout), &cfg))
	require.Equal(t, next, cfg.AllowedTarget)

	code, _, stderr = invoke("admin", "shutdown")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "Unknown admin subcommand")
}
