package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"stylustx/crypto"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	t.Setenv(DefaultPassphraseEnv, "pw")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DefaultListenAddress, cfg.ListenAddress)
	require.Equal(t, DefaultStorageBackend, cfg.StorageBackend)
	require.Equal(t, DefaultDeadlineSeconds, cfg.DefaultDeadlineSeconds)
	require.Equal(t, DefaultChainID, cfg.ChainID)
	require.True(t, cfg.DeployEchoTarget)
	require.Equal(t, filepath.Join(dir, "owner.keystore"), cfg.OwnerKeystorePath)

	_, err = crypto.LoadFromKeystore(cfg.OwnerKeystorePath, "pw")
	require.NoError(t, err)

	var persisted Config
	_, err = toml.DecodeFile(path, &persisted)
	require.NoError(t, err)
	require.Equal(t, cfg.OwnerKeystorePath, persisted.OwnerKeystorePath)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, reloaded)
}

func TestLoadParsesFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	keystorePath := filepath.Join(dir, "keys", "owner.json")
	contents := `ListenAddress = "127.0.0.1:9000"
DataDir = "./data"
StorageBackend = "Bolt"
OwnerKeystorePath = "` + filepath.ToSlash(keystorePath) + `"
PassphraseEnv = "TEST_STYLUSTX_PW"
RelayAddress = "0x00000000000000000000000000000000000000a1"
AllowedTarget = "0x00000000000000000000000000000000000000b2"
Environment = "prod"
LogFile = "/var/log/stylustx.log"
MetricsEnabled = true
DefaultDeadlineSeconds = 60
ChainID = 42161

[RateLimit]
RequestsPerMinute = 30
Burst = 5

[Telemetry]
Endpoint = "otel:4318"
Traces = true
SampleRatio = 0.25

[Admin]
Issuer = "ops"
Audience = "stylustx"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	require.Equal(t, "bolt", cfg.StorageBackend)
	require.Equal(t, "TEST_STYLUSTX_PW", cfg.PassphraseEnv)
	require.Equal(t, "prod", cfg.Environment)
	require.Equal(t, "/var/log/stylustx.log", cfg.LogFile)
	require.True(t, cfg.MetricsEnabled)
	require.False(t, cfg.DeployEchoTarget)
	require.Equal(t, uint64(60), cfg.DefaultDeadlineSeconds)
	require.Equal(t, uint64(42161), cfg.ChainID)
	require.Equal(t, RateLimit{RequestsPerMinute: 30, Burst: 5}, cfg.RateLimit)
	require.Equal(t, Telemetry{Endpoint: "otel:4318", Traces: true, SampleRatio: 0.25}, cfg.Telemetry)
	require.Equal(t, Admin{JWTSecretEnv: DefaultAdminSecretEnv, Issuer: "ops", Audience: "stylustx"}, cfg.Admin)
	require.Equal(t, common.HexToAddress("0xa1"), cfg.Relay())
	require.Equal(t, common.HexToAddress("0xb2"), cfg.Target())

	_, err = os.Stat(keystorePath)
	require.NoError(t, err, "missing keystore is generated at the configured path")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.applyDefaults()
		return cfg
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(cfg *Config){
		"backend":       func(cfg *Config) { cfg.StorageBackend = "rocksdb" },
		"relay":         func(cfg *Config) { cfg.RelayAddress = "nope" },
		"target":        func(cfg *Config) { cfg.AllowedTarget = "0x1234" },
		"same address":  func(cfg *Config) { cfg.AllowedTarget = cfg.RelayAddress },
		"listen":        func(cfg *Config) { cfg.ListenAddress = " " },
		"rate":          func(cfg *Config) { cfg.RateLimit.RequestsPerMinute = -1 },
		"burst":         func(cfg *Config) { cfg.RateLimit.Burst = -1 },
		"deadline zero": func(cfg *Config) { cfg.DefaultDeadlineSeconds = 0 },
		"sample ratio":  func(cfg *Config) { cfg.Telemetry.SampleRatio = 1.5 },
	}
	for name, mutate := range cases {
		cfg := valid()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`StorageBackend = "rocksdb"`+"\n"), 0o644))

	_, err := Load(path)
	require.ErrorContains(t, err, "StorageBackend")
}

func TestLoadUsesPassphraseSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	t.Setenv(DefaultPassphraseEnv, "ignored")
	calls := 0
	cfg, err := Load(path, WithKeystorePassphraseSource(func() (string, error) {
		calls++
		return "from-source", nil
	}))
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	_, err = crypto.LoadFromKeystore(cfg.OwnerKeystorePath, "from-source")
	require.NoError(t, err)

	// An existing keystore is never re-created.
	_, err = Load(path, WithKeystorePassphraseSource(func() (string, error) {
		calls++
		return "", os.ErrPermission
	}))
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}
