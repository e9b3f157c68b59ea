package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"stylustx/crypto"

	"github.com/BurntSushi/toml"
)

const (
	DefaultListenAddress          = ":8080"
	DefaultDataDir                = "./stylustx-data"
	DefaultStorageBackend         = "leveldb"
	DefaultPassphraseEnv          = "STYLUSTX_PASSPHRASE"
	DefaultAdminSecretEnv         = "STYLUSTX_ADMIN_JWT_SECRET"
	DefaultRelayAddress           = "0x0000000000000000000000000000000000005354"
	DefaultTargetAddress          = "0x0000000000000000000000000000000000005355"
	DefaultDeadlineSeconds uint64 = 300
	DefaultChainID         uint64 = 421614
	DefaultRequestsPerMin         = 120
	DefaultBurst                  = 20
)

type Config struct {
	ListenAddress          string    `toml:"ListenAddress"`
	DataDir                string    `toml:"DataDir"`
	StorageBackend         string    `toml:"StorageBackend"`
	OwnerKeystorePath      string    `toml:"OwnerKeystorePath"`
	PassphraseEnv          string    `toml:"PassphraseEnv"`
	RelayAddress           string    `toml:"RelayAddress"`
	AllowedTarget          string    `toml:"AllowedTarget"`
	DeployEchoTarget       bool      `toml:"DeployEchoTarget"`
	Environment            string    `toml:"Environment"`
	LogFile                string    `toml:"LogFile"`
	MetricsEnabled         bool      `toml:"MetricsEnabled"`
	DefaultDeadlineSeconds uint64    `toml:"DefaultDeadlineSeconds"`
	ChainID                uint64    `toml:"ChainID"`
	RateLimit              RateLimit `toml:"RateLimit"`
	Telemetry              Telemetry `toml:"Telemetry"`
	Admin                  Admin     `toml:"Admin"`
}

// RateLimit bounds how often a single client may submit meta-transactions.
type RateLimit struct {
	RequestsPerMinute int `toml:"RequestsPerMinute"`
	Burst             int `toml:"Burst"`
}

// Telemetry configures OTLP export of traces and metrics.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio"`
}

// Admin enables the owner-only RPC surface. The HMAC secret used to verify
// bearer tokens is read from the environment variable named by JWTSecretEnv;
// the surface stays disabled while that variable is empty.
type Admin struct {
	JWTSecretEnv string `toml:"JWTSecretEnv"`
	Issuer       string `toml:"Issuer"`
	Audience     string `toml:"Audience"`
}

// LoadOption customises Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	passphrase func() (string, error)
}

// WithKeystorePassphraseSource supplies the passphrase used when Load has to
// create the owner keystore. Without it the variable named by PassphraseEnv
// is read directly.
func WithKeystorePassphraseSource(source func() (string, error)) LoadOption {
	return func(o *loadOptions) { o.passphrase = source }
}

// Load loads the configuration from the given path. A missing file is
// replaced by a persisted default together with a fresh owner keystore.
func Load(path string, opts ...LoadOption) (*Config, error) {
	var options loadOptions
	for _, opt := range opts {
		opt(&options)
	}
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, options)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := ensureKeystore(path, cfg, options); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = DefaultDataDir
	}
	if strings.TrimSpace(cfg.StorageBackend) == "" {
		cfg.StorageBackend = DefaultStorageBackend
	}
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	if strings.TrimSpace(cfg.PassphraseEnv) == "" {
		cfg.PassphraseEnv = DefaultPassphraseEnv
	}
	if strings.TrimSpace(cfg.RelayAddress) == "" {
		cfg.RelayAddress = DefaultRelayAddress
	}
	if strings.TrimSpace(cfg.AllowedTarget) == "" {
		cfg.AllowedTarget = DefaultTargetAddress
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "dev"
	}
	if cfg.DefaultDeadlineSeconds == 0 {
		cfg.DefaultDeadlineSeconds = DefaultDeadlineSeconds
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = DefaultChainID
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = DefaultRequestsPerMin
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = DefaultBurst
	}
	if strings.TrimSpace(cfg.Admin.JWTSecretEnv) == "" {
		cfg.Admin.JWTSecretEnv = DefaultAdminSecretEnv
	}
}

func ensureKeystore(configPath string, cfg *Config, options loadOptions) error {
	keystorePath := cfg.OwnerKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		pass := os.Getenv(cfg.PassphraseEnv)
		if options.passphrase != nil {
			if pass, err = options.passphrase(); err != nil {
				return fmt.Errorf("owner keystore passphrase: %w", err)
			}
		}
		if err := crypto.SaveToKeystore(keystorePath, key, pass); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OwnerKeystorePath != keystorePath {
		cfg.OwnerKeystorePath = keystorePath
		return persist(configPath, cfg)
	}

	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string, options loadOptions) (*Config, error) {
	cfg := &Config{
		DeployEchoTarget: true,
		MetricsEnabled:   true,
	}
	cfg.applyDefaults()
	if err := ensureKeystore(path, cfg, options); err != nil {
		return nil, err
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "owner.keystore")
}
