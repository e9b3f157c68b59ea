package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"stylustx/storage"
)

// Validate rejects configurations the daemon cannot run with.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}
	switch cfg.StorageBackend {
	case storage.BackendMemory, storage.BackendLevelDB, storage.BackendBolt, storage.BackendSQLite:
	default:
		return fmt.Errorf("StorageBackend: unknown backend %q", cfg.StorageBackend)
	}
	if !common.IsHexAddress(cfg.RelayAddress) {
		return fmt.Errorf("RelayAddress: %q is not a hex address", cfg.RelayAddress)
	}
	if !common.IsHexAddress(cfg.AllowedTarget) {
		return fmt.Errorf("AllowedTarget: %q is not a hex address", cfg.AllowedTarget)
	}
	if common.HexToAddress(cfg.RelayAddress) == common.HexToAddress(cfg.AllowedTarget) {
		return fmt.Errorf("AllowedTarget: must differ from RelayAddress")
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress: required")
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("RateLimit.RequestsPerMinute: must be positive")
	}
	if cfg.RateLimit.Burst <= 0 {
		return fmt.Errorf("RateLimit.Burst: must be positive")
	}
	if cfg.DefaultDeadlineSeconds == 0 {
		return fmt.Errorf("DefaultDeadlineSeconds: must be positive")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("Telemetry.SampleRatio: must be within [0, 1]")
	}
	return nil
}

// Relay returns the address the relay program is deployed at.
func (cfg *Config) Relay() common.Address {
	return common.HexToAddress(cfg.RelayAddress)
}

// Target returns the allow-listed target address.
func (cfg *Config) Target() common.Address {
	return common.HexToAddress(cfg.AllowedTarget)
}

// DeadlineOffset returns the validity window applied to freshly signed requests.
func (cfg *Config) DeadlineOffset() time.Duration {
	return time.Duration(cfg.DefaultDeadlineSeconds) * time.Second
}
