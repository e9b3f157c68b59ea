package paymaster

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// kvStore abstracts the subset of state manager functionality required by the
// paymaster engine. Each call is expected to be atomic per key.
type kvStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	configKey   = []byte("paymaster/config")
	noncePrefix = []byte("paymaster/nonce/")
)

func nonceKey(addr common.Address) []byte {
	key := make([]byte, 0, len(noncePrefix)+common.AddressLength)
	key = append(key, noncePrefix...)
	return append(key, addr.Bytes()...)
}

func (e *Engine) loadConfig() (Config, error) {
	var cfg Config
	if _, err := e.state.KVGet(configKey, &cfg); err != nil {
		return Config{}, fmt.Errorf("paymaster: load config: %w", err)
	}
	return cfg, nil
}

func (e *Engine) storeConfig(cfg Config) error {
	if err := e.state.KVPut(configKey, &cfg); err != nil {
		return fmt.Errorf("paymaster: store config: %w", err)
	}
	return nil
}

func (e *Engine) loadNonce(addr common.Address) (*uint256.Int, error) {
	stored := new(big.Int)
	ok, err := e.state.KVGet(nonceKey(addr), stored)
	if err != nil {
		return nil, fmt.Errorf("paymaster: load nonce: %w", err)
	}
	if !ok {
		return new(uint256.Int), nil
	}
	nonce, overflow := uint256.FromBig(stored)
	if overflow {
		return nil, fmt.Errorf("paymaster: stored nonce for %s overflows 256 bits", addr.Hex())
	}
	return nonce, nil
}

func (e *Engine) storeNonce(addr common.Address, nonce *uint256.Int) error {
	if err := e.state.KVPut(nonceKey(addr), nonce.ToBig()); err != nil {
		return fmt.Errorf("paymaster: store nonce: %w", err)
	}
	return nil
}
