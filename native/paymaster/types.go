package paymaster

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Signature carries the secp256k1 signature components of a meta-transaction.
// V may be supplied either as 0/1 or in the canonical 27/28 encoding.
type Signature struct {
	V uint8
	R common.Hash
	S common.Hash
}

// MetaTx is a signed request to forward a call to the allow-listed target on
// behalf of From. It only lives for the duration of one Execute call.
type MetaTx struct {
	From      common.Address
	To        common.Address
	Value     *uint256.Int
	Data      []byte
	Nonce     *uint256.Int
	Deadline  *uint256.Int
	Signature Signature
}

// Hash returns the canonical message hash the author signed.
func (tx *MetaTx) Hash() common.Hash {
	if tx == nil {
		return common.Hash{}
	}
	return MessageHash(tx.From, tx.To, tx.Value, tx.Data, tx.Nonce, tx.Deadline)
}

// Config is the configuration aggregate persisted by the engine.
type Config struct {
	Owner         common.Address
	AllowedTarget common.Address
	Initialized   bool
	Paused        bool
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
