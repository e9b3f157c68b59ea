package crypto

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stylustx/native/paymaster"
)

// DefaultDeadlineOffset is how long a freshly signed request stays valid.
const DefaultDeadlineOffset = 5 * time.Minute

// DefaultDeadline returns now+offset as a unix timestamp word. A non-positive offset
// falls back to DefaultDeadlineOffset.
func DefaultDeadline(now time.Time, offset time.Duration) *uint256.Int {
	if offset <= 0 {
		offset = DefaultDeadlineOffset
	}
	return uint256.NewInt(uint64(now.Add(offset).Unix()))
}

// SplitSignature converts a 65-byte [R || S || V] signature into the
// components the relay accepts, with V in the canonical 27/28 encoding.
func SplitSignature(sig []byte) (paymaster.Signature, error) {
	if len(sig) != 65 {
		return paymaster.Signature{}, errors.New("crypto: signature must be 65 bytes")
	}
	return paymaster.Signature{
		V: paymaster.NormalizeV(sig[64]),
		R: common.BytesToHash(sig[0:32]),
		S: common.BytesToHash(sig[32:64]),
	}, nil
}

// SignMetaTx signs tx's canonical message hash with key and stores the
// signature on tx. The key must control tx.From for the relay to accept it.
func SignMetaTx(key *PrivateKey, tx *paymaster.MetaTx) error {
	if tx == nil {
		return errors.New("crypto: meta-transaction required")
	}
	raw, err := key.SignHash(tx.Hash())
	if err != nil {
		return err
	}
	sig, err := SplitSignature(raw)
	if err != nil {
		return err
	}
	tx.Signature = sig
	return nil
}
