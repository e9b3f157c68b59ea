package paymaster

import (
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// DomainSeparator is mixed into every message hash so signatures produced for
// this relay cannot be replayed against another protocol.
var DomainSeparator = []byte("StylusTx")

// EcrecoverAddress is the address of the secp256k1 recovery precompile.
var EcrecoverAddress = common.BytesToAddress([]byte{0x01})

// RecoveryInputLength is the size of the precompile input.
const RecoveryInputLength = 128

// MessageHash computes
//
//	keccak256(domain || from || to || value || keccak256(data) || nonce || deadline)
//
// with addresses as 20 raw bytes and integers as 32-byte big-endian words.
// Off-chain signers must reproduce this layout bit for bit.
func MessageHash(from, to common.Address, value *uint256.Int, data []byte, nonce, deadline *uint256.Int) common.Hash {
	valueWord := orZero(value).Bytes32()
	nonceWord := orZero(nonce).Bytes32()
	deadlineWord := orZero(deadline).Bytes32()
	return ethcrypto.Keccak256Hash(
		DomainSeparator,
		from.Bytes(),
		to.Bytes(),
		valueWord[:],
		ethcrypto.Keccak256(data),
		nonceWord[:],
		deadlineWord[:],
	)
}

// NormalizeV maps the 0/1 recovery id onto the canonical 27/28 encoding.
// Other values are passed through untouched and rejected by the precompile.
func NormalizeV(v uint8) uint8 {
	if v == 0 || v == 1 {
		return v + 27
	}
	return v
}

// RecoveryInput builds hash || v || r || s with v right-aligned in its word.
func RecoveryInput(hash common.Hash, sig Signature) [RecoveryInputLength]byte {
	var input [RecoveryInputLength]byte
	copy(input[0:32], hash[:])
	input[63] = NormalizeV(sig.V)
	copy(input[64:96], sig.R[:])
	copy(input[96:128], sig.S[:])
	return input
}

// recoverSigner asks the recovery precompile for the address behind sig.
func (e *Engine) recoverSigner(hash common.Hash, sig Signature) (common.Address, error) {
	if e.recoverer == nil {
		return common.Address{}, errEcrecoverFailed(errNoRecoverer)
	}
	input := RecoveryInput(hash, sig)
	out, err := e.recoverer.StaticCall(EcrecoverAddress, input[:])
	if err != nil {
		return common.Address{}, errEcrecoverFailed(err)
	}
	if len(out) < 32 {
		return common.Address{}, errEcrecoverFailed(nil)
	}
	recovered := common.BytesToAddress(out[len(out)-common.AddressLength:])
	if recovered == (common.Address{}) {
		return common.Address{}, errEcrecoverFailed(nil)
	}
	return recovered, nil
}
