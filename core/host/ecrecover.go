package host

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// EcrecoverAddress is where the recovery precompile is installed.
var EcrecoverAddress = common.BytesToAddress([]byte{0x01})

// Ecrecover implements the secp256k1 public key recovery precompile. Invalid
// input yields empty output rather than an error.
type Ecrecover struct{}

func (Ecrecover) Run(input []byte) ([]byte, error) {
	input = common.RightPadBytes(input, 128)

	hash := input[0:32]
	v := new(big.Int).SetBytes(input[32:64])
	r := new(big.Int).SetBytes(input[64:96])
	s := new(big.Int).SetBytes(input[96:128])

	if v.BitLen() > 8 {
		return nil, nil
	}
	vByte := byte(v.Uint64())
	if vByte != 27 && vByte != 28 {
		return nil, nil
	}
	if !crypto.ValidateSignatureValues(vByte-27, r, s, false) {
		return nil, nil
	}

	sig := make([]byte, 65)
	copy(sig[0:32], common.LeftPadBytes(r.Bytes(), 32))
	copy(sig[32:64], common.LeftPadBytes(s.Bytes(), 32))
	sig[64] = vByte - 27

	pub, err := crypto.Ecrecover(hash, sig)
	if err != nil {
		return nil, nil
	}
	return common.LeftPadBytes(crypto.Keccak256(pub[1:])[12:], 32), nil
}
