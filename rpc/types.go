package rpc

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"stylustx/native/paymaster"
)

// SignatureJSON is the wire form of a meta-transaction signature.
type SignatureJSON struct {
	V uint8       `json:"v"`
	R common.Hash `json:"r"`
	S common.Hash `json:"s"`
}

// MetaTxJSON is the wire form of a meta-transaction. Integer words are
// decimal or 0x-prefixed hex strings.
type MetaTxJSON struct {
	From      common.Address `json:"from"`
	To        common.Address `json:"to"`
	Value     string         `json:"value,omitempty"`
	Data      hexutil.Bytes  `json:"data"`
	Nonce     string         `json:"nonce"`
	Deadline  string         `json:"deadline"`
	Signature *SignatureJSON `json:"signature,omitempty"`
}

// ErrorBody describes a failed request. Kind and RevertData are set for
// relay errors from the closed set.
type ErrorBody struct {
	Kind       string        `json:"kind,omitempty"`
	Message    string        `json:"message"`
	RevertData hexutil.Bytes `json:"revertData,omitempty"`
}

type errorResponse struct {
	Error ErrorBody `json:"error"`
}

// HashResponse carries a canonical message hash.
type HashResponse struct {
	Hash common.Hash `json:"hash"`
}

// VerifyResponse reports the preflight outcome for a meta-transaction.
type VerifyResponse struct {
	Status        string          `json:"status"`
	Hash          common.Hash     `json:"hash"`
	ExpectedNonce string          `json:"expectedNonce,omitempty"`
	Signer        *common.Address `json:"signer,omitempty"`
	Error         *ErrorBody      `json:"error,omitempty"`
}

// ExecuteResponse carries the target's output for an accepted request.
type ExecuteResponse struct {
	Result    hexutil.Bytes  `json:"result"`
	User      common.Address `json:"user"`
	Nonce     string         `json:"nonce"`
	NextNonce string         `json:"nextNonce"`
}

// NonceResponse carries the next nonce expected from an address.
type NonceResponse struct {
	Address common.Address `json:"address"`
	Nonce   string         `json:"nonce"`
}

// ConfigResponse describes the relay's configuration aggregate.
type ConfigResponse struct {
	Relay                  common.Address `json:"relay"`
	Owner                  common.Address `json:"owner"`
	AllowedTarget          common.Address `json:"allowedTarget"`
	Initialized            bool           `json:"initialized"`
	Paused                 bool           `json:"paused"`
	ChainID                uint64         `json:"chainId"`
	DefaultDeadlineSeconds uint64         `json:"defaultDeadlineSeconds"`
}

// EventJSON is a single entry of the relay event log.
type EventJSON struct {
	Seq        uint64            `json:"seq"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// EventsResponse is one page of the event log. Next is the cursor to pass on
// the following call.
type EventsResponse struct {
	Events []EventJSON `json:"events"`
	Next   uint64      `json:"next"`
}

type addressRequest struct {
	Address common.Address `json:"address"`
}

// ToMetaTx converts the wire form into an engine request.
func (m *MetaTxJSON) ToMetaTx() (*paymaster.MetaTx, error) {
	value, err := parseWord("value", m.Value)
	if err != nil {
		return nil, err
	}
	nonce, err := parseWord("nonce", m.Nonce)
	if err != nil {
		return nil, err
	}
	deadline, err := parseWord("deadline", m.Deadline)
	if err != nil {
		return nil, err
	}
	tx := &paymaster.MetaTx{
		From:     m.From,
		To:       m.To,
		Value:    value,
		Data:     append([]byte(nil), m.Data...),
		Nonce:    nonce,
		Deadline: deadline,
	}
	if m.Signature != nil {
		tx.Signature = paymaster.Signature{V: m.Signature.V, R: m.Signature.R, S: m.Signature.S}
	}
	return tx, nil
}

// NewMetaTxJSON renders an engine request in wire form.
func NewMetaTxJSON(tx *paymaster.MetaTx) MetaTxJSON {
	out := MetaTxJSON{
		From:     tx.From,
		To:       tx.To,
		Value:    wordString(tx.Value),
		Data:     append(hexutil.Bytes(nil), tx.Data...),
		Nonce:    wordString(tx.Nonce),
		Deadline: wordString(tx.Deadline),
	}
	if tx.Signature != (paymaster.Signature{}) {
		out.Signature = &SignatureJSON{V: tx.Signature.V, R: tx.Signature.R, S: tx.Signature.S}
	}
	return out
}

// parseWord accepts decimal or 0x-prefixed hex. Empty input is zero.
func parseWord(field, raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return new(uint256.Int), nil
	}
	base := 10
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed, base = trimmed[2:], 16
	}
	parsed, ok := new(big.Int).SetString(trimmed, base)
	if !ok || parsed.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid integer %q", field, raw)
	}
	word, overflow := uint256.FromBig(parsed)
	if overflow {
		return nil, fmt.Errorf("%s: exceeds 256 bits", field)
	}
	return word, nil
}

func wordString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
