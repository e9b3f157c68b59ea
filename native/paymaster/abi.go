package paymaster

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ContractABI is the external interface of the relay engine: the public
// methods, in the camelCase names off-chain clients use, and the custom errors.
const ContractABI = `[
	{"type":"function","name":"initialize","stateMutability":"nonpayable","inputs":[{"name":"target","type":"address"}],"outputs":[]},
	{"type":"function","name":"execute","stateMutability":"nonpayable","inputs":[
		{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"},{"name":"nonce","type":"uint256"},{"name":"deadline","type":"uint256"},
		{"name":"v","type":"uint8"},{"name":"r","type":"bytes32"},{"name":"s","type":"bytes32"}],
		"outputs":[{"name":"","type":"bytes"}]},
	{"type":"function","name":"getNonce","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getAllowedTarget","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"getOwner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"isPaused","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"isInitialized","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"getMessageHash","stateMutability":"view","inputs":[
		{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"},{"name":"nonce","type":"uint256"},{"name":"deadline","type":"uint256"}],
		"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"function","name":"setAllowedTarget","stateMutability":"nonpayable","inputs":[{"name":"newTarget","type":"address"}],"outputs":[]},
	{"type":"function","name":"pause","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"unpause","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"transferOwnership","stateMutability":"nonpayable","inputs":[{"name":"newOwner","type":"address"}],"outputs":[]},
	{"type":"error","name":"AlreadyInitialized","inputs":[]},
	{"type":"error","name":"NotInitialized","inputs":[]},
	{"type":"error","name":"ContractPaused","inputs":[]},
	{"type":"error","name":"NotOwner","inputs":[]},
	{"type":"error","name":"DeadlineExpired","inputs":[{"name":"deadline","type":"uint256"},{"name":"current_time","type":"uint256"}]},
	{"type":"error","name":"TargetNotAllowed","inputs":[{"name":"target","type":"address"}]},
	{"type":"error","name":"InvalidNonce","inputs":[{"name":"expected","type":"uint256"},{"name":"provided","type":"uint256"}]},
	{"type":"error","name":"InvalidSignature","inputs":[{"name":"expected","type":"address"},{"name":"recovered","type":"address"}]},
	{"type":"error","name":"CallFailed","inputs":[]},
	{"type":"error","name":"EcrecoverFailed","inputs":[]}
]`

var contractABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(ContractABI))
	if err != nil {
		panic(fmt.Sprintf("paymaster: invalid contract abi: %v", err))
	}
	return parsed
}()

var errShortRevertData = errors.New("paymaster: revert data shorter than selector")

// ABI returns the parsed contract interface.
func ABI() abi.ABI {
	return contractABI
}

// ABIEncode renders the error as Solidity custom-error revert data: the 4-byte
// selector followed by the ABI-encoded fields.
func (e *Error) ABIEncode() []byte {
	if e == nil {
		return nil
	}
	def, ok := contractABI.Errors[e.Kind.String()]
	if !ok {
		return nil
	}
	packed, err := def.Inputs.Pack(e.abiArgs()...)
	if err != nil {
		return nil
	}
	out := make([]byte, 0, 4+len(packed))
	out = append(out, def.ID[:4]...)
	return append(out, packed...)
}

func (e *Error) abiArgs() []interface{} {
	switch e.Kind {
	case KindDeadlineExpired:
		return []interface{}{orZero(e.Deadline).ToBig(), orZero(e.Now).ToBig()}
	case KindTargetNotAllowed:
		return []interface{}{e.Target}
	case KindInvalidNonce:
		return []interface{}{orZero(e.ExpectedNonce).ToBig(), orZero(e.ProvidedNonce).ToBig()}
	case KindInvalidSignature:
		return []interface{}{e.ExpectedSigner, e.RecoveredSigner}
	default:
		return nil
	}
}

// DecodeError parses custom-error revert data produced by ABIEncode.
func DecodeError(data []byte) (*Error, error) {
	if len(data) < 4 {
		return nil, errShortRevertData
	}
	for name, def := range contractABI.Errors {
		if !bytes.Equal(def.ID[:4], data[:4]) {
			continue
		}
		values, err := def.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, fmt.Errorf("paymaster: decode %s: %w", name, err)
		}
		out := &Error{Kind: kindByName(name)}
		switch out.Kind {
		case KindDeadlineExpired:
			if out.Deadline, err = uintArg(values, 0); err != nil {
				return nil, err
			}
			if out.Now, err = uintArg(values, 1); err != nil {
				return nil, err
			}
		case KindTargetNotAllowed:
			if out.Target, err = addressArg(values, 0); err != nil {
				return nil, err
			}
		case KindInvalidNonce:
			if out.ExpectedNonce, err = uintArg(values, 0); err != nil {
				return nil, err
			}
			if out.ProvidedNonce, err = uintArg(values, 1); err != nil {
				return nil, err
			}
		case KindInvalidSignature:
			if out.ExpectedSigner, err = addressArg(values, 0); err != nil {
				return nil, err
			}
			if out.RecoveredSigner, err = addressArg(values, 1); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("paymaster: unknown error selector %x", data[:4])
}

func kindByName(name string) ErrorKind {
	for kind, candidate := range kindNames {
		if candidate == name {
			return kind
		}
	}
	return KindUnknown
}

// PackExecute encodes req as calldata for the execute method.
func PackExecute(req *MetaTx) ([]byte, error) {
	if req == nil {
		return nil, errRequestRequired
	}
	tx := req.normalized()
	return contractABI.Pack("execute",
		tx.From,
		tx.To,
		tx.Value.ToBig(),
		tx.Data,
		tx.Nonce.ToBig(),
		tx.Deadline.ToBig(),
		tx.Signature.V,
		[32]byte(tx.Signature.R),
		[32]byte(tx.Signature.S),
	)
}

// UnpackExecuteOutput extracts the target's raw output from the ABI-encoded
// return value of execute.
func UnpackExecuteOutput(out []byte) ([]byte, error) {
	values, err := contractABI.Unpack("execute", out)
	if err != nil {
		return nil, fmt.Errorf("paymaster: decode execute output: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("paymaster: unexpected execute output arity %d", len(values))
	}
	raw, ok := values[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("paymaster: unexpected execute output type %T", values[0])
	}
	return raw, nil
}

func uintArg(values []interface{}, i int) (*uint256.Int, error) {
	if i >= len(values) {
		return nil, fmt.Errorf("paymaster: missing argument %d", i)
	}
	b, ok := values[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("paymaster: argument %d: expected uint256, got %T", i, values[i])
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("paymaster: argument %d overflows uint256", i)
	}
	return v, nil
}

func addressArg(values []interface{}, i int) (common.Address, error) {
	if i >= len(values) {
		return common.Address{}, fmt.Errorf("paymaster: missing argument %d", i)
	}
	addr, ok := values[i].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("paymaster: argument %d: expected address, got %T", i, values[i])
	}
	return addr, nil
}

func bytesArg(values []interface{}, i int) ([]byte, error) {
	if i >= len(values) {
		return nil, fmt.Errorf("paymaster: missing argument %d", i)
	}
	b, ok := values[i].([]byte)
	if !ok {
		return nil, fmt.Errorf("paymaster: argument %d: expected bytes, got %T", i, values[i])
	}
	return b, nil
}

func hashArg(values []interface{}, i int) (common.Hash, error) {
	if i >= len(values) {
		return common.Hash{}, fmt.Errorf("paymaster: missing argument %d", i)
	}
	b, ok := values[i].([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("paymaster: argument %d: expected bytes32, got %T", i, values[i])
	}
	return common.Hash(b), nil
}

func uint8Arg(values []interface{}, i int) (uint8, error) {
	if i >= len(values) {
		return 0, fmt.Errorf("paymaster: missing argument %d", i)
	}
	v, ok := values[i].(uint8)
	if !ok {
		return 0, fmt.Errorf("paymaster: argument %d: expected uint8, got %T", i, values[i])
	}
	return v, nil
}
