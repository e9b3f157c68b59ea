package paymaster

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrorKind enumerates the closed set of failures the engine reports.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindAlreadyInitialized
	KindNotInitialized
	KindContractPaused
	KindNotOwner
	KindDeadlineExpired
	KindTargetNotAllowed
	KindInvalidNonce
	KindInvalidSignature
	KindEcrecoverFailed
	KindCallFailed
)

var kindNames = map[ErrorKind]string{
	KindAlreadyInitialized: "AlreadyInitialized",
	KindNotInitialized:     "NotInitialized",
	KindContractPaused:     "ContractPaused",
	KindNotOwner:           "NotOwner",
	KindDeadlineExpired:    "DeadlineExpired",
	KindTargetNotAllowed:   "TargetNotAllowed",
	KindInvalidNonce:       "InvalidNonce",
	KindInvalidSignature:   "InvalidSignature",
	KindEcrecoverFailed:    "EcrecoverFailed",
	KindCallFailed:         "CallFailed",
}

// String returns the canonical error name, which doubles as the ABI error name.
func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Error is the structured failure returned by engine operations. Only the
// fields relevant to Kind are populated.
type Error struct {
	Kind ErrorKind

	Deadline *uint256.Int
	Now      *uint256.Int

	Target common.Address

	ExpectedNonce *uint256.Int
	ProvidedNonce *uint256.Int

	ExpectedSigner  common.Address
	RecoveredSigner common.Address

	// Cause is the underlying failure reported by the host, if any. It is
	// never part of the error identity.
	Cause error
}

var (
	ErrAlreadyInitialized = &Error{Kind: KindAlreadyInitialized}
	ErrNotInitialized     = &Error{Kind: KindNotInitialized}
	ErrContractPaused     = &Error{Kind: KindContractPaused}
	ErrNotOwner           = &Error{Kind: KindNotOwner}
	ErrDeadlineExpired    = &Error{Kind: KindDeadlineExpired}
	ErrTargetNotAllowed   = &Error{Kind: KindTargetNotAllowed}
	ErrInvalidNonce       = &Error{Kind: KindInvalidNonce}
	ErrInvalidSignature   = &Error{Kind: KindInvalidSignature}
	ErrEcrecoverFailed    = &Error{Kind: KindEcrecoverFailed}
	ErrCallFailed         = &Error{Kind: KindCallFailed}
)

func (e *Error) Error() string {
	if e == nil {
		return "paymaster: <nil>"
	}
	switch e.Kind {
	case KindAlreadyInitialized:
		return "paymaster: already initialized"
	case KindNotInitialized:
		return "paymaster: not initialized"
	case KindContractPaused:
		return "paymaster: paused"
	case KindNotOwner:
		return "paymaster: caller is not the owner"
	case KindDeadlineExpired:
		return fmt.Sprintf("paymaster: deadline %s expired at %s", decOrZero(e.Deadline), decOrZero(e.Now))
	case KindTargetNotAllowed:
		return fmt.Sprintf("paymaster: target %s not allowed", e.Target.Hex())
	case KindInvalidNonce:
		return fmt.Sprintf("paymaster: invalid nonce (expected %s, provided %s)", decOrZero(e.ExpectedNonce), decOrZero(e.ProvidedNonce))
	case KindInvalidSignature:
		return fmt.Sprintf("paymaster: invalid signature (expected %s, recovered %s)", e.ExpectedSigner.Hex(), e.RecoveredSigner.Hex())
	case KindEcrecoverFailed:
		if e.Cause != nil {
			return fmt.Sprintf("paymaster: ecrecover failed: %v", e.Cause)
		}
		return "paymaster: ecrecover failed"
	case KindCallFailed:
		if e.Cause != nil {
			return fmt.Sprintf("paymaster: forwarded call failed: %v", e.Cause)
		}
		return "paymaster: forwarded call failed"
	default:
		return "paymaster: unknown error"
	}
}

// Is reports whether target is a paymaster error of the same kind, which lets
// callers match against the package sentinels with errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Kind == other.Kind
}

// Unwrap exposes the host failure behind EcrecoverFailed and CallFailed.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// KindOf extracts the error kind from err, returning KindUnknown for errors
// that did not originate from the engine's closed set.
func KindOf(err error) ErrorKind {
	var pmErr *Error
	if errors.As(err, &pmErr) && pmErr != nil {
		return pmErr.Kind
	}
	return KindUnknown
}

func errDeadlineExpired(deadline, now *uint256.Int) *Error {
	return &Error{Kind: KindDeadlineExpired, Deadline: cloneOrZero(deadline), Now: cloneOrZero(now)}
}

func errTargetNotAllowed(target common.Address) *Error {
	return &Error{Kind: KindTargetNotAllowed, Target: target}
}

func errInvalidNonce(expected, provided *uint256.Int) *Error {
	return &Error{Kind: KindInvalidNonce, ExpectedNonce: cloneOrZero(expected), ProvidedNonce: cloneOrZero(provided)}
}

func errInvalidSignature(expected, recovered common.Address) *Error {
	return &Error{Kind: KindInvalidSignature, ExpectedSigner: expected, RecoveredSigner: recovered}
}

func errEcrecoverFailed(cause error) *Error {
	return &Error{Kind: KindEcrecoverFailed, Cause: cause}
}

func errCallFailed(cause error) *Error {
	return &Error{Kind: KindCallFailed, Cause: cause}
}

func cloneOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}

func decOrZero(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
