package paymaster

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stylustx/core/events"
)

// Forwarder performs the outbound call to the allow-listed target. The host
// is expected to forward all remaining gas and enforce its own ceiling.
type Forwarder interface {
	Call(to common.Address, value *uint256.Int, data []byte) ([]byte, error)
}

// Recoverer issues read-only calls, used to reach the recovery precompile.
type Recoverer interface {
	StaticCall(to common.Address, input []byte) ([]byte, error)
}

// Metrics receives execution outcomes for observability.
type Metrics interface {
	RecordExecution(success bool)
	RecordRejection(kind string)
}

var (
	errStateUnavailable = errors.New("paymaster: state unavailable")
	errRequestRequired  = errors.New("paymaster: request required")
	errNoForwarder      = errors.New("paymaster: no forwarder configured")
	errNoRecoverer      = errors.New("paymaster: no recoverer configured")
)

// Engine authorizes and forwards meta-transactions. It holds no locks: the
// host serializes top-level invocations, and the only reentrancy defence is
// that the nonce advance is committed before the forwarded call is made.
type Engine struct {
	state     kvStore
	forwarder Forwarder
	recoverer Recoverer
	emitter   events.Emitter
	metrics   Metrics
	logger    *slog.Logger
	nowFn     func() int64
}

// Option customises an Engine.
type Option func(*Engine)

// WithEmitter routes engine events to the provided emitter.
func WithEmitter(emitter events.Emitter) Option {
	return func(e *Engine) {
		if emitter != nil {
			e.emitter = emitter
		}
	}
}

// WithLogger overrides the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records execution outcomes on the supplied sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithNowFunc overrides the clock used for deadline checks.
func WithNowFunc(now func() int64) Option {
	return func(e *Engine) {
		e.SetNowFunc(now)
	}
}

// NewEngine constructs an engine over the provided state and host capabilities.
func NewEngine(state kvStore, forwarder Forwarder, recoverer Recoverer, opts ...Option) *Engine {
	e := &Engine{
		state:     state,
		forwarder: forwarder,
		recoverer: recoverer,
		emitter:   events.NoopEmitter{},
		logger:    slog.Default(),
		nowFn:     func() int64 { return time.Now().Unix() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.logger = e.logger.With(slog.String("component", "paymaster"))
	return e
}

// SetNowFunc overrides the wall clock used for deadline checks. Primarily
// leveraged in tests and by hosts that supply a block timestamp.
func (e *Engine) SetNowFunc(now func() int64) {
	if e == nil {
		return
	}
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() *uint256.Int {
	ts := e.nowFn()
	if ts < 0 {
		ts = 0
	}
	return uint256.NewInt(uint64(ts))
}

// Execute authorizes req and forwards its payload to the target, returning the
// target's raw output. Checks run in a fixed order: initialization, pause,
// deadline and target, then the nonce, then the signature. Once the nonce has
// been consumed a failing forwarded call still reports CallFailed but the
// nonce stays spent.
func (e *Engine) Execute(req *MetaTx) ([]byte, error) {
	if e == nil || e.state == nil {
		return nil, errStateUnavailable
	}
	if req == nil {
		return nil, errRequestRequired
	}
	tx := req.normalized()

	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	if err := e.authorize(cfg, tx); err != nil {
		return nil, e.reject(tx, err)
	}

	previous, err := e.consumeNonce(tx.From, tx.Nonce)
	if err != nil {
		return nil, e.reject(tx, err)
	}

	if err := e.verifySigner(tx); err != nil {
		// The recovery call is read-only, so restoring the counter here
		// cannot race with a reentrant submission.
		if restoreErr := e.storeNonce(tx.From, previous); restoreErr != nil {
			return nil, errors.Join(err, restoreErr)
		}
		return nil, e.reject(tx, err)
	}

	return e.forward(tx)
}

// authorize runs the gates that must pass before the nonce table is touched.
func (e *Engine) authorize(cfg Config, tx *MetaTx) error {
	if !cfg.Initialized {
		return &Error{Kind: KindNotInitialized}
	}
	if cfg.Paused {
		return &Error{Kind: KindContractPaused}
	}
	if now := e.now(); now.Gt(tx.Deadline) {
		return errDeadlineExpired(tx.Deadline, now)
	}
	if tx.To != cfg.AllowedTarget {
		return errTargetNotAllowed(tx.To)
	}
	return nil
}

// consumeNonce checks the provided nonce against the stored counter and
// commits the increment. It returns the counter value prior to the increment.
func (e *Engine) consumeNonce(from common.Address, provided *uint256.Int) (*uint256.Int, error) {
	expected, err := e.loadNonce(from)
	if err != nil {
		return nil, err
	}
	if !expected.Eq(provided) {
		return nil, errInvalidNonce(expected, provided)
	}
	next, overflow := new(uint256.Int).AddOverflow(expected, uint256.NewInt(1))
	if overflow {
		return nil, fmt.Errorf("paymaster: nonce space exhausted for %s", from.Hex())
	}
	if err := e.storeNonce(from, next); err != nil {
		return nil, err
	}
	return expected, nil
}

func (e *Engine) verifySigner(tx *MetaTx) error {
	recovered, err := e.recoverSigner(tx.Hash(), tx.Signature)
	if err != nil {
		return err
	}
	if recovered != tx.From {
		return errInvalidSignature(tx.From, recovered)
	}
	return nil
}

func (e *Engine) forward(tx *MetaTx) ([]byte, error) {
	var (
		out     []byte
		callErr error
	)
	if e.forwarder == nil {
		callErr = errNoForwarder
	} else {
		out, callErr = e.forwarder.Call(tx.To, tx.Value, tx.Data)
	}
	success := callErr == nil
	e.emitter.Emit(events.MetaTxExecuted{
		User:    tx.From,
		Target:  tx.To,
		Nonce:   tx.Nonce.Clone(),
		Success: success,
	})
	if e.metrics != nil {
		e.metrics.RecordExecution(success)
	}
	if !success {
		e.logger.Warn("forwarded call failed",
			slog.String("user", tx.From.Hex()),
			slog.String("target", tx.To.Hex()),
			slog.String("nonce", tx.Nonce.Dec()),
			slog.Any("error", callErr))
		return nil, errCallFailed(callErr)
	}
	e.logger.Debug("meta-transaction executed",
		slog.String("user", tx.From.Hex()),
		slog.String("target", tx.To.Hex()),
		slog.String("nonce", tx.Nonce.Dec()))
	return out, nil
}

func (e *Engine) reject(tx *MetaTx, err error) error {
	kind := KindOf(err)
	if e.metrics != nil {
		e.metrics.RecordRejection(kind.String())
	}
	if kind == KindUnknown {
		e.logger.Error("meta-transaction processing failed",
			slog.String("user", tx.From.Hex()),
			slog.Any("error", err))
		return err
	}
	e.logger.Debug("meta-transaction rejected",
		slog.String("user", tx.From.Hex()),
		slog.String("kind", kind.String()),
		slog.String("reason", err.Error()))
	return err
}

// normalized returns a shallow copy with every integer field populated.
func (tx *MetaTx) normalized() *MetaTx {
	out := *tx
	out.Value = orZero(tx.Value).Clone()
	out.Nonce = orZero(tx.Nonce).Clone()
	out.Deadline = orZero(tx.Deadline).Clone()
	return &out
}
