package host

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// MaxCallDepth bounds nested calls the same way the EVM does.
const MaxCallDepth = 1024

var (
	ErrInsufficientBalance = errors.New("host: insufficient balance for transfer")
	ErrDepthExceeded       = errors.New("host: max call depth exceeded")
	ErrStaticValue         = errors.New("host: value transfer in static call")
	ErrUnknownAccount      = errors.New("host: no code at address")
)

// Call describes a single invocation delivered to a Program.
type Call struct {
	Caller common.Address
	Self   common.Address
	Value  *uint256.Int
	Input  []byte
	Static bool
}

// Program is code deployed at an address. Programs reach other accounts
// through Host.Account(call.Self).
type Program func(call Call) ([]byte, error)

// Precompile is a native contract reachable at a fixed address.
type Precompile interface {
	Run(input []byte) ([]byte, error)
}

// Host is an in-process execution environment: it owns balances, deployed
// programs, precompiles and the block timestamp. Top-level submissions are
// serialized; calls made by a running program re-enter without locking.
type Host struct {
	submitMu sync.Mutex

	mu          sync.RWMutex
	balances    map[common.Address]*uint256.Int
	programs    map[common.Address]Program
	precompiles map[common.Address]Precompile
	nowFn       func() int64

	depth int
}

// New constructs a host with the standard recovery precompile installed.
func New() *Host {
	h := &Host{
		balances:    make(map[common.Address]*uint256.Int),
		programs:    make(map[common.Address]Program),
		precompiles: make(map[common.Address]Precompile),
		nowFn:       func() int64 { return time.Now().Unix() },
	}
	h.precompiles[EcrecoverAddress] = Ecrecover{}
	return h
}

// SetNowFunc overrides the block timestamp source.
func (h *Host) SetNowFunc(now func() int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	h.nowFn = now
}

// Now returns the current block timestamp.
func (h *Host) Now() int64 {
	h.mu.RLock()
	now := h.nowFn
	h.mu.RUnlock()
	return now()
}

// Deploy installs program at addr, replacing any existing code.
func (h *Host) Deploy(addr common.Address, program Program) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if program == nil {
		delete(h.programs, addr)
		return
	}
	h.programs[addr] = program
}

// HasCode reports whether a program or precompile lives at addr.
func (h *Host) HasCode(addr common.Address) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, program := h.programs[addr]
	_, native := h.precompiles[addr]
	return program || native
}

// Balance returns a copy of addr's balance.
func (h *Host) Balance(addr common.Address) *uint256.Int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if bal, ok := h.balances[addr]; ok {
		return bal.Clone()
	}
	return new(uint256.Int)
}

// Credit mints amount into addr's balance.
func (h *Host) Credit(addr common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	current := h.balanceLocked(addr)
	next, overflow := new(uint256.Int).AddOverflow(current, amount)
	if overflow {
		return fmt.Errorf("host: balance overflow for %s", addr.Hex())
	}
	h.balances[addr] = next
	return nil
}

// Submit runs a top-level transaction from an externally owned account.
// Submissions are processed one at a time.
func (h *Host) Submit(from, to common.Address, value *uint256.Int, data []byte) ([]byte, error) {
	h.submitMu.Lock()
	defer h.submitMu.Unlock()
	return h.call(from, to, value, data, false)
}

// View runs fn in the same serialized section as Submit. Read-only work that
// reaches programs or precompiles through an Account handle, or that must see
// state between submissions, goes through View.
func (h *Host) View(fn func() error) error {
	h.submitMu.Lock()
	defer h.submitMu.Unlock()
	return fn()
}

// Account returns a handle that issues calls with addr as the caller. It is
// how running programs reach other accounts and precompiles.
func (h *Host) Account(addr common.Address) *Account {
	return &Account{host: h, addr: addr}
}

func (h *Host) call(from, to common.Address, value *uint256.Int, data []byte, static bool) ([]byte, error) {
	if value == nil {
		value = new(uint256.Int)
	}
	if static && !value.IsZero() {
		return nil, ErrStaticValue
	}
	if h.depth >= MaxCallDepth {
		return nil, ErrDepthExceeded
	}
	h.depth++
	defer func() { h.depth-- }()

	h.mu.RLock()
	native, isNative := h.precompiles[to]
	program, isProgram := h.programs[to]
	h.mu.RUnlock()

	if err := h.transfer(from, to, value); err != nil {
		return nil, err
	}
	if isNative {
		return native.Run(data)
	}
	if !isProgram {
		return nil, nil
	}
	out, err := program(Call{
		Caller: from,
		Self:   to,
		Value:  value.Clone(),
		Input:  append([]byte(nil), data...),
		Static: static,
	})
	if err != nil {
		if refundErr := h.transfer(to, from, value); refundErr != nil {
			return nil, errors.Join(err, refundErr)
		}
		return out, err
	}
	return out, nil
}

func (h *Host) transfer(from, to common.Address, value *uint256.Int) error {
	if value.IsZero() || from == to {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	src := h.balanceLocked(from)
	if src.Lt(value) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), src.Dec(), value.Dec())
	}
	h.balances[from] = new(uint256.Int).Sub(src, value)
	h.balances[to] = new(uint256.Int).Add(h.balanceLocked(to), value)
	return nil
}

func (h *Host) balanceLocked(addr common.Address) *uint256.Int {
	if bal, ok := h.balances[addr]; ok {
		return bal
	}
	return new(uint256.Int)
}

// Account issues calls on behalf of a fixed address. It must only be used from
// a running program or inside View.
type Account struct {
	host *Host
	addr common.Address
}

// Address returns the caller address used by the handle.
func (a *Account) Address() common.Address { return a.addr }

// Call forwards value and data to the account at to.
func (a *Account) Call(to common.Address, value *uint256.Int, data []byte) ([]byte, error) {
	return a.host.call(a.addr, to, value, data, false)
}

// StaticCall performs a read-only call.
func (a *Account) StaticCall(to common.Address, input []byte) ([]byte, error) {
	return a.host.call(a.addr, to, nil, input, true)
}
