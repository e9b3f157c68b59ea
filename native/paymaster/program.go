package paymaster

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"stylustx/core/host"
)

var errStaticMutation = errors.New("paymaster: state-changing method in static call")

// Deploy mounts a new engine at addr on h. The engine forwards calls and
// reaches the recovery precompile as addr and reads the host's block
// timestamp.
func Deploy(h *host.Host, addr common.Address, state kvStore, opts ...Option) *Engine {
	account := h.Account(addr)
	opts = append([]Option{WithNowFunc(h.Now)}, opts...)
	engine := NewEngine(state, account, account, opts...)
	h.Deploy(addr, engine.Program())
	return engine
}

// Program adapts the engine to the host's program interface. Calls without
// calldata are plain deposits that fund forwarded value.
func (e *Engine) Program() host.Program {
	return func(call host.Call) ([]byte, error) {
		if len(call.Input) == 0 {
			return nil, nil
		}
		if len(call.Input) < 4 {
			return nil, errShortCalldata
		}
		method, err := contractABI.MethodById(call.Input[:4])
		if err != nil {
			return nil, fmt.Errorf("paymaster: %w", err)
		}
		if call.Static && !method.IsConstant() {
			return nil, errStaticMutation
		}
		if call.Value != nil && !call.Value.IsZero() && !method.IsPayable() {
			return nil, fmt.Errorf("paymaster: %s does not accept value", method.Name)
		}
		return e.Dispatch(call.Caller, call.Input)
	}
}
