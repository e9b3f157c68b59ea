package paymaster

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var errShortCalldata = errors.New("paymaster: calldata shorter than selector")

// Dispatch decodes ABI calldata, invokes the matching engine operation on
// behalf of caller and returns the ABI-encoded result. It lets the engine be
// mounted as a host program, including re-entry from forwarded calls.
func (e *Engine) Dispatch(caller common.Address, calldata []byte) ([]byte, error) {
	if len(calldata) < 4 {
		return nil, errShortCalldata
	}
	method, err := contractABI.MethodById(calldata[:4])
	if err != nil {
		return nil, fmt.Errorf("paymaster: %w", err)
	}
	args, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return nil, fmt.Errorf("paymaster: decode %s: %w", method.Name, err)
	}

	var results []interface{}
	switch method.Name {
	case "initialize":
		target, argErr := addressArg(args, 0)
		if argErr != nil {
			return nil, argErr
		}
		err = e.Initialize(caller, target)
	case "execute":
		req, argErr := metaTxFromArgs(args)
		if argErr != nil {
			return nil, argErr
		}
		var out []byte
		out, err = e.Execute(req)
		results = []interface{}{out}
	case "getNonce":
		user, argErr := addressArg(args, 0)
		if argErr != nil {
			return nil, argErr
		}
		nonce, nonceErr := e.Nonce(user)
		if nonceErr != nil {
			return nil, nonceErr
		}
		results = []interface{}{nonce.ToBig()}
	case "getAllowedTarget", "getOwner", "isPaused", "isInitialized":
		cfg, cfgErr := e.Config()
		if cfgErr != nil {
			return nil, cfgErr
		}
		results = []interface{}{configField(method.Name, cfg)}
	case "getMessageHash":
		req, argErr := metaTxFromArgs(args)
		if argErr != nil {
			return nil, argErr
		}
		results = []interface{}{[32]byte(req.Hash())}
	case "setAllowedTarget":
		target, argErr := addressArg(args, 0)
		if argErr != nil {
			return nil, argErr
		}
		err = e.SetAllowedTarget(caller, target)
	case "pause":
		err = e.Pause(caller)
	case "unpause":
		err = e.Unpause(caller)
	case "transferOwnership":
		owner, argErr := addressArg(args, 0)
		if argErr != nil {
			return nil, argErr
		}
		err = e.TransferOwnership(caller, owner)
	default:
		return nil, fmt.Errorf("paymaster: method %s not routed", method.Name)
	}
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(results...)
}

func configField(method string, cfg Config) interface{} {
	switch method {
	case "getAllowedTarget":
		return cfg.AllowedTarget
	case "getOwner":
		return cfg.Owner
	case "isPaused":
		return cfg.Paused
	default:
		return cfg.Initialized
	}
}

// metaTxFromArgs rebuilds a request from execute or getMessageHash arguments.
// The signature words are only present for execute.
func metaTxFromArgs(args []interface{}) (*MetaTx, error) {
	req := &MetaTx{}
	var err error
	if req.From, err = addressArg(args, 0); err != nil {
		return nil, err
	}
	if req.To, err = addressArg(args, 1); err != nil {
		return nil, err
	}
	if req.Value, err = uintArg(args, 2); err != nil {
		return nil, err
	}
	if req.Data, err = bytesArg(args, 3); err != nil {
		return nil, err
	}
	if req.Nonce, err = uintArg(args, 4); err != nil {
		return nil, err
	}
	if req.Deadline, err = uintArg(args, 5); err != nil {
		return nil, err
	}
	if len(args) == 6 {
		return req, nil
	}
	if req.Signature.V, err = uint8Arg(args, 6); err != nil {
		return nil, err
	}
	if req.Signature.R, err = hashArg(args, 7); err != nil {
		return nil, err
	}
	if req.Signature.S, err = hashArg(args, 8); err != nil {
		return nil, err
	}
	return req, nil
}
