package paymaster

import (
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stylustx/core/events"
)

// Initialize performs the one-time setup. The caller becomes the owner and
// target becomes the only destination meta-transactions may reach.
func (e *Engine) Initialize(caller, target common.Address) error {
	if e == nil || e.state == nil {
		return errStateUnavailable
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Initialized {
		return &Error{Kind: KindAlreadyInitialized}
	}
	cfg = Config{
		Owner:         caller,
		AllowedTarget: target,
		Initialized:   true,
		Paused:        false,
	}
	if err := e.storeConfig(cfg); err != nil {
		return err
	}
	e.logger.Info("paymaster initialized",
		slog.String("owner", caller.Hex()),
		slog.String("target", target.Hex()))
	return nil
}

// SetAllowedTarget replaces the allow-listed target.
func (e *Engine) SetAllowedTarget(caller, target common.Address) error {
	cfg, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	old := cfg.AllowedTarget
	cfg.AllowedTarget = target
	if err := e.storeConfig(cfg); err != nil {
		return err
	}
	e.emitter.Emit(events.TargetUpdated{Old: old, New: target})
	e.logger.Info("allowed target updated",
		slog.String("old", old.Hex()),
		slog.String("new", target.Hex()))
	return nil
}

// Pause stops Execute from accepting requests.
func (e *Engine) Pause(caller common.Address) error {
	return e.setPaused(caller, true)
}

// Unpause resumes Execute.
func (e *Engine) Unpause(caller common.Address) error {
	return e.setPaused(caller, false)
}

func (e *Engine) setPaused(caller common.Address, paused bool) error {
	cfg, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	cfg.Paused = paused
	if err := e.storeConfig(cfg); err != nil {
		return err
	}
	e.emitter.Emit(events.PausedStateChanged{Paused: paused})
	e.logger.Info("paused state changed", slog.Bool("paused", paused))
	return nil
}

// TransferOwnership hands the admin role to newOwner.
func (e *Engine) TransferOwnership(caller, newOwner common.Address) error {
	cfg, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	previous := cfg.Owner
	cfg.Owner = newOwner
	if err := e.storeConfig(cfg); err != nil {
		return err
	}
	e.emitter.Emit(events.OwnershipTransferred{Previous: previous, New: newOwner})
	e.logger.Info("ownership transferred",
		slog.String("previous", previous.Hex()),
		slog.String("new", newOwner.Hex()))
	return nil
}

func (e *Engine) requireOwner(caller common.Address) (Config, error) {
	if e == nil || e.state == nil {
		return Config{}, errStateUnavailable
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return Config{}, err
	}
	if !cfg.Initialized {
		return Config{}, &Error{Kind: KindNotInitialized}
	}
	if caller != cfg.Owner {
		return Config{}, &Error{Kind: KindNotOwner}
	}
	return cfg, nil
}

// Nonce returns the next nonce Execute expects from user.
func (e *Engine) Nonce(user common.Address) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errStateUnavailable
	}
	return e.loadNonce(user)
}

// Config returns a snapshot of the configuration aggregate.
func (e *Engine) Config() (Config, error) {
	if e == nil || e.state == nil {
		return Config{}, errStateUnavailable
	}
	return e.loadConfig()
}

// AllowedTarget returns the allow-listed target.
func (e *Engine) AllowedTarget() (common.Address, error) {
	cfg, err := e.Config()
	return cfg.AllowedTarget, err
}

// Owner returns the current owner.
func (e *Engine) Owner() (common.Address, error) {
	cfg, err := e.Config()
	return cfg.Owner, err
}

// IsPaused reports whether Execute is currently rejecting requests.
func (e *Engine) IsPaused() (bool, error) {
	cfg, err := e.Config()
	return cfg.Paused, err
}

// IsInitialized reports whether Initialize has run.
func (e *Engine) IsInitialized() (bool, error) {
	cfg, err := e.Config()
	return cfg.Initialized, err
}
