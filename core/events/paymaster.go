package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stylustx/core/types"
)

const (
	// TypeMetaTxExecuted is emitted once per accepted meta-transaction,
	// regardless of whether the forwarded call succeeded.
	TypeMetaTxExecuted = "paymaster.metatx.executed"
	// TypeTargetUpdated records a change of the allow-listed target.
	TypeTargetUpdated = "paymaster.target.updated"
	// TypePausedStateChanged records a pause or unpause.
	TypePausedStateChanged = "paymaster.paused.changed"
	// TypeOwnershipTransferred records an owner rotation.
	TypeOwnershipTransferred = "paymaster.ownership.transferred"
)

// MetaTxExecuted captures the outcome of a forwarded meta-transaction.
type MetaTxExecuted struct {
	User    common.Address
	Target  common.Address
	Nonce   *uint256.Int
	Success bool
}

// EventType satisfies the events.Event interface.
func (MetaTxExecuted) EventType() string { return TypeMetaTxExecuted }

// Event renders the execution payload.
func (e MetaTxExecuted) Event() *types.Event {
	nonce := "0"
	if e.Nonce != nil {
		nonce = e.Nonce.Dec()
	}
	return &types.Event{Type: TypeMetaTxExecuted, Attributes: map[string]string{
		"user":    e.User.Hex(),
		"target":  e.Target.Hex(),
		"nonce":   nonce,
		"success": strconv.FormatBool(e.Success),
	}}
}

// TargetUpdated captures a rotation of the allow-listed target.
type TargetUpdated struct {
	Old common.Address
	New common.Address
}

// EventType satisfies the events.Event interface.
func (TargetUpdated) EventType() string { return TypeTargetUpdated }

// Event renders the target rotation payload.
func (e TargetUpdated) Event() *types.Event {
	return &types.Event{Type: TypeTargetUpdated, Attributes: map[string]string{
		"oldTarget": e.Old.Hex(),
		"newTarget": e.New.Hex(),
	}}
}

// PausedStateChanged captures a pause toggle.
type PausedStateChanged struct {
	Paused bool
}

// EventType satisfies the events.Event interface.
func (PausedStateChanged) EventType() string { return TypePausedStateChanged }

// Event renders the pause payload.
func (e PausedStateChanged) Event() *types.Event {
	return &types.Event{Type: TypePausedStateChanged, Attributes: map[string]string{
		"paused": strconv.FormatBool(e.Paused),
	}}
}

// OwnershipTransferred captures an owner rotation.
type OwnershipTransferred struct {
	Previous common.Address
	New      common.Address
}

// EventType satisfies the events.Event interface.
func (OwnershipTransferred) EventType() string { return TypeOwnershipTransferred }

// Event renders the ownership payload.
func (e OwnershipTransferred) Event() *types.Event {
	return &types.Event{Type: TypeOwnershipTransferred, Attributes: map[string]string{
		"previousOwner": e.Previous.Hex(),
		"newOwner":      e.New.Hex(),
	}}
}
