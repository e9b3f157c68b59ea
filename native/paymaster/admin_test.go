package paymaster

import (
	"testing"

	"github.com/stretchr/testify/require"

	"stylustx/core/events"
)

func TestInitializeOnce(t *testing.T) {
	f := newFixture(t)

	initialized, err := f.engine.IsInitialized()
	require.NoError(t, err)
	require.False(t, initialized)

	require.NoError(t, f.engine.Initialize(ownerAddr, targetAddr))
	cfg, err := f.engine.Config()
	require.NoError(t, err)
	require.Equal(t, Config{Owner: ownerAddr, AllowedTarget: targetAddr, Initialized: true}, cfg)

	err = f.engine.Initialize(otherAddr, otherAddr)
	require.ErrorIs(t, err, ErrAlreadyInitialized)

	owner, err := f.engine.Owner()
	require.NoError(t, err)
	require.Equal(t, ownerAddr, owner)
	require.Zero(t, f.log.Len(), "initialize does not emit events")
}

func TestAdminRequiresInitialization(t *testing.T) {
	f := newFixture(t)

	ops := map[string]func() error{
		"setAllowedTarget":  func() error { return f.engine.SetAllowedTarget(ownerAddr, otherAddr) },
		"pause":             func() error { return f.engine.Pause(ownerAddr) },
		"unpause":           func() error { return f.engine.Unpause(ownerAddr) },
		"transferOwnership": func() error { return f.engine.TransferOwnership(ownerAddr, otherAddr) },
	}
	for name, op := range ops {
		if err := op(); KindOf(err) != KindNotInitialized {
			t.Fatalf("%s: expected NotInitialized, got %v", name, err)
		}
	}
	require.Zero(t, f.log.Len())
}

func TestAdminRequiresOwner(t *testing.T) {
	f := newInitializedFixture(t)

	ops := map[string]func() error{
		"setAllowedTarget":  func() error { return f.engine.SetAllowedTarget(otherAddr, otherAddr) },
		"pause":             func() error { return f.engine.Pause(otherAddr) },
		"unpause":           func() error { return f.engine.Unpause(otherAddr) },
		"transferOwnership": func() error { return f.engine.TransferOwnership(otherAddr, otherAddr) },
	}
	for name, op := range ops {
		if err := op(); KindOf(err) != KindNotOwner {
			t.Fatalf("%s: expected NotOwner, got %v", name, err)
		}
	}

	cfg, err := f.engine.Config()
	require.NoError(t, err)
	require.Equal(t, ownerAddr, cfg.Owner)
	require.Equal(t, targetAddr, cfg.AllowedTarget)
	require.False(t, cfg.Paused)
	require.Zero(t, f.log.Len())
}

func TestSetAllowedTargetEmitsEvent(t *testing.T) {
	f := newInitializedFixture(t)

	require.NoError(t, f.engine.SetAllowedTarget(ownerAddr, otherAddr))
	target, err := f.engine.AllowedTarget()
	require.NoError(t, err)
	require.Equal(t, otherAddr, target)

	updated := f.log.Filter(events.TypeTargetUpdated)
	require.Len(t, updated, 1)
	require.Equal(t, targetAddr.Hex(), updated[0].Attributes["oldTarget"])
	require.Equal(t, otherAddr.Hex(), updated[0].Attributes["newTarget"])

	key, user := newKey(t)
	_, err = f.engine.Execute(newRequest(t, key, user, 0, nil))
	require.ErrorIs(t, err, ErrTargetNotAllowed)
}

func TestPauseAndUnpause(t *testing.T) {
	f := newInitializedFixture(t)
	key, user := newKey(t)

	require.NoError(t, f.engine.Pause(ownerAddr))
	paused, err := f.engine.IsPaused()
	require.NoError(t, err)
	require.True(t, paused)

	_, err = f.engine.Execute(newRequest(t, key, user, 0, nil))
	require.ErrorIs(t, err, ErrContractPaused)
	require.Equal(t, uint64(0), f.nonce(t, user))

	// Repeating a state change still emits.
	require.NoError(t, f.engine.Pause(ownerAddr))
	require.NoError(t, f.engine.Unpause(ownerAddr))

	changes := f.log.Filter(events.TypePausedStateChanged)
	require.Len(t, changes, 3)
	require.Equal(t, "true", changes[0].Attributes["paused"])
	require.Equal(t, "true", changes[1].Attributes["paused"])
	require.Equal(t, "false", changes[2].Attributes["paused"])

	_, err = f.engine.Execute(newRequest(t, key, user, 0, nil))
	require.NoError(t, err)
}

func TestTransferOwnership(t *testing.T) {
	f := newInitializedFixture(t)

	require.NoError(t, f.engine.TransferOwnership(ownerAddr, otherAddr))
	transferred := f.log.Filter(events.TypeOwnershipTransferred)
	require.Len(t, transferred, 1)
	require.Equal(t, ownerAddr.Hex(), transferred[0].Attributes["previousOwner"])
	require.Equal(t, otherAddr.Hex(), transferred[0].Attributes["newOwner"])

	require.ErrorIs(t, f.engine.Pause(ownerAddr), ErrNotOwner)
	require.NoError(t, f.engine.Pause(otherAddr))
}
