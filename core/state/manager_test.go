package state

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"stylustx/storage"
)

type record struct {
	Owner  common.Address
	Paused bool
}

func TestManagerKVRoundTrip(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	var missing record
	ok, err := m.KVGet([]byte("missing"), &missing)
	require.NoError(t, err)
	require.False(t, ok)

	in := record{Owner: common.HexToAddress("0x1234"), Paused: true}
	require.NoError(t, m.KVPut([]byte("config"), &in))

	var out record
	ok, err = m.KVGet([]byte("config"), &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, in, out)

	require.NoError(t, m.KVPut([]byte("counter"), big.NewInt(42)))
	counter := new(big.Int)
	ok, err = m.KVGet([]byte("counter"), counter)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(42), counter.Int64())

	ok, err = m.KVGet([]byte("counter"), nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestManagerRejectsEmptyKey(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	require.Error(t, m.KVPut(nil, big.NewInt(1)))
	_, err := m.KVGet(nil, nil)
	require.Error(t, err)
}

func TestManagerPersistsThroughLevelDB(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	require.NoError(t, NewManager(db).KVPut([]byte("k"), big.NewInt(9)))
	db.Close()

	reopened, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer reopened.Close()
	value := new(big.Int)
	ok, err := NewManager(reopened).KVGet([]byte("k"), value)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(9), value.Int64())
}
