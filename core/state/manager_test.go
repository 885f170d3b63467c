package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"arcadeswap/storage"
)

type record struct {
	Name  string
	Value uint64
}

func TestManagerKVRoundTripAndCommit(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)

	require.NoError(t, m.KVPut([]byte("rec"), record{Name: "a", Value: 7}))
	require.Equal(t, 0, db.Len(), "writes must stay pending before commit")

	var got record
	ok, err := m.KVGet([]byte("rec"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(7), got.Value)

	require.NoError(t, m.Commit())
	require.Equal(t, 1, db.Len())

	fresh := NewManager(db)
	ok, err = fresh.KVGet([]byte("rec"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", got.Name)
}

func TestManagerNestedSnapshots(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	require.NoError(t, m.KVPut([]byte("k"), record{Value: 1}))

	outer := m.Snapshot()
	require.NoError(t, m.KVPut([]byte("k"), record{Value: 2}))
	inner := m.Snapshot()
	require.NoError(t, m.KVPut([]byte("k"), record{Value: 3}))
	require.NoError(t, m.KVPut([]byte("other"), record{Value: 9}))

	m.RevertToSnapshot(inner)
	var got record
	_, err := m.KVGet([]byte("k"), &got)
	require.NoError(t, err)
	require.Equal(t, uint64(2), got.Value)
	ok, err := m.KVGet([]byte("other"), nil)
	require.NoError(t, err)
	require.False(t, ok)

	m.RevertToSnapshot(outer)
	_, err = m.KVGet([]byte("k"), &got)
	require.NoError(t, err)
	require.Equal(t, uint64(1), got.Value)
}

func TestManagerDeleteAndAppend(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)
	require.NoError(t, m.KVPut([]byte("gone"), record{Value: 1}))
	require.NoError(t, m.Commit())

	require.NoError(t, m.KVDelete([]byte("gone")))
	ok, err := m.KVGet([]byte("gone"), nil)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.KVAppend([]byte("idx"), []byte{1}))
	require.NoError(t, m.KVAppend([]byte("idx"), []byte{2}))
	require.NoError(t, m.KVAppend([]byte("idx"), []byte{1}))
	var list [][]byte
	require.NoError(t, m.KVGetList([]byte("idx"), &list))
	require.Len(t, list, 2)

	var empty [][]byte
	require.NoError(t, m.KVGetList([]byte("missing"), &empty))
	require.NotNil(t, empty)
	require.Len(t, empty, 0)

	require.NoError(t, m.Commit())
	require.Equal(t, 1, db.Len())
}
