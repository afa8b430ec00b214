package storage

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryInsertGetRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	existingLen, err := m.Insert(ctx, "mod-a", "k1", []byte("v1"))
	require.NoError(t, err)
	assert.Equal(t, 0, existingLen)

	got, ok, err := m.Get(ctx, "mod-a", "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got)
}

func TestMemoryInsertReturnsPriorLength(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.Insert(ctx, "mod-a", "k1", []byte("abc"))
	require.NoError(t, err)

	existingLen, err := m.Insert(ctx, "mod-a", "k1", []byte("xy"))
	require.NoError(t, err)
	assert.Equal(t, 3, existingLen)
}

func TestMemoryGetMissingKey(t *testing.T) {
	m := NewMemory()
	_, ok, err := m.Get(context.Background(), "mod-a", "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.Insert(ctx, "mod-a", "k1", []byte("value"))
	require.NoError(t, err)

	deletedLen, ok, err := m.Delete(ctx, "mod-a", "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, deletedLen)

	_, ok, err = m.Get(ctx, "mod-a", "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryDeleteMissingKey(t *testing.T) {
	m := NewMemory()
	_, ok, err := m.Delete(context.Background(), "mod-a", "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryListKeys(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, _ = m.Insert(ctx, "mod-a", "k1", []byte("v"))
	_, _ = m.Insert(ctx, "mod-a", "k2", []byte("v"))
	_, _ = m.Insert(ctx, "mod-b", "k3", []byte("v"))

	keys, err := m.ListKeys(ctx, "mod-a")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"k1", "k2"}, keys)
}

func TestMemoryGetNamespaceByteSize(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, _ = m.Insert(ctx, "mod-a", "k1", []byte("val1")) // "k1"(2) + "val1"(4) = 6
	_, _ = m.Insert(ctx, "mod-a", "k2", []byte("v"))     // "k2"(2) + "v"(1) = 3

	size, err := m.GetNamespaceByteSize(ctx, "mod-a")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), size)
}

func TestMemoryIsNotPersistent(t *testing.T) {
	assert.False(t, NewMemory().IsPersistent())
}
