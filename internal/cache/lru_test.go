package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUSetGetRoundTrip(t *testing.T) {
	c := NewLRU(8)
	ctx := context.Background()

	c.Set(ctx, "mod-a", "k1", []byte("v1"))
	got, ok := c.Get(ctx, "mod-a", "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got)
}

func TestLRUNamespacesDoNotCollide(t *testing.T) {
	c := NewLRU(8)
	ctx := context.Background()

	c.Set(ctx, "mod-a", "k1", []byte("a-value"))
	c.Set(ctx, "mod-b", "k1", []byte("b-value"))

	got, ok := c.Get(ctx, "mod-a", "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("a-value"), got)

	got, ok = c.Get(ctx, "mod-b", "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("b-value"), got)
}

func TestLRUDelete(t *testing.T) {
	c := NewLRU(8)
	ctx := context.Background()

	c.Set(ctx, "mod-a", "k1", []byte("v1"))
	c.Delete(ctx, "mod-a", "k1")

	_, ok := c.Get(ctx, "mod-a", "k1")
	assert.False(t, ok)
}

func TestLRUMissOnUnknownKey(t *testing.T) {
	c := NewLRU(8)
	_, ok := c.Get(context.Background(), "mod-a", "nope")
	assert.False(t, ok)
}

func TestLRUSetCopiesValue(t *testing.T) {
	c := NewLRU(8)
	ctx := context.Background()

	value := []byte("original")
	c.Set(ctx, "mod-a", "k1", value)
	value[0] = 'X'

	got, ok := c.Get(ctx, "mod-a", "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("original"), got, "mutating the caller's slice after Set must not affect the stored copy")
}

func TestDisabledCacheAlwaysMisses(t *testing.T) {
	var d Disabled
	ctx := context.Background()

	d.Set(ctx, "mod-a", "k1", []byte("v1"))
	_, ok := d.Get(ctx, "mod-a", "k1")
	assert.False(t, ok)
}
