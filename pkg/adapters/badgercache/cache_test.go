package badgercache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modeldb-client/pkg/artifact"
)

func newCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCache_SetGet(t *testing.T) {
	c := newCache(t)

	_, ok, err := c.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set("k", []byte("v")))
	blob, ok, err := c.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), blob)

	require.NoError(t, c.Delete("k"))
	_, ok, err = c.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_ServesArtifactClient(t *testing.T) {
	c := newCache(t)
	store := artifact.NewMemoryStore()
	client := artifact.NewClient(store, artifact.WithCache(c))
	ctx := context.Background()

	res, err := client.Put(ctx, []byte("weights"))
	require.NoError(t, err)

	_, err = client.Get(ctx, res.Key)
	require.NoError(t, err)

	cached, ok, err := c.Get(res.Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("weights"), cached)
}
