package kvstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiio/kvstore"
)

func TestMemoryGetSetRemoveClear(t *testing.T) {
	ctx := context.Background()
	m := kvstore.NewMemory()

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "k", "v"))
	v, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, m.Remove(ctx, "k"))
	_, ok, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "a", "1"))
	require.NoError(t, m.Clear(ctx))
	assert.Empty(t, m.Snapshot())
}

func TestMemoryPersistIsNoop(t *testing.T) {
	m := kvstore.NewMemory()
	assert.NoError(t, m.Persist(context.Background()))
}

func TestFileBuffersUntilPersist(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	f, err := kvstore.NewFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Set(ctx, "k", "v"))

	reopened, err := kvstore.NewFile(path)
	require.NoError(t, err)
	_, ok, err := reopened.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "unpersisted write must not be visible on disk yet")

	require.NoError(t, f.Persist(ctx))

	reopened2, err := kvstore.NewFile(path)
	require.NoError(t, err)
	v, ok, err := reopened2.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestFileNewFileToleratesMissingPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	f, err := kvstore.NewFile(path)
	require.NoError(t, err)
	_, ok, err := f.Get(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileClearRemovesAllKeys(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")
	f, err := kvstore.NewFile(path)
	require.NoError(t, err)

	require.NoError(t, f.Set(ctx, "a", "1"))
	require.NoError(t, f.Set(ctx, "b", "2"))
	require.NoError(t, f.Clear(ctx))
	require.NoError(t, f.Persist(ctx))

	reopened, err := kvstore.NewFile(path)
	require.NoError(t, err)
	_, ok, err := reopened.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}
