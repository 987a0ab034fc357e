package blobstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeUnderTest exercises the Store contract shared by all backends.
func storeUnderTest(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("OpenMissing", func(t *testing.T) {
		_, err := store.Open(ctx, "missing.bin")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("PutOpenRead", func(t *testing.T) {
		data := []byte("hello blob world")
		require.NoError(t, store.Put(ctx, "greeting.bin", data))

		blob, err := store.Open(ctx, "greeting.bin")
		require.NoError(t, err)
		defer blob.Close()

		assert.Equal(t, int64(len(data)), blob.Size())

		got, err := ReadAll(ctx, blob)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("ReadAtOffset", func(t *testing.T) {
		blob, err := store.Open(ctx, "greeting.bin")
		require.NoError(t, err)
		defer blob.Close()

		buf := make([]byte, 4)
		n, err := blob.ReadAt(ctx, buf, 6)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		assert.Equal(t, "blob", string(buf))
	})

	t.Run("ReadPastEnd", func(t *testing.T) {
		blob, err := store.Open(ctx, "greeting.bin")
		require.NoError(t, err)
		defer blob.Close()

		buf := make([]byte, 4)
		_, err = blob.ReadAt(ctx, buf, blob.Size()+10)
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "greeting.bin", []byte("v2")))

		blob, err := store.Open(ctx, "greeting.bin")
		require.NoError(t, err)
		defer blob.Close()
		assert.Equal(t, int64(2), blob.Size())
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "snap/index.bin", []byte("a")))
		require.NoError(t, store.Put(ctx, "snap/meta.bin", []byte("b")))

		names, err := store.List(ctx, "snap/")
		require.NoError(t, err)
		assert.Equal(t, []string{"snap/index.bin", "snap/meta.bin"}, names)

		all, err := store.List(ctx, "")
		require.NoError(t, err)
		assert.Contains(t, all, "greeting.bin")
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "greeting.bin"))
		_, err := store.Open(ctx, "greeting.bin")
		assert.ErrorIs(t, err, ErrNotFound)

		// Deleting again is a no-op.
		require.NoError(t, store.Delete(ctx, "greeting.bin"))
	})
}

func TestMemoryStore(t *testing.T) {
	storeUnderTest(t, NewMemoryStore())
}

func TestLocalStore(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	storeUnderTest(t, store)
}

func TestLocalStoreOpenMissingIsNotFound(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open(context.Background(), "nope.bin")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLocalStoreListSkipsTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "real.bin", []byte("x")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".real.bin.tmp-123"), []byte("y"), 0o644))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"real.bin"}, names)
}

func TestMemoryStoreIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	data := []byte("original")
	require.NoError(t, store.Put(ctx, "a", data))

	// Mutating the caller's slice must not affect the stored blob.
	data[0] = 'X'

	blob, err := store.Open(ctx, "a")
	require.NoError(t, err)
	got, err := ReadAll(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got)
}
