package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ssargent/geotree/pkg/storage"
)

func TestFileBackendWriteReadRoundTrip(t *testing.T) {
	backend, err := storage.NewFileBackend(t.TempDir(), false)
	require.NoError(t, err)
	ctx := context.Background()

	h, err := backend.Open(ctx, "t/aa/bb")
	require.NoError(t, err)
	defer h.Close()

	payload := []byte("tree bytes go here")
	require.NoError(t, storage.WriteFull(h, payload))

	got, err := storage.ReadFull(h)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestFileBackendCompressedRoundTrip(t *testing.T) {
	backend, err := storage.NewFileBackend(t.TempDir(), true)
	require.NoError(t, err)
	ctx := context.Background()

	h, err := backend.Open(ctx, "t/cc/dd")
	require.NoError(t, err)
	defer h.Close()

	payload := []byte("a payload long enough to be worth compressing, repeated. a payload long enough to be worth compressing, repeated.")
	require.NoError(t, storage.WriteFull(h, payload))

	got, err := storage.ReadFull(h)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestFileBackendRemove(t *testing.T) {
	backend, err := storage.NewFileBackend(t.TempDir(), false)
	require.NoError(t, err)
	ctx := context.Background()

	h, err := backend.Open(ctx, "t/ee/ff")
	require.NoError(t, err)
	require.NoError(t, storage.WriteFull(h, []byte("x")))
	require.NoError(t, h.Close())

	require.NoError(t, backend.Remove(ctx, "t/ee/ff"))
	// Removing again is a no-op: Remove ignores a file that no longer exists.
	require.NoError(t, backend.Remove(ctx, "t/ee/ff"))
}

func TestTreePathLayout(t *testing.T) {
	got := storage.TreePath(1)
	want := "t/00/00/00/00/00/00/00/01"
	require.Equal(t, want, got)
}

func TestTreePathDistinctForDistinctIDs(t *testing.T) {
	require.NotEqual(t, storage.TreePath(1), storage.TreePath(2))
}
