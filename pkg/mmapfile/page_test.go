package mmapfile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fastqueue/fastqueue/pkg/mmapfile"
	"github.com/stretchr/testify/require"
)

func createSizedFile(t *testing.T, size int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "page-0.dat")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(int64(size)))
	require.NoError(t, f.Close())

	return path
}

func TestPage_WriteReadRoundTrip(t *testing.T) {
	path := createSizedFile(t, 4096)

	page, err := mmapfile.Map(path, 0, 4096)
	require.NoError(t, err)

	t.Cleanup(func() { _ = page.Close() })

	view, err := page.View(100)
	require.NoError(t, err)

	require.NoError(t, view.WriteAt([]byte("hello")))
	page.SetDirty(true)

	readBack, err := view.ReadAt(5)
	require.NoError(t, err)
	require.Equal(t, "hello", string(readBack))
	require.True(t, page.IsDirty())
}

func TestPage_FlushClearsDirty(t *testing.T) {
	path := createSizedFile(t, 4096)

	page, err := mmapfile.Map(path, 0, 4096)
	require.NoError(t, err)

	t.Cleanup(func() { _ = page.Close() })

	page.SetDirty(true)
	require.NoError(t, page.Flush())
	require.False(t, page.IsDirty())

	// Idempotent when already clean.
	require.NoError(t, page.Flush())
}

func TestPage_PersistsAcrossRemap(t *testing.T) {
	path := createSizedFile(t, 4096)

	page, err := mmapfile.Map(path, 0, 4096)
	require.NoError(t, err)

	view, err := page.View(0)
	require.NoError(t, err)
	require.NoError(t, view.PutUint64(424242))
	require.NoError(t, page.Flush())
	require.NoError(t, page.Close())

	page2, err := mmapfile.Map(path, 0, 4096)
	require.NoError(t, err)

	t.Cleanup(func() { _ = page2.Close() })

	view2, err := page2.View(0)
	require.NoError(t, err)

	v, err := view2.Uint64()
	require.NoError(t, err)
	require.Equal(t, uint64(424242), v)
}

func TestPage_CloseIsIdempotentAndDisablesOps(t *testing.T) {
	path := createSizedFile(t, 4096)

	page, err := mmapfile.Map(path, 0, 4096)
	require.NoError(t, err)

	require.NoError(t, page.Close())
	require.NoError(t, page.Close())

	_, err = page.View(0)
	require.Error(t, err)
}

func TestPage_ViewOutOfBounds(t *testing.T) {
	path := createSizedFile(t, 4096)

	page, err := mmapfile.Map(path, 0, 4096)
	require.NoError(t, err)

	t.Cleanup(func() { _ = page.Close() })

	_, err = page.View(4097)
	require.Error(t, err)

	view, err := page.View(4090)
	require.NoError(t, err)

	_, err = view.ReadAt(100)
	require.Error(t, err)

	err = view.WriteAt(make([]byte, 100))
	require.Error(t, err)
}

func TestPage_IndependentViewsShareUnderlyingBytes(t *testing.T) {
	path := createSizedFile(t, 4096)

	page, err := mmapfile.Map(path, 0, 4096)
	require.NoError(t, err)

	t.Cleanup(func() { _ = page.Close() })

	viewA, err := page.View(0)
	require.NoError(t, err)

	viewB, err := page.View(0)
	require.NoError(t, err)

	require.NoError(t, viewA.PutUint64(9))

	got, err := viewB.Uint64()
	require.NoError(t, err)
	require.Equal(t, uint64(9), got)
}
