package fs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChaos_NoOpPassesThrough(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")

	c := NewChaos(NewReal(), 1, ChaosConfig{RenameFailRate: 1.0})
	c.SetMode(ChaosModeNoOp)

	require.NoError(t, c.WriteFileAtomic(path, []byte("hello"), 0o644))

	data, err := c.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)
}

func TestChaos_RenameFailRateAlwaysFailsWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")

	c := NewChaos(NewReal(), 1, ChaosConfig{RenameFailRate: 1.0})

	err := c.WriteFileAtomic(path, []byte("hello"), 0o644)
	require.Error(t, err)
	require.True(t, IsChaosErr(err))

	_, statErr := NewReal().ReadFile(path)
	require.Error(t, statErr, "rename never happened, destination should not exist")

	require.Equal(t, int64(1), c.Stats().RenameFails)
}

func TestChaos_RenameFailureLeavesTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")

	c := NewChaos(NewReal(), 1, ChaosConfig{RenameFailRate: 1.0})

	require.Error(t, c.WriteFileAtomic(path, []byte("hello"), 0o644))

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "the temp file is left behind; only the rename into place failed")
}

func TestChaos_OpenFailRateAlwaysFailsWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")

	c := NewChaos(NewReal(), 2, ChaosConfig{OpenFailRate: 1.0})

	err := c.WriteFileAtomic(path, []byte("hello"), 0o644)
	require.Error(t, err)
	require.True(t, IsChaosErr(err))
	require.Equal(t, int64(1), c.Stats().OpenFails)
}

func TestChaos_WriteFailRateAlwaysFailsWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")

	c := NewChaos(NewReal(), 3, ChaosConfig{WriteFailRate: 1.0})

	err := c.WriteFileAtomic(path, []byte("hello"), 0o644)
	require.Error(t, err)
	require.Equal(t, int64(1), c.Stats().WriteFails)
}

func TestChaos_SyncFailRateAlwaysFailsWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")

	c := NewChaos(NewReal(), 4, ChaosConfig{SyncFailRate: 1.0})

	err := c.WriteFileAtomic(path, []byte("hello"), 0o644)
	require.Error(t, err)
	require.Equal(t, int64(1), c.Stats().SyncFails)
}

func TestChaos_CloseFailRateAlwaysFailsWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")

	c := NewChaos(NewReal(), 5, ChaosConfig{CloseFailRate: 1.0})

	err := c.WriteFileAtomic(path, []byte("hello"), 0o644)
	require.Error(t, err)
	require.Equal(t, int64(1), c.Stats().CloseFails)
}

func TestChaos_ZeroConfigNeverInjects(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")

	c := NewChaos(NewReal(), 6, ChaosConfig{})

	for i := 0; i < 50; i++ {
		require.NoError(t, c.WriteFileAtomic(path, []byte("hello"), 0o644))
	}

	require.Equal(t, ChaosStats{}, c.Stats())
}
