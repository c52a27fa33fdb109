package fs

import (
	"errors"
	"io/fs"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
)

// ChaosConfig controls fault injection probabilities for the steps
// [Chaos.WriteFileAtomic] is built from. Each rate is a float64 from 0.0
// (never) to 1.0 (always). The zero value disables all fault injection.
type ChaosConfig struct {
	// ReadFailRate controls how often ReadFile fails entirely.
	// Returns EACCES, EIO, EMFILE, ENFILE, or ENOTDIR.
	ReadFailRate float64

	// OpenFailRate controls how often OpenFile fails to open the temp file.
	// Returns EACCES, EIO, ENOSPC, EDQUOT, EROFS, EMFILE, ENFILE, or ENOTDIR.
	OpenFailRate float64

	// WriteFailRate controls how often a write to the open temp file fails.
	// Returns EIO, ENOSPC, EDQUOT, or EROFS.
	WriteFailRate float64

	// SyncFailRate controls how often fsync-ing the temp file fails.
	// fsync can surface delayed write errors that weren't reported during
	// Write. Returns EIO, ENOSPC, EDQUOT, or EROFS.
	SyncFailRate float64

	// CloseFailRate controls how often closing the temp file reports an
	// error. The descriptor is always closed regardless, to avoid leaks.
	// Returns EIO.
	CloseFailRate float64

	// RenameFailRate controls how often the final rename into place fails,
	// leaving the previous file at path untouched. Returns an
	// *os.LinkError with EACCES, EIO, ENOSPC, EXDEV, EROFS, or EPERM.
	RenameFailRate float64
}

// NewChaos creates a new [Chaos] filesystem wrapping the given [FS].
// The seed controls random fault injection for reproducibility.
// Panics if fs is nil.
func NewChaos(fs FS, seed int64, config ChaosConfig) *Chaos {
	if fs == nil {
		panic("fs is nil")
	}

	return &Chaos{
		fs:     fs,
		rng:    rand.New(rand.NewSource(seed)),
		config: config,
	}
}

// ChaosMode controls how [Chaos] behaves.
type ChaosMode uint8

const (
	// ChaosModeActive enables fault-rate injection.
	// This is the default mode for a new [Chaos].
	ChaosModeActive ChaosMode = iota

	// ChaosModeNoOp passes every operation directly to the underlying FS.
	ChaosModeNoOp
)

// ChaosStats contains counts of injected faults.
type ChaosStats struct {
	ReadFails   int64
	OpenFails   int64
	WriteFails  int64
	SyncFails   int64
	CloseFails  int64
	RenameFails int64
}

// ChaosError marks an error as intentionally injected by [Chaos].
//
// It wraps the underlying error so errors.Is/As continue to work, while
// [IsChaosErr] can still distinguish chaos vs real OS errors in tests.
type ChaosError struct {
	Err error
}

func (e *ChaosError) Error() string { return "chaos: " + e.Err.Error() }
func (e *ChaosError) Unwrap() error { return e.Err }

// IsChaosErr reports whether err (or any wrapped error) was injected by [Chaos].
func IsChaosErr(err error) bool {
	var injected *ChaosError

	return errors.As(err, &injected)
}

// Chaos wraps an [FS] and injects random failures into the
// open/write/sync/close/rename steps that make up [Chaos.WriteFileAtomic],
// for testing crash-consistency.
//
// Chaos never injects ENOENT (missing-path results come from the wrapped
// [FS]) and never injects EINTR (the stdlib generally retries EINTR
// internally).
type Chaos struct {
	fs     FS
	rng    *rand.Rand
	config ChaosConfig
	mode   atomic.Uint32

	rngMu sync.Mutex

	readFails   atomic.Int64
	openFails   atomic.Int64
	writeFails  atomic.Int64
	syncFails   atomic.Int64
	closeFails  atomic.Int64
	renameFails atomic.Int64
}

// SetMode updates [Chaos] behavior. Safe to call concurrently with
// filesystem operations.
func (c *Chaos) SetMode(m ChaosMode) { c.mode.Store(uint32(m)) }

// Stats returns the current fault injection counts.
func (c *Chaos) Stats() ChaosStats {
	return ChaosStats{
		ReadFails:   c.readFails.Load(),
		OpenFails:   c.openFails.Load(),
		WriteFails:  c.writeFails.Load(),
		SyncFails:   c.syncFails.Load(),
		CloseFails:  c.closeFails.Load(),
		RenameFails: c.renameFails.Load(),
	}
}

func (c *Chaos) ReadFile(path string) ([]byte, error) {
	mode := ChaosMode(c.mode.Load())
	if mode == ChaosModeNoOp {
		return c.fs.ReadFile(path)
	}

	if c.should(mode, c.config.ReadFailRate) {
		c.readFails.Add(1)

		return nil, pathError("open", path, c.pickRandom([]syscall.Errno{
			syscall.EACCES, syscall.EIO, syscall.EMFILE, syscall.ENFILE, syscall.ENOTDIR,
		}))
	}

	return c.fs.ReadFile(path)
}

func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	mode := ChaosMode(c.mode.Load())
	if mode == ChaosModeNoOp {
		f, err := c.fs.OpenFile(path, flag, perm)
		if err != nil {
			return nil, err
		}

		return &chaosFile{f: f, chaos: c, path: path}, nil
	}

	if c.should(mode, c.config.OpenFailRate) {
		c.openFails.Add(1)

		return nil, pathError("open", path, c.pickRandom([]syscall.Errno{
			syscall.EACCES, syscall.EIO, syscall.ENOSPC, syscall.EDQUOT, syscall.EROFS,
			syscall.EMFILE, syscall.ENFILE, syscall.ENOTDIR,
		}))
	}

	f, err := c.fs.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &chaosFile{f: f, chaos: c, path: path}, nil
}

func (c *Chaos) Rename(oldpath, newpath string) error {
	mode := ChaosMode(c.mode.Load())
	if mode == ChaosModeNoOp {
		return c.fs.Rename(oldpath, newpath)
	}

	if c.should(mode, c.config.RenameFailRate) {
		c.renameFails.Add(1)

		errno := c.pickRandom([]syscall.Errno{
			syscall.EACCES, syscall.EIO, syscall.ENOSPC, syscall.EXDEV, syscall.EROFS, syscall.EPERM,
		})

		// os.Rename reports failures as *os.LinkError.
		return &ChaosError{Err: &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: errno}}
	}

	return c.fs.Rename(oldpath, newpath)
}

// WriteFileAtomic writes data to a temp file next to path and renames it
// into place, going through the same fault injection as the underlying
// OpenFile, Write, Sync, Close, and Rename calls.
func (c *Chaos) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"

	f, err := c.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()

		return err
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()

		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	return c.Rename(tmp, path)
}

// should returns true with the given probability when chaos is injecting.
func (c *Chaos) should(mode ChaosMode, rate float64) bool {
	if mode != ChaosModeActive {
		return false
	}

	return c.randFloat() < rate
}

func (c *Chaos) randFloat() float64 {
	c.rngMu.Lock()
	result := c.rng.Float64()
	c.rngMu.Unlock()

	return result
}

func (c *Chaos) randIntn(n int) int {
	c.rngMu.Lock()
	result := c.rng.Intn(n)
	c.rngMu.Unlock()

	return result
}

func (c *Chaos) pickRandom(errs []syscall.Errno) syscall.Errno {
	return errs[c.randIntn(len(errs))]
}

// pathError creates an injected [*fs.PathError] wrapped in [ChaosError] so
// [IsChaosErr] can identify it while [errors.As] still works via unwrapping.
func pathError(op, path string, errno syscall.Errno) error {
	return &ChaosError{Err: &fs.PathError{Op: op, Path: path, Err: errno}}
}

// chaosFile wraps a [File] and injects faults on Write/Sync/Close.
type chaosFile struct {
	f     File
	chaos *Chaos
	path  string
}

var _ File = (*chaosFile)(nil)

func (cf *chaosFile) Write(p []byte) (int, error) {
	mode := ChaosMode(cf.chaos.mode.Load())
	if mode == ChaosModeNoOp {
		return cf.f.Write(p)
	}

	if cf.chaos.should(mode, cf.chaos.config.WriteFailRate) {
		cf.chaos.writeFails.Add(1)

		errno := cf.chaos.pickRandom([]syscall.Errno{syscall.EIO, syscall.ENOSPC, syscall.EDQUOT, syscall.EROFS})

		return 0, pathError("write", cf.path, errno)
	}

	return cf.f.Write(p)
}

func (cf *chaosFile) Sync() error {
	mode := ChaosMode(cf.chaos.mode.Load())
	if mode == ChaosModeNoOp {
		return cf.f.Sync()
	}

	if cf.chaos.should(mode, cf.chaos.config.SyncFailRate) {
		cf.chaos.syncFails.Add(1)

		errno := cf.chaos.pickRandom([]syscall.Errno{syscall.EIO, syscall.ENOSPC, syscall.EDQUOT, syscall.EROFS})

		return pathError("sync", cf.path, errno)
	}

	return cf.f.Sync()
}

func (cf *chaosFile) Close() error {
	mode := ChaosMode(cf.chaos.mode.Load())
	if mode == ChaosModeNoOp {
		return cf.f.Close()
	}

	injectClose := cf.chaos.should(mode, cf.chaos.config.CloseFailRate)

	// Always close the underlying file to avoid descriptor leaks, even when
	// returning an injected error.
	if err := cf.f.Close(); err != nil {
		return err
	}

	if injectClose {
		cf.chaos.closeFails.Add(1)

		return pathError("close", cf.path, syscall.EIO)
	}

	return nil
}

// Compile-time interface check.
var _ FS = (*Chaos)(nil)
