// Package fs provides a small filesystem abstraction used to exercise
// crash-consistency paths in internal/config under fault injection.
//
// The main types are:
//   - [FS]: interface for the filesystem operations config needs
//   - [File]: interface for the open-file handle WriteFileAtomic writes through
//   - [Real]: production implementation using the [os] package
//   - [Chaos]: testing implementation that injects random failures
package fs

import "os"

// File is the open-file handle [Chaos.WriteFileAtomic] writes, syncs, and
// closes through on its way to the temp-file-then-rename sequence.
type File interface {
	Write(p []byte) (int, error)
	Sync() error
	Close() error
}

// FS defines the filesystem operations [internal/config] needs: reading a
// whole config file, and writing one back out crash-safely.
//
// Two implementations are provided:
//   - [Real]: production use, wraps [os] and [github.com/natefinch/atomic]
//   - [Chaos]: testing use, injects random failures into the individual
//     open/write/sync/close/rename steps WriteFileAtomic is built from
type FS interface {
	// ReadFile reads an entire file into memory. See [os.ReadFile].
	ReadFile(path string) ([]byte, error)

	// OpenFile opens a file with specified flags and permissions. See
	// [os.OpenFile]. Used by [Chaos.WriteFileAtomic] to build an atomic
	// write out of fault-injectable steps.
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// Rename moves/renames a file. See [os.Rename]. Atomic on the same
	// filesystem; this is the step that makes WriteFileAtomic crash-safe.
	Rename(oldpath, newpath string) error

	// WriteFileAtomic writes data to a temp file next to path and renames
	// it into place, so a crash mid-write never leaves a torn file behind.
	WriteFileAtomic(path string, data []byte, perm os.FileMode) error
}

// Compile-time interface check.
var _ File = (*os.File)(nil)
