// Package mmapfile provides a single memory-mapped fixed-size file region.
//
// A [Page] wraps one page-<index>.dat file mapped in full. It hands out
// independent byte views over the mapping, tracks a dirty bit, and exposes
// flush (msync) and close (munmap). Pages are created by
// [github.com/fastqueue/fastqueue/pkg/pagestore.Factory]; this package only
// knows about one already-open file descriptor.
package mmapfile

import (
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// Page is a mapped, fixed-size region backed by one file.
//
// A Page is safe for concurrent use by multiple goroutines: View is
// stateless beyond the slice it returns, SetDirty/IsDirty use an atomic
// flag, and Flush/Close are idempotent past the first successful call.
type Page struct {
	index     uint64
	path      string
	createdAt time.Time

	data   []byte
	dirty  atomic.Bool
	closed atomic.Bool
}

// Map opens path read-write and maps its first size bytes. The file must
// already exist and be at least size bytes long; callers (the factory) are
// responsible for creating and truncating it first.
func Map(path string, index uint64, size int) (*Page, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("mmapfile: open %s: %w", path, err)
	}

	// The mapping survives the fd close below; matches the
	// open-fd/mmap/close-fd sequencing used throughout this codebase's
	// mmap-based stores.
	data, mmapErr := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)

	closeErr := unix.Close(fd)

	if mmapErr != nil {
		return nil, fmt.Errorf("mmapfile: mmap %s: %w", path, mmapErr)
	}

	if closeErr != nil {
		_ = unix.Munmap(data)

		return nil, fmt.Errorf("mmapfile: close fd for %s: %w", path, closeErr)
	}

	return &Page{
		index:     index,
		path:      path,
		createdAt: time.Now(),
		data:      data,
	}, nil
}

// PageIndex returns the page's index within its stream.
func (p *Page) PageIndex() uint64 {
	return p.index
}

// PageFile returns the absolute path of the backing file.
func (p *Page) PageFile() string {
	return p.path
}

// CreatedAt returns when this mapping was established.
func (p *Page) CreatedAt() time.Time {
	return p.createdAt
}

// View returns a [View] over the mapping starting at the given absolute
// byte position. Multiple views may be taken concurrently; they do not
// share cursor state, but the underlying bytes are shared - a write
// through one view is visible to every other view and to disk on flush.
func (p *Page) View(position int) (View, error) {
	if p.closed.Load() {
		return View{}, fmt.Errorf("mmapfile: view on closed page %d", p.index)
	}

	if position < 0 || position > len(p.data) {
		return View{}, fmt.Errorf("mmapfile: position %d out of bounds for page %d (size %d)",
			position, p.index, len(p.data))
	}

	return View{page: p, pos: position}, nil
}

// SetDirty marks the page dirty or clean.
func (p *Page) SetDirty(dirty bool) {
	p.dirty.Store(dirty)
}

// IsDirty reports whether the page has unflushed writes.
func (p *Page) IsDirty() bool {
	return p.dirty.Load()
}

// Flush forces dirty bytes to stable storage (msync) and clears the dirty
// bit. It is a no-op when the page is already clean.
func (p *Page) Flush() error {
	if !p.dirty.Load() {
		return nil
	}

	if p.closed.Load() {
		return fmt.Errorf("mmapfile: flush on closed page %d", p.index)
	}

	if err := unix.Msync(p.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("mmapfile: msync %s: %w", p.path, err)
	}

	p.dirty.Store(false)

	return nil
}

// Close unmaps the region. After Close, View/Flush/SetDirty are invalid.
// Close is idempotent: calling it a second time returns nil.
func (p *Page) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	if err := unix.Munmap(p.data); err != nil {
		return fmt.Errorf("mmapfile: munmap %s: %w", p.path, err)
	}

	return nil
}
