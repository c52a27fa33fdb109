// Package pagestore implements the mapped-page factory: a directory-per-page-stream
// manager that lazily maps page-<index>.dat files on demand, caches them
// with refcount-aware TTL eviction, and safely unmaps and deletes them.
package pagestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fastqueue/fastqueue/internal/pagecache"
	"github.com/fastqueue/fastqueue/pkg/mmapfile"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const filePrefix = "page-"
const fileSuffix = ".dat"

// deleteRetryRounds and deleteRetryPause bound how long delete_page waits
// out a transient EBUSY before giving up and logging a warning.
const (
	deleteRetryRounds = 10
	deleteRetryPause  = 200 * time.Millisecond
)

// Factory owns one directory of fixed-size page files and the cache of
// their live mappings. A Factory is safe for concurrent use.
type Factory struct {
	dir      string
	pageSize int
	ttl      time.Duration

	cache *pagecache.Cache[uint64, *mmapfile.Page]

	// creationLocks guarantees at most one concurrent map() per index: a
	// coarse mutex protects the map of per-index locks, and each per-index
	// lock is held only for the duration of that index's map creation.
	creationMu    sync.Mutex
	creationLocks map[uint64]*sync.Mutex

	log *logrus.Entry
}

// New creates a Factory rooted at dir, which is created if missing. pageSize
// must be a positive power of two.
func New(dir string, pageSize int, ttl time.Duration, log *logrus.Entry) (*Factory, error) {
	if pageSize <= 0 || pageSize&(pageSize-1) != 0 {
		return nil, fmt.Errorf("pagestore: page size %d is not a positive power of two", pageSize)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("pagestore: mkdir %s: %w", dir, err)
	}

	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Factory{
		dir:           dir,
		pageSize:      pageSize,
		ttl:           ttl,
		cache:         pagecache.New[uint64, *mmapfile.Page](pagecache.DefaultCloser(), log),
		creationLocks: make(map[uint64]*sync.Mutex),
		log:           log.WithField("page_dir", dir),
	}, nil
}

// PageSize returns the factory's fixed page size in bytes.
func (f *Factory) PageSize() int { return f.pageSize }

// PageDir returns the directory this factory manages.
func (f *Factory) PageDir() string { return f.dir }

// CacheSize returns the number of currently mapped pages.
func (f *Factory) CacheSize() int { return f.cache.Size() }

func (f *Factory) pagePath(index uint64) string {
	return filepath.Join(f.dir, filePrefix+strconv.FormatUint(index, 10)+fileSuffix)
}

// AcquirePage returns a mapped page for index, creating and mapping the
// backing file on first use. Concurrent callers for the same index that
// race on a miss converge on the same Page and the file is mapped at most
// once.
func (f *Factory) AcquirePage(index uint64) (*mmapfile.Page, error) {
	if page, ok := f.cache.Get(index); ok {
		return page, nil
	}

	lock := f.creationLock(index)
	lock.Lock()
	defer f.releaseCreationLock(index, lock)
	defer lock.Unlock()

	// Double-check: another goroutine may have mapped it while we waited.
	if page, ok := f.cache.Get(index); ok {
		return page, nil
	}

	path := f.pagePath(index)

	if err := ensureSizedFile(path, f.pageSize); err != nil {
		return nil, err
	}

	page, err := mmapfile.Map(path, index, f.pageSize)
	if err != nil {
		return nil, err
	}

	f.cache.Put(index, page, f.ttl)

	return page, nil
}

func (f *Factory) creationLock(index uint64) *sync.Mutex {
	f.creationMu.Lock()
	defer f.creationMu.Unlock()

	lock, ok := f.creationLocks[index]
	if !ok {
		lock = &sync.Mutex{}
		f.creationLocks[index] = lock
	}

	return lock
}

func (f *Factory) releaseCreationLock(index uint64, lock *sync.Mutex) {
	f.creationMu.Lock()
	defer f.creationMu.Unlock()

	if f.creationLocks[index] == lock {
		delete(f.creationLocks, index)
	}
}

func ensureSizedFile(path string, size int) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("pagestore: create %s: %w", path, err)
	}

	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("pagestore: stat %s: %w", path, err)
	}

	if info.Size() != int64(size) {
		if err := file.Truncate(int64(size)); err != nil {
			return fmt.Errorf("pagestore: truncate %s: %w", path, err)
		}
	}

	return nil
}

// ReleasePage decrements the refcount for the page at index.
func (f *Factory) ReleasePage(index uint64) {
	f.cache.Release(index)
}

// ReleaseCachedPages closes and drops every cached page regardless of
// refcount. Callers must ensure no one else is concurrently acquiring
// pages on this factory while this runs.
func (f *Factory) ReleaseCachedPages() {
	f.cache.RemoveAll()
}

// DeletePage removes index from the cache (closing its mapping if live)
// and deletes the backing file. Deletion is retried while the OS reports
// the file busy; other errors are returned immediately.
func (f *Factory) DeletePage(index uint64) error {
	f.cache.Remove(index)

	path := f.pagePath(index)

	var lastErr error

	for round := 0; round < deleteRetryRounds; round++ {
		err := unix.Unlink(path)
		if err == nil || errors.Is(err, unix.ENOENT) {
			return nil
		}

		if !isBusy(err) {
			return fmt.Errorf("pagestore: delete %s: %w", path, err)
		}

		lastErr = err

		time.Sleep(deleteRetryPause)
	}

	f.log.WithError(lastErr).WithField("page_index", index).
		Warn("pagestore: giving up deleting page after repeated EBUSY")

	return nil
}

func isBusy(err error) bool {
	return errors.Is(err, unix.EBUSY) || errors.Is(err, unix.ETXTBSY)
}

// DeletePages deletes every index in the set.
func (f *Factory) DeletePages(indexes map[uint64]struct{}) error {
	for idx := range indexes {
		if err := f.DeletePage(idx); err != nil {
			return err
		}
	}

	return nil
}

// DeleteAllPages deletes every existing backing file for this factory.
func (f *Factory) DeleteAllPages() error {
	indexes, err := f.ExistingBackFileIndexSet()
	if err != nil {
		return err
	}

	return f.DeletePages(indexes)
}

// DeletePagesBefore deletes every page whose file was last modified before
// t.
func (f *Factory) DeletePagesBefore(t time.Time) error {
	indexes, err := f.PageIndexSetBefore(t)
	if err != nil {
		return err
	}

	return f.DeletePages(indexes)
}

// DeletePagesBeforeIndex deletes every page whose index is strictly less
// than idx.
func (f *Factory) DeletePagesBeforeIndex(idx uint64) error {
	all, err := f.ExistingBackFileIndexSet()
	if err != nil {
		return err
	}

	before := make(map[uint64]struct{})

	for i := range all {
		if i < idx {
			before[i] = struct{}{}
		}
	}

	return f.DeletePages(before)
}

// ExistingBackFileIndexSet scans the page directory and returns the set of
// page indexes that currently have a backing file on disk.
func (f *Factory) ExistingBackFileIndexSet() (map[uint64]struct{}, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("pagestore: read dir %s: %w", f.dir, err)
	}

	out := make(map[uint64]struct{})

	for _, e := range entries {
		idx, ok := parsePageIndex(e.Name())
		if ok {
			out[idx] = struct{}{}
		}
	}

	return out, nil
}

// PageIndexSetBefore returns the indexes of pages whose file modtime is
// strictly before t.
func (f *Factory) PageIndexSetBefore(t time.Time) (map[uint64]struct{}, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("pagestore: read dir %s: %w", f.dir, err)
	}

	out := make(map[uint64]struct{})

	for _, e := range entries {
		idx, ok := parsePageIndex(e.Name())
		if !ok {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(t) {
			out[idx] = struct{}{}
		}
	}

	return out, nil
}

// FirstPageIndexBefore returns the largest page index whose file modtime is
// strictly before t, or -1 if none qualifies.
//
// The name is historical and, taken literally, backwards: it returns the
// newest page that is still older than t, not the first/oldest one. The
// behavior - largest qualifying index - is authoritative; see spec.md §9.
func (f *Factory) FirstPageIndexBefore(t time.Time) (int64, error) {
	indexes, err := f.PageIndexSetBefore(t)
	if err != nil {
		return -1, err
	}

	if len(indexes) == 0 {
		return -1, nil
	}

	var max uint64

	first := true

	for idx := range indexes {
		if first || idx > max {
			max = idx
			first = false
		}
	}

	return int64(max), nil
}

// PageFileLastModifiedTime returns the modtime of index's backing file.
func (f *Factory) PageFileLastModifiedTime(index uint64) (time.Time, error) {
	info, err := os.Stat(f.pagePath(index))
	if err != nil {
		return time.Time{}, fmt.Errorf("pagestore: stat page %d: %w", index, err)
	}

	return info.ModTime(), nil
}

// BackPageFileSet returns the sorted list of page indexes with a backing
// file on disk.
func (f *Factory) BackPageFileSet() ([]uint64, error) {
	set, err := f.ExistingBackFileIndexSet()
	if err != nil {
		return nil, err
	}

	out := make([]uint64, 0, len(set))
	for idx := range set {
		out = append(out, idx)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out, nil
}

// BackPageFileSize returns the total size in bytes of every page file on
// disk for this factory.
func (f *Factory) BackPageFileSize() (int64, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0, fmt.Errorf("pagestore: read dir %s: %w", f.dir, err)
	}

	var total int64

	for _, e := range entries {
		if _, ok := parsePageIndex(e.Name()); !ok {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}

		total += info.Size()
	}

	return total, nil
}

// Flush flushes every currently cached page.
func (f *Factory) Flush() error {
	for _, page := range f.cache.Values() {
		if err := page.Flush(); err != nil {
			return err
		}
	}

	return nil
}

// parsePageIndex extracts the index from a "page-<n>.dat" filename. It
// returns false for anything else found in the directory.
func parsePageIndex(name string) (uint64, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return 0, false
	}

	middle := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)

	idx, err := strconv.ParseUint(middle, 10, 64)
	if err != nil {
		return 0, false
	}

	return idx, true
}
