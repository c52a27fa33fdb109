// Package fastarray implements a paged, variable-length record store: a
// persistent array where append assigns the next monotonically increasing
// u64 id and get resolves an id to its bytes via three parallel page
// streams (index, metadata, data) managed by
// [github.com/fastqueue/fastqueue/pkg/pagestore.Factory].
package fastarray

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fastqueue/fastqueue/internal/ringid"
	"github.com/fastqueue/fastqueue/pkg/mmapfile"
	"github.com/fastqueue/fastqueue/pkg/pagearith"
	"github.com/fastqueue/fastqueue/pkg/pagestore"
	"github.com/sirupsen/logrus"
)

// Options configures a new or reopened [Array].
type Options struct {
	// Dir is the array's root directory; index/, meta/ and data/
	// subdirectories are created under it.
	Dir string
	// DataPageSize is the data stream's page size in bytes. Must be a
	// power of two, >= [MinDataPageSize]. Defaults to [DefaultDataPageSize].
	DataPageSize int
	// MetaPageSize is the metadata stream's page size in bytes. Must be a
	// power of two. Defaults to [DefaultMetaPageSize].
	MetaPageSize int
	// CacheTTL is how long an unreferenced mapped page stays cached.
	// Defaults to [DefaultCacheTTLMillis].
	CacheTTL time.Duration
	// Log receives warnings and debug detail. Defaults to the standard
	// logger.
	Log *logrus.Entry
}

func (o Options) withDefaults() Options {
	if o.DataPageSize == 0 {
		o.DataPageSize = DefaultDataPageSize
	}

	if o.MetaPageSize == 0 {
		o.MetaPageSize = DefaultMetaPageSize
	}

	if o.CacheTTL == 0 {
		o.CacheTTL = DefaultCacheTTLMillis * time.Millisecond
	}

	if o.Log == nil {
		o.Log = logrus.NewEntry(logrus.StandardLogger())
	}

	return o
}

func (o Options) validate() error {
	if o.Dir == "" {
		return fmt.Errorf("dir is required: %w", ErrInvalidConfig)
	}

	if o.DataPageSize < MinDataPageSize {
		return fmt.Errorf("data page size %d below minimum %d: %w", o.DataPageSize, MinDataPageSize, ErrInvalidConfig)
	}

	if o.DataPageSize&(o.DataPageSize-1) != 0 {
		return fmt.Errorf("data page size %d is not a power of two: %w", o.DataPageSize, ErrInvalidConfig)
	}

	if o.MetaPageSize < metaSlotSize || o.MetaPageSize&(o.MetaPageSize-1) != 0 {
		return fmt.Errorf("meta page size %d is not a power of two >= %d: %w", o.MetaPageSize, metaSlotSize, ErrInvalidConfig)
	}

	return nil
}

// Array is a persistent, variable-length, append-only record store indexed
// by monotonically increasing (wrapping) u64 ids.
type Array struct {
	dataFactory  *pagestore.Factory
	metaFactory  *pagestore.Factory
	indexFactory *pagestore.Factory

	recordsPerMetaPage pagearith.Shift // Div(id) = meta page index, Mod(id) = slot index
	dataPageSize       int

	appendMu sync.Mutex

	headIndex atomic.Uint64 // next id to assign
	tailIndex atomic.Uint64 // smallest id still retrievable

	// bump allocator state for the current tail data page; guarded by appendMu.
	curDataPage   uint64
	curDataOffset int

	closed atomic.Bool

	log *logrus.Entry
}

// Open creates or reopens an array at opts.Dir.
func Open(opts Options) (*Array, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	dataFactory, err := pagestore.New(filepath.Join(opts.Dir, "data"), opts.DataPageSize, opts.CacheTTL, opts.Log)
	if err != nil {
		return nil, err
	}

	metaFactory, err := pagestore.New(filepath.Join(opts.Dir, "meta"), opts.MetaPageSize, opts.CacheTTL, opts.Log)
	if err != nil {
		return nil, err
	}

	indexFactory, err := pagestore.New(filepath.Join(opts.Dir, "index"), indexPageSize, opts.CacheTTL, opts.Log)
	if err != nil {
		return nil, err
	}

	recordsPerMetaPage, err := pagearith.NewShift(uint64(opts.MetaPageSize / metaSlotSize))
	if err != nil {
		return nil, fmt.Errorf("fastarray: %w", err)
	}

	a := &Array{
		dataFactory:        dataFactory,
		metaFactory:        metaFactory,
		indexFactory:       indexFactory,
		recordsPerMetaPage: recordsPerMetaPage,
		dataPageSize:       opts.DataPageSize,
		log:                opts.Log,
	}

	if err := a.recoverState(); err != nil {
		return nil, err
	}

	return a, nil
}

// recoverState reads HeadIndex off disk, derives TailIndex from which meta
// and data pages still exist, and derives the bump-allocator cursor from the last
// committed record's metadata slot (if any).
func (a *Array) recoverState() error {
	head, err := a.readHeadIndex()
	if err != nil {
		return err
	}

	a.headIndex.Store(head)

	tail, err := a.deriveTailIndex()
	if err != nil {
		return err
	}

	a.tailIndex.Store(tail)

	if head == tail {
		a.curDataPage = 0
		a.curDataOffset = 0

		return nil
	}

	last := head - 1

	slot, err := a.readSlot(last)
	if err != nil {
		return fmt.Errorf("fastarray: recover bump state from record %d: %w", last, err)
	}

	a.curDataPage = slot.dataPageIndex
	a.curDataOffset = int(slot.dataOffset) + int(slot.dataLength)

	return nil
}

func (a *Array) deriveTailIndex() (uint64, error) {
	pages, err := a.metaFactory.BackPageFileSet()
	if err != nil {
		return 0, err
	}

	if len(pages) == 0 {
		return 0, nil
	}

	start := pages[0] * a.recordsPerMetaPage.Size()
	head := a.headIndex.Load()

	dataPages, err := a.dataFactory.BackPageFileSet()
	if err != nil {
		return 0, err
	}

	if start == head || len(dataPages) == 0 {
		return start, nil
	}

	// Skip ids in the first meta page whose data page was already reclaimed.
	return a.firstIDWithDataPageAtOrAfter(start, head, dataPages[0])
}

func (a *Array) readHeadIndex() (uint64, error) {
	page, err := a.indexFactory.AcquirePage(0)
	if err != nil {
		return 0, err
	}
	defer a.indexFactory.ReleasePage(0)

	view, err := page.View(0)
	if err != nil {
		return 0, err
	}

	return view.Uint64()
}

func (a *Array) writeHeadIndex(head uint64) error {
	page, err := a.indexFactory.AcquirePage(0)
	if err != nil {
		return err
	}
	defer a.indexFactory.ReleasePage(0)

	view, err := page.View(0)
	if err != nil {
		return err
	}

	if err := view.PutUint64(head); err != nil {
		return err
	}

	page.SetDirty(true)

	return nil
}

// Append stores b as a new record and returns its id.
//
// Appends are serialized by a single mutex; Get needs no lock beyond
// per-page refcounting and may run concurrently with Append and other
// Gets.
func (a *Array) Append(b []byte) (uint64, error) {
	if a.closed.Load() {
		return 0, ErrClosed
	}

	if len(b) > a.dataPageSize {
		return 0, fmt.Errorf("record of %d bytes exceeds data page size %d: %w", len(b), a.dataPageSize, ErrRecordTooLarge)
	}

	a.appendMu.Lock()
	defer a.appendMu.Unlock()

	id := a.headIndex.Load()

	if a.curDataOffset+len(b) > a.dataPageSize {
		a.curDataPage++
		a.curDataOffset = 0
	}

	dataPageIndex := a.curDataPage
	dataOffset := a.curDataOffset

	dataPage, err := a.dataFactory.AcquirePage(dataPageIndex)
	if err != nil {
		return 0, err
	}

	writeErr := a.writeData(dataPage, dataOffset, b)
	a.dataFactory.ReleasePage(dataPageIndex)

	if writeErr != nil {
		return 0, writeErr
	}

	slot := metaSlot{
		dataPageIndex: dataPageIndex,
		dataOffset:    uint32(dataOffset), //nolint:gosec // bounded by dataPageSize, validated on Open
		dataLength:    uint32(len(b)),     //nolint:gosec // bounded by dataPageSize, validated above
		enqueuedAtMs:  uint64(time.Now().UnixMilli()),
	}

	if err := a.writeSlot(id, slot); err != nil {
		return 0, err
	}

	newHead := id + 1
	if err := a.writeHeadIndex(newHead); err != nil {
		return 0, err
	}

	a.headIndex.Store(newHead)
	a.curDataOffset = dataOffset + len(b)

	return id, nil
}

func (a *Array) writeData(page *mmapfile.Page, offset int, b []byte) error {
	view, err := page.View(offset)
	if err != nil {
		return err
	}

	if err := view.WriteAt(b); err != nil {
		return err
	}

	page.SetDirty(true)

	return nil
}

// Get returns the bytes stored under id.
func (a *Array) Get(id uint64) ([]byte, error) {
	if a.closed.Load() {
		return nil, ErrClosed
	}

	if !ringid.InRange(id, a.tailIndex.Load(), a.headIndex.Load()) {
		return nil, fmt.Errorf("id %d not in [%d, %d): %w", id, a.tailIndex.Load(), a.headIndex.Load(), ErrOutOfBounds)
	}

	slot, err := a.readSlot(id)
	if err != nil {
		return nil, err
	}

	dataPage, err := a.dataFactory.AcquirePage(slot.dataPageIndex)
	if err != nil {
		return nil, err
	}
	defer a.dataFactory.ReleasePage(slot.dataPageIndex)

	view, err := dataPage.View(int(slot.dataOffset))
	if err != nil {
		return nil, err
	}

	return view.ReadAt(int(slot.dataLength))
}

func (a *Array) metaLocation(id uint64) (pageIndex uint64, slotOffset int) {
	pageIndex = a.recordsPerMetaPage.Div(id)
	slotOffset = int(a.recordsPerMetaPage.Mod(id)) * metaSlotSize

	return pageIndex, slotOffset
}

func (a *Array) readSlot(id uint64) (metaSlot, error) {
	pageIndex, slotOffset := a.metaLocation(id)

	page, err := a.metaFactory.AcquirePage(pageIndex)
	if err != nil {
		return metaSlot{}, err
	}
	defer a.metaFactory.ReleasePage(pageIndex)

	view, err := page.View(slotOffset)
	if err != nil {
		return metaSlot{}, err
	}

	raw, err := view.ReadAt(metaSlotSize)
	if err != nil {
		return metaSlot{}, err
	}

	return metaSlot{
		dataPageIndex: binary.LittleEndian.Uint64(raw[metaSlotOffPageIdx:]),
		dataOffset:    binary.LittleEndian.Uint32(raw[metaSlotOffDataOff:]),
		dataLength:    binary.LittleEndian.Uint32(raw[metaSlotOffDataLen:]),
		enqueuedAtMs:  binary.LittleEndian.Uint64(raw[metaSlotOffEnqueued:]),
	}, nil
}

func (a *Array) writeSlot(id uint64, slot metaSlot) error {
	pageIndex, slotOffset := a.metaLocation(id)

	page, err := a.metaFactory.AcquirePage(pageIndex)
	if err != nil {
		return err
	}
	defer a.metaFactory.ReleasePage(pageIndex)

	view, err := page.View(slotOffset)
	if err != nil {
		return err
	}

	var raw [metaSlotSize]byte

	binary.LittleEndian.PutUint64(raw[metaSlotOffPageIdx:], slot.dataPageIndex)
	binary.LittleEndian.PutUint32(raw[metaSlotOffDataOff:], slot.dataOffset)
	binary.LittleEndian.PutUint32(raw[metaSlotOffDataLen:], slot.dataLength)
	binary.LittleEndian.PutUint64(raw[metaSlotOffEnqueued:], slot.enqueuedAtMs)

	if err := view.WriteAt(raw[:]); err != nil {
		return err
	}

	page.SetDirty(true)

	return nil
}

// Size returns the number of retrievable records.
func (a *Array) Size() uint64 {
	return ringid.Distance(a.headIndex.Load(), a.tailIndex.Load())
}

// HeadIndex returns the next id that will be assigned.
func (a *Array) HeadIndex() uint64 { return a.headIndex.Load() }

// TailIndex returns the smallest id still retrievable.
func (a *Array) TailIndex() uint64 { return a.tailIndex.Load() }

// RemoveBeforeIndex reclaims every data and metadata page strictly before
// the page holding id, advancing TailIndex to the first id whose record
// still has backing data on disk. Out-of-range ids are ignored silently.
func (a *Array) RemoveBeforeIndex(id uint64) error {
	if !ringid.InRange(id, a.tailIndex.Load(), a.headIndex.Load()) {
		return nil
	}

	slot, err := a.readSlot(id)
	if err != nil {
		return err
	}

	if err := a.dataFactory.DeletePagesBeforeIndex(slot.dataPageIndex); err != nil {
		return err
	}

	metaPageIndex, _ := a.metaLocation(id)
	if err := a.metaFactory.DeletePagesBeforeIndex(metaPageIndex); err != nil {
		return err
	}

	newTail, err := a.firstIDWithDataPageAtOrAfter(metaPageIndex*a.recordsPerMetaPage.Size(), id, slot.dataPageIndex)
	if err != nil {
		return err
	}

	a.tailIndex.Store(newTail)

	return nil
}

// firstIDWithDataPageAtOrAfter scans ids in [from, to] for the smallest one
// whose record lives on dataPage or a later data page. Records assigned
// earlier in the same metadata page can sit on data pages strictly before
// dataPage, which DeletePagesBeforeIndex just reclaimed; TailIndex must
// never point at one of those ids even though their metadata page itself
// survives. dataPageIndex is non-decreasing in id within an append epoch,
// so the first match is the correct boundary.
func (a *Array) firstIDWithDataPageAtOrAfter(from, to, dataPage uint64) (uint64, error) {
	for i := from; i != to; i++ {
		s, err := a.readSlot(i)
		if err != nil {
			return 0, err
		}

		if s.dataPageIndex >= dataPage {
			return i, nil
		}
	}

	return to, nil
}

// RemoveAll deletes every page in all three streams and resets the array
// to empty.
func (a *Array) RemoveAll() error {
	a.appendMu.Lock()
	defer a.appendMu.Unlock()

	if err := a.dataFactory.DeleteAllPages(); err != nil {
		return err
	}

	if err := a.metaFactory.DeleteAllPages(); err != nil {
		return err
	}

	// A missing index page reads back as zeros, so deleting it persists
	// HeadIndex 0.
	if err := a.indexFactory.DeleteAllPages(); err != nil {
		return err
	}

	a.headIndex.Store(0)
	a.tailIndex.Store(0)
	a.curDataPage = 0
	a.curDataOffset = 0

	return nil
}

// Flush flushes all three page streams.
func (a *Array) Flush() error {
	if err := a.dataFactory.Flush(); err != nil {
		return err
	}

	if err := a.metaFactory.Flush(); err != nil {
		return err
	}

	return a.indexFactory.Flush()
}

// Close releases every cached page in all three streams. Close is
// idempotent; Append and Get return ErrClosed afterward.
func (a *Array) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}

	a.dataFactory.ReleaseCachedPages()
	a.metaFactory.ReleaseCachedPages()
	a.indexFactory.ReleaseCachedPages()

	return nil
}
