// Package fastqueue implements a persistent FIFO byte-message queue: a
// front-cursor overlay over a [github.com/fastqueue/fastqueue/pkg/fastarray.Array]
// adding dequeue/peek/gc and async completion signalling for consumers
// waiting on an empty queue.
package fastqueue

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fastqueue/fastqueue/internal/ringid"
	"github.com/fastqueue/fastqueue/pkg/fastarray"
	"github.com/fastqueue/fastqueue/pkg/pagestore"
	"github.com/sirupsen/logrus"
)

const frontIndexPageSize = 8

// Options configures a new or reopened [Queue]. Fields mirror
// [fastarray.Options]; see there for defaults and validation.
type Options struct {
	Dir          string
	DataPageSize int
	MetaPageSize int
	CacheTTL     time.Duration
	Log          *logrus.Entry
}

func (o Options) toArrayOptions() fastarray.Options {
	return fastarray.Options{
		Dir:          o.Dir,
		DataPageSize: o.DataPageSize,
		MetaPageSize: o.MetaPageSize,
		CacheTTL:     o.CacheTTL,
		Log:          o.Log,
	}
}

// Queue is a persistent FIFO byte-message queue. A Queue is safe for
// concurrent use: Dequeue, RemoveAll, Flush and ApplyForEach are serialized
// by one mutex, and Enqueue relies on the array's own append mutex.
type Queue struct {
	array        *fastarray.Array
	frontFactory *pagestore.Factory

	// mu serializes dequeue, remove_all, flush and apply_for_each. peek
	// and enqueue need no write lock: peek only reads, and enqueue is
	// itself serialized by the array's append mutex.
	mu    sync.Mutex
	front atomic.Uint64

	futuresMu      sync.Mutex
	pendingDequeue []Future
	pendingPeek    []Future

	closed atomic.Bool
	log    *logrus.Entry
}

// Open creates or reopens a queue directory at opts.Dir.
func Open(opts Options) (*Queue, error) {
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}

	if opts.CacheTTL == 0 {
		opts.CacheTTL = fastarray.DefaultCacheTTLMillis * time.Millisecond
	}

	array, err := fastarray.Open(opts.toArrayOptions())
	if err != nil {
		return nil, err
	}

	frontFactory, err := pagestore.New(filepath.Join(opts.Dir, "front_index"), frontIndexPageSize, opts.CacheTTL, opts.Log)
	if err != nil {
		return nil, err
	}

	q := &Queue{
		array:        array,
		frontFactory: frontFactory,
		log:          opts.Log,
	}

	front, err := q.readFront()
	if err != nil {
		return nil, err
	}

	q.front.Store(front)

	return q, nil
}

func (q *Queue) readFront() (uint64, error) {
	page, err := q.frontFactory.AcquirePage(0)
	if err != nil {
		return 0, err
	}
	defer q.frontFactory.ReleasePage(0)

	view, err := page.View(0)
	if err != nil {
		return 0, err
	}

	return view.Uint64()
}

func (q *Queue) writeFront(front uint64) error {
	page, err := q.frontFactory.AcquirePage(0)
	if err != nil {
		return err
	}
	defer q.frontFactory.ReleasePage(0)

	view, err := page.View(0)
	if err != nil {
		return err
	}

	if err := view.PutUint64(front); err != nil {
		return err
	}

	page.SetDirty(true)

	return nil
}

// Enqueue appends b to the back of the queue and wakes any pending async
// consumers.
func (q *Queue) Enqueue(b []byte) error {
	if q.closed.Load() {
		return ErrClosed
	}

	if _, err := q.array.Append(b); err != nil {
		return err
	}

	q.signalWaiters()

	return nil
}

// Dequeue removes and returns the front record, if any.
func (q *Queue) Dequeue() (value []byte, ok bool, err error) {
	if q.closed.Load() {
		return nil, false, ErrClosed
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	return q.dequeueLocked()
}

func (q *Queue) dequeueLocked() ([]byte, bool, error) {
	front := q.front.Load()

	if front == q.array.HeadIndex() {
		return nil, false, nil
	}

	b, err := q.array.Get(front)
	if err != nil {
		return nil, false, err
	}

	newFront := front + 1
	if err := q.writeFront(newFront); err != nil {
		return nil, false, err
	}

	q.front.Store(newFront)

	return b, true, nil
}

// Peek returns the front record without removing it.
func (q *Queue) Peek() (value []byte, ok bool, err error) {
	if q.closed.Load() {
		return nil, false, ErrClosed
	}

	front := q.front.Load()

	if front == q.array.HeadIndex() {
		return nil, false, nil
	}

	b, err := q.array.Get(front)
	if err != nil {
		return nil, false, err
	}

	return b, true, nil
}

// DequeueAsync returns a future that completes with the next dequeued
// record. If the queue is non-empty at call time, the future completes
// immediately; otherwise it completes on the next successful Enqueue that
// leaves a record for it to consume.
func (q *Queue) DequeueAsync() Future {
	fut := NewFuture()

	if q.closed.Load() {
		fut.SetError(ErrClosed)
		return fut
	}

	q.mu.Lock()
	b, ok, err := q.dequeueLocked()
	q.mu.Unlock()

	if err != nil {
		fut.SetError(err)
		return fut
	}

	if ok {
		fut.Set(b)
		return fut
	}

	q.futuresMu.Lock()
	q.pendingDequeue = append(q.pendingDequeue, fut)
	q.futuresMu.Unlock()

	return fut
}

// PeekAsync returns a future that completes with the front record as soon
// as one exists, without removing it.
func (q *Queue) PeekAsync() Future {
	fut := NewFuture()

	b, ok, err := q.Peek()
	if err != nil {
		fut.SetError(err)
		return fut
	}

	if ok {
		fut.Set(b)
		return fut
	}

	q.futuresMu.Lock()
	q.pendingPeek = append(q.pendingPeek, fut)
	q.futuresMu.Unlock()

	return fut
}

// signalWaiters is called after a successful Enqueue to give pending
// async consumers a chance at the newly appended record.
func (q *Queue) signalWaiters() {
	q.futuresMu.Lock()

	var dw Future

	if len(q.pendingDequeue) > 0 {
		dw = q.pendingDequeue[0]
		q.pendingDequeue = q.pendingDequeue[1:]
	}

	pws := q.pendingPeek
	q.pendingPeek = nil

	q.futuresMu.Unlock()

	if dw != nil {
		b, ok, err := q.Dequeue()

		switch {
		case err != nil:
			dw.SetError(err)
		case ok:
			dw.Set(b)
		default:
			// another consumer raced us to the record; requeue for the
			// next enqueue.
			q.futuresMu.Lock()
			q.pendingDequeue = append([]Future{dw}, q.pendingDequeue...)
			q.futuresMu.Unlock()
		}
	}

	for _, fut := range pws {
		b, ok, err := q.Peek()

		switch {
		case err != nil:
			fut.SetError(err)
		case ok:
			fut.Set(b)
		default:
			q.futuresMu.Lock()
			q.pendingPeek = append(q.pendingPeek, fut)
			q.futuresMu.Unlock()
		}
	}
}

// ApplyForEach calls visitor with every retrievable record in order,
// without advancing the front cursor. Iteration stops at the first error
// returned by visitor.
func (q *Queue) ApplyForEach(visitor func([]byte) error) error {
	if q.closed.Load() {
		return ErrClosed
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	head := q.array.HeadIndex()

	for id := q.front.Load(); id != head; id++ {
		b, err := q.array.Get(id)
		if err != nil {
			return err
		}

		if err := visitor(b); err != nil {
			return err
		}
	}

	return nil
}

// Size returns the number of retrievable records between front and head.
func (q *Queue) Size() uint64 {
	return ringid.Distance(q.array.HeadIndex(), q.front.Load())
}

// FrontIndex returns the id of the next record to dequeue.
func (q *Queue) FrontIndex() uint64 { return q.front.Load() }

// HeadIndex returns the next id that will be assigned by Enqueue.
func (q *Queue) HeadIndex() uint64 { return q.array.HeadIndex() }

// TailIndex returns the smallest id still retrievable from the backing
// array, which may be lower than FrontIndex if Gc has not yet caught up.
func (q *Queue) TailIndex() uint64 { return q.array.TailIndex() }

// IsEmpty reports whether front equals head.
func (q *Queue) IsEmpty() bool {
	return q.Size() == 0
}

// RemoveAll deletes every record and resets the front cursor to zero.
func (q *Queue) RemoveAll() error {
	if q.closed.Load() {
		return ErrClosed
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.array.RemoveAll(); err != nil {
		return err
	}

	if err := q.writeFront(0); err != nil {
		return err
	}

	q.front.Store(0)

	return nil
}

// Gc reclaims pages holding only already-dequeued records.
func (q *Queue) Gc() error {
	if q.closed.Load() {
		return ErrClosed
	}

	before := q.front.Load() - 1

	return q.array.RemoveBeforeIndex(before)
}

// Flush forces the front cursor and array durable.
func (q *Queue) Flush() error {
	if q.closed.Load() {
		return ErrClosed
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.frontFactory.Flush(); err != nil {
		return fmt.Errorf("fastqueue: flush front cursor: %w", err)
	}

	return q.array.Flush()
}

// Close releases the front factory's cached pages, cancels any pending
// async futures, and closes the underlying array. Close is idempotent.
func (q *Queue) Close() error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}

	q.futuresMu.Lock()
	dw := q.pendingDequeue
	pw := q.pendingPeek
	q.pendingDequeue = nil
	q.pendingPeek = nil
	q.futuresMu.Unlock()

	for _, fut := range dw {
		fut.Cancel()
	}

	for _, fut := range pw {
		fut.Cancel()
	}

	q.frontFactory.ReleaseCachedPages()

	return q.array.Close()
}
