package fastqueue

import "sync"

// Future is the completion contract a queue's async consumers wait on.
// FastQueue depends only on this interface; callers that don't supply
// their own implementation get [NewFuture]'s.
type Future interface {
	// Set completes the future with a successful value. A future that is
	// already settled (by Set, SetError or Cancel) ignores the call.
	Set(value []byte)
	// SetError completes the future exceptionally. A future that is
	// already settled ignores the call.
	SetError(err error)
	// Cancel settles the future without a value or error. A cancelled
	// future is never subsequently completed; Cancel on an already
	// settled future is a no-op.
	Cancel()
	// Await blocks until the future settles and returns its outcome. It
	// may be called more than once; every caller observes the same
	// outcome.
	Await() ([]byte, error)
}

// future is the default single-shot [Future] implementation: a
// channel-gated result guarded by a mutex so Set/SetError/Cancel race
// safely against each other and against concurrent Await calls.
type future struct {
	mu   sync.Mutex
	done chan struct{}

	value     []byte
	err       error
	cancelled bool
	settled   bool
}

// NewFuture returns a fresh, unsettled [Future].
func NewFuture() Future {
	return &future{done: make(chan struct{})}
}

func (f *future) Set(value []byte) {
	f.settle(func() {
		f.value = value
	})
}

func (f *future) SetError(err error) {
	f.settle(func() {
		f.err = err
	})
}

func (f *future) Cancel() {
	f.settle(func() {
		f.cancelled = true
	})
}

func (f *future) settle(apply func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.settled {
		return
	}

	f.settled = true

	apply()
	close(f.done)
}

func (f *future) Await() ([]byte, error) {
	<-f.done

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancelled {
		return nil, ErrFutureCancelled
	}

	return f.value, f.err
}
