package pagecache_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/fastqueue/fastqueue/internal/pagecache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloseable struct {
	closed atomic.Bool
	err    error
}

func (f *fakeCloseable) Close() error {
	f.closed.Store(true)

	return f.err
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(time.Millisecond)
	}

	require.True(t, cond(), "condition never became true")
}

func TestCache_PutGetRelease(t *testing.T) {
	c := pagecache.New[int, *fakeCloseable](pagecache.NewCloser(2), nil)

	v := &fakeCloseable{}
	c.Put(1, v, time.Hour)

	got, ok := c.Get(1)
	require.True(t, ok)
	require.Same(t, v, got)

	c.Release(1)
	c.Release(1)

	assert.Equal(t, 1, c.Size())
}

func TestCache_MissDoesNotReinsert(t *testing.T) {
	c := pagecache.New[int, *fakeCloseable](pagecache.NewCloser(1), nil)

	_, ok := c.Get(42)
	require.False(t, ok)
	require.Equal(t, 0, c.Size())
}

func TestCache_EvictsOnlyWhenRefcountZeroAndTTLExpired(t *testing.T) {
	c := pagecache.New[int, *fakeCloseable](pagecache.NewCloser(2), nil)

	heldForever := &fakeCloseable{}
	c.Put(1, heldForever, time.Millisecond)
	// held refcount stays at 1 (never released)

	expiring := &fakeCloseable{}
	c.Put(2, expiring, time.Millisecond)
	c.Release(2) // refcount back to 0

	time.Sleep(5 * time.Millisecond)

	// Triggers mark-and-sweep as a side effect of Put.
	c.Put(3, &fakeCloseable{}, time.Hour)

	waitFor(t, func() bool { return expiring.closed.Load() })
	assert.False(t, heldForever.closed.Load())
	assert.Equal(t, 2, c.Size()) // key 1 and key 3 remain; key 2 evicted
}

func TestCache_RemoveAndRemoveAll(t *testing.T) {
	c := pagecache.New[int, *fakeCloseable](pagecache.NewCloser(1), nil)

	a := &fakeCloseable{}
	b := &fakeCloseable{}
	c.Put(1, a, time.Hour)
	c.Put(2, b, time.Hour)

	c.Remove(1)
	assert.True(t, a.closed.Load())
	assert.Equal(t, 1, c.Size())

	c.RemoveAll()
	assert.True(t, b.closed.Load())
	assert.Equal(t, 0, c.Size())
}

func TestCache_CloseFailureIsSwallowed(t *testing.T) {
	c := pagecache.New[int, *fakeCloseable](pagecache.NewCloser(1), nil)

	v := &fakeCloseable{err: assert.AnError}
	c.Put(1, v, time.Hour)

	require.NotPanics(t, func() { c.Remove(1) })
}

func TestCache_Values(t *testing.T) {
	c := pagecache.New[int, *fakeCloseable](pagecache.NewCloser(1), nil)

	a := &fakeCloseable{}
	c.Put(1, a, time.Hour)

	values := c.Values()
	require.Len(t, values, 1)
	require.Same(t, a, values[0])
}
