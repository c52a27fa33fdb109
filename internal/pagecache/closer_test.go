package pagecache_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/fastqueue/fastqueue/internal/pagecache"
	"github.com/stretchr/testify/require"
)

func TestCloser_ShutdownDrainsPendingJobs(t *testing.T) {
	closer := pagecache.NewCloser(2)

	c := pagecache.New[int, *fakeCloseable](closer, nil)

	values := make([]*fakeCloseable, 10)
	for i := range values {
		values[i] = &fakeCloseable{}
		c.Put(i, values[i], time.Nanosecond)
		c.Release(i)
	}

	time.Sleep(2 * time.Millisecond)

	// Every Put above already swept the entries released before it; one
	// final Put sweeps whatever expired entries remain onto the closer's
	// job queue.
	c.Put(len(values), &fakeCloseable{}, time.Hour)

	closer.Shutdown()

	for i, v := range values {
		require.True(t, v.closed.Load(), "value %d was not closed before shutdown returned", i)
	}
}

func TestDefaultCloser_ShutdownReplacesInstance(t *testing.T) {
	before := pagecache.DefaultCloser()

	var done atomic.Bool

	c := pagecache.New[int, *fakeCloseable](before, nil)
	c.Put(1, &fakeCloseable{}, time.Hour)
	c.Release(1)
	done.Store(true)

	pagecache.ShutdownDefaultCloser()

	require.True(t, done.Load())
	require.NotSame(t, before, pagecache.DefaultCloser())
}
