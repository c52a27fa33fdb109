package fastqueue_test

import (
	"errors"
	"testing"

	"github.com/fastqueue/fastqueue/pkg/fastqueue"
	"github.com/stretchr/testify/require"
)

func TestFuture_SetCompletesAwait(t *testing.T) {
	fut := fastqueue.NewFuture()

	fut.Set([]byte("value"))

	b, err := fut.Await()
	require.NoError(t, err)
	require.Equal(t, []byte("value"), b)
}

func TestFuture_SetErrorCompletesAwaitWithError(t *testing.T) {
	fut := fastqueue.NewFuture()

	boom := errors.New("boom")
	fut.SetError(boom)

	_, err := fut.Await()
	require.ErrorIs(t, err, boom)
}

func TestFuture_CancelCompletesAwaitWithCancelledError(t *testing.T) {
	fut := fastqueue.NewFuture()

	fut.Cancel()

	_, err := fut.Await()
	require.ErrorIs(t, err, fastqueue.ErrFutureCancelled)
}

func TestFuture_FirstSettlementWins(t *testing.T) {
	fut := fastqueue.NewFuture()

	fut.Set([]byte("first"))
	fut.Set([]byte("second"))
	fut.Cancel()

	b, err := fut.Await()
	require.NoError(t, err)
	require.Equal(t, []byte("first"), b)
}

func TestFuture_AwaitBlocksUntilSettled(t *testing.T) {
	fut := fastqueue.NewFuture()

	done := make(chan struct{})

	go func() {
		defer close(done)

		b, err := fut.Await()
		require.NoError(t, err)
		require.Equal(t, []byte("later"), b)
	}()

	select {
	case <-done:
		t.Fatal("Await returned before the future settled")
	default:
	}

	fut.Set([]byte("later"))
	<-done
}
