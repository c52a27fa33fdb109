package fastqueue

import "errors"

// Error classification. Implementations may wrap these with additional
// context; callers should classify with errors.Is.
var (
	// ErrClosed indicates an operation on a closed queue.
	ErrClosed = errors.New("fastqueue: closed")
	// ErrFutureCancelled indicates an await on a cancelled future.
	ErrFutureCancelled = errors.New("fastqueue: future cancelled")
)
