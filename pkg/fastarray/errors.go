package fastarray

import "errors"

// Error classification. Implementations may wrap these with additional
// context; callers should classify with errors.Is.
var (
	// ErrOutOfBounds indicates a Get for an id outside [TailIndex, HeadIndex).
	ErrOutOfBounds = errors.New("fastarray: id out of bounds")
	// ErrRecordTooLarge indicates a payload larger than the data page size.
	ErrRecordTooLarge = errors.New("fastarray: record exceeds data page size")
	// ErrClosed indicates an operation on a closed array.
	ErrClosed = errors.New("fastarray: closed")
	// ErrInvalidConfig indicates a misconfigured Options value.
	ErrInvalidConfig = errors.New("fastarray: invalid config")
)
