package tracking

import "errors"

var (
	// ErrInvalidPayload marks a batch rejected before any write because a
	// point is missing or exceeds valid coordinate ranges.
	ErrInvalidPayload = errors.New("tracking: invalid payload")

	// ErrNotFound marks an unknown device or user reference.
	ErrNotFound = errors.New("tracking: not found")

	// ErrStorage marks a transactional failure; the whole batch was
	// rolled back.
	ErrStorage = errors.New("tracking: storage error")
)
