package memory

import "errors"

var (
	// ErrNilRecord is returned when a nil record is stored.
	ErrNilRecord = errors.New("memory: nil record")

	// ErrInvalidKind is returned for a kind outside action, result, context and strategy.
	ErrInvalidKind = errors.New("memory: invalid kind")
)
