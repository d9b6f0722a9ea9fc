package memory

import "context"

// Store defines the interface for memory backends.
//
// Implementations must be safe for concurrent use: writes are serialized and
// readers never observe a partially appended record.
type Store interface {
	// Store appends a record. The store keeps its own copy; later changes to
	// rec by the caller do not affect stored content.
	Store(ctx context.Context, rec *Record) error

	// Retrieve returns at most topK records scoring above zero against query,
	// highest relevance first, ties in insertion order. An empty kind matches
	// every kind. Returned records are copies with Relevance set.
	Retrieve(ctx context.Context, query string, topK int, kind Kind) ([]*Record, error)

	// Recent returns at most limit records, newest first, ties in insertion
	// order. An empty kind matches every kind.
	Recent(ctx context.Context, limit int, kind Kind) ([]*Record, error)

	// Clear removes every record.
	Clear(ctx context.Context) error
}
