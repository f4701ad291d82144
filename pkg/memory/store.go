package memory

import "context"

// Store is the persistence contract for memory records. Implementations are
// simple document stores: they do not rank or interpret embeddings — the
// [Manager] re-ranks query results, so result ordering is unspecified.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Create persists a new record and returns its store-assigned ID.
	// The record's ID field is ignored on input.
	Create(ctx context.Context, rec Record) (string, error)

	// Query returns all records matching filter. The filter's UserID must be
	// non-empty. Returns an empty (non-nil) slice when nothing matches;
	// result order is unspecified.
	Query(ctx context.Context, filter Filter) ([]Record, error)
}
