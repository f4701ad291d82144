// Package mock provides an in-memory test double for the memory.Store
// interface.
//
// Use Store to exercise the memory manager and context assembler without a
// database and to verify which records were created and which filters were
// queried.
package mock

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/mnemo-ai/mnemo/pkg/memory"
)

// Ensure Store implements the memory.Store interface.
var _ memory.Store = (*Store)(nil)

// Store is a mock implementation of memory.Store backed by a slice.
type Store struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// CreateErr, if non-nil, is returned by Create.
	CreateErr error

	// QueryErr, if non-nil, is returned by Query.
	QueryErr error

	// --- Recorded state ---

	// Records holds every record created, in creation order, with assigned IDs.
	Records []memory.Record

	// QueryFilters records every filter passed to Query, in order.
	QueryFilters []memory.Filter
}

// Create assigns a UUID, appends the record, and returns the new ID.
func (s *Store) Create(_ context.Context, rec memory.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CreateErr != nil {
		return "", s.CreateErr
	}
	rec.ID = uuid.NewString()
	s.Records = append(s.Records, rec)
	return rec.ID, nil
}

// Query records the filter and returns all matching records.
func (s *Store) Query(_ context.Context, filter memory.Filter) ([]memory.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.QueryFilters = append(s.QueryFilters, filter)
	if s.QueryErr != nil {
		return nil, s.QueryErr
	}

	out := []memory.Record{}
	for _, rec := range s.Records {
		if rec.UserID != filter.UserID {
			continue
		}
		if filter.ConversationID != "" && rec.ConversationID != filter.ConversationID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Seed inserts records directly, bypassing error configuration. IDs are
// assigned when empty.
func (s *Store) Seed(records ...memory.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		s.Records = append(s.Records, rec)
	}
}
