// Package inprocess provides a memory.Store held entirely in process memory.
//
// It is the default backend for single-node deployments that do not configure
// Postgres: records survive for the lifetime of the process and are lost on
// restart. All methods are safe for concurrent use.
package inprocess

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mnemo-ai/mnemo/pkg/memory"
)

var _ memory.Store = (*Store)(nil)

// Store keeps memory records in a map keyed by record ID.
type Store struct {
	mu      sync.RWMutex
	records map[string]memory.Record
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty in-process store.
func New(opts ...Option) *Store {
	s := &Store{
		records: make(map[string]memory.Record),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create assigns an ID, stamps CreatedAt if unset, and stores a copy of the
// record. The caller's embedding slice is copied so later mutation cannot
// corrupt stored state.
func (s *Store) Create(_ context.Context, rec memory.Record) (string, error) {
	if rec.UserID == "" {
		return "", fmt.Errorf("inprocess memory: create: user id is required")
	}

	rec.ID = uuid.NewString()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	rec.Embedding = cloneVector(rec.Embedding)

	s.mu.Lock()
	s.records[rec.ID] = rec
	s.mu.Unlock()
	return rec.ID, nil
}

// Query returns copies of all records matching filter, in unspecified order.
func (s *Store) Query(_ context.Context, filter memory.Filter) ([]memory.Record, error) {
	if filter.UserID == "" {
		return nil, fmt.Errorf("inprocess memory: query: user id is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []memory.Record{}
	for _, rec := range s.records {
		if rec.UserID != filter.UserID {
			continue
		}
		if filter.ConversationID != "" && rec.ConversationID != filter.ConversationID {
			continue
		}
		rec.Embedding = cloneVector(rec.Embedding)
		out = append(out, rec)
	}
	return out, nil
}

// Len reports the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Ping reports the store as always ready. Satisfies the readiness probe
// surface shared with the Postgres backend.
func (s *Store) Ping(context.Context) error { return nil }

func cloneVector(v []float32) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
