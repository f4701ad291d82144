package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mnemo-ai/mnemo/internal/observe"
	"github.com/mnemo-ai/mnemo/pkg/provider/embeddings"
	"github.com/mnemo-ai/mnemo/pkg/similarity"
)

// ErrEmbeddingUnavailable reports that the embedding provider call failed
// while storing or retrieving memories. On storage failure nothing is
// persisted — there are no partial writes.
var ErrEmbeddingUnavailable = errors.New("memory: embedding unavailable")

// Manager layers embedding computation and similarity ranking over a [Store].
//
// Safe for concurrent use; it holds no mutable state of its own.
type Manager struct {
	store    Store
	embedder embeddings.Provider
	now      func() time.Time
	metrics  *observe.Metrics
}

// ManagerOption is a functional option for [NewManager].
type ManagerOption func(*Manager)

// WithClock overrides the timestamp source. Used in tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithMetrics overrides the metrics sink. Used in tests; production managers
// report to the process-wide default.
func WithMetrics(metrics *observe.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager creates a Manager over the given store and embedding provider.
func NewManager(store Store, embedder embeddings.Provider, opts ...ManagerOption) *Manager {
	m := &Manager{store: store, embedder: embedder, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m
}

// embed wraps the provider call with latency recording.
func (m *Manager) embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vec, err := m.embedder.Embed(ctx, text)
	m.metrics.RecordEmbeddingDuration(ctx, time.Since(start).Seconds())
	return vec, err
}

// Remember embeds rec.Content, stamps the creation time, and persists the
// record, returning the store-assigned ID.
//
// The embedding is computed before anything touches the store: when the
// provider call fails, Remember returns an error wrapping
// [ErrEmbeddingUnavailable] and the record is not persisted.
func (m *Manager) Remember(ctx context.Context, rec Record) (string, error) {
	if rec.UserID == "" {
		return "", fmt.Errorf("memory: remember: user id must not be empty")
	}
	if rec.Content == "" {
		return "", fmt.Errorf("memory: remember: content must not be empty")
	}
	if rec.Kind == "" {
		rec.Kind = KindMessage
	}
	if !rec.Kind.IsValid() {
		return "", fmt.Errorf("memory: remember: invalid kind %q", rec.Kind)
	}

	vec, err := m.embed(ctx, rec.Content)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	rec.Embedding = vec
	rec.CreatedAt = m.now()

	id, err := m.store.Create(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("memory: remember: create record: %w", err)
	}
	return id, nil
}

// Relevant returns up to limit records matching filter, ranked by cosine
// similarity of their embeddings to the query text.
//
// Records lacking an embedding participate with score 0 rather than being
// excluded, so they can still surface via the ranking's stable tie-break
// when nothing else is more relevant. An empty corpus yields an empty
// result and no error; a failing embedding call wraps
// [ErrEmbeddingUnavailable].
func (m *Manager) Relevant(ctx context.Context, filter Filter, query string, limit int) ([]RankedRecord, error) {
	if filter.UserID == "" {
		return nil, fmt.Errorf("memory: relevant: user id must not be empty")
	}
	if limit <= 0 {
		return []RankedRecord{}, nil
	}

	start := time.Now()
	defer func() {
		m.metrics.RecordMemoryQueryDuration(ctx, time.Since(start).Seconds())
	}()

	records, err := m.store.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("memory: relevant: query store: %w", err)
	}
	if len(records) == 0 {
		return []RankedRecord{}, nil
	}

	queryVec, err := m.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	corpus := make([][]float32, len(records))
	for i, rec := range records {
		corpus[i] = rec.Embedding
	}

	ranked, err := similarity.Rank(queryVec, corpus, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: relevant: %w", err)
	}

	out := make([]RankedRecord, 0, len(ranked))
	for _, s := range ranked {
		out = append(out, RankedRecord{Record: records[s.Index], Score: s.Score})
	}
	return out, nil
}
