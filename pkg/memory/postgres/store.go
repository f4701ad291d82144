// Package postgres implements memory.Store on PostgreSQL with the pgvector
// extension.
//
// Embeddings are stored in a vector(n) column so that the same records could
// later be queried with an ANN index server-side; today the store is a plain
// document store and ranking happens in the memory manager, which keeps the
// Store contract free of ordering guarantees.
package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/mnemo-ai/mnemo/pkg/memory"
)

// Ensure Store implements the memory.Store interface.
var _ memory.Store = (*Store)(nil)

// Store is a PostgreSQL-backed memory store. All operations are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the PostgreSQL database at dsn, registers pgvector types
// on every connection, and runs [Migrate] to ensure the memories table and
// vector extension exist.
//
// embeddingDimensions must match the output dimension of the embedding
// provider (e.g. 1536 for OpenAI text-embedding-3-small). Changing it after
// the first migration requires a manual schema change.
func New(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres memory: parse dsn: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres memory: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres memory: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres memory: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Create implements memory.Store.
func (s *Store) Create(ctx context.Context, rec memory.Record) (string, error) {
	const q = `
		INSERT INTO memories
		    (id, user_id, conversation_id, content, embedding, kind, importance, created_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	id := uuid.NewString()

	var vec any
	if rec.Embedding != nil {
		v := pgvector.NewVector(rec.Embedding)
		vec = v
	}

	_, err := s.pool.Exec(ctx, q,
		id,
		rec.UserID,
		rec.ConversationID,
		rec.Content,
		vec,
		string(rec.Kind),
		rec.Importance,
		rec.CreatedAt,
		rec.Metadata,
	)
	if err != nil {
		return "", fmt.Errorf("postgres memory: create: %w", err)
	}
	return id, nil
}

// Query implements memory.Store. Result ordering is unspecified by contract;
// callers re-rank.
func (s *Store) Query(ctx context.Context, filter memory.Filter) ([]memory.Record, error) {
	if filter.UserID == "" {
		return nil, fmt.Errorf("postgres memory: query: user id must not be empty")
	}

	q := `
		SELECT id, user_id, conversation_id, content, embedding, kind, importance, created_at, metadata
		FROM   memories
		WHERE  user_id = $1`
	args := []any{filter.UserID}

	if filter.ConversationID != "" {
		q += " AND conversation_id = $2"
		args = append(args, filter.ConversationID)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres memory: query: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Record, error) {
		var (
			rec memory.Record
			vec *pgvector.Vector
		)
		if err := row.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.ConversationID,
			&rec.Content,
			&vec,
			&rec.Kind,
			&rec.Importance,
			&rec.CreatedAt,
			&rec.Metadata,
		); err != nil {
			return memory.Record{}, err
		}
		if vec != nil {
			rec.Embedding = vec.Slice()
		}
		return rec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres memory: scan rows: %w", err)
	}
	if records == nil {
		records = []memory.Record{}
	}
	return records, nil
}
