// Package convstore persists conversation documents in a local BoltDB file.
//
// Conversations are JSON documents in a "conversations" bucket keyed by ID; a
// "user_index" bucket maps "userID/conversationID" composite keys to the
// conversation ID so per-user listing is a prefix scan instead of a full
// bucket walk. Bolt serializes writers, so the store is safe for concurrent
// use.
package convstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/mnemo-ai/mnemo/pkg/provider/llm"
)

var (
	bucketConversations = []byte("conversations")
	bucketUserIndex     = []byte("user_index")
)

// ErrNotFound reports a conversation ID with no stored document.
var ErrNotFound = errors.New("convstore: conversation not found")

// Conversation is one stored chat conversation.
type Conversation struct {
	// ID is the store-assigned identifier.
	ID string `json:"id"`

	// UserID is the owning user.
	UserID string `json:"userId"`

	// Title is a short display label, usually derived from the first user
	// message.
	Title string `json:"title"`

	// Model is the model identifier the conversation was started with.
	Model string `json:"model"`

	// Turns is the full ordered transcript.
	Turns []llm.Turn `json:"turns"`

	// CreatedAt and UpdatedAt bound the conversation's lifetime.
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store is a BoltDB-backed conversation store.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Option is a functional option for [Open].
type Option func(*Store)

// WithClock overrides the timestamp source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (creating if necessary) the conversation database at path and
// ensures both buckets exist. The parent directory is created when missing.
func Open(path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("convstore: create directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("convstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketConversations); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketUserIndex)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("convstore: create buckets: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create stores a new conversation for userID and returns it with ID and
// timestamps assigned.
func (s *Store) Create(_ context.Context, userID, title, model string) (*Conversation, error) {
	if userID == "" {
		return nil, fmt.Errorf("convstore: create: user id must not be empty")
	}

	now := s.now()
	conv := &Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Model:     model,
		Turns:     []llm.Turn{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := putConversation(tx, conv); err != nil {
			return err
		}
		return tx.Bucket(bucketUserIndex).Put(indexKey(userID, conv.ID), []byte(conv.ID))
	})
	if err != nil {
		return nil, fmt.Errorf("convstore: create: %w", err)
	}
	return conv, nil
}

// Get returns the conversation with the given ID, or [ErrNotFound].
func (s *Store) Get(_ context.Context, id string) (*Conversation, error) {
	var conv *Conversation
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketConversations).Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		conv = &Conversation{}
		return json.Unmarshal(raw, conv)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("convstore: get %s: %w", id, err)
	}
	return conv, nil
}

// ListByUser returns all of userID's conversations, most recently updated
// first.
func (s *Store) ListByUser(_ context.Context, userID string) ([]*Conversation, error) {
	out := []*Conversation{}
	err := s.db.View(func(tx *bolt.Tx) error {
		convs := tx.Bucket(bucketConversations)
		c := tx.Bucket(bucketUserIndex).Cursor()
		prefix := []byte(userID + "/")
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			raw := convs.Get(v)
			if raw == nil {
				continue // dangling index entry
			}
			conv := &Conversation{}
			if err := json.Unmarshal(raw, conv); err != nil {
				return err
			}
			out = append(out, conv)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("convstore: list for %s: %w", userID, err)
	}

	// Most recent activity first.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// AppendTurn appends one turn to the conversation's transcript and bumps
// UpdatedAt. Returns [ErrNotFound] for unknown IDs.
func (s *Store) AppendTurn(_ context.Context, id string, turn llm.Turn) (*Conversation, error) {
	var conv *Conversation
	err := s.db.Update(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketConversations).Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		conv = &Conversation{}
		if err := json.Unmarshal(raw, conv); err != nil {
			return err
		}
		conv.Turns = append(conv.Turns, turn)
		conv.UpdatedAt = s.now()
		return putConversation(tx, conv)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("convstore: append turn to %s: %w", id, err)
	}
	return conv, nil
}

// Delete removes the conversation and its index entry. Returns [ErrNotFound]
// for unknown IDs.
func (s *Store) Delete(_ context.Context, id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		convs := tx.Bucket(bucketConversations)
		raw := convs.Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		conv := &Conversation{}
		if err := json.Unmarshal(raw, conv); err != nil {
			return err
		}
		if err := convs.Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(bucketUserIndex).Delete(indexKey(conv.UserID, id))
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("convstore: delete %s: %w", id, err)
	}
	return nil
}

// Ping verifies the database file is still usable. Used by the readiness
// probe.
func (s *Store) Ping(context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketConversations) == nil {
			return fmt.Errorf("convstore: conversations bucket missing")
		}
		return nil
	})
}

func putConversation(tx *bolt.Tx, conv *Conversation) error {
	enc, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketConversations).Put([]byte(conv.ID), enc)
}

func indexKey(userID, convID string) []byte {
	return []byte(userID + "/" + convID)
}
