// Package memory defines the persistent memory model for Mnemo.
//
// A [Record] is one remembered fact about a user: a past utterance, a
// summary, or a piece of knowledge, together with the embedding vector used
// for similarity retrieval. Records are append-only — once created they are
// never mutated; lifecycle (expiry, deletion) belongs to the backing store.
//
// The [Store] interface is the contract consumed from storage backends
// (Postgres/pgvector, in-memory, …); the [Manager] layers embedding
// computation and similarity ranking on top of it. All implementations must
// be safe for concurrent use.
package memory

import "time"

// Kind classifies what a memory record represents.
type Kind string

const (
	// KindMessage is a verbatim user utterance retained from a conversation.
	KindMessage Kind = "message"

	// KindSummary is a condensed recap of a longer exchange.
	KindSummary Kind = "summary"

	// KindKnowledge is a standalone piece of knowledge about the user's world.
	KindKnowledge Kind = "knowledge"

	// KindFact is a discrete fact stated by or about the user.
	KindFact Kind = "fact"
)

// IsValid reports whether k is a recognised memory kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindMessage, KindSummary, KindKnowledge, KindFact:
		return true
	}
	return false
}

// Record is a single memory entry. Immutable once stored.
type Record struct {
	// ID is the store-assigned unique identifier.
	ID string

	// UserID is the owning user. Never empty for stored records.
	UserID string

	// ConversationID optionally scopes the record to one conversation.
	ConversationID string

	// Content is the remembered text.
	Content string

	// Embedding is the vector representation of Content. Nil until computed;
	// all non-nil embeddings compared against each other must share one
	// dimensionality.
	Embedding []float32

	// Kind classifies the record.
	Kind Kind

	// Importance is a 0–10 retention weight. Not used for ranking yet;
	// retained for store-side lifecycle policy.
	Importance int

	// CreatedAt is when the record was stored.
	CreatedAt time.Time

	// Metadata holds free-form key/value annotations.
	Metadata map[string]any
}

// Filter narrows a Store query. Zero-value fields are not applied;
// UserID is mandatory.
type Filter struct {
	// UserID restricts results to one user's records.
	UserID string

	// ConversationID, when non-empty, further restricts results to one
	// conversation.
	ConversationID string
}

// RankedRecord pairs a retrieved record with its similarity score against
// the query embedding.
type RankedRecord struct {
	Record

	// Score is the cosine similarity to the query, in [-1, 1]. Records
	// without an embedding carry score 0.
	Score float64
}
