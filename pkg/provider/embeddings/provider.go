// Package embeddings defines the Provider interface for text-embedding
// backends.
//
// An embeddings provider maps text to dense float32 vectors. The memory layer
// uses these vectors to rank stored memories by cosine similarity against the
// current chat message, so every vector that ends up in the same similarity
// computation must come from the same provider instance (same model, same
// vector space).
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by a single Provider share the dimensionality reported
// by Dimensions. Text is passed through verbatim; any model-specific prompt
// formatting (e.g. a "query: " prefix) is the caller's responsibility.
type Provider interface {
	// Embed computes the embedding vector for a single text string. The
	// returned slice has length Dimensions().
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes embedding vectors for a slice of texts in a single
	// provider call. The returned slice has the same length and order as
	// texts. On error the entire result is nil; partial results are never
	// returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector produced by this
	// provider. Constant for the lifetime of the instance.
	Dimensions() int

	// ModelID returns the provider-specific embedding model identifier,
	// e.g. "text-embedding-3-small". Used for logging and for verifying
	// that stored and query embeddings share a model.
	ModelID() string
}
