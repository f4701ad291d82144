// Package mock provides a test double for the embeddings.Provider interface.
//
// By default the Provider derives a deterministic vector from each input text,
// so related tests get stable, distinct embeddings without configuring every
// string up front. Exact vectors can be pinned per text via Vectors.
package mock

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/mnemo-ai/mnemo/pkg/provider/embeddings"
)

// Ensure Provider implements embeddings.Provider at compile time.
var _ embeddings.Provider = (*Provider)(nil)

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// Vectors maps input text to the exact vector to return. Texts absent
	// from the map get a deterministic vector derived from their content.
	Vectors map[string][]float32

	// Err, if non-nil, is returned from Embed and EmbedBatch.
	Err error

	// Dims is the vector length reported by Dimensions and used for derived
	// vectors. Zero defaults to 3.
	Dims int

	// Model is returned by ModelID. Empty defaults to "mock-embed".
	Model string

	// EmbedTexts records every text passed to Embed, in order.
	EmbedTexts []string

	// BatchCalls records the texts slice of every EmbedBatch call.
	BatchCalls [][]string
}

// Embed records the call and returns the configured or derived vector.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedTexts = append(p.EmbedTexts, text)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.vectorFor(text), nil
}

// EmbedBatch records the call and returns one vector per input text.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]string, len(texts))
	copy(cp, texts)
	p.BatchCalls = append(p.BatchCalls, cp)
	if p.Err != nil {
		return nil, p.Err
	}
	result := make([][]float32, len(texts))
	for i, t := range texts {
		result[i] = p.vectorFor(t)
	}
	return result, nil
}

// Dimensions returns Dims, defaulting to 3.
func (p *Provider) Dimensions() int {
	if p.Dims == 0 {
		return 3
	}
	return p.Dims
}

// ModelID returns Model, defaulting to "mock-embed".
func (p *Provider) ModelID() string {
	if p.Model == "" {
		return "mock-embed"
	}
	return p.Model
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedTexts = nil
	p.BatchCalls = nil
}

// vectorFor returns the pinned vector for text, or derives a stable one from
// an FNV hash of the content. Callers must hold p.mu.
func (p *Provider) vectorFor(text string) []float32 {
	if v, ok := p.Vectors[text]; ok {
		return v
	}
	dims := p.Dims
	if dims == 0 {
		dims = 3
	}
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()
	vec := make([]float32, dims)
	for i := range vec {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(seed%1000)/1000 + 0.001
	}
	return vec
}
