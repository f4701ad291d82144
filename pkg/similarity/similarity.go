// Package similarity implements cosine similarity scoring and ranking over
// embedding vectors.
//
// The package is pure: every function is deterministic for identical inputs,
// performs no I/O, and is safe for concurrent use. It is the scoring core of
// the memory retrieval path — the [memory.Manager] ranks a user's stored
// memories against a query embedding via [Rank].
//
// Vectors compared against each other must share the same dimensionality;
// mixing vectors from different embedding models is a contract violation and
// surfaces as a [DimensionMismatchError] rather than a silent zero score.
package similarity

import (
	"fmt"
	"math"
	"sort"
)

// DimensionMismatchError reports an attempt to compare two vectors of
// different lengths. This is a programmer or data error, never retried.
type DimensionMismatchError struct {
	// LenA and LenB are the lengths of the two incompatible vectors.
	LenA, LenB int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("similarity: dimension mismatch: %d vs %d", e.LenA, e.LenB)
}

// Cosine returns the cosine similarity between a and b in the range [-1, 1]:
// dot(a,b) / (‖a‖·‖b‖).
//
// When either vector has zero magnitude the result is 0 and no error is
// returned — degenerate or un-embedded records rank last instead of aborting
// a whole ranking batch. A length mismatch returns a [DimensionMismatchError].
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, &DimensionMismatchError{LenA: len(a), LenB: len(b)}
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Scored pairs a corpus index with its similarity score against the query.
type Scored struct {
	// Index is the entry's position in the original corpus slice.
	Index int

	// Score is the cosine similarity against the query vector.
	Score float64
}

// Rank scores every corpus entry against query and returns the top k entries
// ordered by descending score. Ties keep the corpus's original order (stable
// sort), so equally-scored entries surface in insertion order. When the corpus
// holds fewer than k entries all of them are returned; an empty corpus yields
// an empty slice.
//
// A nil or empty corpus entry scores 0 (the zero-magnitude policy of [Cosine]).
// A non-empty entry whose length differs from the query fails the whole call
// with a [DimensionMismatchError].
func Rank(query []float32, corpus [][]float32, k int) ([]Scored, error) {
	if k < 0 {
		k = 0
	}

	scored := make([]Scored, 0, len(corpus))
	for i, vec := range corpus {
		if len(vec) == 0 {
			// Un-embedded entries participate with score 0 so they can still
			// surface via the stable tie-break when nothing ranks higher.
			scored = append(scored, Scored{Index: i, Score: 0})
			continue
		}
		s, err := Cosine(query, vec)
		if err != nil {
			return nil, fmt.Errorf("rank corpus entry %d: %w", i, err)
		}
		scored = append(scored, Scored{Index: i, Score: s})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}
