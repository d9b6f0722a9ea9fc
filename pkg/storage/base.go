// Package storage provides interfaces and types for vector storage backends.
//
// The knowledge package indexes schema chunks through a VectorStore. Every
// backend must return search results by descending similarity with ties
// broken by ascending ID, so callers get the same ordering whichever backend
// is configured.
package storage

import (
	"context"
	"math"
	"sort"
	"time"
)

// Entry is one embedded text stored in a vector store.
type Entry struct {
	// ID is the unique identifier, assigned by the caller. IDs increase in
	// insertion order (snowflake IDs satisfy this).
	ID int64

	// Content is the embedded text.
	Content string

	// Embedding is the vector embedding for similarity search.
	Embedding []float64

	// Metadata contains additional structured information (table name, chunk type, ...).
	Metadata map[string]interface{}

	// CreatedAt is when the entry was inserted.
	CreatedAt time.Time

	// Score is the similarity score from search operations.
	Score float64
}

// VectorStore defines the interface for vector storage backends.
type VectorStore interface {
	// Insert inserts an entry into the store.
	Insert(ctx context.Context, entry *Entry) error

	// Search performs vector similarity search.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//   - embedding: Query embedding vector
	//   - opts: Search options (Limit, MinScore, Filters)
	//
	// Returns matching entries sorted by similarity (highest first, ties by ID).
	Search(ctx context.Context, embedding []float64, opts *SearchOptions) ([]*Entry, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// DeleteAll removes every entry.
	DeleteAll(ctx context.Context) error

	// Close closes the store and releases resources.
	Close() error
}

// SearchOptions contains options for search operations.
type SearchOptions struct {
	// Limit sets the maximum number of results to return. Zero means no limit.
	Limit int

	// MinScore sets the minimum similarity score for results.
	MinScore float64

	// Filters restricts results to entries whose metadata has the given
	// key/value pairs.
	Filters map[string]interface{}
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Vectors of different length or zero norm score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SortByScore sorts entries by score (descending, ties by ascending ID) and
// truncates to limit when limit is positive.
func SortByScore(entries []*Entry, limit int) []*Entry {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].ID < entries[j].ID
	})

	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}
