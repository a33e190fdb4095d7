// Package store provides the semantic vector capability: an HNSW index over
// chunk embeddings plus the note-level chunk table that sits on top of it.
package store

import (
	"fmt"
)

// VectorResult represents a single vector search result.
type VectorResult struct {
	ID       string  // Chunk ID
	Distance float32 // Lower is more similar (0-2 for cosine)
	Score    float32 // Normalized similarity (0-1)
}

// IndexConfig configures the HNSW index.
type IndexConfig struct {
	// Dimensions is the vector width. 0 is fixed by the first Add.
	Dimensions int

	// Metric is the distance metric: "cos" (cosine), "l2" (euclidean) (default: "cos")
	Metric string

	// M is HNSW max connections per layer (default: 16)
	M int

	// EfSearch is HNSW query-time search width (default: 20)
	EfSearch int
}

// DefaultIndexConfig returns sensible defaults for the index.
func DefaultIndexConfig(dimensions int) IndexConfig {
	return IndexConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   64,
	}
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (delete the vector files and run 'notemesh index')", e.Expected, e.Got)
}

// Chunk is one embedded slice of a note body.
type Chunk struct {
	ID     string // "<path>#<index>"
	Path   string
	Title  string
	Folder string
	Index  int
	Text   string
	Tags   []string
	Links  []string
}

// Hit is a chunk returned from a similarity search.
type Hit struct {
	Chunk Chunk
	Score float32
}
