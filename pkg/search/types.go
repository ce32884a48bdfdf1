// Package search implements hybrid vector+keyword retrieval over the
// knowledge graph: Reciprocal Rank Fusion, temporal decay, MMR diversity
// re-ranking, and stopword-based query expansion.
package search

import "context"

// SearchResultItem is a single ranked hit, either an entity or an episode.
type SearchResultItem struct {
	Type     string // "entity" or "episode"
	UUID     string
	Name     string
	Content  string // set for episodes
	Summary  string // set for entities
	Score    float64
	Metadata map[string]any
}

// HybridSearchResult is the aggregate response of a Search call.
type HybridSearchResult struct {
	Items               []SearchResultItem
	TotalResults        int
	VectorResultsCount  int
	KeywordResultsCount int
}

// Embedder generates a query embedding. Narrow interface standing in for
// the out-of-scope embedding backend.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}
