// Package extraction implements the entity/relationship extraction
// pipeline of spec §4.4: prompt-driven entity extraction with optional
// reflexion, exclusion filtering, hash-based dedup against existing
// entities, and constrained relationship extraction.
package extraction

import (
	"context"
	"time"
)

// EntityNode is a conceptual entity discovered in episode content
// (spec §3).
type EntityNode struct {
	UUID          string
	Name          string
	EntityType    string
	Summary       string
	NameEmbedding []float32
	Attributes    map[string]any
	ProjectID     string
	CreatedAt     time.Time
}

// EntityEdge is a typed directed relationship between two entities
// (spec §3). Weight must be in [0,1].
type EntityEdge struct {
	UUID                 string
	FromEntity           string
	ToEntity             string
	RelationshipType     string
	Summary              string
	Weight               float64
	ContributingEpisodes []string
}

// Scoping carries the project/tenant boundary extraction runs within.
type Scoping struct {
	ProjectID string
}

// Completer is the narrow LLM dependency this pipeline needs: given a
// prompt, return raw text completion. Model selection, retries, and
// streaming are the caller's concern (out of scope per spec §1).
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
