// Package community implements Louvain-based entity clustering over the
// knowledge graph, with an accelerated GDS path and an in-process
// fallback, plus LLM-driven community summarization.
package community

import (
	"context"
	"time"
)

// Node is a detected community, persisted as a Community graph node with
// BELONGS_TO edges from its member entities.
type Node struct {
	UUID        string
	Name        string
	Summary     string
	MemberCount int
	ProjectID   string
	TenantID    string
	CreatedAt   time.Time
}

// Completer is the narrow LLM dependency used for summarization; the LLM
// call itself is out of scope.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
