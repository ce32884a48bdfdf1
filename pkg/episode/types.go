// Package episode implements episode ingestion: synchronous Episodic
// node creation followed by asynchronous entity/relationship extraction,
// plus removal and retrieval of episodes.
package episode

import (
	"context"
	"time"
)

// Status is the processing lifecycle of an episode.
type Status string

const (
	StatusProcessing Status = "Processing"
	StatusSynced     Status = "Synced"
	StatusFailed     Status = "Failed"
)

// Episode is the domain object passed to AddEpisode.
type Episode struct {
	UUID                string
	Name                string
	Content             string
	SourceType          string
	ProjectID           string
	TenantID            string
	UserID              string
	MemoryID            string
	ValidAt             time.Time
	ExcludedEntityTypes []string
}

// Task is the async processing payload enqueued to the queue collaborator
// and consumed by ProcessEpisode.
type Task struct {
	EpisodeUUID         string
	Content             string
	ProjectID           string
	TenantID            string
	UserID              string
	MemoryID            string
	ExcludedEntityTypes []string
}

// Queuer is the narrow external-queue dependency add_episode enqueues to;
// the queue implementation itself (background worker pool, retry/backoff
// policy) lives outside this package's scope.
type Queuer interface {
	Enqueue(ctx context.Context, task Task) error
}

// Embedder reports the embedding backend's declared dimension, used for
// the dimension-compatibility check.
type Embedder interface {
	Dimensions() int
}

// Result is returned by ProcessEpisode summarizing what was persisted.
type Result struct {
	EpisodeUUID   string
	EntityUUIDs   []string
	EdgeUUIDs     []string
	MentionsUUIDs []string
}
