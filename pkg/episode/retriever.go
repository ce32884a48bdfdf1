package episode

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/memstack/memstack/pkg/search"
)

// Retrieved is the flattened episode record shape returned to callers,
// matching hybrid_search.py's EpisodeRetriever dict-of-properties return.
type Retrieved struct {
	UUID      string
	Name      string
	Content   string
	ProjectID string
	TenantID  string
	MemoryID  string
	Status    string
}

// Retriever fetches episodes directly (by uuid, recency, or memory id),
// independent of hybrid search — grounded on hybrid_search.py's
// EpisodeRetriever class.
type Retriever struct {
	graph Graph
}

// NewRetriever constructs a Retriever.
func NewRetriever(graph Graph) *Retriever {
	return &Retriever{graph: graph}
}

// RetrieveByUUID fetches a single episode by uuid. found is false if no
// matching Episodic node exists.
func (r *Retriever) RetrieveByUUID(ctx context.Context, uuid string) (Retrieved, bool, error) {
	result, err := r.graph.ExecuteQuery(ctx, `
		MATCH (e:Episodic {uuid: $uuid})
		RETURN e
	`, map[string]any{"uuid": uuid})
	if err != nil {
		return Retrieved{}, false, err
	}
	return firstEpisode(result)
}

// RetrieveByMemoryID fetches a single episode by memory_id.
func (r *Retriever) RetrieveByMemoryID(ctx context.Context, memoryID string) (Retrieved, bool, error) {
	result, err := r.graph.ExecuteQuery(ctx, `
		MATCH (e:Episodic {memory_id: $memory_id})
		RETURN e
	`, map[string]any{"memory_id": memoryID})
	if err != nil {
		return Retrieved{}, false, err
	}
	return firstEpisode(result)
}

// RetrieveRecent fetches the most recently created episodes for a
// project, newest first.
func (r *Retriever) RetrieveRecent(ctx context.Context, projectID string, limit int) ([]Retrieved, error) {
	if limit <= 0 {
		limit = 10
	}
	result, err := r.graph.ExecuteQuery(ctx, `
		MATCH (e:Episodic {project_id: $project_id})
		RETURN e
		ORDER BY e.created_at DESC
		LIMIT $limit
	`, map[string]any{"project_id": projectID, "limit": limit})
	if err != nil {
		return nil, err
	}
	return episodesFromRecords(result, "e")
}

// RetrieveWithEntities fetches an episode along with every entity it
// MENTIONS.
func (r *Retriever) RetrieveWithEntities(ctx context.Context, uuid string) (Retrieved, []map[string]any, error) {
	result, err := r.graph.ExecuteQuery(ctx, `
		MATCH (e:Episodic {uuid: $uuid})
		OPTIONAL MATCH (e)-[:MENTIONS]->(entity:Entity)
		RETURN e, collect(entity) AS entities
	`, map[string]any{"uuid": uuid})
	if err != nil {
		return Retrieved{}, nil, err
	}
	if len(result.Records) == 0 {
		return Retrieved{}, nil, nil
	}

	record := result.Records[0]
	episode, _ := episodeFromValue(valueAt(record, "e"))

	entities := []map[string]any{}
	if raw, ok := record.Get("entities"); ok {
		if list, ok := raw.([]any); ok {
			for _, item := range list {
				if node, ok := item.(neo4j.Node); ok {
					entities = append(entities, node.Props)
				}
			}
		}
	}
	return episode, entities, nil
}

func valueAt(record *neo4j.Record, key string) (any, bool) {
	return record.Get(key)
}

func firstEpisode(result *neo4j.EagerResult) (Retrieved, bool, error) {
	if len(result.Records) == 0 {
		return Retrieved{}, false, nil
	}
	episode, ok := episodeFromValue(valueAt(result.Records[0], "e"))
	return episode, ok, nil
}

func episodeFromValue(raw any, found bool) (Retrieved, bool) {
	if !found || raw == nil {
		return Retrieved{}, false
	}
	node, ok := raw.(neo4j.Node)
	if !ok {
		return Retrieved{}, false
	}
	props := node.Props
	return Retrieved{
		UUID:      stringProp(props, "uuid"),
		Name:      stringProp(props, "name"),
		Content:   stringProp(props, "content"),
		ProjectID: stringProp(props, "project_id"),
		TenantID:  stringProp(props, "tenant_id"),
		MemoryID:  stringProp(props, "memory_id"),
		Status:    stringProp(props, "status"),
	}, true
}

func episodesFromRecords(result *neo4j.EagerResult, key string) ([]Retrieved, error) {
	out := make([]Retrieved, 0, len(result.Records))
	for _, record := range result.Records {
		episode, ok := episodeFromValue(valueAt(record, key))
		if !ok {
			continue
		}
		out = append(out, episode)
	}
	return out, nil
}

// SearchResult mirrors native_graph_adapter.py's search() simplified
// item shape: a flat list of episode/entity dicts truncated to limit.
type SearchResult struct {
	Type    string
	UUID    string
	Content string
	Name    string
	Summary string
}

// Search delegates to the hybrid search engine and flattens its results
// into the simplified shape callers of the original adapter's search()
// expect.
func Search(ctx context.Context, engine *search.Engine, query, projectID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	result, err := engine.Search(ctx, query, projectID, limit, true, true)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}

	items := make([]SearchResult, 0, len(result.Items))
	for _, item := range result.Items {
		if item.Type == "episode" {
			items = append(items, SearchResult{Type: "episode", UUID: item.UUID, Content: item.Content})
		} else {
			items = append(items, SearchResult{Type: "entity", UUID: item.UUID, Name: item.Name, Summary: item.Summary})
		}
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
