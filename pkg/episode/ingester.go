package episode

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/memstack/memstack/pkg/extraction"
	"github.com/memstack/memstack/pkg/graphstore"
)

const embeddingDimCacheTTL = 10 * time.Second

// Graph is the narrow Neo4j dependency the ingester needs: node/edge
// persistence, status updates, and the raw query escape hatch the
// embedding-dimension check and cleanup cascades run against.
type Graph interface {
	ExecuteQuery(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error)
	SaveNode(ctx context.Context, labels []string, uuid string, properties map[string]any) error
	SaveEdge(ctx context.Context, fromUUID, toUUID, relationshipType string, properties map[string]any) error
}

// SchemaLoader is the narrow dependency on pkg/graphstore's SchemaRegistry.
type SchemaLoader interface {
	Get(ctx context.Context, projectID string) (*graphstore.SchemaContext, error)
	SaveDiscoveredTypesBatch(ctx context.Context, projectID string, newEntityTypes []graphstore.EntityType, newEdgeTypes []string, newEdgeTypeMaps [][3]string) error
}

// Extractor is the narrow dependency on pkg/extraction's Pipeline.
type Extractor interface {
	Extract(ctx context.Context, content string, schema *graphstore.SchemaContext, scoping extraction.Scoping, excludedTypes map[string]bool, existing []extraction.EntityNode) ([]extraction.EntityNode, []extraction.EntityEdge, error)
}

// Ingester implements episode lifecycle management: synchronous
// Episodic-node creation and enqueue, asynchronous extraction, and
// cascading removal, grounded on native_graph_adapter.py's add_episode/
// process_episode/remove_episode family.
type Ingester struct {
	graph     Graph
	schema    SchemaLoader
	extractor Extractor
	queue     Queuer
	embedder  Embedder

	autoClearEmbeddings bool

	mu            sync.Mutex
	dimCacheValue int
	dimCacheUntil time.Time
}

// NewIngester constructs an Ingester. A nil queue disables async
// processing, matching the source's "QueuePort not configured" warning
// path: AddEpisode logs a warning and returns the episode with no error.
func NewIngester(graph Graph, schema SchemaLoader, extractor Extractor, queue Queuer, embedder Embedder, autoClearEmbeddings bool) *Ingester {
	return &Ingester{
		graph:               graph,
		schema:              schema,
		extractor:           extractor,
		queue:               queue,
		embedder:            embedder,
		autoClearEmbeddings: autoClearEmbeddings,
	}
}

// AddEpisode creates the Episodic node (status=Processing) and enqueues
// the episode for async extraction. The episode is returned unchanged.
func (ig *Ingester) AddEpisode(ctx context.Context, ep Episode) (Episode, error) {
	if err := ig.checkEmbeddingDimension(ctx, false); err != nil {
		slog.Error("failed to check embedding dimension", "error", err)
	}

	if ep.UUID == "" {
		ep.UUID = uuid.New().String()
	}
	name := ep.Name
	if name == "" {
		name = ep.UUID
	}
	groupID := ep.ProjectID
	if groupID == "" {
		groupID = "global"
	}
	now := time.Now().UTC()
	validAt := ep.ValidAt
	if validAt.IsZero() {
		validAt = now
	}

	query := `
		MERGE (e:Episodic {uuid: $uuid})
		SET e:Node,
			e.name = $name,
			e.content = $content,
			e.source_description = $source_description,
			e.source = $source,
			e.created_at = datetime($created_at),
			e.valid_at = datetime($valid_at),
			e.group_id = $group_id,
			e.tenant_id = $tenant_id,
			e.project_id = $project_id,
			e.user_id = $user_id,
			e.memory_id = $memory_id,
			e.status = $status
	`
	_, err := ig.graph.ExecuteQuery(ctx, query, map[string]any{
		"uuid":               ep.UUID,
		"name":               name,
		"content":            ep.Content,
		"source_description": ep.SourceType,
		"source":             "text",
		"created_at":         now.Format(time.RFC3339),
		"valid_at":           validAt.Format(time.RFC3339),
		"group_id":           groupID,
		"tenant_id":          ep.TenantID,
		"project_id":         ep.ProjectID,
		"user_id":            ep.UserID,
		"memory_id":          ep.MemoryID,
		"status":             string(StatusProcessing),
	})
	if err != nil {
		return ep, fmt.Errorf("create episodic node: %w", err)
	}

	if ig.queue == nil {
		slog.Warn("no queue configured, episode will not be processed asynchronously", "episode_uuid", ep.UUID)
		return ep, nil
	}

	task := Task{
		EpisodeUUID:         ep.UUID,
		Content:             ep.Content,
		ProjectID:           ep.ProjectID,
		TenantID:            ep.TenantID,
		UserID:              ep.UserID,
		MemoryID:            ep.MemoryID,
		ExcludedEntityTypes: ep.ExcludedEntityTypes,
	}
	if err := ig.queue.Enqueue(ctx, task); err != nil {
		return ep, fmt.Errorf("enqueue episode for processing: %w", err)
	}
	return ep, nil
}

// ProcessEpisode runs extraction over the episode content and persists
// entities, MENTIONS edges, relationship edges, and discovered types. It
// is the async queue-consumer side of AddEpisode.
func (ig *Ingester) ProcessEpisode(ctx context.Context, task Task) (Result, error) {
	if err := ig.checkEmbeddingDimension(ctx, false); err != nil {
		slog.Error("failed to check embedding dimension", "error", err)
	}

	schema, err := ig.schema.Get(ctx, task.ProjectID)
	if err != nil {
		ig.markFailed(ctx, task.EpisodeUUID)
		return Result{}, fmt.Errorf("load schema context: %w", err)
	}

	existing, err := ig.existingEntities(ctx, task.ProjectID, 10000)
	if err != nil {
		slog.Warn("failed to load existing entities for dedup", "error", err)
	}

	excluded := make(map[string]bool, len(task.ExcludedEntityTypes))
	for _, t := range task.ExcludedEntityTypes {
		excluded[t] = true
	}

	entities, edges, err := ig.extractor.Extract(ctx, task.Content, schema, extraction.Scoping{ProjectID: task.ProjectID}, excluded, existing)
	if err != nil {
		ig.markFailed(ctx, task.EpisodeUUID)
		return Result{}, fmt.Errorf("extract: %w", err)
	}

	mentionsUUIDs := make([]string, 0, len(entities))
	entityUUIDs := make([]string, 0, len(entities))
	for _, e := range entities {
		props := map[string]any{
			"name":        e.Name,
			"entity_type": e.EntityType,
			"summary":     e.Summary,
			"project_id":  task.ProjectID,
			"tenant_id":   task.TenantID,
		}
		if len(e.NameEmbedding) > 0 {
			props["name_embedding"] = e.NameEmbedding
			props["embedding_dim"] = len(e.NameEmbedding)
		}
		if err := ig.graph.SaveNode(ctx, []string{"Entity"}, e.UUID, props); err != nil {
			ig.markFailed(ctx, task.EpisodeUUID)
			return Result{}, fmt.Errorf("save entity node %s: %w", e.UUID, err)
		}

		mentionsUUID := uuid.New().String()
		if err := ig.graph.SaveEdge(ctx, task.EpisodeUUID, e.UUID, "MENTIONS", map[string]any{"uuid": mentionsUUID}); err != nil {
			ig.markFailed(ctx, task.EpisodeUUID)
			return Result{}, fmt.Errorf("save mentions edge to %s: %w", e.UUID, err)
		}
		mentionsUUIDs = append(mentionsUUIDs, mentionsUUID)
		entityUUIDs = append(entityUUIDs, e.UUID)
	}

	edgeUUIDs := make([]string, 0, len(edges))
	for _, e := range edges {
		if err := ig.graph.SaveEdge(ctx, e.FromEntity, e.ToEntity, "RELATES_TO", map[string]any{
			"uuid":              e.UUID,
			"relationship_type": e.RelationshipType,
			"summary":           e.Summary,
			"weight":            e.Weight,
			"episodes":          []string{task.EpisodeUUID},
		}); err != nil {
			ig.markFailed(ctx, task.EpisodeUUID)
			return Result{}, fmt.Errorf("save relationship edge %s: %w", e.UUID, err)
		}
		edgeUUIDs = append(edgeUUIDs, e.UUID)
	}

	if task.ProjectID != "" {
		ig.saveDiscoveredTypes(ctx, task.ProjectID, entities, edges, schema)
	}

	if _, err := ig.graph.ExecuteQuery(ctx, `
		MATCH (e:Episodic {uuid: $uuid})
		SET e.status = $status, e.entity_edges = $entity_edges
	`, map[string]any{"uuid": task.EpisodeUUID, "status": string(StatusSynced), "entity_edges": edgeUUIDs}); err != nil {
		return Result{}, fmt.Errorf("update episode status to synced: %w", err)
	}

	return Result{
		EpisodeUUID:   task.EpisodeUUID,
		EntityUUIDs:   entityUUIDs,
		EdgeUUIDs:     edgeUUIDs,
		MentionsUUIDs: mentionsUUIDs,
	}, nil
}

func (ig *Ingester) markFailed(ctx context.Context, episodeUUID string) {
	if _, err := ig.graph.ExecuteQuery(ctx, `
		MATCH (e:Episodic {uuid: $uuid})
		SET e.status = $status
	`, map[string]any{"uuid": episodeUUID, "status": string(StatusFailed)}); err != nil {
		slog.Error("failed to mark episode as failed", "episode_uuid", episodeUUID, "error", err)
	}
}

// saveDiscoveredTypes persists newly seen entity types, edge types, and
// (source_type,target_type,edge_type) mappings to the schema registry,
// deduped against what's already known. Failures are logged, not fatal,
// matching the source's "don't fail the episode processing" behavior.
func (ig *Ingester) saveDiscoveredTypes(ctx context.Context, projectID string, entities []extraction.EntityNode, edges []extraction.EntityEdge, schema *graphstore.SchemaContext) {
	known := make(map[string]bool, len(schema.EntityTypes))
	for _, et := range schema.EntityTypes {
		known[et.Name] = true
	}

	var newEntityTypes []graphstore.EntityType
	for _, e := range entities {
		if e.EntityType == "" || known[e.EntityType] {
			continue
		}
		newEntityTypes = append(newEntityTypes, graphstore.EntityType{
			Name:        e.EntityType,
			Description: fmt.Sprintf("Auto-discovered %s entity type.", e.EntityType),
		})
		known[e.EntityType] = true
	}

	entityTypeByUUID := make(map[string]string, len(entities))
	for _, e := range entities {
		entityTypeByUUID[e.UUID] = e.EntityType
	}

	seenEdgeTypes := make(map[string]bool)
	var newEdgeTypes []string
	seenMaps := make(map[[3]string]bool)
	var newEdgeTypeMaps [][3]string

	for _, e := range edges {
		if e.RelationshipType == "" || e.RelationshipType == "MENTIONS" || e.RelationshipType == "BELONGS_TO" {
			continue
		}
		if !schema.EdgeTypes[e.RelationshipType] && !seenEdgeTypes[e.RelationshipType] {
			newEdgeTypes = append(newEdgeTypes, e.RelationshipType)
			seenEdgeTypes[e.RelationshipType] = true
		}

		sourceType := entityTypeByUUID[e.FromEntity]
		if sourceType == "" {
			sourceType = "Entity"
		}
		targetType := entityTypeByUUID[e.ToEntity]
		if targetType == "" {
			targetType = "Entity"
		}
		key := [3]string{sourceType, targetType, e.RelationshipType}
		if !seenMaps[key] {
			newEdgeTypeMaps = append(newEdgeTypeMaps, key)
			seenMaps[key] = true
		}
	}

	if len(newEntityTypes) == 0 && len(newEdgeTypes) == 0 && len(newEdgeTypeMaps) == 0 {
		return
	}
	if err := ig.schema.SaveDiscoveredTypesBatch(ctx, projectID, newEntityTypes, newEdgeTypes, newEdgeTypeMaps); err != nil {
		slog.Warn("failed to save discovered types", "project_id", projectID, "error", err)
	}
}

// RemoveEpisode deletes orphaned relationship edges, orphaned entity
// nodes, then the episode node itself. It reraises (returns) on failure,
// matching the source's remove_episode.
func (ig *Ingester) RemoveEpisode(ctx context.Context, episodeUUID string) error {
	if _, err := ig.graph.ExecuteQuery(ctx, `
		MATCH (ep:Episodic {uuid: $uuid})
		WHERE ep.entity_edges IS NOT NULL
		WITH ep, ep.entity_edges AS edge_uuids
		UNWIND edge_uuids AS edge_uuid
		MATCH (e1:Entity)-[r:RELATES_TO {uuid: edge_uuid}]->(e2:Entity)
		WHERE r.episodes IS NOT NULL AND size(r.episodes) = 1 AND r.episodes[0] = $uuid
		DELETE r
	`, map[string]any{"uuid": episodeUUID}); err != nil {
		return fmt.Errorf("delete orphan edges: %w", err)
	}

	if _, err := ig.graph.ExecuteQuery(ctx, `
		MATCH (ep:Episodic {uuid: $uuid})-[:MENTIONS]->(n:Entity)
		WHERE NOT EXISTS {
			MATCH (other:Episodic)-[:MENTIONS]->(n)
			WHERE other.uuid <> $uuid
		}
		DETACH DELETE n
	`, map[string]any{"uuid": episodeUUID}); err != nil {
		return fmt.Errorf("delete orphan entities: %w", err)
	}

	if _, err := ig.graph.ExecuteQuery(ctx, `
		MATCH (ep:Episodic {uuid: $uuid})
		DETACH DELETE ep
	`, map[string]any{"uuid": episodeUUID}); err != nil {
		return fmt.Errorf("delete episode node: %w", err)
	}
	return nil
}

// RemoveEpisodeByMemoryID is the memory-scoped variant: it additionally
// clears name_embedding on mentioned entities first, and never returns an
// error, logging and reporting false instead (matching the source, which
// treats this path as best-effort cleanup).
func (ig *Ingester) RemoveEpisodeByMemoryID(ctx context.Context, memoryID string) bool {
	if _, err := ig.graph.ExecuteQuery(ctx, `
		MATCH (ep:Episodic {memory_id: $memory_id})-[:MENTIONS]->(n:Entity)
		REMOVE n.name_embedding
		RETURN count(n) AS cleared_count
	`, map[string]any{"memory_id": memoryID}); err != nil {
		slog.Warn("failed to remove episode by memory id", "memory_id", memoryID, "error", err)
		return false
	}

	if _, err := ig.graph.ExecuteQuery(ctx, `
		MATCH (ep:Episodic {memory_id: $memory_id})
		WHERE ep.entity_edges IS NOT NULL
		WITH ep, ep.entity_edges AS edge_uuids
		UNWIND edge_uuids AS edge_uuid
		MATCH (e1:Entity)-[r:RELATES_TO {uuid: edge_uuid}]->(e2:Entity)
		WHERE r.episodes IS NOT NULL AND size(r.episodes) = 1 AND r.episodes[0] = ep.uuid
		DELETE r
	`, map[string]any{"memory_id": memoryID}); err != nil {
		slog.Warn("failed to remove episode by memory id", "memory_id", memoryID, "error", err)
		return false
	}

	if _, err := ig.graph.ExecuteQuery(ctx, `
		MATCH (ep:Episodic {memory_id: $memory_id})-[:MENTIONS]->(n:Entity)
		WHERE NOT EXISTS {
			MATCH (other:Episodic)-[:MENTIONS]->(n)
			WHERE other.memory_id <> $memory_id
		}
		DETACH DELETE n
	`, map[string]any{"memory_id": memoryID}); err != nil {
		slog.Warn("failed to remove episode by memory id", "memory_id", memoryID, "error", err)
		return false
	}

	if _, err := ig.graph.ExecuteQuery(ctx, `
		MATCH (ep:Episodic {memory_id: $memory_id})
		DETACH DELETE ep
	`, map[string]any{"memory_id": memoryID}); err != nil {
		slog.Warn("failed to remove episode by memory id", "memory_id", memoryID, "error", err)
		return false
	}
	return true
}

// checkEmbeddingDimension compares the embedder's declared dimension
// against whatever dimension is recorded on existing entities, caching the
// result for embeddingDimCacheTTL. On mismatch it either clears the
// stale-dimension embeddings or just logs, depending on autoClearEmbeddings.
func (ig *Ingester) checkEmbeddingDimension(ctx context.Context, force bool) error {
	currentDim := ig.embedder.Dimensions()
	now := time.Now()

	ig.mu.Lock()
	if !force && ig.dimCacheValue == currentDim && now.Before(ig.dimCacheUntil) {
		ig.mu.Unlock()
		return nil
	}
	ig.mu.Unlock()

	existingDim, err := ig.existingEmbeddingDimension(ctx)
	if err != nil {
		return err
	}

	if existingDim == 0 || existingDim == currentDim {
		ig.mu.Lock()
		ig.dimCacheValue = currentDim
		ig.dimCacheUntil = now.Add(embeddingDimCacheTTL)
		ig.mu.Unlock()
		return nil
	}

	slog.Warn("embedding dimension mismatch detected", "existing_dim", existingDim, "current_dim", currentDim)
	ig.mu.Lock()
	ig.dimCacheValue = 0
	ig.dimCacheUntil = time.Time{}
	ig.mu.Unlock()

	if !ig.autoClearEmbeddings {
		slog.Warn("auto-clear disabled, embeddings must be cleared manually")
		return nil
	}

	cleared, err := ig.clearEmbeddingsByDimension(ctx, existingDim)
	if err != nil {
		return err
	}
	slog.Info("cleared mismatched embeddings", "count", cleared, "dimension", existingDim)

	ig.mu.Lock()
	ig.dimCacheValue = currentDim
	ig.dimCacheUntil = now.Add(embeddingDimCacheTTL)
	ig.mu.Unlock()
	return nil
}

func (ig *Ingester) existingEmbeddingDimension(ctx context.Context) (int, error) {
	result, err := ig.graph.ExecuteQuery(ctx, `
		MATCH (n:Entity)
		WHERE n.embedding_dim IS NOT NULL
		WITH n LIMIT 1
		RETURN n.embedding_dim AS dim
	`, nil)
	if err == nil {
		if dim, ok := intProp(result, "dim"); ok {
			return dim, nil
		}
	}

	result, err = ig.graph.ExecuteQuery(ctx, `
		MATCH (n:Entity)
		WHERE n.name_embedding IS NOT NULL
		WITH n LIMIT 1
		RETURN size(n.name_embedding) AS dim
	`, nil)
	if err != nil {
		return 0, nil
	}
	if dim, ok := intProp(result, "dim"); ok {
		return dim, nil
	}
	return 0, nil
}

func (ig *Ingester) clearEmbeddingsByDimension(ctx context.Context, dimension int) (int, error) {
	result, err := ig.graph.ExecuteQuery(ctx, `
		MATCH (n:Entity)
		WHERE n.name_embedding IS NOT NULL AND size(n.name_embedding) = $dimension
		REMOVE n.name_embedding
		RETURN count(n) AS cleared
	`, map[string]any{"dimension": dimension})
	if err != nil {
		return 0, err
	}
	if cleared, ok := intProp(result, "cleared"); ok {
		return cleared, nil
	}
	return 0, nil
}

func (ig *Ingester) existingEntities(ctx context.Context, projectID string, limit int) ([]extraction.EntityNode, error) {
	result, err := ig.graph.ExecuteQuery(ctx, `
		MATCH (e:Entity)
		WHERE $project_id IS NULL OR e.project_id = $project_id
		RETURN e
		ORDER BY e.created_at DESC
		LIMIT $limit
	`, map[string]any{"project_id": nilIfEmpty(projectID), "limit": limit})
	if err != nil {
		return nil, err
	}
	return nodesToEntities(result)
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func intProp(result *neo4j.EagerResult, key string) (int, bool) {
	if result == nil || len(result.Records) == 0 {
		return 0, false
	}
	raw, found := result.Records[0].Get(key)
	if !found || raw == nil {
		return 0, false
	}
	switch v := raw.(type) {
	case int64:
		return int(v), true
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// nodesToEntities converts a result set of "e" Entity nodes into
// extraction.EntityNode values for dedup comparison, tolerating
// malformed rows by skipping them.
func nodesToEntities(result *neo4j.EagerResult) ([]extraction.EntityNode, error) {
	if result == nil {
		return nil, nil
	}
	entities := make([]extraction.EntityNode, 0, len(result.Records))
	for _, record := range result.Records {
		raw, found := record.Get("e")
		if !found {
			continue
		}
		node, ok := raw.(neo4j.Node)
		if !ok {
			continue
		}
		props := node.Props
		entity := extraction.EntityNode{
			UUID:       stringProp(props, "uuid"),
			Name:       stringProp(props, "name"),
			EntityType: stringProp(props, "entity_type"),
			Summary:    stringProp(props, "summary"),
			ProjectID:  stringProp(props, "project_id"),
		}
		if entity.EntityType == "" {
			entity.EntityType = "Entity"
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

func stringProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}
