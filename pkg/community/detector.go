package community

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// GraphRunner is the narrow Neo4j dependency the detector needs,
// matching pkg/graphstore.Client.ExecuteQuery so tests can substitute a
// fake instead of a live connection.
type GraphRunner interface {
	ExecuteQuery(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error)
}

// Detector runs Louvain community detection over a project's entity
// graph, using Neo4j's Graph Data Science library when available and
// falling back to an in-process implementation otherwise.
type Detector struct {
	graph            GraphRunner
	useGDS           bool
	minCommunitySize int
	mu               sync.Mutex
	gdsAvailable     *bool
}

// NewDetector constructs a Detector. minCommunitySize defaults to 2 when
// given as 0 or negative, matching the source's default.
func NewDetector(graph GraphRunner, useGDS bool, minCommunitySize int) *Detector {
	if minCommunitySize <= 0 {
		minCommunitySize = 2
	}
	return &Detector{graph: graph, useGDS: useGDS, minCommunitySize: minCommunitySize}
}

// DetectCommunities detects communities for a project, preferring the
// GDS-accelerated path when available and enabled.
func (d *Detector) DetectCommunities(ctx context.Context, projectID, tenantID string) ([]Node, error) {
	if d.useGDS && d.checkGDSAvailable(ctx) {
		return d.detectWithGDS(ctx, projectID, tenantID)
	}
	return d.detectNative(ctx, projectID, tenantID)
}

func (d *Detector) checkGDSAvailable(ctx context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gdsAvailable != nil {
		return *d.gdsAvailable
	}

	available := false
	result, err := d.graph.ExecuteQuery(ctx, "RETURN gds.version() AS version", nil)
	if err == nil && len(result.Records) > 0 {
		available = true
	} else if err != nil {
		slog.Info("neo4j GDS availability check failed, treating GDS as unavailable", "error", err)
	}
	d.gdsAvailable = &available
	return available
}

func (d *Detector) detectWithGDS(ctx context.Context, projectID, tenantID string) ([]Node, error) {
	graphName := "community_graph_" + projectID

	nodeQuery := fmt.Sprintf(
		"MATCH (n:Entity) WHERE n.project_id = '%s' RETURN id(n) AS id, n.uuid AS uuid",
		escapeCypherLiteral(projectID),
	)
	relQuery := fmt.Sprintf(
		"MATCH (a:Entity)-[r]->(b:Entity) WHERE a.project_id = '%s' AND b.project_id = '%s' RETURN id(a) AS source, id(b) AS target, coalesce(r.weight, 1.0) AS weight",
		escapeCypherLiteral(projectID), escapeCypherLiteral(projectID),
	)
	createQuery := `
		CALL gds.graph.project.cypher($graph_name, $node_query, $rel_query)
		YIELD graphName, nodeCount, relationshipCount
		RETURN graphName, nodeCount, relationshipCount
	`

	defer func() {
		_, _ = d.graph.ExecuteQuery(ctx, "CALL gds.graph.drop($name, false)", map[string]any{"name": graphName})
	}()

	params := map[string]any{"graph_name": graphName, "node_query": nodeQuery, "rel_query": relQuery}
	if _, err := d.graph.ExecuteQuery(ctx, createQuery, params); err != nil {
		if !strings.Contains(strings.ToLower(err.Error()), "already exists") {
			return nil, fmt.Errorf("project gds graph: %w", err)
		}
		if _, dropErr := d.graph.ExecuteQuery(ctx, "CALL gds.graph.drop($name, false)", map[string]any{"name": graphName}); dropErr != nil {
			return nil, fmt.Errorf("drop stale gds graph: %w", dropErr)
		}
		if _, err := d.graph.ExecuteQuery(ctx, createQuery, params); err != nil {
			return nil, fmt.Errorf("project gds graph after drop: %w", err)
		}
	}

	louvainQuery := `
		CALL gds.louvain.stream($graph_name, {relationshipWeightProperty: 'weight'})
		YIELD nodeId, communityId
		WITH gds.util.asNode(nodeId) AS node, communityId
		RETURN communityId, collect(node.uuid) AS member_uuids
	`
	result, err := d.graph.ExecuteQuery(ctx, louvainQuery, map[string]any{"graph_name": graphName})
	if err != nil {
		return nil, fmt.Errorf("run gds louvain: %w", err)
	}

	communities := make([]Node, 0, len(result.Records))
	for _, record := range result.Records {
		communityID, _, _ := neo4j.GetRecordValue[int64](record, "communityId")
		memberUUIDs, _, _ := neo4j.GetRecordValue[[]any](record, "member_uuids")
		if len(memberUUIDs) < d.minCommunitySize {
			continue
		}
		communities = append(communities, Node{
			UUID:        uuid.New().String(),
			Name:        fmt.Sprintf("Community_%d", communityID),
			MemberCount: len(memberUUIDs),
			ProjectID:   projectID,
			TenantID:    tenantID,
			CreatedAt:   time.Now().UTC(),
		})
	}
	return communities, nil
}

func (d *Detector) detectNative(ctx context.Context, projectID, tenantID string) ([]Node, error) {
	entityResult, err := d.graph.ExecuteQuery(ctx, `
		MATCH (e:Entity {project_id: $project_id})
		RETURN e.uuid AS uuid, e.name AS name
	`, map[string]any{"project_id": projectID})
	if err != nil {
		return nil, fmt.Errorf("fetch entities: %w", err)
	}
	relResult, err := d.graph.ExecuteQuery(ctx, `
		MATCH (e1:Entity {project_id: $project_id})-[r]->(e2:Entity {project_id: $project_id})
		RETURN e1.uuid AS source, e2.uuid AS target, coalesce(r.weight, 1.0) AS weight
	`, map[string]any{"project_id": projectID})
	if err != nil {
		return nil, fmt.Errorf("fetch relationships: %w", err)
	}

	g := newWeightedGraph()
	for _, record := range entityResult.Records {
		id, _, err := neo4j.GetRecordValue[string](record, "uuid")
		if err != nil {
			continue
		}
		g.addNode(id)
	}
	for _, record := range relResult.Records {
		source, _, errS := neo4j.GetRecordValue[string](record, "source")
		target, _, errT := neo4j.GetRecordValue[string](record, "target")
		if errS != nil || errT != nil {
			continue
		}
		weight, _, err := neo4j.GetRecordValue[float64](record, "weight")
		if err != nil {
			weight = 1.0
		}
		g.addEdge(source, target, weight)
	}

	if len(g.nodes) < 2 {
		return nil, nil
	}

	groups := louvainCommunities(g)
	communities := make([]Node, 0, len(groups))
	for i, members := range groups {
		if len(members) < d.minCommunitySize {
			continue
		}
		communities = append(communities, Node{
			UUID:        uuid.New().String(),
			Name:        fmt.Sprintf("Community_%d", i),
			MemberCount: len(members),
			ProjectID:   projectID,
			TenantID:    tenantID,
			CreatedAt:   time.Now().UTC(),
		})
	}
	return communities, nil
}

// GetCommunityMembers returns the entity members of a community.
func (d *Detector) GetCommunityMembers(ctx context.Context, communityUUID string) ([]map[string]any, error) {
	result, err := d.graph.ExecuteQuery(ctx, `
		MATCH (e:Entity)-[:BELONGS_TO]->(c:Community {uuid: $uuid})
		RETURN e.uuid AS uuid, e.name AS name, e.entity_type AS entity_type, e.summary AS summary
	`, map[string]any{"uuid": communityUUID})
	if err != nil {
		return nil, err
	}
	members := make([]map[string]any, 0, len(result.Records))
	for _, record := range result.Records {
		m := make(map[string]any, len(record.Keys))
		for _, key := range record.Keys {
			v, _ := record.Get(key)
			m[key] = v
		}
		members = append(members, m)
	}
	return members, nil
}

// SaveCommunity upserts a community node and BELONGS_TO edges from its members.
func (d *Detector) SaveCommunity(ctx context.Context, c Node, memberUUIDs []string) error {
	_, err := d.graph.ExecuteQuery(ctx, `
		MERGE (c:Community {uuid: $uuid})
		SET c.name = $name,
		    c.summary = $summary,
		    c.member_count = $member_count,
		    c.created_at = datetime($created_at),
		    c.tenant_id = $tenant_id,
		    c.project_id = $project_id
	`, map[string]any{
		"uuid":          c.UUID,
		"name":          c.Name,
		"summary":       c.Summary,
		"member_count":  c.MemberCount,
		"created_at":    c.CreatedAt.Format(time.RFC3339),
		"tenant_id":     c.TenantID,
		"project_id":    c.ProjectID,
	})
	if err != nil {
		return fmt.Errorf("save community node: %w", err)
	}

	if len(memberUUIDs) == 0 {
		return nil
	}
	_, err = d.graph.ExecuteQuery(ctx, `
		MATCH (c:Community {uuid: $community_uuid})
		UNWIND $member_uuids AS member_uuid
		MATCH (e:Entity {uuid: member_uuid})
		MERGE (e)-[:BELONGS_TO]->(c)
	`, map[string]any{"community_uuid": c.UUID, "member_uuids": memberUUIDs})
	if err != nil {
		return fmt.Errorf("link community members: %w", err)
	}
	return nil
}

// DeleteStaleCommunities removes community nodes with no BELONGS_TO
// predecessors, returning the number deleted.
func (d *Detector) DeleteStaleCommunities(ctx context.Context, projectID string) (int, error) {
	result, err := d.graph.ExecuteQuery(ctx, `
		MATCH (c:Community {project_id: $project_id})
		WHERE NOT EXISTS { MATCH (e:Entity)-[:BELONGS_TO]->(c) }
		DETACH DELETE c
		RETURN count(c) AS deleted
	`, map[string]any{"project_id": projectID})
	if err != nil {
		return 0, err
	}
	if len(result.Records) == 0 {
		return 0, nil
	}
	deleted, _, err := neo4j.GetRecordValue[int64](result.Records[0], "deleted")
	if err != nil {
		return 0, nil
	}
	slog.Info("deleted stale communities", "project_id", projectID, "count", deleted)
	return int(deleted), nil
}

// escapeCypherLiteral escapes single quotes for the GDS cypher-projection
// query strings, which must be string-interpolated rather than
// parameterized (gds.graph.project.cypher does not accept nested
// parameters for its inner node/relationship queries).
func escapeCypherLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
