package graphstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/memstack/memstack/ent"
	"github.com/memstack/memstack/ent/edgetypecatalog"
	"github.com/memstack/memstack/ent/edgetypemapping"
	"github.com/memstack/memstack/ent/entitytypecatalog"
)

// defaultEntityTypes are seeded for every project on first schema-context
// access: ids 0..6, with 0 reserved for the generic "Entity" type.
var defaultEntityTypes = []EntityType{
	{ID: 0, Name: "Entity", Description: "Generic entity"},
	{ID: 1, Name: "Person", Description: "A named individual"},
	{ID: 2, Name: "Organization", Description: "A company, agency, or other group"},
	{ID: 3, Name: "Location", Description: "A place or geographic area"},
	{ID: 4, Name: "Concept", Description: "An abstract idea or topic"},
	{ID: 5, Name: "Event", Description: "A happening at a point or span of time"},
	{ID: 6, Name: "Artifact", Description: "A created object, document, or system"},
}

// EntityType is an ordered entity-type descriptor within a SchemaContext.
type EntityType struct {
	ID          int
	Name        string
	Description string
}

// EdgeTypeMap maps a (source_type, target_type) pair to the set of edge
// type names allowed between them. An empty map means "unconstrained"; in a
// non-empty map, an absent key means no edge type is allowed for that pair.
type EdgeTypeMap map[[2]string]map[string]bool

// SchemaContext is the per-project view of known entity types, edge types,
// and edge-type constraints, cached in memory with a short TTL.
type SchemaContext struct {
	ProjectID   string
	EntityTypes []EntityType
	EdgeTypes   map[string]bool
	EdgeTypeMap EdgeTypeMap
	expiresAt   time.Time
}

// Allows reports whether edgeType is permitted between source and target.
// An entirely empty edge_type_map means no constraint is configured at all
// (spec open question resolution): every pair is allowed. Once the map is
// non-empty, any (source, target) pair that isn't present as a key is
// rejected outright — only a present key's own edge-type set decides.
func (s *SchemaContext) Allows(sourceType, targetType, edgeType string) bool {
	if len(s.EdgeTypeMap) == 0 {
		return true
	}
	allowed, ok := s.EdgeTypeMap[[2]string{sourceType, targetType}]
	if !ok {
		return false
	}
	return allowed[edgeType]
}

// SchemaRegistry loads and caches SchemaContext per project with a TTL,
// seeding default entity types in PostgreSQL on first access.
type SchemaRegistry struct {
	entClient *ent.Client
	ttl       time.Duration

	mu    sync.Mutex
	cache map[string]*SchemaContext
}

// NewSchemaRegistry constructs a registry. ttl <= 0 uses a 5 minute default.
func NewSchemaRegistry(entClient *ent.Client, ttl time.Duration) *SchemaRegistry {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SchemaRegistry{entClient: entClient, ttl: ttl, cache: make(map[string]*SchemaContext)}
}

// Get returns the cached SchemaContext for projectID, loading (and seeding
// default entity types) on a cache miss or expiry.
func (r *SchemaRegistry) Get(ctx context.Context, projectID string) (*SchemaContext, error) {
	r.mu.Lock()
	if cached, ok := r.cache[projectID]; ok && time.Now().Before(cached.expiresAt) {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	if err := r.ensureDefaults(ctx, projectID); err != nil {
		return nil, fmt.Errorf("seed default entity types: %w", err)
	}

	sc, err := r.load(ctx, projectID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[projectID] = sc
	r.mu.Unlock()
	return sc, nil
}

func (r *SchemaRegistry) ensureDefaults(ctx context.Context, projectID string) error {
	existing, err := r.entClient.EntityTypeCatalog.Query().
		Where(entitytypecatalog.ProjectID(projectID)).
		Count(ctx)
	if err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}

	for _, et := range defaultEntityTypes {
		err := r.entClient.EntityTypeCatalog.Create().
			SetProjectID(projectID).
			SetTypeID(et.ID).
			SetName(et.Name).
			SetDescription(et.Description).
			OnConflict().
			DoNothing().
			Exec(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *SchemaRegistry) load(ctx context.Context, projectID string) (*SchemaContext, error) {
	entityRows, err := r.entClient.EntityTypeCatalog.Query().
		Where(entitytypecatalog.ProjectID(projectID)).
		Order(ent.Asc(entitytypecatalog.FieldTypeID)).
		All(ctx)
	if err != nil {
		return nil, err
	}
	entityTypes := make([]EntityType, 0, len(entityRows))
	for _, row := range entityRows {
		desc := ""
		if row.Description != nil {
			desc = *row.Description
		}
		entityTypes = append(entityTypes, EntityType{ID: row.TypeID, Name: row.Name, Description: desc})
	}

	edgeRows, err := r.entClient.EdgeTypeCatalog.Query().
		Where(edgetypecatalog.ProjectID(projectID)).
		All(ctx)
	if err != nil {
		return nil, err
	}
	edgeTypes := make(map[string]bool, len(edgeRows))
	for _, row := range edgeRows {
		edgeTypes[row.Name] = true
	}

	mappingRows, err := r.entClient.EdgeTypeMapping.Query().
		Where(edgetypemapping.ProjectID(projectID)).
		All(ctx)
	if err != nil {
		return nil, err
	}
	edgeTypeMap := make(EdgeTypeMap)
	for _, row := range mappingRows {
		key := [2]string{row.SourceType, row.TargetType}
		if edgeTypeMap[key] == nil {
			edgeTypeMap[key] = make(map[string]bool)
		}
		edgeTypeMap[key][row.EdgeTypeName] = true
	}

	return &SchemaContext{
		ProjectID:   projectID,
		EntityTypes: entityTypes,
		EdgeTypes:   edgeTypes,
		EdgeTypeMap: edgeTypeMap,
		expiresAt:   time.Now().Add(r.ttl),
	}, nil
}

// SaveDiscoveredTypesBatch upserts newly discovered entity types, edge
// types, and (source,target)->edge_type mappings, skipping names/pairs
// already known, and invalidates the cached SchemaContext for the project.
func (r *SchemaRegistry) SaveDiscoveredTypesBatch(ctx context.Context, projectID string, newEntityTypes []EntityType, newEdgeTypes []string, newEdgeTypeMaps [][3]string) error {
	sc, err := r.Get(ctx, projectID)
	if err != nil {
		return err
	}

	known := make(map[string]bool, len(sc.EntityTypes))
	maxTypeID := 0
	for _, et := range sc.EntityTypes {
		known[et.Name] = true
		if et.ID > maxTypeID {
			maxTypeID = et.ID
		}
	}

	nextID := maxTypeID + 1
	for _, et := range newEntityTypes {
		if known[et.Name] {
			continue
		}
		err := r.entClient.EntityTypeCatalog.Create().
			SetProjectID(projectID).
			SetTypeID(nextID).
			SetName(et.Name).
			SetDescription(et.Description).
			OnConflict().
			DoNothing().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("save discovered entity type %q: %w", et.Name, err)
		}
		nextID++
	}

	for _, name := range newEdgeTypes {
		if sc.EdgeTypes[name] {
			continue
		}
		err := r.entClient.EdgeTypeCatalog.Create().
			SetProjectID(projectID).
			SetName(name).
			OnConflict().
			DoNothing().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("save discovered edge type %q: %w", name, err)
		}
	}

	for _, mapping := range newEdgeTypeMaps {
		source, target, edgeType := mapping[0], mapping[1], mapping[2]
		if sc.Allows(source, target, edgeType) && sc.EdgeTypeMap[[2]string{source, target}] != nil {
			continue
		}
		err := r.entClient.EdgeTypeMapping.Create().
			SetProjectID(projectID).
			SetSourceType(source).
			SetTargetType(target).
			SetEdgeTypeName(edgeType).
			OnConflict().
			DoNothing().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("save discovered edge mapping %s->%s:%s: %w", source, target, edgeType, err)
		}
	}

	r.mu.Lock()
	delete(r.cache, projectID)
	r.mu.Unlock()
	return nil
}
