package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/memstack/memstack/pkg/graphstore"
)

// Config tunes the optional reflexion pass.
type Config struct {
	ReflexionEnabled       bool
	ReflexionMaxIterations int
}

// DefaultConfig returns reflexion disabled with the source's default of
// at most 2 iterations when it is enabled.
func DefaultConfig() Config {
	return Config{ReflexionEnabled: false, ReflexionMaxIterations: 2}
}

// Pipeline runs prompt-driven entity and relationship extraction over
// episode content.
type Pipeline struct {
	completer Completer
	dedup     *HashDeduplicator
	cfg       Config
}

// New constructs an extraction Pipeline.
func New(completer Completer, cfg Config) *Pipeline {
	return &Pipeline{completer: completer, dedup: NewHashDeduplicator(), cfg: cfg}
}

type rawEntity struct {
	Name       string         `json:"name"`
	EntityType string         `json:"entity_type"`
	Summary    string         `json:"summary"`
	Attributes map[string]any `json:"attributes"`
}

type rawEdge struct {
	FromEntity       string  `json:"from_entity"`
	ToEntity         string  `json:"to_entity"`
	RelationshipType string  `json:"relationship_type"`
	Summary          string  `json:"summary"`
	Weight           float64 `json:"weight"`
}

// Extract runs the full pipeline: entity extraction, optional reflexion,
// exclusion filtering, hash dedup against existing, and constrained
// relationship extraction. A malformed LLM response is not fatal:
// malformed entries are dropped, and if the relationship call fails the
// entities are returned with no edges and a nil error.
func (p *Pipeline) Extract(ctx context.Context, content string, schema *graphstore.SchemaContext, scoping Scoping, excludedTypes map[string]bool, existing []EntityNode) ([]EntityNode, []EntityEdge, error) {
	entities, err := p.extractEntities(ctx, content, schema, scoping)
	if err != nil {
		return nil, nil, fmt.Errorf("entity extraction: %w", err)
	}

	if p.cfg.ReflexionEnabled {
		entities = p.runReflexion(ctx, content, entities, schema, scoping)
	}

	entities = filterExcluded(entities, excludedTypes)

	unique, duplicateMap := p.dedup.DedupeAgainst(entities, existing)
	entities = append(unique, resolveDuplicates(duplicateMap, existing)...)

	edges, err := p.extractRelationships(ctx, content, entities, schema)
	if err != nil {
		slog.Warn("relationship extraction failed, returning entities only", "error", err)
		return entities, nil, nil
	}

	return entities, edges, nil
}

func (p *Pipeline) extractEntities(ctx context.Context, content string, schema *graphstore.SchemaContext, scoping Scoping) ([]EntityNode, error) {
	prompt := buildEntityExtractionPrompt(content, schema)
	raw, err := p.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var parsed []rawEntity
	if err := json.Unmarshal([]byte(extractJSONArray(raw)), &parsed); err != nil {
		slog.Warn("entity extraction response was not valid JSON", "error", err)
		return nil, nil
	}

	entities := make([]EntityNode, 0, len(parsed))
	for _, r := range parsed {
		if r.Name == "" || r.EntityType == "" {
			continue
		}
		entities = append(entities, EntityNode{
			UUID:       uuid.New().String(),
			Name:       r.Name,
			EntityType: r.EntityType,
			Summary:    r.Summary,
			Attributes: r.Attributes,
			ProjectID:  scoping.ProjectID,
		})
	}
	return entities, nil
}

// runReflexion asks the model, up to ReflexionMaxIterations times, which
// entities the current extraction missed, appending anything new it finds.
// A failed or empty reflexion round simply stops early.
func (p *Pipeline) runReflexion(ctx context.Context, content string, entities []EntityNode, schema *graphstore.SchemaContext, scoping Scoping) []EntityNode {
	maxIter := p.cfg.ReflexionMaxIterations
	if maxIter <= 0 {
		maxIter = 2
	}

	for i := 0; i < maxIter; i++ {
		prompt := buildReflexionPrompt(content, entities, schema)
		raw, err := p.completer.Complete(ctx, prompt)
		if err != nil {
			slog.Warn("reflexion pass failed", "iteration", i, "error", err)
			return entities
		}

		var parsed []rawEntity
		if err := json.Unmarshal([]byte(extractJSONArray(raw)), &parsed); err != nil || len(parsed) == 0 {
			return entities
		}

		added := false
		for _, r := range parsed {
			if r.Name == "" || r.EntityType == "" {
				continue
			}
			entities = append(entities, EntityNode{
				UUID:       uuid.New().String(),
				Name:       r.Name,
				EntityType: r.EntityType,
				Summary:    r.Summary,
				Attributes: r.Attributes,
				ProjectID:  scoping.ProjectID,
			})
			added = true
		}
		if !added {
			break
		}
	}
	return entities
}

func filterExcluded(entities []EntityNode, excludedTypes map[string]bool) []EntityNode {
	if len(excludedTypes) == 0 {
		return entities
	}
	kept := make([]EntityNode, 0, len(entities))
	for _, e := range entities {
		if excludedTypes[e.EntityType] {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

// resolveDuplicates turns a name->existing-uuid duplicate map back into
// EntityNode references so callers that expect a full entity set (rather
// than raw UUIDs) can still resolve MENTIONS edges against them.
func resolveDuplicates(duplicateMap map[string]string, existing []EntityNode) []EntityNode {
	if len(duplicateMap) == 0 {
		return nil
	}
	byUUID := make(map[string]EntityNode, len(existing))
	for _, e := range existing {
		byUUID[e.UUID] = e
	}
	out := make([]EntityNode, 0, len(duplicateMap))
	for _, existingUUID := range duplicateMap {
		if e, ok := byUUID[existingUUID]; ok {
			out = append(out, e)
		}
	}
	return out
}

func (p *Pipeline) extractRelationships(ctx context.Context, content string, entities []EntityNode, schema *graphstore.SchemaContext) ([]EntityEdge, error) {
	if len(entities) < 2 {
		return nil, nil
	}

	prompt := buildRelationshipExtractionPrompt(content, entities, schema)
	raw, err := p.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var parsed []rawEdge
	if err := json.Unmarshal([]byte(extractJSONArray(raw)), &parsed); err != nil {
		slog.Warn("relationship extraction response was not valid JSON", "error", err)
		return nil, nil
	}

	byName := make(map[string]EntityNode, len(entities))
	for _, e := range entities {
		byName[e.Name] = e
	}

	edges := make([]EntityEdge, 0, len(parsed))
	for _, r := range parsed {
		from, fromOK := byName[r.FromEntity]
		to, toOK := byName[r.ToEntity]
		if !fromOK || !toOK {
			continue
		}
		if schema != nil && !schema.Allows(from.EntityType, to.EntityType, r.RelationshipType) {
			continue
		}
		weight := r.Weight
		if weight < 0 {
			weight = 0
		}
		if weight > 1 {
			weight = 1
		}
		edges = append(edges, EntityEdge{
			UUID:             uuid.New().String(),
			FromEntity:       from.UUID,
			ToEntity:         to.UUID,
			RelationshipType: r.RelationshipType,
			Summary:          r.Summary,
			Weight:           weight,
		})
	}
	return edges, nil
}

// extractJSONArray pulls the first top-level JSON array out of raw,
// tolerating a model that wraps its answer in prose or a code fence.
func extractJSONArray(raw string) string {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end == -1 || end < start {
		return "[]"
	}
	return raw[start : end+1]
}
