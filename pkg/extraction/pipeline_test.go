package extraction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memstack/memstack/pkg/graphstore"
)

type scriptedCompleter struct {
	responses []string
	calls     int
}

func (s *scriptedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if s.calls >= len(s.responses) {
		return "[]", nil
	}
	r := s.responses[s.calls]
	s.calls++
	return r, nil
}

func TestExtractEntitiesAndRelationships(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{
		`[{"name":"Alice","entity_type":"Person","summary":"engineer","attributes":{}},
		  {"name":"Acme","entity_type":"Organization","summary":"a company","attributes":{}}]`,
		`[{"from_entity":"Alice","to_entity":"Acme","relationship_type":"WORKS_AT","summary":"employed","weight":0.9}]`,
	}}

	p := New(completer, DefaultConfig())
	entities, edges, err := p.Extract(context.Background(), "Alice works at Acme.", nil, Scoping{ProjectID: "p1"}, nil, nil)
	require.NoError(t, err)
	require.Len(t, entities, 2)
	require.Len(t, edges, 1)
	assert.Equal(t, "WORKS_AT", edges[0].RelationshipType)
	assert.Equal(t, 0.9, edges[0].Weight)
}

func TestExtractDropsEntitiesMissingRequiredFields(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{
		`[{"name":"Alice","entity_type":"Person"},{"name":"","entity_type":"Person"},{"name":"NoType","entity_type":""}]`,
	}}
	p := New(completer, DefaultConfig())
	entities, _, err := p.Extract(context.Background(), "text", nil, Scoping{}, nil, nil)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "Alice", entities[0].Name)
}

func TestExtractAppliesExclusionFilter(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{
		`[{"name":"Alice","entity_type":"Person"},{"name":"Acme","entity_type":"Organization"}]`,
	}}
	p := New(completer, DefaultConfig())
	entities, _, err := p.Extract(context.Background(), "text", nil, Scoping{}, map[string]bool{"Organization": true}, nil)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "Person", entities[0].EntityType)
}

func TestExtractRejectsEdgeNotInSchemaMap(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{
		`[{"name":"Alice","entity_type":"Person"},{"name":"Acme","entity_type":"Organization"}]`,
		`[{"from_entity":"Alice","to_entity":"Acme","relationship_type":"OWNS","summary":"","weight":0.5}]`,
	}}
	schema := &graphstore.SchemaContext{
		EdgeTypeMap: graphstore.EdgeTypeMap{
			{"Person", "Organization"}: {"WORKS_AT": true},
		},
	}
	p := New(completer, DefaultConfig())
	_, edges, err := p.Extract(context.Background(), "text", schema, Scoping{}, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestExtractReflexionAppendsMissedEntities(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{
		`[{"name":"Alice","entity_type":"Person"}]`,
		`[{"name":"Bob","entity_type":"Person"}]`,
		`[]`,
	}}
	cfg := Config{ReflexionEnabled: true, ReflexionMaxIterations: 2}
	p := New(completer, cfg)
	entities, _, err := p.Extract(context.Background(), "text", nil, Scoping{}, nil, nil)
	require.NoError(t, err)
	names := []string{entities[0].Name, entities[1].Name}
	assert.ElementsMatch(t, []string{"Alice", "Bob"}, names)
}

func TestExtractReturnsEmptyEdgesForSingleEntity(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{
		`[{"name":"Alice","entity_type":"Person"}]`,
	}}
	p := New(completer, DefaultConfig())
	entities, edges, err := p.Extract(context.Background(), "text", nil, Scoping{}, nil, nil)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Empty(t, edges)
}
