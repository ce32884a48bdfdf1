package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// EdgeTypeMapping holds the schema definition for the per-project
// (source_type, target_type) -> allowed edge-type name constraint.
type EdgeTypeMapping struct {
	ent.Schema
}

// Fields of the EdgeTypeMapping.
func (EdgeTypeMapping) Fields() []ent.Field {
	return []ent.Field{
		field.Int("id"),
		field.String("project_id").
			Immutable(),
		field.String("source_type").
			Immutable(),
		field.String("target_type").
			Immutable(),
		field.String("edge_type_name").
			Immutable(),
	}
}

// Indexes of the EdgeTypeMapping.
func (EdgeTypeMapping) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project_id", "source_type", "target_type", "edge_type_name").Unique(),
		index.Fields("project_id", "source_type", "target_type"),
	}
}
