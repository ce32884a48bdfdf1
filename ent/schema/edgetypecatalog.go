package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// EdgeTypeCatalog holds the schema definition for a project's known edge
// (relationship) type names.
type EdgeTypeCatalog struct {
	ent.Schema
}

// Fields of the EdgeTypeCatalog.
func (EdgeTypeCatalog) Fields() []ent.Field {
	return []ent.Field{
		field.Int("id"),
		field.String("project_id").
			Immutable(),
		field.String("name").
			Immutable(),
	}
}

// Indexes of the EdgeTypeCatalog.
func (EdgeTypeCatalog) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project_id", "name").Unique(),
	}
}
