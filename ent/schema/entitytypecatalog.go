package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// EntityTypeCatalog holds the schema definition for a project's known
// entity types. type_id 0 is reserved for the generic "Entity" type and is
// seeded for every project on first schema-context access.
type EntityTypeCatalog struct {
	ent.Schema
}

// Fields of the EntityTypeCatalog.
func (EntityTypeCatalog) Fields() []ent.Field {
	return []ent.Field{
		field.Int("id"),
		field.String("project_id").
			Immutable(),
		field.Int("type_id").
			Comment("Stable ordinal within the project; 0 = generic Entity"),
		field.String("name").
			Immutable(),
		field.String("description").
			Optional().
			Nillable(),
	}
}

// Indexes of the EntityTypeCatalog.
func (EntityTypeCatalog) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project_id", "type_id").Unique(),
		index.Fields("project_id", "name").Unique(),
	}
}
