package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Episode holds the schema definition for the Episode entity.
// An Episode is an ingested piece of content, processed asynchronously
// into entities and relationships in the graph store.
type Episode struct {
	ent.Schema
}

// Fields of the Episode.
func (Episode) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("episode_uuid").
			Unique().
			Immutable(),
		field.Text("content").
			Immutable().
			Comment("Raw ingested content (full-text searchable)"),
		field.Enum("source_type").
			Values("text", "json", "document", "api", "conversation").
			Immutable(),
		field.Time("valid_at").
			Immutable().
			Comment("Caller-supplied validity timestamp for temporal decay"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.String("tenant_id").
			Immutable(),
		field.String("project_id").
			Immutable(),
		field.String("user_id").
			Optional().
			Nillable().
			Immutable(),
		field.String("name").
			Optional().
			Nillable(),
		field.Enum("status").
			Values("PROCESSING", "SYNCED", "FAILED").
			Default("PROCESSING"),
		field.String("error_message").
			Optional().
			Nillable(),
		field.JSON("metadata", map[string]interface{}{}).
			Optional().
			Comment("Arbitrary caller metadata, including memory_id"),
		field.Strings("derived_edge_uuids").
			Optional().
			Comment("EntityEdge UUIDs created from this episode"),
	}
}

// Indexes of the Episode.
func (Episode) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project_id", "status"),
		index.Fields("project_id", "created_at"),
		index.Fields("tenant_id"),
	}
}
