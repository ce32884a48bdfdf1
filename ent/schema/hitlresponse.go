package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// HITLResponse holds the schema definition for a delivered HITL answer.
type HITLResponse struct {
	ent.Schema
}

// Fields of the HITLResponse.
func (HITLResponse) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("response_id").
			Unique().
			Immutable(),
		field.String("request_id").
			Immutable(),
		field.Enum("hitl_type").
			Values("clarification", "decision", "env_var", "permission").
			Immutable(),
		field.JSON("response_data", map[string]interface{}{}).
			Immutable(),
		field.String("user_id").
			Optional().
			Nillable().
			Immutable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the HITLResponse.
func (HITLResponse) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("request_id"),
	}
}
