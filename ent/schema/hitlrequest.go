package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// HITLRequest holds the schema definition for a pending Human-in-the-Loop
// request. The id is the request_id, prefixed by type (clar_/deci_/env_/perm_).
type HITLRequest struct {
	ent.Schema
}

// Fields of the HITLRequest.
func (HITLRequest) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("request_id").
			Unique().
			Immutable(),
		field.Enum("hitl_type").
			Values("clarification", "decision", "env_var", "permission").
			Immutable(),
		field.String("conversation_id").
			Immutable(),
		field.String("tenant_id").
			Immutable(),
		field.String("project_id").
			Immutable(),
		field.String("message_id").
			Optional().
			Nillable().
			Immutable(),
		field.Int("timeout_seconds").
			Immutable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("expires_at").
			Immutable(),
		field.Enum("status").
			Values("pending", "answered", "completed", "timeout", "cancelled").
			Default("pending"),
		field.JSON("payload", map[string]interface{}{}).
			Comment("Typed request payload matching hitl_type (clarification/decision/env_var/permission envelope)"),
	}
}

// Indexes of the HITLRequest.
func (HITLRequest) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("conversation_id"),
		index.Fields("status", "expires_at"),
	}
}
