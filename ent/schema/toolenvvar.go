package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ToolEnvVar holds the schema definition for a tool environment variable
// saved via a HITL env_var request. Values are stored AEAD-encrypted; the
// plaintext never touches the relational store.
type ToolEnvVar struct {
	ent.Schema
}

// Fields of the ToolEnvVar.
func (ToolEnvVar) Fields() []ent.Field {
	return []ent.Field{
		field.Int("id"),
		field.String("tenant_id").
			Immutable(),
		field.String("project_id").
			Optional().
			Nillable().
			Immutable().
			Comment("Set only when scope=project"),
		field.Enum("scope").
			Values("tenant", "project").
			Immutable(),
		field.String("tool_name").
			Immutable(),
		field.String("var_name").
			Immutable(),
		field.Bytes("encrypted_value"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Indexes of the ToolEnvVar.
func (ToolEnvVar) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("tenant_id", "project_id", "tool_name", "var_name").Unique(),
	}
}
