package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// CompensatingTransaction holds the schema definition for an inconsistency
// record produced when a distributed 2PC commit partially succeeds.
type CompensatingTransaction struct {
	ent.Schema
}

// Fields of the CompensatingTransaction.
func (CompensatingTransaction) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("transaction_id").
			Unique().
			Immutable(),
		field.String("entity_id").
			Immutable(),
		field.String("operation").
			Immutable(),
		field.Bool("postgres_committed").
			Immutable(),
		field.Bool("neo4j_committed").
			Immutable(),
		field.Bool("redis_committed").
			Immutable(),
		field.String("neo4j_query").
			Optional().
			Nillable().
			Immutable(),
		field.JSON("neo4j_params", map[string]interface{}{}).
			Optional().
			Immutable(),
		field.String("redis_command").
			Optional().
			Nillable().
			Immutable(),
		field.Strings("redis_args").
			Optional().
			Immutable(),
		field.Enum("status").
			Values("pending", "reconciled", "failed").
			Default("pending"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the CompensatingTransaction.
func (CompensatingTransaction) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status"),
		index.Fields("entity_id"),
	}
}
