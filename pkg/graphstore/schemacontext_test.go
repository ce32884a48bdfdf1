package graphstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaContextAllowsUnconstrainedPair(t *testing.T) {
	sc := &SchemaContext{EdgeTypeMap: EdgeTypeMap{}}
	assert.True(t, sc.Allows("Person", "Organization", "WORKS_AT"))
}

func TestSchemaContextRejectsDisallowedEdgeType(t *testing.T) {
	sc := &SchemaContext{
		EdgeTypeMap: EdgeTypeMap{
			{"Person", "Organization"}: {"WORKS_AT": true, "FOUNDED": true},
		},
	}
	assert.True(t, sc.Allows("Person", "Organization", "WORKS_AT"))
	assert.False(t, sc.Allows("Person", "Organization", "OWNS"))
}

func TestSchemaContextRejectsAbsentPairOnceMapNonEmpty(t *testing.T) {
	sc := &SchemaContext{
		EdgeTypeMap: EdgeTypeMap{
			{"Person", "Organization"}: {"WORKS_AT": true},
		},
	}
	// The map itself is non-empty (it constrains Person->Organization), so
	// a different, entirely unmentioned pair is rejected rather than
	// falling through to unconstrained.
	assert.False(t, sc.Allows("Person", "Location", "BORN_IN"))
	assert.False(t, sc.Allows("Organization", "Person", "WORKS_AT"))
}
