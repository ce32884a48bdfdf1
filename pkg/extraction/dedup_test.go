package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeRemovesExactDuplicates(t *testing.T) {
	d := NewHashDeduplicator()
	entities := []EntityNode{
		{UUID: "1", Name: "Alice", EntityType: "Person", Summary: "engineer"},
		{UUID: "2", Name: "Alice", EntityType: "Person", Summary: "engineer"},
		{UUID: "3", Name: "Bob", EntityType: "Person", Summary: "manager"},
	}
	unique := d.Dedupe(entities)
	assert.Len(t, unique, 2)
	assert.Equal(t, "1", unique[0].UUID)
}

func TestDedupeAgainstExisting(t *testing.T) {
	d := NewHashDeduplicator()
	existing := []EntityNode{
		{UUID: "existing-1", Name: "Alice", EntityType: "Person", Summary: "engineer"},
	}
	newEntities := []EntityNode{
		{UUID: "new-1", Name: "Alice", EntityType: "Person", Summary: "engineer"},
		{UUID: "new-2", Name: "Carol", EntityType: "Person", Summary: "designer"},
	}

	unique, duplicates := d.DedupeAgainst(newEntities, existing)
	assert.Len(t, unique, 1)
	assert.Equal(t, "Carol", unique[0].Name)
	assert.Equal(t, "existing-1", duplicates["Alice"])
}

func TestDedupeAgainstNoExisting(t *testing.T) {
	d := NewHashDeduplicator()
	newEntities := []EntityNode{{UUID: "1", Name: "Alice", EntityType: "Person"}}
	unique, duplicates := d.DedupeAgainst(newEntities, nil)
	assert.Equal(t, newEntities, unique)
	assert.Empty(t, duplicates)
}

func TestComputeHashIsDeterministic(t *testing.T) {
	d := NewHashDeduplicator()
	e := EntityNode{Name: "Alice", EntityType: "Person", Summary: "engineer"}
	assert.Equal(t, d.ComputeHash(e), d.ComputeHash(e))

	other := EntityNode{Name: "Alice", EntityType: "Person", Summary: "different"}
	assert.NotEqual(t, d.ComputeHash(e), d.ComputeHash(other))
}
