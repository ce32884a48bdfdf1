package extraction

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashDeduplicator performs exact duplicate detection via a SHA256 hash of
// an entity's (name, entity_type, summary) triple — a fast deterministic
// pass that runs before any vector-similarity check.
type HashDeduplicator struct{}

// NewHashDeduplicator constructs a HashDeduplicator.
func NewHashDeduplicator() *HashDeduplicator {
	return &HashDeduplicator{}
}

// ComputeHash returns the hex-encoded SHA256 hash of entity's identity
// attributes.
func (HashDeduplicator) ComputeHash(entity EntityNode) string {
	content := entity.Name + "|" + entity.EntityType + "|" + entity.Summary
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Dedupe removes exact duplicates from entities, keeping the first
// occurrence of each unique hash.
func (d HashDeduplicator) Dedupe(entities []EntityNode) []EntityNode {
	if len(entities) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(entities))
	unique := make([]EntityNode, 0, len(entities))
	for _, e := range entities {
		h := d.ComputeHash(e)
		if seen[h] {
			continue
		}
		seen[h] = true
		unique = append(unique, e)
	}
	return unique
}

// DedupeAgainst compares newEntities against existingEntities by hash.
// It returns the subset of newEntities with no existing match, plus a map
// from new-entity name to the UUID of the existing entity it duplicates.
func (d HashDeduplicator) DedupeAgainst(newEntities, existingEntities []EntityNode) ([]EntityNode, map[string]string) {
	if len(newEntities) == 0 {
		return nil, map[string]string{}
	}
	if len(existingEntities) == 0 {
		return newEntities, map[string]string{}
	}

	existingHashes := make(map[string]string, len(existingEntities))
	for _, e := range existingEntities {
		existingHashes[d.ComputeHash(e)] = e.UUID
	}

	unique := make([]EntityNode, 0, len(newEntities))
	duplicates := make(map[string]string)
	for _, e := range newEntities {
		h := d.ComputeHash(e)
		if existingUUID, ok := existingHashes[h]; ok {
			duplicates[e.Name] = existingUUID
			continue
		}
		unique = append(unique, e)
	}
	return unique, duplicates
}
