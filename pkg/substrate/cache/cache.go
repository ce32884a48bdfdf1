// Package cache implements the cached-repository mixin of spec §4.1:
// prefixed/namespaced keys, JSON serialization, TTL, find-then-fallback
// write-through, and pattern invalidation, with a null Redis client
// degrading every operation to a no-op.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Repository wraps a Redis client with the caching contract described in
// cached_repository_mixin.py. A nil client makes every method a
// null-safe no-op, matching the source's "works without Redis" guarantee.
type Repository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New constructs a cached repository. client may be nil.
func New(client *redis.Client, prefix string, ttl time.Duration) *Repository {
	if prefix == "" {
		prefix = "cache:"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Repository{client: client, prefix: prefix, ttl: ttl}
}

func (r *Repository) key(entityID, namespace string) string {
	if namespace != "" {
		return r.prefix + namespace + ":" + entityID
	}
	return r.prefix + entityID
}

// Get returns the cached value for entityID, or ok=false on a miss or
// when caching is disabled.
func (r *Repository) Get(ctx context.Context, entityID, namespace string, out any) (bool, error) {
	if r.client == nil {
		return false, nil
	}
	data, err := r.client.Get(ctx, r.key(entityID, namespace)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores value under entityID with the repository's default TTL (or
// ttlOverride when > 0).
func (r *Repository) Set(ctx context.Context, entityID, namespace string, value any, ttlOverride time.Duration) error {
	if r.client == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	ttl := r.ttl
	if ttlOverride > 0 {
		ttl = ttlOverride
	}
	return r.client.Set(ctx, r.key(entityID, namespace), data, ttl).Err()
}

// Delete removes a single cached entity.
func (r *Repository) Delete(ctx context.Context, entityID, namespace string) error {
	if r.client == nil {
		return nil
	}
	return r.client.Del(ctx, r.key(entityID, namespace)).Err()
}

// Exists reports whether entityID is present in the cache.
func (r *Repository) Exists(ctx context.Context, entityID, namespace string) (bool, error) {
	if r.client == nil {
		return false, nil
	}
	n, err := r.client.Exists(ctx, r.key(entityID, namespace)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeletePattern removes every key matching prefix+pattern, one at a time,
// matching the source's keys()-then-delete-each approach.
func (r *Repository) DeletePattern(ctx context.Context, pattern string) error {
	if r.client == nil {
		return nil
	}
	keys, err := r.client.Keys(ctx, r.prefix+pattern).Result()
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := r.client.Del(ctx, k).Err(); err != nil {
			return err
		}
	}
	return nil
}

// FindCached looks up entityID in the cache; on a miss it calls findByID
// and write-through caches a non-nil result.
func FindCached[T any](ctx context.Context, r *Repository, entityID, namespace string, findByID func(ctx context.Context, id string) (T, bool, error)) (T, bool, error) {
	var cached T
	found, err := r.Get(ctx, entityID, namespace, &cached)
	if err == nil && found {
		return cached, true, nil
	}

	entity, ok, err := findByID(ctx, entityID)
	if err != nil {
		var zero T
		return zero, false, err
	}
	if ok {
		_ = r.Set(ctx, entityID, namespace, entity, 0)
	}
	return entity, ok, nil
}

// InvalidateTenant clears every cached entry namespaced to tenantID.
func (r *Repository) InvalidateTenant(ctx context.Context, tenantID string) error {
	return r.DeletePattern(ctx, tenantID+":*")
}

// Clear wipes every cache entry under this repository's prefix.
func (r *Repository) Clear(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	keys, err := r.client.Keys(ctx, r.prefix+"*").Result()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}
