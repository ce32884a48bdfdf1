package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newTestRepo(t *testing.T) (*Repository, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, "widget:", time.Minute), mr
}

func TestNullClientIsNoOp(t *testing.T) {
	r := New(nil, "widget:", time.Minute)
	ctx := context.Background()

	var out widget
	found, err := r.Get(ctx, "1", "", &out)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, r.Set(ctx, "1", "", widget{ID: "1"}, 0))
	require.NoError(t, r.Delete(ctx, "1", ""))
	require.NoError(t, r.DeletePattern(ctx, "*"))
	ok, err := r.Exists(ctx, "1", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetGetRoundTrip(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	w := widget{ID: "1", Name: "gizmo"}
	require.NoError(t, r.Set(ctx, "1", "tenant-a", w, 0))

	var out widget
	found, err := r.Get(ctx, "1", "tenant-a", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, w, out)
}

func TestFindCachedWriteThrough(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	calls := 0
	findByID := func(ctx context.Context, id string) (widget, bool, error) {
		calls++
		return widget{ID: id, Name: "from-db"}, true, nil
	}

	w1, ok, err := FindCached(ctx, r, "42", "", findByID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "from-db", w1.Name)
	assert.Equal(t, 1, calls)

	w2, ok, err := FindCached(ctx, r, "42", "", findByID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "from-db", w2.Name)
	assert.Equal(t, 1, calls, "second call should be served from cache")
}

func TestInvalidateTenant(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "1", "tenant-a", widget{ID: "1"}, 0))
	require.NoError(t, r.Set(ctx, "2", "tenant-b", widget{ID: "2"}, 0))

	require.NoError(t, r.InvalidateTenant(ctx, "tenant-a"))

	var out widget
	found, _ := r.Get(ctx, "1", "tenant-a", &out)
	assert.False(t, found)
	found, _ = r.Get(ctx, "2", "tenant-b", &out)
	assert.True(t, found)
}
