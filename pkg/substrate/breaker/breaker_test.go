package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callErr(err error) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) { return nil, err }
}

func callOK() func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) { return "ok", nil }
}

func TestBreakerOpensThenHalfOpensThenCloses(t *testing.T) {
	cfg := Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          50 * time.Millisecond,
		HalfOpenMaxCalls: 3,
	}
	b := New("test-store", cfg)

	for i := 0; i < 3; i++ {
		_, err := b.Call(context.Background(), callErr(errors.New("connection error")))
		require.Error(t, err)
	}
	assert.Equal(t, "open", b.State())

	_, err := b.Call(context.Background(), callOK())
	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.InDelta(t, 50*time.Millisecond, openErr.RetryAfter(), float64(20*time.Millisecond))

	time.Sleep(60 * time.Millisecond)

	for i := 0; i < 2; i++ {
		_, err := b.Call(context.Background(), callOK())
		require.NoError(t, err)
	}
	assert.Equal(t, "closed", b.State())

	stats := b.Statistics()
	assert.Equal(t, uint32(0), stats.FailedCalls)
}

func TestBreakerRegistryGetOrCreate(t *testing.T) {
	r := NewRegistry()
	b1 := r.GetOrCreate("store-a", DefaultConfig())
	b2 := r.GetOrCreate("store-a", DefaultConfig())
	assert.Same(t, b1, b2)

	assert.Nil(t, r.Get("unknown"))

	r.ResetAll()
	assert.Nil(t, r.Get("store-a"))
}
