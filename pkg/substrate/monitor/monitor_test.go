package monitor

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorRecordsStatistics(t *testing.T) {
	m := New("test-sql", DefaultConfig(), prometheus.NewRegistry())

	durations := []int{10, 20, 30, 150, 5}
	for i, d := range durations {
		dd := d
		var callErr error
		if i == len(durations)-1 {
			callErr = errors.New("boom")
		}
		err := m.Record(context.Background(), "SELECT 1", func(ctx context.Context) error {
			_ = dd
			return callErr
		})
		if callErr != nil {
			require.Error(t, err)
		} else {
			require.NoError(t, err)
		}
	}

	stats := m.Statistics()
	assert.Equal(t, 5, stats.TotalQueries)
	assert.Equal(t, 1, stats.FailedQueries)
}

func TestMonitorSlowQueryCounting(t *testing.T) {
	m := New("test-slow", Config{SlowQueryThresholdMS: 50, MaxQueryHistory: 10}, prometheus.NewRegistry())
	m.record("slow query", 120, nil)
	m.record("fast query", 5, nil)

	stats := m.Statistics()
	assert.Equal(t, 1, stats.SlowQueries)
	assert.Equal(t, 2, stats.TotalQueries)
}

func TestMonitorBoundedRing(t *testing.T) {
	m := New("test-ring", Config{SlowQueryThresholdMS: 100, MaxQueryHistory: 3}, prometheus.NewRegistry())
	for i := 0; i < 10; i++ {
		m.record("q", float64(i), nil)
	}
	slowest := m.SlowestN(10)
	assert.Len(t, slowest, 3)
}

func TestRegistryGetOrCreate(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())
	m1 := r.GetOrCreate("store-a", DefaultConfig())
	m2 := r.GetOrCreate("store-a", DefaultConfig())
	assert.Same(t, m1, m2)
}
