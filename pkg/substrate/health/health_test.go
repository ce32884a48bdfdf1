package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAggregatorAllHealthy(t *testing.T) {
	a := NewAggregator(
		Func{ServiceName: "postgres", Probe: func(ctx context.Context) (map[string]any, error) {
			return map[string]any{"version": "16"}, nil
		}},
		Func{ServiceName: "neo4j", Probe: func(ctx context.Context) (map[string]any, error) {
			return nil, nil
		}},
	)

	report := a.Run(context.Background())
	assert.True(t, report.Healthy)
	assert.Len(t, report.Services, 2)
	assert.True(t, report.Services["postgres"].Healthy)
}

func TestAggregatorOneUnhealthy(t *testing.T) {
	a := NewAggregator(
		Func{ServiceName: "postgres", Probe: func(ctx context.Context) (map[string]any, error) {
			return nil, nil
		}},
		Func{ServiceName: "redis", Probe: func(ctx context.Context) (map[string]any, error) {
			return nil, errors.New("connection refused")
		}},
	)

	report := a.Run(context.Background())
	assert.False(t, report.Healthy)
	assert.False(t, report.Services["redis"].Healthy)
	assert.Equal(t, "connection refused", report.Services["redis"].Message)
}

func TestCheckerRespectsTimeout(t *testing.T) {
	c := Func{
		ServiceName: "slow",
		Timeout:     10 * time.Millisecond,
		Probe: func(ctx context.Context) (map[string]any, error) {
			select {
			case <-time.After(100 * time.Millisecond):
				return nil, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	status := c.Check(context.Background())
	assert.False(t, status.Healthy)
}
