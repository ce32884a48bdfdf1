package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memstack/memstack/pkg/substrate/health"
)

func startTestServer(t *testing.T, aggregator *health.Aggregator) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewServer(aggregator)
	go func() { _ = s.StartWithListener(ln) }()

	stop = func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	}
	return ln.Addr().String(), stop
}

func TestHealthzReturnsOKWhenAllHealthy(t *testing.T) {
	aggregator := health.NewAggregator(
		health.Func{ServiceName: "postgres", Probe: func(ctx context.Context) (map[string]any, error) { return nil, nil }},
	)
	addr, stop := startTestServer(t, aggregator)
	defer stop()

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "healthy", body.Checks["postgres"].Status)
}

func TestHealthzReturnsServiceUnavailableWhenAnyUnhealthy(t *testing.T) {
	aggregator := health.NewAggregator(
		health.Func{ServiceName: "postgres", Probe: func(ctx context.Context) (map[string]any, error) { return nil, nil }},
		health.Func{ServiceName: "neo4j", Probe: func(ctx context.Context) (map[string]any, error) {
			return nil, errors.New("dial tcp: connection refused")
		}},
	)
	addr, stop := startTestServer(t, aggregator)
	defer stop()

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var decoded HealthResponse
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "unhealthy", decoded.Status)
	assert.Equal(t, "unhealthy", decoded.Checks["neo4j"].Status)
	assert.Contains(t, decoded.Checks["neo4j"].Message, "connection refused")
}
