package community

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGraphRunner struct {
	calls          []string
	responses      map[string]*neo4j.EagerResult
	err            error // returned for every call unless errQuerySubstr narrows it
	errQuerySubstr string
}

func (f *fakeGraphRunner) ExecuteQuery(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	f.calls = append(f.calls, query)
	if f.err != nil && (f.errQuerySubstr == "" || strings.Contains(query, f.errQuerySubstr)) {
		return nil, f.err
	}
	if r, ok := f.responses[query]; ok {
		return r, nil
	}
	return &neo4j.EagerResult{}, nil
}

func TestCheckGDSAvailableCachesResult(t *testing.T) {
	graph := &fakeGraphRunner{err: errors.New("unknown procedure gds.version"), errQuerySubstr: "gds.version"}
	d := NewDetector(graph, true, 2)

	first := d.checkGDSAvailable(context.Background())
	second := d.checkGDSAvailable(context.Background())

	assert.False(t, first)
	assert.False(t, second)
	assert.Len(t, graph.calls, 1, "second check should hit the cache, not Neo4j again")
}

func TestDetectCommunitiesFallsBackToNativeWhenGDSUnavailable(t *testing.T) {
	graph := &fakeGraphRunner{err: errors.New("gds not installed"), errQuerySubstr: "gds.version"}
	d := NewDetector(graph, true, 2)

	communities, err := d.DetectCommunities(context.Background(), "proj-1", "")
	require.NoError(t, err)
	assert.Empty(t, communities)

	found := false
	for _, q := range graph.calls {
		if q == "RETURN gds.version() AS version" {
			found = true
		}
	}
	assert.True(t, found, "should have probed GDS availability before falling back")
}

func TestDeleteStaleCommunitiesPropagatesQueryError(t *testing.T) {
	graph := &fakeGraphRunner{err: errors.New("connection reset")}
	d := NewDetector(graph, false, 2)

	_, err := d.DeleteStaleCommunities(context.Background(), "proj-1")
	assert.Error(t, err)
}

func TestEscapeCypherLiteralEscapesQuotes(t *testing.T) {
	assert.Equal(t, `proj\'s`, escapeCypherLiteral(`proj's`))
}

func TestMinCommunitySizeDefaultsToTwo(t *testing.T) {
	d := NewDetector(&fakeGraphRunner{}, false, 0)
	assert.Equal(t, 2, d.minCommunitySize)
}
