package community

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLouvainSeparatesTwoTightClusters(t *testing.T) {
	g := newWeightedGraph()
	// Two triangles, connected by a single weak bridge edge.
	g.addEdge("a1", "a2", 5)
	g.addEdge("a2", "a3", 5)
	g.addEdge("a1", "a3", 5)

	g.addEdge("b1", "b2", 5)
	g.addEdge("b2", "b3", 5)
	g.addEdge("b1", "b3", 5)

	g.addEdge("a1", "b1", 0.1)

	groups := louvainCommunities(g)

	byNode := make(map[string]int)
	for gi, members := range groups {
		for _, m := range members {
			byNode[m] = gi
		}
	}

	assert.Equal(t, byNode["a1"], byNode["a2"])
	assert.Equal(t, byNode["a2"], byNode["a3"])
	assert.Equal(t, byNode["b1"], byNode["b2"])
	assert.Equal(t, byNode["b2"], byNode["b3"])
	assert.NotEqual(t, byNode["a1"], byNode["b1"])
}

func TestLouvainSingleNodeIsOwnCommunity(t *testing.T) {
	g := newWeightedGraph()
	g.addNode("solo")
	groups := louvainCommunities(g)
	assert.Len(t, groups, 1)
	assert.Equal(t, []string{"solo"}, groups[0])
}
