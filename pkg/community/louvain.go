package community

// weightedGraph is a simple undirected weighted graph used by the
// in-process Louvain fallback. No graph-data-science library exists
// anywhere in the example pack, so this is hand rolled directly from
// the classic Louvain method rather than imported.
type weightedGraph struct {
	nodes []string
	adj   map[string]map[string]float64 // symmetric: adj[a][b] == adj[b][a]
}

func newWeightedGraph() *weightedGraph {
	return &weightedGraph{adj: make(map[string]map[string]float64)}
}

func (g *weightedGraph) addNode(id string) {
	if _, ok := g.adj[id]; !ok {
		g.nodes = append(g.nodes, id)
		g.adj[id] = make(map[string]float64)
	}
}

// addEdge adds weight to the undirected edge a-b (or, for a self-loop
// when a == b, to the community's internal weight).
func (g *weightedGraph) addEdge(a, b string, weight float64) {
	g.addNode(a)
	g.addNode(b)
	if a == b {
		g.adj[a][a] += weight
		return
	}
	g.adj[a][b] += weight
	g.adj[b][a] += weight
}

// degree is the weighted degree of id: its self-loop weight counts
// twice, matching the standard Louvain degree definition.
func (g *weightedGraph) degree(id string) float64 {
	total := 0.0
	for neighbor, w := range g.adj[id] {
		if neighbor == id {
			total += 2 * w
		} else {
			total += w
		}
	}
	return total
}

func (g *weightedGraph) totalWeight() float64 {
	total := 0.0
	for id := range g.adj {
		total += g.degree(id)
	}
	return total / 2
}

// louvainCommunities runs the classic Louvain modularity-maximization
// method and returns node ids grouped by final community.
func louvainCommunities(g *weightedGraph) [][]string {
	if len(g.nodes) == 0 {
		return nil
	}

	// membership maps an original node id to its current-level
	// community label, updated as levels are folded together.
	membership := make(map[string]string, len(g.nodes))
	for _, n := range g.nodes {
		membership[n] = n
	}

	current := g
	for {
		partition, improved := louvainPass(current)
		if !improved {
			break
		}
		for orig, label := range membership {
			if newLabel, ok := partition[label]; ok {
				membership[orig] = newLabel
			}
		}
		next := aggregate(current, partition)
		if len(next.nodes) == len(current.nodes) {
			break
		}
		current = next
	}

	groups := make(map[string][]string)
	for orig, label := range membership {
		groups[label] = append(groups[label], orig)
	}

	out := make([][]string, 0, len(groups))
	for _, members := range groups {
		out = append(out, members)
	}
	return out
}

// louvainPass performs one level of local modularity-gain moves,
// returning the resulting partition (node id -> community label) and
// whether any node actually moved.
func louvainPass(g *weightedGraph) (map[string]string, bool) {
	m2 := g.totalWeight() * 2
	community := make(map[string]string, len(g.nodes))
	degree := make(map[string]float64, len(g.nodes))
	communityWeight := make(map[string]float64, len(g.nodes))
	for _, n := range g.nodes {
		community[n] = n
		d := g.degree(n)
		degree[n] = d
		communityWeight[n] = d
	}

	if m2 == 0 {
		return community, false
	}

	improvedAny := false
	improved := true
	for improved {
		improved = false
		for _, n := range g.nodes {
			currentComm := community[n]

			neighborWeights := make(map[string]float64)
			for neighbor, w := range g.adj[n] {
				if neighbor == n {
					continue
				}
				neighborWeights[community[neighbor]] += w
			}

			communityWeight[currentComm] -= degree[n]

			bestComm := currentComm
			bestGain := neighborWeights[currentComm] - communityWeight[currentComm]*degree[n]/m2
			for comm, wToComm := range neighborWeights {
				if comm == currentComm {
					continue
				}
				gain := wToComm - communityWeight[comm]*degree[n]/m2
				if gain > bestGain {
					bestGain = gain
					bestComm = comm
				}
			}

			communityWeight[bestComm] += degree[n]
			if bestComm != currentComm {
				community[n] = bestComm
				improved = true
				improvedAny = true
			}
		}
	}

	return community, improvedAny
}

// aggregate builds a new graph whose nodes are the communities of
// partition, with inter-community edge weights summed and
// intra-community weight folded into self-loops.
func aggregate(g *weightedGraph, partition map[string]string) *weightedGraph {
	next := newWeightedGraph()
	for _, n := range g.nodes {
		next.addNode(partition[n])
	}

	visited := make(map[string]bool, len(g.nodes))
	for _, a := range g.nodes {
		ca := partition[a]
		for b, w := range g.adj[a] {
			if a == b {
				next.adj[ca][ca] += w
				continue
			}
			pairKey := a + "\x00" + b
			reverseKey := b + "\x00" + a
			if visited[reverseKey] {
				continue
			}
			visited[pairKey] = true
			cb := partition[b]
			if ca == cb {
				next.adj[ca][ca] += w
			} else {
				next.adj[ca][cb] += w
				next.adj[cb][ca] += w
			}
		}
	}
	return next
}
