package search

import (
	"math"
	"strings"
)

// mmrRerank greedily selects items maximizing
// lambda*relevance - (1-lambda)*maxSimilarity(to already selected),
// where similarity is token-overlap (Jaccard) over each item's content.
// Relevance is the item's current score, assumed already sorted/comparable.
func mmrRerank(items []SearchResultItem, lambda float64) []SearchResultItem {
	if len(items) <= 1 {
		return items
	}

	tokenSets := make([]map[string]bool, len(items))
	for i, item := range items {
		tokenSets[i] = tokenize(contentOf(item))
	}

	remaining := make([]int, len(items))
	for i := range items {
		remaining[i] = i
	}
	selected := make([]int, 0, len(items))

	for len(remaining) > 0 {
		bestPos := 0
		bestScore := math.Inf(-1)
		for pos, idx := range remaining {
			maxSim := 0.0
			for _, selIdx := range selected {
				sim := jaccard(tokenSets[idx], tokenSets[selIdx])
				if sim > maxSim {
					maxSim = sim
				}
			}
			mmrScore := lambda*items[idx].Score - (1-lambda)*maxSim
			if mmrScore > bestScore {
				bestScore = mmrScore
				bestPos = pos
			}
		}
		selected = append(selected, remaining[bestPos])
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}

	out := make([]SearchResultItem, len(selected))
	for i, idx := range selected {
		out[i] = items[idx]
	}
	return out
}

func contentOf(item SearchResultItem) string {
	if item.Content != "" {
		return item.Content
	}
	if item.Summary != "" {
		return item.Summary
	}
	return item.Name
}

func tokenize(s string) map[string]bool {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
