package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/memstack/memstack/pkg/graphstore"
)

const (
	defaultRRFK           = 60
	defaultVectorWeight   = 0.6
	defaultKeywordWeight  = 0.4
	defaultVectorIndex    = "entity_name_vector"
	defaultFulltextEntity = "entity_name_summary"
	defaultFulltextEpisod = "episodic_content"
)

// Config controls the optional post-processing stages: MMR diversity
// re-ranking, temporal decay, and query expansion. DefaultConfig turns all
// three on.
type Config struct {
	RRFK            int
	VectorWeight    float64
	KeywordWeight   float64
	EnableMMR       bool
	MMRLambda       float64
	EnableDecay     bool
	HalfLifeDays    float64
	EnableExpansion bool
}

// DefaultConfig matches the source's defaults: MMR and temporal decay and
// query expansion all on, k=60, weights (0.6, 0.4).
func DefaultConfig() Config {
	return Config{
		RRFK:            defaultRRFK,
		VectorWeight:    defaultVectorWeight,
		KeywordWeight:   defaultKeywordWeight,
		EnableMMR:       true,
		MMRLambda:       0.7,
		EnableDecay:     true,
		HalfLifeDays:    30.0,
		EnableExpansion: true,
	}
}

// GraphSearcher is the narrow subset of graphstore.Client the engine needs;
// it lets tests substitute a fake instead of a live Neo4j connection.
type GraphSearcher interface {
	VectorSearch(ctx context.Context, indexName string, queryVector []float32, limit int, projectID string) ([]graphstore.ScoredNode, error)
	FulltextSearch(ctx context.Context, indexName, queryText string, limit int, projectID string) ([]graphstore.ScoredNode, error)
}

// Engine is the hybrid search engine combining Neo4j vector and fulltext
// search via Reciprocal Rank Fusion, then optional temporal decay and MMR
// diversity re-ranking.
type Engine struct {
	graph    GraphSearcher
	embedder Embedder
	cfg      Config

	vectorIndex    string
	fulltextEntity string
	fulltextEpisod string
}

// New constructs a search Engine over the given graph client and embedder.
func New(graph GraphSearcher, embedder Embedder, cfg Config) *Engine {
	return &Engine{
		graph:          graph,
		embedder:       embedder,
		cfg:            cfg,
		vectorIndex:    defaultVectorIndex,
		fulltextEntity: defaultFulltextEntity,
		fulltextEpisod: defaultFulltextEpisod,
	}
}

// Search performs hybrid retrieval across entities and episodes.
func (e *Engine) Search(ctx context.Context, query, projectID string, limit int, includeEpisodes, includeEntities bool) (HybridSearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return HybridSearchResult{Items: []SearchResultItem{}}, nil
	}

	fetchLimit := limit * 2
	if e.cfg.EnableMMR {
		fetchLimit = limit * 3
	}

	expanded := query
	if e.cfg.EnableExpansion {
		expanded = expandQuery(query)
	}

	var vectorEntities, keywordEntities, episodeResults []SearchResultItem
	var wg sync.WaitGroup

	if includeEntities {
		wg.Add(2)
		go func() {
			defer wg.Done()
			res, err := e.vectorSearchEntities(ctx, query, projectID, fetchLimit)
			if err != nil {
				slog.Warn("vector search failed", "error", err)
				return
			}
			vectorEntities = res
		}()
		go func() {
			defer wg.Done()
			res, err := e.keywordSearchEntities(ctx, expanded, projectID, fetchLimit)
			if err != nil {
				slog.Warn("entity keyword search failed", "error", err)
				return
			}
			keywordEntities = res
		}()
	}
	if includeEpisodes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.keywordSearchEpisodes(ctx, expanded, projectID, fetchLimit)
			if err != nil {
				slog.Warn("episode keyword search failed", "error", err)
				return
			}
			episodeResults = res
		}()
	}
	wg.Wait()

	combinedEntities := e.rrfFusion(vectorEntities, keywordEntities)
	all := append(combinedEntities, episodeResults...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })

	all = e.applyPostProcessing(all)

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}

	return HybridSearchResult{
		Items:               all,
		TotalResults:        len(all),
		VectorResultsCount:  len(vectorEntities),
		KeywordResultsCount: len(keywordEntities) + len(episodeResults),
	}, nil
}

// VectorSearch performs vector-only search on entities.
func (e *Engine) VectorSearch(ctx context.Context, query, projectID string, limit int) ([]SearchResultItem, error) {
	return e.vectorSearchEntities(ctx, query, projectID, limit)
}

// KeywordSearch performs keyword-only search across entities and/or episodes.
func (e *Engine) KeywordSearch(ctx context.Context, query, projectID string, limit int, includeEpisodes, includeEntities bool) ([]SearchResultItem, error) {
	searchQuery := query
	if e.cfg.EnableExpansion {
		searchQuery = expandQuery(query)
	}

	var all []SearchResultItem
	if includeEntities {
		res, err := e.keywordSearchEntities(ctx, searchQuery, projectID, limit)
		if err != nil {
			slog.Warn("entity keyword search failed", "error", err)
		} else {
			all = append(all, res...)
		}
	}
	if includeEpisodes {
		res, err := e.keywordSearchEpisodes(ctx, searchQuery, projectID, limit)
		if err != nil {
			slog.Warn("episode keyword search failed", "error", err)
		} else {
			all = append(all, res...)
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (e *Engine) applyPostProcessing(items []SearchResultItem) []SearchResultItem {
	if len(items) == 0 {
		return items
	}

	if e.cfg.EnableDecay {
		now := time.Now().UTC()
		halfLife := e.cfg.HalfLifeDays
		if halfLife <= 0 {
			halfLife = 30.0
		}
		for i := range items {
			createdAt, ok := parseCreatedAt(items[i].Metadata)
			if !ok {
				continue
			}
			items[i].Score = applyTemporalDecay(items[i].Score, createdAt, now, halfLife)
		}
		sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	}

	if e.cfg.EnableMMR && len(items) > 1 {
		lambda := e.cfg.MMRLambda
		if lambda == 0 {
			lambda = 0.7
		}
		items = mmrRerank(items, lambda)
	}

	return items
}

func parseCreatedAt(metadata map[string]any) (time.Time, bool) {
	raw, ok := metadata["created_at"]
	if !ok || raw == nil {
		return time.Time{}, false
	}
	switch v := raw.(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}

func (e *Engine) vectorSearchEntities(ctx context.Context, query, projectID string, limit int) ([]SearchResultItem, error) {
	embedding, err := e.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	if dim := e.embedder.Dimensions(); dim > 0 && len(embedding) != dim {
		slog.Warn("embedding dimension mismatch", "got", len(embedding), "expected", dim)
		return nil, nil
	}

	dimensionIndex := e.vectorIndex + "_" + strconv.Itoa(len(embedding)) + "D"
	nodes, err := e.graph.VectorSearch(ctx, dimensionIndex, embedding, limit, projectID)
	if err != nil {
		if !strings.Contains(strings.ToLower(err.Error()), "no such vector schema index") {
			if strings.Contains(strings.ToLower(err.Error()), "dimension") {
				slog.Warn("vector dimension mismatch, falling back to keyword search", "error", err)
				return nil, nil
			}
			return nil, err
		}
		nodes, err = e.graph.VectorSearch(ctx, e.vectorIndex, embedding, limit, projectID)
		if err != nil {
			slog.Error("vector search query failed", "error", err)
			return nil, nil
		}
	}

	items := make([]SearchResultItem, 0, len(nodes))
	for _, n := range nodes {
		items = append(items, entityNodeToItem(n, "vector"))
	}
	return items, nil
}

func (e *Engine) keywordSearchEntities(ctx context.Context, query, projectID string, limit int) ([]SearchResultItem, error) {
	nodes, err := e.graph.FulltextSearch(ctx, e.fulltextEntity, escapeFulltextQuery(query), limit, projectID)
	if err != nil {
		return nil, err
	}
	items := make([]SearchResultItem, 0, len(nodes))
	for _, n := range nodes {
		items = append(items, entityNodeToItem(n, "keyword"))
	}
	return items, nil
}

func (e *Engine) keywordSearchEpisodes(ctx context.Context, query, projectID string, limit int) ([]SearchResultItem, error) {
	nodes, err := e.graph.FulltextSearch(ctx, e.fulltextEpisod, escapeFulltextQuery(query), limit, projectID)
	if err != nil {
		return nil, err
	}
	items := make([]SearchResultItem, 0, len(nodes))
	for _, n := range nodes {
		items = append(items, SearchResultItem{
			Type:    "episode",
			UUID:    stringProp(n.Node, "uuid"),
			Name:    stringProp(n.Node, "name"),
			Content: stringProp(n.Node, "content"),
			Score:   n.Score,
			Metadata: map[string]any{
				"search_type": "keyword",
				"created_at":  n.Node["created_at"],
			},
		})
	}
	return items, nil
}

func entityNodeToItem(n graphstore.ScoredNode, searchType string) SearchResultItem {
	entityType := stringProp(n.Node, "entity_type")
	if entityType == "" {
		entityType = "Entity"
	}
	return SearchResultItem{
		Type:    "entity",
		UUID:    stringProp(n.Node, "uuid"),
		Name:    stringProp(n.Node, "name"),
		Summary: stringProp(n.Node, "summary"),
		Score:   n.Score,
		Metadata: map[string]any{
			"entity_type": entityType,
			"search_type": searchType,
			"created_at":  n.Node["created_at"],
		},
	}
}

func stringProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

// rrfFusion combines vector and keyword result lists via Reciprocal Rank
// Fusion: score = sum(weight / (k + rank)) across the lists an item
// appears in. Metadata from the first-seen occurrence is kept; the RRF
// score overwrites the search-local score.
func (e *Engine) rrfFusion(vectorResults, keywordResults []SearchResultItem) []SearchResultItem {
	k := e.cfg.RRFK
	if k <= 0 {
		k = defaultRRFK
	}
	vectorWeight := e.cfg.VectorWeight
	keywordWeight := e.cfg.KeywordWeight
	if vectorWeight == 0 && keywordWeight == 0 {
		vectorWeight, keywordWeight = defaultVectorWeight, defaultKeywordWeight
	}

	scores := make(map[string]float64)
	itemsByUUID := make(map[string]SearchResultItem)

	for rank, item := range vectorResults {
		rrfScore := vectorWeight * (1.0 / float64(k+rank+1))
		scores[item.UUID] += rrfScore
		if _, ok := itemsByUUID[item.UUID]; !ok {
			itemsByUUID[item.UUID] = item
		}
	}
	for rank, item := range keywordResults {
		rrfScore := keywordWeight * (1.0 / float64(k+rank+1))
		scores[item.UUID] += rrfScore
		if _, ok := itemsByUUID[item.UUID]; !ok {
			itemsByUUID[item.UUID] = item
		}
	}

	combined := make([]SearchResultItem, 0, len(scores))
	for uuid, score := range scores {
		item := itemsByUUID[uuid]
		mergedMeta := make(map[string]any, len(item.Metadata)+1)
		for k, v := range item.Metadata {
			mergedMeta[k] = v
		}
		mergedMeta["rrf_score"] = score
		item.Score = score
		item.Metadata = mergedMeta
		combined = append(combined, item)
	}

	sort.SliceStable(combined, func(i, j int) bool { return combined[i].Score > combined[j].Score })
	return combined
}

// escapeFulltextQuery escapes Lucene special characters for Neo4j fulltext
// queries. Backslash is escaped first to avoid double-escaping.
func escapeFulltextQuery(query string) string {
	escaped := strings.ReplaceAll(query, `\`, `\\`)
	specialChars := []string{"+", "-", "&&", "||", "!", "(", ")", "{", "}", "[", "]", "^", `"`, "~", "*", "?", ":", "/"}
	for _, c := range specialChars {
		escaped = strings.ReplaceAll(escaped, c, `\`+c)
	}
	return escaped
}
