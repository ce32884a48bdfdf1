package graphstore

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ScoredNode pairs a node's properties with a similarity/relevance score,
// matching neo4j_client.py's vector_search/fulltext_search return shape.
type ScoredNode struct {
	Node  map[string]any
	Score float64
}

func getStringValue(record *neo4j.Record, key string) (string, bool, error) {
	return neo4j.GetRecordValue[string](record, key)
}

// VectorSearch runs a vector similarity query against indexName, optionally
// scoped to a project.
func (c *Client) VectorSearch(ctx context.Context, indexName string, queryVector []float32, limit int, projectID string) ([]ScoredNode, error) {
	projectFilter := ""
	params := map[string]any{
		"index_name":   indexName,
		"limit":        limit,
		"query_vector": queryVector,
	}
	if projectID != "" {
		projectFilter = "WHERE node.project_id = $project_id OR $project_id IS NULL"
		params["project_id"] = projectID
	}

	query := fmt.Sprintf(`
		CALL db.index.vector.queryNodes($index_name, $limit, $query_vector)
		YIELD node, score
		%s
		RETURN node, score
		ORDER BY score DESC
	`, projectFilter)

	return c.runScoredQuery(ctx, query, params)
}

// FulltextSearch runs a Lucene fulltext query against indexName, optionally
// scoped to a project.
func (c *Client) FulltextSearch(ctx context.Context, indexName, queryText string, limit int, projectID string) ([]ScoredNode, error) {
	projectFilter := ""
	params := map[string]any{
		"index_name": indexName,
		"query":      queryText,
		"limit":      limit,
	}
	if projectID != "" {
		projectFilter = "WHERE node.project_id = $project_id OR $project_id IS NULL"
		params["project_id"] = projectID
	}

	query := fmt.Sprintf(`
		CALL db.index.fulltext.queryNodes($index_name, $query)
		YIELD node, score
		%s
		RETURN node, score
		ORDER BY score DESC
		LIMIT $limit
	`, projectFilter)

	return c.runScoredQuery(ctx, query, params)
}

func (c *Client) runScoredQuery(ctx context.Context, query string, params map[string]any) ([]ScoredNode, error) {
	result, err := c.ExecuteQuery(ctx, query, params)
	if err != nil {
		return nil, err
	}

	out := make([]ScoredNode, 0, len(result.Records))
	for _, record := range result.Records {
		node, _, err := neo4j.GetRecordValue[neo4j.Node](record, "node")
		if err != nil {
			continue
		}
		score, _, err := neo4j.GetRecordValue[float64](record, "score")
		if err != nil {
			continue
		}
		out = append(out, ScoredNode{Node: node.Props, Score: score})
	}
	return out, nil
}
