package graphstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// standardIndices is the fixed index set for episodic/entity/community
// nodes, taken directly from neo4j_client.py's build_indices.
var standardIndices = []string{
	"CREATE INDEX episodic_uuid IF NOT EXISTS FOR (e:Episodic) ON (e.uuid)",
	"CREATE INDEX episodic_project IF NOT EXISTS FOR (e:Episodic) ON (e.project_id)",
	"CREATE INDEX episodic_created_at IF NOT EXISTS FOR (e:Episodic) ON (e.created_at)",
	"CREATE INDEX episodic_memory_id IF NOT EXISTS FOR (e:Episodic) ON (e.memory_id)",
	"CREATE INDEX entity_uuid IF NOT EXISTS FOR (e:Entity) ON (e.uuid)",
	"CREATE INDEX entity_name IF NOT EXISTS FOR (e:Entity) ON (e.name)",
	"CREATE INDEX entity_project IF NOT EXISTS FOR (e:Entity) ON (e.project_id)",
	"CREATE INDEX community_uuid IF NOT EXISTS FOR (c:Community) ON (c.uuid)",
	"CREATE INDEX community_project IF NOT EXISTS FOR (c:Community) ON (c.project_id)",
	"CREATE FULLTEXT INDEX episodic_content IF NOT EXISTS FOR (e:Episodic) ON EACH [e.content]",
	"CREATE FULLTEXT INDEX entity_name_summary IF NOT EXISTS FOR (e:Entity) ON EACH [e.name, e.summary]",
}

// BuildIndices creates the standard index set. If deleteExisting, any index
// whose name begins with episodic_/entity_/community_ is dropped first.
// Individual index failures are logged and do not abort the rest — matching
// the source's tolerate-EquivalentSchemaRuleAlreadyExists behavior.
func (c *Client) BuildIndices(ctx context.Context, deleteExisting bool) error {
	if deleteExisting {
		result, err := c.ExecuteQuery(ctx, `
			SHOW INDEXES YIELD name
			WHERE name STARTS WITH 'episodic_' OR name STARTS WITH 'entity_' OR name STARTS WITH 'community_'
			RETURN name
		`, nil)
		if err != nil {
			return fmt.Errorf("list existing indices: %w", err)
		}
		for _, record := range result.Records {
			name, _, err := getStringValue(record, "name")
			if err != nil {
				continue
			}
			if _, err := c.ExecuteQuery(ctx, "DROP INDEX "+name, nil); err != nil {
				slog.Warn("failed to drop index", "name", name, "error", err)
			}
		}
	}

	for _, stmt := range standardIndices {
		if _, err := c.ExecuteQuery(ctx, stmt, nil); err != nil {
			if strings.Contains(err.Error(), "EquivalentSchemaRuleAlreadyExists") {
				continue
			}
			slog.Warn("failed to create index", "statement", truncate(stmt, 50), "error", err)
		}
	}
	return nil
}

// CreateVectorIndex creates a vector similarity index on label.property.
func (c *Client) CreateVectorIndex(ctx context.Context, indexName, label, property string, dimensions int, similarityFunction string) error {
	if err := validateIdentifier(label, "node label"); err != nil {
		return err
	}
	if err := validateIdentifier(property, "property key"); err != nil {
		return err
	}
	if similarityFunction == "" {
		similarityFunction = "cosine"
	}

	query := fmt.Sprintf(`
		CREATE VECTOR INDEX %s IF NOT EXISTS
		FOR (n:%s)
		ON (n.%s)
		OPTIONS {
			indexConfig: {
				%s: %d,
				%s: '%s'
			}
		}
	`, indexName, label, property,
		"`vector.dimensions`", dimensions,
		"`vector.similarity_function`", similarityFunction)

	_, err := c.ExecuteQuery(ctx, query, nil)
	if err != nil && !strings.Contains(err.Error(), "EquivalentSchemaRuleAlreadyExists") {
		return err
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
