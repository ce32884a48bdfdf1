// Package graphstore wraps the Neo4j driver with the connection, timeout,
// and indexing conventions of spec §4.3: MERGE-based node/edge primitives,
// identifier validation against Cypher injection, and the standard index
// set for episodic/entity/community nodes.
package graphstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/config"
)

// Config configures the driver's connection pool and timeouts, mirroring
// neo4j_client.py's CONNECTION_TIMEOUT/ACQUISITION_TIMEOUT/
// TRANSACTION_TIMEOUT/MAX_CONNECTION_POOL_SIZE constants.
type Config struct {
	URI                string
	Username           string
	Password           string
	Database           string
	ConnectionTimeout  time.Duration
	AcquisitionTimeout time.Duration
	TransactionTimeout time.Duration
	MaxConnectionPool  int
	MaxConnectionLife  time.Duration
}

// DefaultConfig returns the source's defaults: 10s connection/acquisition
// timeouts, 30s transaction timeout, pool size 100, 1h max connection life.
func DefaultConfig(uri, username, password string) Config {
	return Config{
		URI:                uri,
		Username:           username,
		Password:           password,
		Database:           "neo4j",
		ConnectionTimeout:  10 * time.Second,
		AcquisitionTimeout: 10 * time.Second,
		TransactionTimeout: 30 * time.Second,
		MaxConnectionPool:  100,
		MaxConnectionLife:  time.Hour,
	}
}

// Client is a thin wrapper around the Neo4j driver providing pooling,
// per-query timeouts, and typed node/edge helper methods.
type Client struct {
	driver    neo4j.DriverWithContext
	database  string
	txTimeout time.Duration
}

// New opens a Neo4j driver and verifies connectivity within
// cfg.ConnectionTimeout, matching the source's initialize()/
// verify_connectivity() sequence.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("neo4j credentials (username and password) must be provided")
	}

	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *config.Config) {
			c.MaxConnectionPoolSize = cfg.MaxConnectionPool
			c.MaxConnectionLifetime = cfg.MaxConnectionLife
			c.ConnectionAcquisitionTimeout = cfg.AcquisitionTimeout
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, cfg.ConnectionTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(cctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = "neo4j"
	}
	timeout := cfg.TransactionTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{driver: driver, database: database, txTimeout: timeout}, nil
}

// NewFromDriver wraps an already-constructed driver, useful for tests.
func NewFromDriver(driver neo4j.DriverWithContext, database string, txTimeout time.Duration) *Client {
	if database == "" {
		database = "neo4j"
	}
	if txTimeout <= 0 {
		txTimeout = 30 * time.Second
	}
	return &Client{driver: driver, database: database, txTimeout: txTimeout}
}

// Driver exposes the underlying driver for packages (graphstore,
// txcoordinator) that need to manage their own sessions/transactions.
func (c *Client) Driver() neo4j.DriverWithContext { return c.driver }

// Close shuts down the underlying driver.
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// ExecuteQuery runs a Cypher query with parameters under the client's
// configured transaction timeout.
func (c *Client) ExecuteQuery(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	cctx, cancel := context.WithTimeout(ctx, c.txTimeout)
	defer cancel()

	result, err := neo4j.ExecuteQuery(cctx, c.driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(c.database),
	)
	if err != nil {
		if cctx.Err() != nil {
			return nil, fmt.Errorf("neo4j query timeout after %s", c.txTimeout)
		}
		return nil, err
	}
	return result, nil
}

// SaveNode MERGEs a node identified by uuid with the given labels and sets
// its properties. uuid is stripped from properties if present, to avoid a
// duplicate parameter.
func (c *Client) SaveNode(ctx context.Context, labels []string, uuid string, properties map[string]any) error {
	if err := validateIdentifiers(labels, "node label"); err != nil {
		return err
	}
	props := make(map[string]any, len(properties))
	for k, v := range properties {
		if k == "uuid" {
			continue
		}
		if err := validateIdentifier(k, "property key"); err != nil {
			return err
		}
		props[k] = v
	}

	setClauses := make([]string, 0, len(props))
	for k := range props {
		setClauses = append(setClauses, fmt.Sprintf("n.%s = $%s", k, k))
	}

	query := fmt.Sprintf("MERGE (n:%s {uuid: $uuid})", strings.Join(labels, ":"))
	if len(setClauses) > 0 {
		query += "\nSET " + strings.Join(setClauses, ", ")
	}

	params := map[string]any{"uuid": uuid}
	for k, v := range props {
		params[k] = v
	}

	_, err := c.ExecuteQuery(ctx, query, params)
	return err
}

// SaveEdge MERGEs a relationship of relationshipType between two nodes
// located by uuid, optionally setting relationship properties.
func (c *Client) SaveEdge(ctx context.Context, fromUUID, toUUID, relationshipType string, properties map[string]any) error {
	if err := validateIdentifier(relationshipType, "relationship type"); err != nil {
		return err
	}
	if err := validateIdentifiers(keysOf(properties), "property key"); err != nil {
		return err
	}

	setClauses := make([]string, 0, len(properties))
	for k := range properties {
		setClauses = append(setClauses, fmt.Sprintf("r.%s = $%s", k, k))
	}

	query := fmt.Sprintf(`
		MATCH (from {uuid: $from_uuid})
		MATCH (to {uuid: $to_uuid})
		MERGE (from)-[r:%s]->(to)
	`, relationshipType)
	if len(setClauses) > 0 {
		query += "SET " + strings.Join(setClauses, ", ")
	}

	params := map[string]any{"from_uuid": fromUUID, "to_uuid": toUUID}
	for k, v := range properties {
		params[k] = v
	}

	_, err := c.ExecuteQuery(ctx, query, params)
	return err
}

// DeleteNode detaches and deletes a node by uuid, reporting whether a node
// was actually removed.
func (c *Client) DeleteNode(ctx context.Context, uuid string) (bool, error) {
	result, err := c.ExecuteQuery(ctx, `
		MATCH (n {uuid: $uuid})
		DETACH DELETE n
		RETURN count(n) AS deleted
	`, map[string]any{"uuid": uuid})
	if err != nil {
		return false, err
	}
	if len(result.Records) == 0 {
		return false, nil
	}
	deleted, _, err := neo4j.GetRecordValue[int64](result.Records[0], "deleted")
	if err != nil {
		return false, nil
	}
	return deleted > 0, nil
}

// FindNodeByUUID looks up a node by uuid, optionally filtered by labels.
func (c *Client) FindNodeByUUID(ctx context.Context, uuid string, labels []string) (map[string]any, bool, error) {
	if err := validateIdentifiers(labels, "node label"); err != nil {
		return nil, false, err
	}
	labelFilter := ""
	if len(labels) > 0 {
		labelFilter = ":" + strings.Join(labels, ":")
	}

	query := fmt.Sprintf("MATCH (n%s {uuid: $uuid}) RETURN n", labelFilter)
	result, err := c.ExecuteQuery(ctx, query, map[string]any{"uuid": uuid})
	if err != nil {
		return nil, false, err
	}
	if len(result.Records) == 0 {
		return nil, false, nil
	}
	node, _, err := neo4j.GetRecordValue[neo4j.Node](result.Records[0], "n")
	if err != nil {
		return nil, false, err
	}
	return node.Props, true, nil
}

func keysOf(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
