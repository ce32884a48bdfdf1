// Package txcoordinator implements the distributed transaction coordinator
// of spec §4.2: a two-phase commit across PostgreSQL, Neo4j, and Redis with
// PostgreSQL as the source of truth and compensating-transaction logging for
// the databases that diverge from it.
package txcoordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"

	"github.com/memstack/memstack/ent"
)

// Stats mirrors TransactionStats from the source coordinator.
type Stats struct {
	TotalTransactions     int
	CommittedTransactions int
	FailedTransactions    int
	RollbackCount         int
	InconsistencyCount    int
	ReconciledCount       int
}

// Coordinator coordinates distributed transactions across the three stores.
// Any of the three clients may be nil, in which case that leg is skipped
// entirely (matching the source's has_postgres/has_neo4j/has_redis guards).
type Coordinator struct {
	entClient   *ent.Client
	neo4jDriver neo4j.DriverWithContext
	redis       *redis.Client
	timeout     time.Duration

	mu    sync.Mutex
	stats Stats
	count int
}

// New constructs a Coordinator. entClient is the source of truth and should
// not be nil in production; neo4jDriver and redis may be nil.
func New(entClient *ent.Client, neo4jDriver neo4j.DriverWithContext, redisClient *redis.Client, timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Coordinator{
		entClient:   entClient,
		neo4jDriver: neo4jDriver,
		redis:       redisClient,
		timeout:     timeout,
	}
}

// HasPostgres reports whether the SQL leg is configured.
func (c *Coordinator) HasPostgres() bool { return c.entClient != nil }

// HasNeo4j reports whether the graph leg is configured.
func (c *Coordinator) HasNeo4j() bool { return c.neo4jDriver != nil }

// HasRedis reports whether the cache leg is configured.
func (c *Coordinator) HasRedis() bool { return c.redis != nil }

// Statistics returns a snapshot of the coordinator's counters.
func (c *Coordinator) Statistics() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// TransactionCount returns the total number of transactions started.
func (c *Coordinator) TransactionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Begin starts a distributed transaction, begins the SQL/graph/cache legs,
// and returns the handle the caller uses to enqueue operations. The caller
// must call Commit or Rollback exactly once.
func (c *Coordinator) Begin(ctx context.Context, timeoutOverride time.Duration) (*Transaction, error) {
	timeout := c.timeout
	if timeoutOverride > 0 {
		timeout = timeoutOverride
	}

	c.mu.Lock()
	c.count++
	c.stats.TotalTransactions++
	c.mu.Unlock()

	tx := &Transaction{
		id:        uuid.New().String(),
		coord:     c,
		timeout:   timeout,
		deadline:  time.Now().Add(timeout),
		committed: map[string]bool{},
	}

	if c.entClient != nil {
		sqlTx, err := c.entClient.Tx(ctx)
		if err != nil {
			return nil, fmt.Errorf("begin postgres tx: %w", err)
		}
		tx.sqlTx = sqlTx
	}

	if c.neo4jDriver != nil {
		session := c.neo4jDriver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
		graphTx, err := session.BeginTransaction(ctx)
		if err != nil {
			_ = session.Close(ctx)
			if tx.sqlTx != nil {
				_ = tx.sqlTx.Rollback()
			}
			return nil, fmt.Errorf("begin neo4j tx: %w", err)
		}
		tx.session = session
		tx.graphTx = graphTx
	}

	if c.redis != nil {
		tx.pipe = c.redis.TxPipeline()
	}

	return tx, nil
}

// WithTransaction runs fn inside a begin/commit/rollback envelope, mirroring
// the source's `async with coordinator.begin()` context-manager usage: a
// timeout or an error from fn triggers rollback, otherwise the two-phase
// commit runs.
func (c *Coordinator) WithTransaction(ctx context.Context, timeoutOverride time.Duration, fn func(ctx context.Context, tx *Transaction) error) error {
	tx, err := c.Begin(ctx, timeoutOverride)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, tx.timeout)
	defer cancel()

	if err := fn(cctx, tx); err != nil {
		tx.rollbackAll(ctx)
		c.mu.Lock()
		c.stats.FailedTransactions++
		c.stats.RollbackCount++
		c.mu.Unlock()
		if cctx.Err() != nil {
			return fmt.Errorf("transaction %s timed out after %s", tx.id, tx.timeout)
		}
		return err
	}

	if err := tx.commitAll(ctx); err != nil {
		c.mu.Lock()
		c.stats.FailedTransactions++
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.stats.CommittedTransactions++
	c.mu.Unlock()
	return nil
}

// logCompensatingTransaction persists an inconsistency record. When the
// Neo4j leg is the one that diverged, neo4jQuery/neo4jParams carry the
// attempted Cypher write so Reconcile can replay it later; callers pass
// nil/nil when the divergence is on a different leg (e.g. Redis).
func (c *Coordinator) logCompensatingTransaction(ctx context.Context, entityID, operation string, postgresCommitted, neo4jCommitted, redisCommitted bool, neo4jQuery *string, neo4jParams map[string]any) {
	c.mu.Lock()
	c.stats.InconsistencyCount++
	c.mu.Unlock()

	if c.entClient == nil {
		return
	}
	create := c.entClient.CompensatingTransaction.Create().
		SetID(uuid.New().String()).
		SetEntityID(entityID).
		SetOperation(operation).
		SetPostgresCommitted(postgresCommitted).
		SetNeo4jCommitted(neo4jCommitted).
		SetRedisCommitted(redisCommitted)
	if neo4jQuery != nil {
		create = create.SetNeo4jQuery(*neo4jQuery)
	}
	if neo4jParams != nil {
		create = create.SetNeo4jParams(neo4jParams)
	}
	_, err := create.Save(ctx)
	if err != nil {
		slog.Error("failed to persist compensating transaction", "entity_id", entityID, "error", err)
	}
}

// Reconcile attempts to replay a pending compensating transaction's Neo4j
// operation. Redis inconsistencies are accepted as-is since the cache
// rebuilds itself on next read, matching the source's reconciliation policy.
func (c *Coordinator) Reconcile(ctx context.Context, transactionID string) (bool, error) {
	if c.entClient == nil {
		return false, fmt.Errorf("postgres not configured")
	}

	record, err := c.entClient.CompensatingTransaction.Get(ctx, transactionID)
	if err != nil {
		if ent.IsNotFound(err) {
			slog.Warn("compensating transaction not found", "id", transactionID)
			return false, nil
		}
		return false, err
	}

	if record.PostgresCommitted && !record.Neo4jCommitted {
		if record.Neo4jQuery != nil && c.neo4jDriver != nil {
			session := c.neo4jDriver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
			defer session.Close(ctx)

			params := record.Neo4jParams
			if params == nil {
				params = map[string]any{}
			}
			_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
				return tx.Run(ctx, *record.Neo4jQuery, params)
			})
			if err != nil {
				slog.Error("failed to replay neo4j operation during reconcile", "id", transactionID, "error", err)
				_, _ = record.Update().SetStatus("failed").Save(ctx)
				return false, nil
			}
		}
	}

	_, err = record.Update().SetStatus("reconciled").Save(ctx)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.stats.ReconciledCount++
	c.mu.Unlock()
	return true, nil
}
