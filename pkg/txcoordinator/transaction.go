package txcoordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"

	"github.com/memstack/memstack/ent"
)

// Transaction represents a single distributed transaction in flight.
type Transaction struct {
	id       string
	coord    *Coordinator
	timeout  time.Duration
	deadline time.Time

	sqlTx   *ent.Tx
	session neo4j.SessionWithContext
	graphTx neo4j.ExplicitTransaction
	pipe    redis.Pipeliner

	operations []string
	committed  map[string]bool

	// lastNeo4jQuery/lastNeo4jParams record the most recently attempted
	// Cypher write so a partial-commit compensating-transaction record can
	// carry a replayable payload (Reconcile re-runs it against the graph).
	lastNeo4jQuery  *string
	lastNeo4jParams map[string]any
}

// ID returns the transaction's identifier.
func (t *Transaction) ID() string { return t.id }

// SQL returns the Ent transaction handle for the PostgreSQL leg, or nil if
// PostgreSQL isn't configured.
func (t *Transaction) SQL() *ent.Tx { return t.sqlTx }

// ExecuteNeo4j runs a Cypher write against the transaction's graph leg.
func (t *Transaction) ExecuteNeo4j(ctx context.Context, query string, params map[string]any) (neo4j.ResultWithContext, error) {
	if t.graphTx == nil {
		return nil, fmt.Errorf("neo4j not configured for this transaction")
	}
	t.recordNeo4jAttempt(query, params)
	return t.graphTx.Run(ctx, query, params)
}

// recordNeo4jAttempt tracks the most recent Cypher write as the replay
// payload for a future compensating-transaction record, independently of
// whether the graph leg is actually configured.
func (t *Transaction) recordNeo4jAttempt(query string, params map[string]any) {
	t.operations = append(t.operations, "neo4j:"+truncate(query, 50))
	q := query
	t.lastNeo4jQuery = &q
	t.lastNeo4jParams = params
}

// QueueRedis stages a Redis command on the transaction's pipeline, to be
// flushed on Commit. cmd is invoked with the live pipeliner so callers can
// use any go-redis command (Set, Del, HSet, ...).
func (t *Transaction) QueueRedis(cmd func(redis.Pipeliner) error) error {
	if t.pipe == nil {
		return fmt.Errorf("redis not configured for this transaction")
	}
	t.operations = append(t.operations, "redis:queued")
	return cmd(t.pipe)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// commitAll executes the two-phase commit: PostgreSQL first (source of
// truth), then Neo4j, then Redis. A PostgreSQL commit failure aborts
// immediately; Neo4j failures are fatal but logged as a compensating
// transaction; Redis failures are non-critical (the cache rebuilds itself).
func (t *Transaction) commitAll(ctx context.Context) error {
	var (
		postgresCommitted, neo4jCommitted, redisCommitted bool
		neo4jErr                                           error
	)

	if t.sqlTx != nil {
		if err := t.sqlTx.Commit(); err != nil {
			slog.Error("postgres commit failed", "tx", t.id, "error", err)
			return fmt.Errorf("postgres commit failed: %w", err)
		}
		postgresCommitted = true
	}

	if t.graphTx != nil {
		if err := t.graphTx.Commit(ctx); err != nil {
			neo4jErr = err
			slog.Error("neo4j commit failed", "tx", t.id, "error", err)
		} else {
			neo4jCommitted = true
		}
		_ = t.session.Close(ctx)
	}

	if t.pipe != nil {
		if _, err := t.pipe.Exec(ctx); err != nil {
			slog.Warn("redis pipeline exec failed (non-critical)", "tx", t.id, "error", err)
		} else {
			redisCommitted = true
		}
	}

	if postgresCommitted && !(neo4jCommitted || t.graphTx == nil) {
		t.coord.logCompensatingTransaction(ctx, t.id, "distributed_transaction",
			true, false, redisCommitted || t.pipe == nil, t.lastNeo4jQuery, t.lastNeo4jParams)
	}
	if postgresCommitted && !(redisCommitted || t.pipe == nil) {
		t.coord.logCompensatingTransaction(ctx, t.id, "distributed_transaction",
			true, neo4jCommitted || t.graphTx == nil, false, nil, nil)
	}

	if neo4jErr != nil {
		return fmt.Errorf("neo4j commit failed: %w", neo4jErr)
	}
	return nil
}

// rollbackAll rolls back every configured leg, collecting (and only
// logging) errors so one leg's failure never masks another's rollback.
func (t *Transaction) rollbackAll(ctx context.Context) {
	if t.sqlTx != nil {
		if err := t.sqlTx.Rollback(); err != nil {
			slog.Error("postgres rollback failed", "tx", t.id, "error", err)
		}
	}
	if t.graphTx != nil {
		if err := t.graphTx.Rollback(ctx); err != nil {
			slog.Error("neo4j rollback failed", "tx", t.id, "error", err)
		}
		_ = t.session.Close(ctx)
	}
	if t.pipe != nil {
		t.pipe.Discard()
	}
}
