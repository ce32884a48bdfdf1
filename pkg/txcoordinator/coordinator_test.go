package txcoordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisOnlyCoordinator(t *testing.T) (*Coordinator, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(nil, nil, client, 5*time.Second), mr
}

func TestWithTransactionCommitsRedisLeg(t *testing.T) {
	c, mr := newRedisOnlyCoordinator(t)

	err := c.WithTransaction(context.Background(), 0, func(ctx context.Context, tx *Transaction) error {
		return tx.QueueRedis(func(p redis.Pipeliner) error {
			return p.Set(ctx, "k", "v", 0).Err()
		})
	})
	require.NoError(t, err)

	v, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	stats := c.Statistics()
	assert.Equal(t, 1, stats.TotalTransactions)
	assert.Equal(t, 1, stats.CommittedTransactions)
	assert.Equal(t, 0, stats.FailedTransactions)
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	c, mr := newRedisOnlyCoordinator(t)

	boom := errors.New("boom")
	err := c.WithTransaction(context.Background(), 0, func(ctx context.Context, tx *Transaction) error {
		_ = tx.QueueRedis(func(p redis.Pipeliner) error {
			return p.Set(ctx, "k", "v", 0).Err()
		})
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = mr.Get("k")
	assert.Error(t, err, "key must not exist after rollback discards the pipeline")

	stats := c.Statistics()
	assert.Equal(t, 1, stats.FailedTransactions)
	assert.Equal(t, 1, stats.RollbackCount)
}

func TestExecuteNeo4jWithoutDriverErrors(t *testing.T) {
	c, _ := newRedisOnlyCoordinator(t)

	err := c.WithTransaction(context.Background(), 0, func(ctx context.Context, tx *Transaction) error {
		_, err := tx.ExecuteNeo4j(ctx, "RETURN 1", nil)
		return err
	})
	require.Error(t, err)
}

func TestReconcileWithoutPostgresReturnsError(t *testing.T) {
	c, _ := newRedisOnlyCoordinator(t)
	_, err := c.Reconcile(context.Background(), "missing-id")
	require.Error(t, err)
}

func TestHasFlags(t *testing.T) {
	c, _ := newRedisOnlyCoordinator(t)
	assert.False(t, c.HasPostgres())
	assert.False(t, c.HasNeo4j())
	assert.True(t, c.HasRedis())
}

// TestRecordNeo4jAttemptCapturesReplayPayload exercises, without any live
// ent/Neo4j/Redis backend, the payload-construction step a partial-commit
// compensating-transaction record depends on: the transaction must retain
// the most recently attempted Cypher write so it survives into the
// compensating-transaction record Reconcile later replays.
func TestRecordNeo4jAttemptCapturesReplayPayload(t *testing.T) {
	tx := &Transaction{id: "tx-1"}

	assert.Nil(t, tx.lastNeo4jQuery)

	tx.recordNeo4jAttempt("CREATE (n:Episode {uuid: $uuid})", map[string]any{"uuid": "abc"})
	require.NotNil(t, tx.lastNeo4jQuery)
	assert.Equal(t, "CREATE (n:Episode {uuid: $uuid})", *tx.lastNeo4jQuery)
	assert.Equal(t, map[string]any{"uuid": "abc"}, tx.lastNeo4jParams)

	// A later attempt overwrites the payload, matching the last-attempted
	// semantics commitAll relies on when logging the compensating record.
	tx.recordNeo4jAttempt("MATCH (n:Episode {uuid: $uuid}) SET n.summary = $summary",
		map[string]any{"uuid": "abc", "summary": "updated"})
	assert.Equal(t, "MATCH (n:Episode {uuid: $uuid}) SET n.summary = $summary", *tx.lastNeo4jQuery)
	assert.Equal(t, "updated", tx.lastNeo4jParams["summary"])
}

// TestLogCompensatingTransactionWithoutPostgresStillCountsInconsistency
// exercises logCompensatingTransaction's SQL-succeeds/graph-fails payload
// path (postgresCommitted=true, neo4jCommitted=false, a non-nil query and
// params) without a live ent client: the stats counter must still
// increment, and passing a populated neo4jQuery/neo4jParams pair must not
// panic even though there's nothing to persist to.
func TestLogCompensatingTransactionWithoutPostgresStillCountsInconsistency(t *testing.T) {
	c, _ := newRedisOnlyCoordinator(t)
	query := "CREATE (n:Episode {uuid: $uuid})"
	params := map[string]any{"uuid": "abc"}

	c.logCompensatingTransaction(context.Background(), "entity-1", "distributed_transaction",
		true, false, true, &query, params)

	stats := c.Statistics()
	assert.Equal(t, 1, stats.InconsistencyCount)
}
