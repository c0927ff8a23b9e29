package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/relaybase/engine/internal/clock"
	"github.com/relaybase/engine/internal/ids"
	"github.com/relaybase/engine/internal/pg"
	"github.com/relaybase/engine/internal/workqueue"
)

// Store is the outbox contract consumed by the dispatcher and by
// application code enqueuing work (spec §4.1, §6).
type Store interface {
	// Enqueue inserts a Ready row inside exec, so callers can pass an
	// in-flight *sql.Tx to write the outbox row atomically with domain
	// data (spec §1, §2).
	Enqueue(ctx context.Context, exec workqueue.Executor, msg NewMessage) (ids.OutboxWorkItemID, error)
	Claim(ctx context.Context, owner ids.OwnerToken, leaseSeconds, batchSize int) ([]Message, error)
	Ack(ctx context.Context, owner ids.OwnerToken, workItems []ids.OutboxWorkItemID) (int64, error)
	Abandon(ctx context.Context, owner ids.OwnerToken, workItems []ids.OutboxWorkItemID, lastError *string, dueTime *time.Time) (int64, error)
	Fail(ctx context.Context, owner ids.OwnerToken, workItems []ids.OutboxWorkItemID, lastError *string) (int64, error)
	ReapExpired(ctx context.Context) (int64, error)
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

// PostgresStore is the Store implementation backed by a Postgres schema,
// using workqueue.Engine for the shared claim/ack/abandon/fail/reap
// machinery and its own SQL for enqueue and cleanup.
type PostgresStore struct {
	db         *sql.DB
	schema     string
	table      string
	clk        clock.Clock
	engineCfg  workqueue.Config
}

// NewPostgresStore builds a PostgresStore for the given schema-qualified
// table (defaults per spec §6: schema "infra", table "Outbox").
func NewPostgresStore(db *sql.DB, schema, table string, clk clock.Clock) *PostgresStore {
	qualified := fmt.Sprintf("%s.%s", schema, table)
	return &PostgresStore{
		db:     db,
		schema: schema,
		table:  table,
		clk:    clk,
		engineCfg: workqueue.Config{
			Table:             qualified,
			IDColumn:          "id",
			StatusColumn:      "status",
			OwnerColumn:       "owner_token",
			LockedUntilColumn: "locked_until",
			DueTimeColumn:     "due_time_utc",
			OrderColumn:       "created_at",
			RetryCountColumn:  "retry_count",
			LastErrorColumn:   "last_error",
			ReadyStatus:       fmt.Sprint(int(StatusReady)),
			InProgressStatus:  fmt.Sprint(int(StatusInProgress)),
			DoneStatus:        fmt.Sprint(int(StatusDone)),
			FailStatus:        fmt.Sprint(int(StatusFailed)),
		},
	}
}

func (s *PostgresStore) qualifiedTable() string { return fmt.Sprintf("%s.%s", s.schema, s.table) }

func (s *PostgresStore) Enqueue(ctx context.Context, exec workqueue.Executor, msg NewMessage) (ids.OutboxWorkItemID, error) {
	id := ids.NewOutboxWorkItemID()
	now := s.clk.Now()

	query := fmt.Sprintf(`
INSERT INTO %s (id, topic, payload, correlation_id, message_id, created_at, due_time_utc, status, is_processed, retry_count)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, 0)`, s.qualifiedTable())

	_, err := exec.ExecContext(ctx, query, id.String(), msg.Topic, msg.Payload, msg.CorrelationID, msg.MessageID.String(), now, msg.DueTime, int(StatusReady))
	if err != nil {
		return ids.OutboxWorkItemID{}, fmt.Errorf("outbox: enqueue: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) Claim(ctx context.Context, owner ids.OwnerToken, leaseSeconds, batchSize int) ([]Message, error) {
	eng := workqueue.New(s.db, s.engineCfg, s.clk)
	claimedIDs, err := eng.Claim(ctx, owner.String(), leaseSeconds, batchSize)
	if err != nil {
		return nil, err
	}
	if len(claimedIDs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
SELECT id, topic, payload, correlation_id, message_id, created_at, due_time_utc, status, retry_count, last_error
FROM %s WHERE id = ANY($1)`, s.qualifiedTable())

	rows, err := s.db.QueryContext(ctx, query, claimedIDs)
	if err != nil {
		return nil, fmt.Errorf("outbox: claim fetch: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m           Message
			idStr       string
			msgIDStr    string
			statusInt   int
		)
		if err := rows.Scan(&idStr, &m.Topic, &m.Payload, &m.CorrelationID, &msgIDStr, &m.CreatedAt, &m.DueTime, &statusInt, &m.RetryCount, &m.LastError); err != nil {
			return nil, fmt.Errorf("outbox: claim scan: %w", err)
		}
		m.ID, err = ids.ParseOutboxWorkItemID(idStr)
		if err != nil {
			return nil, fmt.Errorf("outbox: claim parse id: %w", err)
		}
		m.MessageID, err = ids.ParseOutboxMessageID(msgIDStr)
		if err != nil {
			return nil, fmt.Errorf("outbox: claim parse message id: %w", err)
		}
		m.Status = Status(statusInt)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Ack(ctx context.Context, owner ids.OwnerToken, workItems []ids.OutboxWorkItemID) (int64, error) {
	eng := workqueue.New(s.db, s.engineCfg, s.clk)
	return eng.Ack(ctx, owner.String(), stringIDs(workItems), "processed_at = now(), is_processed = true")
}

func (s *PostgresStore) Abandon(ctx context.Context, owner ids.OwnerToken, workItems []ids.OutboxWorkItemID, lastError *string, dueTime *time.Time) (int64, error) {
	eng := workqueue.New(s.db, s.engineCfg, s.clk)
	return eng.Abandon(ctx, owner.String(), stringIDs(workItems), lastError, dueTime)
}

func (s *PostgresStore) Fail(ctx context.Context, owner ids.OwnerToken, workItems []ids.OutboxWorkItemID, lastError *string) (int64, error) {
	eng := workqueue.New(s.db, s.engineCfg, s.clk)
	return eng.Fail(ctx, owner.String(), stringIDs(workItems), lastError, "")
}

func (s *PostgresStore) ReapExpired(ctx context.Context) (int64, error) {
	eng := workqueue.New(s.db, s.engineCfg, s.clk)
	return eng.ReapExpired(ctx)
}

// Cleanup deletes terminal rows older than retention, tolerating an absent
// table/procedure the way spec §4.8/§7 requires of cleanup services.
func (s *PostgresStore) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.clk.Now().Add(-retention)
	query := fmt.Sprintf(`
DELETE FROM %s WHERE status IN ($1, $2) AND created_at <= $3`, s.qualifiedTable())

	res, err := s.db.ExecContext(ctx, query, int(StatusDone), int(StatusFailed), cutoff)
	if err != nil {
		return 0, pg.ClassifyCleanupError(err)
	}
	return res.RowsAffected()
}

func stringIDs(workItems []ids.OutboxWorkItemID) []string {
	out := make([]string, len(workItems))
	for i, id := range workItems {
		out[i] = id.String()
	}
	return out
}
