package inbox

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/relaybase/engine/internal/apperr"
	"github.com/relaybase/engine/internal/clock"
	"github.com/relaybase/engine/internal/pg"
	"github.com/relaybase/engine/internal/workqueue"
)

// Store is the inbox contract consumed by message consumers (spec §4.5)
// and, when topic/payload are populated, by work-queue consumers through
// Claim/Ack/Abandon/Fail (spec §4.1).
type Store interface {
	AlreadyProcessed(ctx context.Context, messageID, source string, hash []byte) (bool, error)
	MarkProcessing(ctx context.Context, messageID string) error
	MarkProcessed(ctx context.Context, messageID string) error
	MarkDead(ctx context.Context, messageID string) error

	Claim(ctx context.Context, owner string, leaseSeconds, batchSize int) ([]Message, error)
	Ack(ctx context.Context, owner string, messageIDs []string) (int64, error)
	Abandon(ctx context.Context, owner string, messageIDs []string, lastError *string, dueTime *time.Time) (int64, error)
	Fail(ctx context.Context, owner string, messageIDs []string, lastError *string) (int64, error)
	ReapExpired(ctx context.Context) (int64, error)
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

// PostgresStore is the Store implementation backed by a Postgres schema.
type PostgresStore struct {
	db        *sql.DB
	schema    string
	table     string
	clk       clock.Clock
	engineCfg workqueue.Config
}

// NewPostgresStore builds a PostgresStore for the given schema-qualified
// table (defaults per spec §6: schema "infra", table "Inbox").
func NewPostgresStore(db *sql.DB, schema, table string, clk clock.Clock) *PostgresStore {
	qualified := fmt.Sprintf("%s.%s", schema, table)
	return &PostgresStore{
		db:     db,
		schema: schema,
		table:  table,
		clk:    clk,
		engineCfg: workqueue.Config{
			Table:             qualified,
			IDColumn:          "message_id",
			StatusColumn:      "status",
			OwnerColumn:       "owner_token",
			LockedUntilColumn: "locked_until",
			DueTimeColumn:     "due_time_utc",
			OrderColumn:       "first_seen_utc",
			LastErrorColumn:   "last_error",
			ReadyStatus:       string(StatusSeen),
			InProgressStatus:  string(StatusProcessing),
			DoneStatus:        string(StatusDone),
			FailStatus:        string(StatusDead),
		},
	}
}

func (s *PostgresStore) qualifiedTable() string { return fmt.Sprintf("%s.%s", s.schema, s.table) }

// AlreadyProcessed registers the message id on first sight and reports
// whether it has already reached Done, incrementing attempts on every
// call regardless of outcome (spec §4.5).
func (s *PostgresStore) AlreadyProcessed(ctx context.Context, messageID, source string, hash []byte) (bool, error) {
	if strings.TrimSpace(messageID) == "" || strings.TrimSpace(source) == "" {
		return false, fmt.Errorf("inbox: message_id/source blank: %w", apperr.ErrInvalidArgument)
	}

	now := s.clk.Now()
	query := fmt.Sprintf(`
INSERT INTO %s (message_id, source, hash, first_seen_utc, last_seen_utc, attempts, status)
VALUES ($1, $2, $3, $4, $4, 1, $5)
ON CONFLICT (message_id) DO UPDATE SET
	last_seen_utc = $4,
	attempts = %[1]s.attempts + 1
RETURNING status`, s.qualifiedTable())

	var status string
	err := s.db.QueryRowContext(ctx, query, messageID, source, hash, now, string(StatusSeen)).Scan(&status)
	if err != nil {
		return false, fmt.Errorf("inbox: already_processed: %w", err)
	}
	return status == string(StatusDone), nil
}

func (s *PostgresStore) setStatus(ctx context.Context, messageID string, status Status, extraSet string) error {
	query := fmt.Sprintf(`UPDATE %s SET status = $1%s WHERE message_id = $2`, s.qualifiedTable(), extraSet)
	_, err := s.db.ExecContext(ctx, query, string(status), messageID)
	if err != nil {
		return fmt.Errorf("inbox: set status %s: %w", status, err)
	}
	return nil
}

func (s *PostgresStore) MarkProcessing(ctx context.Context, messageID string) error {
	return s.setStatus(ctx, messageID, StatusProcessing, "")
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, messageID string) error {
	return s.setStatus(ctx, messageID, StatusDone, ", processed_utc = now()")
}

func (s *PostgresStore) MarkDead(ctx context.Context, messageID string) error {
	return s.setStatus(ctx, messageID, StatusDead, "")
}

func (s *PostgresStore) Claim(ctx context.Context, owner string, leaseSeconds, batchSize int) ([]Message, error) {
	eng := workqueue.New(s.db, s.engineCfg, s.clk)
	claimedIDs, err := eng.Claim(ctx, owner, leaseSeconds, batchSize)
	if err != nil {
		return nil, err
	}
	if len(claimedIDs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
SELECT message_id, topic, payload, first_seen_utc, due_time_utc, status, attempts
FROM %s WHERE message_id = ANY($1)`, s.qualifiedTable())

	rows, err := s.db.QueryContext(ctx, query, claimedIDs)
	if err != nil {
		return nil, fmt.Errorf("inbox: claim fetch: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m         Message
			statusStr string
		)
		if err := rows.Scan(&m.MessageID, &m.Topic, &m.Payload, &m.CreatedAt, &m.DueTime, &statusStr, &m.Attempts); err != nil {
			return nil, fmt.Errorf("inbox: claim scan: %w", err)
		}
		m.Status = Status(statusStr)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Ack(ctx context.Context, owner string, messageIDs []string) (int64, error) {
	eng := workqueue.New(s.db, s.engineCfg, s.clk)
	return eng.Ack(ctx, owner, messageIDs, "processed_utc = now()")
}

func (s *PostgresStore) Abandon(ctx context.Context, owner string, messageIDs []string, lastError *string, dueTime *time.Time) (int64, error) {
	eng := workqueue.New(s.db, s.engineCfg, s.clk)
	return eng.Abandon(ctx, owner, messageIDs, lastError, dueTime)
}

func (s *PostgresStore) Fail(ctx context.Context, owner string, messageIDs []string, lastError *string) (int64, error) {
	eng := workqueue.New(s.db, s.engineCfg, s.clk)
	return eng.Fail(ctx, owner, messageIDs, lastError, "")
}

func (s *PostgresStore) ReapExpired(ctx context.Context) (int64, error) {
	eng := workqueue.New(s.db, s.engineCfg, s.clk)
	return eng.ReapExpired(ctx)
}

func (s *PostgresStore) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.clk.Now().Add(-retention)
	query := fmt.Sprintf(`DELETE FROM %s WHERE status IN ($1, $2) AND first_seen_utc <= $3`, s.qualifiedTable())

	res, err := s.db.ExecContext(ctx, query, string(StatusDone), string(StatusDead), cutoff)
	if err != nil {
		return 0, pg.ClassifyCleanupError(err)
	}
	return res.RowsAffected()
}
