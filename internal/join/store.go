package join

import (
	"context"
	"database/sql"
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"github.com/relaybase/engine/internal/apperr"
	"github.com/relaybase/engine/internal/clock"
	"github.com/relaybase/engine/internal/ids"
)

// Store is the join coordinator contract (spec §4.4).
type Store interface {
	CreateJoin(ctx context.Context, tenantID int64, expectedSteps int, metadata string) (*Join, error)
	AttachMessage(ctx context.Context, joinID ids.JoinID, outboxMessageID ids.OutboxMessageID) error
	IncrementCompleted(ctx context.Context, joinID ids.JoinID, outboxMessageID ids.OutboxMessageID) (*Join, error)
	IncrementFailed(ctx context.Context, joinID ids.JoinID, outboxMessageID ids.OutboxMessageID) (*Join, error)
	UpdateStatus(ctx context.Context, joinID ids.JoinID, status Status) (*Join, error)
	GetJoin(ctx context.Context, joinID ids.JoinID) (*Join, error)
	GetJoinMessages(ctx context.Context, joinID ids.JoinID) ([]Member, error)
}

// PostgresStore is the Store implementation backed by
// `<schema>.join`/`<schema>.join_member`.
type PostgresStore struct {
	db     *sql.DB
	schema string
	clk    clock.Clock
}

// NewPostgresStore builds a PostgresStore under the given schema.
func NewPostgresStore(db *sql.DB, schema string, clk clock.Clock) *PostgresStore {
	return &PostgresStore{db: db, schema: schema, clk: clk}
}

func (s *PostgresStore) joinTable() string   { return fmt.Sprintf(`%s."join"`, s.schema) }
func (s *PostgresStore) memberTable() string { return fmt.Sprintf("%s.join_member", s.schema) }

func (s *PostgresStore) CreateJoin(ctx context.Context, tenantID int64, expectedSteps int, metadata string) (*Join, error) {
	id := ids.NewJoinID()
	now := s.clk.Now()

	query := fmt.Sprintf(`
INSERT INTO %s (join_id, tenant_id, expected_steps, completed_steps, failed_steps, status, created_utc, last_updated_utc, metadata)
VALUES ($1, $2, $3, 0, 0, $4, $5, $5, $6)`, s.joinTable())

	if _, err := s.db.ExecContext(ctx, query, id.String(), tenantID, expectedSteps, string(StatusPending), now, metadata); err != nil {
		return nil, pkgerrors.Wrap(err, "join: create")
	}

	return &Join{
		ID:            id,
		TenantID:      tenantID,
		ExpectedSteps: expectedSteps,
		Status:        StatusPending,
		CreatedAt:     now,
		LastUpdatedAt: now,
		Metadata:      metadata,
	}, nil
}

func (s *PostgresStore) AttachMessage(ctx context.Context, joinID ids.JoinID, outboxMessageID ids.OutboxMessageID) error {
	query := fmt.Sprintf(`
INSERT INTO %s (join_id, outbox_message_id, counted_completed, counted_failed)
VALUES ($1, $2, false, false)
ON CONFLICT (join_id, outbox_message_id) DO NOTHING`, s.memberTable())

	if _, err := s.db.ExecContext(ctx, query, joinID.String(), outboxMessageID.String()); err != nil {
		return pkgerrors.Wrap(err, "join: attach")
	}
	return nil
}

func (s *PostgresStore) increment(ctx context.Context, joinID ids.JoinID, outboxMessageID ids.OutboxMessageID, countedColumn, joinCounterColumn string) (*Join, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "join: increment begin tx")
	}
	defer tx.Rollback()

	var alreadyCounted bool
	selectQuery := fmt.Sprintf(`SELECT %s FROM %s WHERE join_id = $1 AND outbox_message_id = $2 FOR UPDATE`, countedColumn, s.memberTable())
	err = tx.QueryRowContext(ctx, selectQuery, joinID.String(), outboxMessageID.String()).Scan(&alreadyCounted)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("join: member not attached: %w", apperr.ErrInvalidArgument)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "join: increment select member")
	}

	if !alreadyCounted {
		markQuery := fmt.Sprintf(`UPDATE %s SET %s = true WHERE join_id = $1 AND outbox_message_id = $2`, s.memberTable(), countedColumn)
		if _, err := tx.ExecContext(ctx, markQuery, joinID.String(), outboxMessageID.String()); err != nil {
			return nil, pkgerrors.Wrap(err, "join: increment mark member")
		}

		bumpQuery := fmt.Sprintf(`
UPDATE %s SET %s = LEAST(%s + 1, expected_steps), last_updated_utc = $2
WHERE join_id = $1`, s.joinTable(), joinCounterColumn, joinCounterColumn)
		if _, err := tx.ExecContext(ctx, bumpQuery, joinID.String(), s.clk.Now()); err != nil {
			return nil, pkgerrors.Wrap(err, "join: increment bump counter")
		}
	}

	snapshot, err := s.getJoinTx(ctx, tx, joinID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, pkgerrors.Wrap(err, "join: increment commit")
	}
	return snapshot, nil
}

func (s *PostgresStore) IncrementCompleted(ctx context.Context, joinID ids.JoinID, outboxMessageID ids.OutboxMessageID) (*Join, error) {
	return s.increment(ctx, joinID, outboxMessageID, "counted_completed", "completed_steps")
}

func (s *PostgresStore) IncrementFailed(ctx context.Context, joinID ids.JoinID, outboxMessageID ids.OutboxMessageID) (*Join, error) {
	return s.increment(ctx, joinID, outboxMessageID, "counted_failed", "failed_steps")
}

// UpdateStatus allows Pending->Completed and Pending->Failed; both are
// terminal and idempotent under re-application (spec §4.4, §9).
func (s *PostgresStore) UpdateStatus(ctx context.Context, joinID ids.JoinID, status Status) (*Join, error) {
	query := fmt.Sprintf(`
UPDATE %s SET status = $2, last_updated_utc = $3
WHERE join_id = $1 AND status = $4`, s.joinTable())

	_, err := s.db.ExecContext(ctx, query, joinID.String(), string(status), s.clk.Now(), string(StatusPending))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "join: update status")
	}
	return s.GetJoin(ctx, joinID)
}

func (s *PostgresStore) GetJoin(ctx context.Context, joinID ids.JoinID) (*Join, error) {
	return s.getJoinTx(ctx, s.db, joinID)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) getJoinTx(ctx context.Context, q rowQuerier, joinID ids.JoinID) (*Join, error) {
	query := fmt.Sprintf(`
SELECT join_id, tenant_id, expected_steps, completed_steps, failed_steps, status, created_utc, last_updated_utc, metadata
FROM %s WHERE join_id = $1`, s.joinTable())

	var (
		j      Join
		idStr  string
		status string
	)
	err := q.QueryRowContext(ctx, query, joinID.String()).Scan(
		&idStr, &j.TenantID, &j.ExpectedSteps, &j.CompletedSteps, &j.FailedSteps, &status, &j.CreatedAt, &j.LastUpdatedAt, &j.Metadata)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("join: %s: %w", joinID.String(), apperr.ErrNotFound)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "join: get")
	}
	j.ID, err = ids.ParseJoinID(idStr)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "join: parse id")
	}
	j.Status = Status(status)
	return &j, nil
}

func (s *PostgresStore) GetJoinMessages(ctx context.Context, joinID ids.JoinID) ([]Member, error) {
	query := fmt.Sprintf(`
SELECT outbox_message_id, counted_completed, counted_failed
FROM %s WHERE join_id = $1`, s.memberTable())

	rows, err := s.db.QueryContext(ctx, query, joinID.String())
	if err != nil {
		return nil, pkgerrors.Wrap(err, "join: get messages")
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		var m Member
		m.JoinID = joinID
		var msgIDStr string
		if err := rows.Scan(&msgIDStr, &m.CountedCompleted, &m.CountedFailed); err != nil {
			return nil, pkgerrors.Wrap(err, "join: scan message")
		}
		m.OutboxMessageID, err = ids.ParseOutboxMessageID(msgIDStr)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "join: parse message id")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
