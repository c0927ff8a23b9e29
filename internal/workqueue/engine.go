// Package workqueue implements the claim/ack/abandon/fail/reap state
// machine shared by the outbox and inbox (spec §4.1). It is deliberately
// column-name-agnostic: a Config maps the state machine onto whatever
// table a caller supplies, so outbox, inbox, timers, and job-runs can all
// share one engine instead of four near-identical copies.
package workqueue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/relaybase/engine/internal/apperr"
	"github.com/relaybase/engine/internal/clock"
)

// Executor is satisfied by both *sql.DB and *sql.Tx, so the engine can run
// inside a caller-managed transaction (e.g. outbox enqueue) or standalone.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Config maps the work-queue state machine onto a concrete table.
// RetryCountColumn may be left blank for rowsets that don't track retries
// (e.g. scheduler timers).
type Config struct {
	Table             string
	IDColumn          string
	StatusColumn      string
	OwnerColumn       string
	LockedUntilColumn string
	DueTimeColumn     string
	OrderColumn       string
	RetryCountColumn  string
	LastErrorColumn   string

	ReadyStatus      string
	InProgressStatus string
	DoneStatus       string
	FailStatus       string
}

// Engine implements claim/ack/abandon/fail/reap over the table named in
// Config, per spec §4.1.
type Engine struct {
	exec Executor
	cfg  Config
	clk  clock.Clock
}

// New returns an Engine bound to exec (a *sql.DB or an in-flight *sql.Tx).
func New(exec Executor, cfg Config, clk clock.Clock) *Engine {
	return &Engine{exec: exec, cfg: cfg, clk: clk}
}

// WithExecutor returns a copy of the engine bound to a different executor,
// used to run the same state machine inside a caller's transaction.
func (e *Engine) WithExecutor(exec Executor) *Engine {
	return &Engine{exec: exec, cfg: e.cfg, clk: e.clk}
}

// Claim selects up to batchSize eligible rows (I5), marks them InProgress
// under owner, and returns their ids. Eligible rows already locked by a
// concurrent claimer are skipped rather than awaited (I4).
func (e *Engine) Claim(ctx context.Context, owner string, leaseSeconds int, batchSize int) ([]string, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("workqueue: claim batch_size=%d: %w", batchSize, apperr.ErrInvalidArgument)
	}

	now := e.clk.Now()
	lockedUntil := now.Add(time.Duration(leaseSeconds) * time.Second)

	query := fmt.Sprintf(`
WITH eligible AS (
	SELECT %[2]s AS id
	FROM %[1]s
	WHERE %[3]s = $1
	  AND (%[6]s IS NULL OR %[6]s <= $4)
	  AND (%[4]s IS NULL OR %[4]s <= $4)
	ORDER BY %[7]s
	FOR UPDATE SKIP LOCKED
	LIMIT $5
)
UPDATE %[1]s AS t
SET %[3]s = $2, %[5]s = $3, %[4]s = $6
FROM eligible
WHERE t.%[2]s = eligible.id
RETURNING t.%[2]s`,
		e.cfg.Table, e.cfg.IDColumn, e.cfg.StatusColumn, e.cfg.LockedUntilColumn,
		e.cfg.OwnerColumn, e.cfg.DueTimeColumn, e.cfg.OrderColumn)

	rows, err := e.exec.QueryContext(ctx, query,
		e.cfg.ReadyStatus, e.cfg.InProgressStatus, owner, now, batchSize, lockedUntil)
	if err != nil {
		return nil, fmt.Errorf("workqueue: claim: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("workqueue: claim scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Ack transitions ids owned by owner and still InProgress to Done (I2);
// non-matching rows are silently skipped. extraSet, when non-empty, is
// appended to the SET clause (e.g. "processed_at = now(), is_processed =
// true") so outbox/inbox can fold their terminal bookkeeping into the same
// statement.
func (e *Engine) Ack(ctx context.Context, owner string, ids []string, extraSet string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	set := fmt.Sprintf("%s = $1, %s = NULL, %s = NULL", e.cfg.StatusColumn, e.cfg.OwnerColumn, e.cfg.LockedUntilColumn)
	if extraSet != "" {
		set = set + ", " + extraSet
	}
	query := fmt.Sprintf(`
UPDATE %s SET %s
WHERE %s = ANY($2) AND %s = $3 AND %s = $4`,
		e.cfg.Table, set, e.cfg.IDColumn, e.cfg.OwnerColumn, e.cfg.StatusColumn)

	res, err := e.exec.ExecContext(ctx, query, e.cfg.DoneStatus, idsArray(ids), owner, e.cfg.InProgressStatus)
	if err != nil {
		return 0, fmt.Errorf("workqueue: ack: %w", err)
	}
	return res.RowsAffected()
}

// Abandon returns ids owned by owner back to Ready, bumping retry_count
// (when configured), merging lastError, and setting due_time.
func (e *Engine) Abandon(ctx context.Context, owner string, ids []string, lastError *string, dueTime *time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := e.clk.Now()
	effectiveDue := now
	if dueTime != nil {
		effectiveDue = *dueTime
	}

	retryClause := ""
	if e.cfg.RetryCountColumn != "" {
		retryClause = fmt.Sprintf(", %s = %s + 1", e.cfg.RetryCountColumn, e.cfg.RetryCountColumn)
	}
	errClause := ""
	args := []any{e.cfg.ReadyStatus, idsArray(ids), owner, e.cfg.InProgressStatus, effectiveDue}
	if lastError != nil {
		errClause = fmt.Sprintf(", %s = $6", e.cfg.LastErrorColumn)
		args = append(args, *lastError)
	}

	query := fmt.Sprintf(`
UPDATE %s SET %s = $1, %s = NULL, %s = NULL, %s = $5%s%s
WHERE %s = ANY($2) AND %s = $3 AND %s = $4`,
		e.cfg.Table, e.cfg.StatusColumn, e.cfg.OwnerColumn, e.cfg.LockedUntilColumn, e.cfg.DueTimeColumn,
		retryClause, errClause,
		e.cfg.IDColumn, e.cfg.OwnerColumn, e.cfg.StatusColumn)

	res, err := e.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("workqueue: abandon: %w", err)
	}
	return res.RowsAffected()
}

// Fail transitions ids owned by owner to the terminal Fail status.
// extraSet behaves as in Ack.
func (e *Engine) Fail(ctx context.Context, owner string, ids []string, lastError *string, extraSet string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	set := fmt.Sprintf("%s = $1, %s = NULL, %s = NULL", e.cfg.StatusColumn, e.cfg.OwnerColumn, e.cfg.LockedUntilColumn)
	args := []any{e.cfg.FailStatus, idsArray(ids), owner, e.cfg.InProgressStatus}
	if lastError != nil {
		set += fmt.Sprintf(", %s = $5", e.cfg.LastErrorColumn)
		args = append(args, *lastError)
	}
	if extraSet != "" {
		set = set + ", " + extraSet
	}
	query := fmt.Sprintf(`
UPDATE %s SET %s
WHERE %s = ANY($2) AND %s = $3 AND %s = $4`,
		e.cfg.Table, set, e.cfg.IDColumn, e.cfg.OwnerColumn, e.cfg.StatusColumn)

	res, err := e.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("workqueue: fail: %w", err)
	}
	return res.RowsAffected()
}

// ReapExpired returns InProgress rows whose lease has elapsed back to
// Ready, clearing owner and lock, and reports how many rows changed.
func (e *Engine) ReapExpired(ctx context.Context) (int64, error) {
	now := e.clk.Now()
	query := fmt.Sprintf(`
UPDATE %s SET %s = $1, %s = NULL, %s = NULL
WHERE %s = $2 AND %s IS NOT NULL AND %s <= $3`,
		e.cfg.Table, e.cfg.StatusColumn, e.cfg.OwnerColumn, e.cfg.LockedUntilColumn,
		e.cfg.StatusColumn, e.cfg.LockedUntilColumn, e.cfg.LockedUntilColumn)

	res, err := e.exec.ExecContext(ctx, query, e.cfg.ReadyStatus, e.cfg.InProgressStatus, now)
	if err != nil {
		return 0, fmt.Errorf("workqueue: reap: %w", err)
	}
	return res.RowsAffected()
}

// idsArray adapts a Go string slice for use as a Postgres array parameter.
// The pgx stdlib driver encodes []string directly, so this is currently
// the identity function; it exists as a single seam in case a future
// backend needs a different batch-id protocol (spec §9: "table-valued
// batch parameters ... either the database's native array type, or a
// per-backend fallback").
func idsArray(ids []string) any { return ids }
