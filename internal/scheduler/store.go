package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relaybase/engine/internal/clock"
	"github.com/relaybase/engine/internal/workqueue"
)

// Store is the scheduler's contract (spec §4.6).
type Store interface {
	ScheduleTimer(ctx context.Context, topic, payload string, dueTime time.Time) (string, error)
	CancelTimer(ctx context.Context, id string) (bool, error)
	CreateOrUpdateJob(ctx context.Context, name, topic, cronSchedule, payload string) error
	DeleteJob(ctx context.Context, name string) error
	TriggerJobAsync(ctx context.Context, name string) (string, error)

	ClaimDueTimers(ctx context.Context, owner string, leaseSeconds, batchSize int) ([]Timer, error)
	AckTimer(ctx context.Context, owner, id string) error

	ListEnabledJobs(ctx context.Context) ([]Job, error)
	RecordJobRun(ctx context.Context, jobName string, nextDue time.Time, runStatus string) error
	ClaimDueJobRuns(ctx context.Context, owner string, leaseSeconds, batchSize int) ([]JobRun, error)
	AckJobRun(ctx context.Context, owner, id string) error
}

// PostgresStore implements Store over Timers/Jobs/JobRuns tables, sharing
// workqueue.Engine for the due-time claim/ack machinery (spec §4.6:
// "via the same work-queue engine").
type PostgresStore struct {
	db     *sql.DB
	schema string
	tables struct {
		jobs    string
		jobRuns string
		timers  string
	}
	clk          clock.Clock
	timerEngine  workqueue.Config
	jobRunEngine workqueue.Config
}

// NewPostgresStore builds a PostgresStore for the given schema-qualified
// table names (spec §6: jobs_table, job_runs_table, timers_table).
func NewPostgresStore(db *sql.DB, schema, jobsTable, jobRunsTable, timersTable string, clk clock.Clock) *PostgresStore {
	s := &PostgresStore{db: db, schema: schema, clk: clk}
	s.tables.jobs = fmt.Sprintf("%s.%s", schema, jobsTable)
	s.tables.jobRuns = fmt.Sprintf("%s.%s", schema, jobRunsTable)
	s.tables.timers = fmt.Sprintf("%s.%s", schema, timersTable)

	s.timerEngine = workqueue.Config{
		Table:             s.tables.timers,
		IDColumn:          "id",
		StatusColumn:      "status",
		OwnerColumn:       "owner_token",
		LockedUntilColumn: "locked_until",
		DueTimeColumn:     "due_time_utc",
		OrderColumn:       "due_time_utc",
		ReadyStatus:       string(TimerPending),
		InProgressStatus:  string(TimerRunning),
		DoneStatus:        string(TimerDone),
		FailStatus:        string(TimerCancelled),
	}
	s.jobRunEngine = workqueue.Config{
		Table:             s.tables.jobRuns,
		IDColumn:          "id",
		StatusColumn:      "status",
		OwnerColumn:       "owner_token",
		LockedUntilColumn: "locked_until",
		DueTimeColumn:     "due_time_utc",
		OrderColumn:       "created_at",
		ReadyStatus:       string(JobRunReady),
		InProgressStatus:  string(JobRunInProgress),
		DoneStatus:        string(JobRunDone),
		FailStatus:        string(JobRunFailed),
	}
	return s
}

func (s *PostgresStore) ScheduleTimer(ctx context.Context, topic, payload string, dueTime time.Time) (string, error) {
	id := uuid.NewString()
	query := fmt.Sprintf(`
INSERT INTO %s (id, topic, payload, due_time_utc, status)
VALUES ($1, $2, $3, $4, $5)`, s.tables.timers)

	if _, err := s.db.ExecContext(ctx, query, id, topic, payload, dueTime, string(TimerPending)); err != nil {
		return "", fmt.Errorf("scheduler: schedule timer: %w", err)
	}
	return id, nil
}

// CancelTimer marks Cancelled only if currently Pending (spec §4.6).
func (s *PostgresStore) CancelTimer(ctx context.Context, id string) (bool, error) {
	query := fmt.Sprintf(`
UPDATE %s SET status = $1 WHERE id = $2 AND status = $3`, s.tables.timers)

	res, err := s.db.ExecContext(ctx, query, string(TimerCancelled), id, string(TimerPending))
	if err != nil {
		return false, fmt.Errorf("scheduler: cancel timer: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *PostgresStore) CreateOrUpdateJob(ctx context.Context, name, topic, cronSchedule, payload string) error {
	nextDue, err := NextDueUtc(cronSchedule, s.clk.Now())
	if err != nil {
		return fmt.Errorf("scheduler: create or update job: %w", err)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (job_name, topic, cron_schedule, payload, next_due_time, is_enabled)
VALUES ($1, $2, $3, $4, $5, true)
ON CONFLICT (job_name) DO UPDATE SET
  topic = EXCLUDED.topic,
  cron_schedule = EXCLUDED.cron_schedule,
  payload = EXCLUDED.payload,
  next_due_time = EXCLUDED.next_due_time,
  is_enabled = true`, s.tables.jobs)

	_, err = s.db.ExecContext(ctx, query, name, topic, cronSchedule, payload, nextDue)
	if err != nil {
		return fmt.Errorf("scheduler: create or update job: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteJob(ctx context.Context, name string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE job_name = $1`, s.tables.jobs)
	if _, err := s.db.ExecContext(ctx, query, name); err != nil {
		return fmt.Errorf("scheduler: delete job: %w", err)
	}
	return nil
}

func (s *PostgresStore) TriggerJobAsync(ctx context.Context, name string) (string, error) {
	var topic, payload string
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT topic, payload FROM %s WHERE job_name = $1`, s.tables.jobs), name)
	if err := row.Scan(&topic, &payload); err != nil {
		return "", fmt.Errorf("scheduler: trigger job: %w", err)
	}

	id := uuid.NewString()
	query := fmt.Sprintf(`
INSERT INTO %s (id, job_name, topic, payload, created_at, due_time_utc, status)
VALUES ($1, $2, $3, $4, $5, $5, $6)`, s.tables.jobRuns)

	now := s.clk.Now()
	if _, err := s.db.ExecContext(ctx, query, id, name, topic, payload, now, string(JobRunReady)); err != nil {
		return "", fmt.Errorf("scheduler: trigger job: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) ClaimDueTimers(ctx context.Context, owner string, leaseSeconds, batchSize int) ([]Timer, error) {
	eng := workqueue.New(s.db, s.timerEngine, s.clk)
	ids, err := eng.Claim(ctx, owner, leaseSeconds, batchSize)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT id, topic, payload, due_time_utc, status FROM %s WHERE id = ANY($1)`, s.tables.timers)
	rows, err := s.db.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("scheduler: claim timers fetch: %w", err)
	}
	defer rows.Close()

	var out []Timer
	for rows.Next() {
		var t Timer
		var status string
		if err := rows.Scan(&t.ID, &t.Topic, &t.Payload, &t.DueTime, &status); err != nil {
			return nil, fmt.Errorf("scheduler: claim timers scan: %w", err)
		}
		t.Status = TimerStatus(status)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AckTimer(ctx context.Context, owner, id string) error {
	eng := workqueue.New(s.db, s.timerEngine, s.clk)
	_, err := eng.Ack(ctx, owner, []string{id}, "")
	return err
}

func (s *PostgresStore) ListEnabledJobs(ctx context.Context) ([]Job, error) {
	query := fmt.Sprintf(`
SELECT job_name, topic, payload, cron_schedule, next_due_time, last_run_time, last_run_status, is_enabled
FROM %s WHERE is_enabled = true AND next_due_time <= $1`, s.tables.jobs)

	rows, err := s.db.QueryContext(ctx, query, s.clk.Now())
	if err != nil {
		return nil, fmt.Errorf("scheduler: list enabled jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.Name, &j.Topic, &j.Payload, &j.CronSchedule, &j.NextDueTime, &j.LastRunTime, &j.LastRunStatus, &j.IsEnabled); err != nil {
			return nil, fmt.Errorf("scheduler: list enabled jobs scan: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// RecordJobRun advances a job's next due time and run bookkeeping after
// the scheduler's tick materializes it into a JobRun.
func (s *PostgresStore) RecordJobRun(ctx context.Context, jobName string, nextDue time.Time, runStatus string) error {
	query := fmt.Sprintf(`
UPDATE %s SET next_due_time = $1, last_run_time = $2, last_run_status = $3 WHERE job_name = $4`, s.tables.jobs)

	_, err := s.db.ExecContext(ctx, query, nextDue, s.clk.Now(), runStatus, jobName)
	if err != nil {
		return fmt.Errorf("scheduler: record job run: %w", err)
	}
	return nil
}

func (s *PostgresStore) ClaimDueJobRuns(ctx context.Context, owner string, leaseSeconds, batchSize int) ([]JobRun, error) {
	eng := workqueue.New(s.db, s.jobRunEngine, s.clk)
	ids, err := eng.Claim(ctx, owner, leaseSeconds, batchSize)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT id, job_name, topic, payload, created_at, status FROM %s WHERE id = ANY($1)`, s.tables.jobRuns)
	rows, err := s.db.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("scheduler: claim job runs fetch: %w", err)
	}
	defer rows.Close()

	var out []JobRun
	for rows.Next() {
		var r JobRun
		var status string
		if err := rows.Scan(&r.ID, &r.JobName, &r.Topic, &r.Payload, &r.CreatedAt, &status); err != nil {
			return nil, fmt.Errorf("scheduler: claim job runs scan: %w", err)
		}
		r.Status = JobRunStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AckJobRun(ctx context.Context, owner, id string) error {
	eng := workqueue.New(s.db, s.jobRunEngine, s.clk)
	_, err := eng.Ack(ctx, owner, []string{id}, "")
	return err
}
