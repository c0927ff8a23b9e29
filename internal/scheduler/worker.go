package scheduler

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaybase/engine/internal/clock"
	"github.com/relaybase/engine/internal/ids"
	"github.com/relaybase/engine/internal/outbox"
)

// WorkerConfig tunes the scheduler's background loop.
type WorkerConfig struct {
	PollInterval time.Duration
	LeaseSeconds int
	BatchSize    int
}

// Worker materializes due Timers and JobRuns into outbox messages, and
// triggers enabled Jobs whose cron schedule has come due (spec §4.6:
// "claims Timer/JobRun rows... materializes them as outbox messages").
type Worker struct {
	db       *sql.DB
	store    Store
	outbox   outbox.Store
	cfg      WorkerConfig
	log      zerolog.Logger
	clk      clock.Clock
	instance string
}

// NewWorker builds a Worker. instance identifies this process as the
// owner of claimed rows.
func NewWorker(db *sql.DB, store Store, outboxStore outbox.Store, cfg WorkerConfig, log zerolog.Logger) *Worker {
	return NewWorkerWithClock(db, store, outboxStore, cfg, log, clock.System{})
}

// NewWorkerWithClock builds a Worker against an injected clock (spec §3:
// "UTC monotonic reads from a clock abstraction, injectable for tests").
func NewWorkerWithClock(db *sql.DB, store Store, outboxStore outbox.Store, cfg WorkerConfig, log zerolog.Logger, clk clock.Clock) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.LeaseSeconds <= 0 {
		cfg.LeaseSeconds = 30
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Worker{db: db, store: store, outbox: outboxStore, cfg: cfg, log: log, clk: clk, instance: ids.NewOwnerToken().String()}
}

// Run loops until ctx is cancelled, polling for due timers, due job runs,
// and jobs whose cron schedule has elapsed.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info().Msg("scheduler worker starting")
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("scheduler worker stopping")
			return
		case <-ticker.C:
			if err := w.tick(ctx); err != nil {
				w.log.Warn().Stack().Err(err).Msg("scheduler tick failed")
			}
		}
	}
}

func (w *Worker) tick(ctx context.Context) error {
	if err := w.triggerDueJobs(ctx); err != nil {
		return err
	}
	if err := w.drainTimers(ctx); err != nil {
		return err
	}
	return w.drainJobRuns(ctx)
}

func (w *Worker) triggerDueJobs(ctx context.Context) error {
	jobs, err := w.store.ListEnabledJobs(ctx)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if _, err := w.store.TriggerJobAsync(ctx, job.Name); err != nil {
			w.log.Warn().Stack().Err(err).Str("job", job.Name).Msg("trigger job failed")
			continue
		}
		nextDue, err := NextDueUtc(job.CronSchedule, w.clk.Now())
		if err != nil {
			w.log.Warn().Stack().Err(err).Str("job", job.Name).Msg("compute next due time failed")
			continue
		}
		if err := w.store.RecordJobRun(ctx, job.Name, nextDue, "Triggered"); err != nil {
			w.log.Warn().Stack().Err(err).Str("job", job.Name).Msg("record job run failed")
		}
	}
	return nil
}

func (w *Worker) drainTimers(ctx context.Context) error {
	timers, err := w.store.ClaimDueTimers(ctx, w.instance, w.cfg.LeaseSeconds, w.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, t := range timers {
		msg := outbox.NewMessage{Topic: t.Topic, Payload: t.Payload, MessageID: ids.NewOutboxMessageID()}
		if _, err := w.outbox.Enqueue(ctx, w.db, msg); err != nil {
			w.log.Error().Stack().Err(err).Str("timer", t.ID).Msg("enqueue timer message failed")
			continue
		}
		if err := w.store.AckTimer(ctx, w.instance, t.ID); err != nil {
			w.log.Error().Stack().Err(err).Str("timer", t.ID).Msg("ack timer failed")
		}
	}
	return nil
}

func (w *Worker) drainJobRuns(ctx context.Context) error {
	runs, err := w.store.ClaimDueJobRuns(ctx, w.instance, w.cfg.LeaseSeconds, w.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, r := range runs {
		msg := outbox.NewMessage{Topic: r.Topic, Payload: r.Payload, MessageID: ids.NewOutboxMessageID()}
		if _, err := w.outbox.Enqueue(ctx, w.db, msg); err != nil {
			w.log.Error().Stack().Err(err).Str("job_run", r.ID).Msg("enqueue job run message failed")
			continue
		}
		if err := w.store.AckJobRun(ctx, w.instance, r.ID); err != nil {
			w.log.Error().Stack().Err(err).Str("job_run", r.ID).Msg("ack job run failed")
		}
	}
	return nil
}
