// Command schedulerd runs the scheduler's background worker (spec §4.6),
// materializing due timers and job runs into outbox messages.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/relaybase/engine/internal/clock"
	"github.com/relaybase/engine/internal/config"
	"github.com/relaybase/engine/internal/ids"
	"github.com/relaybase/engine/internal/logger"
	"github.com/relaybase/engine/internal/outbox"
	"github.com/relaybase/engine/internal/pg"
	"github.com/relaybase/engine/internal/scheduler"
)

func main() {
	log := logger.New("schedulerd", ids.NewOwnerToken().String())

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	db, err := pg.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	clk := clock.System{}
	store := scheduler.NewPostgresStore(db, cfg.SchemaName, cfg.JobsTableName, cfg.JobRunsTableName, cfg.TimersTableName, clk)
	outboxStore := outbox.NewPostgresStore(db, cfg.SchemaName, cfg.OutboxTableName, clk)

	w := scheduler.NewWorker(db, store, outboxStore, scheduler.WorkerConfig{
		PollInterval: cfg.DispatcherPollInterval,
		LeaseSeconds: int(cfg.DispatcherLeaseDuration.Seconds()),
		BatchSize:    cfg.DispatcherBatchSize,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w.Run(ctx)
}
