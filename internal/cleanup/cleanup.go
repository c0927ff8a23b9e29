// Package cleanup runs periodic retention sweeps against outbox/inbox
// stores, tolerating a missing cleanup procedure so a fresh or
// deployment-disabled schema never stops the loop (spec §4.8).
package cleanup

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaybase/engine/internal/apperr"
)

// Cleaner is satisfied by outbox.Store and inbox.Store (both expose
// Cleanup(ctx, retention) (int64, error)).
type Cleaner interface {
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

// Service runs one Cleaner's retention sweep on a ticker.
type Service struct {
	name      string
	cleaner   Cleaner
	retention time.Duration
	interval  time.Duration
	log       zerolog.Logger
}

// New builds a cleanup Service. name identifies the store in logs (e.g.
// "outbox", "inbox").
func New(name string, cleaner Cleaner, retention, interval time.Duration, log zerolog.Logger) *Service {
	return &Service{name: name, cleaner: cleaner, retention: retention, interval: interval, log: log}
}

// Start runs the sweep loop until ctx is cancelled (spec §6:
// "StartAsync/StopAsync semantics honoring cancellation").
func (s *Service) Start(ctx context.Context) {
	s.log.Info().Str("store", s.name).Dur("interval", s.interval).Msg("cleanup service starting")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Str("store", s.name).Msg("cleanup service stopping")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	n, err := s.cleaner.Cleanup(ctx, s.retention)
	if err != nil {
		if errors.Is(err, apperr.ErrMissingProcedure) {
			s.log.Warn().Str("store", s.name).Msg("cleanup procedure missing, skipping this cycle")
			return
		}
		s.log.Error().Stack().Err(err).Str("store", s.name).Msg("cleanup sweep failed")
		return
	}
	if n > 0 {
		s.log.Info().Str("store", s.name).Int64("deleted", n).Msg("cleanup sweep completed")
	}
}
