package pg

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// HealthChecker probes a single tenant's *sql.DB with SELECT 1.
type HealthChecker struct {
	tenant  string
	db      *sql.DB
	healthy atomic.Bool
}

// NewHealthChecker wraps db under the owning tenant's identifier for
// reporting in TenantsHealthChecker.
func NewHealthChecker(tenant string, db *sql.DB) *HealthChecker {
	h := &HealthChecker{tenant: tenant, db: db}
	h.healthy.Store(true)
	return h
}

func (h *HealthChecker) Tenant() string { return h.tenant }

func (h *HealthChecker) IsHealthy() bool { return h.healthy.Load() }

// Ping performs a one-shot check outside the Start loop.
func (h *HealthChecker) Ping(ctx context.Context) error {
	return Ping(ctx, h.db)
}

// Start polls the tenant's database on interval until ctx is cancelled.
func (h *HealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	probe := func() {
		h.healthy.Store(h.Ping(ctx) == nil)
	}
	probe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probe()
		}
	}
}

// TenantsHealthChecker aggregates one HealthChecker per configured tenant
// into a single liveness flag for the dispatcher/scheduler daemons (spec
// §1: tenants are "first class" — a daemon serving several tenants is
// only live if every tenant's database is reachable).
type TenantsHealthChecker struct {
	healthy atomic.Bool
	tenants []*HealthChecker
	log     zerolog.Logger
}

// NewTenantsHealthChecker builds an aggregator over one HealthChecker per
// tenant connection.
func NewTenantsHealthChecker(log zerolog.Logger, tenants ...*HealthChecker) *TenantsHealthChecker {
	h := &TenantsHealthChecker{tenants: tenants, log: log}
	return h
}

// IsHealthy returns the cached aggregate health flag.
func (h *TenantsHealthChecker) IsHealthy() bool { return h.healthy.Load() }

// Start evaluates every tenant's cached health on interval and logs
// transitions, after starting each tenant's own polling loop.
func (h *TenantsHealthChecker) Start(ctx context.Context, interval time.Duration) {
	for _, t := range h.tenants {
		go t.Start(ctx, interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := false
	eval := func() {
		all := true
		for _, t := range h.tenants {
			if !t.IsHealthy() {
				all = false
				h.log.Warn().Str("tenant", t.Tenant()).Msg("tenant database unreachable")
			}
		}
		h.healthy.Store(all)
		if all != prev {
			if all {
				h.log.Info().Msg("service health: UP")
			} else {
				h.log.Error().Stack().Msg("service health: DOWN")
			}
			prev = all
		}
	}

	eval()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eval()
		}
	}
}
