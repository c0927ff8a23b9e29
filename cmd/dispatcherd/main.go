// Command dispatcherd runs the multi-outbox dispatcher loop (spec §4.3)
// against every configured tenant's Postgres outbox, gated by per-tenant
// fencing leases (spec §4.2), alongside each tenant's outbox/inbox
// cleanup sweeps (spec §4.8) and expired-lock reaping (spec §4.1).
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaybase/engine/internal/cleanup"
	"github.com/relaybase/engine/internal/clock"
	"github.com/relaybase/engine/internal/config"
	"github.com/relaybase/engine/internal/dispatcher"
	"github.com/relaybase/engine/internal/ids"
	"github.com/relaybase/engine/internal/inbox"
	"github.com/relaybase/engine/internal/join"
	"github.com/relaybase/engine/internal/lease"
	"github.com/relaybase/engine/internal/logger"
	"github.com/relaybase/engine/internal/outbox"
	"github.com/relaybase/engine/internal/pg"
	"github.com/relaybase/engine/internal/provider"
	"github.com/relaybase/engine/internal/schema"
)

func main() {
	instance := ids.NewOwnerToken().String()
	log := logger.New("dispatcherd", instance)

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	tenants := resolveTenants(cfg)
	clk := clock.System{}

	resources := map[string]*tenantResources{}
	storeProvider, err := provider.NewConfigured(tenants, tenantStoreFactory(cfg, clk, log, resources))
	if err != nil {
		log.Fatal().Err(err).Msg("build tenant stores")
	}

	// The join.wait handler coordinates against one schema's join/outbox
	// tables (spec §4.4). With several tenants configured the dispatcher
	// still enumerates every tenant's outbox for claim/ack, but join
	// coordination is scoped to the first tenant only; see DESIGN.md for
	// why this wasn't generalized in this pass.
	primary := resources[tenants[0].Identifier]
	joinStore := join.NewPostgresStore(primary.db, tenants[0].SchemaName, clk)
	resolver := outbox.NewMapResolver(map[string]outbox.Handler{
		"join.wait": join.NewWaitHandler(joinStore, primary.outboxStore, primary.db),
	})
	if len(tenants) > 1 {
		log.Warn().Str("tenant", tenants[0].Identifier).Msg("join.wait handler scoped to primary tenant only")
	}

	leaseRouter := newMultiTenantLeaseRouter(resources)
	d := dispatcher.New(storeProviderAdapter{storeProvider}, resolver, leaseRouter, dispatcher.Config{
		MaxAttempts:   cfg.DispatcherMaxAttempts,
		LeaseDuration: cfg.DispatcherLeaseDuration,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCleanupAndHealth(ctx, cfg, log, resources)

	log.Info().
		Int("tenants", len(tenants)).
		Dur("poll_interval", cfg.DispatcherPollInterval).
		Msg("dispatcherd starting")
	ticker := time.NewTicker(cfg.DispatcherPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("dispatcherd stopping")
			return
		case <-ticker.C:
			n, err := d.RunOnceAll(ctx, cfg.DispatcherBatchSize)
			if err != nil {
				log.Error().Stack().Err(err).Msg("dispatch tick failed")
				continue
			}
			if n > 0 {
				log.Info().Int("processed", n).Msg("dispatch tick complete")
			}
		}
	}
}

// resolveTenants synthesizes a single-tenant list from the legacy
// PostgresDSN/SchemaName fields when Tenants wasn't configured, so
// single-tenant deployments don't need to set RELAYBASE_TENANTS_JSON.
func resolveTenants(cfg *config.Config) []config.TenantConfig {
	if len(cfg.Tenants) > 0 {
		return cfg.Tenants
	}
	return []config.TenantConfig{{
		Identifier:       "default",
		ConnectionString: cfg.PostgresDSN,
		SchemaName:       cfg.SchemaName,
	}}
}

// tenantResources bundles the per-tenant connection and stores built once
// by the provider factory below, then reused for lease routing, cleanup,
// and health checks so each tenant opens exactly one *sql.DB.
type tenantResources struct {
	db           *sql.DB
	outboxStore  *outbox.PostgresStore
	inboxStore   *inbox.PostgresStore
	leaseFactory *lease.Factory
	health       *pg.HealthChecker
}

// tenantStoreFactory returns a provider.Factory that opens one connection
// per tenant, optionally deploys schema, and stashes every resource built
// along the way into resources for reuse outside the provider.
func tenantStoreFactory(cfg *config.Config, clk clock.Clock, log zerolog.Logger, resources map[string]*tenantResources) provider.Factory[outbox.Store] {
	return func(t config.TenantConfig) (outbox.Store, error) {
		db, err := pg.Open(t.ConnectionString)
		if err != nil {
			return nil, fmt.Errorf("dispatcherd: open tenant %q: %w", t.Identifier, err)
		}

		if cfg.OutboxEnableSchemaDeploy {
			if err := schema.New(log).Deploy(context.Background(), t.ConnectionString, t.SchemaName); err != nil {
				return nil, fmt.Errorf("dispatcherd: deploy schema for tenant %q: %w", t.Identifier, err)
			}
		}

		outboxStore := outbox.NewPostgresStore(db, t.SchemaName, cfg.OutboxTableName, clk)
		inboxStore := inbox.NewPostgresStore(db, t.SchemaName, cfg.InboxTableName, clk)
		leaseFactory := lease.NewFactory(db, t.SchemaName, clk, log, cfg.LeaseRenewPercent, cfg.LeaseGateTimeoutMS, cfg.LeaseUseGate)

		resources[t.Identifier] = &tenantResources{
			db:           db,
			outboxStore:  outboxStore,
			inboxStore:   inboxStore,
			leaseFactory: leaseFactory,
			health:       pg.NewHealthChecker(t.Identifier, db),
		}
		return outboxStore, nil
	}
}

// storeProviderAdapter bridges provider.Configured[outbox.Store]'s
// []provider.NamedInstance[outbox.Store] into dispatcher.StoreProvider's
// []dispatcher.NamedStore — the two packages' generic vs. concrete shapes
// otherwise don't line up.
type storeProviderAdapter struct {
	p *provider.Configured[outbox.Store]
}

func (a storeProviderAdapter) GetAllStores(ctx context.Context) ([]dispatcher.NamedStore, error) {
	instances, err := a.p.GetAllStores(ctx)
	if err != nil {
		return nil, err
	}
	stores := make([]dispatcher.NamedStore, len(instances))
	for i, inst := range instances {
		stores[i] = dispatcher.NamedStore{Identifier: inst.Identifier, Store: inst.Store}
	}
	return stores, nil
}

// multiTenantLeaseRouter adapts each tenant's lease.Factory into
// dispatcher.LeaseRouter, so each store the dispatcher drains is gated by
// that tenant's fencing lease (spec §4.2).
type multiTenantLeaseRouter struct {
	resources map[string]*tenantResources
}

func newMultiTenantLeaseRouter(resources map[string]*tenantResources) *multiTenantLeaseRouter {
	return &multiTenantLeaseRouter{resources: resources}
}

func (r *multiTenantLeaseRouter) Acquire(ctx context.Context, resource string, duration time.Duration) (dispatcher.Lease, bool, error) {
	res, ok := r.resources[resource]
	if !ok {
		return nil, false, fmt.Errorf("dispatcherd: no tenant resources for %q", resource)
	}
	result, err := res.leaseFactory.Acquire(ctx, "dispatcher:"+resource, duration, nil)
	if err != nil {
		return nil, false, err
	}
	if !result.Acquired {
		return nil, false, nil
	}
	return leaseHandle{factory: res.leaseFactory, lease: result.Lease}, true, nil
}

// leaseHandle adapts *lease.Lease (whose Release lives on *lease.Factory,
// not on the lease itself) into dispatcher.Lease.
type leaseHandle struct {
	factory *lease.Factory
	lease   *lease.Lease
}

func (h leaseHandle) Release(ctx context.Context) error {
	return h.factory.Release(ctx, h.lease)
}

// startCleanupAndHealth launches, per tenant, the outbox/inbox cleanup
// services (spec §4.8, gated by the Outbox/InboxEnableAutoCleanup
// flags), a reap-expired ticker (spec §4.1), and the health poller, all
// stopped by ctx cancellation.
func startCleanupAndHealth(ctx context.Context, cfg *config.Config, log zerolog.Logger, resources map[string]*tenantResources) {
	healthCheckers := make([]*pg.HealthChecker, 0, len(resources))
	for identifier, res := range resources {
		if cfg.OutboxEnableAutoCleanup {
			svc := cleanup.New(identifier+":outbox", res.outboxStore, cfg.OutboxRetentionPeriod, cfg.OutboxCleanupInterval, log)
			go svc.Start(ctx)
		}
		if cfg.InboxEnableAutoCleanup {
			svc := cleanup.New(identifier+":inbox", res.inboxStore, cfg.InboxRetentionPeriod, cfg.InboxCleanupInterval, log)
			go svc.Start(ctx)
		}
		go reapExpiredLoop(ctx, identifier, res, cfg.DispatcherPollInterval*5, log)
		healthCheckers = append(healthCheckers, res.health)
	}

	health := pg.NewTenantsHealthChecker(log, healthCheckers...)
	go health.Start(ctx, 30*time.Second)
}

// reapExpiredLoop periodically reclaims InProgress rows whose lease
// elapsed without an ack/fail (spec §4.1's reap contract), for both the
// outbox and inbox stores of one tenant.
func reapExpiredLoop(ctx context.Context, identifier string, res *tenantResources, interval time.Duration, log zerolog.Logger) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := res.outboxStore.ReapExpired(ctx); err != nil {
				log.Error().Stack().Err(err).Str("tenant", identifier).Msg("outbox reap failed")
			} else if n > 0 {
				log.Info().Str("tenant", identifier).Int64("reaped", n).Msg("outbox rows reaped")
			}
			if n, err := res.inboxStore.ReapExpired(ctx); err != nil {
				log.Error().Stack().Err(err).Str("tenant", identifier).Msg("inbox reap failed")
			} else if n > 0 {
				log.Info().Str("tenant", identifier).Int64("reaped", n).Msg("inbox rows reaped")
			}
		}
	}
}
