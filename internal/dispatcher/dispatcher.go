// Package dispatcher implements the multi-outbox dispatcher (spec §4.3):
// it enumerates outbox stores, claims a batch from one (or, via
// RunOnceAll, every) store, resolves a handler per message by topic, and
// acks/abandons/fails based on the outcome.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaybase/engine/internal/clock"
	"github.com/relaybase/engine/internal/ids"
	"github.com/relaybase/engine/internal/outbox"
)

// Config holds the dispatcher's tunables (spec §6).
type Config struct {
	MaxAttempts   int
	LeaseDuration time.Duration
	Backoff       BackoffFunc
}

// Dispatcher drains outbox stores under a round-robin selection strategy,
// optionally gated by a LeaseRouter for cross-process exclusivity.
type Dispatcher struct {
	provider    StoreProvider
	resolver    outbox.HandlerResolver
	leaseRouter LeaseRouter
	cfg         Config
	log         zerolog.Logger
	clk         clock.Clock

	mu     sync.Mutex
	cursor int
}

// New builds a Dispatcher. leaseRouter may be nil to disable lease gating.
func New(provider StoreProvider, resolver outbox.HandlerResolver, leaseRouter LeaseRouter, cfg Config, log zerolog.Logger) *Dispatcher {
	return NewWithClock(provider, resolver, leaseRouter, cfg, log, clock.System{})
}

// NewWithClock builds a Dispatcher against an injected clock (spec §3:
// "UTC monotonic reads from a clock abstraction, injectable for tests"),
// used by tests that need to assert exact abandon due-times.
func NewWithClock(provider StoreProvider, resolver outbox.HandlerResolver, leaseRouter LeaseRouter, cfg Config, log zerolog.Logger, clk clock.Clock) *Dispatcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 5
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 30 * time.Second
	}
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultBackoff
	}
	return &Dispatcher{provider: provider, resolver: resolver, leaseRouter: leaseRouter, cfg: cfg, log: log, clk: clk}
}

// RunOnce selects one store (RoundRobin, the spec-mandated contract per
// §9's open-question resolution), claims up to limit items, and processes
// each. It returns the number of messages inspected.
func (d *Dispatcher) RunOnce(ctx context.Context, limit int) (int, error) {
	stores, err := d.provider.GetAllStores(ctx)
	if err != nil {
		return 0, fmt.Errorf("dispatcher: enumerate stores: %w", err)
	}
	if len(stores) == 0 {
		return 0, nil
	}

	store := d.nextStore(stores)
	return d.runStore(ctx, store, limit)
}

// RunOnceAll interleaves every store in one tick, summing processed
// counts; offered alongside RunOnce for callers that want a full sweep
// per invocation (spec §9's open-question resolution).
func (d *Dispatcher) RunOnceAll(ctx context.Context, limit int) (int, error) {
	stores, err := d.provider.GetAllStores(ctx)
	if err != nil {
		return 0, fmt.Errorf("dispatcher: enumerate stores: %w", err)
	}

	total := 0
	for _, store := range stores {
		n, err := d.runStore(ctx, store, limit)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (d *Dispatcher) nextStore(stores []NamedStore) NamedStore {
	d.mu.Lock()
	defer d.mu.Unlock()
	store := stores[d.cursor%len(stores)]
	d.cursor++
	return store
}

func (d *Dispatcher) runStore(ctx context.Context, store NamedStore, limit int) (int, error) {
	if d.leaseRouter != nil {
		held, acquired, err := d.leaseRouter.Acquire(ctx, store.Identifier, d.cfg.LeaseDuration)
		if err != nil {
			return 0, fmt.Errorf("dispatcher: acquire lease for %s: %w", store.Identifier, err)
		}
		if !acquired {
			return 0, nil
		}
		defer held.Release(ctx)
	}

	owner := ids.NewOwnerToken()
	msgs, err := store.Store.Claim(ctx, owner, int(d.cfg.LeaseDuration.Seconds()), limit)
	if err != nil {
		return 0, fmt.Errorf("dispatcher: claim from %s: %w", store.Identifier, err)
	}

	for _, msg := range msgs {
		d.process(ctx, store.Store, owner, msg)
	}
	return len(msgs), nil
}

func (d *Dispatcher) process(ctx context.Context, store outbox.Store, owner ids.OwnerToken, msg outbox.Message) {
	handler, ok := d.resolver.Resolve(msg.Topic)
	if !ok {
		reason := fmt.Sprintf("No handler registered for topic '%s'", msg.Topic)
		if _, err := store.Fail(ctx, owner, []ids.OutboxWorkItemID{msg.ID}, &reason); err != nil {
			d.log.Error().Stack().Err(err).Str("topic", msg.Topic).Msg("dispatcher: failing unresolved message errored")
		}
		return
	}

	if err := handler(ctx, msg); err != nil {
		d.handleFailure(ctx, store, owner, msg, err)
		return
	}

	if _, err := store.Ack(ctx, owner, []ids.OutboxWorkItemID{msg.ID}); err != nil {
		d.log.Error().Stack().Err(err).Str("topic", msg.Topic).Msg("dispatcher: ack errored")
	}
}

func (d *Dispatcher) handleFailure(ctx context.Context, store outbox.Store, owner ids.OwnerToken, msg outbox.Message, handlerErr error) {
	attempt := msg.RetryCount + 1
	errMsg := handlerErr.Error()

	if attempt >= d.cfg.MaxAttempts {
		if _, err := store.Fail(ctx, owner, []ids.OutboxWorkItemID{msg.ID}, &errMsg); err != nil {
			d.log.Error().Stack().Err(err).Str("topic", msg.Topic).Msg("dispatcher: fail errored")
		}
		return
	}

	delay := d.cfg.Backoff(attempt)
	due := d.clk.Now().Add(delay)
	if _, err := store.Abandon(ctx, owner, []ids.OutboxWorkItemID{msg.ID}, &errMsg, &due); err != nil {
		d.log.Error().Stack().Err(err).Str("topic", msg.Topic).Msg("dispatcher: abandon errored")
	}
}
