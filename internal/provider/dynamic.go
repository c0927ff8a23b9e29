package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relaybase/engine/internal/clock"
)

// Dynamic wraps a Discovery and reconciles its per-tenant store set on a
// refresh cadence (spec §4.7: "Dynamic provider"). One sync.Mutex guards
// both the snapshot and the last-refresh timestamp, so at most one refresh
// runs at a time. Readers (GetAllStores, StoreByKey) take the same mutex:
// while a refresh is in progress they wait for it to finish and then see
// the new snapshot; they do not read the previous snapshot in the
// meantime. This does not use golang.org/x/sync/singleflight.
type Dynamic[T comparable] struct {
	discovery       Discovery
	factory         Factory[T]
	refreshInterval time.Duration
	clk             clock.Clock

	mu          sync.Mutex
	snapshot    []NamedInstance[T]
	lastRefresh time.Time
}

// NewDynamic builds a Dynamic provider. The first GetAllStores call always
// triggers a refresh, since lastRefresh starts at the zero time.
func NewDynamic[T comparable](discovery Discovery, factory Factory[T], refreshInterval time.Duration, clk clock.Clock) *Dynamic[T] {
	return &Dynamic[T]{discovery: discovery, factory: factory, refreshInterval: refreshInterval, clk: clk}
}

// GetAllStores returns the current snapshot, refreshing first if the
// refresh interval has elapsed.
func (p *Dynamic[T]) GetAllStores(ctx context.Context) ([]NamedInstance[T], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.clk.Now().Sub(p.lastRefresh) >= p.refreshInterval {
		if err := p.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}
	return p.snapshot, nil
}

// RefreshAsync forces an immediate reconciliation cycle.
func (p *Dynamic[T]) RefreshAsync(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshLocked(ctx)
}

func (p *Dynamic[T]) refreshLocked(ctx context.Context) error {
	configs, err := p.discovery.Discover(ctx)
	if err != nil {
		return fmt.Errorf("provider: discover: %w", err)
	}

	existing := make(map[string]T, len(p.snapshot))
	for _, inst := range p.snapshot {
		existing[inst.Identifier] = inst.Store
	}

	next := make([]NamedInstance[T], 0, len(configs))
	for _, cfg := range configs {
		if store, ok := existing[cfg.Identifier]; ok {
			next = append(next, NamedInstance[T]{Identifier: cfg.Identifier, Store: store})
			continue
		}
		store, err := p.factory(cfg)
		if err != nil {
			return fmt.Errorf("provider: build store for tenant %q: %w", cfg.Identifier, err)
		}
		next = append(next, NamedInstance[T]{Identifier: cfg.Identifier, Store: store})
	}

	p.snapshot = next
	p.lastRefresh = p.clk.Now()
	return nil
}

// StoreByKey returns the matching store from the current snapshot without
// forcing a refresh.
func (p *Dynamic[T]) StoreByKey(key string) (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, inst := range p.snapshot {
		if inst.Identifier == key {
			return inst.Store, true
		}
	}
	var zero T
	return zero, false
}
