package provider

import (
	"context"
	"fmt"

	"github.com/relaybase/engine/internal/config"
)

// Configured eagerly instantiates one store per tenant config and serves
// a fixed snapshot (spec §4.7: "Configured provider").
type Configured[T comparable] struct {
	byKey []NamedInstance[T]
}

// NewConfigured builds a Configured provider, invoking factory once per
// tenant.
func NewConfigured[T comparable](tenants []config.TenantConfig, factory Factory[T]) (*Configured[T], error) {
	instances := make([]NamedInstance[T], 0, len(tenants))
	for _, t := range tenants {
		store, err := factory(t)
		if err != nil {
			return nil, fmt.Errorf("provider: build store for tenant %q: %w", t.Identifier, err)
		}
		instances = append(instances, NamedInstance[T]{Identifier: t.Identifier, Store: store})
	}
	return &Configured[T]{byKey: instances}, nil
}

// GetAllStores returns the fixed snapshot built at construction.
func (p *Configured[T]) GetAllStores(ctx context.Context) ([]NamedInstance[T], error) {
	return p.byKey, nil
}

// StoreByKey returns the matching store, or the zero value and false.
func (p *Configured[T]) StoreByKey(key string) (T, bool) {
	for _, inst := range p.byKey {
		if inst.Identifier == key {
			return inst.Store, true
		}
	}
	var zero T
	return zero, false
}

// StoreIdentifier returns the tenant identifier that produced store, or
// "Unknown" if this provider did not create it (spec §4.7).
func (p *Configured[T]) StoreIdentifier(store T) string {
	for _, inst := range p.byKey {
		if inst.Store == store {
			return inst.Identifier
		}
	}
	return "Unknown"
}
