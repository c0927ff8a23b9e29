// Package provider implements the multi-tenant provider/router layer
// (spec §4.7): a configured (static) provider built from a fixed tenant
// list, a dynamic provider that reconciles against a periodically polled
// Discovery, and a thin Router on top of either.
package provider

import (
	"context"

	"github.com/relaybase/engine/internal/config"
)

// NamedInstance pairs a store instance with the tenant identifier it was
// built for.
type NamedInstance[T any] struct {
	Identifier string
	Store      T
}

// Factory builds one store instance from a tenant's configuration.
type Factory[T any] func(cfg config.TenantConfig) (T, error)

// Provider is the common surface both the configured and dynamic
// providers implement, and what Router wraps (spec §4.7).
type Provider[T any] interface {
	GetAllStores(ctx context.Context) ([]NamedInstance[T], error)
	StoreByKey(key string) (T, bool)
}

// Discovery returns the current list of tenant configurations; polled by
// the dynamic provider (spec §4.7, GLOSSARY "Discovery").
type Discovery interface {
	Discover(ctx context.Context) ([]config.TenantConfig, error)
}
