package dispatcher

import (
	"context"
	"time"

	"github.com/relaybase/engine/internal/outbox"
)

// NamedStore pairs an outbox.Store with the identifier used to address
// its fencing lease (spec §4.3's "request a lease for the store's
// identifier").
type NamedStore struct {
	Identifier string
	Store      outbox.Store
}

// StoreProvider enumerates every outbox store the dispatcher may drain
// (spec §4.3's IOutboxStoreProvider.GetAllStoresAsync).
type StoreProvider interface {
	GetAllStores(ctx context.Context) ([]NamedStore, error)
}

// LeaseRouter requests a fencing lease for a store identifier before the
// dispatcher drains it (spec §4.3's optional lease-gated exclusivity).
type LeaseRouter interface {
	Acquire(ctx context.Context, resource string, duration time.Duration) (Lease, bool, error)
}

// Lease is the minimal surface the dispatcher needs from a held lease.
type Lease interface {
	Release(ctx context.Context) error
}
