package provider

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/relaybase/engine/internal/apperr"
)

// Router is a thin keyed lookup over a Provider (spec §4.7). Unknown keys
// surface apperr.ErrNotFound; empty keys surface apperr.ErrInvalidArgument;
// a nil provider surfaces apperr.ErrInvalidArgument at construction.
type Router[T any] struct {
	provider Provider[T]
}

// NewRouter wraps provider. Passing a nil provider is a caller error
// (spec §4.7: "null providers throw NullArgument", folded into
// InvalidArgument per this engine's taxonomy — see apperr.ErrInvalidArgument).
func NewRouter[T any](p Provider[T]) (*Router[T], error) {
	if p == nil {
		return nil, fmt.Errorf("provider: nil provider: %w", apperr.ErrInvalidArgument)
	}
	return &Router[T]{provider: p}, nil
}

// GetStore resolves key, canonicalizing GUID-shaped keys to their
// canonical string form before lookup.
func (r *Router[T]) GetStore(key string) (T, error) {
	var zero T
	key = strings.TrimSpace(key)
	if key == "" {
		return zero, fmt.Errorf("provider: empty router key: %w", apperr.ErrInvalidArgument)
	}
	key = canonicalizeKey(key)

	store, ok := r.provider.StoreByKey(key)
	if !ok {
		return zero, fmt.Errorf("provider: no store for key %q: %w", key, apperr.ErrNotFound)
	}
	return store, nil
}

// canonicalizeKey rewrites a GUID-shaped key to uuid's canonical string
// form, so callers don't need to normalize case/braces themselves
// (spec §4.7: "Guid keys are converted to their canonical string
// representation").
func canonicalizeKey(key string) string {
	if u, err := uuid.Parse(key); err == nil {
		return u.String()
	}
	return key
}
