package outbox

import (
	"context"
	"strings"
)

// Handler processes one claimed outbox message. Returning nil acks the
// message; returning an error causes the dispatcher to abandon (with
// backoff) or fail it, per spec §4.3.
type Handler func(ctx context.Context, msg Message) error

// HandlerResolver resolves a handler by topic, case-insensitively
// (spec §4.3, §9).
type HandlerResolver interface {
	Resolve(topic string) (Handler, bool)
}

// MapResolver is the case-insensitive map-backed HandlerResolver spec §9
// calls for ("a map keyed by lowercased topic built at resolver
// construction").
type MapResolver map[string]Handler

// NewMapResolver builds a MapResolver from a topic->handler map, lowering
// every key once at construction.
func NewMapResolver(handlers map[string]Handler) MapResolver {
	m := make(MapResolver, len(handlers))
	for topic, h := range handlers {
		m[strings.ToLower(topic)] = h
	}
	return m
}

func (m MapResolver) Resolve(topic string) (Handler, bool) {
	h, ok := m[strings.ToLower(topic)]
	return h, ok
}
