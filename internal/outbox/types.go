// Package outbox implements the transactional outbox (spec §3, §4.1): a
// table of work items written in the same transaction as domain data and
// drained by the dispatcher for reliable publishing.
package outbox

import (
	"time"

	"github.com/relaybase/engine/internal/ids"
)

// Status is the outbox row lifecycle state (spec §3).
type Status int

const (
	StatusReady Status = iota
	StatusInProgress
	StatusDone
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusInProgress:
		return "in_progress"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// NewMessage is the caller-supplied shape for Enqueue; CorrelationID and
// DueTime are optional.
type NewMessage struct {
	Topic         string
	Payload       string
	CorrelationID *string
	MessageID     ids.OutboxMessageID
	DueTime       *time.Time
}

// Message is a claimed outbox row, carrying the fields a handler and the
// dispatcher's retry logic need.
type Message struct {
	ID            ids.OutboxWorkItemID
	Topic         string
	Payload       string
	CorrelationID *string
	MessageID     ids.OutboxMessageID
	CreatedAt     time.Time
	DueTime       *time.Time
	Status        Status
	RetryCount    int
	LastError     *string
}
