// Package join implements the join coordinator (spec §3, §4.4): an atomic
// counter aggregating completion/failure of N sibling outbox messages,
// with a follow-up hook exposed through JoinWaitHandler.
package join

import (
	"time"

	"github.com/relaybase/engine/internal/ids"
)

// Status is the join's terminal-or-pending lifecycle state.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
)

// Join is the aggregate row (spec §3).
type Join struct {
	ID             ids.JoinID
	TenantID       int64
	ExpectedSteps  int
	CompletedSteps int
	FailedSteps    int
	Status         Status
	CreatedAt      time.Time
	LastUpdatedAt  time.Time
	Metadata       string
}

// Member is one (join, outbox message) attachment (spec §3).
type Member struct {
	JoinID           ids.JoinID
	OutboxMessageID  ids.OutboxMessageID
	CountedCompleted bool
	CountedFailed    bool
}
