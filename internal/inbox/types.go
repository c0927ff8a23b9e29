// Package inbox implements the deduplicating inbox (spec §3, §4.5): a
// dedup table of received message ids used for idempotent consumption,
// optionally doubling as a work queue when topic/payload are populated.
package inbox

import "time"

// Status is the inbox row lifecycle state (spec §3).
type Status string

const (
	StatusSeen       Status = "Seen"
	StatusProcessing Status = "Processing"
	StatusDone       Status = "Done"
	StatusDead       Status = "Dead"
)

// Message is a claimed inbox row for the optional work-queue path.
type Message struct {
	MessageID   string
	Topic       string
	Payload     string
	CreatedAt   time.Time
	DueTime     *time.Time
	Status      Status
	Attempts    int
}
