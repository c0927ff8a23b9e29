package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// NextDueUtc computes the next due time after from for a standard cron
// expression, the oracle spec.md §1 treats cron arithmetic as ("The
// scheduler's cron arithmetic is treated as an oracle yielding
// NextDueUtc").
func NextDueUtc(cronSchedule string, from time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(cronSchedule)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduler: parse cron schedule %q: %w", cronSchedule, err)
	}
	return sched.Next(from).UTC(), nil
}
