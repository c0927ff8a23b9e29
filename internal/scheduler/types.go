// Package scheduler implements timers and cron jobs that materialize as
// outbox messages at their due time (spec §4.6).
package scheduler

import "time"

// TimerStatus mirrors the work-queue state machine over the timers table,
// plus a Cancelled terminal state unique to timers.
type TimerStatus string

const (
	TimerPending   TimerStatus = "Pending"
	TimerRunning   TimerStatus = "Running"
	TimerDone      TimerStatus = "Done"
	TimerCancelled TimerStatus = "Cancelled"
)

// Timer is a one-shot due-time row that materializes into an outbox
// message once claimed.
type Timer struct {
	ID      string
	Topic   string
	Payload string
	DueTime time.Time
	Status  TimerStatus
}

// Job is a named recurring schedule; CreateOrUpdateJob upserts by Name.
type Job struct {
	Name            string
	Topic           string
	Payload         string
	CronSchedule    string
	NextDueTime     time.Time
	LastRunTime     *time.Time
	LastRunStatus   string
	IsEnabled       bool
}

// JobRunStatus mirrors the work-queue state machine over the job_runs
// table (spec §4.6: "JobRuns records each execution and is itself a work
// queue").
type JobRunStatus string

const (
	JobRunReady      JobRunStatus = "Ready"
	JobRunInProgress JobRunStatus = "InProgress"
	JobRunDone       JobRunStatus = "Done"
	JobRunFailed     JobRunStatus = "Failed"
)

// JobRun is a single materialized execution of a Job.
type JobRun struct {
	ID        string
	JobName   string
	Topic     string
	Payload   string
	CreatedAt time.Time
	Status    JobRunStatus
}
