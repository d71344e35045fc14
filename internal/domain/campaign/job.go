package campaign

import (
	"database/sql"
	"time"
)

// Status is the campaign job lifecycle state. Valid transitions are
// pending -> running -> completed|failed; terminal states never change
// and failed jobs are not retried automatically.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one broadcast attempt. Once claimed by the scheduler no other
// actor may flip its status; after completion the row is immutable audit
// history. Completed describes the job lifecycle, not perfect delivery:
// a job with per-recipient failures still completes, with the first
// failure reason retained in Error.
type Job struct {
	ID          int64
	CreatedBy   string
	TemplateKey string
	// TemplateText holds the literal template for ad-hoc campaigns; when
	// null the canned template for TemplateKey is used.
	TemplateText     sql.NullString
	CourseID         sql.NullInt64 // null means all courses
	MissingThreshold int
	RunAt            time.Time
	Status           Status
	TargetCount      int
	SentCount        int
	Error            sql.NullString
	CreatedAt        time.Time
	StartedAt        sql.NullTime
	FinishedAt       sql.NullTime
}

// Due reports whether the job should run at the given time.
func (j *Job) Due(now time.Time) bool {
	return j.Status == StatusPending && !j.RunAt.After(now)
}
