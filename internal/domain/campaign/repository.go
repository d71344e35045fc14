package campaign

import (
	"context"
	"time"
)

// Repository defines the campaign job store. Claim is the concurrency
// pivot of the subsystem: it must be a conditional transition that only
// succeeds when the prior status is exactly pending, so at most one
// execution attempt is ever in flight per job.
type Repository interface {
	Create(ctx context.Context, j *Job) error
	GetByID(ctx context.Context, id int64) (*Job, error)
	ListDue(ctx context.Context, now time.Time) ([]*Job, error)
	// Claim atomically moves a pending job to running, stamping the start
	// time. Returns false without error when another claimant won.
	Claim(ctx context.Context, id int64, now time.Time) (bool, error)
	// Complete finishes a job that ran through its target list; firstErr
	// is empty when every send succeeded.
	Complete(ctx context.Context, id int64, targetCount, sentCount int, firstErr string) error
	// Fail finishes a job that could not proceed at all.
	Fail(ctx context.Context, id int64, errMsg string) error
	ListRecent(ctx context.Context, limit int) ([]*Job, error)
	// FailAbandoned marks every job still running as failed with the given
	// reason. Called once at startup: a process restart mid-execution must
	// not silently re-send.
	FailAbandoned(ctx context.Context, reason string) (int64, error)
}
