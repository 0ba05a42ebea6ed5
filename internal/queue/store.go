package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Filter narrows List results. Zero values mean "any".
type Filter struct {
	SiteID    string
	ArticleID string
	Type      JobType
	Status    JobStatus
	PageSize  int
	Cursor    *Cursor
}

// Cursor is a (created_at, job_id) keyset position for stable pagination.
type Cursor struct {
	CreatedAt time.Time
	JobID     string
}

// EnqueueParams describes a job to be created.
type EnqueueParams struct {
	Type         JobType
	SiteID       string
	ArticleID    string
	KeywordID    string
	Payload      json.RawMessage
	Priority     int
	MaxAttempts  int
	ScheduledFor time.Time
}

// Store is the durable job queue. All mutations are safe under arbitrary
// caller concurrency; ClaimNext in particular selects and locks a job in
// one indivisible step.
type Store interface {
	// Enqueue creates a pending job and returns it.
	Enqueue(ctx context.Context, p EnqueueParams) (*Job, error)

	// ClaimNext atomically claims the highest-priority eligible job:
	// priority descending, then scheduled_for ascending, then creation
	// order. The claimed job is moved to processing, its attempt count
	// incremented, and locked_until set to now+lease. Returns
	// ErrNoEligibleJobs when nothing is claimable.
	ClaimNext(ctx context.Context, workerID string, lease time.Duration) (*Job, error)

	// Complete marks a processing job completed and stores its result.
	// Completing a cancelled job is a no-op, not an error.
	Complete(ctx context.Context, jobID string, result json.RawMessage) error

	// Fail records a handler failure. If attempts remain the job returns
	// to pending with retryAfter pushed into scheduled_for; otherwise it
	// becomes terminally failed. Failing a cancelled job is a no-op.
	Fail(ctx context.Context, jobID, errMsg string, retryAfter time.Duration) error

	// FailTerminal marks the job failed regardless of remaining attempts.
	// Used for malformed payloads and other logic errors.
	FailTerminal(ctx context.Context, jobID, errMsg string) error

	// Cancel moves a pending or processing job to cancelled.
	Cancel(ctx context.Context, jobID string) error

	GetByID(ctx context.Context, jobID string) (*Job, error)
	List(ctx context.Context, f Filter) ([]Job, error)
}
