package queue

import (
	"encoding/json"
	"time"
)

// JobType identifies which pipeline stage or maintenance task a job runs.
// The set is closed: the dispatcher refuses to execute anything else.
type JobType string

const (
	TypeKeywordResearch JobType = "keyword_research"
	TypeOutline         JobType = "outline"
	TypeDraft           JobType = "draft"
	TypeHumanize        JobType = "humanize"
	TypeSEOOptimize     JobType = "seo_optimize"
	TypeMetadata        JobType = "metadata"
	TypeDeploy          JobType = "deploy"
	TypeAnalyticsFetch  JobType = "analytics_fetch"
	TypeBulkSeed        JobType = "bulk_seed"
	TypeResearch        JobType = "research"
	TypeEvaluate        JobType = "evaluate"
	TypeContentRefresh  JobType = "content_refresh"
	TypeExternalSignal  JobType = "external_signal_fetch"
	TypeBacklinkCheck   JobType = "backlink_check"
	TypeRenewalCheck    JobType = "renewal_check"
	TypeDatasetCheck    JobType = "dataset_check"
)

var jobTypes = map[JobType]struct{}{
	TypeKeywordResearch: {}, TypeOutline: {}, TypeDraft: {}, TypeHumanize: {},
	TypeSEOOptimize: {}, TypeMetadata: {}, TypeDeploy: {}, TypeAnalyticsFetch: {},
	TypeBulkSeed: {}, TypeResearch: {}, TypeEvaluate: {}, TypeContentRefresh: {},
	TypeExternalSignal: {}, TypeBacklinkCheck: {}, TypeRenewalCheck: {}, TypeDatasetCheck: {},
}

// Valid reports whether t is one of the known job types.
func (t JobType) Valid() bool {
	_, ok := jobTypes[t]
	return ok
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Job is one unit of pipeline work stored in the durable queue.
type Job struct {
	ID           string          `db:"job_id" json:"job_id"`
	Type         JobType         `db:"job_type" json:"job_type"`
	SiteID       string          `db:"site_id" json:"site_id,omitempty"`
	ArticleID    string          `db:"article_id" json:"article_id,omitempty"`
	KeywordID    string          `db:"keyword_id" json:"keyword_id,omitempty"`
	Payload      json.RawMessage `db:"payload" json:"payload,omitempty"`
	Result       json.RawMessage `db:"result" json:"result,omitempty"`
	Status       JobStatus       `db:"status" json:"status"`
	Priority     int             `db:"priority" json:"priority"`
	Attempts     int             `db:"attempts" json:"attempts"`
	MaxAttempts  int             `db:"max_attempts" json:"max_attempts"`
	ErrorMessage string          `db:"error_message" json:"error_message,omitempty"`
	LockedBy     string          `db:"locked_by" json:"locked_by,omitempty"`
	LockedUntil  *time.Time      `db:"locked_until" json:"locked_until,omitempty"`
	ScheduledFor time.Time       `db:"scheduled_for" json:"scheduled_for"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	StartedAt    *time.Time      `db:"started_at" json:"started_at,omitempty"`
	CompletedAt  *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

// DefaultMaxAttempts applies when a producer does not set a ceiling.
const DefaultMaxAttempts = 3

// Eligible reports whether the job satisfies the claim predicate at now:
// due, and either pending or processing under a lapsed lease. Including
// lapsed processing rows is what makes crashed-worker recovery work with
// no reaper: the lease expiring is the requeue.
func (j *Job) Eligible(now time.Time) bool {
	if j.Status != StatusPending && j.Status != StatusProcessing {
		return false
	}
	if j.ScheduledFor.After(now) {
		return false
	}
	return j.LockedUntil == nil || j.LockedUntil.Before(now)
}
