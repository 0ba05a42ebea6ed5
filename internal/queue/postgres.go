package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PostgresStore implements Store on a jobs table. Claiming relies on a
// single conditional UPDATE with FOR UPDATE SKIP LOCKED so concurrent
// workers never observe the same job as claimable.
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewPostgresStore(db *sqlx.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

const jobColumns = `job_id, job_type, site_id, article_id, keyword_id, payload, result,
	status, priority, attempts, max_attempts, error_message, locked_by, locked_until,
	scheduled_for, created_at, started_at, completed_at`

func (s *PostgresStore) Enqueue(ctx context.Context, p EnqueueParams) (*Job, error) {
	if !p.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, p.Type)
	}

	now := time.Now().UTC()
	job := &Job{
		ID:           uuid.New().String(),
		Type:         p.Type,
		SiteID:       p.SiteID,
		ArticleID:    p.ArticleID,
		KeywordID:    p.KeywordID,
		Payload:      p.Payload,
		Status:       StatusPending,
		Priority:     p.Priority,
		MaxAttempts:  p.MaxAttempts,
		ScheduledFor: p.ScheduledFor,
		CreatedAt:    now,
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = DefaultMaxAttempts
	}
	if job.ScheduledFor.IsZero() {
		job.ScheduledFor = now
	}

	query := `
		INSERT INTO jobs (
			job_id, job_type, site_id, article_id, keyword_id, payload,
			status, priority, max_attempts, scheduled_for, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.Type, nullable(job.SiteID), nullable(job.ArticleID), nullable(job.KeywordID),
		rawOrNull(job.Payload), job.Status, job.Priority, job.MaxAttempts, job.ScheduledFor, job.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	s.logger.Info("Job enqueued",
		slog.String("job_id", job.ID),
		slog.String("job_type", string(job.Type)),
		slog.Int("priority", job.Priority),
	)

	return job, nil
}

// ClaimNext selects and locks one job in a single statement. SKIP LOCKED
// keeps concurrent claimants from blocking on the same candidate row.
func (s *PostgresStore) ClaimNext(ctx context.Context, workerID string, lease time.Duration) (*Job, error) {
	query := `
		UPDATE jobs SET
			status = $1,
			attempts = attempts + 1,
			locked_by = $2,
			locked_until = NOW() + $3 * INTERVAL '1 second',
			started_at = NOW()
		WHERE job_id = (
			SELECT job_id FROM jobs
			WHERE status IN ($4, $5)
			  AND scheduled_for <= NOW()
			  AND (locked_until IS NULL OR locked_until < NOW())
			ORDER BY priority DESC, scheduled_for ASC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	// Eligible rows are pending, or processing past their lease. The
	// second arm is crashed-worker recovery: no reaper, the predicate
	// alone requeues lapsed claims.
	var row jobRow
	err := s.db.GetContext(ctx, &row, query, StatusProcessing, workerID, lease.Seconds(), StatusPending, StatusProcessing)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoEligibleJobs
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	job := row.toJob()
	s.logger.Info("Job claimed",
		slog.String("job_id", job.ID),
		slog.String("job_type", string(job.Type)),
		slog.String("worker_id", workerID),
		slog.Int("attempt", job.Attempts),
	)

	return job, nil
}

// Complete finalizes a processing job. The status guard makes completion
// of a cancelled job a silent no-op per the cooperative cancellation
// contract.
func (s *PostgresStore) Complete(ctx context.Context, jobID string, result json.RawMessage) error {
	query := `
		UPDATE jobs SET
			status = $1,
			result = $2,
			locked_until = NULL,
			completed_at = NOW()
		WHERE job_id = $3 AND status = $4
	`

	res, err := s.db.ExecContext(ctx, query, StatusCompleted, rawOrNull(result), jobID, StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		s.logger.Warn("Complete skipped - job not processing (likely cancelled)",
			slog.String("job_id", jobID),
		)
	}

	return nil
}

func (s *PostgresStore) Fail(ctx context.Context, jobID, errMsg string, retryAfter time.Duration) error {
	// Retry while attempts remain, otherwise terminal. The CASE keeps
	// the decision inside one statement so a concurrent cancel cannot
	// race the attempt check.
	query := `
		UPDATE jobs SET
			status = CASE WHEN attempts < max_attempts THEN $1 ELSE $2 END,
			error_message = $3,
			locked_until = NULL,
			scheduled_for = CASE WHEN attempts < max_attempts
				THEN NOW() + $4 * INTERVAL '1 second' ELSE scheduled_for END,
			completed_at = CASE WHEN attempts < max_attempts THEN NULL ELSE NOW() END
		WHERE job_id = $5 AND status = $6
	`

	res, err := s.db.ExecContext(ctx, query,
		StatusPending, StatusFailed, errMsg, retryAfter.Seconds(), jobID, StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to record job failure: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		s.logger.Warn("Fail skipped - job not processing (likely cancelled)",
			slog.String("job_id", jobID),
		)
		return nil
	}

	s.logger.Info("Job failure recorded",
		slog.String("job_id", jobID),
		slog.String("error", errMsg),
	)

	return nil
}

func (s *PostgresStore) FailTerminal(ctx context.Context, jobID, errMsg string) error {
	query := `
		UPDATE jobs SET
			status = $1,
			error_message = $2,
			locked_until = NULL,
			completed_at = NOW()
		WHERE job_id = $3 AND status = $4
	`

	if _, err := s.db.ExecContext(ctx, query, StatusFailed, errMsg, jobID, StatusProcessing); err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}

	return nil
}

func (s *PostgresStore) Cancel(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs SET
			status = $1,
			locked_until = NULL,
			completed_at = NOW()
		WHERE job_id = $2 AND status IN ($3, $4)
	`

	res, err := s.db.ExecContext(ctx, query, StatusCancelled, jobID, StatusPending, StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		var status JobStatus
		err := s.db.GetContext(ctx, &status, `SELECT status FROM jobs WHERE job_id = $1`, jobID)
		if err == sql.ErrNoRows {
			return ErrJobNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to cancel job: %w", err)
		}
		return fmt.Errorf("%w: status is %s", ErrJobNotCancellable, status)
	}

	s.logger.Info("Job cancelled", slog.String("job_id", jobID))
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, jobID string) (*Job, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, `SELECT `+jobColumns+` FROM jobs WHERE job_id = $1`, jobID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return row.toJob(), nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Job, error) {
	b := sq.Select(jobColumns).From("jobs").PlaceholderFormat(sq.Dollar)

	if f.SiteID != "" {
		b = b.Where(sq.Eq{"site_id": f.SiteID})
	}
	if f.ArticleID != "" {
		b = b.Where(sq.Eq{"article_id": f.ArticleID})
	}
	if f.Type != "" {
		b = b.Where(sq.Eq{"job_type": f.Type})
	}
	if f.Status != "" {
		b = b.Where(sq.Eq{"status": f.Status})
	}
	if f.Cursor != nil {
		b = b.Where(sq.Expr("(created_at, job_id) < (?, ?)", f.Cursor.CreatedAt, f.Cursor.JobID))
	}

	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	// One extra row tells the caller whether a next page exists.
	b = b.OrderBy("created_at DESC", "job_id DESC").Limit(uint64(pageSize + 1))

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build list query: %w", err)
	}

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]Job, len(rows))
	for i := range rows {
		jobs[i] = *rows[i].toJob()
	}
	return jobs, nil
}

// jobRow mirrors the table with nullable columns mapped to sql types.
type jobRow struct {
	JobID        string         `db:"job_id"`
	JobType      JobType        `db:"job_type"`
	SiteID       sql.NullString `db:"site_id"`
	ArticleID    sql.NullString `db:"article_id"`
	KeywordID    sql.NullString `db:"keyword_id"`
	Payload      []byte         `db:"payload"`
	Result       []byte         `db:"result"`
	Status       JobStatus      `db:"status"`
	Priority     int            `db:"priority"`
	Attempts     int            `db:"attempts"`
	MaxAttempts  int            `db:"max_attempts"`
	ErrorMessage sql.NullString `db:"error_message"`
	LockedBy     sql.NullString `db:"locked_by"`
	LockedUntil  *time.Time     `db:"locked_until"`
	ScheduledFor time.Time      `db:"scheduled_for"`
	CreatedAt    time.Time      `db:"created_at"`
	StartedAt    *time.Time     `db:"started_at"`
	CompletedAt  *time.Time     `db:"completed_at"`
}

func (r *jobRow) toJob() *Job {
	return &Job{
		ID:           r.JobID,
		Type:         r.JobType,
		SiteID:       r.SiteID.String,
		ArticleID:    r.ArticleID.String,
		KeywordID:    r.KeywordID.String,
		Payload:      r.Payload,
		Result:       r.Result,
		Status:       r.Status,
		Priority:     r.Priority,
		Attempts:     r.Attempts,
		MaxAttempts:  r.MaxAttempts,
		ErrorMessage: r.ErrorMessage.String,
		LockedBy:     r.LockedBy.String,
		LockedUntil:  r.LockedUntil,
		ScheduledFor: r.ScheduledFor,
		CreatedAt:    r.CreatedAt,
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
	}
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func rawOrNull(m json.RawMessage) interface{} {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}
