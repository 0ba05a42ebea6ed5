package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/a1davida1/DomainEmpire-sub003/internal/content"
	"github.com/a1davida1/DomainEmpire-sub003/internal/queue"
	"github.com/a1davida1/DomainEmpire-sub003/internal/review"
)

// StageResult is what a handler produces on success. Result is stored
// on the job; ArticleID is set when the stage created the article the
// rest of the chain should reference (bulk seeding, keyword research).
type StageResult struct {
	Result    json.RawMessage
	ArticleID string
}

// Handler executes one job type. Returning a MalformedPayloadError (or
// ErrUnknownJobType) fails the job terminally; any other error consumes
// an attempt and the job returns to pending while attempts remain.
type Handler interface {
	Handle(ctx context.Context, job *queue.Job) (*StageResult, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *queue.Job) (*StageResult, error)

func (f HandlerFunc) Handle(ctx context.Context, job *queue.Job) (*StageResult, error) {
	return f(ctx, job)
}

// stageFollowOn is the fixed continuation order of the writing pipeline.
// Deploy has no follow-on job; its success hands the article to the
// editorial state machine instead.
var stageFollowOn = map[queue.JobType]queue.JobType{
	queue.TypeKeywordResearch: queue.TypeOutline,
	queue.TypeOutline:         queue.TypeDraft,
	queue.TypeDraft:           queue.TypeHumanize,
	queue.TypeHumanize:        queue.TypeSEOOptimize,
	queue.TypeSEOOptimize:     queue.TypeMetadata,
	queue.TypeMetadata:        queue.TypeDeploy,
}

// Dispatcher routes claimed jobs to their handlers and drives pipeline
// continuation: on stage success it marks the job completed, enqueues
// the follow-on stage for the same article at the same priority, and on
// final-stage success hands the article to the review workflow. It
// performs no retry logic of its own; errors flow back to the caller
// and the job store decides retry versus terminal failure.
type Dispatcher struct {
	handlers map[queue.JobType]Handler
	jobs     queue.Store
	reviews  *review.Service
	logger   *slog.Logger
}

func NewDispatcher(jobs queue.Store, reviews *review.Service, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[queue.JobType]Handler),
		jobs:     jobs,
		reviews:  reviews,
		logger:   logger,
	}
}

// Register binds a handler to a job type. The mapping is closed: a job
// whose type has no registered handler fails terminally.
func (d *Dispatcher) Register(t queue.JobType, h Handler) {
	d.handlers[t] = h
}

// Dispatch runs one claimed job to its conclusion. A nil return means
// the job was completed (or its completion no-opped against a cancel);
// a non-nil return means the caller must fail the job.
func (d *Dispatcher) Dispatch(ctx context.Context, job *queue.Job) error {
	handler, ok := d.handlers[job.Type]
	if !ok {
		return fmt.Errorf("%w: %s", queue.ErrUnknownJobType, job.Type)
	}

	res, err := handler.Handle(ctx, job)
	if err != nil {
		return err
	}

	var result json.RawMessage
	if res != nil {
		result = res.Result
	}

	articleID := job.ArticleID
	if res != nil && res.ArticleID != "" {
		articleID = res.ArticleID
	}

	// The editorial handoff runs before the deploy job is marked
	// completed: a transient failure sends the job back through the
	// retry path instead of stranding the article in generating.
	if job.Type == queue.TypeDeploy && articleID != "" {
		stored, err := d.jobs.GetByID(ctx, job.ID)
		if err != nil {
			return err
		}
		if stored.Status != queue.StatusProcessing {
			d.logger.Info("Skipping editorial handoff for non-processing job",
				slog.String("job_id", job.ID),
				slog.String("status", string(stored.Status)),
			)
		} else if err := d.completePipeline(ctx, articleID); err != nil {
			return err
		}
	}

	if err := d.jobs.Complete(ctx, job.ID, result); err != nil {
		return err
	}

	// Completion no-ops when the job was cancelled mid-flight; a
	// cancelled stage must not spawn its successor.
	stored, err := d.jobs.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if stored.Status != queue.StatusCompleted {
		d.logger.Info("Skipping pipeline continuation for non-completed job",
			slog.String("job_id", job.ID),
			slog.String("status", string(stored.Status)),
		)
		return nil
	}

	if next, ok := stageFollowOn[job.Type]; ok && articleID != "" {
		followOn, err := d.jobs.Enqueue(ctx, queue.EnqueueParams{
			Type:      next,
			SiteID:    job.SiteID,
			ArticleID: articleID,
			KeywordID: job.KeywordID,
			Payload:   result,
			Priority:  job.Priority,
		})
		if err != nil {
			return fmt.Errorf("failed to enqueue %s follow-on: %w", next, err)
		}
		d.logger.Info("Pipeline stage continued",
			slog.String("completed_job", job.ID),
			slog.String("stage", string(job.Type)),
			slog.String("next_stage", string(next)),
			slog.String("next_job", followOn.ID),
			slog.String("article_id", articleID),
		)
	}

	return nil
}

// completePipeline hands a deployed article to the editorial workflow.
// A redelivered deploy finds the article already past generating; that
// is not a failure. Anything else returns to the caller so the job is
// failed and retried.
func (d *Dispatcher) completePipeline(ctx context.Context, articleID string) error {
	article, err := d.reviews.CompletePipeline(ctx, articleID)
	if err != nil {
		var pv *review.PolicyViolationError
		if errors.As(err, &pv) || errors.Is(err, content.ErrStatusConflict) {
			d.logger.Warn("Editorial handoff skipped, article already advanced",
				slog.String("article_id", articleID),
				slog.String("reason", err.Error()),
			)
			return nil
		}
		return fmt.Errorf("editorial handoff for article %s: %w", articleID, err)
	}
	d.logger.Info("Content pipeline finished",
		slog.String("article_id", articleID),
		slog.String("status", string(article.Status)),
	)
	return nil
}
