package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/a1davida1/DomainEmpire-sub003/internal/api/dto"
	"github.com/a1davida1/DomainEmpire-sub003/internal/queue"
	"github.com/a1davida1/DomainEmpire-sub003/shared/rabbitmq"
)

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger       *slog.Logger
	jobs         queue.Store
	rabbitClient *rabbitmq.Client
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:       deps.Logger,
		jobs:         deps.Jobs,
		rabbitClient: deps.RabbitClient,
	}
}

// CreateJob handles POST /api/v1/jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body", Detail: err.Error()})
		return
	}

	jobType := queue.JobType(req.JobType)
	if !jobType.Valid() {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "unknown job_type", Detail: req.JobType})
		return
	}

	params := queue.EnqueueParams{
		Type:        jobType,
		SiteID:      req.SiteID,
		ArticleID:   req.ArticleID,
		KeywordID:   req.KeywordID,
		Payload:     req.Payload,
		Priority:    req.Priority,
		MaxAttempts: req.MaxAttempts,
	}
	if req.ScheduledFor != nil {
		params.ScheduledFor = *req.ScheduledFor
	}

	job, err := h.jobs.Enqueue(c.Request.Context(), params)
	if err != nil {
		h.logger.Error("Failed to create job", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to create job"})
		return
	}

	// Wake an idle worker early. Best effort only: pollers find the
	// job on their next tick regardless.
	if h.rabbitClient != nil && h.rabbitClient.IsConnected() {
		nudge := rabbitmq.Nudge{JobID: job.ID, JobType: string(job.Type)}
		if err := h.rabbitClient.PublishNudge(c.Request.Context(), nudge); err != nil {
			h.logger.Warn("Failed to publish job nudge",
				slog.String("job_id", job.ID),
				slog.Any("error", err),
			)
		}
	}

	h.logger.Info("Job created",
		slog.String("job_id", job.ID),
		slog.String("job_type", string(job.Type)),
		slog.Int("priority", job.Priority),
	)

	c.JSON(http.StatusCreated, job)
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.jobs.GetByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "job not found"})
			return
		}
		h.logger.Error("Failed to get job", slog.String("job_id", jobID), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to get job"})
		return
	}

	c.JSON(http.StatusOK, job)
}

// ListJobs handles GET /api/v1/jobs with filtering and keyset pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid query parameters", Detail: err.Error()})
		return
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid cursor", Detail: err.Error()})
		return
	}

	pageSize := req.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	jobs, err := h.jobs.List(c.Request.Context(), queue.Filter{
		SiteID:    req.SiteID,
		ArticleID: req.ArticleID,
		Type:      queue.JobType(req.JobType),
		Status:    queue.JobStatus(req.Status),
		PageSize:  pageSize,
		Cursor:    cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to list jobs"})
		return
	}

	resp := dto.ListJobsResponse{Jobs: jobs}
	if len(jobs) > pageSize {
		resp.Jobs = jobs[:pageSize]
		last := resp.Jobs[len(resp.Jobs)-1]
		resp.NextCursor = EncodeJobCursor(&queue.Cursor{CreatedAt: last.CreatedAt, JobID: last.ID})
	}
	if resp.Jobs == nil {
		resp.Jobs = []queue.Job{}
	}

	c.JSON(http.StatusOK, resp)
}

// CancelJob handles POST /api/v1/jobs/:job_id/cancel
func (h *JobHandler) CancelJob(c *gin.Context) {
	jobID := c.Param("job_id")

	err := h.jobs.Cancel(c.Request.Context(), jobID)
	switch {
	case err == nil:
	case errors.Is(err, queue.ErrJobNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "job not found"})
		return
	case errors.Is(err, queue.ErrJobNotCancellable):
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: "job is already in a terminal state"})
		return
	default:
		h.logger.Error("Failed to cancel job", slog.String("job_id", jobID), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to cancel job"})
		return
	}

	h.logger.Info("Job cancelled", slog.String("job_id", jobID))

	job, err := h.jobs.GetByID(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"job_id": jobID, "status": queue.StatusCancelled, "cancelled_at": time.Now().UTC()})
		return
	}
	c.JSON(http.StatusOK, job)
}
