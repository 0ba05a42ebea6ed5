package dto

import (
	"encoding/json"
	"time"

	"github.com/a1davida1/DomainEmpire-sub003/internal/queue"
)

type CreateJobRequest struct {
	JobType      string          `json:"job_type" binding:"required"`
	SiteID       string          `json:"site_id"`
	ArticleID    string          `json:"article_id"`
	KeywordID    string          `json:"keyword_id"`
	Payload      json.RawMessage `json:"payload"`
	Priority     int             `json:"priority"`
	MaxAttempts  int             `json:"max_attempts"`
	ScheduledFor *time.Time      `json:"scheduled_for"`
}

type ListJobsRequest struct {
	SiteID    string `form:"site_id"`
	ArticleID string `form:"article_id"`
	JobType   string `form:"job_type"`
	Status    string `form:"status"`
	PageSize  int    `form:"page_size"`
	Cursor    string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []queue.Job `json:"jobs"`
	NextCursor string      `json:"next_cursor,omitempty"`
}
