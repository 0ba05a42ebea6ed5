package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a1davida1/DomainEmpire-sub003/internal/api/handler"
	"github.com/a1davida1/DomainEmpire-sub003/internal/content"
	"github.com/a1davida1/DomainEmpire-sub003/internal/idempotency"
	"github.com/a1davida1/DomainEmpire-sub003/internal/queue"
	"github.com/a1davida1/DomainEmpire-sub003/internal/review"
	"github.com/a1davida1/DomainEmpire-sub003/shared/logger"
)

type testEnv struct {
	router   *gin.Engine
	jobs     *queue.MemoryStore
	articles *content.MemoryStore
	reviews  *review.Service
	idem     *idempotency.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jobs := queue.NewMemoryStore()
	articles := content.NewMemoryStore()
	store := review.NewMemoryStore(articles)
	idem := idempotency.NewMemoryStore(time.Hour)
	log := logger.NewDefault()

	reviews := review.NewService(articles, store, review.NewResolver(nil, nil), log.Logger)
	qa := review.NewQAEngine([]review.ChecklistTemplate{
		{
			ID:          "standard-review",
			Name:        "Standard editorial review",
			ContentType: content.TypeArticle,
			RiskLevel:   content.RiskMedium,
			Items: []review.ChecklistItem{
				{ID: "facts_verified", Label: "Facts verified against sources", Required: true},
			},
		},
	}, store, articles, log.Logger)

	deps := &handler.Dependencies{
		Logger:   log.Logger,
		Jobs:     jobs,
		Articles: articles,
		Reviews:  reviews,
		QA:       qa,
	}

	return &testEnv{
		router:   SetupRouter(deps, idem),
		jobs:     jobs,
		articles: articles,
		reviews:  reviews,
		idem:     idem,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) seedArticle(t *testing.T, status content.Status) *content.Article {
	t.Helper()

	a := &content.Article{
		ID:          uuid.New().String(),
		SiteID:      "site-1",
		Title:       "Best CD Rates",
		Slug:        "best-cd-rates",
		RiskLevel:   content.RiskMedium,
		ContentType: content.TypeArticle,
		Status:      status,
	}
	require.NoError(t, e.articles.Create(context.Background(), a))
	return a
}

func TestCreateJob(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/jobs", gin.H{
		"job_type": "outline",
		"site_id":  "site-1",
		"payload":  gin.H{"topic": "Best CD Rates"},
		"priority": 5,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var job queue.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, queue.StatusPending, job.Status)
	assert.Equal(t, 5, job.Priority)
}

func TestCreateJob_UnknownTypeRejected(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/jobs", gin.H{"job_type": "mine_bitcoin"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown job_type")
}

func TestListJobs_CursorPagination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := env.jobs.Enqueue(ctx, queue.EnqueueParams{
			Type:    queue.TypeAnalyticsFetch,
			SiteID:  "site-1",
			Payload: json.RawMessage(`{"site_id":"site-1"}`),
		})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	w := env.do(t, http.MethodGet, "/api/v1/jobs?page_size=3", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var page1 struct {
		Jobs       []queue.Job `json:"jobs"`
		NextCursor string      `json:"next_cursor"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page1))
	require.Len(t, page1.Jobs, 3)
	require.NotEmpty(t, page1.NextCursor)

	w = env.do(t, http.MethodGet, "/api/v1/jobs?page_size=3&cursor="+page1.NextCursor, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var page2 struct {
		Jobs       []queue.Job `json:"jobs"`
		NextCursor string      `json:"next_cursor"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page2))
	assert.Len(t, page2.Jobs, 2)
	assert.Empty(t, page2.NextCursor)

	seen := map[string]bool{}
	for _, j := range append(page1.Jobs, page2.Jobs...) {
		assert.False(t, seen[j.ID], "job %s appeared twice across pages", j.ID)
		seen[j.ID] = true
	}
}

func TestCancelJob_TerminalConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job, err := env.jobs.Enqueue(ctx, queue.EnqueueParams{
		Type:    queue.TypeAnalyticsFetch,
		Payload: json.RawMessage(`{"site_id":"site-1"}`),
	})
	require.NoError(t, err)

	w := env.do(t, http.MethodPost, "/api/v1/jobs/"+job.ID+"/cancel", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Cancelling again conflicts: the job is already terminal.
	w = env.do(t, http.MethodPost, "/api/v1/jobs/"+job.ID+"/cancel", nil, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestApprove_GuardNamedInResponse(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedArticle(t, content.StatusReview)

	// Medium risk resolves to the conservative default policy: the QA
	// checklist guard trips before anything else for an admin actor.
	w := env.do(t, http.MethodPost, "/api/v1/articles/"+a.ID+"/approve", gin.H{
		"actor_id":   "adm-1",
		"actor_role": "admin",
		"rationale":  "lgtm",
	}, nil)
	require.Equal(t, http.StatusConflict, w.Code)

	var resp struct {
		Guard  string `json:"guard"`
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "qa_checklist", resp.Guard)
	assert.NotEmpty(t, resp.Detail)
}

func TestReject_MissingRationaleRejected(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedArticle(t, content.StatusReview)

	w := env.do(t, http.MethodPost, "/api/v1/articles/"+a.ID+"/reject", gin.H{
		"actor_id":   "rev-1",
		"actor_role": "reviewer",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitQA_ValidationFailureNamesMissingItems(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedArticle(t, content.StatusReview)

	w := env.do(t, http.MethodPost, "/api/v1/articles/"+a.ID+"/qa", gin.H{
		"actor_id":    "rev-1",
		"actor_role":  "reviewer",
		"template_id": "standard-review",
		"items":       gin.H{"facts_verified": gin.H{"checked": false}},
	}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp struct {
		MissingItems []string `json:"missing_items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.MissingItems, "facts_verified")
}

func TestIdempotency_ReplayIsByteIdentical(t *testing.T) {
	env := newTestEnv(t)

	body := gin.H{
		"job_type": "outline",
		"site_id":  "site-1",
		"payload":  gin.H{"topic": "Best CD Rates"},
	}
	headers := map[string]string{IdempotencyHeader: "idem-123"}

	first := env.do(t, http.MethodPost, "/api/v1/jobs", body, headers)
	require.Equal(t, http.StatusCreated, first.Code)

	second := env.do(t, http.MethodPost, "/api/v1/jobs", body, headers)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Replay"))
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())

	// The retry must not have created a second job.
	jobs, err := env.jobs.List(context.Background(), queue.Filter{Type: queue.TypeOutline})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestIdempotency_KeyReuseAcrossEndpointsRejected(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedArticle(t, content.StatusDraft)

	headers := map[string]string{IdempotencyHeader: "idem-456"}

	first := env.do(t, http.MethodPost, "/api/v1/jobs", gin.H{
		"job_type": "analytics_fetch",
		"payload":  gin.H{"site_id": "site-1"},
	}, headers)
	require.Equal(t, http.StatusCreated, first.Code)

	second := env.do(t, http.MethodPost, "/api/v1/articles/"+a.ID+"/submit-review", gin.H{
		"actor_id":   "ed-1",
		"actor_role": "editor",
	}, headers)
	assert.Equal(t, http.StatusUnprocessableEntity, second.Code)
}

func TestIdempotency_SameKeyDifferentBodyRejected(t *testing.T) {
	env := newTestEnv(t)

	headers := map[string]string{IdempotencyHeader: "idem-789"}

	first := env.do(t, http.MethodPost, "/api/v1/jobs", gin.H{
		"job_type": "outline",
		"site_id":  "site-1",
		"payload":  gin.H{"topic": "Best CD Rates"},
	}, headers)
	require.Equal(t, http.StatusCreated, first.Code)

	// Same key, same endpoint, different request body: reuse, not a
	// retry. Nothing replays and no second job is created.
	second := env.do(t, http.MethodPost, "/api/v1/jobs", gin.H{
		"job_type": "outline",
		"site_id":  "site-1",
		"payload":  gin.H{"topic": "Best Savings Rates"},
	}, headers)
	assert.Equal(t, http.StatusUnprocessableEntity, second.Code)

	jobs, err := env.jobs.List(context.Background(), queue.Filter{Type: queue.TypeOutline})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}
