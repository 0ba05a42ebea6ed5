package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a1davida1/DomainEmpire-sub003/internal/content"
	"github.com/a1davida1/DomainEmpire-sub003/internal/idempotency"
	"github.com/a1davida1/DomainEmpire-sub003/internal/pipeline"
	"github.com/a1davida1/DomainEmpire-sub003/internal/queue"
	"github.com/a1davida1/DomainEmpire-sub003/internal/review"
	"github.com/a1davida1/DomainEmpire-sub003/shared/logger"
)

func newTestPool(t *testing.T, jobs *queue.MemoryStore, articles *content.MemoryStore, concurrency int, nudges <-chan struct{}) *Pool {
	t.Helper()

	log := logger.NewDefault()
	reviews := review.NewService(articles, review.NewMemoryStore(articles), review.NewResolver(nil, nil), log.Logger)
	dispatcher := pipeline.NewDispatcher(jobs, reviews, log.Logger)
	pipeline.NewStages(pipeline.StaticGenerator{}, articles, jobs, log.Logger).RegisterAll(dispatcher)

	return NewPool(&Config{
		Logger:           log.Logger,
		Jobs:             jobs,
		Dispatcher:       dispatcher,
		WorkerID:         "test-worker",
		Concurrency:      concurrency,
		PollInterval:     5 * time.Millisecond,
		LeaseDuration:    time.Minute,
		JobTimeout:       10 * time.Second,
		RetryBackoffBase: time.Millisecond,
		Nudges:           nudges,
	})
}

func waitForStatus(t *testing.T, jobs queue.Store, jobID string, want queue.JobStatus) *queue.Job {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		job, err := jobs.GetByID(context.Background(), jobID)
		require.NoError(t, err)
		if job.Status == want {
			return job
		}
		select {
		case <-deadline:
			t.Fatalf("job %s never reached %s, currently %s", jobID, want, job.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPool_DrivesPipelineToCompletion(t *testing.T) {
	jobs := queue.NewMemoryStore()
	articles := content.NewMemoryStore()

	a := &content.Article{
		ID:          uuid.New().String(),
		SiteID:      "site-1",
		Title:       "Best Money Market Accounts",
		Slug:        "best-money-market-accounts",
		RiskLevel:   content.RiskLow,
		ContentType: content.TypeArticle,
		Status:      content.StatusGenerating,
	}
	require.NoError(t, articles.Create(context.Background(), a))

	outline, err := jobs.Enqueue(context.Background(), queue.EnqueueParams{
		Type:      queue.TypeOutline,
		SiteID:    a.SiteID,
		ArticleID: a.ID,
		Payload:   json.RawMessage(`{"topic":"Best Money Market Accounts"}`),
	})
	require.NoError(t, err)

	pool := newTestPool(t, jobs, articles, 3, nil)
	pool.Start(context.Background())
	defer pool.Stop()

	waitForStatus(t, jobs, outline.ID, queue.StatusCompleted)

	// The pool keeps claiming follow-on stages until deploy finishes
	// and the article leaves generating.
	deadline := time.After(5 * time.Second)
	for {
		got, err := articles.GetByID(context.Background(), a.ID)
		require.NoError(t, err)
		if got.Status == content.StatusDraft {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("article never reached draft, currently %s", got.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPool_MalformedPayloadFailsTerminally(t *testing.T) {
	jobs := queue.NewMemoryStore()
	articles := content.NewMemoryStore()

	job, err := jobs.Enqueue(context.Background(), queue.EnqueueParams{
		Type:    queue.TypeOutline,
		Payload: json.RawMessage(`{"not_a_topic":true}`),
	})
	require.NoError(t, err)

	pool := newTestPool(t, jobs, articles, 1, nil)
	pool.Start(context.Background())
	defer pool.Stop()

	failed := waitForStatus(t, jobs, job.ID, queue.StatusFailed)
	assert.Equal(t, 1, failed.Attempts, "payload errors must not burn retries")
	assert.Contains(t, failed.ErrorMessage, "topic is required")
}

func TestPool_NudgeWakesIdleWorker(t *testing.T) {
	jobs := queue.NewMemoryStore()
	articles := content.NewMemoryStore()
	nudges := make(chan struct{}, 1)

	log := logger.NewDefault()
	reviews := review.NewService(articles, review.NewMemoryStore(articles), review.NewResolver(nil, nil), log.Logger)
	dispatcher := pipeline.NewDispatcher(jobs, reviews, log.Logger)
	pipeline.NewStages(pipeline.StaticGenerator{}, articles, jobs, log.Logger).RegisterAll(dispatcher)

	// Long poll interval so only the nudge can explain a prompt claim.
	pool := NewPool(&Config{
		Logger:        log.Logger,
		Jobs:          jobs,
		Dispatcher:    dispatcher,
		WorkerID:      "test-worker",
		Concurrency:   1,
		PollInterval:  time.Minute,
		LeaseDuration: time.Minute,
		JobTimeout:    10 * time.Second,
		Nudges:        nudges,
	})
	pool.Start(context.Background())
	defer pool.Stop()

	// Let the worker reach its idle wait before work appears.
	time.Sleep(50 * time.Millisecond)

	job, err := jobs.Enqueue(context.Background(), queue.EnqueueParams{
		Type:    queue.TypeEvaluate,
		Payload: json.RawMessage(`{"topic":"heloc","search_volume":1000,"difficulty":25}`),
	})
	require.NoError(t, err)
	nudges <- struct{}{}

	waitForStatus(t, jobs, job.ID, queue.StatusCompleted)
}

func TestMaintenance_SeedsPerSiteChecks(t *testing.T) {
	jobs := queue.NewMemoryStore()
	idem := idempotency.NewMemoryStore(time.Hour)
	log := logger.NewDefault()

	m, err := NewMaintenance(jobs, idem, []string{"site-1", "site-2"}, MaintenanceSchedules{}, log.Logger)
	require.NoError(t, err)

	m.seed(queue.TypeRenewalCheck)

	seeded, err := jobs.List(context.Background(), queue.Filter{Type: queue.TypeRenewalCheck})
	require.NoError(t, err)
	require.Len(t, seeded, 2)
	for _, job := range seeded {
		assert.NotEmpty(t, job.SiteID)
		assert.JSONEq(t, `{"site_id":"`+job.SiteID+`"}`, string(job.Payload))
	}
}

func TestMaintenance_RejectsBadSchedule(t *testing.T) {
	jobs := queue.NewMemoryStore()
	idem := idempotency.NewMemoryStore(time.Hour)
	log := logger.NewDefault()

	_, err := NewMaintenance(jobs, idem, nil, MaintenanceSchedules{PurgeIdempotency: "not a cron expr"}, log.Logger)
	require.Error(t, err)
}
