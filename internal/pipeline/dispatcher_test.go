package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a1davida1/DomainEmpire-sub003/internal/content"
	"github.com/a1davida1/DomainEmpire-sub003/internal/queue"
	"github.com/a1davida1/DomainEmpire-sub003/internal/review"
	"github.com/a1davida1/DomainEmpire-sub003/shared/logger"
)

type fixture struct {
	jobs       *queue.MemoryStore
	articles   *content.MemoryStore
	reviews    *review.Service
	qa         *review.QAEngine
	dispatcher *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	jobs := queue.NewMemoryStore()
	articles := content.NewMemoryStore()
	store := review.NewMemoryStore(articles)
	log := logger.NewDefault()

	reviews := review.NewService(articles, store, review.NewResolver(nil, nil), log.Logger)
	qa := review.NewQAEngine([]review.ChecklistTemplate{
		{
			ID:          "standard-review",
			Name:        "Standard editorial review",
			ContentType: content.TypeArticle,
			RiskLevel:   content.RiskHigh,
			Items: []review.ChecklistItem{
				{ID: "facts_verified", Label: "Facts verified against sources", Required: true},
			},
		},
	}, store, articles, log.Logger)

	dispatcher := NewDispatcher(jobs, reviews, log.Logger)
	NewStages(StaticGenerator{}, articles, jobs, log.Logger).RegisterAll(dispatcher)

	return &fixture{jobs: jobs, articles: articles, reviews: reviews, qa: qa, dispatcher: dispatcher}
}

func (f *fixture) seedArticle(t *testing.T, risk content.RiskLevel) *content.Article {
	t.Helper()

	a := &content.Article{
		ID:          uuid.New().String(),
		SiteID:      "site-1",
		Title:       "Best HELOC Rates",
		Slug:        "best-heloc-rates",
		RiskLevel:   risk,
		ContentType: content.TypeArticle,
		Status:      content.StatusGenerating,
	}
	require.NoError(t, f.articles.Create(context.Background(), a))
	return a
}

// claimAndDispatch drains the queue one claim at a time, returning the
// job types in execution order.
func (f *fixture) claimAndDispatch(t *testing.T) []queue.JobType {
	t.Helper()
	ctx := context.Background()

	var executed []queue.JobType
	for {
		job, err := f.jobs.ClaimNext(ctx, "w-1", time.Minute)
		if errors.Is(err, queue.ErrNoEligibleJobs) {
			return executed
		}
		require.NoError(t, err)
		executed = append(executed, job.Type)
		require.NoError(t, f.dispatcher.Dispatch(ctx, job))
	}
}

func TestDispatch_UnknownTypeIsTerminal(t *testing.T) {
	f := newFixture(t)
	log := logger.NewDefault()
	empty := NewDispatcher(f.jobs, f.reviews, log.Logger)

	job, err := f.jobs.Enqueue(context.Background(), queue.EnqueueParams{
		Type:    queue.TypeOutline,
		Payload: json.RawMessage(`{"topic":"anything"}`),
	})
	require.NoError(t, err)

	err = empty.Dispatch(context.Background(), job)
	require.ErrorIs(t, err, queue.ErrUnknownJobType)
	assert.False(t, queue.Retryable(err))
}

func TestDispatch_MalformedPayloadIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.jobs.Enqueue(ctx, queue.EnqueueParams{
		Type:    queue.TypeOutline,
		Payload: json.RawMessage(`{"topic":`),
	})
	require.NoError(t, err)

	claimed, err := f.jobs.ClaimNext(ctx, "w-1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, job.ID, claimed.ID)

	err = f.dispatcher.Dispatch(ctx, claimed)
	var mp *queue.MalformedPayloadError
	require.ErrorAs(t, err, &mp)
	assert.False(t, queue.Retryable(err))
}

func TestDispatch_StageSuccessEnqueuesFollowOn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seedArticle(t, content.RiskLow)

	outlineJob, err := f.jobs.Enqueue(ctx, queue.EnqueueParams{
		Type:      queue.TypeOutline,
		SiteID:    a.SiteID,
		ArticleID: a.ID,
		Payload:   json.RawMessage(`{"topic":"Best HELOC Rates"}`),
		Priority:  7,
	})
	require.NoError(t, err)

	claimed, err := f.jobs.ClaimNext(ctx, "w-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, f.dispatcher.Dispatch(ctx, claimed))

	completed, err := f.jobs.GetByID(ctx, outlineJob.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCompleted, completed.Status)

	drafts, err := f.jobs.List(ctx, queue.Filter{ArticleID: a.ID, Type: queue.TypeDraft})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, a.ID, drafts[0].ArticleID)
	assert.Equal(t, 7, drafts[0].Priority, "follow-on inherits priority")
	assert.JSONEq(t, string(completed.Result), string(drafts[0].Payload), "follow-on payload is the stage result")
}

func TestDispatch_CancelledJobDoesNotContinue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seedArticle(t, content.RiskLow)

	_, err := f.jobs.Enqueue(ctx, queue.EnqueueParams{
		Type:      queue.TypeOutline,
		ArticleID: a.ID,
		Payload:   json.RawMessage(`{"topic":"Best HELOC Rates"}`),
	})
	require.NoError(t, err)

	claimed, err := f.jobs.ClaimNext(ctx, "w-1", time.Minute)
	require.NoError(t, err)

	// Administrative cancel lands between the claim and the handler
	// finishing. Completion no-ops and no follow-on may appear.
	require.NoError(t, f.jobs.Cancel(ctx, claimed.ID))
	require.NoError(t, f.dispatcher.Dispatch(ctx, claimed))

	drafts, err := f.jobs.List(ctx, queue.Filter{ArticleID: a.ID, Type: queue.TypeDraft})
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestBulkSeed_PerItemOutcomes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payload, err := json.Marshal(BulkSeedPayload{
		SiteID: "site-1",
		Items: []BulkSeedItem{
			{KeywordID: "kw-1", Topic: "Best HELOC Rates", Priority: 3},
			{KeywordID: "kw-2"}, // no topic
			{KeywordID: "kw-3", Topic: "HELOC vs Home Equity Loan"},
		},
	})
	require.NoError(t, err)

	job, err := f.jobs.Enqueue(ctx, queue.EnqueueParams{Type: queue.TypeBulkSeed, SiteID: "site-1", Payload: payload})
	require.NoError(t, err)

	claimed, err := f.jobs.ClaimNext(ctx, "w-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, f.dispatcher.Dispatch(ctx, claimed))

	stored, err := f.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)

	var result struct {
		Items []BulkSeedItemOutcome `json:"items"`
	}
	require.NoError(t, json.Unmarshal(stored.Result, &result))
	require.Len(t, result.Items, 3)

	assert.Equal(t, "ready", result.Items[0].Outcome)
	assert.NotEmpty(t, result.Items[0].JobID)
	assert.Equal(t, "skipped", result.Items[1].Outcome)
	assert.Equal(t, "missing topic", result.Items[1].Reason)
	assert.Equal(t, "ready", result.Items[2].Outcome)

	seeded, err := f.jobs.List(ctx, queue.Filter{SiteID: "site-1", Type: queue.TypeKeywordResearch})
	require.NoError(t, err)
	assert.Len(t, seeded, 2)
}

// TestEndToEnd_HighRiskPipeline walks a high-risk article from an
// outline job through the full stage chain, the editorial gates, and
// out to published.
func TestEndToEnd_HighRiskPipeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seedArticle(t, content.RiskHigh)

	_, err := f.jobs.Enqueue(ctx, queue.EnqueueParams{
		Type:      queue.TypeOutline,
		SiteID:    a.SiteID,
		ArticleID: a.ID,
		Payload:   json.RawMessage(`{"topic":"Best HELOC Rates","keywords":["heloc","home equity"]}`),
	})
	require.NoError(t, err)

	executed := f.claimAndDispatch(t)
	assert.Equal(t, []queue.JobType{
		queue.TypeOutline,
		queue.TypeDraft,
		queue.TypeHumanize,
		queue.TypeSEOOptimize,
		queue.TypeMetadata,
		queue.TypeDeploy,
	}, executed)

	// High risk resolves to the conservative policy: no auto-publish,
	// so the finished pipeline leaves the item ready for review.
	article, err := f.articles.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, content.StatusDraft, article.Status)
	assert.NotEmpty(t, article.Body)

	_, err = f.reviews.SubmitForReview(ctx, a.ID, review.Actor{ID: "ed-1", Role: review.RoleEditor})
	require.NoError(t, err)

	// Approval is gated on both a passing checklist and expert signoff.
	reviewer := review.Actor{ID: "rev-1", Role: review.RoleReviewer}
	result, err := f.qa.Submit(ctx, a.ID, "standard-review", reviewer,
		map[string]review.ItemResult{"facts_verified": {Checked: true}}, nil)
	require.NoError(t, err)
	assert.True(t, result.AllPassed)

	require.NoError(t, f.reviews.RecordExpertSignoff(ctx, a.ID, reviewer, "rates cross-checked against lender sheets"))

	_, err = f.reviews.Approve(ctx, a.ID, reviewer, "sources verified", review.ApprovalDetails{
		Summary:           "verified against three lender sheets",
		ChecklistVerified: true,
		SourcesVerified:   true,
	})
	require.NoError(t, err)

	article, err = f.reviews.Publish(ctx, a.ID, reviewer, false)
	require.NoError(t, err)
	assert.Equal(t, content.StatusPublished, article.Status)
	require.NotNil(t, article.PublishedAt)

	published, err := f.reviews.Events(ctx, a.ID, review.EventFilter{Type: review.EventPublished})
	require.NoError(t, err)
	assert.Len(t, published, 1)
}

func TestKeywordResearch_CreatesArticleAndTargetsChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payload, _ := json.Marshal(KeywordResearchPayload{
		Topic:     "Best HELOC Rates",
		Keywords:  []string{"heloc"},
		RiskLevel: content.RiskHigh,
	})
	_, err := f.jobs.Enqueue(ctx, queue.EnqueueParams{
		Type:    queue.TypeKeywordResearch,
		SiteID:  "site-1",
		Payload: payload,
	})
	require.NoError(t, err)

	claimed, err := f.jobs.ClaimNext(ctx, "w-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, f.dispatcher.Dispatch(ctx, claimed))

	outlines, err := f.jobs.List(ctx, queue.Filter{Type: queue.TypeOutline})
	require.NoError(t, err)
	require.Len(t, outlines, 1)
	require.NotEmpty(t, outlines[0].ArticleID, "follow-on carries the created article")

	article, err := f.articles.GetByID(ctx, outlines[0].ArticleID)
	require.NoError(t, err)
	assert.Equal(t, content.StatusGenerating, article.Status)
	assert.Equal(t, content.RiskHigh, article.RiskLevel)
	assert.Equal(t, "best-heloc-rates", article.Slug)
}

func TestSEOOptimize_RejectsHeadinglessBody(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seedArticle(t, content.RiskLow)

	payload, _ := json.Marshal(bodyPayload{Title: "Best HELOC Rates", Body: "<p>just a paragraph</p>"})
	_, err := f.jobs.Enqueue(ctx, queue.EnqueueParams{
		Type:      queue.TypeSEOOptimize,
		ArticleID: a.ID,
		Payload:   payload,
	})
	require.NoError(t, err)

	claimed, err := f.jobs.ClaimNext(ctx, "w-1", time.Minute)
	require.NoError(t, err)

	err = f.dispatcher.Dispatch(ctx, claimed)
	var mp *queue.MalformedPayloadError
	require.ErrorAs(t, err, &mp)
}

func TestMetadata_DerivesDescriptionFromFirstParagraph(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	body := "<h1>Best HELOC Rates</h1><p>Compare current home equity line of credit rates across major lenders.</p>"
	payload, _ := json.Marshal(SEOReport{Title: "fallback", Body: body, WordCount: 12, HeadingCount: 1, HasH1: true})
	_, err := f.jobs.Enqueue(ctx, queue.EnqueueParams{Type: queue.TypeMetadata, Payload: payload})
	require.NoError(t, err)

	claimed, err := f.jobs.ClaimNext(ctx, "w-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, f.dispatcher.Dispatch(ctx, claimed))

	stored, err := f.jobs.GetByID(ctx, claimed.ID)
	require.NoError(t, err)

	var meta PageMetadata
	require.NoError(t, json.Unmarshal(stored.Result, &meta))
	assert.Equal(t, "Best HELOC Rates", meta.Title, "h1 wins over payload title")
	assert.Equal(t, "best-heloc-rates", meta.Slug)
	assert.Equal(t, "Compare current home equity line of credit rates across major lenders.", meta.Description)
}

// flakyReviewStore injects transient storage failures into the
// editorial handoff.
type flakyReviewStore struct {
	review.Store
	applyErr error
}

func (s *flakyReviewStore) Apply(ctx context.Context, t review.Transition) error {
	if s.applyErr != nil {
		return s.applyErr
	}
	return s.Store.Apply(ctx, t)
}

func TestDispatch_DeployHandoffFailureLeavesJobRetryable(t *testing.T) {
	ctx := context.Background()

	jobs := queue.NewMemoryStore()
	articles := content.NewMemoryStore()
	store := &flakyReviewStore{Store: review.NewMemoryStore(articles)}
	log := logger.NewDefault()
	reviews := review.NewService(articles, store, review.NewResolver(nil, nil), log.Logger)
	d := NewDispatcher(jobs, reviews, log.Logger)
	NewStages(StaticGenerator{}, articles, jobs, log.Logger).RegisterAll(d)

	a := &content.Article{
		ID:          uuid.New().String(),
		SiteID:      "site-1",
		Title:       "Best HELOC Rates",
		Slug:        "best-heloc-rates",
		RiskLevel:   content.RiskLow,
		ContentType: content.TypeArticle,
		Status:      content.StatusGenerating,
	}
	require.NoError(t, articles.Create(ctx, a))

	_, err := jobs.Enqueue(ctx, queue.EnqueueParams{
		Type:        queue.TypeDeploy,
		SiteID:      a.SiteID,
		ArticleID:   a.ID,
		Payload:     json.RawMessage(`{"slug":"best-heloc-rates"}`),
		MaxAttempts: 3,
	})
	require.NoError(t, err)

	store.applyErr = errors.New("read tcp 10.0.0.5:5432: connection reset by peer")

	claimed, err := jobs.ClaimNext(ctx, "w-1", time.Minute)
	require.NoError(t, err)
	err = d.Dispatch(ctx, claimed)
	require.Error(t, err)
	assert.True(t, queue.Retryable(err))
	require.NoError(t, jobs.Fail(ctx, claimed.ID, err.Error(), 0))

	got, err := articles.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, content.StatusGenerating, got.Status)

	stored, err := jobs.GetByID(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusPending, stored.Status, "deploy stays in the queue for redelivery")

	// Storage recovers; the redelivered deploy finishes the handoff.
	store.applyErr = nil

	claimed, err = jobs.ClaimNext(ctx, "w-2", time.Minute)
	require.NoError(t, err)
	require.NoError(t, d.Dispatch(ctx, claimed))

	got, err = articles.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, content.StatusDraft, got.Status)

	stored, err = jobs.GetByID(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCompleted, stored.Status)
}

func TestDispatch_RedeliveredDeployAfterAdvanceCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seedArticle(t, content.RiskLow)

	// A prior delivery already handed the article over.
	_, err := f.reviews.CompletePipeline(ctx, a.ID)
	require.NoError(t, err)

	_, err = f.jobs.Enqueue(ctx, queue.EnqueueParams{
		Type:        queue.TypeDeploy,
		SiteID:      a.SiteID,
		ArticleID:   a.ID,
		Payload:     json.RawMessage(`{"slug":"best-heloc-rates"}`),
		MaxAttempts: 3,
	})
	require.NoError(t, err)

	claimed, err := f.jobs.ClaimNext(ctx, "w-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, f.dispatcher.Dispatch(ctx, claimed))

	stored, err := f.jobs.GetByID(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCompleted, stored.Status)

	got, err := f.articles.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, content.StatusDraft, got.Status)
}
