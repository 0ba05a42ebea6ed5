package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/a1davida1/DomainEmpire-sub003/internal/content"
	"github.com/a1davida1/DomainEmpire-sub003/internal/queue"
)

// Stages carries the shared dependencies of the writing-stage handlers.
type Stages struct {
	gen      Generator
	articles content.Store
	jobs     queue.Store
	logger   *slog.Logger
}

func NewStages(gen Generator, articles content.Store, jobs queue.Store, logger *slog.Logger) *Stages {
	return &Stages{gen: gen, articles: articles, jobs: jobs, logger: logger}
}

// RegisterAll binds every pipeline and maintenance handler onto d.
func (s *Stages) RegisterAll(d *Dispatcher) {
	d.Register(queue.TypeKeywordResearch, HandlerFunc(s.KeywordResearch))
	d.Register(queue.TypeOutline, HandlerFunc(s.OutlineStage))
	d.Register(queue.TypeDraft, HandlerFunc(s.DraftStage))
	d.Register(queue.TypeHumanize, HandlerFunc(s.HumanizeStage))
	d.Register(queue.TypeSEOOptimize, HandlerFunc(s.SEOOptimizeStage))
	d.Register(queue.TypeMetadata, HandlerFunc(s.MetadataStage))
	d.Register(queue.TypeDeploy, HandlerFunc(s.DeployStage))
	d.Register(queue.TypeBulkSeed, HandlerFunc(s.BulkSeed))
	d.Register(queue.TypeAnalyticsFetch, HandlerFunc(s.AnalyticsFetch))
	d.Register(queue.TypeResearch, HandlerFunc(s.Research))
	d.Register(queue.TypeEvaluate, HandlerFunc(s.Evaluate))
	d.Register(queue.TypeContentRefresh, HandlerFunc(s.ContentRefresh))
	d.Register(queue.TypeExternalSignal, HandlerFunc(s.ExternalSignalFetch))
	d.Register(queue.TypeBacklinkCheck, HandlerFunc(s.BacklinkCheck))
	d.Register(queue.TypeRenewalCheck, HandlerFunc(s.RenewalCheck))
	d.Register(queue.TypeDatasetCheck, HandlerFunc(s.DatasetCheck))
}

func decodePayload[T any](job *queue.Job, into *T) error {
	if len(job.Payload) == 0 {
		return &queue.MalformedPayloadError{JobType: job.Type, Err: fmt.Errorf("empty payload")}
	}
	if err := json.Unmarshal(job.Payload, into); err != nil {
		return &queue.MalformedPayloadError{JobType: job.Type, Err: err}
	}
	return nil
}

// --- writing stages ---

// KeywordResearchPayload seeds a new article around a primary keyword.
type KeywordResearchPayload struct {
	Topic       string              `json:"topic"`
	Keywords    []string            `json:"keywords"`
	ContentType content.ContentType `json:"content_type"`
	RiskLevel   content.RiskLevel   `json:"risk_level"`
}

// KeywordResearch creates the article shell in generating state so the
// rest of the chain has a content item to write into.
func (s *Stages) KeywordResearch(ctx context.Context, job *queue.Job) (*StageResult, error) {
	var p KeywordResearchPayload
	if err := decodePayload(job, &p); err != nil {
		return nil, err
	}
	if p.Topic == "" {
		return nil, &queue.MalformedPayloadError{JobType: job.Type, Err: fmt.Errorf("topic is required")}
	}
	if p.ContentType == "" {
		p.ContentType = content.TypeArticle
	}
	if p.RiskLevel == "" {
		p.RiskLevel = content.RiskNone
	}
	if !p.ContentType.Valid() || !p.RiskLevel.Valid() {
		return nil, &queue.MalformedPayloadError{
			JobType: job.Type,
			Err:     fmt.Errorf("invalid content_type %q or risk_level %q", p.ContentType, p.RiskLevel),
		}
	}

	article := &content.Article{
		ID:          uuid.New().String(),
		SiteID:      job.SiteID,
		Title:       p.Topic,
		Slug:        slugify(p.Topic),
		RiskLevel:   p.RiskLevel,
		ContentType: p.ContentType,
		Status:      content.StatusGenerating,
	}
	if err := s.articles.Create(ctx, article); err != nil {
		return nil, err
	}

	result, _ := json.Marshal(OutlinePayload{Topic: p.Topic, Keywords: p.Keywords})
	return &StageResult{Result: result, ArticleID: article.ID}, nil
}

// OutlinePayload is both the outline stage's input and the
// keyword-research stage's output.
type OutlinePayload struct {
	Topic    string   `json:"topic"`
	Keywords []string `json:"keywords,omitempty"`
}

func (s *Stages) OutlineStage(ctx context.Context, job *queue.Job) (*StageResult, error) {
	var p OutlinePayload
	if err := decodePayload(job, &p); err != nil {
		return nil, err
	}
	if p.Topic == "" {
		return nil, &queue.MalformedPayloadError{JobType: job.Type, Err: fmt.Errorf("topic is required")}
	}

	outline, err := s.gen.Outline(ctx, p.Topic, p.Keywords)
	if err != nil {
		return nil, err
	}

	result, err := json.Marshal(outline)
	if err != nil {
		return nil, err
	}
	return &StageResult{Result: result}, nil
}

func (s *Stages) DraftStage(ctx context.Context, job *queue.Job) (*StageResult, error) {
	var outline Outline
	if err := decodePayload(job, &outline); err != nil {
		return nil, err
	}
	if outline.Title == "" || len(outline.Sections) == 0 {
		return nil, &queue.MalformedPayloadError{JobType: job.Type, Err: fmt.Errorf("outline needs a title and sections")}
	}

	body, err := s.gen.Draft(ctx, &outline)
	if err != nil {
		return nil, err
	}
	if err := s.articles.UpdateBody(ctx, job.ArticleID, outline.Title, body); err != nil {
		return nil, err
	}

	result, _ := json.Marshal(bodyPayload{Title: outline.Title, Body: body})
	return &StageResult{Result: result}, nil
}

type bodyPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (s *Stages) HumanizeStage(ctx context.Context, job *queue.Job) (*StageResult, error) {
	var p bodyPayload
	if err := decodePayload(job, &p); err != nil {
		return nil, err
	}
	if p.Body == "" {
		return nil, &queue.MalformedPayloadError{JobType: job.Type, Err: fmt.Errorf("body is required")}
	}

	rewritten, err := s.gen.Humanize(ctx, p.Body)
	if err != nil {
		return nil, err
	}
	if err := s.articles.UpdateBody(ctx, job.ArticleID, p.Title, rewritten); err != nil {
		return nil, err
	}

	result, _ := json.Marshal(bodyPayload{Title: p.Title, Body: rewritten})
	return &StageResult{Result: result}, nil
}

// SEOReport is the seo-optimize stage's structural audit of the body.
type SEOReport struct {
	Title        string `json:"title"`
	Body         string `json:"body"`
	WordCount    int    `json:"word_count"`
	HeadingCount int    `json:"heading_count"`
	HasH1        bool   `json:"has_h1"`
}

// SEOOptimizeStage parses the drafted HTML and records its structural
// shape. A body with no headings at all is malformed output from an
// earlier stage and is not worth retrying.
func (s *Stages) SEOOptimizeStage(_ context.Context, job *queue.Job) (*StageResult, error) {
	var p bodyPayload
	if err := decodePayload(job, &p); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.Body))
	if err != nil {
		return nil, &queue.MalformedPayloadError{JobType: job.Type, Err: fmt.Errorf("body is not parseable HTML: %w", err)}
	}

	report := SEOReport{
		Title:        p.Title,
		Body:         p.Body,
		WordCount:    len(strings.Fields(doc.Text())),
		HeadingCount: doc.Find("h1,h2,h3").Length(),
		HasH1:        doc.Find("h1").Length() > 0,
	}
	if report.HeadingCount == 0 {
		return nil, &queue.MalformedPayloadError{JobType: job.Type, Err: fmt.Errorf("body has no headings")}
	}

	result, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}
	return &StageResult{Result: result}, nil
}

// PageMetadata is the metadata stage's output: what the deploy stage
// publishes alongside the body.
type PageMetadata struct {
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	WordCount   int    `json:"word_count"`
}

// MetadataStage derives the page title, slug, and meta description from
// the optimized body.
func (s *Stages) MetadataStage(_ context.Context, job *queue.Job) (*StageResult, error) {
	var report SEOReport
	if err := decodePayload(job, &report); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(report.Body))
	if err != nil {
		return nil, &queue.MalformedPayloadError{JobType: job.Type, Err: fmt.Errorf("body is not parseable HTML: %w", err)}
	}

	title := report.Title
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		title = h1
	}

	description := strings.TrimSpace(doc.Find("p").First().Text())
	if len(description) > 160 {
		cut := description[:160]
		if idx := strings.LastIndex(cut, " "); idx > 0 {
			cut = cut[:idx]
		}
		description = cut
	}

	meta := PageMetadata{
		Title:       title,
		Slug:        slugify(title),
		Description: description,
		WordCount:   report.WordCount,
	}

	result, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	return &StageResult{Result: result}, nil
}

// DeployStage records the publication target. The actual file push is
// the static-site builder's concern; success here means the article is
// ready for editorial review.
func (s *Stages) DeployStage(_ context.Context, job *queue.Job) (*StageResult, error) {
	var meta PageMetadata
	if err := decodePayload(job, &meta); err != nil {
		return nil, err
	}
	if meta.Slug == "" {
		return nil, &queue.MalformedPayloadError{JobType: job.Type, Err: fmt.Errorf("slug is required")}
	}

	result, _ := json.Marshal(map[string]any{
		"path":        "/" + meta.Slug,
		"deployed_at": time.Now().UTC().Format(time.RFC3339),
	})
	return &StageResult{Result: result}, nil
}

// --- maintenance and seeding jobs ---

// BulkSeedPayload is one externally-chunked batch of keywords to turn
// into pipelines. The caller owns batch sizing; this handler only
// consumes the items and reports each one's outcome.
type BulkSeedPayload struct {
	SiteID string         `json:"site_id"`
	Items  []BulkSeedItem `json:"items"`
}

type BulkSeedItem struct {
	KeywordID   string              `json:"keyword_id"`
	Topic       string              `json:"topic"`
	Keywords    []string            `json:"keywords,omitempty"`
	ContentType content.ContentType `json:"content_type,omitempty"`
	RiskLevel   content.RiskLevel   `json:"risk_level,omitempty"`
	Priority    int                 `json:"priority,omitempty"`
}

// BulkSeedItemOutcome reports what happened to one batch item.
type BulkSeedItemOutcome struct {
	KeywordID string `json:"keyword_id"`
	Outcome   string `json:"outcome"` // ready | success | failed | skipped
	JobID     string `json:"job_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// BulkSeed fans one batch out into keyword-research jobs, one per item.
// Item failures do not abort the batch; every item gets an outcome.
func (s *Stages) BulkSeed(ctx context.Context, job *queue.Job) (*StageResult, error) {
	var p BulkSeedPayload
	if err := decodePayload(job, &p); err != nil {
		return nil, err
	}
	if len(p.Items) == 0 {
		return nil, &queue.MalformedPayloadError{JobType: job.Type, Err: fmt.Errorf("batch has no items")}
	}

	siteID := p.SiteID
	if siteID == "" {
		siteID = job.SiteID
	}

	outcomes := make([]BulkSeedItemOutcome, 0, len(p.Items))
	for _, item := range p.Items {
		if item.Topic == "" {
			outcomes = append(outcomes, BulkSeedItemOutcome{
				KeywordID: item.KeywordID,
				Outcome:   "skipped",
				Reason:    "missing topic",
			})
			continue
		}

		payload, _ := json.Marshal(KeywordResearchPayload{
			Topic:       item.Topic,
			Keywords:    item.Keywords,
			ContentType: item.ContentType,
			RiskLevel:   item.RiskLevel,
		})
		seeded, err := s.jobs.Enqueue(ctx, queue.EnqueueParams{
			Type:      queue.TypeKeywordResearch,
			SiteID:    siteID,
			KeywordID: item.KeywordID,
			Payload:   payload,
			Priority:  item.Priority,
		})
		if err != nil {
			outcomes = append(outcomes, BulkSeedItemOutcome{
				KeywordID: item.KeywordID,
				Outcome:   "failed",
				Reason:    err.Error(),
			})
			continue
		}
		outcomes = append(outcomes, BulkSeedItemOutcome{
			KeywordID: item.KeywordID,
			Outcome:   "ready",
			JobID:     seeded.ID,
		})
	}

	s.logger.Info("Bulk seed batch processed",
		slog.String("job_id", job.ID),
		slog.String("site_id", siteID),
		slog.Int("items", len(p.Items)),
	)

	result, err := json.Marshal(map[string]any{"items": outcomes})
	if err != nil {
		return nil, err
	}
	return &StageResult{Result: result}, nil
}

// sitePayload is the common shape of the periodic per-site checks.
type sitePayload struct {
	SiteID string `json:"site_id"`
}

func (s *Stages) sitePayloadOf(job *queue.Job) (string, error) {
	var p sitePayload
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return "", &queue.MalformedPayloadError{JobType: job.Type, Err: err}
		}
	}
	if p.SiteID == "" {
		p.SiteID = job.SiteID
	}
	if p.SiteID == "" {
		return "", &queue.MalformedPayloadError{JobType: job.Type, Err: fmt.Errorf("site_id is required")}
	}
	return p.SiteID, nil
}

func (s *Stages) checkResult(job *queue.Job, siteID, check string) (*StageResult, error) {
	result, err := json.Marshal(map[string]string{
		"site_id":    siteID,
		"check":      check,
		"checked_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Maintenance check recorded",
		slog.String("job_id", job.ID),
		slog.String("check", check),
		slog.String("site_id", siteID),
	)
	return &StageResult{Result: result}, nil
}

// AnalyticsFetch pulls traffic numbers for a site. The upstream fetch
// lives behind the external orchestration layer; this handler records
// the fetch-cycle marker the evaluate job reads.
func (s *Stages) AnalyticsFetch(_ context.Context, job *queue.Job) (*StageResult, error) {
	siteID, err := s.sitePayloadOf(job)
	if err != nil {
		return nil, err
	}
	return s.checkResult(job, siteID, "analytics_fetch")
}

func (s *Stages) ExternalSignalFetch(_ context.Context, job *queue.Job) (*StageResult, error) {
	siteID, err := s.sitePayloadOf(job)
	if err != nil {
		return nil, err
	}
	return s.checkResult(job, siteID, "external_signal_fetch")
}

func (s *Stages) BacklinkCheck(_ context.Context, job *queue.Job) (*StageResult, error) {
	siteID, err := s.sitePayloadOf(job)
	if err != nil {
		return nil, err
	}
	return s.checkResult(job, siteID, "backlink_check")
}

func (s *Stages) RenewalCheck(_ context.Context, job *queue.Job) (*StageResult, error) {
	siteID, err := s.sitePayloadOf(job)
	if err != nil {
		return nil, err
	}
	return s.checkResult(job, siteID, "renewal_check")
}

func (s *Stages) DatasetCheck(_ context.Context, job *queue.Job) (*StageResult, error) {
	siteID, err := s.sitePayloadOf(job)
	if err != nil {
		return nil, err
	}
	return s.checkResult(job, siteID, "dataset_check")
}

// Research gathers source material for a topic without creating an
// article. Its result feeds the evaluate job.
func (s *Stages) Research(ctx context.Context, job *queue.Job) (*StageResult, error) {
	var p OutlinePayload
	if err := decodePayload(job, &p); err != nil {
		return nil, err
	}
	if p.Topic == "" {
		return nil, &queue.MalformedPayloadError{JobType: job.Type, Err: fmt.Errorf("topic is required")}
	}

	outline, err := s.gen.Outline(ctx, p.Topic, p.Keywords)
	if err != nil {
		return nil, err
	}

	result, err := json.Marshal(map[string]any{
		"topic":    p.Topic,
		"sections": outline.Sections,
	})
	if err != nil {
		return nil, err
	}
	return &StageResult{Result: result}, nil
}

// EvaluatePayload scores a candidate topic for pipeline admission.
type EvaluatePayload struct {
	Topic        string  `json:"topic"`
	SearchVolume int     `json:"search_volume"`
	Difficulty   float64 `json:"difficulty"`
}

// Evaluate scores search volume against ranking difficulty. Deliberate
// simple ratio; the threshold lives with the caller.
func (s *Stages) Evaluate(_ context.Context, job *queue.Job) (*StageResult, error) {
	var p EvaluatePayload
	if err := decodePayload(job, &p); err != nil {
		return nil, err
	}
	if p.Topic == "" {
		return nil, &queue.MalformedPayloadError{JobType: job.Type, Err: fmt.Errorf("topic is required")}
	}

	score := 0.0
	if p.Difficulty > 0 {
		score = float64(p.SearchVolume) / p.Difficulty
	}

	result, err := json.Marshal(map[string]any{
		"topic": p.Topic,
		"score": score,
	})
	if err != nil {
		return nil, err
	}
	return &StageResult{Result: result}, nil
}

// ContentRefreshPayload re-runs the writing chain for a stale article.
type ContentRefreshPayload struct {
	Topic    string   `json:"topic"`
	Keywords []string `json:"keywords,omitempty"`
}

// ContentRefresh restarts an existing article's pipeline from the
// outline stage so the body is regenerated against current sources.
func (s *Stages) ContentRefresh(ctx context.Context, job *queue.Job) (*StageResult, error) {
	var p ContentRefreshPayload
	if err := decodePayload(job, &p); err != nil {
		return nil, err
	}
	if job.ArticleID == "" {
		return nil, &queue.MalformedPayloadError{JobType: job.Type, Err: fmt.Errorf("article_id is required")}
	}
	if p.Topic == "" {
		article, err := s.articles.GetByID(ctx, job.ArticleID)
		if err != nil {
			return nil, err
		}
		p.Topic = article.Title
	}

	payload, _ := json.Marshal(OutlinePayload{Topic: p.Topic, Keywords: p.Keywords})
	refresh, err := s.jobs.Enqueue(ctx, queue.EnqueueParams{
		Type:      queue.TypeOutline,
		SiteID:    job.SiteID,
		ArticleID: job.ArticleID,
		Payload:   payload,
		Priority:  job.Priority,
	})
	if err != nil {
		return nil, err
	}

	result, _ := json.Marshal(map[string]string{"outline_job_id": refresh.ID})
	return &StageResult{Result: result}, nil
}

func slugify(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
