package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/a1davida1/DomainEmpire-sub003/internal/content"
)

// Actor identifies who performs an editorial action.
type Actor struct {
	ID   string
	Role Role
}

// SystemActor performs automatic transitions driven by the pipeline.
var SystemActor = Actor{ID: "system", Role: RoleAdmin}

// ApprovalDetails is the structured rationale supplied with an approval.
type ApprovalDetails struct {
	Summary           string   `json:"summary"`
	EvidenceQuality   string   `json:"evidence_quality,omitempty"`
	RiskLevel         string   `json:"risk_level,omitempty"`
	ConfidenceScore   float64  `json:"confidence_score,omitempty"`
	IssueCodes        []string `json:"issue_codes,omitempty"`
	ChecklistVerified bool     `json:"checklist_verified"`
	SourcesVerified   bool     `json:"sources_verified"`
}

// Service is the editorial state machine. Every successful transition
// appends exactly one ledger event atomically with the status change;
// every refused transition returns a typed error naming the unmet guard.
type Service struct {
	articles content.Store
	store    Store
	resolver *Resolver
	logger   *slog.Logger
}

func NewService(articles content.Store, store Store, resolver *Resolver, logger *slog.Logger) *Service {
	return &Service{articles: articles, store: store, resolver: resolver, logger: logger}
}

// SubmitForReview moves draft → review. Any editor may submit.
func (s *Service) SubmitForReview(ctx context.Context, articleID string, actor Actor) (*content.Article, error) {
	article, err := s.articles.GetByID(ctx, articleID)
	if err != nil {
		return nil, err
	}

	if !actor.Role.AtLeast(RoleEditor) {
		return nil, &PolicyViolationError{
			Guard:  "required_role",
			Detail: fmt.Sprintf("submitting for review requires at least %s, actor is %s", RoleEditor, actor.Role),
		}
	}
	if article.Status != content.StatusDraft {
		return nil, &PolicyViolationError{
			Guard:  "status",
			Detail: fmt.Sprintf("cannot submit from %s, must be %s", article.Status, content.StatusDraft),
		}
	}

	err = s.apply(ctx, Transition{
		ArticleID: articleID,
		From:      content.StatusDraft,
		To:        content.StatusReview,
		Event:     s.newEvent(article, actor, EventSubmitted, "", ""),
	})
	if err != nil {
		return nil, err
	}

	return s.articles.GetByID(ctx, articleID)
}

// Approve moves review → approved after every policy guard holds: actor
// role, QA checklist for the active revision, and expert signoff.
func (s *Service) Approve(ctx context.Context, articleID string, actor Actor, rationale string, details ApprovalDetails) (*content.Article, error) {
	article, err := s.articles.GetByID(ctx, articleID)
	if err != nil {
		return nil, err
	}

	if article.Status != content.StatusReview {
		return nil, &PolicyViolationError{
			Guard:  "status",
			Detail: fmt.Sprintf("cannot approve from %s, must be %s", article.Status, content.StatusReview),
		}
	}

	policy := s.resolver.Resolve(article.SiteID, article.ContentType, article.RiskLevel)

	if !actor.Role.AtLeast(policy.RequiredRole) {
		return nil, &PolicyViolationError{
			Guard:  "required_role",
			Detail: fmt.Sprintf("approval requires at least %s, actor is %s", policy.RequiredRole, actor.Role),
		}
	}

	if policy.RequireQAChecklist {
		result, err := s.store.LatestChecklistResult(ctx, articleID, article.Revision)
		if err != nil {
			return nil, err
		}
		if result == nil {
			return nil, &PolicyViolationError{
				Guard:  "qa_checklist",
				Detail: fmt.Sprintf("no QA checklist result for revision %d", article.Revision),
			}
		}
		if !result.AllPassed {
			return nil, &PolicyViolationError{
				Guard:  "qa_checklist",
				Detail: fmt.Sprintf("latest QA checklist for revision %d did not pass", article.Revision),
			}
		}
	}

	if policy.RequireExpertSignoff {
		signed, err := s.store.HasEvent(ctx, articleID, article.Revision, EventExpertSigned)
		if err != nil {
			return nil, err
		}
		if !signed {
			return nil, &PolicyViolationError{
				Guard:  "expert_signoff",
				Detail: fmt.Sprintf("no expert signoff recorded for revision %d", article.Revision),
			}
		}
	}

	event := s.newEvent(article, actor, EventApproved, "", rationale)
	if meta, err := json.Marshal(details); err == nil {
		event.Metadata = meta
	}

	err = s.apply(ctx, Transition{
		ArticleID: articleID,
		From:      content.StatusReview,
		To:        content.StatusApproved,
		Event:     event,
	})
	if err != nil {
		return nil, err
	}

	return s.articles.GetByID(ctx, articleID)
}

// Reject moves review → draft and bumps the revision so prior QA results
// and signoffs no longer gate the next pass. A rationale is mandatory.
func (s *Service) Reject(ctx context.Context, articleID string, actor Actor, rationale string) (*content.Article, error) {
	if rationale == "" {
		return nil, ErrRationaleRequired
	}

	article, err := s.articles.GetByID(ctx, articleID)
	if err != nil {
		return nil, err
	}

	if !actor.Role.AtLeast(RoleReviewer) {
		return nil, &PolicyViolationError{
			Guard:  "required_role",
			Detail: fmt.Sprintf("rejection requires at least %s, actor is %s", RoleReviewer, actor.Role),
		}
	}
	if article.Status != content.StatusReview {
		return nil, &PolicyViolationError{
			Guard:  "status",
			Detail: fmt.Sprintf("cannot reject from %s, must be %s", article.Status, content.StatusReview),
		}
	}

	err = s.apply(ctx, Transition{
		ArticleID:    articleID,
		From:         content.StatusReview,
		To:           content.StatusDraft,
		Event:        s.newEvent(article, actor, EventRejected, "", rationale),
		BumpRevision: true,
	})
	if err != nil {
		return nil, err
	}

	return s.articles.GetByID(ctx, articleID)
}

// Publish moves approved → published. When auto is set the call is the
// pipeline's automatic completion path and requires policy.AutoPublish;
// otherwise it is an explicit human action.
func (s *Service) Publish(ctx context.Context, articleID string, actor Actor, auto bool) (*content.Article, error) {
	article, err := s.articles.GetByID(ctx, articleID)
	if err != nil {
		return nil, err
	}

	if article.Status != content.StatusApproved {
		return nil, &PolicyViolationError{
			Guard:  "status",
			Detail: fmt.Sprintf("cannot publish from %s, must be %s", article.Status, content.StatusApproved),
		}
	}

	policy := s.resolver.Resolve(article.SiteID, article.ContentType, article.RiskLevel)
	if auto && !policy.AutoPublish {
		return nil, &PolicyViolationError{
			Guard:  "auto_publish",
			Detail: "policy does not permit automatic publication",
		}
	}
	if !auto && !actor.Role.AtLeast(policy.RequiredRole) {
		return nil, &PolicyViolationError{
			Guard:  "required_role",
			Detail: fmt.Sprintf("publishing requires at least %s, actor is %s", policy.RequiredRole, actor.Role),
		}
	}

	err = s.apply(ctx, Transition{
		ArticleID:      articleID,
		From:           content.StatusApproved,
		To:             content.StatusPublished,
		Event:          s.newEvent(article, actor, EventPublished, "", ""),
		StampPublished: true,
	})
	if err != nil {
		return nil, err
	}

	return s.articles.GetByID(ctx, articleID)
}

// Archive moves any non-generating state → archived. Administrative only.
// Archived items are excluded from rendering but never deleted.
func (s *Service) Archive(ctx context.Context, articleID string, actor Actor, reason string) (*content.Article, error) {
	article, err := s.articles.GetByID(ctx, articleID)
	if err != nil {
		return nil, err
	}

	if !actor.Role.AtLeast(RoleAdmin) {
		return nil, &PolicyViolationError{
			Guard:  "required_role",
			Detail: fmt.Sprintf("archiving requires %s, actor is %s", RoleAdmin, actor.Role),
		}
	}
	if article.Status == content.StatusGenerating || article.Status == content.StatusArchived {
		return nil, &PolicyViolationError{
			Guard:  "status",
			Detail: fmt.Sprintf("cannot archive from %s", article.Status),
		}
	}

	err = s.apply(ctx, Transition{
		ArticleID: articleID,
		From:      article.Status,
		To:        content.StatusArchived,
		Event:     s.newEvent(article, actor, EventArchived, "", reason),
	})
	if err != nil {
		return nil, err
	}

	return s.articles.GetByID(ctx, articleID)
}

// RecordExpertSignoff appends an expert_signed event for the active
// revision. No status change.
func (s *Service) RecordExpertSignoff(ctx context.Context, articleID string, actor Actor, rationale string) error {
	article, err := s.articles.GetByID(ctx, articleID)
	if err != nil {
		return err
	}

	if !actor.Role.AtLeast(RoleReviewer) {
		return &PolicyViolationError{
			Guard:  "required_role",
			Detail: fmt.Sprintf("expert signoff requires at least %s, actor is %s", RoleReviewer, actor.Role),
		}
	}

	event := s.newEvent(article, actor, EventExpertSigned, "", rationale)
	return s.store.AppendEvent(ctx, &event)
}

// Comment appends a comment event. No status change, any role.
func (s *Service) Comment(ctx context.Context, articleID string, actor Actor, text string) error {
	article, err := s.articles.GetByID(ctx, articleID)
	if err != nil {
		return err
	}

	event := s.newEvent(article, actor, EventComment, "", text)
	return s.store.AppendEvent(ctx, &event)
}

// CompletePipeline is called by the dispatcher when the final stage of
// an article's pipeline succeeds: generating → draft, ready for review.
// When the resolved policy allows auto-publish the item is driven on
// through submit/approve/publish by the system actor; any guard that
// still fails leaves the item where the guard stopped it.
func (s *Service) CompletePipeline(ctx context.Context, articleID string) (*content.Article, error) {
	article, err := s.articles.GetByID(ctx, articleID)
	if err != nil {
		return nil, err
	}

	if article.Status != content.StatusGenerating {
		return nil, &PolicyViolationError{
			Guard:  "status",
			Detail: fmt.Sprintf("pipeline completion expects %s, found %s", content.StatusGenerating, article.Status),
		}
	}

	err = s.apply(ctx, Transition{
		ArticleID: articleID,
		From:      content.StatusGenerating,
		To:        content.StatusDraft,
		Event:     s.newEvent(article, SystemActor, EventEdited, "pipeline_complete", "content pipeline finished"),
	})
	if err != nil {
		return nil, err
	}

	policy := s.resolver.Resolve(article.SiteID, article.ContentType, article.RiskLevel)
	if !policy.AutoPublish {
		return s.articles.GetByID(ctx, articleID)
	}

	if _, err := s.SubmitForReview(ctx, articleID, SystemActor); err != nil {
		return nil, err
	}
	if _, err := s.Approve(ctx, articleID, SystemActor, "auto-publish policy", ApprovalDetails{Summary: "automatic approval under auto-publish policy"}); err != nil {
		s.logger.Warn("Auto-publish stopped at approval guard",
			slog.String("article_id", articleID),
			slog.String("reason", err.Error()),
		)
		return s.articles.GetByID(ctx, articleID)
	}
	return s.Publish(ctx, articleID, SystemActor, true)
}

// Events returns the article's ledger, newest first.
func (s *Service) Events(ctx context.Context, articleID string, f EventFilter) ([]Event, error) {
	return s.store.ListEvents(ctx, articleID, f)
}

func (s *Service) apply(ctx context.Context, t Transition) error {
	if err := s.store.Apply(ctx, t); err != nil {
		return err
	}

	s.logger.Info("Editorial transition applied",
		slog.String("article_id", t.ArticleID),
		slog.String("from", string(t.From)),
		slog.String("to", string(t.To)),
		slog.String("event", string(t.Event.Type)),
		slog.String("actor", t.Event.ActorID),
	)

	return nil
}

func (s *Service) newEvent(article *content.Article, actor Actor, t EventType, reasonCode, rationale string) Event {
	return Event{
		ID:         uuid.New().String(),
		ArticleID:  article.ID,
		Revision:   article.Revision,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Type:       t,
		ReasonCode: reasonCode,
		Rationale:  rationale,
		CreatedAt:  time.Now().UTC(),
	}
}
