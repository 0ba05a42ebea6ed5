package review

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/a1davida1/DomainEmpire-sub003/internal/content"
)

// ChecklistItem is one verification step in a template.
type ChecklistItem struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
	// Required items must be present and checked for submission to
	// succeed.
	Required bool `yaml:"required"`
	// RequiresEvidence items, when checked, must carry a test-run
	// identifier and harness version.
	RequiresEvidence bool `yaml:"requires_evidence"`
}

// ChecklistTemplate is a configurable set of review items for a content
// type and risk level.
type ChecklistTemplate struct {
	ID          string              `yaml:"id"`
	Name        string              `yaml:"name"`
	ContentType content.ContentType `yaml:"content_type"`
	RiskLevel   content.RiskLevel   `yaml:"risk_level"`
	Items       []ChecklistItem     `yaml:"items"`
}

// ItemResult is a reviewer's answer for one checklist item.
type ItemResult struct {
	Checked bool   `json:"checked"`
	Notes   string `json:"notes,omitempty"`
}

// Evidence backs a checked item that mandates it.
type Evidence struct {
	TestRunID      string `json:"test_run_id"`
	HarnessVersion string `json:"harness_version"`
}

// LoadTemplates reads checklist templates from a YAML file.
func LoadTemplates(path string) ([]ChecklistTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checklist templates: %w", err)
	}

	var doc struct {
		Templates []ChecklistTemplate `yaml:"templates"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse checklist templates: %w", err)
	}

	return doc.Templates, nil
}

// QAEngine validates and persists checklist submissions.
type QAEngine struct {
	templates map[string]ChecklistTemplate
	store     Store
	articles  content.Store
	logger    *slog.Logger
}

func NewQAEngine(templates []ChecklistTemplate, store Store, articles content.Store, logger *slog.Logger) *QAEngine {
	byID := make(map[string]ChecklistTemplate, len(templates))
	for _, t := range templates {
		byID[t.ID] = t
	}
	return &QAEngine{templates: byID, store: store, articles: articles, logger: logger}
}

// Submit validates a checklist against its template and, on success,
// appends a new result row for the article's active revision together
// with a qa_completed ledger event. Validation failure persists nothing.
func (e *QAEngine) Submit(ctx context.Context, articleID, templateID string, reviewer Actor, items map[string]ItemResult, evidence map[string]Evidence) (*ChecklistResult, error) {
	tmpl, ok := e.templates[templateID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, templateID)
	}

	article, err := e.articles.GetByID(ctx, articleID)
	if err != nil {
		return nil, err
	}

	verr := &QAValidationError{}
	allPassed := true
	for _, item := range tmpl.Items {
		res, present := items[item.ID]
		if item.Required {
			if !present || !res.Checked {
				verr.MissingItems = append(verr.MissingItems, item.ID)
				allPassed = false
			}
		}
		if item.RequiresEvidence && present && res.Checked {
			ev, has := evidence[item.ID]
			if !has || ev.TestRunID == "" || ev.HarnessVersion == "" {
				verr.MissingEvidence = append(verr.MissingEvidence, item.ID)
			}
		}
	}
	if len(verr.MissingItems) > 0 || len(verr.MissingEvidence) > 0 {
		return nil, verr
	}

	result := &ChecklistResult{
		ID:          uuid.New().String(),
		ArticleID:   articleID,
		TemplateID:  templateID,
		ReviewerID:  reviewer.ID,
		Revision:    article.Revision,
		Items:       items,
		Evidence:    evidence,
		AllPassed:   allPassed,
		CompletedAt: time.Now().UTC(),
	}

	if err := e.store.SaveChecklistResult(ctx, result); err != nil {
		return nil, err
	}

	event := &Event{
		ID:        uuid.New().String(),
		ArticleID: articleID,
		Revision:  article.Revision,
		ActorID:   reviewer.ID,
		ActorRole: reviewer.Role,
		Type:      EventQACompleted,
		Rationale: fmt.Sprintf("checklist %s completed, all_passed=%t", templateID, allPassed),
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.AppendEvent(ctx, event); err != nil {
		return nil, err
	}

	e.logger.Info("QA checklist submitted",
		slog.String("article_id", articleID),
		slog.String("template_id", templateID),
		slog.String("reviewer", reviewer.ID),
		slog.Bool("all_passed", allPassed),
	)

	return result, nil
}
