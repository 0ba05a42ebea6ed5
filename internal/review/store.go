package review

import (
	"context"
	"time"

	"github.com/a1davida1/DomainEmpire-sub003/internal/content"
)

// Transition bundles a status change with the single audit event that
// must accompany it. Apply commits both or neither.
type Transition struct {
	ArticleID      string
	From, To       content.Status
	Event          Event
	BumpRevision   bool
	StampPublished bool
}

// ChecklistResult is one completed QA pass. Results accumulate across
// revision cycles; only the latest result for the active revision gates
// approval.
type ChecklistResult struct {
	ID          string                `db:"result_id" json:"result_id"`
	ArticleID   string                `db:"article_id" json:"article_id"`
	TemplateID  string                `db:"template_id" json:"template_id"`
	ReviewerID  string                `db:"reviewer_id" json:"reviewer_id"`
	Revision    int                   `db:"revision" json:"revision"`
	Items       map[string]ItemResult `json:"items"`
	Evidence    map[string]Evidence   `json:"evidence,omitempty"`
	AllPassed   bool                  `db:"all_passed" json:"all_passed"`
	CompletedAt time.Time             `db:"completed_at" json:"completed_at"`
}

// Store persists the review ledger and checklist history.
type Store interface {
	// Apply commits the article status compare-and-swap together with
	// exactly one appended event: no partial application is ever visible
	// to readers. Returns content.ErrStatusConflict when the article is
	// no longer in the expected From state.
	Apply(ctx context.Context, t Transition) error

	// AppendEvent records a ledger entry with no status change
	// (comments, qa_completed, expert_signed).
	AppendEvent(ctx context.Context, e *Event) error

	ListEvents(ctx context.Context, articleID string, f EventFilter) ([]Event, error)

	// HasEvent reports whether an event of the given type exists for the
	// article at the given revision.
	HasEvent(ctx context.Context, articleID string, revision int, t EventType) (bool, error)

	SaveChecklistResult(ctx context.Context, r *ChecklistResult) error

	// LatestChecklistResult returns the most recent result tied to the
	// given revision, or nil when none exists.
	LatestChecklistResult(ctx context.Context, articleID string, revision int) (*ChecklistResult, error)
}
