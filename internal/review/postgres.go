package review

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/a1davida1/DomainEmpire-sub003/internal/content"
)

// PostgresStore persists review events and checklist results. Apply runs
// the status compare-and-swap and the event insert in one transaction.
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewPostgresStore(db *sqlx.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

func (s *PostgresStore) Apply(ctx context.Context, t Transition) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transition: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	update := `UPDATE articles SET status = $1, updated_at = NOW()`
	if t.BumpRevision {
		update += `, revision = revision + 1`
	}
	if t.StampPublished {
		update += `, published_at = NOW()`
	}
	update += ` WHERE article_id = $2 AND status = $3`

	res, err := tx.ExecContext(ctx, update, t.To, t.ArticleID, t.From)
	if err != nil {
		return fmt.Errorf("failed to update article status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM articles WHERE article_id = $1)`, t.ArticleID); err != nil {
			return fmt.Errorf("failed to check article: %w", err)
		}
		if !exists {
			return content.ErrArticleNotFound
		}
		return content.ErrStatusConflict
	}

	if err := insertEvent(ctx, tx, &t.Event); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transition: %w", err)
	}

	return nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e *Event) error {
	return insertEvent(ctx, s.db, e)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertEvent(ctx context.Context, db execer, e *Event) error {
	query := `
		INSERT INTO review_events (
			event_id, article_id, revision, actor_id, actor_role,
			event_type, reason_code, rationale, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var meta interface{}
	if len(e.Metadata) > 0 {
		meta = []byte(e.Metadata)
	}

	_, err := db.ExecContext(ctx, query,
		e.ID, e.ArticleID, e.Revision, e.ActorID, e.ActorRole,
		e.Type, e.ReasonCode, e.Rationale, meta, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append review event: %w", err)
	}

	return nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, articleID string, f EventFilter) ([]Event, error) {
	b := sq.Select("event_id", "article_id", "revision", "actor_id", "actor_role",
		"event_type", "reason_code", "rationale", "metadata", "created_at").
		From("review_events").
		Where(sq.Eq{"article_id": articleID}).
		PlaceholderFormat(sq.Dollar)

	if f.Type != "" {
		b = b.Where(sq.Eq{"event_type": f.Type})
	}
	if f.Revision > 0 {
		b = b.Where(sq.Eq{"revision": f.Revision})
	}

	query, args, err := b.OrderBy("created_at DESC", "event_id DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build event query: %w", err)
	}

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list review events: %w", err)
	}

	events := make([]Event, len(rows))
	for i := range rows {
		events[i] = rows[i].toEvent()
	}
	return events, nil
}

func (s *PostgresStore) HasEvent(ctx context.Context, articleID string, revision int, t EventType) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM review_events
			WHERE article_id = $1 AND revision = $2 AND event_type = $3
		)
	`

	if err := s.db.GetContext(ctx, &exists, query, articleID, revision, t); err != nil {
		return false, fmt.Errorf("failed to check review event: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) SaveChecklistResult(ctx context.Context, r *ChecklistResult) error {
	items, err := json.Marshal(r.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal checklist items: %w", err)
	}
	evidence, err := json.Marshal(r.Evidence)
	if err != nil {
		return fmt.Errorf("failed to marshal checklist evidence: %w", err)
	}

	query := `
		INSERT INTO qa_checklist_results (
			result_id, article_id, template_id, reviewer_id, revision,
			items, evidence, all_passed, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = s.db.ExecContext(ctx, query,
		r.ID, r.ArticleID, r.TemplateID, r.ReviewerID, r.Revision,
		items, evidence, r.AllPassed, r.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save checklist result: %w", err)
	}

	return nil
}

func (s *PostgresStore) LatestChecklistResult(ctx context.Context, articleID string, revision int) (*ChecklistResult, error) {
	query := `
		SELECT result_id, article_id, template_id, reviewer_id, revision,
			items, evidence, all_passed, completed_at
		FROM qa_checklist_results
		WHERE article_id = $1 AND revision = $2
		ORDER BY completed_at DESC
		LIMIT 1
	`

	var row checklistRow
	err := s.db.GetContext(ctx, &row, query, articleID, revision)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get checklist result: %w", err)
	}

	return row.toResult()
}

type eventRow struct {
	EventID    string         `db:"event_id"`
	ArticleID  string         `db:"article_id"`
	Revision   int            `db:"revision"`
	ActorID    string         `db:"actor_id"`
	ActorRole  Role           `db:"actor_role"`
	EventType  EventType      `db:"event_type"`
	ReasonCode sql.NullString `db:"reason_code"`
	Rationale  sql.NullString `db:"rationale"`
	Metadata   []byte         `db:"metadata"`
	CreatedAt  time.Time      `db:"created_at"`
}

func (r *eventRow) toEvent() Event {
	return Event{
		ID:         r.EventID,
		ArticleID:  r.ArticleID,
		Revision:   r.Revision,
		ActorID:    r.ActorID,
		ActorRole:  r.ActorRole,
		Type:       r.EventType,
		ReasonCode: r.ReasonCode.String,
		Rationale:  r.Rationale.String,
		Metadata:   r.Metadata,
		CreatedAt:  r.CreatedAt,
	}
}

type checklistRow struct {
	ResultID    string    `db:"result_id"`
	ArticleID   string    `db:"article_id"`
	TemplateID  string    `db:"template_id"`
	ReviewerID  string    `db:"reviewer_id"`
	Revision    int       `db:"revision"`
	Items       []byte    `db:"items"`
	Evidence    []byte    `db:"evidence"`
	AllPassed   bool      `db:"all_passed"`
	CompletedAt time.Time `db:"completed_at"`
}

func (r *checklistRow) toResult() (*ChecklistResult, error) {
	result := &ChecklistResult{
		ID:          r.ResultID,
		ArticleID:   r.ArticleID,
		TemplateID:  r.TemplateID,
		ReviewerID:  r.ReviewerID,
		Revision:    r.Revision,
		AllPassed:   r.AllPassed,
		CompletedAt: r.CompletedAt,
	}
	if len(r.Items) > 0 {
		if err := json.Unmarshal(r.Items, &result.Items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checklist items: %w", err)
		}
	}
	if len(r.Evidence) > 0 {
		if err := json.Unmarshal(r.Evidence, &result.Evidence); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checklist evidence: %w", err)
		}
	}
	return result, nil
}
