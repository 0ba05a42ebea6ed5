package content

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PostgresStore implements Store on an articles table.
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewPostgresStore(db *sqlx.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

func (s *PostgresStore) Create(ctx context.Context, a *Article) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = StatusGenerating
	}
	if a.Revision == 0 {
		a.Revision = 1
	}

	query := `
		INSERT INTO articles (
			article_id, site_id, title, slug, risk_level, content_type,
			status, body, fingerprint, revision, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.SiteID, a.Title, a.Slug, a.RiskLevel, a.ContentType,
		a.Status, a.Body, a.Fingerprint, a.Revision, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create article: %w", err)
	}

	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, articleID string) (*Article, error) {
	var a Article
	query := `
		SELECT article_id, site_id, title, slug, risk_level, content_type,
			status, body, fingerprint, revision, published_at, created_at, updated_at
		FROM articles
		WHERE article_id = $1
	`

	if err := s.db.GetContext(ctx, &a, query, articleID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrArticleNotFound
		}
		return nil, fmt.Errorf("failed to get article: %w", err)
	}

	return &a, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, articleID string, from, to Status) error {
	query := `
		UPDATE articles SET status = $1, updated_at = NOW()
		WHERE article_id = $2 AND status = $3
	`

	res, err := s.db.ExecContext(ctx, query, to, articleID, from)
	if err != nil {
		return fmt.Errorf("failed to update article status: %w", err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		if _, err := s.GetByID(ctx, articleID); err != nil {
			return err
		}
		return ErrStatusConflict
	}

	s.logger.Info("Article status updated",
		slog.String("article_id", articleID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)

	return nil
}

func (s *PostgresStore) UpdateBody(ctx context.Context, articleID, title, body string) error {
	query := `
		UPDATE articles SET title = $1, body = $2, fingerprint = $3, updated_at = NOW()
		WHERE article_id = $4
	`

	res, err := s.db.ExecContext(ctx, query, title, body, Fingerprint(body), articleID)
	if err != nil {
		return fmt.Errorf("failed to update article body: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrArticleNotFound
	}

	return nil
}

func (s *PostgresStore) BumpRevision(ctx context.Context, articleID string) error {
	query := `UPDATE articles SET revision = revision + 1, updated_at = NOW() WHERE article_id = $1`

	res, err := s.db.ExecContext(ctx, query, articleID)
	if err != nil {
		return fmt.Errorf("failed to bump article revision: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrArticleNotFound
	}

	return nil
}

func (s *PostgresStore) MarkPublished(ctx context.Context, articleID string) error {
	query := `UPDATE articles SET published_at = NOW(), updated_at = NOW() WHERE article_id = $1`

	res, err := s.db.ExecContext(ctx, query, articleID)
	if err != nil {
		return fmt.Errorf("failed to mark article published: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrArticleNotFound
	}

	return nil
}
