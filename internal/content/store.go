package content

import (
	"context"
)

// Store persists articles. UpdateStatus is compare-and-swap: the sole
// write path for publication status, so competing editorial transitions
// serialize on the stored state.
type Store interface {
	Create(ctx context.Context, a *Article) error
	GetByID(ctx context.Context, articleID string) (*Article, error)

	// UpdateStatus moves the article from exactly `from` to `to`,
	// returning ErrStatusConflict when the stored status is not `from`.
	UpdateStatus(ctx context.Context, articleID string, from, to Status) error

	// UpdateBody replaces the body (and recomputed fingerprint) while
	// the article is still being generated or revised.
	UpdateBody(ctx context.Context, articleID, title, body string) error

	// BumpRevision increments the revision counter. Called on rejection
	// so stale QA results and signoffs no longer gate approval.
	BumpRevision(ctx context.Context, articleID string) error

	// MarkPublished stamps published_at.
	MarkPublished(ctx context.Context, articleID string) error
}
