package content

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// RiskLevel classifies how much harm inaccurate content could cause
// ("your-money-or-your-life" sensitivity). Higher levels resolve to
// stricter approval policies.
type RiskLevel string

const (
	RiskNone   RiskLevel = "none"
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func (r RiskLevel) Valid() bool {
	switch r {
	case RiskNone, RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// ContentType distinguishes the structural shape of a content item.
type ContentType string

const (
	TypeArticle     ContentType = "article"
	TypeComparison  ContentType = "comparison"
	TypeCalculator  ContentType = "calculator"
	TypeLeadCapture ContentType = "lead_capture"
)

func (c ContentType) Valid() bool {
	switch c {
	case TypeArticle, TypeComparison, TypeCalculator, TypeLeadCapture:
		return true
	}
	return false
}

// Status is the publication state. It only ever changes through the
// editorial state machine; stores expose compare-and-swap updates so a
// direct write cannot bypass a guard.
type Status string

const (
	StatusGenerating Status = "generating"
	StatusDraft      Status = "draft"
	StatusReview     Status = "review"
	StatusApproved   Status = "approved"
	StatusPublished  Status = "published"
	StatusArchived   Status = "archived"
)

// Article is one piece of generated content belonging to a site.
type Article struct {
	ID          string      `db:"article_id" json:"article_id"`
	SiteID      string      `db:"site_id" json:"site_id"`
	Title       string      `db:"title" json:"title"`
	Slug        string      `db:"slug" json:"slug"`
	RiskLevel   RiskLevel   `db:"risk_level" json:"risk_level"`
	ContentType ContentType `db:"content_type" json:"content_type"`
	Status      Status      `db:"status" json:"status"`
	Body        string      `db:"body" json:"body,omitempty"`
	Fingerprint string      `db:"fingerprint" json:"fingerprint,omitempty"`
	Revision    int         `db:"revision" json:"revision"`
	PublishedAt *time.Time  `db:"published_at" json:"published_at,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

var (
	// ErrArticleNotFound is returned when an article does not exist.
	ErrArticleNotFound = errors.New("article not found")

	// ErrStatusConflict is returned when a compare-and-swap status update
	// finds the article no longer in the expected state. The losing side
	// of two competing transitions sees this.
	ErrStatusConflict = errors.New("article status changed concurrently")
)

// Fingerprint hashes a normalized body for duplicate detection.
func Fingerprint(body string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(body)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
