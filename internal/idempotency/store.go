package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// State tracks whether the original request finished.
type State string

const (
	StateStarted   State = "started"
	StateCompleted State = "completed"
)

// Record is one remembered mutation keyed by a client-supplied token.
type Record struct {
	Key         string    `db:"idempotency_key"`
	Fingerprint string    `db:"fingerprint"`
	Method      string    `db:"method"`
	Path        string    `db:"path"`
	Status      int       `db:"response_status"`
	Body        []byte    `db:"response_body"`
	State       State     `db:"state"`
	CreatedAt   time.Time `db:"created_at"`
	ExpiresAt   time.Time `db:"expires_at"`
}

// Fingerprint derives the request identity a key is bound to: a
// SHA-256 over method, path, and body. The same key arriving with a
// different fingerprint is key reuse, not a retry.
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'|'})
	h.Write([]byte(path))
	h.Write([]byte{'|'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

var (
	// ErrDuplicateInFlight signals a replayed key whose original request
	// has not completed yet. Surfaced as a conflict, not a server error.
	ErrDuplicateInFlight = errors.New("request with this idempotency key is still in flight")

	// ErrKeyReused signals the same key arriving with a different
	// fingerprint (method, path, or body) than the original request.
	ErrKeyReused = errors.New("idempotency key was used for a different request")
)

// Token authorizes completion of a started record.
type Token struct {
	Key string
}

// BeginResult is either a stored response to replay or a token to
// proceed with the real mutation.
type BeginResult struct {
	Replay *Record
	Token  *Token
}

// Store records request fingerprints so retried client mutations are
// applied at most once.
type Store interface {
	// BeginOrReplay registers first sight of a key and returns a proceed
	// token, or returns the stored response for a completed original, or
	// ErrDuplicateInFlight / ErrKeyReused. An expired record counts as
	// first sight. fingerprint is compared against the stored one to
	// detect key reuse; method and path are kept for observability.
	BeginOrReplay(ctx context.Context, key, method, path, fingerprint string) (*BeginResult, error)

	// Complete stores the final response against the started record.
	Complete(ctx context.Context, token *Token, status int, body []byte) error

	// PurgeExpired removes records past their retention window and
	// returns how many were removed.
	PurgeExpired(ctx context.Context) (int64, error)
}
