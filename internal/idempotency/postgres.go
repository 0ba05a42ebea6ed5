package idempotency

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresStore implements Store on an idempotency_records table. The
// INSERT ... ON CONFLICT DO NOTHING race decides first sight atomically.
type PostgresStore struct {
	db        *sqlx.DB
	retention time.Duration
	logger    *slog.Logger
}

func NewPostgresStore(db *sqlx.DB, retention time.Duration, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{db: db, retention: retention, logger: logger}
}

func (s *PostgresStore) BeginOrReplay(ctx context.Context, key, method, path, fingerprint string) (*BeginResult, error) {
	now := time.Now().UTC()

	// An expired record is first sight again: the conflict branch takes
	// the row over instead of leaving a stale response replayable until
	// the purge cron gets to it.
	insert := `
		INSERT INTO idempotency_records (idempotency_key, fingerprint, method, path, state, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET fingerprint = EXCLUDED.fingerprint,
			method = EXCLUDED.method,
			path = EXCLUDED.path,
			state = EXCLUDED.state,
			response_status = NULL,
			response_body = NULL,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
		WHERE idempotency_records.expires_at <= EXCLUDED.created_at
	`

	res, err := s.db.ExecContext(ctx, insert, key, fingerprint, method, path, StateStarted, now, now.Add(s.retention))
	if err != nil {
		return nil, fmt.Errorf("failed to register idempotency key: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 1 {
		return &BeginResult{Token: &Token{Key: key}}, nil
	}

	// Key already seen and still live: replay, conflict, or misuse.
	var rec Record
	query := `
		SELECT idempotency_key, fingerprint, method, path,
			COALESCE(response_status, 0) AS response_status,
			COALESCE(response_body, '') AS response_body,
			state, created_at, expires_at
		FROM idempotency_records
		WHERE idempotency_key = $1 AND expires_at > $2
	`
	if err := s.db.GetContext(ctx, &rec, query, key, now); err != nil {
		if err == sql.ErrNoRows {
			// Record purged or expired between insert attempt and read;
			// treat as a conflict and let the client retry.
			return nil, ErrDuplicateInFlight
		}
		return nil, fmt.Errorf("failed to load idempotency record: %w", err)
	}

	if rec.Fingerprint != fingerprint {
		return nil, ErrKeyReused
	}
	if rec.State != StateCompleted {
		return nil, ErrDuplicateInFlight
	}

	s.logger.Info("Replaying stored response",
		slog.String("idempotency_key", key),
		slog.String("method", method),
		slog.String("path", path),
	)

	return &BeginResult{Replay: &rec}, nil
}

func (s *PostgresStore) Complete(ctx context.Context, token *Token, status int, body []byte) error {
	query := `
		UPDATE idempotency_records
		SET state = $1, response_status = $2, response_body = $3
		WHERE idempotency_key = $4 AND state = $5
	`

	_, err := s.db.ExecContext(ctx, query, StateCompleted, status, body, token.Key, StateStarted)
	if err != nil {
		return fmt.Errorf("failed to complete idempotency record: %w", err)
	}

	return nil
}

func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_records WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge idempotency records: %w", err)
	}

	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("Purged expired idempotency records", slog.Int64("count", n))
	}
	return n, nil
}
