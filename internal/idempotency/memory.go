package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu        sync.Mutex
	records   map[string]*Record
	retention time.Duration
	now       func() time.Time
}

func NewMemoryStore(retention time.Duration) *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]*Record),
		retention: retention,
		now:       time.Now,
	}
}

// SetClock overrides the store's time source. Test use only.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) BeginOrReplay(_ context.Context, key, method, path, fingerprint string) (*BeginResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()

	rec, ok := s.records[key]
	if ok && rec.ExpiresAt.Before(now) {
		delete(s.records, key)
		ok = false
	}

	if !ok {
		s.records[key] = &Record{
			Key:         key,
			Fingerprint: fingerprint,
			Method:      method,
			Path:        path,
			State:       StateStarted,
			CreatedAt:   now,
			ExpiresAt:   now.Add(s.retention),
		}
		return &BeginResult{Token: &Token{Key: key}}, nil
	}

	if rec.Fingerprint != fingerprint {
		return nil, ErrKeyReused
	}
	if rec.State != StateCompleted {
		return nil, ErrDuplicateInFlight
	}

	replay := *rec
	return &BeginResult{Replay: &replay}, nil
}

func (s *MemoryStore) Complete(_ context.Context, token *Token, status int, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[token.Key]
	if !ok || rec.State != StateStarted {
		return nil
	}

	rec.State = StateCompleted
	rec.Status = status
	rec.Body = append([]byte(nil), body...)
	return nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var purged int64
	for key, rec := range s.records {
		if rec.ExpiresAt.Before(now) {
			delete(s.records, key)
			purged++
		}
	}
	return purged, nil
}
