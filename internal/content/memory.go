package content

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu       sync.Mutex
	articles map[string]*Article
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{articles: make(map[string]*Article)}
}

func (s *MemoryStore) Create(_ context.Context, a *Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()

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

	stored := *a
	s.articles[a.ID] = &stored
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, articleID string) (*Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.articles[articleID]
	if !ok {
		return nil, ErrArticleNotFound
	}
	out := *a
	return &out, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, articleID string, from, to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.articles[articleID]
	if !ok {
		return ErrArticleNotFound
	}
	if a.Status != from {
		return ErrStatusConflict
	}

	a.Status = to
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) UpdateBody(_ context.Context, articleID, title, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.articles[articleID]
	if !ok {
		return ErrArticleNotFound
	}

	a.Title = title
	a.Body = body
	a.Fingerprint = Fingerprint(body)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) BumpRevision(_ context.Context, articleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.articles[articleID]
	if !ok {
		return ErrArticleNotFound
	}

	a.Revision++
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) MarkPublished(_ context.Context, articleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.articles[articleID]
	if !ok {
		return ErrArticleNotFound
	}

	now := time.Now().UTC()
	a.PublishedAt = &now
	a.UpdatedAt = now
	return nil
}
