package review

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/a1davida1/DomainEmpire-sub003/internal/content"
)

// MemoryStore backs the review ledger in process, for tests and local
// development. Status changes go through the content store's
// compare-and-swap, so competing transitions still have a single winner.
type MemoryStore struct {
	mu       sync.Mutex
	articles content.Store
	events   []Event
	results  []ChecklistResult
}

func NewMemoryStore(articles content.Store) *MemoryStore {
	return &MemoryStore{articles: articles}
}

func (s *MemoryStore) Apply(ctx context.Context, t Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.articles.UpdateStatus(ctx, t.ArticleID, t.From, t.To); err != nil {
		return err
	}
	if t.BumpRevision {
		if err := s.articles.BumpRevision(ctx, t.ArticleID); err != nil {
			return err
		}
	}
	if t.StampPublished {
		if err := s.articles.MarkPublished(ctx, t.ArticleID); err != nil {
			return err
		}
	}

	e := t.Event
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.events = append(s.events, e)
	return nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *e
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.events = append(s.events, stored)
	return nil
}

func (s *MemoryStore) ListEvents(_ context.Context, articleID string, f EventFilter) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for _, e := range s.events {
		if e.ArticleID != articleID {
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if f.Revision > 0 && e.Revision != f.Revision {
			continue
		}
		out = append(out, e)
	}

	sort.Slice(out, func(a, b int) bool {
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) HasEvent(_ context.Context, articleID string, revision int, t EventType) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.events {
		if e.ArticleID == articleID && e.Revision == revision && e.Type == t {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) SaveChecklistResult(_ context.Context, r *ChecklistResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = append(s.results, *r)
	return nil
}

func (s *MemoryStore) LatestChecklistResult(_ context.Context, articleID string, revision int) (*ChecklistResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *ChecklistResult
	for i := range s.results {
		r := &s.results[i]
		if r.ArticleID != articleID || r.Revision != revision {
			continue
		}
		// >= so equal timestamps resolve to the later submission.
		if latest == nil || !r.CompletedAt.Before(latest.CompletedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := *latest
	return &out, nil
}
