package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and local development.
// A single mutex makes every operation indivisible, which gives the same
// single-winner claim guarantee the Postgres statement gives.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job

	// now is swappable so tests can drive lease expiry.
	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*Job),
		now:  time.Now,
	}
}

// SetClock overrides the store's time source. Test use only.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Enqueue(_ context.Context, p EnqueueParams) (*Job, error) {
	if !p.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, p.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	job := &Job{
		ID:           uuid.New().String(),
		Type:         p.Type,
		SiteID:       p.SiteID,
		ArticleID:    p.ArticleID,
		KeywordID:    p.KeywordID,
		Payload:      p.Payload,
		Status:       StatusPending,
		Priority:     p.Priority,
		MaxAttempts:  p.MaxAttempts,
		ScheduledFor: p.ScheduledFor,
		CreatedAt:    now,
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = DefaultMaxAttempts
	}
	if job.ScheduledFor.IsZero() {
		job.ScheduledFor = now
	}

	s.jobs[job.ID] = job
	out := *job
	return &out, nil
}

func (s *MemoryStore) ClaimNext(_ context.Context, workerID string, lease time.Duration) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var best *Job
	for _, j := range s.jobs {
		if !j.Eligible(now) {
			continue
		}
		if best == nil || claimOrderLess(j, best) {
			best = j
		}
	}
	if best == nil {
		return nil, ErrNoEligibleJobs
	}

	best.Status = StatusProcessing
	best.Attempts++
	best.LockedBy = workerID
	until := now.Add(lease)
	best.LockedUntil = &until
	started := now
	best.StartedAt = &started

	out := *best
	return &out, nil
}

// claimOrderLess orders a before b for claiming: priority descending,
// scheduled_for ascending, creation order ascending.
func claimOrderLess(a, b *Job) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.ScheduledFor.Equal(b.ScheduledFor) {
		return a.ScheduledFor.Before(b.ScheduledFor)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (s *MemoryStore) Complete(_ context.Context, jobID string, result json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if j.Status != StatusProcessing {
		// Cancelled (or otherwise finished) under the worker's feet.
		return nil
	}

	j.Status = StatusCompleted
	j.Result = result
	j.LockedUntil = nil
	done := s.now()
	j.CompletedAt = &done
	return nil
}

func (s *MemoryStore) Fail(_ context.Context, jobID, errMsg string, retryAfter time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if j.Status != StatusProcessing {
		return nil
	}

	j.ErrorMessage = errMsg
	j.LockedUntil = nil
	if j.Attempts < j.MaxAttempts {
		j.Status = StatusPending
		j.ScheduledFor = s.now().Add(retryAfter)
		return nil
	}

	j.Status = StatusFailed
	done := s.now()
	j.CompletedAt = &done
	return nil
}

func (s *MemoryStore) FailTerminal(_ context.Context, jobID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if j.Status != StatusProcessing {
		return nil
	}

	j.Status = StatusFailed
	j.ErrorMessage = errMsg
	j.LockedUntil = nil
	done := s.now()
	j.CompletedAt = &done
	return nil
}

func (s *MemoryStore) Cancel(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if j.Status != StatusPending && j.Status != StatusProcessing {
		return fmt.Errorf("%w: status is %s", ErrJobNotCancellable, j.Status)
	}

	j.Status = StatusCancelled
	j.LockedUntil = nil
	done := s.now()
	j.CompletedAt = &done
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, jobID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	out := *j
	return &out, nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []Job
	for _, j := range s.jobs {
		if f.SiteID != "" && j.SiteID != f.SiteID {
			continue
		}
		if f.ArticleID != "" && j.ArticleID != f.ArticleID {
			continue
		}
		if f.Type != "" && j.Type != f.Type {
			continue
		}
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.Cursor != nil {
			if j.CreatedAt.After(f.Cursor.CreatedAt) {
				continue
			}
			if j.CreatedAt.Equal(f.Cursor.CreatedAt) && j.ID >= f.Cursor.JobID {
				continue
			}
		}
		jobs = append(jobs, *j)
	}

	sort.Slice(jobs, func(a, b int) bool {
		if !jobs[a].CreatedAt.Equal(jobs[b].CreatedAt) {
			return jobs[a].CreatedAt.After(jobs[b].CreatedAt)
		}
		return jobs[a].ID > jobs[b].ID
	})

	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if len(jobs) > pageSize+1 {
		jobs = jobs[:pageSize+1]
	}

	return jobs, nil
}
