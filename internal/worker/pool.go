package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/a1davida1/DomainEmpire-sub003/internal/pipeline"
	"github.com/a1davida1/DomainEmpire-sub003/internal/queue"
)

// Config holds worker pool configuration
type Config struct {
	Logger           *slog.Logger
	Jobs             queue.Store
	Dispatcher       *pipeline.Dispatcher
	WorkerID         string
	Concurrency      int
	PollInterval     time.Duration
	LeaseDuration    time.Duration
	JobTimeout       time.Duration
	RetryBackoffBase time.Duration

	// Nudges optionally wakes idle pollers early when a producer
	// announces new work. The pool never depends on it: every claim
	// decision is made against the job store.
	Nudges <-chan struct{}
}

// Pool runs N goroutines that poll the job store, claim one job at a
// time, and hand it to the dispatcher. A claim is a time-bounded lease:
// if the handler outlives it (crash, partition), the lease lapses and
// another worker reclaims the job.
type Pool struct {
	logger           *slog.Logger
	jobs             queue.Store
	dispatcher       *pipeline.Dispatcher
	workerID         string
	concurrency      int
	pollInterval     time.Duration
	leaseDuration    time.Duration
	jobTimeout       time.Duration
	retryBackoffBase time.Duration
	nudges           <-chan struct{}

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewPool creates a new worker pool
func NewPool(cfg *Config) *Pool {
	base := cfg.RetryBackoffBase
	if base <= 0 {
		base = 30 * time.Second
	}
	return &Pool{
		logger:           cfg.Logger,
		jobs:             cfg.Jobs,
		dispatcher:       cfg.Dispatcher,
		workerID:         cfg.WorkerID,
		concurrency:      cfg.Concurrency,
		pollInterval:     cfg.PollInterval,
		leaseDuration:    cfg.LeaseDuration,
		jobTimeout:       cfg.JobTimeout,
		retryBackoffBase: base,
		nudges:           cfg.Nudges,
		stopChan:         make(chan struct{}),
	}
}

// Start spawns the worker goroutines and returns immediately.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("Starting worker pool",
		slog.String("worker_id", p.workerID),
		slog.Int("concurrency", p.concurrency),
		slog.Duration("poll_interval", p.pollInterval),
		slog.Duration("lease_duration", p.leaseDuration),
	)

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.workerLoop(ctx, i)
	}
}

// Stop closes the pool and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("Stopping worker pool")
		close(p.stopChan)
	})
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

func (p *Pool) workerLoop(ctx context.Context, workerNum int) {
	defer p.wg.Done()

	workerName := fmt.Sprintf("%s-%d", p.workerID, workerNum)
	p.logger.Info("Worker goroutine started", slog.String("worker_name", workerName))

	// Storage-unavailable claim errors are recoverable; back off and
	// try again next cycle instead of hammering a sick database.
	storageBackoff := backoff.NewExponentialBackOff()
	storageBackoff.InitialInterval = p.pollInterval
	storageBackoff.MaxInterval = 10 * p.pollInterval
	storageBackoff.MaxElapsedTime = 0

	for {
		select {
		case <-p.stopChan:
			p.logger.Info("Worker goroutine stopping", slog.String("worker_name", workerName))
			return
		case <-ctx.Done():
			p.logger.Info("Worker goroutine stopping - context canceled", slog.String("worker_name", workerName))
			return
		default:
		}

		job, err := p.jobs.ClaimNext(ctx, workerName, p.leaseDuration)
		switch {
		case err == nil:
			storageBackoff.Reset()
			p.runJob(ctx, workerName, job)
			// Claim again immediately; a busy queue should not pay the
			// poll interval between jobs.
			continue

		case errors.Is(err, queue.ErrNoEligibleJobs):
			storageBackoff.Reset()
			p.idle(ctx)

		case errors.Is(err, context.Canceled):
			return

		default:
			wait := storageBackoff.NextBackOff()
			p.logger.Error("Claim attempt failed, backing off",
				slog.String("worker_name", workerName),
				slog.Duration("retry_in", wait),
				slog.Any("error", err),
			)
			p.sleep(ctx, wait)
		}
	}
}

// idle waits for the next poll tick, a nudge, or shutdown.
func (p *Pool) idle(ctx context.Context) {
	timer := time.NewTimer(p.pollInterval)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-p.nudges:
	case <-p.stopChan:
	case <-ctx.Done():
	}
}

func (p *Pool) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-p.stopChan:
	case <-ctx.Done():
	}
}

func (p *Pool) runJob(ctx context.Context, workerName string, job *queue.Job) {
	p.logger.Info("Worker claimed job",
		slog.String("worker_name", workerName),
		slog.String("job_id", job.ID),
		slog.String("job_type", string(job.Type)),
		slog.Int("attempt", job.Attempts),
	)

	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	err := p.dispatcher.Dispatch(jobCtx, job)
	if err == nil {
		p.logger.Info("Job finished",
			slog.String("worker_name", workerName),
			slog.String("job_id", job.ID),
		)
		return
	}

	p.logger.Error("Job handler failed",
		slog.String("worker_name", workerName),
		slog.String("job_id", job.ID),
		slog.String("job_type", string(job.Type)),
		slog.Int("attempt", job.Attempts),
		slog.Any("error", err),
	)

	if !queue.Retryable(err) {
		if failErr := p.jobs.FailTerminal(ctx, job.ID, err.Error()); failErr != nil {
			p.logger.Error("Failed to record terminal failure",
				slog.String("job_id", job.ID),
				slog.Any("error", failErr),
			)
		}
		return
	}

	if failErr := p.jobs.Fail(ctx, job.ID, err.Error(), p.retryDelay(job.Attempts)); failErr != nil {
		p.logger.Error("Failed to record job failure",
			slog.String("job_id", job.ID),
			slog.Any("error", failErr),
		)
	}
}

// retryDelay doubles per attempt from the configured base, capped at an
// hour so a flapping dependency cannot push retries out indefinitely.
func (p *Pool) retryDelay(attempt int) time.Duration {
	delay := p.retryBackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= time.Hour {
			return time.Hour
		}
	}
	return delay
}
