package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/a1davida1/DomainEmpire-sub003/internal/idempotency"
	"github.com/a1davida1/DomainEmpire-sub003/internal/queue"
)

// MaintenanceSchedules holds the cron expressions for recurring work.
// An empty expression disables that entry.
type MaintenanceSchedules struct {
	PurgeIdempotency string
	AnalyticsFetch   string
	RenewalCheck     string
	DatasetCheck     string
}

// Maintenance owns the recurring background work that is not part of
// any article's pipeline: purging expired idempotency records and
// seeding the periodic per-site check jobs. Seeded jobs go through the
// ordinary queue so the same claim, retry, and audit machinery applies.
type Maintenance struct {
	cron   *cron.Cron
	jobs   queue.Store
	idem   idempotency.Store
	sites  []string
	logger *slog.Logger
}

func NewMaintenance(jobs queue.Store, idem idempotency.Store, sites []string, schedules MaintenanceSchedules, logger *slog.Logger) (*Maintenance, error) {
	m := &Maintenance{
		cron:   cron.New(),
		jobs:   jobs,
		idem:   idem,
		sites:  sites,
		logger: logger,
	}

	entries := []struct {
		spec string
		name string
		run  func()
	}{
		{schedules.PurgeIdempotency, "purge_idempotency", m.purgeIdempotency},
		{schedules.AnalyticsFetch, "seed_analytics_fetch", func() { m.seed(queue.TypeAnalyticsFetch) }},
		{schedules.RenewalCheck, "seed_renewal_check", func() { m.seed(queue.TypeRenewalCheck) }},
		{schedules.DatasetCheck, "seed_dataset_check", func() { m.seed(queue.TypeDatasetCheck) }},
	}

	for _, e := range entries {
		if e.spec == "" {
			continue
		}
		if _, err := m.cron.AddFunc(e.spec, e.run); err != nil {
			return nil, fmt.Errorf("invalid %s schedule %q: %w", e.name, e.spec, err)
		}
		logger.Info("Registered maintenance schedule",
			slog.String("entry", e.name),
			slog.String("spec", e.spec),
		)
	}

	return m, nil
}

func (m *Maintenance) Start() {
	m.cron.Start()
}

// Stop halts scheduling and waits for any running entry to return.
func (m *Maintenance) Stop() {
	<-m.cron.Stop().Done()
}

func (m *Maintenance) purgeIdempotency() {
	purged, err := m.idem.PurgeExpired(context.Background())
	if err != nil {
		m.logger.Error("Idempotency purge failed", slog.Any("error", err))
		return
	}
	m.logger.Info("Purged expired idempotency records", slog.Int64("purged", purged))
}

func (m *Maintenance) seed(t queue.JobType) {
	ctx := context.Background()
	for _, site := range m.sites {
		payload, _ := json.Marshal(map[string]string{"site_id": site})
		job, err := m.jobs.Enqueue(ctx, queue.EnqueueParams{
			Type:    t,
			SiteID:  site,
			Payload: payload,
		})
		if err != nil {
			m.logger.Error("Failed to seed maintenance job",
				slog.String("job_type", string(t)),
				slog.String("site_id", site),
				slog.Any("error", err),
			)
			continue
		}
		m.logger.Info("Seeded maintenance job",
			slog.String("job_type", string(t)),
			slog.String("site_id", site),
			slog.String("job_id", job.ID),
		)
	}
}
