package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a1davida1/DomainEmpire-sub003/internal/content"
	"github.com/a1davida1/DomainEmpire-sub003/internal/review"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, "content_pipeline", cfg.Database.Database)
				assert.Equal(t, "pipeline_nudges", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "content-pipeline", cfg.App.Name)
				assert.Equal(t, 4, cfg.Worker.Concurrency)
				assert.Equal(t, 5*time.Minute, cfg.Worker.LeaseDuration)
				assert.Equal(t, 24*time.Hour, cfg.Idempotency.Retention)
			}
		})
	}
}

func TestLoad_ReviewPolicySection(t *testing.T) {
	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	require.Len(t, cfg.Review.Rules, 1)
	rule := cfg.Review.Rules[0]
	assert.Equal(t, "site-finance", rule.SiteID)
	assert.Equal(t, content.TypeCalculator, rule.ContentType)
	assert.Equal(t, content.RiskHigh, rule.RiskLevel)
	assert.Equal(t, review.RoleAdmin, rule.Policy.RequiredRole)
	assert.True(t, rule.Policy.RequireExpertSignoff)

	require.Contains(t, cfg.Review.RiskDefaults, content.RiskMedium)
	assert.True(t, cfg.Review.RiskDefaults[content.RiskMedium].RequireQAChecklist)
}

func TestValidateAPIConfig(t *testing.T) {
	valid := func(t *testing.T) *Config {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid(t).ValidateAPIConfig())
	})

	t.Run("bad server port", func(t *testing.T) {
		cfg := valid(t)
		cfg.Server.Port = 0
		assert.ErrorContains(t, cfg.ValidateAPIConfig(), "invalid server port")
	})

	t.Run("missing database host", func(t *testing.T) {
		cfg := valid(t)
		cfg.Database.Host = ""
		assert.ErrorContains(t, cfg.ValidateAPIConfig(), "database host is required")
	})

	t.Run("rabbitmq optional but must be complete when set", func(t *testing.T) {
		cfg := valid(t)
		cfg.RabbitMQ.Exchange.Name = ""
		assert.ErrorContains(t, cfg.ValidateAPIConfig(), "exchange name is required")

		cfg.RabbitMQ.Host = ""
		assert.NoError(t, cfg.ValidateAPIConfig(), "nudge transport is optional")
	})

	t.Run("idempotency retention required", func(t *testing.T) {
		cfg := valid(t)
		cfg.Idempotency.Retention = 0
		assert.ErrorContains(t, cfg.ValidateAPIConfig(), "idempotency retention")
	})
}

func TestValidateWorkerConfig(t *testing.T) {
	valid := func(t *testing.T) *Config {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid(t).ValidateWorkerConfig())
	})

	t.Run("zero concurrency", func(t *testing.T) {
		cfg := valid(t)
		cfg.Worker.Concurrency = 0
		assert.ErrorContains(t, cfg.ValidateWorkerConfig(), "concurrency")
	})

	t.Run("job timeout exceeding lease", func(t *testing.T) {
		cfg := valid(t)
		cfg.Worker.JobTimeout = cfg.Worker.LeaseDuration + time.Minute
		assert.ErrorContains(t, cfg.ValidateWorkerConfig(), "must not exceed lease_duration")
	})

	t.Run("zero poll interval", func(t *testing.T) {
		cfg := valid(t)
		cfg.Worker.PollInterval = 0
		assert.ErrorContains(t, cfg.ValidateWorkerConfig(), "poll_interval")
	})
}
