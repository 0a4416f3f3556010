package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/config"
)

func TestLoad(t *testing.T) {
	t.Run("Should apply defaults when the environment is empty", func(t *testing.T) {
		cfg, err := config.Load()

		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.HTTPPort)
		assert.Equal(t, 9090, cfg.GRPCPort)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
		assert.Equal(t, 0, cfg.Orchestrator.Parallelism)
		assert.Equal(t, 3, cfg.Orchestrator.MaxRetries)
		assert.Equal(t, 1024, cfg.Audit.BufferSize)
		assert.False(t, cfg.Scheduler.Enabled)
		assert.Equal(t, time.Hour, cfg.Timeouts.ExecutionTimeout)
		assert.Equal(t, 5*time.Minute, cfg.Timeouts.JobTimeout)
	})

	t.Run("Should read overrides from the environment", func(t *testing.T) {
		t.Setenv("FTL_HTTP_PORT", "9999")
		t.Setenv("FTL_DEFAULT_PARALLELISM", "4")
		t.Setenv("FTL_WEBHOOK_ALLOWED_HOSTS", "workers.finetunelab.internal,trainers.finetunelab.internal")
		t.Setenv("FTL_SCHEDULER_ENABLED", "true")

		cfg, err := config.Load()

		require.NoError(t, err)
		assert.Equal(t, 9999, cfg.HTTPPort)
		assert.Equal(t, 4, cfg.Orchestrator.Parallelism)
		assert.Equal(t,
			[]string{"workers.finetunelab.internal", "trainers.finetunelab.internal"},
			cfg.Webhook.AllowedHosts)
		assert.True(t, cfg.Scheduler.Enabled)
	})

	t.Run("Should reject an invalid port", func(t *testing.T) {
		t.Setenv("FTL_HTTP_PORT", "70000")

		_, err := config.Load()
		assert.Error(t, err)
	})

	t.Run("Should reject an unknown log level", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "verbose")

		_, err := config.Load()
		assert.Error(t, err)
	})

	t.Run("Should reject an unsupported LLM provider when a key is set", func(t *testing.T) {
		t.Setenv("LLM_API_KEY", "sk-test")
		t.Setenv("LLM_PROVIDER", "openai")

		_, err := config.Load()
		assert.Error(t, err)
	})

	t.Run("Should allow an empty LLM key", func(t *testing.T) {
		cfg, err := config.Load()

		require.NoError(t, err)
		assert.Empty(t, cfg.LLM.APIKey)
	})
}
