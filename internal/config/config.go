package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the pipeline orchestrator.
type Config struct {
	// Server configuration
	HTTPPort int    `env:"FTL_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"FTL_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Redis configuration
	Redis RedisConfig

	// Orchestrator defaults applied when a pipeline does not override them
	Orchestrator OrchestratorConfig

	// Audit logger configuration
	Audit AuditConfig

	// Template scheduler configuration
	Scheduler SchedulerConfig

	// Webhook step executor configuration
	Webhook WebhookConfig

	// LLM step executor configuration
	LLM LLMConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`

	// ExecutionTTL bounds how long execution records stay in Redis.
	// Templates and the audit trail carry no TTL; audit retention is an
	// external data-lifecycle concern.
	ExecutionTTL time.Duration `env:"FTL_EXECUTION_TTL" envDefault:"168h"`
}

// OrchestratorConfig holds the default scheduling policy.
type OrchestratorConfig struct {
	// Parallelism caps concurrently running jobs per execution. Zero
	// means no cap beyond the width of the current level.
	Parallelism int `env:"FTL_DEFAULT_PARALLELISM" envDefault:"0"`

	// MaxRetries caps per-job re-attempts, whatever the job asks for.
	MaxRetries int `env:"FTL_MAX_RETRIES" envDefault:"3"`

	// MonitorInterval is how often the execution monitor snapshots
	// active runs. Zero disables the monitor.
	MonitorInterval time.Duration `env:"FTL_MONITOR_INTERVAL" envDefault:"30s"`

	// RunningJobsWarn is the running-job gauge level at which the
	// monitor starts warning. Zero disables the warning.
	RunningJobsWarn int `env:"FTL_RUNNING_JOBS_WARN" envDefault:"50"`
}

// AuditConfig holds audit logger configuration.
type AuditConfig struct {
	// BufferSize is the capacity of the async write buffer. Entries
	// arriving while the buffer is full are dropped, never blocked on.
	BufferSize int `env:"FTL_AUDIT_BUFFER_SIZE" envDefault:"1024"`

	// WriteTimeout bounds a single store append.
	WriteTimeout time.Duration `env:"FTL_AUDIT_WRITE_TIMEOUT" envDefault:"5s"`
}

// SchedulerConfig holds the cron template scheduler configuration.
type SchedulerConfig struct {
	Enabled bool `env:"FTL_SCHEDULER_ENABLED" envDefault:"false"`

	// ReconcileInterval is how often cron entries are reconciled against
	// stored templates carrying a schedule.
	ReconcileInterval time.Duration `env:"FTL_SCHEDULER_RECONCILE_INTERVAL" envDefault:"60s"`
}

// WebhookConfig holds the webhook step executor configuration.
type WebhookConfig struct {
	// AllowedHosts is the host allowlist for webhook targets. A job that
	// points elsewhere fails with a security violation. Empty means no
	// webhook target is allowed.
	AllowedHosts []string `env:"FTL_WEBHOOK_ALLOWED_HOSTS" envSeparator:","`

	// DefaultURL is used when a job config does not carry a "url" key.
	DefaultURL string `env:"FTL_WEBHOOK_URL"`

	RequestTimeout time.Duration `env:"FTL_WEBHOOK_TIMEOUT" envDefault:"60s"`
}

// LLMConfig holds LLM provider configuration for the llm_eval step.
type LLMConfig struct {
	Provider string `env:"LLM_PROVIDER" envDefault:"anthropic"`

	// APIKey enables the llm_eval step. When empty the step is not
	// registered and pipelines using it are rejected at validation.
	APIKey string `env:"LLM_API_KEY"`

	// MaxConcurrentRequests bounds in-flight Anthropic calls across all
	// executions.
	MaxConcurrentRequests int `env:"LLM_MAX_CONCURRENT_REQUESTS" envDefault:"10"`

	RequestTimeout time.Duration `env:"LLM_REQUEST_TIMEOUT" envDefault:"120s"`

	// Default model settings
	DefaultModel     string `env:"LLM_DEFAULT_MODEL" envDefault:"claude-3-5-sonnet-20241022"`
	DefaultMaxTokens int    `env:"LLM_DEFAULT_MAX_TOKENS" envDefault:"4096"`
}

// TimeoutConfig holds various timeout configurations.
type TimeoutConfig struct {
	ExecutionTimeout time.Duration `env:"FTL_EXECUTION_TIMEOUT" envDefault:"3600s"` // 1 hour
	JobTimeout       time.Duration `env:"FTL_JOB_TIMEOUT" envDefault:"300s"`        // 5 minutes
	ShutdownTimeout  time.Duration `env:"FTL_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	// Validate server ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	// Validate Redis config
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	// Validate orchestrator defaults
	if c.Orchestrator.Parallelism < 0 {
		return fmt.Errorf("default parallelism must not be negative")
	}
	if c.Orchestrator.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}

	// Validate audit config
	if c.Audit.BufferSize < 1 {
		return fmt.Errorf("audit buffer size must be at least 1")
	}

	// Validate scheduler config
	if c.Scheduler.Enabled && c.Scheduler.ReconcileInterval < time.Second {
		return fmt.Errorf("scheduler reconcile interval must be at least 1s")
	}

	// The llm_eval step is optional, but when enabled only the Anthropic
	// provider is supported.
	if c.LLM.APIKey != "" && c.LLM.Provider != "anthropic" {
		return fmt.Errorf("unsupported LLM provider: %s (only 'anthropic' is supported)", c.LLM.Provider)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// GetHTTPAddr returns the HTTP server address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address.
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
