package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	promclient "github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/application/audit"
	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/application/orchestrator"
	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/application/scheduler"
	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/application/templates"
	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/config"
	eventsredis "github.com/canfieldjuan/finetunelab.ai-sub005/pkg/adapters/events/redis"
	"github.com/canfieldjuan/finetunelab.ai-sub005/pkg/adapters/metrics/prometheus"
	"github.com/canfieldjuan/finetunelab.ai-sub005/pkg/adapters/steps"
	redisstorage "github.com/canfieldjuan/finetunelab.ai-sub005/pkg/adapters/storage/redis"
	"github.com/canfieldjuan/finetunelab.ai-sub005/pkg/api/grpc"
	"github.com/canfieldjuan/finetunelab.ai-sub005/pkg/api/http"
	"github.com/canfieldjuan/finetunelab.ai-sub005/pkg/api/websocket"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting pipeline orchestrator",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	// Initialize Redis client
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

	// Initialize adapters
	store := redisstorage.NewStore(redisClient, cfg.Redis.ExecutionTTL, logger)

	eventBus := eventsredis.NewStreamsBus(
		redisClient,
		"ftl-orchestrator",
		fmt.Sprintf("ftl-%d", os.Getpid()),
		logger,
	)

	metricsCollector := prometheus.NewCollector(promclient.DefaultRegisterer)

	auditLogger := audit.NewLogger(store, metricsCollector, logger, audit.Config{
		BufferSize:   cfg.Audit.BufferSize,
		WriteTimeout: cfg.Audit.WriteTimeout,
	})

	// Step registry: the webhook executor doubles as the default, so
	// free-form job types (dataset_load, train, deploy, ...) route to the
	// platform's training workers.
	stepRegistry := steps.NewRegistry()
	stepRegistry.Register("noop", steps.NewNoop())
	webhookStep := steps.NewWebhook(steps.WebhookConfig{
		AllowedHosts:   cfg.Webhook.AllowedHosts,
		DefaultURL:     cfg.Webhook.DefaultURL,
		RequestTimeout: cfg.Webhook.RequestTimeout,
	}, logger)
	stepRegistry.Register("webhook", webhookStep)
	stepRegistry.SetDefault(webhookStep)

	if cfg.LLM.APIKey != "" {
		llmStep, err := steps.NewLLMEval(steps.LLMConfig{
			APIKey:           cfg.LLM.APIKey,
			DefaultModel:     cfg.LLM.DefaultModel,
			DefaultMaxTokens: cfg.LLM.DefaultMaxTokens,
			MaxConcurrent:    cfg.LLM.MaxConcurrentRequests,
		}, logger)
		if err != nil {
			logger.Fatal("failed to create llm_eval step", zap.Error(err))
		}
		stepRegistry.Register("llm_eval", llmStep)
	}

	// Initialize application components
	supervisor := orchestrator.NewSupervisor(
		eventBus,
		store,
		auditLogger,
		metricsCollector,
		stepRegistry,
		orchestrator.NewValidator(),
		logger,
		orchestrator.Defaults{
			Parallelism:      cfg.Orchestrator.Parallelism,
			JobTimeout:       cfg.Timeouts.JobTimeout,
			ExecutionTimeout: cfg.Timeouts.ExecutionTimeout,
			MaxRetries:       cfg.Orchestrator.MaxRetries,
		},
	)

	// Fail executions orphaned by a previous crash before taking traffic.
	if repaired, err := supervisor.Recover(ctx); err != nil {
		logger.Fatal("failed to recover orphaned executions", zap.Error(err))
	} else if repaired > 0 {
		logger.Info("recovered orphaned executions", zap.Int("count", repaired))
	}

	monitor := orchestrator.NewMonitor(
		supervisor,
		cfg.Orchestrator.MonitorInterval,
		cfg.Orchestrator.RunningJobsWarn,
		logger,
	)
	monitor.Start()

	templateRegistry := templates.NewRegistry(store, supervisor, logger)

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(templateRegistry, supervisor, logger, scheduler.Config{
			ReconcileInterval: cfg.Scheduler.ReconcileInterval,
		})
		if err := sched.Start(ctx); err != nil {
			logger.Fatal("failed to start scheduler", zap.Error(err))
		}
	}

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Port:       cfg.HTTPPort,
		Supervisor: supervisor,
		Templates:  templateRegistry,
		Audit:      auditLogger,
		Logger:     logger,
	})
	httpServer.SetupWebSocket(websocket.NewHandler(eventBus, logger))

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:   cfg.GRPCPort,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()
	grpcServer.SetServing(true)

	logger.Info("pipeline orchestrator started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Strings("step_types", stepRegistry.Types()),
		zap.Bool("scheduler_enabled", cfg.Scheduler.Enabled))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	if sched != nil {
		sched.Stop()
	}
	monitor.Stop()

	if err := supervisor.Shutdown(shutdownCtx); err != nil {
		logger.Error("supervisor shutdown error", zap.Error(err))
	}

	// Drain buffered audit entries after the supervisor settles, so the
	// final transitions make it to the trail.
	if err := auditLogger.Close(shutdownCtx); err != nil {
		logger.Error("audit logger shutdown error", zap.Error(err))
	}

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if err := redisClient.Close(); err != nil {
		logger.Error("Redis close error", zap.Error(err))
	}

	logger.Info("pipeline orchestrator shut down complete")
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
