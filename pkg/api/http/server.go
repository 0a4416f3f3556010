package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/application/audit"
	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/application/orchestrator"
	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/application/templates"
)

// Server is the HTTP API server: the orchestrator's service boundary.
type Server struct {
	router     *gin.Engine
	server     *http.Server
	supervisor *orchestrator.Supervisor
	templates  *templates.Registry
	audit      *audit.Logger
	logger     *zap.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Port       int
	Supervisor *orchestrator.Supervisor
	Templates  *templates.Registry
	Audit      *audit.Logger
	Logger     *zap.Logger
}

// NewServer creates a new HTTP server.
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(cfg.Logger))

	s := &Server{
		router:     router,
		supervisor: cfg.Supervisor,
		templates:  cfg.Templates,
		audit:      cfg.Audit,
		logger:     cfg.Logger,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	return s
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)

	// Metrics
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/pipelines/validate", s.handleValidate)

		v1.POST("/executions", s.handleExecute)
		v1.GET("/executions", s.handleListExecutions)
		v1.GET("/executions/:id", s.handleGetExecution)
		v1.GET("/executions/:id/status", s.handleGetStatus)
		v1.POST("/executions/:id/cancel", s.handleCancelExecution)
		v1.GET("/executions/:id/audit", s.handleExecutionAudit)

		v1.GET("/audit", s.handleQueryAudit)

		v1.POST("/templates", s.handleCreateTemplate)
		v1.GET("/templates", s.handleListTemplates)
		v1.GET("/templates/:id", s.handleGetTemplate)
		v1.PUT("/templates/:id", s.handleUpdateTemplate)
		v1.DELETE("/templates/:id", s.handleDeleteTemplate)
		v1.POST("/templates/:id/execute", s.handleExecuteTemplate)
	}
}

// SetupWebSocket mounts the live execution event stream.
func (s *Server) SetupWebSocket(handler interface {
	HandleExecutionStream(*gin.Context)
}) {
	s.router.GET("/api/v1/executions/:id/ws", handler.HandleExecutionStream)
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}
