package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/application/templates"
	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/domain"
	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/ports"
)

// PipelineRequest is the body of validate and execute calls.
type PipelineRequest struct {
	Name    string         `json:"name"`
	Jobs    []domain.Job   `json:"jobs" binding:"required"`
	Options domain.Options `json:"options"`
}

// ExecuteResponse is returned when an execution is accepted.
type ExecuteResponse struct {
	Success     bool                   `json:"success"`
	ExecutionID string                 `json:"executionId"`
	Status      domain.ExecutionStatus `json:"status"`
	TotalJobs   int                    `json:"totalJobs"`
}

// StatusResponse is the live execution snapshot.
type StatusResponse struct {
	Success       bool                   `json:"success"`
	ExecutionID   string                 `json:"executionId"`
	Status        domain.ExecutionStatus `json:"status"`
	Progress      int                    `json:"progress"`
	CompletedJobs int                    `json:"completedJobs"`
	FailedJobs    int                    `json:"failedJobs"`
	TotalJobs     int                    `json:"totalJobs"`
	DurationMs    int64                  `json:"durationMs"`
}

// TemplateRequest is the body of template create calls.
type TemplateRequest struct {
	Name        string              `json:"name" binding:"required"`
	Description string              `json:"description"`
	Category    string              `json:"category"`
	Schedule    string              `json:"schedule"`
	Config      domain.PipelineSpec `json:"config" binding:"required"`
}

// ErrorResponse is the error envelope of every failed call.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine-readable error.
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func errorJSON(c *gin.Context, status int, code, message string, details interface{}) {
	c.JSON(status, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message, Details: details},
	})
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(c *gin.Context) {
	active, running := s.supervisor.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":            "healthy",
		"timestamp":         time.Now().UTC(),
		"activeExecutions":  active,
		"runningJobs":       running,
		"auditDroppedTotal": s.audit.Dropped(),
	})
}

// handleValidate validates a pipeline without executing it.
func (s *Server) handleValidate(c *gin.Context) {
	var req PipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	result := s.supervisor.Validate(c.Request.Context(), &domain.PipelineSpec{
		Name:    req.Name,
		Jobs:    req.Jobs,
		Options: req.Options,
	})
	c.JSON(http.StatusOK, result)
}

// handleExecute validates a pipeline and starts running it.
func (s *Server) handleExecute(c *gin.Context) {
	var req PipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	spec := &domain.PipelineSpec{
		Name:    req.Name,
		Jobs:    req.Jobs,
		Options: req.Options,
	}
	if spec.Options.UserID == "" {
		spec.Options.UserID = callerID(c)
	}

	exec, result, err := s.supervisor.Execute(c.Request.Context(), spec)
	if err != nil {
		if result != nil && !result.Valid {
			errorJSON(c, http.StatusUnprocessableEntity, "INVALID_PIPELINE",
				"pipeline validation failed", result.Errors)
			return
		}
		s.logger.Error("failed to start execution", zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, "EXECUTION_FAILED", err.Error(), nil)
		return
	}

	c.JSON(http.StatusCreated, ExecuteResponse{
		Success:     true,
		ExecutionID: exec.ID,
		Status:      exec.Status,
		TotalJobs:   exec.TotalJobs,
	})
}

// handleListExecutions lists executions most-recent-first.
func (s *Server) handleListExecutions(c *gin.Context) {
	filter := ports.ExecutionFilter{
		Status: domain.ExecutionStatus(c.Query("status")),
		Limit:  intQuery(c, "limit", 20),
	}

	execs, err := s.supervisor.List(c.Request.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list executions", zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, "LIST_FAILED", err.Error(), nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"executions": execs,
		"total":      len(execs),
	})
}

// handleGetExecution returns the full execution record.
func (s *Server) handleGetExecution(c *gin.Context) {
	exec, err := s.supervisor.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondLoadError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"execution": exec,
	})
}

// handleGetStatus returns the live execution snapshot.
func (s *Server) handleGetStatus(c *gin.Context) {
	exec, err := s.supervisor.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondLoadError(c, err)
		return
	}

	c.JSON(http.StatusOK, StatusResponse{
		Success:       true,
		ExecutionID:   exec.ID,
		Status:        exec.Status,
		Progress:      exec.Progress,
		CompletedJobs: exec.CompletedJobs,
		FailedJobs:    exec.FailedJobs,
		TotalJobs:     exec.TotalJobs,
		DurationMs:    exec.Duration().Milliseconds(),
	})
}

// handleCancelExecution cancels a running execution. Cancelling a terminal
// execution is a no-op, not an error.
func (s *Server) handleCancelExecution(c *gin.Context) {
	id := c.Param("id")
	if err := s.supervisor.Cancel(c.Request.Context(), id); err != nil {
		s.respondLoadError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"executionId": id,
	})
}

// handleExecutionAudit returns one execution's audit trail.
func (s *Server) handleExecutionAudit(c *gin.Context) {
	entries, err := s.audit.Query(c.Request.Context(), domain.AuditFilter{
		ExecutionID: c.Param("id"),
		EventType:   domain.EventType(c.Query("eventType")),
		Level:       domain.AuditLevel(c.Query("level")),
		Limit:       intQuery(c, "limit", 100),
	})
	if err != nil {
		s.logger.Error("failed to query audit trail", zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", err.Error(), nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"entries": entries,
	})
}

// handleQueryAudit queries the audit trail across executions.
func (s *Server) handleQueryAudit(c *gin.Context) {
	filter := domain.AuditFilter{
		ExecutionID: c.Query("executionId"),
		EventType:   domain.EventType(c.Query("eventType")),
		Level:       domain.AuditLevel(c.Query("level")),
		Limit:       intQuery(c, "limit", 100),
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "since must be RFC3339", nil)
			return
		}
		filter.Since = t
	}
	if until := c.Query("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "until must be RFC3339", nil)
			return
		}
		filter.Until = t
	}

	entries, err := s.audit.Query(c.Request.Context(), filter)
	if err != nil {
		s.logger.Error("failed to query audit trail", zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", err.Error(), nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"entries": entries,
	})
}

// handleCreateTemplate validates and stores a template.
func (s *Server) handleCreateTemplate(c *gin.Context) {
	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	tmpl, result, err := s.templates.Create(c.Request.Context(), &domain.Template{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Schedule:    req.Schedule,
		Config:      req.Config,
		CreatedBy:   callerID(c),
	})
	if err != nil {
		if result != nil && !result.Valid {
			errorJSON(c, http.StatusUnprocessableEntity, "INVALID_PIPELINE",
				"template pipeline validation failed", result.Errors)
			return
		}
		errorJSON(c, http.StatusBadRequest, "INVALID_TEMPLATE", err.Error(), nil)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"template": tmpl,
	})
}

// handleListTemplates lists stored templates.
func (s *Server) handleListTemplates(c *gin.Context) {
	ts, err := s.templates.List(c.Request.Context(), ports.TemplateFilter{
		Category: c.Query("category"),
		Limit:    intQuery(c, "limit", 0),
	})
	if err != nil {
		s.logger.Error("failed to list templates", zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, "LIST_FAILED", err.Error(), nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"templates": ts,
	})
}

// handleGetTemplate returns one template.
func (s *Server) handleGetTemplate(c *gin.Context) {
	tmpl, err := s.templates.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondLoadError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"template": tmpl,
	})
}

// handleUpdateTemplate applies a partial template update.
func (s *Server) handleUpdateTemplate(c *gin.Context) {
	var patch templates.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	tmpl, result, err := s.templates.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		if result != nil && !result.Valid {
			errorJSON(c, http.StatusUnprocessableEntity, "INVALID_PIPELINE",
				"template pipeline validation failed", result.Errors)
			return
		}
		s.respondLoadError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"template": tmpl,
	})
}

// handleDeleteTemplate removes a template. Executions created from it are
// unaffected.
func (s *Server) handleDeleteTemplate(c *gin.Context) {
	if err := s.templates.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.respondLoadError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleExecuteTemplate starts an execution from a stored template.
func (s *Server) handleExecuteTemplate(c *gin.Context) {
	spec, err := s.templates.Instantiate(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondLoadError(c, err)
		return
	}
	if spec.Options.UserID == "" {
		spec.Options.UserID = callerID(c)
	}

	exec, result, err := s.supervisor.Execute(c.Request.Context(), spec)
	if err != nil {
		if result != nil && !result.Valid {
			errorJSON(c, http.StatusUnprocessableEntity, "INVALID_PIPELINE",
				"pipeline validation failed", result.Errors)
			return
		}
		s.logger.Error("failed to start execution from template", zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, "EXECUTION_FAILED", err.Error(), nil)
		return
	}

	c.JSON(http.StatusCreated, ExecuteResponse{
		Success:     true,
		ExecutionID: exec.ID,
		Status:      exec.Status,
		TotalJobs:   exec.TotalJobs,
	})
}

// respondLoadError maps a store load error to 404 or 500.
func (s *Server) respondLoadError(c *gin.Context, err error) {
	if errors.Is(err, ports.ErrNotFound) {
		errorJSON(c, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
		return
	}
	s.logger.Error("store error", zap.Error(err))
	errorJSON(c, http.StatusInternalServerError, "STORE_ERROR", err.Error(), nil)
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
