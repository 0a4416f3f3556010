package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/ports"
)

// WebhookConfig tunes the webhook step executor.
type WebhookConfig struct {
	// AllowedHosts is the hostname allowlist for webhook targets. A job
	// pointing elsewhere fails with a security violation. Empty means no
	// target is allowed.
	AllowedHosts []string
	// DefaultURL is used when the job config carries no "url" key.
	DefaultURL string
	// RequestTimeout bounds one HTTP call when the job context carries no
	// tighter deadline.
	RequestTimeout time.Duration
}

// Webhook posts the job payload to a platform worker endpoint and returns
// the response body as the job result. Training, validation and deployment
// workloads run behind such endpoints; the orchestrator only sequences
// them.
type Webhook struct {
	cfg     WebhookConfig
	client  *http.Client
	allowed map[string]bool
	logger  *zap.Logger
}

// NewWebhook creates a webhook step executor.
func NewWebhook(cfg WebhookConfig, logger *zap.Logger) *Webhook {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	allowed := make(map[string]bool, len(cfg.AllowedHosts))
	for _, h := range cfg.AllowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			allowed[h] = true
		}
	}
	return &Webhook{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		allowed: allowed,
		logger:  logger,
	}
}

// Execute implements ports.StepExecutor.
func (w *Webhook) Execute(ctx context.Context, req ports.StepRequest) (any, error) {
	target := w.cfg.DefaultURL
	if raw, ok := req.Config["url"]; ok {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("job config key %q must be a string", "url")
		}
		target = s
	}
	if target == "" {
		return nil, fmt.Errorf("no webhook url configured for job %q", req.JobID)
	}
	if err := w.checkTarget(target); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]any{
		"executionId": req.ExecutionID,
		"jobId":       req.JobID,
		"jobName":     req.JobName,
		"type":        req.Type,
		"attempt":     req.Attempt,
		"config":      req.Config,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	w.logger.Debug("invoking webhook step",
		zap.String("execution_id", req.ExecutionID),
		zap.String("job_id", req.JobID),
		zap.String("url", target))

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("webhook call failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result any
	if json.Unmarshal(body, &result) != nil {
		// Non-JSON bodies are kept verbatim.
		result = strings.TrimSpace(string(body))
	}
	return result, nil
}

// checkTarget enforces the scheme and host allowlist. Violations carry
// ports.ErrSecurityViolation so the supervisor records them as
// security.violation audit entries.
func (w *Webhook) checkTarget(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("%w: unparseable webhook url %q", ports.ErrSecurityViolation, target)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: webhook scheme %q not allowed", ports.ErrSecurityViolation, u.Scheme)
	}
	if !w.allowed[strings.ToLower(u.Hostname())] {
		return fmt.Errorf("%w: webhook host %q not in allowlist", ports.ErrSecurityViolation, u.Hostname())
	}
	return nil
}
