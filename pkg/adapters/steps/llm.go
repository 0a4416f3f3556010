package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/ports"
)

// LLMConfig tunes the llm_eval step executor.
type LLMConfig struct {
	APIKey           string
	DefaultModel     string
	DefaultMaxTokens int
	// MaxConcurrent bounds in-flight Anthropic calls across all
	// executions, independent of per-pipeline parallelism.
	MaxConcurrent int
}

// LLMEval is the model-quality gate step: it sends the prompt from the job
// config to Anthropic and returns the scored response. Training pipelines
// use it to judge checkpoint outputs before deployment.
type LLMEval struct {
	client anthropic.Client
	cfg    LLMConfig
	sem    *semaphore.Weighted
	logger *zap.Logger
}

// NewLLMEval creates the Anthropic-backed llm_eval step executor.
func NewLLMEval(cfg LLMConfig, logger *zap.Logger) (*LLMEval, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-3-5-sonnet-20241022"
	}
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = 4096
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	return &LLMEval{
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger: logger,
	}, nil
}

// Execute implements ports.StepExecutor. The job config must carry a
// "prompt" key; "model", "maxTokens" and "system" override the defaults.
func (l *LLMEval) Execute(ctx context.Context, req ports.StepRequest) (any, error) {
	prompt, _ := req.Config["prompt"].(string)
	if prompt == "" {
		return nil, fmt.Errorf("job %q: llm_eval requires a %q config key", req.JobID, "prompt")
	}

	model := l.cfg.DefaultModel
	if m, ok := req.Config["model"].(string); ok && m != "" {
		model = m
	}
	maxTokens := int64(l.cfg.DefaultMaxTokens)
	if mt, ok := req.Config["maxTokens"].(float64); ok && mt > 0 {
		maxTokens = int64(mt)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system, ok := req.Config["system"].(string); ok && system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for llm slot: %w", err)
	}
	defer l.sem.Release(1)

	l.logger.Debug("calling anthropic",
		zap.String("execution_id", req.ExecutionID),
		zap.String("job_id", req.JobID),
		zap.String("model", model))

	msg, err := l.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return map[string]any{
		"model":        string(msg.Model),
		"response":     text.String(),
		"stopReason":   string(msg.StopReason),
		"inputTokens":  msg.Usage.InputTokens,
		"outputTokens": msg.Usage.OutputTokens,
	}, nil
}
