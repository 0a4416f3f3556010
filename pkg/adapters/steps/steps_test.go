package steps_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/ports"
	"github.com/canfieldjuan/finetunelab.ai-sub005/pkg/adapters/steps"
)

func TestRegistry(t *testing.T) {
	t.Run("Should resolve a registered type", func(t *testing.T) {
		reg := steps.NewRegistry()
		reg.Register("noop", steps.NewNoop())

		exec, err := reg.Resolve("noop")
		require.NoError(t, err)
		assert.NotNil(t, exec)
	})

	t.Run("Should fail resolution for an unknown type", func(t *testing.T) {
		reg := steps.NewRegistry()

		_, err := reg.Resolve("train")
		assert.Error(t, err)
	})

	t.Run("Should fall back to the default executor", func(t *testing.T) {
		reg := steps.NewRegistry()
		reg.SetDefault(steps.NewNoop())

		exec, err := reg.Resolve("anything")
		require.NoError(t, err)
		assert.NotNil(t, exec)
	})

	t.Run("Should list registered types sorted", func(t *testing.T) {
		reg := steps.NewRegistry()
		reg.Register("webhook", steps.NewNoop())
		reg.Register("noop", steps.NewNoop())

		assert.Equal(t, []string{"noop", "webhook"}, reg.Types())
	})
}

func TestNoop(t *testing.T) {
	t.Run("Should succeed immediately", func(t *testing.T) {
		result, err := steps.NewNoop().Execute(context.Background(), ports.StepRequest{JobID: "a"})

		require.NoError(t, err)
		assert.Equal(t, map[string]any{"jobId": "a", "status": "ok"}, result)
	})

	t.Run("Should honor context cancellation during a delay", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := steps.NewNoop().Execute(ctx, ports.StepRequest{
			JobID:  "a",
			Config: map[string]any{"delayMs": float64(5000)},
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestWebhook(t *testing.T) {
	newServer := func(t *testing.T, handler http.HandlerFunc) (*httptest.Server, string) {
		t.Helper()
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		u, err := url.Parse(srv.URL)
		require.NoError(t, err)
		return srv, u.Hostname()
	}

	t.Run("Should post the job payload and return the JSON response", func(t *testing.T) {
		var received map[string]any
		srv, host := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"checkpoint":"s3://models/epoch-3"}`))
		})

		wh := steps.NewWebhook(steps.WebhookConfig{AllowedHosts: []string{host}}, zap.NewNop())
		result, err := wh.Execute(context.Background(), ports.StepRequest{
			ExecutionID: "exec-1",
			JobID:       "train",
			Type:        "webhook",
			Attempt:     1,
			Config:      map[string]any{"url": srv.URL, "epochs": float64(3)},
		})

		require.NoError(t, err)
		assert.Equal(t, map[string]any{"checkpoint": "s3://models/epoch-3"}, result)
		assert.Equal(t, "exec-1", received["executionId"])
		assert.Equal(t, "train", received["jobId"])
	})

	t.Run("Should refuse a host outside the allowlist with a security error", func(t *testing.T) {
		wh := steps.NewWebhook(steps.WebhookConfig{
			AllowedHosts: []string{"workers.finetunelab.internal"},
		}, zap.NewNop())

		_, err := wh.Execute(context.Background(), ports.StepRequest{
			JobID:  "train",
			Config: map[string]any{"url": "http://evil.example.com/steal"},
		})
		assert.ErrorIs(t, err, ports.ErrSecurityViolation)
	})

	t.Run("Should refuse a non-http scheme", func(t *testing.T) {
		wh := steps.NewWebhook(steps.WebhookConfig{AllowedHosts: []string{"localhost"}}, zap.NewNop())

		_, err := wh.Execute(context.Background(), ports.StepRequest{
			JobID:  "train",
			Config: map[string]any{"url": "ftp://localhost/x"},
		})
		assert.ErrorIs(t, err, ports.ErrSecurityViolation)
	})

	t.Run("Should fail on a non-2xx response", func(t *testing.T) {
		srv, host := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "training node out of GPU memory", http.StatusInternalServerError)
		})

		wh := steps.NewWebhook(steps.WebhookConfig{AllowedHosts: []string{host}}, zap.NewNop())
		_, err := wh.Execute(context.Background(), ports.StepRequest{
			JobID:  "train",
			Config: map[string]any{"url": srv.URL},
		})

		require.Error(t, err)
		assert.NotErrorIs(t, err, ports.ErrSecurityViolation)
		assert.Contains(t, err.Error(), "500")
	})

	t.Run("Should fail when no url is configured", func(t *testing.T) {
		wh := steps.NewWebhook(steps.WebhookConfig{AllowedHosts: []string{"localhost"}}, zap.NewNop())

		_, err := wh.Execute(context.Background(), ports.StepRequest{JobID: "train"})
		assert.Error(t, err)
	})
}
