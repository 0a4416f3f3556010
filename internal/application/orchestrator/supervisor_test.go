package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/application/orchestrator"
	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/domain"
	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/ports"
	eventsmemory "github.com/canfieldjuan/finetunelab.ai-sub005/pkg/adapters/events/memory"
	"github.com/canfieldjuan/finetunelab.ai-sub005/pkg/adapters/steps"
	"github.com/canfieldjuan/finetunelab.ai-sub005/pkg/adapters/storage/memory"
)

// captureAudit records every audit entry for assertions.
type captureAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (c *captureAudit) Record(entry domain.AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *captureAudit) byType(t domain.EventType) []domain.AuditEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range c.entries {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	sup   *orchestrator.Supervisor
	store *memory.Store
	audit *captureAudit
	reg   *steps.Registry
}

func newHarness(t *testing.T, defaults orchestrator.Defaults) *harness {
	t.Helper()
	store := memory.NewStore()
	aud := &captureAudit{}
	reg := steps.NewRegistry()
	reg.Register("noop", steps.NewNoop())
	sup := orchestrator.NewSupervisor(
		eventsmemory.NewBus(),
		store,
		aud,
		ports.NopMetrics{},
		reg,
		orchestrator.NewValidator(),
		zap.NewNop(),
		defaults,
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sup.Shutdown(ctx)
	})
	return &harness{sup: sup, store: store, audit: aud, reg: reg}
}

// waitTerminal polls the store until the execution settles.
func (h *harness) waitTerminal(t *testing.T, id string) *domain.Execution {
	t.Helper()
	var exec *domain.Execution
	require.Eventually(t, func() bool {
		e, err := h.store.GetExecution(context.Background(), id)
		if err != nil {
			return false
		}
		exec = e
		return e.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	return exec
}

func TestSupervisorExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("Should complete a linear chain in order", func(t *testing.T) {
		h := newHarness(t, orchestrator.Defaults{})
		var order []string
		var mu sync.Mutex
		h.reg.RegisterFunc("record", func(ctx context.Context, req ports.StepRequest) (any, error) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, req.JobID)
			return req.JobID + "-done", nil
		})

		exec, result, err := h.sup.Execute(ctx, &domain.PipelineSpec{
			Name: "chain",
			Jobs: []domain.Job{
				{ID: "a", Type: "record"},
				{ID: "b", Type: "record", DependsOn: []string{"a"}},
				{ID: "c", Type: "record", DependsOn: []string{"b"}},
			},
		})
		require.NoError(t, err)
		require.True(t, result.Valid)
		assert.Equal(t, 3, len(result.ExecutionLevels))

		final := h.waitTerminal(t, exec.ID)
		assert.Equal(t, domain.ExecutionStatusCompleted, final.Status)
		assert.Equal(t, 100, final.Progress)
		assert.Equal(t, 3, final.CompletedJobs)
		assert.Zero(t, final.FailedJobs)
		assert.Equal(t, []string{"a", "b", "c"}, order)
		assert.Equal(t, "a-done", final.Jobs["a"].Result)
		assert.NotNil(t, final.CompletedAt)

		assert.Len(t, h.audit.byType(domain.EventExecutionStart), 1)
		assert.Len(t, h.audit.byType(domain.EventExecutionComplete), 1)
		assert.Len(t, h.audit.byType(domain.EventJobComplete), 3)
	})

	t.Run("Should run the unaffected branch of a diamond and skip the join", func(t *testing.T) {
		h := newHarness(t, orchestrator.Defaults{})
		var invoked sync.Map
		h.reg.RegisterFunc("track", func(ctx context.Context, req ports.StepRequest) (any, error) {
			invoked.Store(req.JobID, true)
			if req.JobID == "b" {
				return nil, errors.New("训练 shard corrupted")
			}
			return "ok", nil
		})

		exec, _, err := h.sup.Execute(ctx, &domain.PipelineSpec{
			Name: "diamond",
			Jobs: []domain.Job{
				{ID: "a", Type: "track"},
				{ID: "b", Type: "track", DependsOn: []string{"a"}},
				{ID: "c", Type: "track", DependsOn: []string{"a"}},
				{ID: "d", Type: "track", DependsOn: []string{"b", "c"}},
			},
		})
		require.NoError(t, err)

		final := h.waitTerminal(t, exec.ID)
		assert.Equal(t, domain.ExecutionStatusFailed, final.Status)
		assert.Equal(t, domain.JobStatusCompleted, final.Jobs["c"].Status)
		assert.Equal(t, domain.JobStatusFailed, final.Jobs["b"].Status)
		assert.Equal(t, domain.JobStatusSkipped, final.Jobs["d"].Status)
		assert.Equal(t, 100, final.Progress)

		_, dRan := invoked.Load("d")
		assert.False(t, dRan, "skipped job's step must never be invoked")
		require.NotNil(t, final.Jobs["d"].Error)
		assert.Equal(t, domain.JobErrorSkipped, final.Jobs["d"].Error.Code)
	})

	t.Run("Should propagate a skip through transitive dependents", func(t *testing.T) {
		h := newHarness(t, orchestrator.Defaults{})
		h.reg.RegisterFunc("fail", func(ctx context.Context, req ports.StepRequest) (any, error) {
			return nil, errors.New("boom")
		})

		exec, _, err := h.sup.Execute(ctx, &domain.PipelineSpec{
			Name: "cascade",
			Jobs: []domain.Job{
				{ID: "a", Type: "fail"},
				{ID: "b", Type: "noop", DependsOn: []string{"a"}},
				{ID: "c", Type: "noop", DependsOn: []string{"b"}},
			},
		})
		require.NoError(t, err)

		final := h.waitTerminal(t, exec.ID)
		assert.Equal(t, domain.JobStatusFailed, final.Jobs["a"].Status)
		assert.Equal(t, domain.JobStatusSkipped, final.Jobs["b"].Status)
		assert.Equal(t, domain.JobStatusSkipped, final.Jobs["c"].Status)
		assert.Len(t, h.audit.byType(domain.EventJobSkip), 2)
	})

	t.Run("Should never exceed the parallelism cap within a level", func(t *testing.T) {
		h := newHarness(t, orchestrator.Defaults{})
		var current, peak atomic.Int64
		h.reg.RegisterFunc("counted", func(ctx context.Context, req ports.StepRequest) (any, error) {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			current.Add(-1)
			return "ok", nil
		})

		jobs := make([]domain.Job, 6)
		for i := range jobs {
			jobs[i] = domain.Job{ID: fmt.Sprintf("j%d", i), Type: "counted"}
		}
		exec, _, err := h.sup.Execute(ctx, &domain.PipelineSpec{
			Name:    "wide",
			Jobs:    jobs,
			Options: domain.Options{Parallelism: 2},
		})
		require.NoError(t, err)

		final := h.waitTerminal(t, exec.ID)
		assert.Equal(t, domain.ExecutionStatusCompleted, final.Status)
		assert.LessOrEqual(t, peak.Load(), int64(2))
	})

	t.Run("Should retry a flaky job until it succeeds", func(t *testing.T) {
		h := newHarness(t, orchestrator.Defaults{MaxRetries: 5})
		var calls atomic.Int32
		h.reg.RegisterFunc("flaky", func(ctx context.Context, req ports.StepRequest) (any, error) {
			if calls.Add(1) < 3 {
				return nil, errors.New("transient gpu preemption")
			}
			return "ok", nil
		})

		exec, _, err := h.sup.Execute(ctx, &domain.PipelineSpec{
			Name: "retry",
			Jobs: []domain.Job{{ID: "train", Type: "flaky", Retries: 4}},
		})
		require.NoError(t, err)

		final := h.waitTerminal(t, exec.ID)
		assert.Equal(t, domain.ExecutionStatusCompleted, final.Status)
		assert.Equal(t, 3, final.Jobs["train"].Attempts)
		assert.Len(t, h.audit.byType(domain.EventJobRetry), 2)
	})

	t.Run("Should fail after the retry allowance is exhausted", func(t *testing.T) {
		h := newHarness(t, orchestrator.Defaults{MaxRetries: 5})
		var calls atomic.Int32
		h.reg.RegisterFunc("fail", func(ctx context.Context, req ports.StepRequest) (any, error) {
			calls.Add(1)
			return nil, errors.New("boom")
		})

		exec, _, err := h.sup.Execute(ctx, &domain.PipelineSpec{
			Name: "exhaust",
			Jobs: []domain.Job{{ID: "train", Type: "fail", Retries: 2}},
		})
		require.NoError(t, err)

		final := h.waitTerminal(t, exec.ID)
		assert.Equal(t, domain.ExecutionStatusFailed, final.Status)
		assert.Equal(t, domain.JobStatusFailed, final.Jobs["train"].Status)
		assert.Equal(t, 3, final.Jobs["train"].Attempts)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("Should cap job retries at the orchestrator maximum", func(t *testing.T) {
		h := newHarness(t, orchestrator.Defaults{MaxRetries: 1})
		h.reg.RegisterFunc("fail", func(ctx context.Context, req ports.StepRequest) (any, error) {
			return nil, errors.New("boom")
		})

		exec, _, err := h.sup.Execute(ctx, &domain.PipelineSpec{
			Name: "capped",
			Jobs: []domain.Job{{ID: "train", Type: "fail", Retries: 99}},
		})
		require.NoError(t, err)

		final := h.waitTerminal(t, exec.ID)
		assert.Equal(t, 2, final.Jobs["train"].Attempts)
	})

	t.Run("Should classify a job timeout distinctly from a step failure", func(t *testing.T) {
		h := newHarness(t, orchestrator.Defaults{JobTimeout: 30 * time.Millisecond})
		h.reg.RegisterFunc("hang", func(ctx context.Context, req ports.StepRequest) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

		exec, _, err := h.sup.Execute(ctx, &domain.PipelineSpec{
			Name: "timeout",
			Jobs: []domain.Job{{ID: "train", Type: "hang"}},
		})
		require.NoError(t, err)

		final := h.waitTerminal(t, exec.ID)
		assert.Equal(t, domain.ExecutionStatusFailed, final.Status)
		require.NotNil(t, final.Jobs["train"].Error)
		assert.Equal(t, domain.JobErrorTimeout, final.Jobs["train"].Error.Code)
		assert.Len(t, h.audit.byType(domain.EventJobTimeout), 1)
		assert.Empty(t, h.audit.byType(domain.EventJobFail))
	})

	t.Run("Should record a security violation and never retry it", func(t *testing.T) {
		h := newHarness(t, orchestrator.Defaults{MaxRetries: 5})
		var calls atomic.Int32
		h.reg.RegisterFunc("breach", func(ctx context.Context, req ports.StepRequest) (any, error) {
			calls.Add(1)
			return nil, fmt.Errorf("%w: host not allowlisted", ports.ErrSecurityViolation)
		})

		exec, _, err := h.sup.Execute(ctx, &domain.PipelineSpec{
			Name: "breach",
			Jobs: []domain.Job{{ID: "exfil", Type: "breach", Retries: 5}},
		})
		require.NoError(t, err)

		final := h.waitTerminal(t, exec.ID)
		assert.Equal(t, domain.JobStatusFailed, final.Jobs["exfil"].Status)
		assert.Equal(t, domain.JobErrorSecurity, final.Jobs["exfil"].Error.Code)
		assert.Equal(t, int32(1), calls.Load(), "security violations are not retried")

		violations := h.audit.byType(domain.EventSecurityViolation)
		require.Len(t, violations, 1)
		assert.Equal(t, domain.AuditLevelCritical, violations[0].Level)
	})

	t.Run("Should reject an invalid pipeline with no side effects", func(t *testing.T) {
		h := newHarness(t, orchestrator.Defaults{})

		_, result, err := h.sup.Execute(ctx, &domain.PipelineSpec{
			Name: "cyclic",
			Jobs: []domain.Job{
				{ID: "a", Type: "noop", DependsOn: []string{"b"}},
				{ID: "b", Type: "noop", DependsOn: []string{"a"}},
			},
		})
		require.Error(t, err)
		assert.False(t, result.Valid)
		assert.True(t, result.HasCode(domain.ValidationCycleDetected))

		execs, err := h.store.ListExecutions(ctx, ports.ExecutionFilter{})
		require.NoError(t, err)
		assert.Empty(t, execs, "invalid submissions must create no execution")
		assert.Len(t, h.audit.byType(domain.EventValidationCycle), 1)
	})

	t.Run("Should reject a pipeline naming an unregistered job type", func(t *testing.T) {
		h := newHarness(t, orchestrator.Defaults{})

		_, result, err := h.sup.Execute(ctx, &domain.PipelineSpec{
			Name: "unknown",
			Jobs: []domain.Job{{ID: "a", Type: "quantum_anneal"}},
		})
		require.Error(t, err)
		assert.True(t, result.HasCode(domain.ValidationUnknownJobType))
		assert.Nil(t, result.ExecutionLevels)
	})

	t.Run("Should report monotonic progress while running", func(t *testing.T) {
		h := newHarness(t, orchestrator.Defaults{})
		h.reg.RegisterFunc("slow", func(ctx context.Context, req ports.StepRequest) (any, error) {
			time.Sleep(15 * time.Millisecond)
			return "ok", nil
		})

		jobs := []domain.Job{
			{ID: "a", Type: "slow"},
			{ID: "b", Type: "slow", DependsOn: []string{"a"}},
			{ID: "c", Type: "slow", DependsOn: []string{"b"}},
			{ID: "d", Type: "slow", DependsOn: []string{"c"}},
		}
		exec, _, err := h.sup.Execute(ctx, &domain.PipelineSpec{Name: "poll", Jobs: jobs})
		require.NoError(t, err)

		lastTerminal := -1
		wentBackwards := false
		require.Eventually(t, func() bool {
			e, err := h.store.GetExecution(ctx, exec.ID)
			if err != nil {
				return false
			}
			terminal := e.CompletedJobs + e.FailedJobs
			if terminal < lastTerminal || terminal > e.TotalJobs {
				wentBackwards = true
			}
			lastTerminal = terminal
			return e.Status.Terminal()
		}, 5*time.Second, 2*time.Millisecond)
		assert.False(t, wentBackwards, "terminal job count must be monotonic and bounded")
	})
}

func TestSupervisorCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("Should cancel a running execution and skip the rest", func(t *testing.T) {
		h := newHarness(t, orchestrator.Defaults{})
		started := make(chan struct{}, 1)
		h.reg.RegisterFunc("block", func(ctx context.Context, req ports.StepRequest) (any, error) {
			select {
			case started <- struct{}{}:
			default:
			}
			<-ctx.Done()
			return nil, ctx.Err()
		})

		exec, _, err := h.sup.Execute(ctx, &domain.PipelineSpec{
			Name: "cancel",
			Jobs: []domain.Job{
				{ID: "a", Type: "block"},
				{ID: "b", Type: "noop", DependsOn: []string{"a"}},
			},
		})
		require.NoError(t, err)

		<-started
		require.NoError(t, h.sup.Cancel(ctx, exec.ID))

		final := h.waitTerminal(t, exec.ID)
		assert.Equal(t, domain.ExecutionStatusCancelled, final.Status)
		assert.Equal(t, domain.JobStatusSkipped, final.Jobs["a"].Status)
		assert.Equal(t, domain.JobStatusSkipped, final.Jobs["b"].Status)
		assert.Equal(t, 100, final.Progress)
	})

	t.Run("Should treat cancelling a terminal execution as a no-op", func(t *testing.T) {
		h := newHarness(t, orchestrator.Defaults{})

		exec, _, err := h.sup.Execute(ctx, &domain.PipelineSpec{
			Name: "done",
			Jobs: []domain.Job{{ID: "a", Type: "noop"}},
		})
		require.NoError(t, err)
		h.waitTerminal(t, exec.ID)

		require.NoError(t, h.sup.Cancel(ctx, exec.ID))
		final, err := h.sup.Get(ctx, exec.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ExecutionStatusCompleted, final.Status)
	})

	t.Run("Should return not found for an unknown id", func(t *testing.T) {
		h := newHarness(t, orchestrator.Defaults{})

		err := h.sup.Cancel(ctx, "no-such-execution")
		assert.ErrorIs(t, err, ports.ErrNotFound)
	})
}

func TestSupervisorTimeouts(t *testing.T) {
	t.Run("Should fail the whole execution on the execution deadline", func(t *testing.T) {
		h := newHarness(t, orchestrator.Defaults{ExecutionTimeout: 50 * time.Millisecond})
		h.reg.RegisterFunc("block", func(ctx context.Context, req ports.StepRequest) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

		exec, _, err := h.sup.Execute(context.Background(), &domain.PipelineSpec{
			Name: "deadline",
			Jobs: []domain.Job{{ID: "a", Type: "block"}},
		})
		require.NoError(t, err)

		final := h.waitTerminal(t, exec.ID)
		assert.Equal(t, domain.ExecutionStatusFailed, final.Status)
		assert.Len(t, h.audit.byType(domain.EventExecutionTimeout), 1)
	})
}

func TestSupervisorQueries(t *testing.T) {
	ctx := context.Background()

	t.Run("Should list executions most recent first with a limit", func(t *testing.T) {
		h := newHarness(t, orchestrator.Defaults{})

		var ids []string
		for i := 0; i < 3; i++ {
			exec, _, err := h.sup.Execute(ctx, &domain.PipelineSpec{
				Name: fmt.Sprintf("p%d", i),
				Jobs: []domain.Job{{ID: "a", Type: "noop"}},
			})
			require.NoError(t, err)
			h.waitTerminal(t, exec.ID)
			ids = append(ids, exec.ID)
		}

		execs, err := h.sup.List(ctx, ports.ExecutionFilter{Limit: 2})
		require.NoError(t, err)
		require.Len(t, execs, 2)
		assert.Equal(t, ids[2], execs[0].ID)
		assert.Equal(t, ids[1], execs[1].ID)
	})

	t.Run("Should filter the list by status", func(t *testing.T) {
		h := newHarness(t, orchestrator.Defaults{})
		h.reg.RegisterFunc("fail", func(ctx context.Context, req ports.StepRequest) (any, error) {
			return nil, errors.New("boom")
		})

		ok, _, err := h.sup.Execute(ctx, &domain.PipelineSpec{
			Name: "ok", Jobs: []domain.Job{{ID: "a", Type: "noop"}},
		})
		require.NoError(t, err)
		bad, _, err := h.sup.Execute(ctx, &domain.PipelineSpec{
			Name: "bad", Jobs: []domain.Job{{ID: "a", Type: "fail"}},
		})
		require.NoError(t, err)
		h.waitTerminal(t, ok.ID)
		h.waitTerminal(t, bad.ID)

		failed, err := h.sup.List(ctx, ports.ExecutionFilter{Status: domain.ExecutionStatusFailed})
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, bad.ID, failed[0].ID)
	})
}

func TestSupervisorRecover(t *testing.T) {
	ctx := context.Background()

	t.Run("Should fail executions orphaned by a restart", func(t *testing.T) {
		h := newHarness(t, orchestrator.Defaults{})

		// A record left behind in running state with no live run, as
		// after a crash.
		spec := &domain.PipelineSpec{
			Name: "orphan",
			Jobs: []domain.Job{{ID: "a", Type: "noop"}},
		}
		orphan := domain.NewExecution("orphan-1", spec, [][]string{{"a"}})
		orphan.Status = domain.ExecutionStatusRunning
		require.NoError(t, h.store.CreateExecution(ctx, orphan))

		repaired, err := h.sup.Recover(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, repaired)

		final, err := h.store.GetExecution(ctx, "orphan-1")
		require.NoError(t, err)
		assert.Equal(t, domain.ExecutionStatusFailed, final.Status)
		assert.Equal(t, domain.JobStatusSkipped, final.Jobs["a"].Status)
		assert.NotEmpty(t, final.Error)
	})

	t.Run("Should leave terminal executions untouched", func(t *testing.T) {
		h := newHarness(t, orchestrator.Defaults{})

		exec, _, err := h.sup.Execute(ctx, &domain.PipelineSpec{
			Name: "done",
			Jobs: []domain.Job{{ID: "a", Type: "noop"}},
		})
		require.NoError(t, err)
		h.waitTerminal(t, exec.ID)

		repaired, err := h.sup.Recover(ctx)
		require.NoError(t, err)
		assert.Zero(t, repaired)
	})
}
