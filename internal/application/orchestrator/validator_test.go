package orchestrator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/application/orchestrator"
	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/domain"
)

func job(id string, deps ...string) domain.Job {
	return domain.Job{ID: id, Name: id, Type: "noop", DependsOn: deps}
}

func pipeline(jobs ...domain.Job) *domain.PipelineSpec {
	return &domain.PipelineSpec{Name: "test-pipeline", Jobs: jobs}
}

func TestValidator(t *testing.T) {
	v := orchestrator.NewValidator()

	t.Run("Should build one level per job for a linear chain", func(t *testing.T) {
		result := v.Validate(pipeline(job("a"), job("b", "a"), job("c", "b")))

		require.True(t, result.Valid)
		assert.Equal(t, [][]string{{"a"}, {"b"}, {"c"}}, result.ExecutionLevels)
		assert.Equal(t, 3, result.TotalJobs)
		assert.Equal(t, 1, result.MaxParallelJobs)
	})

	t.Run("Should group independent jobs into the same level", func(t *testing.T) {
		result := v.Validate(pipeline(
			job("a"),
			job("b", "a"),
			job("c", "a"),
			job("d", "b", "c"),
		))

		require.True(t, result.Valid)
		assert.Equal(t, [][]string{{"a"}, {"b", "c"}, {"d"}}, result.ExecutionLevels)
		assert.Equal(t, 2, result.MaxParallelJobs)
	})

	t.Run("Should keep declaration order within a level", func(t *testing.T) {
		result := v.Validate(pipeline(job("z"), job("m"), job("a")))

		require.True(t, result.Valid)
		assert.Equal(t, [][]string{{"z", "m", "a"}}, result.ExecutionLevels)
		assert.Equal(t, 3, result.MaxParallelJobs)
	})

	t.Run("Should place every dependency in a strictly earlier level", func(t *testing.T) {
		spec := pipeline(
			job("ingest"),
			job("tokenize", "ingest"),
			job("shard", "ingest"),
			job("train", "tokenize", "shard"),
			job("eval", "train"),
			job("report", "eval", "ingest"),
		)
		result := v.Validate(spec)

		require.True(t, result.Valid)

		levelOf := map[string]int{}
		seen := 0
		for i, level := range result.ExecutionLevels {
			for _, id := range level {
				_, dup := levelOf[id]
				require.False(t, dup, "job %s appears twice", id)
				levelOf[id] = i
				seen++
			}
		}
		assert.Equal(t, len(spec.Jobs), seen)
		for _, j := range spec.Jobs {
			for _, dep := range j.DependsOn {
				assert.Less(t, levelOf[dep], levelOf[j.ID])
			}
		}
	})

	t.Run("Should reject an empty pipeline", func(t *testing.T) {
		result := v.Validate(pipeline())

		assert.False(t, result.Valid)
		assert.True(t, result.HasCode(domain.ValidationEmptyPipeline))
		assert.Nil(t, result.ExecutionLevels)
	})

	t.Run("Should reject a nil pipeline", func(t *testing.T) {
		result := v.Validate(nil)

		assert.False(t, result.Valid)
		assert.True(t, result.HasCode(domain.ValidationEmptyPipeline))
	})

	t.Run("Should detect a two-job cycle and name both jobs", func(t *testing.T) {
		result := v.Validate(pipeline(job("a", "b"), job("b", "a")))

		require.False(t, result.Valid)
		assert.True(t, result.HasCode(domain.ValidationCycleDetected))
		var named []string
		for _, e := range result.Errors {
			named = append(named, e.JobID)
		}
		assert.ElementsMatch(t, []string{"a", "b"}, named)
		assert.Nil(t, result.ExecutionLevels, "no partial levels on cycle")
		assert.Zero(t, result.MaxParallelJobs)
	})

	t.Run("Should flag jobs stuck behind a cycle", func(t *testing.T) {
		result := v.Validate(pipeline(
			job("a", "b"),
			job("b", "a"),
			job("c", "a"),
		))

		require.False(t, result.Valid)
		var named []string
		for _, e := range result.Errors {
			named = append(named, e.JobID)
		}
		assert.ElementsMatch(t, []string{"a", "b", "c"}, named)
	})

	t.Run("Should reject a dependency on an undeclared job", func(t *testing.T) {
		result := v.Validate(pipeline(job("a"), job("b", "ghost")))

		require.False(t, result.Valid)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, domain.ValidationMissingDependency, result.Errors[0].Code)
		assert.Equal(t, "b", result.Errors[0].JobID)
		assert.Contains(t, result.Errors[0].Message, "ghost")
	})

	t.Run("Should reject duplicate job ids", func(t *testing.T) {
		result := v.Validate(pipeline(job("a"), job("a")))

		require.False(t, result.Valid)
		assert.True(t, result.HasCode(domain.ValidationDuplicateJob))
	})

	t.Run("Should reject a blank job id", func(t *testing.T) {
		result := v.Validate(pipeline(job("")))

		require.False(t, result.Valid)
		assert.True(t, result.HasCode(domain.ValidationMissingID))
	})

	t.Run("Should reject a job depending on itself", func(t *testing.T) {
		result := v.Validate(pipeline(job("a", "a")))

		require.False(t, result.Valid)
		assert.True(t, result.HasCode(domain.ValidationSelfDependency))
	})

	t.Run("Should collect every error instead of stopping at the first", func(t *testing.T) {
		result := v.Validate(pipeline(
			job("a", "a"),
			job("b", "ghost"),
			job("c"),
			job("c"),
		))

		require.False(t, result.Valid)
		assert.True(t, result.HasCode(domain.ValidationSelfDependency))
		assert.True(t, result.HasCode(domain.ValidationMissingDependency))
		assert.True(t, result.HasCode(domain.ValidationDuplicateJob))
		assert.Error(t, result.Err())
	})

	t.Run("Should return the same result when run twice", func(t *testing.T) {
		spec := pipeline(job("a"), job("b", "a"), job("c", "a"), job("d", "b", "c"))

		first := v.Validate(spec)
		second := v.Validate(spec)

		assert.Equal(t, first, second)
	})
}
