package stage

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automatosx/automatosx/pkg/checkpoint"
)

func newTestManager(t *testing.T) *checkpoint.Manager {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "checkpoints")
	storage := checkpoint.NewStorage(dir)
	return checkpoint.NewManager(&checkpoint.Config{Enabled: true, Directory: dir}, storage, nil)
}

// planImplTestExecute fails "impl" while shouldFail is true, succeeds
// otherwise; every other stage always succeeds.
func planImplTestExecute(shouldFail *atomic.Bool) ExecuteFunc {
	return func(ctx context.Context, s Stage, task string, deps map[string]Output, onChunk ChunkFunc) (Output, error) {
		if s.Name == "impl" && shouldFail.Load() {
			return Output{}, errors.New("build failed")
		}
		return Output{Content: "ok:" + s.Name}, nil
	}
}

func planImplTestStages() []Stage {
	return []Stage{
		{Name: "plan"},
		{Name: "impl", Dependencies: []string{"plan"}},
		{Name: "test", Dependencies: []string{"impl"}, Condition: "impl.success"},
	}
}

func TestMultiStageWithSkipOnFailure(t *testing.T) {
	var shouldFail atomic.Bool
	shouldFail.Store(true)

	c := &Controller{Execute: planImplTestExecute(&shouldFail)}
	result, err := c.Run(context.Background(), planImplTestStages(), RunOptions{
		RunID:             "run-1",
		AgentName:         "m",
		Task:              "ship it",
		ContinueOnFailure: false,
	})
	require.NoError(t, err)

	require.False(t, result.Success)
	byName := map[string]checkpoint.StageStatus{}
	for _, s := range result.Stages {
		byName[s.Name] = s.Status
	}
	assert.Equal(t, checkpoint.StageStatusCompleted, byName["plan"])
	assert.Equal(t, checkpoint.StageStatusFailed, byName["impl"])
	assert.Equal(t, checkpoint.StageStatusSkipped, byName["test"])
}

func TestResumeReplaysCompletedAndRerunsFailed(t *testing.T) {
	mgr := newTestManager(t)
	var shouldFail atomic.Bool
	shouldFail.Store(true)

	c := &Controller{Execute: planImplTestExecute(&shouldFail), Checkpoints: mgr}
	stages := planImplTestStages()

	_, err := c.Run(context.Background(), stages, RunOptions{
		RunID:             "run-2",
		AgentName:         "m",
		Task:              "ship it",
		Resumable:         true,
		ContinueOnFailure: false,
	})
	require.NoError(t, err)

	cp, err := mgr.Load("run-2")
	require.NoError(t, err)
	require.Equal(t, checkpoint.StageStatusFailed, cp.Stage("impl").Status)
	require.Equal(t, checkpoint.StageStatusCompleted, cp.Stage("plan").Status)
	planOutputBefore := cp.Stage("plan").Output

	shouldFail.Store(false)
	result, err := c.Resume(context.Background(), cp, stages, RunOptions{Resumable: true, ContinueOnFailure: false})
	require.NoError(t, err)

	require.True(t, result.Success)
	byName := map[string]checkpoint.StageStatus{}
	outputs := map[string]string{}
	for _, s := range result.Stages {
		byName[s.Name] = s.Status
		outputs[s.Name] = s.Output
	}
	assert.Equal(t, checkpoint.StageStatusCompleted, byName["plan"])
	assert.Equal(t, checkpoint.StageStatusCompleted, byName["impl"])
	assert.Equal(t, checkpoint.StageStatusCompleted, byName["test"])
	assert.Equal(t, planOutputBefore, outputs["plan"], "plan must be fast-forwarded, not re-executed")
}

func TestContinueOnFailureRunsIndependentStagesButSkipsDependents(t *testing.T) {
	stages := []Stage{
		{Name: "a", Parallel: true},
		{Name: "b", Parallel: true},
		{Name: "uses-a", Dependencies: []string{"a"}},
	}

	c := &Controller{Execute: func(ctx context.Context, s Stage, task string, deps map[string]Output, onChunk ChunkFunc) (Output, error) {
		if s.Name == "a" {
			return Output{}, errors.New("a failed")
		}
		return Output{Content: "ok:" + s.Name}, nil
	}}

	result, err := c.Run(context.Background(), stages, RunOptions{RunID: "run-3", ContinueOnFailure: true})
	require.NoError(t, err)

	byName := map[string]checkpoint.StageStatus{}
	for _, s := range result.Stages {
		byName[s.Name] = s.Status
	}
	assert.Equal(t, checkpoint.StageStatusFailed, byName["a"])
	assert.Equal(t, checkpoint.StageStatusCompleted, byName["b"])
	assert.Equal(t, checkpoint.StageStatusSkipped, byName["uses-a"], "dependent of a failed stage must be skipped even with continueOnFailure")
}

func TestStageRetriesBeforeFailing(t *testing.T) {
	var attempts atomic.Int32
	c := &Controller{Execute: func(ctx context.Context, s Stage, task string, deps map[string]Output, onChunk ChunkFunc) (Output, error) {
		attempts.Add(1)
		return Output{}, errors.New("always fails")
	}}

	stages := []Stage{{Name: "flaky", MaxRetries: 2}}
	result, err := c.Run(context.Background(), stages, RunOptions{RunID: "run-4"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.EqualValues(t, 3, attempts.Load())
}

func TestCycleFailsBeforeExecutingAnyStage(t *testing.T) {
	var executed atomic.Bool
	c := &Controller{Execute: func(ctx context.Context, s Stage, task string, deps map[string]Output, onChunk ChunkFunc) (Output, error) {
		executed.Store(true)
		return Output{}, nil
	}}

	stages := []Stage{
		{Name: "a", Dependencies: []string{"b"}},
		{Name: "b", Dependencies: []string{"a"}},
	}
	_, err := c.Run(context.Background(), stages, RunOptions{RunID: "run-5"})
	require.Error(t, err)
	assert.False(t, executed.Load())
}
