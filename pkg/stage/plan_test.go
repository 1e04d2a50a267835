package stage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automatosx/automatosx/pkg/apperrors"
)

func TestPlanLinearizesIntoWaves(t *testing.T) {
	stages := []Stage{
		{Name: "plan"},
		{Name: "impl", Dependencies: []string{"plan"}},
		{Name: "test", Dependencies: []string{"impl"}},
	}

	waves, err := Plan(stages)
	require.NoError(t, err)
	require.Len(t, waves, 3)
	assert.Equal(t, []string{"plan"}, waves[0].Names())
	assert.Equal(t, []string{"impl"}, waves[1].Names())
	assert.Equal(t, []string{"test"}, waves[2].Names())
}

func TestPlanGroupsIndependentStagesIntoOneWave(t *testing.T) {
	stages := []Stage{
		{Name: "fetch-a", Parallel: true},
		{Name: "fetch-b", Parallel: true},
		{Name: "merge", Dependencies: []string{"fetch-a", "fetch-b"}},
	}

	waves, err := Plan(stages)
	require.NoError(t, err)
	require.Len(t, waves, 2)
	assert.ElementsMatch(t, []string{"fetch-a", "fetch-b"}, waves[0].Parallel)
	assert.Equal(t, []string{"merge"}, waves[1].Names())
}

func TestPlanRejectsForwardDependencyAsCycle(t *testing.T) {
	stages := []Stage{
		{Name: "a", Dependencies: []string{"b"}},
		{Name: "b"},
	}

	_, err := Plan(stages)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeStageDependencyCycle, apperrors.CodeOf(err))
}

func TestPlanRejectsUnknownDependency(t *testing.T) {
	stages := []Stage{
		{Name: "a", Dependencies: []string{"ghost"}},
	}

	_, err := Plan(stages)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeStageNotFound, apperrors.CodeOf(err))
}

func TestPlanRejectsDuplicateStageNames(t *testing.T) {
	stages := []Stage{{Name: "a"}, {Name: "a"}}

	_, err := Plan(stages)
	require.Error(t, err)
}

func TestTopologicalNamesMatchesExecutionOrder(t *testing.T) {
	stages := []Stage{
		{Name: "plan"},
		{Name: "impl", Dependencies: []string{"plan"}},
		{Name: "test", Dependencies: []string{"impl"}},
	}

	waves, err := Plan(stages)
	require.NoError(t, err)
	assert.Equal(t, []string{"plan", "impl", "test"}, TopologicalNames(waves))
}
