package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/targeted/internal/pipeline"
	"github.com/roach88/targeted/internal/testutil"
	"github.com/roach88/targeted/internal/world"
)

func TestRun_PrintShout(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/print_shout.yaml")
	require.NoError(t, err)

	result, err := Run(t.Context(), s, WithWorkers(4))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 4, result.Workers)
	assert.Equal(t, "run-print-shout", result.RunToken)
	assert.Equal(t, []StageTrace{{StagePush, 1}, {StagePrint, 2}, {StageShout, 3}}, result.Stages)
	assert.Equal(t, []string{"ALICE LEAVES is 30", "ALICE SAYS HI is 30", "BOB WAVES is 41"}, result.Lines)
	assert.Equal(t, Skipped{}, result.Skipped)
}

func TestRun_SameLinesForAnyWorkerCount(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/print_shout.yaml")
	require.NoError(t, err)

	var want []string
	for _, workers := range []int{1, 2, 3, 8} {
		result, err := Run(t.Context(), s, WithPool(testutil.NewPool(t, workers)))
		require.NoError(t, err)
		assert.Equal(t, workers, result.Workers)
		if want == nil {
			want = result.Lines
			continue
		}
		assert.Equal(t, want, result.Lines, "workers=%d", workers)
	}
}

func TestRun_DespawnedTargetSkipped(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/despawned_target.yaml")
	require.NoError(t, err)

	result, err := Run(t.Context(), s)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 2, result.Workers)
	assert.Equal(t, Skipped{Print: 2}, result.Skipped)
}

func TestRun_ExpectationMismatch(t *testing.T) {
	skipped := 5
	s := &Scenario{
		Name:     "mismatch",
		Entities: []EntitySpec{{Name: "Alice", Age: 30}},
		Events:   []EventSpec{{Target: 0, Append: "hi"}},
		Expect:   &Expect{Lines: []string{"nope"}, Skipped: &skipped},
	}

	result, err := Run(t.Context(), s, WithWorkers(2))
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "lines:")
	assert.Contains(t, result.Errors[1], "skipped: expected 5, got 0")
}

func TestRun_WithRoster(t *testing.T) {
	roster := world.NewRoster()
	roster.Add("Zed", 90)
	roster.Add("Yan", 12)

	s := &Scenario{
		Name:   "roster",
		Events: []EventSpec{{Target: 1, Append: "jumps"}, {Target: 0, Append: "sits"}},
	}

	result, err := Run(t.Context(), s, WithRoster(roster), WithWorkers(3))
	require.NoError(t, err)
	assert.Equal(t, []string{"YAN JUMPS is 12", "ZED SITS is 90"}, result.Lines)
	assert.Equal(t, testutil.DefaultRunToken, result.RunToken)
}

func TestRun_TargetOutOfRange(t *testing.T) {
	s := &Scenario{
		Name:   "out_of_range",
		Events: []EventSpec{{Target: 0, Append: "hi"}},
	}

	_, err := Run(t.Context(), s, WithWorkers(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target 0 out of range (0 entities)")
}

func TestRun_AffinityChecksDisabled(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/print_shout.yaml")
	require.NoError(t, err)

	result, err := Run(t.Context(), s, WithWorkers(2), WithAffinityChecks(false))
	require.NoError(t, err)
	assert.True(t, result.Pass)
}

func TestRun_SharedClockRestartsEveryRun(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/print_shout.yaml")
	require.NoError(t, err)

	clock := pipeline.NewClock()
	clock.Next() // left over from an earlier user

	first, err := Run(t.Context(), s, WithClock(clock), WithWorkers(1))
	require.NoError(t, err)
	second, err := Run(t.Context(), s, WithClock(clock), WithWorkers(4))
	require.NoError(t, err)

	want := []StageTrace{{StagePush, 1}, {StagePrint, 2}, {StageShout, 3}}
	assert.Equal(t, want, first.Stages)
	assert.Equal(t, want, second.Stages)
	assert.Equal(t, int64(3), clock.Current())
}

func TestRun_CancelledContext(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/print_shout.yaml")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err = Run(ctx, s, WithWorkers(1))
	require.ErrorIs(t, err, context.Canceled)
}
