package expr

import (
	"testing"

	"github.com/codeready-toolchain/batchctl/internal/runconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sailorStep() runconfig.StepConfig {
	return runconfig.StepConfig{
		Name:  "walk",
		Scope: runconfig.ScopeExpression,
		Init: runconfig.ExprBlock{
			{Name: "pos", Expr: "5"},
			{Name: "path", Expr: "[5]"},
		},
		Expressions: runconfig.ExprBlock{
			{Name: "move", Expr: "random.choice([-1,1])"},
			{Name: "pos", Expr: "pos+move"},
			{Name: "path", Expr: "path+[pos]"},
		},
		LoopUntil:     "pos <= 0 or pos >= 10",
		MaxIterations: 1000,
	}
}

func TestLoopUntilDeterministicAcrossInvocations(t *testing.T) {
	step := sailorStep()

	r1, err := RunStage(step, "sailor_alpha", nil, map[string]any{})
	require.NoError(t, err)

	r2, err := RunStage(step, "sailor_alpha", nil, map[string]any{})
	require.NoError(t, err)

	assert.Equal(t, r1.Fields["pos"], r2.Fields["pos"])
	assert.Equal(t, r1.Fields["path"], r2.Fields["path"])
	assert.Equal(t, r1.Iterations, r2.Iterations)
}

func TestLoopUntilEmitsIterationMetadataNotFailure(t *testing.T) {
	step := sailorStep()
	result, err := RunStage(step, "sailor_alpha", nil, map[string]any{})
	require.NoError(t, err)

	meta, ok := result.Fields["_metadata"].(map[string]any)
	require.True(t, ok)
	assert.GreaterOrEqual(t, meta["iterations"], int64(1))
	assert.False(t, result.TimedOut)
}

func TestLoopUntilMaxIterationsIsNotAFailure(t *testing.T) {
	step := sailorStep()
	step.MaxIterations = 1 // force timeout almost immediately
	result, err := RunStage(step, "sailor_beta", nil, map[string]any{})
	require.NoError(t, err)

	meta := result.Fields["_metadata"].(map[string]any)
	assert.Equal(t, true, meta["timeout"])
	assert.Equal(t, int64(1), meta["iterations"])
	assert.True(t, result.TimedOut)
}

func TestDrunkenSailorStatisticalOutcome(t *testing.T) {
	step := sailorStep()

	waterCount := 0
	trials := 1000
	for i := 0; i < trials; i++ {
		unitID := unitIDFor(i)
		result, err := RunStage(step, unitID, nil, map[string]any{})
		require.NoError(t, err)
		pos, _ := toNumber(result.Fields["pos"])
		if pos <= 0 {
			waterCount++
		}
	}

	pct := float64(waterCount) / float64(trials) * 100
	assert.GreaterOrEqual(t, pct, 40.0, "fall-in-water outcome should land in [40,60] percent")
	assert.LessOrEqual(t, pct, 60.0, "fall-in-water outcome should land in [40,60] percent")
}

func unitIDFor(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	id := make([]byte, 0, 8)
	n := i
	for {
		id = append(id, letters[n%len(letters)])
		n /= len(letters)
		if n == 0 {
			break
		}
	}
	return "sailor_" + string(id)
}
