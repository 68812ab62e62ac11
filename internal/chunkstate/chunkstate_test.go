package chunkstate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartState(t *testing.T) {
	m := New([]string{"generate", "score"})
	assert.Equal(t, "generate_PENDING", m.Start())
}

func TestSubmitRequiresPending(t *testing.T) {
	m := New([]string{"generate", "score"})
	next, err := m.Submit("chunk_000", "generate_PENDING")
	require.NoError(t, err)
	assert.Equal(t, "generate_SUBMITTED", next)

	_, err = m.Submit("chunk_000", "generate_SUBMITTED")
	assert.Error(t, err)
	var te *TransitionError
	assert.True(t, errors.As(err, &te))
}

func TestAdvanceAfterCompletionMovesToNextStage(t *testing.T) {
	m := New([]string{"generate", "score"})
	next, err := m.AdvanceAfterCompletion("chunk_000", "generate_SUBMITTED", 50, 0)
	require.NoError(t, err)
	assert.Equal(t, "score_PENDING", next)
}

func TestAdvanceAfterCompletionReachesValidatedAtLastStage(t *testing.T) {
	m := New([]string{"generate", "score"})
	next, err := m.AdvanceAfterCompletion("chunk_000", "score_SUBMITTED", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, Validated, next)
}

func TestZeroValidGuardForcesFailed(t *testing.T) {
	m := New([]string{"generate", "score"})
	next, err := m.AdvanceAfterCompletion("chunk_000", "generate_SUBMITTED", 0, 5)
	require.NoError(t, err)
	assert.Equal(t, Failed, next)
}

func TestResetTransientRequiresSubmitted(t *testing.T) {
	m := New([]string{"generate"})
	next, err := m.ResetTransient("chunk_000", "generate_SUBMITTED")
	require.NoError(t, err)
	assert.Equal(t, "generate_PENDING", next)

	_, err = m.ResetTransient("chunk_000", "generate_PENDING")
	assert.Error(t, err)
}

func TestResetForRetryRefusesNonTerminal(t *testing.T) {
	m := New([]string{"generate", "score"})

	_, err := m.ResetForRetry("chunk_000", "score_SUBMITTED", "generate")
	assert.Error(t, err, "must not touch an in-flight _SUBMITTED chunk")

	next, err := m.ResetForRetry("chunk_000", Failed, "generate")
	require.NoError(t, err)
	assert.Equal(t, "generate_PENDING", next)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(Validated))
	assert.True(t, IsTerminal(Failed))
	assert.False(t, IsTerminal("generate_PENDING"))
	assert.False(t, IsTerminal("generate_SUBMITTED"))
}

func TestStageExtraction(t *testing.T) {
	stage, ok := Stage("generate_PENDING")
	assert.True(t, ok)
	assert.Equal(t, "generate", stage)

	stage, ok = Stage("generate_SUBMITTED")
	assert.True(t, ok)
	assert.Equal(t, "generate", stage)

	_, ok = Stage(Validated)
	assert.False(t, ok)
}
