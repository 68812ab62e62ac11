// Package chunkstate implements the Chunk State Machine (§4.2): the state
// string grammar, valid transitions, and the invariants that keep an
// in-flight batch from ever being orphaned.
package chunkstate

import (
	"fmt"
	"strings"
)

const (
	suffixPending   = "_PENDING"
	suffixSubmitted = "_SUBMITTED"

	Validated = "VALIDATED"
	Failed    = "FAILED"
)

// Pending returns the "{stage}_PENDING" state string for stage.
func Pending(stage string) string { return stage + suffixPending }

// Submitted returns the "{stage}_SUBMITTED" state string for stage (batch
// mode, LLM stages only).
func Submitted(stage string) string { return stage + suffixSubmitted }

// IsPending reports whether state is "{stage}_PENDING" for the given stage.
func IsPending(state, stage string) bool { return state == Pending(stage) }

// IsSubmitted reports whether state is "{stage}_SUBMITTED" for the given stage.
func IsSubmitted(state, stage string) bool { return state == Submitted(stage) }

// IsTerminal reports whether state is VALIDATED or FAILED. The
// retry-recovery scan (§4.5) and the tick loop's terminal check both gate
// on this.
func IsTerminal(state string) bool {
	return state == Validated || state == Failed
}

// Stage extracts the stage name from a "{stage}_PENDING" or
// "{stage}_SUBMITTED" state string. Returns ("", false) for VALIDATED,
// FAILED, or any unrecognised string.
func Stage(state string) (string, bool) {
	switch {
	case strings.HasSuffix(state, suffixSubmitted):
		return strings.TrimSuffix(state, suffixSubmitted), true
	case strings.HasSuffix(state, suffixPending):
		return strings.TrimSuffix(state, suffixPending), true
	default:
		return "", false
	}
}

// TransitionError reports an attempted transition that would violate a
// chunk state machine invariant.
type TransitionError struct {
	Chunk string
	From  string
	To    string
	Msg   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("chunk %s: illegal transition %s -> %s: %s", e.Chunk, e.From, e.To, e.Msg)
}

// Machine drives one chunk's state string through the transitions of §4.2
// for a fixed pipeline stage order.
type Machine struct {
	stages []string
}

// New builds a Machine for the given ordered pipeline stage names
// (LLM and expression stages alike — run-scope stages never appear in a
// chunk's per-stage state string, they execute once in the epilogue, so
// callers pass only the chunk-scoped stages here).
func New(stages []string) *Machine {
	cp := make([]string, len(stages))
	copy(cp, stages)
	return &Machine{stages: cp}
}

// Start returns the initial state for a newly created chunk: "s1_PENDING".
func (m *Machine) Start() string {
	if len(m.stages) == 0 {
		return Validated
	}
	return Pending(m.stages[0])
}

func (m *Machine) nextStage(stage string) (string, bool) {
	for i, s := range m.stages {
		if s == stage {
			if i+1 < len(m.stages) {
				return m.stages[i+1], true
			}
			return "", false
		}
	}
	return "", false
}

// Submit transitions "{stage}_PENDING" -> "{stage}_SUBMITTED" when a batch
// file has been uploaded and a batch_id assigned (LLM stage, batch mode).
func (m *Machine) Submit(chunkName, state string) (string, error) {
	stage, ok := Stage(state)
	if !ok || !strings.HasSuffix(state, suffixPending) {
		return "", &TransitionError{chunkName, state, "_SUBMITTED", "submit requires a _PENDING state"}
	}
	return Submitted(stage), nil
}

// AdvanceAfterCompletion transitions a chunk off "{stage}_SUBMITTED" (batch
// mode) or "{stage}_PENDING" (realtime/expression, where SUBMITTED is
// elided) once the stage result is known. validCount/failedCount describe
// the just-completed stage's outcome.
//
// The zero-valid guard (§4.2 Invariants) fires here: zero valid units with
// at least one failure forces FAILED rather than advancing with an empty
// input, since providers reject empty batches and that produces an
// infinite transient-retry loop.
func (m *Machine) AdvanceAfterCompletion(chunkName, state string, validCount, failedCount int) (string, error) {
	stage, ok := Stage(state)
	if !ok {
		return "", &TransitionError{chunkName, state, "", "advance requires a _PENDING or _SUBMITTED state"}
	}

	if validCount == 0 && failedCount > 0 {
		return Failed, nil
	}

	next, has := m.nextStage(stage)
	if !has {
		return Validated, nil
	}
	return Pending(next), nil
}

// ResetTransient transitions "{stage}_SUBMITTED" back to "{stage}_PENDING"
// on a transient provider failure (caller increments the chunk's retry
// counter and compares it against max_attempts before calling this; once
// exhausted the caller should mark FAILED instead).
func (m *Machine) ResetTransient(chunkName, state string) (string, error) {
	stage, ok := Stage(state)
	if !ok || !strings.HasSuffix(state, suffixSubmitted) {
		return "", &TransitionError{chunkName, state, "_PENDING", "transient reset requires a _SUBMITTED state"}
	}
	return Pending(stage), nil
}

// ResetForRetry rewrites a terminal chunk's state back to "{stage}_PENDING"
// for the retry-recovery scan (§4.5). The caller MUST have already verified
// IsTerminal(state) — this function refuses to touch a non-terminal chunk,
// since doing so would orphan an in-flight batch.
func (m *Machine) ResetForRetry(chunkName, state, stage string) (string, error) {
	if !IsTerminal(state) {
		return "", &TransitionError{chunkName, state, Pending(stage), "retry-recovery may only reset chunks in a terminal state"}
	}
	return Pending(stage), nil
}
