package orchestrator

import (
	"fmt"
	"os"

	"github.com/codeready-toolchain/batchctl/internal/chunkstate"
	"github.com/codeready-toolchain/batchctl/internal/manifest"
	"github.com/codeready-toolchain/batchctl/internal/provider"
	"github.com/codeready-toolchain/batchctl/internal/telemetry"
	"github.com/codeready-toolchain/batchctl/internal/validate"
)

// retryRecoveryScan implements §4.5: for every terminal chunk, find the
// earliest chunk-scoped stage whose {stage}_failures.jsonl contains a
// retryable record, archive that file, preserve only the unretryable
// (pipeline_internal) records, and reset the chunk back to that stage's
// _PENDING state. A chunk resets at most once per scan — once it is
// reset, later stages in its pipeline haven't run yet for this pass, so
// there is nothing further to find for it this time around.
//
// The state-machine guard (chunkstate.IsTerminal) enforces the critical
// invariant that a _SUBMITTED chunk is never touched here.
func (o *Orchestrator) retryRecoveryScan() (int, error) {
	resetCount := 0

	for i := range o.Manifest.Chunks {
		chunk := &o.Manifest.Chunks[i]
		if !chunkstate.IsTerminal(chunk.State) {
			continue
		}

		for _, step := range o.Config.Steps.ChunkSteps() {
			reset, err := o.resetChunkIfRetryable(chunk, step.Name)
			if err != nil {
				return resetCount, err
			}
			if reset {
				resetCount++
				break
			}
		}
	}

	return resetCount, nil
}

// resetChunkIfRetryable inspects chunk's failures file for stage; if it
// holds at least one retryable record, it performs the archive-reset and
// reports true. Otherwise it leaves the chunk untouched and reports false.
func (o *Orchestrator) resetChunkIfRetryable(chunk *manifest.Chunk, stage string) (bool, error) {
	addr := o.Run.Chunk(chunk.Name)
	failuresPath := addr.Failures(stage)

	records, err := provider.ReadNDJSON(failuresPath)
	if err != nil {
		return false, nil // no failures file for this stage, nothing to recover
	}

	var retryable, keep []map[string]any
	for _, rec := range records {
		stageVal, _ := rec["failure_stage"].(string)
		if validate.FailureStage(stageVal).Retryable() {
			retryable = append(retryable, rec)
		} else {
			keep = append(keep, rec)
		}
	}
	if len(retryable) == 0 {
		return false, nil
	}

	bakPath := addr.FailuresBak(stage)
	if err := os.Rename(failuresPath, bakPath); err != nil {
		return false, fmt.Errorf("archiving %s: %w", failuresPath, err)
	}
	if err := provider.WriteNDJSON(failuresPath, keep); err != nil {
		return false, fmt.Errorf("rewriting %s: %w", failuresPath, err)
	}

	newState, err := o.machine.ResetForRetry(chunk.Name, chunk.State, stage)
	if err != nil {
		return false, err
	}
	chunk.State = newState
	chunk.BatchID = ""
	chunk.ProviderStatus = ""
	chunk.SubmittedAt = nil
	chunk.RetryCount++

	o.RunLog.Log(telemetry.TagRetry, "archived retryable failures, chunk reset",
		"chunk", chunk.Name, "count", len(retryable), "stage", stage, "new_state", newState)

	return true, nil
}
