package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/codeready-toolchain/batchctl/internal/chunkstate"
	"github.com/codeready-toolchain/batchctl/internal/cost"
	"github.com/codeready-toolchain/batchctl/internal/layout"
	"github.com/codeready-toolchain/batchctl/internal/manifest"
	"github.com/codeready-toolchain/batchctl/internal/provider"
	"github.com/codeready-toolchain/batchctl/internal/renderer"
	"github.com/codeready-toolchain/batchctl/internal/runconfig"
	"github.com/codeready-toolchain/batchctl/internal/telemetry"
	"github.com/codeready-toolchain/batchctl/internal/validate"
)

// errAbortRun is returned internally when a realtime pass must stop the
// whole run rather than just the current chunk: a fatal provider error
// (§4.3 "fatal provider errors bypass retry and abort the run") or a
// crossed cost cap (§4.9).
type errAbortRun struct {
	reason string
	paused bool // true: mark paused (resumable, e.g. cost cap); false: mark failed
}

func (e *errAbortRun) Error() string { return e.reason }

// RunRealtime drives the realtime convergence loop (§4.3 "Realtime mode
// body"). Stage advancement during a pass can re-enable an earlier stage
// on a retry-recovered chunk, so the loop runs multiple passes over the
// full stage order, bounded by pipeline_length+1, until nothing advances.
func (o *Orchestrator) RunRealtime(ctx context.Context) error {
	steps := o.Config.Steps.ChunkSteps()
	maxPasses := len(steps) + 1

	for pass := 0; pass < maxPasses; pass++ {
		if o.HandleInterrupt() {
			return nil
		}

		progressed, err := o.realtimePass(ctx, steps)
		if err != nil {
			if abort, ok := err.(*errAbortRun); ok {
				return o.abortRealtimeRun(abort)
			}
			return err
		}
		if err := o.save(); err != nil {
			return fmt.Errorf("orchestrator: saving manifest after realtime pass: %w", err)
		}

		if o.Manifest.AllTerminal() {
			return o.Epilogue(ctx)
		}
		if o.HandleInterrupt() {
			return nil
		}
		if !progressed {
			break
		}
	}

	return o.Epilogue(ctx)
}

func (o *Orchestrator) abortRealtimeRun(a *errAbortRun) error {
	if a.paused {
		o.Manifest.Status = manifest.StatusPaused
		now := time.Now()
		o.Manifest.PausedAt = &now
		o.Manifest.Metadata.PausedReason = a.reason
	} else {
		o.Manifest.Status = manifest.StatusFailed
		o.Manifest.Metadata.FailureReason = a.reason
	}
	o.RunLog.Error(telemetry.TagError, "realtime run aborted", "reason", a.reason, "paused", a.paused)
	return o.save()
}

// realtimePass processes every chunk currently pending at some stage, in
// stage order, and reports whether any chunk advanced (used to decide
// whether another pass could make progress).
func (o *Orchestrator) realtimePass(ctx context.Context, steps []runconfig.StepConfig) (bool, error) {
	progressed := false

	for _, step := range steps {
		for i := range o.Manifest.Chunks {
			chunk := &o.Manifest.Chunks[i]
			if !chunkstate.IsPending(chunk.State, step.Name) {
				continue
			}

			advanced, err := o.realtimeChunkStage(ctx, chunk, step)
			if err != nil {
				return progressed, err
			}
			if advanced {
				progressed = true
			}

			if o.HandleInterrupt() {
				return progressed, nil
			}
		}
	}

	return progressed, nil
}

// realtimeChunkStage runs one chunk through one stage in realtime mode:
// the SUBMITTED state is elided entirely (§4.2), so a pending chunk is
// called, validated, and advanced within a single pass.
func (o *Orchestrator) realtimeChunkStage(ctx context.Context, chunk *manifest.Chunk, step runconfig.StepConfig) (bool, error) {
	if step.IsExpression() {
		return true, o.evaluateExpressionChunk(chunk, step)
	}

	records, err := o.stageInput(chunk.Name, step.Name)
	if err != nil {
		return false, err
	}
	addr := o.Run.Chunk(chunk.Name)

	if o.realtimeSkip(addr, step.Name, len(records)) {
		o.RunLog.Log(telemetry.TagSkip, "realtime stage already ~complete, skipping", "chunk", chunk.Name, "stage", step.Name)
		validated, _ := provider.ReadNDJSON(addr.Validated(step.Name))
		newState, err := o.machine.AdvanceAfterCompletion(chunk.Name, chunk.State, len(validated), 0)
		if err != nil {
			return false, err
		}
		chunk.State = newState
		return true, nil
	}

	providerName := o.providerFor(step)
	p, ok := o.Providers[providerName]
	if !ok {
		return false, fmt.Errorf("orchestrator: no provider wired for %q", providerName)
	}
	schema, err := o.schemas.get(step.Name)
	if err != nil {
		return false, err
	}
	schemaDoc := schema.Document()
	rules := o.Config.Validation[step.Name]

	var validRecords, failures []map[string]any
	for _, rec := range records {
		unitID, _ := rec["unit_id"].(string)

		record, failure, err := o.callUnitWithRetry(ctx, chunk, step, p, schema, schemaDoc, rules, unitID, rec)
		if err != nil {
			return false, err
		}
		if failure != nil {
			failures = append(failures, failureToRecord(*failure))
			continue
		}
		validRecords = append(validRecords, record)

		spent := o.Manifest.Metadata.TotalCostUSD
		if capErr := cost.CheckCap(o.Config.API.Realtime.CostCapUSD, spent); capErr != nil {
			if err := o.flushRealtimeProgress(addr, step.Name, validRecords, failures); err != nil {
				return false, err
			}
			return false, &errAbortRun{reason: capErr.Error(), paused: true}
		}
	}

	if err := o.flushRealtimeProgress(addr, step.Name, validRecords, failures); err != nil {
		return false, err
	}

	chunk.ValidCount += len(validRecords)
	chunk.FailedCount += len(failures)
	chunk.Mode = manifest.ModeRealtime

	newState, err := o.machine.AdvanceAfterCompletion(chunk.Name, chunk.State, len(validRecords), len(failures))
	if err != nil {
		return false, err
	}
	chunk.State = newState
	o.RunLog.Log(telemetry.TagRealtime, "realtime stage completed",
		"chunk", chunk.Name, "stage", step.Name, "new_state", newState, "valid", len(validRecords), "failed", len(failures))
	return true, nil
}

func (o *Orchestrator) flushRealtimeProgress(addr layout.Chunk, stage string, validRecords, failures []map[string]any) error {
	if err := provider.WriteNDJSON(addr.Validated(stage), validRecords); err != nil {
		return err
	}
	return provider.WriteNDJSON(addr.Failures(stage), failures)
}

// callUnitWithRetry runs one unit's realtime call and validation, retrying
// non-fatal failures up to max_attempts with exponential backoff
// (§4.3 "Auto-retry failed units"). A fatal provider error aborts the run
// via errAbortRun regardless of auto_retry.
func (o *Orchestrator) callUnitWithRetry(ctx context.Context, chunk *manifest.Chunk, step runconfig.StepConfig, p provider.Provider, schema *validate.Schema, schemaDoc map[string]any, rules runconfig.StepRules, unitID string, rec map[string]any) (map[string]any, *validate.FailureRecord, error) {
	maxAttempts := o.Config.API.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.Config.API.Retry.InitialDelayDuration()
	bo.Multiplier = o.Config.API.Retry.BackoffMultiplier
	bo.MaxElapsedTime = 0

	var lastFailure *validate.FailureRecord

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if !o.Config.API.Realtime.AutoRetry {
				break
			}
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(bo.NextBackOff()):
			}
		}

		prompt, err := o.renderPrompt(step, rec)
		if err != nil {
			return nil, nil, fmt.Errorf("orchestrator: chunk %s: rendering prompt for unit %s: %w", chunk.Name, unitID, err)
		}

		result, err := p.GenerateRealtime(ctx, prompt, schemaDoc)
		if err != nil {
			if perr, ok := err.(*provider.ProviderError); ok && perr.Fatal() {
				return nil, nil, &errAbortRun{reason: fmt.Sprintf("fatal provider error on unit %s: %v", unitID, err)}
			}
			f := validate.InternalFailure(unitID, step.Name, err.Error(), "")
			lastFailure = &f
			chunk.RetryCount++
			continue
		}

		o.metaMu.Lock()
		providerName := o.providerFor(step)
		model := o.modelFor(step, providerName)
		cost.Record(o.Manifest, o.Registry, providerName, model, result.InputTokens, result.OutputTokens, false, attempt > 0)
		o.metaMu.Unlock()

		sanitized := validate.Sanitize(result.Content)
		parsed, perr := decodeJSONObject(sanitized)
		if perr != nil {
			f := validate.InternalFailure(unitID, step.Name, perr.Error(), result.Content)
			lastFailure = &f
			chunk.RetryCount++
			continue
		}
		merged := injectReserved(renderer.Merge(rec, parsed), unitID)

		outcomes, err := validate.RunPipeline(ctx, []string{unitID}, []map[string]any{merged}, step.Name, schema, rules, o.validationBudget())
		if err != nil {
			return nil, nil, fmt.Errorf("orchestrator: chunk %s unit %s stage %s: %w", chunk.Name, unitID, step.Name, err)
		}
		outcome := outcomes[0]
		if outcome.Passed {
			return outcome.Record, nil, nil
		}

		lastFailure = outcome.Failure
		if !outcome.Failure.FailureStage.Retryable() {
			break
		}
		chunk.RetryCount++
	}

	return nil, lastFailure, nil
}

// realtimeSkip implements the "90% fallback" idempotency guard (§4.2
// Backup File, §4.3): a stage already holding >=90% of expected valid
// units and zero pending failures is considered done, unless a .bak file
// marks an explicit retry recovery in progress.
func (o *Orchestrator) realtimeSkip(addr layout.Chunk, stage string, expected int) bool {
	if expected == 0 {
		return false
	}
	if _, err := os.Stat(addr.FailuresBak(stage)); err == nil {
		return false
	}

	validated, err := provider.ReadNDJSON(addr.Validated(stage))
	if err != nil {
		return false
	}
	failures, err := provider.ReadNDJSON(addr.Failures(stage))
	if err == nil && len(failures) > 0 {
		return false
	}

	return float64(len(validated)) >= 0.9*float64(expected)
}
