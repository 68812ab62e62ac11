package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codeready-toolchain/batchctl/internal/chunkstate"
	"github.com/codeready-toolchain/batchctl/internal/cost"
	"github.com/codeready-toolchain/batchctl/internal/expr"
	"github.com/codeready-toolchain/batchctl/internal/manifest"
	"github.com/codeready-toolchain/batchctl/internal/provider"
	"github.com/codeready-toolchain/batchctl/internal/renderer"
	"github.com/codeready-toolchain/batchctl/internal/runconfig"
	"github.com/codeready-toolchain/batchctl/internal/telemetry"
	"github.com/codeready-toolchain/batchctl/internal/validate"
)

// decodeJSONObject parses a provider response body into a plain object
// map, rejecting anything that isn't a top-level JSON object.
func decodeJSONObject(s string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decoding response as a JSON object: %w", err)
	}
	return out, nil
}

// RunBatch drives the batch-mode tick loop (§4.3 "Batch mode body"): poll,
// submit, terminal check, sleep — repeated until every chunk is terminal
// or an interrupt is observed.
func (o *Orchestrator) RunBatch(ctx context.Context) error {
	o.RunLog.Log(telemetry.TagBatch, "starting batch tick loop", "run", o.Manifest.RunName)

	for {
		if o.HandleInterrupt() {
			return nil
		}

		if err := o.Tick(ctx); err != nil {
			return err
		}

		if o.Manifest.AllTerminal() {
			o.RunLog.Log(telemetry.TagBatch, "all chunks terminal, entering epilogue")
			return o.Epilogue(ctx)
		}

		if o.HandleInterrupt() {
			return nil
		}
		o.sleepWithHeartbeat(ctx)
	}
}

// Tick executes exactly one batch-loop iteration — poll every in-flight
// chunk, then submit every pending chunk up to max_inflight_batches — with
// no sleep and no repetition (§6.3 "--tick: Execute exactly one tick of
// the batch loop"). RunBatch itself is this method called in a loop with
// a heartbeat-bearing sleep between iterations.
func (o *Orchestrator) Tick(ctx context.Context) error {
	if err := o.pollPhase(ctx); err != nil {
		return err
	}
	if err := o.save(); err != nil {
		return fmt.Errorf("orchestrator: saving manifest after poll phase: %w", err)
	}

	if o.HandleInterrupt() {
		return nil
	}

	if err := o.submitPhase(ctx); err != nil {
		return err
	}
	if err := o.save(); err != nil {
		return fmt.Errorf("orchestrator: saving manifest after submit phase: %w", err)
	}
	return nil
}

// pollPhase queries every _SUBMITTED chunk's batch status, fanned out
// concurrently bounded by max_inflight_batches (§5 "individual provider
// calls ... may run concurrently, bounded by max_inflight_batches").
func (o *Orchestrator) pollPhase(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit := o.Config.API.MaxInflightBatches; limit > 0 {
		g.SetLimit(limit)
	}

	for i := range o.Manifest.Chunks {
		chunk := &o.Manifest.Chunks[i]
		stage, ok := chunkstate.Stage(chunk.State)
		if !ok || !chunkstate.IsSubmitted(chunk.State, stage) {
			continue
		}
		chunk := chunk
		stage := stage
		g.Go(func() error {
			return o.pollChunk(gctx, chunk, stage)
		})
	}

	return g.Wait()
}

func (o *Orchestrator) pollChunk(ctx context.Context, chunk *manifest.Chunk, stage string) error {
	step, err := o.Config.Steps.Get(stage)
	if err != nil {
		return err
	}
	providerName := o.providerFor(step)
	p, ok := o.Providers[providerName]
	if !ok {
		return fmt.Errorf("orchestrator: no provider wired for %q", providerName)
	}

	info, err := p.GetBatchStatus(ctx, chunk.BatchID)
	if err != nil {
		return o.handleBatchFailure(chunk, stage, err)
	}
	chunk.ProviderStatus = info.ProviderStatus

	if !info.Status.Terminal() {
		return nil
	}
	if info.Status != provider.StatusCompleted {
		return o.handleBatchFailure(chunk, stage, fmt.Errorf("batch %s: provider reported %s", chunk.BatchID, info.Status))
	}

	return o.collectChunk(ctx, chunk, stage, p)
}

// handleBatchFailure applies §4.3's poll-phase failure handling: a fatal
// provider error aborts the chunk immediately; anything else is
// transient, resetting the chunk for resubmission until max_attempts is
// exhausted.
func (o *Orchestrator) handleBatchFailure(chunk *manifest.Chunk, stage string, err error) error {
	if perr, ok := err.(*provider.ProviderError); ok && perr.Fatal() {
		chunk.State = chunkstate.Failed
		o.RunLog.Error(telemetry.TagError, "fatal provider error", "chunk", chunk.Name, "stage", stage, "error", err)
		return nil
	}

	chunk.RetryCount++
	maxAttempts := o.Config.API.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if chunk.RetryCount > maxAttempts {
		chunk.State = chunkstate.Failed
		o.RunLog.Error(telemetry.TagError, "exhausted retry attempts", "chunk", chunk.Name, "stage", stage, "attempts", maxAttempts, "error", err)
		return nil
	}

	newState, resetErr := o.machine.ResetTransient(chunk.Name, chunk.State)
	if resetErr != nil {
		return resetErr
	}
	chunk.State = newState
	chunk.BatchID = ""
	o.RunLog.Log(telemetry.TagRetry, "transient batch failure",
		"chunk", chunk.Name, "stage", stage, "attempt", chunk.RetryCount, "max_attempts", maxAttempts, "error", err)
	return nil
}

// collectChunk downloads a completed batch's results, runs both
// validation phases, writes the stage's validated/failures files, and
// advances the chunk state.
func (o *Orchestrator) collectChunk(ctx context.Context, chunk *manifest.Chunk, stage string, p provider.Provider) error {
	items, meta, err := p.DownloadBatchResults(ctx, chunk.BatchID)
	if err != nil {
		return o.handleBatchFailure(chunk, stage, err)
	}
	o.RunLog.Log(telemetry.TagCollect, "downloaded batch results", "chunk", chunk.Name, "stage", stage, "count", len(items))

	inputRecords, err := o.stageInput(chunk.Name, stage)
	if err != nil {
		return err
	}
	byID := recordsByUnitID(inputRecords)

	step, err := o.Config.Steps.Get(stage)
	if err != nil {
		return err
	}

	unitIDs := make([]string, 0, len(items))
	merged := make([]map[string]any, 0, len(items))
	var internalFailures []validate.FailureRecord

	for _, item := range items {
		base, ok := byID[item.UnitID]
		if !ok {
			internalFailures = append(internalFailures, validate.InternalFailure(item.UnitID, stage, "no matching stage input record", item.Content))
			continue
		}
		if item.Error != "" {
			internalFailures = append(internalFailures, validate.InternalFailure(item.UnitID, stage, item.Error, item.Content))
			continue
		}

		sanitized := validate.Sanitize(item.Content)
		parsed, perr := decodeJSONObject(sanitized)
		if perr != nil {
			internalFailures = append(internalFailures, validate.InternalFailure(item.UnitID, stage, perr.Error(), item.Content))
			continue
		}

		record := injectReserved(renderer.Merge(base, parsed), item.UnitID)
		unitIDs = append(unitIDs, item.UnitID)
		merged = append(merged, record)
	}

	rules := o.Config.Validation[stage]
	schema, err := o.schemas.get(stage)
	if err != nil {
		return err
	}

	outcomes, err := validate.RunPipeline(ctx, unitIDs, merged, stage, schema, rules, o.validationBudget())
	if err != nil {
		return fmt.Errorf("orchestrator: chunk %s stage %s: %w", chunk.Name, stage, err)
	}

	var validRecords []map[string]any
	var failures []map[string]any
	for _, o2 := range outcomes {
		if o2.Passed {
			validRecords = append(validRecords, o2.Record)
		} else {
			failures = append(failures, failureToRecord(*o2.Failure))
		}
	}
	for _, f := range internalFailures {
		failures = append(failures, failureToRecord(f))
	}

	addr := o.Run.Chunk(chunk.Name)
	if err := provider.WriteNDJSON(addr.Validated(stage), validRecords); err != nil {
		return err
	}
	if err := provider.WriteNDJSON(addr.Failures(stage), failures); err != nil {
		return err
	}

	o.metaMu.Lock()
	providerName := o.providerFor(step)
	model := o.modelFor(step, providerName)
	cost.Record(o.Manifest, o.Registry, providerName, model, meta.TotalInputTokens, meta.TotalOutputTokens, true, chunk.RetryCount > 0)
	o.metaMu.Unlock()

	chunk.ValidCount += len(validRecords)
	chunk.FailedCount += len(failures)
	chunk.InputTokens += meta.TotalInputTokens
	chunk.OutputTokens += meta.TotalOutputTokens

	newState, err := o.machine.AdvanceAfterCompletion(chunk.Name, chunk.State, len(validRecords), len(failures))
	if err != nil {
		return err
	}
	chunk.State = newState
	o.RunLog.Log(telemetry.TagValidate, "stage validated",
		"chunk", chunk.Name, "stage", stage, "new_state", newState, "valid", len(validRecords), "failed", len(failures))

	return nil
}

// submitPhase advances every _PENDING chunk one step: expression stages
// evaluate locally and advance immediately; LLM stages render and submit
// a batch when under max_inflight_batches, otherwise the chunk waits and
// the tick logs a single throttle summary.
func (o *Orchestrator) submitPhase(ctx context.Context) error {
	inflight := 0
	for _, c := range o.Manifest.Chunks {
		if stage, ok := chunkstate.Stage(c.State); ok && chunkstate.IsSubmitted(c.State, stage) {
			inflight++
		}
	}

	waiting := 0
	maxInflight := o.Config.API.MaxInflightBatches

	for i := range o.Manifest.Chunks {
		chunk := &o.Manifest.Chunks[i]
		stage, ok := chunkstate.Stage(chunk.State)
		if !ok || !chunkstate.IsPending(chunk.State, stage) {
			continue
		}

		step, err := o.Config.Steps.Get(stage)
		if err != nil {
			return err
		}

		if step.IsExpression() {
			if err := o.evaluateExpressionChunk(chunk, step); err != nil {
				return err
			}
			continue
		}

		if maxInflight > 0 && inflight >= maxInflight {
			waiting++
			continue
		}

		if err := o.submitChunk(ctx, chunk, step); err != nil {
			return err
		}
		inflight++
	}

	if waiting > 0 {
		cost.LogThrottle(o.RunLog.Logger(), waiting, inflight, maxInflight)
	}

	return nil
}

// evaluateExpressionChunk runs a local expression stage for every unit in
// a chunk (§4.3 "Expression stages in batch mode" — never SUBMITTED,
// counted against progress, zero tokens/cost).
func (o *Orchestrator) evaluateExpressionChunk(chunk *manifest.Chunk, step runconfig.StepConfig) error {
	records, err := o.stageInput(chunk.Name, step.Name)
	if err != nil {
		return err
	}

	var validRecords, failures []map[string]any
	for _, rec := range records {
		unitID, _ := rec["unit_id"].(string)
		repSeed := repetitionSeedOf(rec)

		result, err := expr.RunStage(step, unitID, repSeed, rec)
		if err != nil {
			failures = append(failures, failureToRecord(validate.InternalFailure(unitID, step.Name, err.Error(), "")))
			continue
		}
		validRecords = append(validRecords, injectReserved(result.Fields, unitID))
	}

	addr := o.Run.Chunk(chunk.Name)
	if err := provider.WriteNDJSON(addr.Validated(step.Name), validRecords); err != nil {
		return err
	}
	if err := provider.WriteNDJSON(addr.Failures(step.Name), failures); err != nil {
		return err
	}

	chunk.ValidCount += len(validRecords)
	chunk.FailedCount += len(failures)

	newState, err := o.machine.AdvanceAfterCompletion(chunk.Name, chunk.State, len(validRecords), len(failures))
	if err != nil {
		return err
	}
	chunk.State = newState
	o.RunLog.Log(telemetry.TagExpression, "expression stage evaluated", "chunk", chunk.Name, "stage", step.Name, "new_state", newState)
	return nil
}

// submitChunk renders every unit's prompt, builds the provider batch
// request file, uploads and creates the batch, and transitions the chunk
// to _SUBMITTED.
func (o *Orchestrator) submitChunk(ctx context.Context, chunk *manifest.Chunk, step runconfig.StepConfig) error {
	records, err := o.stageInput(chunk.Name, step.Name)
	if err != nil {
		return err
	}

	providerName := o.providerFor(step)
	p, ok := o.Providers[providerName]
	if !ok {
		return fmt.Errorf("orchestrator: no provider wired for %q", providerName)
	}

	schema, err := o.schemas.get(step.Name)
	if err != nil {
		return err
	}
	schemaDoc := schema.Document()

	addr := o.Run.Chunk(chunk.Name)
	var prompts []map[string]any
	var requests []map[string]any
	for _, rec := range records {
		unitID, _ := rec["unit_id"].(string)
		prompt, err := o.renderPrompt(step, rec)
		if err != nil {
			return fmt.Errorf("orchestrator: chunk %s: rendering prompt for unit %s: %w", chunk.Name, unitID, err)
		}
		prompts = append(prompts, map[string]any{"unit_id": unitID, "prompt": prompt})

		req, err := p.FormatBatchRequest(unitID, prompt, schemaDoc)
		if err != nil {
			return fmt.Errorf("orchestrator: chunk %s: formatting batch request for unit %s: %w", chunk.Name, unitID, err)
		}
		requests = append(requests, req)
	}

	if err := provider.WriteNDJSON(addr.Prompts(step.Name), prompts); err != nil {
		return err
	}
	if err := provider.WriteNDJSON(addr.Results(step.Name), requests); err != nil {
		return err
	}

	fileID, err := p.UploadBatchFile(ctx, addr.Results(step.Name))
	if err != nil {
		return err
	}
	batchID, err := p.CreateBatch(ctx, fileID)
	if err != nil {
		return err
	}

	chunk.BatchID = batchID
	chunk.Mode = manifest.ModeBatch
	now := time.Now()
	chunk.SubmittedAt = &now

	newState, err := o.machine.Submit(chunk.Name, chunk.State)
	if err != nil {
		return err
	}
	chunk.State = newState
	o.RunLog.Log(telemetry.TagSubmit, "submitted batch",
		"chunk", chunk.Name, "stage", step.Name, "batch_id", batchID, "units", len(records))
	return nil
}

// sleepWithHeartbeat waits poll_interval_seconds, or until the context is
// cancelled, logging a deduplicated heartbeat if ~60s of idle time has
// passed (§4.3 "Sleep").
func (o *Orchestrator) sleepWithHeartbeat(ctx context.Context) {
	interval := time.Duration(o.Config.API.PollIntervalSeconds * float64(time.Second))
	if interval <= 0 {
		interval = 5 * time.Second
	}

	now := time.Now()
	breakdown := o.chunkStateBreakdown()
	o.Heartbeat.Tick(o.RunLog, now, "idle", "chunk_states", breakdown, "total_cost_usd", o.Manifest.Metadata.TotalCostUSD)

	select {
	case <-ctx.Done():
	case <-time.After(interval):
	}
}

func (o *Orchestrator) chunkStateBreakdown() map[string]int {
	out := make(map[string]int)
	for _, c := range o.Manifest.Chunks {
		out[c.State]++
	}
	return out
}

func repetitionSeedOf(rec map[string]any) *uint32 {
	raw, ok := rec["_repetition_seed"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case uint32:
		return &v
	case float64:
		u := uint32(v)
		return &u
	case int:
		u := uint32(v)
		return &u
	default:
		return nil
	}
}

func failureToRecord(f validate.FailureRecord) map[string]any {
	return map[string]any{
		"unit_id":       f.UnitID,
		"stage":         f.Stage,
		"failure_stage": string(f.FailureStage),
		"message":       f.Message,
		"path":          f.Path,
		"rule":          f.Rule,
		"raw_response":  f.RawResponse,
		"coercions":     f.Coercions,
	}
}
