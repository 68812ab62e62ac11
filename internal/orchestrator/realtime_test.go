package orchestrator

import (
	"context"
	"os"
	"testing"

	"github.com/codeready-toolchain/batchctl/internal/chunkstate"
	"github.com/codeready-toolchain/batchctl/internal/manifest"
	"github.com/codeready-toolchain/batchctl/internal/provider"
	"github.com/codeready-toolchain/batchctl/internal/runconfig"
)

func TestRealtimeChunkStageSucceedsOnFirstAttempt(t *testing.T) {
	h := newTestHarness(t)
	fp := newFakeProvider("fake")
	o := h.newOrchestrator(map[string]provider.Provider{"fake": fp})

	o.Manifest.Chunks = []manifest.Chunk{pendingChunk("chunk-0", "extract", 1)}
	writeUnits(t, o, "chunk-0", []map[string]any{{"unit_id": "u1", "value": "hello"}})

	calls := 0
	fp.generateRealtimeFn = func(ctx context.Context, prompt string, schema map[string]any) (provider.RealtimeResult, error) {
		calls++
		return provider.RealtimeResult{Content: `{"value":"hello-extracted"}`, InputTokens: 10, OutputTokens: 5}, nil
	}

	advanced, err := o.realtimeChunkStage(context.Background(), &o.Manifest.Chunks[0], mustStepConfig(t, o, "extract"))
	if err != nil {
		t.Fatalf("realtimeChunkStage: %v", err)
	}
	if !advanced {
		t.Fatal("expected the stage to report progress")
	}
	if calls != 1 {
		t.Fatalf("expected exactly one realtime call, got %d", calls)
	}

	chunk := o.Manifest.Chunks[0]
	if chunk.State != chunkstate.Pending("classify") {
		t.Fatalf("expected classify_PENDING (SUBMITTED elided), got %s", chunk.State)
	}
	if chunk.ValidCount != 1 || chunk.FailedCount != 0 {
		t.Fatalf("expected 1 valid 0 failed, got valid=%d failed=%d", chunk.ValidCount, chunk.FailedCount)
	}
	if chunk.Mode != manifest.ModeRealtime {
		t.Fatalf("expected realtime mode, got %q", chunk.Mode)
	}
}

func TestRealtimeChunkStageRetriesThenSucceeds(t *testing.T) {
	h := newTestHarness(t)
	fp := newFakeProvider("fake")
	o := h.newOrchestrator(map[string]provider.Provider{"fake": fp})
	o.Config.API.Retry.MaxAttempts = 3

	o.Manifest.Chunks = []manifest.Chunk{pendingChunk("chunk-0", "extract", 1)}
	writeUnits(t, o, "chunk-0", []map[string]any{{"unit_id": "u1", "value": "hello"}})

	calls := 0
	fp.generateRealtimeFn = func(ctx context.Context, prompt string, schema map[string]any) (provider.RealtimeResult, error) {
		calls++
		if calls < 2 {
			return provider.RealtimeResult{}, provider.NewProviderError("fake", 500, "transient", nil)
		}
		return provider.RealtimeResult{Content: `{"value":"hello-extracted"}`, InputTokens: 10, OutputTokens: 5}, nil
	}

	advanced, err := o.realtimeChunkStage(context.Background(), &o.Manifest.Chunks[0], mustStepConfig(t, o, "extract"))
	if err != nil {
		t.Fatalf("realtimeChunkStage: %v", err)
	}
	if !advanced {
		t.Fatal("expected progress after the retry succeeds")
	}
	if calls != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", calls)
	}
	if o.Manifest.Chunks[0].ValidCount != 1 {
		t.Fatalf("expected the retried unit to end up valid, got %+v", o.Manifest.Chunks[0])
	}
}

func TestRealtimeChunkStageFatalProviderErrorAborts(t *testing.T) {
	h := newTestHarness(t)
	fp := newFakeProvider("fake")
	o := h.newOrchestrator(map[string]provider.Provider{"fake": fp})

	o.Manifest.Chunks = []manifest.Chunk{pendingChunk("chunk-0", "extract", 1)}
	writeUnits(t, o, "chunk-0", []map[string]any{{"unit_id": "u1", "value": "hello"}})

	fp.generateRealtimeFn = func(ctx context.Context, prompt string, schema map[string]any) (provider.RealtimeResult, error) {
		return provider.RealtimeResult{}, provider.NewProviderError("fake", 401, "bad credentials", nil)
	}

	_, err := o.realtimeChunkStage(context.Background(), &o.Manifest.Chunks[0], mustStepConfig(t, o, "extract"))
	if err == nil {
		t.Fatal("expected an error from a fatal provider failure")
	}
	abort, ok := err.(*errAbortRun)
	if !ok {
		t.Fatalf("expected *errAbortRun, got %T: %v", err, err)
	}
	if abort.paused {
		t.Fatal("a fatal provider error must not be treated as a resumable pause")
	}
}

func TestRealtimeSkipsAlreadyCompleteStage(t *testing.T) {
	h := newTestHarness(t)
	fp := newFakeProvider("fake")
	o := h.newOrchestrator(map[string]provider.Provider{"fake": fp})

	o.Manifest.Chunks = []manifest.Chunk{pendingChunk("chunk-0", "extract", 10)}
	units := make([]map[string]any, 10)
	for i := range units {
		units[i] = map[string]any{"unit_id": "u" + string(rune('0'+i)), "value": "hello"}
	}
	writeUnits(t, o, "chunk-0", units)

	addr := o.Run.Chunk("chunk-0")
	validated := make([]map[string]any, 9) // 90% of 10
	for i := range validated {
		validated[i] = map[string]any{"unit_id": "u" + string(rune('0'+i)), "value": "hello"}
	}
	if err := provider.WriteNDJSON(addr.Validated("extract"), validated); err != nil {
		t.Fatal(err)
	}

	fp.generateRealtimeFn = func(ctx context.Context, prompt string, schema map[string]any) (provider.RealtimeResult, error) {
		t.Fatal("provider must not be called when the 90% fallback applies")
		return provider.RealtimeResult{}, nil
	}

	advanced, err := o.realtimeChunkStage(context.Background(), &o.Manifest.Chunks[0], mustStepConfig(t, o, "extract"))
	if err != nil {
		t.Fatalf("realtimeChunkStage: %v", err)
	}
	if !advanced {
		t.Fatal("expected the skip path to report progress")
	}
	if o.Manifest.Chunks[0].State != chunkstate.Pending("classify") {
		t.Fatalf("expected advancement past extract, got %s", o.Manifest.Chunks[0].State)
	}
}

func TestRealtimeSkipDoesNotApplyWhenBakFileExists(t *testing.T) {
	h := newTestHarness(t)
	o := h.newOrchestrator(map[string]provider.Provider{"fake": newFakeProvider("fake")})

	addr := o.Run.Chunk("chunk-0")
	if err := os.MkdirAll(addr.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := provider.WriteNDJSON(addr.Validated("extract"), []map[string]any{{"unit_id": "u1"}}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(addr.FailuresBak("extract"), []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}

	if o.realtimeSkip(addr, "extract", 1) {
		t.Fatal("expected skip to be disabled once a .bak archive signals retry-recovery in progress")
	}
}

func TestRunRealtimeAbortsRunOnCostCap(t *testing.T) {
	h := newTestHarness(t)
	fp := newFakeProvider("fake")
	o := h.newOrchestrator(map[string]provider.Provider{"fake": fp})
	o.Config.API.Realtime.CostCapUSD = 0.01

	o.Manifest.Chunks = []manifest.Chunk{pendingChunk("chunk-0", "extract", 1)}
	writeUnits(t, o, "chunk-0", []map[string]any{{"unit_id": "u1", "value": "hello"}})

	fp.generateRealtimeFn = func(ctx context.Context, prompt string, schema map[string]any) (provider.RealtimeResult, error) {
		return provider.RealtimeResult{Content: `{"value":"hello-extracted"}`, InputTokens: 1_000_000, OutputTokens: 1_000_000}, nil
	}

	if err := o.RunRealtime(context.Background()); err != nil {
		t.Fatalf("RunRealtime: %v", err)
	}
	if o.Manifest.Status != manifest.StatusPaused {
		t.Fatalf("expected the run to pause once the cost cap is crossed, got %s", o.Manifest.Status)
	}
	if o.Manifest.Metadata.PausedReason == "" {
		t.Fatal("expected a paused reason to be recorded")
	}
}

func mustStepConfig(t *testing.T, o *Orchestrator, name string) runconfig.StepConfig {
	t.Helper()
	step, err := o.Config.Steps.Get(name)
	if err != nil {
		t.Fatalf("resolving step %q: %v", name, err)
	}
	return step
}
