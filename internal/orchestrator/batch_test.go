package orchestrator

import (
	"context"
	"os"
	"testing"

	"github.com/codeready-toolchain/batchctl/internal/chunkstate"
	"github.com/codeready-toolchain/batchctl/internal/manifest"
	"github.com/codeready-toolchain/batchctl/internal/provider"
)

func pendingChunk(name, stage string, unitCount int) manifest.Chunk {
	return manifest.Chunk{Name: name, State: chunkstate.Pending(stage), UnitCount: unitCount}
}

func writeUnits(t *testing.T, o *Orchestrator, chunkName string, units []map[string]any) {
	t.Helper()
	addr := o.Run.Chunk(chunkName)
	if err := os.MkdirAll(addr.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := provider.WriteNDJSON(addr.Units(), units); err != nil {
		t.Fatal(err)
	}
}

func TestSubmitChunkTransitionsToSubmitted(t *testing.T) {
	h := newTestHarness(t)
	fp := newFakeProvider("fake")
	o := h.newOrchestrator(map[string]provider.Provider{"fake": fp})

	o.Manifest.Chunks = []manifest.Chunk{pendingChunk("chunk-0", "extract", 1)}
	writeUnits(t, o, "chunk-0", []map[string]any{{"unit_id": "u1", "value": "hello"}})

	if err := o.submitPhase(context.Background()); err != nil {
		t.Fatalf("submitPhase: %v", err)
	}

	chunk := o.Manifest.Chunks[0]
	if chunk.State != chunkstate.Submitted("extract") {
		t.Fatalf("expected extract_SUBMITTED, got %s", chunk.State)
	}
	if chunk.BatchID != "batch-1" {
		t.Fatalf("expected batch-1, got %q", chunk.BatchID)
	}
	if chunk.Mode != manifest.ModeBatch {
		t.Fatalf("expected batch mode, got %q", chunk.Mode)
	}
	if fp.batchCalls != 1 {
		t.Fatalf("expected exactly one CreateBatch call, got %d", fp.batchCalls)
	}

	addr := o.Run.Chunk("chunk-0")
	prompts, err := provider.ReadNDJSON(addr.Prompts("extract"))
	if err != nil || len(prompts) != 1 {
		t.Fatalf("expected one rendered prompt, got %v err=%v", prompts, err)
	}
}

func TestSubmitPhaseThrottlesAtMaxInflight(t *testing.T) {
	h := newTestHarness(t)
	fp := newFakeProvider("fake")
	o := h.newOrchestrator(map[string]provider.Provider{"fake": fp})
	o.Config.API.MaxInflightBatches = 1

	o.Manifest.Chunks = []manifest.Chunk{
		{Name: "already-submitted", State: chunkstate.Submitted("extract")},
		pendingChunk("waiting", "extract", 1),
	}
	writeUnits(t, o, "waiting", []map[string]any{{"unit_id": "u1", "value": "hello"}})

	if err := o.submitPhase(context.Background()); err != nil {
		t.Fatalf("submitPhase: %v", err)
	}

	if o.Manifest.Chunks[1].State != chunkstate.Pending("extract") {
		t.Fatalf("expected the second chunk to stay pending (throttled), got %s", o.Manifest.Chunks[1].State)
	}
	if fp.batchCalls != 0 {
		t.Fatalf("expected no CreateBatch calls while throttled, got %d", fp.batchCalls)
	}
}

func TestCollectChunkValidatesAndAdvances(t *testing.T) {
	h := newTestHarness(t)
	fp := newFakeProvider("fake")
	o := h.newOrchestrator(map[string]provider.Provider{"fake": fp})

	o.Manifest.Chunks = []manifest.Chunk{{Name: "chunk-0", State: chunkstate.Submitted("extract"), BatchID: "batch-1"}}
	writeUnits(t, o, "chunk-0", []map[string]any{{"unit_id": "u1", "value": "hello"}})

	fp.downloadBatchResultsFn = func(ctx context.Context, batchID string) ([]provider.BatchResultItem, provider.BatchMetadata, error) {
		return []provider.BatchResultItem{
			{UnitID: "u1", Content: `{"value":"hello-extracted"}`, InputTokens: 10, OutputTokens: 5},
		}, provider.BatchMetadata{TotalInputTokens: 10, TotalOutputTokens: 5}, nil
	}

	if err := o.collectChunk(context.Background(), &o.Manifest.Chunks[0], "extract", fp); err != nil {
		t.Fatalf("collectChunk: %v", err)
	}

	chunk := o.Manifest.Chunks[0]
	if chunk.State != chunkstate.Pending("classify") {
		t.Fatalf("expected classify_PENDING, got %s", chunk.State)
	}
	if chunk.ValidCount != 1 || chunk.FailedCount != 0 {
		t.Fatalf("expected 1 valid 0 failed, got valid=%d failed=%d", chunk.ValidCount, chunk.FailedCount)
	}
	if o.Manifest.Metadata.TotalCostUSD <= 0 {
		t.Fatalf("expected cost to be recorded, got %v", o.Manifest.Metadata.TotalCostUSD)
	}

	addr := o.Run.Chunk("chunk-0")
	validated, err := provider.ReadNDJSON(addr.Validated("extract"))
	if err != nil || len(validated) != 1 {
		t.Fatalf("expected one validated record, got %v err=%v", validated, err)
	}
}

func TestCollectChunkZeroValidWithFailuresMarksFailed(t *testing.T) {
	h := newTestHarness(t)
	fp := newFakeProvider("fake")
	o := h.newOrchestrator(map[string]provider.Provider{"fake": fp})

	o.Manifest.Chunks = []manifest.Chunk{{Name: "chunk-0", State: chunkstate.Submitted("extract"), BatchID: "batch-1"}}
	writeUnits(t, o, "chunk-0", []map[string]any{{"unit_id": "u1", "value": "hello"}})

	fp.downloadBatchResultsFn = func(ctx context.Context, batchID string) ([]provider.BatchResultItem, provider.BatchMetadata, error) {
		return []provider.BatchResultItem{
			{UnitID: "u1", Content: "not json at all"},
		}, provider.BatchMetadata{}, nil
	}

	if err := o.collectChunk(context.Background(), &o.Manifest.Chunks[0], "extract", fp); err != nil {
		t.Fatalf("collectChunk: %v", err)
	}

	chunk := o.Manifest.Chunks[0]
	if chunk.State != chunkstate.Failed {
		t.Fatalf("expected FAILED (zero-valid guard), got %s", chunk.State)
	}
	if chunk.FailedCount != 1 {
		t.Fatalf("expected 1 failure recorded, got %d", chunk.FailedCount)
	}
}

func TestHandleBatchFailureFatalMarksFailedImmediately(t *testing.T) {
	h := newTestHarness(t)
	o := h.newOrchestrator(map[string]provider.Provider{"fake": newFakeProvider("fake")})

	chunk := &manifest.Chunk{Name: "chunk-0", State: chunkstate.Submitted("extract")}
	fatal := provider.NewProviderError("fake", 401, "bad credentials", nil)

	if err := o.handleBatchFailure(chunk, "extract", fatal); err != nil {
		t.Fatalf("handleBatchFailure: %v", err)
	}
	if chunk.State != chunkstate.Failed {
		t.Fatalf("expected FAILED on fatal error, got %s", chunk.State)
	}
}

func TestHandleBatchFailureTransientResetsUntilExhausted(t *testing.T) {
	h := newTestHarness(t)
	o := h.newOrchestrator(map[string]provider.Provider{"fake": newFakeProvider("fake")})
	o.Config.API.Retry.MaxAttempts = 1

	chunk := &manifest.Chunk{Name: "chunk-0", State: chunkstate.Submitted("extract"), BatchID: "batch-1"}
	transient := provider.NewProviderError("fake", 500, "server error", nil)

	if err := o.handleBatchFailure(chunk, "extract", transient); err != nil {
		t.Fatalf("handleBatchFailure: %v", err)
	}
	if chunk.State != chunkstate.Pending("extract") || chunk.BatchID != "" {
		t.Fatalf("expected first transient failure to reset to PENDING, got state=%s batch_id=%q", chunk.State, chunk.BatchID)
	}

	// Second transient failure exhausts max_attempts=1.
	chunk.State = chunkstate.Submitted("extract")
	if err := o.handleBatchFailure(chunk, "extract", transient); err != nil {
		t.Fatalf("handleBatchFailure: %v", err)
	}
	if chunk.State != chunkstate.Failed {
		t.Fatalf("expected FAILED once retries are exhausted, got %s", chunk.State)
	}
}
