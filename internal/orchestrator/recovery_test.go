package orchestrator

import (
	"os"
	"testing"
	"time"

	"github.com/codeready-toolchain/batchctl/internal/chunkstate"
	"github.com/codeready-toolchain/batchctl/internal/manifest"
	"github.com/codeready-toolchain/batchctl/internal/provider"
)

func TestResetChunkIfRetryableArchivesAndResets(t *testing.T) {
	h := newTestHarness(t)
	o := h.newOrchestrator(map[string]provider.Provider{"fake": newFakeProvider("fake")})

	submittedAt := time.Now()
	o.Manifest.Chunks = []manifest.Chunk{{
		Name:           "chunk-0",
		UnitCount:      2,
		State:          chunkstate.Failed,
		BatchID:        "batch-123",
		ProviderStatus: "failed",
		SubmittedAt:    &submittedAt,
	}}

	addr := o.Run.Chunk("chunk-0")
	if err := os.MkdirAll(addr.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	failures := []map[string]any{
		{"unit_id": "u1", "failure_stage": "schema_validation", "message": "bad value"},
		{"unit_id": "u2", "failure_stage": "pipeline_internal", "message": "no response"},
	}
	if err := provider.WriteNDJSON(addr.Failures("extract"), failures); err != nil {
		t.Fatal(err)
	}

	reset, err := o.resetChunkIfRetryable(&o.Manifest.Chunks[0], "extract")
	if err != nil {
		t.Fatalf("resetChunkIfRetryable: %v", err)
	}
	if !reset {
		t.Fatal("expected chunk to be reset")
	}

	chunk := &o.Manifest.Chunks[0]
	if chunk.State != chunkstate.Pending("extract") {
		t.Fatalf("expected state extract_PENDING, got %s", chunk.State)
	}
	if chunk.BatchID != "" || chunk.ProviderStatus != "" || chunk.SubmittedAt != nil {
		t.Fatalf("expected batch fields cleared, got %+v", chunk)
	}
	if chunk.RetryCount != 1 {
		t.Fatalf("expected retry count 1, got %d", chunk.RetryCount)
	}

	if _, err := os.Stat(addr.FailuresBak("extract")); err != nil {
		t.Fatalf("expected .bak archive to exist: %v", err)
	}

	kept, err := provider.ReadNDJSON(addr.Failures("extract"))
	if err != nil {
		t.Fatalf("reading rewritten failures file: %v", err)
	}
	if len(kept) != 1 || kept[0]["unit_id"] != "u2" {
		t.Fatalf("expected only the non-retryable failure to survive, got %+v", kept)
	}
}

func TestResetChunkIfRetryableNoopWhenOnlyInternalFailures(t *testing.T) {
	h := newTestHarness(t)
	o := h.newOrchestrator(map[string]provider.Provider{"fake": newFakeProvider("fake")})

	o.Manifest.Chunks = []manifest.Chunk{{Name: "chunk-0", State: chunkstate.Failed}}
	addr := o.Run.Chunk("chunk-0")
	if err := os.MkdirAll(addr.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := provider.WriteNDJSON(addr.Failures("extract"), []map[string]any{
		{"unit_id": "u1", "failure_stage": "pipeline_internal", "message": "no response"},
	}); err != nil {
		t.Fatal(err)
	}

	reset, err := o.resetChunkIfRetryable(&o.Manifest.Chunks[0], "extract")
	if err != nil {
		t.Fatalf("resetChunkIfRetryable: %v", err)
	}
	if reset {
		t.Fatal("expected no reset when every failure is pipeline_internal")
	}
	if o.Manifest.Chunks[0].State != chunkstate.Failed {
		t.Fatalf("expected state unchanged, got %s", o.Manifest.Chunks[0].State)
	}
}

func TestRetryRecoveryScanSkipsSubmittedChunks(t *testing.T) {
	h := newTestHarness(t)
	o := h.newOrchestrator(map[string]provider.Provider{"fake": newFakeProvider("fake")})

	o.Manifest.Chunks = []manifest.Chunk{{
		Name:  "chunk-submitted",
		State: chunkstate.Submitted("extract"),
	}}
	addr := o.Run.Chunk("chunk-submitted")
	if err := os.MkdirAll(addr.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	// Even if a stale failures file exists, a _SUBMITTED chunk must never
	// be touched by the retry-recovery scan (§4.5 invariant).
	if err := provider.WriteNDJSON(addr.Failures("extract"), []map[string]any{
		{"unit_id": "u1", "failure_stage": "schema_validation", "message": "bad"},
	}); err != nil {
		t.Fatal(err)
	}

	count, err := o.retryRecoveryScan()
	if err != nil {
		t.Fatalf("retryRecoveryScan: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected zero resets for a _SUBMITTED chunk, got %d", count)
	}
	if o.Manifest.Chunks[0].State != chunkstate.Submitted("extract") {
		t.Fatalf("expected state untouched, got %s", o.Manifest.Chunks[0].State)
	}
}
