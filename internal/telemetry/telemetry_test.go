package telemetry

import (
	"os"
	"testing"
	"time"
)

func TestRunLogWritesTaggedLine(t *testing.T) {
	path := t.TempDir() + "/RUN_LOG.txt"
	rl, err := NewRunLog(path)
	if err != nil {
		t.Fatalf("NewRunLog: %v", err)
	}
	rl.Log(TagTick, "tick complete", "chunk", "chunk_000")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty log file")
	}
}

func TestTraceLogRecordsCall(t *testing.T) {
	path := t.TempDir() + "/TRACE_LOG.txt"
	tl, err := NewTraceLog(path)
	if err != nil {
		t.Fatalf("NewTraceLog: %v", err)
	}
	tl.Record("openai", "chunk_000", "unit_1", 120*time.Millisecond, "COMPLETED")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty trace file")
	}
}

func TestHeartbeatDedup(t *testing.T) {
	hb := NewHeartbeat(time.Minute)
	base := time.Now()

	if !hb.Due(base) {
		t.Fatalf("first call should be due")
	}
	if hb.Due(base.Add(10 * time.Second)) {
		t.Fatalf("second call within interval should not be due")
	}
	if !hb.Due(base.Add(61 * time.Second)) {
		t.Fatalf("call after interval elapses should be due")
	}
}
