package lifecycle

import (
	"os"
	"testing"
)

func TestWriteReadPIDRoundTrip(t *testing.T) {
	path := t.TempDir() + "/orchestrator.pid"
	if err := WritePID(path); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	pid, err := ReadPID(path)
	if err != nil {
		t.Fatalf("ReadPID: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("expected pid %d, got %d", os.Getpid(), pid)
	}
}

func TestPIDFilePersistsAfterProbe(t *testing.T) {
	path := t.TempDir() + "/orchestrator.pid"
	if err := WritePID(path); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	if !IsAlive(os.Getpid()) {
		t.Fatalf("current process should report alive")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("pid file must persist: %v", err)
	}
}

func TestReadPIDCorruptFile(t *testing.T) {
	path := t.TempDir() + "/orchestrator.pid"
	if err := os.WriteFile(path, []byte("not-a-pid"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := ReadPID(path); err == nil {
		t.Fatalf("expected error for corrupt pid file")
	}
}
