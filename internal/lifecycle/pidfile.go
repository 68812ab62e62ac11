// Package lifecycle implements the Signal & Lifecycle Manager (§4.8):
// PID-file persistence, cooperative SIGINT/SIGTERM handling, a SIGUSR1
// diagnostic stack dump, broken-pipe suppression, and the crash-recovery
// prologue a resumed run executes before entering its main loop.
package lifecycle

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// WritePID writes the current process PID to path. The file is never
// removed on exit (§4.8 "PID management") — liveness is determined by an
// observer probing the PID directly, not by the file's mere existence.
func WritePID(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

// ReadPID reads a previously written PID file.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("corrupt pid file %s: %w", path, err)
	}
	return pid, nil
}

// IsAlive probes a PID with signal 0, the standard liveness check: no
// signal is actually delivered, but the kernel still validates that the
// process exists and is owned by us.
func IsAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds; Signal(0) is what actually probes.
	return proc.Signal(syscall.Signal(0)) == nil
}
