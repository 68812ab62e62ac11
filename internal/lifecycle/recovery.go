package lifecycle

import (
	"os"

	"github.com/codeready-toolchain/batchctl/internal/layout"
	"github.com/codeready-toolchain/batchctl/internal/manifest"
	"github.com/codeready-toolchain/batchctl/internal/telemetry"
)

// Recover runs the crash-recovery prologue every batch/realtime
// invocation executes before entering its main loop (§4.8 "Crash
// recovery"): it loads the manifest, un-sticks a run that was previously
// (and prematurely) marked complete/failed while chunks remain
// non-terminal, clears any stale pause marker, and overwrites the PID
// file with this process's PID. The retry-recovery scan itself (§4.5)
// runs separately, immediately after this returns.
func Recover(run layout.Run, log *telemetry.RunLog) (*manifest.Manifest, error) {
	m, err := manifest.Load(run.Dir)
	if err != nil {
		return nil, err
	}

	if (m.Status == manifest.StatusComplete || m.Status == manifest.StatusFailed) && !m.AllTerminal() {
		log.Log(telemetry.TagInfo, "resuming a run marked terminal with non-terminal chunks remaining", "previous_status", m.Status)
		m.Status = manifest.StatusRunning
	}
	m.Metadata.PausedReason = ""
	m.PausedAt = nil

	if err := WritePID(run.PIDFile()); err != nil {
		return nil, err
	}
	m.Metadata.PID = os.Getpid()

	if err := manifest.Save(run.Dir, m); err != nil {
		return nil, err
	}
	return m, nil
}
