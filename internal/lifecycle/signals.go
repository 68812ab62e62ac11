package lifecycle

import (
	"os"
	"os/signal"
	"runtime"
	"sync/atomic"
	"syscall"

	"github.com/codeready-toolchain/batchctl/internal/telemetry"
)

// Manager installs the process-level signal handlers for a run (§4.8).
// Interrupt/terminate is a cooperative flag: the main loop observes
// Interrupted() at each iteration boundary and at each safe point inside
// a tick, rather than being asynchronously preempted.
type Manager struct {
	interrupted atomic.Bool
	sigCh       chan os.Signal
	log         *telemetry.RunLog
}

// NewManager installs SIGINT/SIGTERM (sets the interrupt flag), SIGPIPE
// (ignored, so a downstream `head`-style consumer of stdout can't fail the
// run), and, where supported, SIGUSR1 (dumps a stack trace for diagnosing
// hangs).
func NewManager(log *telemetry.RunLog) *Manager {
	m := &Manager{sigCh: make(chan os.Signal, 8), log: log}

	signal.Notify(m.sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)
	signal.Ignore(syscall.SIGPIPE)

	go m.loop()
	return m
}

func (m *Manager) loop() {
	for sig := range m.sigCh {
		switch sig {
		case os.Interrupt, syscall.SIGTERM:
			m.interrupted.Store(true)
			m.log.Log(telemetry.TagInfo, "interrupt received, will pause at next safe point", "signal", sig.String())
		case syscall.SIGUSR1:
			m.dumpStack()
		}
	}
}

// Interrupted reports whether SIGINT/SIGTERM has been observed. The main
// loop must check this at every suspension point (§5 "Suspension points").
func (m *Manager) Interrupted() bool {
	return m.interrupted.Load()
}

// Stop detaches the signal handlers. Safe to call once at shutdown.
func (m *Manager) Stop() {
	signal.Stop(m.sigCh)
	close(m.sigCh)
}

func (m *Manager) dumpStack() {
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	m.log.Log(telemetry.TagInfo, "SIGUSR1 stack dump", "stack", string(buf[:n]))
}
