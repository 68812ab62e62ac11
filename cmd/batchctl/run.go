package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/codeready-toolchain/batchctl/internal/manifest"
	"github.com/codeready-toolchain/batchctl/internal/orchestrator"
	"github.com/codeready-toolchain/batchctl/internal/runconfig"
)

// newOrchestratorForRun wires up an Orchestrator from a run directory's
// config snapshot, ready to run Prologue.
func newOrchestratorForRun(f globalFlags) (*orchestrator.Orchestrator, error) {
	run, err := requireRunDir(f)
	if err != nil {
		return nil, err
	}
	cfg, reg, err := loadRunConfig(run)
	if err != nil {
		return nil, err
	}
	applyRuntimeCaps(cfg, f)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		return nil, err
	}
	runLog, traceLog, err := runLogs(run)
	if err != nil {
		return nil, err
	}
	return orchestrator.New(run, cfg, reg, providers, newRenderer(run), runLog, traceLog), nil
}

// applyRuntimeCaps layers the CLI's --max-cost/--timeout/--interval/
// --max-retries overrides (§6.3) on top of whatever the run's config
// snapshot already says.
func applyRuntimeCaps(cfg *runconfig.Config, f globalFlags) {
	if f.maxCostUSD > 0 {
		cfg.API.Realtime.CostCapUSD = f.maxCostUSD
	}
	if f.timeoutSeconds > 0 {
		cfg.API.SubprocessTimeoutSecs = f.timeoutSeconds
	}
	if f.intervalSeconds > 0 {
		cfg.API.PollIntervalSeconds = float64(f.intervalSeconds)
	}
	if f.maxRetries > 0 {
		cfg.API.Retry.MaxAttempts = f.maxRetries
	}
}

// interruptContext returns a context cancelled on SIGINT/SIGTERM, purely
// so blocking provider HTTP calls unwind promptly; cooperative pause
// semantics (§4.8) remain the orchestrator's own lifecycle.Manager, which
// installs its own independent signal handler.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// exitCodeForRun maps a finished run's manifest status to the CLI's exit
// code contract (§6.3: "0 success; 1 validation/runtime failure reported;
// 130 interrupted (paused)").
func exitCodeForRun(m *manifest.Manifest) int {
	switch m.Status {
	case manifest.StatusComplete:
		return 0
	case manifest.StatusPaused:
		return 130
	default:
		return 1
	}
}

func runWatchCmd(f globalFlags, out *console) int {
	o, err := newOrchestratorForRun(f)
	if err != nil {
		out.errorf("%v", err)
		return 1
	}
	ctx, cancel := interruptContext()
	defer cancel()

	if err := o.Prologue(ctx); err != nil {
		out.errorf("prologue: %v", err)
		return 1
	}
	if err := o.RunBatch(ctx); err != nil {
		out.errorf("batch run: %v", err)
		return 1
	}
	out.infof("run finished with status %s", o.Manifest.Status)
	return exitCodeForRun(o.Manifest)
}

func runRealtimeCmd(f globalFlags, out *console) int {
	o, err := newOrchestratorForRun(f)
	if err != nil {
		out.errorf("%v", err)
		return 1
	}
	ctx, cancel := interruptContext()
	defer cancel()

	if err := o.Prologue(ctx); err != nil {
		out.errorf("prologue: %v", err)
		return 1
	}
	if err := o.RunRealtime(ctx); err != nil {
		out.errorf("realtime run: %v", err)
		return 1
	}
	out.infof("run finished with status %s", o.Manifest.Status)
	return exitCodeForRun(o.Manifest)
}

// runTickCmd executes exactly one batch-loop tick (poll + submit, no
// sleep, no repetition) — §6.3 "--tick: Execute exactly one tick of the
// batch loop", useful for driving the loop externally (e.g. from cron).
func runTickCmd(f globalFlags, out *console) int {
	o, err := newOrchestratorForRun(f)
	if err != nil {
		out.errorf("%v", err)
		return 1
	}
	ctx, cancel := interruptContext()
	defer cancel()

	if err := o.Prologue(ctx); err != nil {
		out.errorf("prologue: %v", err)
		return 1
	}
	if err := o.Tick(ctx); err != nil {
		out.errorf("tick: %v", err)
		return 1
	}
	if o.Manifest.AllTerminal() {
		if err := o.Epilogue(ctx); err != nil {
			out.errorf("epilogue: %v", err)
			return 1
		}
	}
	out.infof("tick complete, status %s", o.Manifest.Status)
	return exitCodeForRun(o.Manifest)
}
