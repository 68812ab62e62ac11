// Package orchestrator drives a run's chunks through its pipeline stages:
// the batch-mode tick loop and the realtime convergence loop (§4.3), the
// retry-recovery scan that precedes both (§4.5), and the common run-scope
// epilogue (§4.3 "Common epilogue").
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/codeready-toolchain/batchctl/internal/chunkstate"
	"github.com/codeready-toolchain/batchctl/internal/layout"
	"github.com/codeready-toolchain/batchctl/internal/lifecycle"
	"github.com/codeready-toolchain/batchctl/internal/manifest"
	"github.com/codeready-toolchain/batchctl/internal/provider"
	"github.com/codeready-toolchain/batchctl/internal/registry"
	"github.com/codeready-toolchain/batchctl/internal/renderer"
	"github.com/codeready-toolchain/batchctl/internal/runconfig"
	"github.com/codeready-toolchain/batchctl/internal/telemetry"
)

// Orchestrator holds every collaborator the main loop needs: the loaded
// pipeline config, the model-pricing registry, one Provider per name
// referenced from the pipeline, the manifest under management, and the
// telemetry/lifecycle plumbing (§4.8, §4.9, §4.10).
type Orchestrator struct {
	Run       layout.Run
	Config    *runconfig.Config
	Registry  *registry.Registry
	Providers map[string]provider.Provider
	Renderer  *renderer.Renderer

	Manifest  *manifest.Manifest
	RunLog    *telemetry.RunLog
	TraceLog  *telemetry.TraceLog
	Signals   *lifecycle.Manager
	Heartbeat *telemetry.Heartbeat

	machine *chunkstate.Machine
	schemas *schemaCache

	// metaMu guards manifest.Metadata (cost/token accounting) against
	// concurrent updates from the poll phase's bounded fan-out.
	metaMu sync.Mutex
}

// New builds an Orchestrator. Chunk-scoped step names drive the chunk
// state machine; run-scope steps never appear in it (§4.2).
func New(run layout.Run, cfg *runconfig.Config, reg *registry.Registry, providers map[string]provider.Provider, rnd *renderer.Renderer, runLog *telemetry.RunLog, traceLog *telemetry.TraceLog) *Orchestrator {
	names := make([]string, 0)
	for _, s := range cfg.Steps.ChunkSteps() {
		names = append(names, s.Name)
	}
	return &Orchestrator{
		Run:       run,
		Config:    cfg,
		Registry:  reg,
		Providers: providers,
		Renderer:  rnd,
		RunLog:    runLog,
		TraceLog:  traceLog,
		Heartbeat: telemetry.NewHeartbeat(60 * time.Second),
		machine:   chunkstate.New(names),
		schemas:   newSchemaCache(cfg.Schemas.SchemaDir, cfg.Schemas.Files),
	}
}

// providerFor resolves the provider name for a step: its own override, or
// the pipeline-wide default (§6.1 api.provider).
func (o *Orchestrator) providerFor(step runconfig.StepConfig) string {
	if step.Provider != "" {
		return step.Provider
	}
	return o.Config.API.Provider
}

// modelFor resolves the model name for a step: its own override, or the
// provider's registry default.
func (o *Orchestrator) modelFor(step runconfig.StepConfig, providerName string) string {
	if step.Model != "" {
		return step.Model
	}
	model, _ := o.Registry.DefaultModel(providerName)
	return model
}

// Prologue runs the common setup shared by both operational modes (§4.3
// "Common prologue"): acquire the PID file, run crash recovery, correct
// the run status, run the retry-recovery scan, and verify every
// referenced provider has its credential present.
func (o *Orchestrator) Prologue(ctx context.Context) error {
	m, err := lifecycle.Recover(o.Run, o.RunLog)
	if err != nil {
		return fmt.Errorf("orchestrator: prologue recovery: %w", err)
	}
	o.Manifest = m

	o.Manifest.Status = manifest.StatusRunning
	o.Manifest.PausedAt = nil
	if o.Manifest.Started == nil {
		now := time.Now()
		o.Manifest.Started = &now
	}

	o.Signals = lifecycle.NewManager(o.RunLog)

	archived, err := o.retryRecoveryScan()
	if err != nil {
		return fmt.Errorf("orchestrator: retry-recovery scan: %w", err)
	}
	if archived > 0 {
		o.RunLog.Log(telemetry.TagRetry, "retry-recovery scan reset chunks", "count", archived)
	}

	if err := o.checkProviderCredentials(); err != nil {
		o.Manifest.Status = manifest.StatusFailed
		o.Manifest.Metadata.FailureReason = err.Error()
		_ = manifest.Save(o.Run.Dir, o.Manifest)
		o.RunLog.Error(telemetry.TagError, "missing provider credentials", "error", err)
		return err
	}

	return manifest.Save(o.Run.Dir, o.Manifest)
}

// checkProviderCredentials verifies that every provider referenced by any
// chunk-scoped LLM stage has its environment variable set (§4.3 "Verify
// prerequisites").
func (o *Orchestrator) checkProviderCredentials() error {
	seen := make(map[string]bool)
	for _, step := range o.Config.Steps.ChunkSteps() {
		if !step.IsLLM() {
			continue
		}
		name := o.providerFor(step)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		envVar, ok := o.Registry.EnvVar(name)
		if !ok {
			return fmt.Errorf("unknown provider %q referenced by stage %q", name, step.Name)
		}
		if _, set := os.LookupEnv(envVar); !set {
			return fmt.Errorf("missing credential: provider %q requires environment variable %s", name, envVar)
		}
	}
	return nil
}

// Epilogue executes the common run-scope finish (§4.3 "Common epilogue"):
// run-scope steps in order, then post-processing, then the final manifest
// save. Each completed run-scope step is recorded before the next begins
// so a crash mid-epilogue resumes without re-running finished steps.
func (o *Orchestrator) Epilogue(ctx context.Context) error {
	if err := o.runRunScopeSteps(ctx); err != nil {
		o.Manifest.Status = manifest.StatusFailed
		o.Manifest.Metadata.FailureReason = err.Error()
		_ = manifest.Save(o.Run.Dir, o.Manifest)
		return err
	}

	if err := o.runPostProcess(ctx); err != nil {
		o.Manifest.Status = manifest.StatusFailed
		o.Manifest.Metadata.FailureReason = err.Error()
		_ = manifest.Save(o.Run.Dir, o.Manifest)
		return err
	}

	o.Manifest.Status = manifest.StatusComplete
	now := time.Now()
	o.Manifest.Completed = &now
	return manifest.Save(o.Run.Dir, o.Manifest)
}

// HandleInterrupt implements §4.8's cooperative-flag pause: called at
// every loop safe point, it saves the manifest as paused and reports
// whether the caller should stop.
func (o *Orchestrator) HandleInterrupt() bool {
	if o.Signals == nil || !o.Signals.Interrupted() {
		return false
	}
	o.Manifest.Status = manifest.StatusPaused
	now := time.Now()
	o.Manifest.PausedAt = &now
	o.Manifest.Metadata.PausedReason = "interrupted"
	if err := manifest.Save(o.Run.Dir, o.Manifest); err != nil {
		o.RunLog.Error(telemetry.TagError, "failed to save manifest on interrupt", "error", err)
	}
	return true
}

func (o *Orchestrator) save() error {
	return manifest.Save(o.Run.Dir, o.Manifest)
}
