package main

import (
	"fmt"
	"os"

	"github.com/codeready-toolchain/batchctl/internal/layout"
	"github.com/codeready-toolchain/batchctl/internal/provider"
	"github.com/codeready-toolchain/batchctl/internal/registry"
	"github.com/codeready-toolchain/batchctl/internal/renderer"
	"github.com/codeready-toolchain/batchctl/internal/runconfig"
	"github.com/codeready-toolchain/batchctl/internal/telemetry"
)

// loadRunConfig loads the pipeline config and model registry snapshotted
// into run.ConfigDir() at --init time (§6.5 "config/ snapshot of pipeline
// at --init time"). Every mode but --init and --validate-config operates
// against this frozen snapshot, not whatever pipeline.yaml currently says
// on disk elsewhere, so a run's behavior never drifts out from under it.
func loadRunConfig(run layout.Run) (*runconfig.Config, *registry.Registry, error) {
	cfg, err := runconfig.Load(run.ConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("loading run config: %w", err)
	}
	reg, err := registry.Load(registryPath(run))
	if err != nil {
		return nil, nil, fmt.Errorf("loading model registry: %w", err)
	}
	return cfg, reg, nil
}

// registryPath is the model registry's fixed location inside a run's
// config snapshot, alongside pipeline.yaml.
func registryPath(run layout.Run) string {
	return joinPath(run.ConfigDir(), "registry.yaml")
}

// buildProviders constructs one provider.Provider per distinct provider
// name referenced by a chunk-scoped LLM step, keyed by that name so the
// orchestrator can look it up via StepConfig.Provider/api.provider.
func buildProviders(cfg *runconfig.Config, reg *registry.Registry) (map[string]provider.Provider, error) {
	out := make(map[string]provider.Provider)
	for _, step := range cfg.Steps.ChunkSteps() {
		if !step.IsLLM() {
			continue
		}
		name := step.Provider
		if name == "" {
			name = cfg.API.Provider
		}
		if _, ok := out[name]; ok {
			continue
		}

		envVar, ok := reg.EnvVar(name)
		if !ok {
			return nil, fmt.Errorf("unknown provider %q referenced by stage %q", name, step.Name)
		}
		apiKey := os.Getenv(envVar)

		model := step.Model
		if model == "" {
			model, _ = reg.DefaultModel(name)
		}

		p, err := newProvider(name, apiKey, model)
		if err != nil {
			return nil, err
		}
		out[name] = p
	}
	return out, nil
}

// newProvider dispatches on the registry provider name to the matching
// vendor implementation (§4.7). Provider names are the registry's own
// keys, so they must match one of the three adapters this module ships.
func newProvider(name, apiKey, model string) (provider.Provider, error) {
	switch name {
	case "openai":
		return provider.NewOpenAIProvider(apiKey, model), nil
	case "gemini":
		return provider.NewGeminiProvider(apiKey, model), nil
	case "anthropic":
		return provider.NewAnthropicProvider(apiKey, model), nil
	default:
		return nil, fmt.Errorf("no provider adapter registered for %q", name)
	}
}

// runLogs opens the run's real RUN_LOG.txt and TRACE_LOG.txt files; every
// CLI mode gets both (only the orchestrator's own tests use a discard
// trace log).
func runLogs(run layout.Run) (*telemetry.RunLog, *telemetry.TraceLog, error) {
	runLog, err := telemetry.NewRunLog(run.RunLog())
	if err != nil {
		return nil, nil, fmt.Errorf("opening run log: %w", err)
	}
	traceLog, err := telemetry.NewTraceLog(run.TraceLog())
	if err != nil {
		return nil, nil, fmt.Errorf("opening trace log: %w", err)
	}
	return runLog, traceLog, nil
}

func requireRunDir(f globalFlags) (layout.Run, error) {
	if f.runDir == "" {
		return layout.Run{}, fmt.Errorf("--run-dir is required")
	}
	return layout.New(f.runDir), nil
}

// newRenderer always points at the run's own template snapshot
// (run.TemplatesDir()) rather than whatever prompts.template_dir says in
// the loaded config: --init copies templates into the run directory
// precisely so a run's behavior is pinned to that snapshot (§6.5).
func newRenderer(run layout.Run) *renderer.Renderer {
	return renderer.New(run.TemplatesDir())
}
