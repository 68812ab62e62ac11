package orchestrator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/codeready-toolchain/batchctl/internal/layout"
	"github.com/codeready-toolchain/batchctl/internal/manifest"
	"github.com/codeready-toolchain/batchctl/internal/provider"
	"github.com/codeready-toolchain/batchctl/internal/registry"
	"github.com/codeready-toolchain/batchctl/internal/renderer"
	"github.com/codeready-toolchain/batchctl/internal/runconfig"
	"github.com/codeready-toolchain/batchctl/internal/telemetry"
)

const testPipelineYAML = `
pipeline:
  name: test-pipeline
  steps:
    - name: extract
      prompt_template: extract.tmpl
    - name: classify
      prompt_template: classify.tmpl
api:
  provider: fake
  max_inflight_batches: 2
  poll_interval_seconds: 1
  retry:
    max_attempts: 2
    initial_delay_seconds: 0.001
    backoff_multiplier: 2
  realtime:
    cost_cap_usd: 0
    auto_retry: true
processing:
  strategy: direct
  chunk_size: 10
  items:
    source: dummy.json
prompts:
  template_dir: TEMPLATES_DIR
  templates:
    extract: extract.tmpl
    classify: classify.tmpl
schemas:
  schema_dir: SCHEMAS_DIR
  files:
    extract: extract.schema.json
    classify: classify.schema.json
validation:
  extract:
    required: [value]
  classify:
    required: [label]
`

const testRegistryYAML = `
providers:
  fake:
    env_var: FAKE_API_KEY
    default_model: fake-model
    realtime_multiplier: 2.0
    models:
      fake-model:
        input_price_per_million: 1.0
        output_price_per_million: 2.0
        batch_support: true
`

const extractSchema = `{"type":"object","properties":{"value":{"type":"string"}},"required":["value"]}`
const classifySchema = `{"type":"object","properties":{"label":{"type":"string"}},"required":["label"]}`

// testHarness bundles everything needed to build an Orchestrator without
// touching the Go toolchain-dependent config/registry plumbing twice per
// test: one temp-dir pipeline YAML loaded through the real runconfig.Load,
// one temp-dir registry YAML loaded through the real registry.Load (mirrors
// internal/cost's testRegistry helper), and a run directory under layout.
type testHarness struct {
	t      *testing.T
	runDir string
	cfg    *runconfig.Config
	reg    *registry.Registry
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	base := t.TempDir()
	templatesDir := filepath.Join(base, "templates")
	schemasDir := filepath.Join(base, "schemas")
	if err := os.MkdirAll(templatesDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(schemasDir, 0o755); err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(templatesDir, "extract.tmpl"), "extract: {{.value}}")
	writeFile(t, filepath.Join(templatesDir, "classify.tmpl"), "classify: {{.value}}")
	writeFile(t, filepath.Join(schemasDir, "extract.schema.json"), extractSchema)
	writeFile(t, filepath.Join(schemasDir, "classify.schema.json"), classifySchema)

	pipelineYAML := strings.ReplaceAll(testPipelineYAML, "TEMPLATES_DIR", templatesDir)
	pipelineYAML = strings.ReplaceAll(pipelineYAML, "SCHEMAS_DIR", schemasDir)
	pipelinePath := filepath.Join(base, "pipeline.yaml")
	writeFile(t, pipelinePath, pipelineYAML)

	registryPath := filepath.Join(base, "registry.yaml")
	writeFile(t, registryPath, testRegistryYAML)

	cfg, err := runconfig.Load(pipelinePath)
	if err != nil {
		t.Fatalf("loading test pipeline config: %v", err)
	}
	reg, err := registry.Load(registryPath)
	if err != nil {
		t.Fatalf("loading test registry: %v", err)
	}

	runDir := filepath.Join(base, "run")
	if err := os.MkdirAll(filepath.Join(runDir, "chunks"), 0o755); err != nil {
		t.Fatal(err)
	}

	return &testHarness{t: t, runDir: runDir, cfg: cfg, reg: reg}
}

// newOrchestrator builds an Orchestrator wired to this harness's config,
// registry, and the given fake provider, with a fresh manifest already
// assigned (bypassing Prologue's crash-recovery/PID-file machinery, which
// is exercised separately by internal/lifecycle's own tests).
func (h *testHarness) newOrchestrator(providers map[string]provider.Provider) *Orchestrator {
	h.t.Helper()

	runLog, err := telemetry.NewRunLog(filepath.Join(h.runDir, "RUN_LOG.txt"))
	if err != nil {
		h.t.Fatal(err)
	}
	traceLog := telemetry.NewDiscardTraceLog()

	o := New(layout.New(h.runDir), h.cfg, h.reg, providers, renderer.New(h.cfg.Prompts.TemplateDir), runLog, traceLog)
	o.Manifest = manifest.New("test-run", h.cfg.Name, stepNames(h.cfg))
	o.Manifest.Chunks = nil
	return o
}

func stepNames(cfg *runconfig.Config) []string {
	var names []string
	for _, s := range cfg.Steps.ChunkSteps() {
		names = append(names, s.Name)
	}
	return names
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
