package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/codeready-toolchain/batchctl/internal/layout"
	"github.com/codeready-toolchain/batchctl/internal/manifest"
	"github.com/codeready-toolchain/batchctl/internal/provider"
	"github.com/codeready-toolchain/batchctl/internal/registry"
	"github.com/codeready-toolchain/batchctl/internal/runconfig"
	"github.com/codeready-toolchain/batchctl/internal/unitgen"

	"gopkg.in/yaml.v3"
)

// marshalConfigYAML re-serializes a loaded Config back into the same YAML
// shape Load parses, for writing the run's config snapshot.
func marshalConfigYAML(cfg *runconfig.Config) ([]byte, error) {
	return yaml.Marshal(cfg.ToPipelineConfig())
}

// configSearchPath is where --init looks for "--pipeline NAME", in order.
// No search-path convention is specified by the CLI surface table (§6.3
// only names --pipeline NAME without describing resolution), so this
// mirrors the teacher's own config-directory convention
// (cmd/tarsy/main.go's CONFIG_DIR default of "./deploy/config").
var configSearchPath = []string{"./pipelines/%s.yaml", "./config/%s.yaml", "./%s.yaml"}

func resolvePipelinePath(name string) (string, error) {
	if filepath.Ext(name) == ".yaml" || filepath.Ext(name) == ".yml" {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}
	for _, pattern := range configSearchPath {
		p := fmt.Sprintf(pattern, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("pipeline %q not found under %v", name, configSearchPath)
}

// runInitCmd implements --init: load the pipeline config, snapshot it
// (config + templates + schemas + items) into run-dir/config/, generate
// and chunk units, and write the initial manifest (§6.5). Running --init
// twice against the same, already-initialized run-dir is a no-op success
// (§8 "Running --init twice ... is refused or idempotent").
func runInitCmd(f globalFlags, out *console) int {
	if f.pipeline == "" || f.runDir == "" {
		out.errorf("--init requires --pipeline NAME and --run-dir DIR")
		return 1
	}
	run := layout.New(f.runDir)

	if _, err := os.Stat(run.Manifest()); err == nil {
		out.infof("run %s is already initialized, skipping --init", f.runDir)
		return 0
	}

	pipelinePath, err := resolvePipelinePath(f.pipeline)
	if err != nil {
		out.errorf("%v", err)
		return 1
	}
	registrySrc := filepath.Join(filepath.Dir(pipelinePath), "registry.yaml")

	cfg, err := runconfig.Load(pipelinePath)
	if err != nil {
		out.errorf("loading pipeline config: %v", err)
		return 1
	}
	reg, err := registry.Load(registrySrc)
	if err != nil {
		out.errorf("loading model registry: %v", err)
		return 1
	}

	if f.provider != "" {
		cfg.API.Provider = f.provider
	}
	if f.repeat > 0 {
		cfg.Processing.Repeat = f.repeat
	}
	if f.maxCostUSD > 0 {
		cfg.API.Realtime.CostCapUSD = f.maxCostUSD
	}
	if f.intervalSeconds > 0 {
		cfg.API.PollIntervalSeconds = float64(f.intervalSeconds)
	}
	if f.maxRetries > 0 {
		cfg.API.Retry.MaxAttempts = f.maxRetries
	}
	if f.timeoutSeconds > 0 {
		cfg.API.SubprocessTimeoutSecs = f.timeoutSeconds
	}
	if f.model != "" {
		applyModelOverride(cfg, f.model)
	}

	if err := snapshotConfig(run, cfg, reg, pipelinePath, registrySrc); err != nil {
		out.errorf("snapshotting config: %v", err)
		return 1
	}

	items, err := loadItems(cfg)
	if err != nil {
		out.errorf("loading items: %v", err)
		return 1
	}

	units, err := unitgen.Generate(cfg.Processing, items)
	if err != nil {
		out.errorf("generating units: %v", err)
		return 1
	}
	if f.maxUnits > 0 && len(units) > f.maxUnits {
		units = units[:f.maxUnits]
	}

	chunks, err := unitgen.Partition(units, cfg.Processing.ChunkSize)
	if err != nil {
		out.errorf("partitioning units: %v", err)
		return 1
	}

	if err := os.MkdirAll(run.ChunksDir(), 0o755); err != nil {
		out.errorf("creating chunks directory: %v", err)
		return 1
	}

	stepNames := make([]string, 0)
	for _, s := range cfg.Steps.ChunkSteps() {
		stepNames = append(stepNames, s.Name)
	}
	m := manifest.New(filepath.Base(f.runDir), cfg.Name, stepNames)

	for _, c := range chunks {
		if err := os.MkdirAll(run.Chunk(c.Name).Dir(), 0o755); err != nil {
			out.errorf("creating chunk directory: %v", err)
			return 1
		}
		records := make([]map[string]any, 0, len(c.Units))
		for _, u := range c.Units {
			b, err := u.MarshalJSON()
			if err != nil {
				out.errorf("marshaling unit: %v", err)
				return 1
			}
			var rec map[string]any
			if err := json.Unmarshal(b, &rec); err != nil {
				out.errorf("re-decoding unit: %v", err)
				return 1
			}
			records = append(records, rec)
		}
		if err := provider.WriteNDJSON(run.Chunk(c.Name).Units(), records); err != nil {
			out.errorf("writing units for chunk %s: %v", c.Name, err)
			return 1
		}

		firstStage := ""
		if len(stepNames) > 0 {
			firstStage = stepNames[0]
		}
		m.Chunks = append(m.Chunks, manifest.Chunk{
			Name:      c.Name,
			UnitCount: len(c.Units),
			State:     firstStage + "_PENDING",
		})
	}

	if err := manifest.Save(f.runDir, m); err != nil {
		out.errorf("writing manifest: %v", err)
		return 1
	}

	out.infof("initialized run %s: %d units across %d chunks", f.runDir, len(units), len(chunks))
	return 0
}

// snapshotConfig copies the pipeline config, model registry, every
// referenced template and schema file, and the items source into
// run-dir/config/ (§6.5), rewriting template_dir/schema_dir to the
// snapshot's own paths so the run's behavior is pinned independent of
// later edits to the source pipeline file.
func snapshotConfig(run layout.Run, cfg *runconfig.Config, reg *registry.Registry, pipelinePath, registrySrc string) error {
	if err := os.MkdirAll(run.TemplatesDir(), 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(run.SchemasDir(), 0o755); err != nil {
		return err
	}

	for _, file := range cfg.Prompts.Templates {
		if err := copyFile(cfg.ResolvePath(filepath.Join(cfg.Prompts.TemplateDir, file)), filepath.Join(run.TemplatesDir(), file)); err != nil {
			return fmt.Errorf("snapshotting template %s: %w", file, err)
		}
	}
	for _, file := range cfg.Schemas.Files {
		if err := copyFile(cfg.ResolvePath(filepath.Join(cfg.Schemas.SchemaDir, file)), filepath.Join(run.SchemasDir(), file)); err != nil {
			return fmt.Errorf("snapshotting schema %s: %w", file, err)
		}
	}

	itemsSrc := cfg.ResolvePath(cfg.Processing.Items.Source)
	if err := copyFile(itemsSrc, filepath.Join(run.ConfigDir(), filepath.Base(itemsSrc))); err != nil {
		return fmt.Errorf("snapshotting items %s: %w", itemsSrc, err)
	}

	cfg.Prompts.TemplateDir = run.TemplatesDir()
	cfg.Schemas.SchemaDir = run.SchemasDir()

	data, err := marshalConfigYAML(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(run.ConfigFile(), data, 0o644); err != nil {
		return err
	}
	return copyFile(registrySrc, registryPath(run))
}

// applyModelOverride sets the CLI-level --model override on every
// chunk-scoped LLM step that doesn't already pin its own model in the
// pipeline YAML (a step's explicit override always wins).
func applyModelOverride(cfg *runconfig.Config, model string) {
	steps := cfg.Steps.All()
	for i, step := range steps {
		if step.IsLLM() && step.Model == "" {
			steps[i].Model = model
		}
	}
	cfg.Steps = runconfig.NewStepRegistry(steps)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// loadItems reads processing.items.source as a JSON array or object
// (keyed by name, iterated in sorted order for determinism) of field
// maps, matching §3's "Item ... already loaded by the caller" contract
// that unitgen.Generate itself deliberately stays agnostic to.
func loadItems(cfg *runconfig.Config) ([]unitgen.Item, error) {
	path := cfg.ResolvePath(cfg.Processing.Items.Source)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading items source %s: %w", path, err)
	}

	var asArray []map[string]any
	if err := json.Unmarshal(data, &asArray); err == nil {
		items := make([]unitgen.Item, len(asArray))
		for i, fields := range asArray {
			name := fmt.Sprintf("item_%03d", i)
			if cfg.Processing.Items.NameField != "" {
				if v, ok := fields[cfg.Processing.Items.NameField].(string); ok {
					name = v
				}
			}
			items[i] = unitgen.Item{Name: name, Fields: fields}
		}
		return items, nil
	}

	var asObject map[string]map[string]any
	if err := json.Unmarshal(data, &asObject); err != nil {
		return nil, fmt.Errorf("decoding items source %s as array or object: %w", path, err)
	}
	byName := make(map[string]unitgen.Item, len(asObject))
	for name, fields := range asObject {
		byName[name] = unitgen.Item{Name: name, Fields: fields}
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	itemsByName := make(map[string]unitgen.Item, len(byName))
	for _, name := range names {
		itemsByName[name] = byName[name]
	}
	sorted := unitgen.SortedItemNames(itemsByName)
	items := make([]unitgen.Item, 0, len(sorted))
	for _, name := range sorted {
		items = append(items, itemsByName[name])
	}
	return items, nil
}
