package runconfig

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalPipeline = `
pipeline:
  name: demo
  steps:
    - name: generate
      prompt_template: generate.tmpl
processing:
  strategy: direct
  chunk_size: 10
  items:
    source: items.json
prompts:
  template_dir: templates
  templates:
    generate: generate.tmpl
schemas:
  schema_dir: schemas
  files:
    generate: generate.schema.json
validation:
  generate:
    required: [answer]
`

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadValidMinimalPipeline(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, minimalPipeline)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.Name)
	assert.Equal(t, dir, cfg.ConfigDir())

	// Built-in defaults apply since api.* was omitted entirely.
	assert.Equal(t, 5, cfg.API.MaxInflightBatches)
	assert.Equal(t, 30.0, cfg.API.PollIntervalSeconds)
}

func TestLoadMissingFileWrapsErrConfigNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, ErrConfigNotFound))
}

func TestLoadInvalidYAMLWrapsErrInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "pipeline: [this is not valid: yaml")

	_, err := Load(path)
	require.Error(t, err)
	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.True(t, errors.Is(loadErr.Err, ErrInvalidYAML))
}

func TestLoadFourPointLinkViolationMissingSchema(t *testing.T) {
	dir := t.TempDir()
	broken := `
pipeline:
  name: demo
  steps:
    - name: generate
      prompt_template: generate.tmpl
processing:
  strategy: direct
  chunk_size: 10
  items:
    source: items.json
prompts:
  template_dir: templates
  templates:
    generate: generate.tmpl
schemas:
  schema_dir: schemas
  files: {}
validation:
  generate:
    required: [answer]
`
	path := writeConfig(t, dir, broken)

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidationFailed))
}

func TestLoadEnvExpansion(t *testing.T) {
	t.Setenv("DEMO_PIPELINE_NAME", "demo-expanded")
	dir := t.TempDir()
	body := strings.Replace(minimalPipeline, "name: demo", "name: ${DEMO_PIPELINE_NAME}", 1)
	path := writeConfig(t, dir, body)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "demo-expanded", cfg.Name)
}

func TestResolvePathRelativeAndAbsolute(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, minimalPipeline)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "items.json"), cfg.ResolvePath("items.json"))
	assert.Equal(t, "/abs/items.json", cfg.ResolvePath("/abs/items.json"))
}

func TestStatsCountsStepKinds(t *testing.T) {
	dir := t.TempDir()
	body := `
pipeline:
  name: demo
  steps:
    - name: generate
      prompt_template: generate.tmpl
    - name: derive
      scope: expression
      expressions:
        value: "1 + 1"
    - name: finalize
      scope: run
      script: finalize.sh
processing:
  strategy: direct
  chunk_size: 10
  items:
    source: items.json
prompts:
  template_dir: templates
  templates:
    generate: generate.tmpl
schemas:
  schema_dir: schemas
  files:
    generate: generate.schema.json
validation:
  generate:
    required: [answer]
`
	path := writeConfig(t, dir, body)
	cfg, err := Load(path)
	require.NoError(t, err)

	stats := cfg.Stats()
	assert.Equal(t, 3, stats.Steps)
	assert.Equal(t, 1, stats.LLMSteps)
	assert.Equal(t, 1, stats.ExpressionSteps)
	assert.Equal(t, 1, stats.RunSteps)
}

func TestToPipelineConfigRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, minimalPipeline)
	cfg, err := Load(path)
	require.NoError(t, err)

	pc := cfg.ToPipelineConfig()
	assert.Equal(t, cfg.Name, pc.Pipeline.Name)
	assert.Equal(t, cfg.Steps.All(), pc.Pipeline.Steps)
	assert.Equal(t, cfg.Schemas, pc.Schemas)
	assert.Equal(t, cfg.Validation, pc.Validation)
}
