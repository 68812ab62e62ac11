package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRegistry = `
providers:
  openai:
    env_var: OPENAI_API_KEY
    default_model: gpt-4o-mini
    realtime_multiplier: 1.5
    models:
      gpt-4o-mini:
        input_price_per_million: 0.15
        output_price_per_million: 0.6
        batch_support: true
  anthropic:
    env_var: ANTHROPIC_API_KEY
    default_model: claude-3-haiku
    models:
      claude-3-haiku:
        input_price_per_million: 0.25
        output_price_per_million: 1.25
        batch_support: true
`

func loadSample(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRegistry), 0o644))
	reg, err := Load(path)
	require.NoError(t, err)
	return reg
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestProviderLookup(t *testing.T) {
	reg := loadSample(t)

	p, ok := reg.Provider("openai")
	require.True(t, ok)
	assert.Equal(t, "OPENAI_API_KEY", p.EnvVar)
	assert.Equal(t, "gpt-4o-mini", p.DefaultModel)

	_, ok = reg.Provider("nonexistent")
	assert.False(t, ok)
}

func TestEnvVarAndDefaultModel(t *testing.T) {
	reg := loadSample(t)

	envVar, ok := reg.EnvVar("anthropic")
	require.True(t, ok)
	assert.Equal(t, "ANTHROPIC_API_KEY", envVar)

	model, ok := reg.DefaultModel("anthropic")
	require.True(t, ok)
	assert.Equal(t, "claude-3-haiku", model)

	_, ok = reg.EnvVar("nonexistent")
	assert.False(t, ok)
}

func TestModelPriceFallsBackToDefaultModel(t *testing.T) {
	reg := loadSample(t)

	price := reg.ModelPrice("openai", "")
	assert.Equal(t, 0.15, price.InputPricePerMillion)
	assert.Equal(t, 0.6, price.OutputPricePerMillion)
}

func TestModelPriceUnknownProviderReturnsZero(t *testing.T) {
	reg := loadSample(t)
	price := reg.ModelPrice("nonexistent", "whatever")
	assert.Equal(t, ModelPricing{}, price)
}

func TestModelPriceUnknownModelReturnsZero(t *testing.T) {
	reg := loadSample(t)
	price := reg.ModelPrice("openai", "gpt-nonexistent")
	assert.Equal(t, ModelPricing{}, price)
}

func TestRealtimeMultiplierConfiguredVsDefault(t *testing.T) {
	reg := loadSample(t)

	assert.Equal(t, 1.5, reg.RealtimeMultiplier("openai"))
	// anthropic has no realtime_multiplier set in the fixture, so it
	// falls back to the documented 2.0 default.
	assert.Equal(t, 2.0, reg.RealtimeMultiplier("anthropic"))
	assert.Equal(t, 2.0, reg.RealtimeMultiplier("nonexistent"))
}
