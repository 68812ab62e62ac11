// Package registry loads the out-of-band model-pricing registry (§3 Model
// Registry): a YAML mapping provider → {env var, default model, realtime
// multiplier, models → {input price, output price, batch support}}.
package registry

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// ModelPricing holds per-million-token pricing at the batch (discounted) rate.
type ModelPricing struct {
	InputPricePerMillion  float64 `yaml:"input_price_per_million"`
	OutputPricePerMillion float64 `yaml:"output_price_per_million"`
	BatchSupport          bool    `yaml:"batch_support"`
}

// ProviderEntry describes one provider's credential variable, default model,
// realtime cost multiplier, and per-model pricing table.
type ProviderEntry struct {
	EnvVar              string                  `yaml:"env_var"`
	DefaultModel        string                  `yaml:"default_model"`
	RealtimeMultiplier  float64                 `yaml:"realtime_multiplier"`
	Models              map[string]ModelPricing `yaml:"models"`
}

// document is the on-disk shape of the registry YAML file.
type document struct {
	Providers map[string]ProviderEntry `yaml:"providers"`
}

// Registry is an immutable, concurrency-safe view over loaded provider/model
// pricing data. It is loaded once at startup and passed down as a value per
// the teacher's "no global mutable state" discipline (pkg/config registries).
type Registry struct {
	providers map[string]ProviderEntry
	mu        sync.RWMutex
}

// Load reads and parses a model-registry YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model registry %s: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse model registry %s: %w", path, err)
	}

	slog.Info("Loaded model registry", "path", path, "providers", len(doc.Providers))

	return &Registry{providers: doc.Providers}, nil
}

// Provider returns the registry entry for the named provider.
func (r *Registry) Provider(name string) (ProviderEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// ModelPrice returns pricing for provider/model. Per §4.1 Summary fields,
// a missing model falls back to zero pricing with a warning rather than
// failing the caller.
func (r *Registry) ModelPrice(provider, model string) ModelPricing {
	p, ok := r.Provider(provider)
	if !ok {
		slog.Warn("Unknown provider in cost estimate, using zero pricing", "provider", provider)
		return ModelPricing{}
	}
	if model == "" {
		model = p.DefaultModel
	}
	price, ok := p.Models[model]
	if !ok {
		slog.Warn("Unknown model in cost estimate, using zero pricing", "provider", provider, "model", model)
		return ModelPricing{}
	}
	return price
}

// RealtimeMultiplier returns the provider's realtime cost multiplier,
// defaulting to 2.0 (§ Glossary: "Realtime ... ≈2× batch cost") when the
// provider is unknown.
func (r *Registry) RealtimeMultiplier(provider string) float64 {
	p, ok := r.Provider(provider)
	if !ok || p.RealtimeMultiplier <= 0 {
		return 2.0
	}
	return p.RealtimeMultiplier
}

// EnvVar returns the credential environment variable name for a provider.
func (r *Registry) EnvVar(provider string) (string, bool) {
	p, ok := r.Provider(provider)
	if !ok {
		return "", false
	}
	return p.EnvVar, true
}

// DefaultModel returns the configured default model for a provider.
func (r *Registry) DefaultModel(provider string) (string, bool) {
	p, ok := r.Provider(provider)
	if !ok {
		return "", false
	}
	return p.DefaultModel, true
}
