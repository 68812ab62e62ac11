package runconfig

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads, validates, and returns a ready-to-use pipeline configuration.
// This is the primary entry point, mirroring the teacher's config.Initialize:
//
//  1. Read the YAML file
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge user api/processing config over built-in defaults
//  5. Build the step registry
//  6. Validate everything (4-point-link rule, step and settings checks;
//     expression syntax is not checked here)
//  7. Return Config ready for use
func Load(path string) (*Config, error) {
	log := slog.With("config_path", path)
	log.Info("Loading pipeline configuration")

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, NewLoadError(path, err)
	}

	raw = ExpandEnv(raw)

	var doc PipelineConfig
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	api, err := mergeAPIConfig(doc.API)
	if err != nil {
		return nil, NewLoadError(path, err)
	}

	processing, err := mergeProcessingConfig(doc.Processing)
	if err != nil {
		return nil, NewLoadError(path, err)
	}

	cfg := &Config{
		configPath:  path,
		configDir:   filepath.Dir(path),
		Name:        doc.Pipeline.Name,
		Steps:       NewStepRegistry(doc.Pipeline.Steps),
		API:         api,
		Processing:  processing,
		Prompts:     doc.Prompts,
		Schemas:     doc.Schemas,
		Validation:  doc.Validation,
		PostProcess: doc.PostProcess,
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	stats := cfg.Stats()
	log.Info("Pipeline configuration loaded",
		"steps", stats.Steps,
		"llm_steps", stats.LLMSteps,
		"expression_steps", stats.ExpressionSteps,
		"run_steps", stats.RunSteps,
		"post_process", stats.PostProcess)

	return cfg, nil
}

// ResolvePath resolves a path from the pipeline config relative to its
// containing directory, unless it is already absolute.
func (c *Config) ResolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.configDir, p)
}
