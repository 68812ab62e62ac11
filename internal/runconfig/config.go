package runconfig

// Config is the fully-loaded, validated pipeline definition plus registries
// derived from it. This is the primary object returned by Load() and
// threaded through the rest of the orchestration engine.
type Config struct {
	configPath string
	configDir  string

	Name        string
	Steps       *StepRegistry
	API         APIConfig
	Processing  ProcessingConfig
	Prompts     PromptsConfig
	Schemas     SchemasConfig
	Validation  map[string]StepRules
	PostProcess []PostProcessStep
}

// ConfigPath returns the path the pipeline YAML was loaded from.
func (c *Config) ConfigPath() string { return c.configPath }

// ConfigDir returns the directory containing the pipeline YAML
// (used to resolve relative template_dir/schema_dir/items paths).
func (c *Config) ConfigDir() string { return c.configDir }

// ToPipelineConfig reconstructs the on-disk PipelineConfig shape from a
// loaded Config, so a caller that mutates a Config in memory (e.g. --init
// baking CLI overrides and a rewritten template_dir/schema_dir into a run's
// config snapshot, §6.5) can marshal it back out with the same yaml tags
// Load itself parses.
func (c *Config) ToPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Pipeline:    PipelineSection{Name: c.Name, Steps: c.Steps.All()},
		API:         c.API,
		Processing:  c.Processing,
		Prompts:     c.Prompts,
		Schemas:     c.Schemas,
		Validation:  c.Validation,
		PostProcess: c.PostProcess,
	}
}

// Stats summarizes a loaded pipeline for logging.
type Stats struct {
	Steps          int
	LLMSteps       int
	ExpressionSteps int
	RunSteps       int
	PostProcess    int
}

// Stats returns pipeline statistics for startup logging.
func (c *Config) Stats() Stats {
	s := Stats{Steps: len(c.Steps.All()), PostProcess: len(c.PostProcess)}
	for _, step := range c.Steps.All() {
		switch {
		case step.IsRunScope():
			s.RunSteps++
		case step.IsExpression():
			s.ExpressionSteps++
		default:
			s.LLMSteps++
		}
	}
	return s
}
