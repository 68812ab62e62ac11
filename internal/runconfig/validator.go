package runconfig

import (
	"fmt"
)

// Validator validates pipeline configuration comprehensively with clear
// error messages, mirroring the teacher's Validator shape (fail-fast,
// one concern per method).
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// Validate runs the full validator over cfg. Convenience wrapper so callers
// don't need to construct a Validator directly.
func Validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}

// ValidateAll performs comprehensive validation (fail-fast - stops at the
// first error).
func (v *Validator) ValidateAll() error {
	if err := v.validateSteps(); err != nil {
		return fmt.Errorf("step validation failed: %w", err)
	}
	if err := v.validateFourPointLink(); err != nil {
		return fmt.Errorf("4-point link validation failed: %w", err)
	}
	if err := v.validateAPI(); err != nil {
		return fmt.Errorf("api validation failed: %w", err)
	}
	if err := v.validateProcessing(); err != nil {
		return fmt.Errorf("processing validation failed: %w", err)
	}
	if err := v.validatePostProcess(); err != nil {
		return fmt.Errorf("post_process validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateSteps() error {
	steps := v.cfg.Steps.All()
	if len(steps) == 0 {
		return NewValidationError("pipeline", "steps", "", fmt.Errorf("%w: pipeline.steps must be non-empty", ErrMissingRequiredField))
	}

	seen := make(map[string]bool, len(steps))
	for _, s := range steps {
		if s.Name == "" {
			return NewValidationError("step", "<unnamed>", "name", ErrMissingRequiredField)
		}
		if seen[s.Name] {
			return NewValidationError("step", s.Name, "name", fmt.Errorf("duplicate step name"))
		}
		seen[s.Name] = true

		switch {
		case s.IsRunScope():
			if s.Script == "" && s.Type == "" {
				return NewValidationError("step", s.Name, "script", fmt.Errorf("run-scope step requires script or type"))
			}
		case s.IsExpression():
			if len(s.Expressions) == 0 {
				return NewValidationError("step", s.Name, "expressions", fmt.Errorf("%w: expression step requires at least one expression", ErrMissingRequiredField))
			}
			if s.HasLoop() && s.EffectiveMaxIterations() < 1 {
				return NewValidationError("step", s.Name, "max_iterations", ErrInvalidValue)
			}
		default: // LLM stage
			if s.PromptTemplate == "" {
				return NewValidationError("step", s.Name, "prompt_template", fmt.Errorf("%w: LLM step requires prompt_template", ErrMissingRequiredField))
			}
		}
	}
	return nil
}

// validateFourPointLink enforces §6.1: every LLM stage name must appear
// identically in pipeline.steps[], prompts.templates, schemas.files, and
// validation. Expression and run-scope stages are exempt.
func (v *Validator) validateFourPointLink() error {
	for _, s := range v.cfg.Steps.All() {
		if !s.IsLLM() {
			continue
		}
		name := s.Name

		if _, ok := v.cfg.Prompts.Templates[name]; !ok {
			return NewValidationError("step", name, "prompts.templates", fmt.Errorf("%w: missing template wiring", ErrLinkViolation))
		}
		if _, ok := v.cfg.Schemas.Files[name]; !ok {
			return NewValidationError("step", name, "schemas.files", fmt.Errorf("%w: missing schema wiring", ErrLinkViolation))
		}
		if _, ok := v.cfg.Validation[name]; !ok {
			return NewValidationError("step", name, "validation", fmt.Errorf("%w: missing validation block", ErrLinkViolation))
		}
	}

	// Reverse direction: prompts/schemas/validation must not reference a
	// step that doesn't exist (or that is not an LLM step).
	llmNames := make(map[string]bool)
	for _, s := range v.cfg.Steps.All() {
		if s.IsLLM() {
			llmNames[s.Name] = true
		}
	}
	for _, name := range sortedKeys(v.cfg.Prompts.Templates) {
		if !llmNames[name] {
			return NewValidationError("prompts.templates", name, "", fmt.Errorf("%w: references unknown or non-LLM step", ErrLinkViolation))
		}
	}
	for _, name := range sortedKeys(v.cfg.Schemas.Files) {
		if !llmNames[name] {
			return NewValidationError("schemas.files", name, "", fmt.Errorf("%w: references unknown or non-LLM step", ErrLinkViolation))
		}
	}
	for _, name := range sortedKeys(v.cfg.Validation) {
		if !llmNames[name] {
			return NewValidationError("validation", name, "", fmt.Errorf("%w: references unknown or non-LLM step", ErrLinkViolation))
		}
	}
	return nil
}

func (v *Validator) validateAPI() error {
	a := v.cfg.API
	if a.MaxInflightBatches < 1 {
		return NewValidationError("api", "max_inflight_batches", "", fmt.Errorf("%w: must be at least 1, got %d", ErrInvalidValue, a.MaxInflightBatches))
	}
	if a.PollIntervalSeconds <= 0 {
		return NewValidationError("api", "poll_interval_seconds", "", fmt.Errorf("%w: must be positive, got %v", ErrInvalidValue, a.PollIntervalSeconds))
	}
	if a.Retry.MaxAttempts < 1 {
		return NewValidationError("api.retry", "max_attempts", "", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if a.Retry.BackoffMultiplier < 1 {
		return NewValidationError("api.retry", "backoff_multiplier", "", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	if a.Realtime.CostCapUSD < 0 {
		return NewValidationError("api.realtime", "cost_cap_usd", "", fmt.Errorf("%w: must be non-negative", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateProcessing() error {
	p := v.cfg.Processing
	switch p.Strategy {
	case StrategyPermutation, StrategyCrossProduct, StrategyDirect:
	default:
		return NewValidationError("processing", "strategy", "", fmt.Errorf("%w: unknown strategy %q", ErrInvalidValue, p.Strategy))
	}
	if p.ChunkSize < 1 {
		return NewValidationError("processing", "chunk_size", "", fmt.Errorf("%w: must be at least 1, got %d", ErrInvalidValue, p.ChunkSize))
	}
	if p.Repeat < 0 {
		return NewValidationError("processing", "repeat", "", fmt.Errorf("%w: must be non-negative", ErrInvalidValue))
	}
	if p.Items.Source == "" {
		return NewValidationError("processing.items", "source", "", ErrMissingRequiredField)
	}
	if p.Strategy == StrategyCrossProduct && len(p.Positions) == 0 {
		return NewValidationError("processing", "positions", "", fmt.Errorf("%w: cross_product strategy requires positions[]", ErrMissingRequiredField))
	}
	return nil
}

func (v *Validator) validatePostProcess() error {
	for _, step := range v.cfg.PostProcess {
		if step.Name == "" {
			return NewValidationError("post_process", "<unnamed>", "name", ErrMissingRequiredField)
		}
		if step.IsGzip() {
			if len(step.Files) == 0 {
				return NewValidationError("post_process", step.Name, "files", fmt.Errorf("%w: gzip step requires files[]", ErrMissingRequiredField))
			}
			continue
		}
		if step.Script == "" {
			return NewValidationError("post_process", step.Name, "script", ErrMissingRequiredField)
		}
	}
	return nil
}
