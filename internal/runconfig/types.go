package runconfig

// PipelineConfig is the root of a pipeline definition YAML file (§6.1).
type PipelineConfig struct {
	Pipeline    PipelineSection      `yaml:"pipeline"`
	API         APIConfig            `yaml:"api"`
	Processing  ProcessingConfig     `yaml:"processing"`
	Prompts     PromptsConfig        `yaml:"prompts"`
	Schemas     SchemasConfig        `yaml:"schemas"`
	Validation  map[string]StepRules `yaml:"validation"`
	PostProcess []PostProcessStep    `yaml:"post_process,omitempty"`
}

// PipelineSection holds the ordered list of stages.
type PipelineSection struct {
	Name  string       `yaml:"name,omitempty"`
	Steps []StepConfig `yaml:"steps"`
}

// StepScope distinguishes per-chunk expression stages from once-per-run steps.
type StepScope string

const (
	// ScopeChunk is the default: the step runs once per chunk (LLM or expression).
	ScopeChunk StepScope = ""
	// ScopeExpression marks a step as a local, zero-cost expression stage.
	ScopeExpression StepScope = "expression"
	// ScopeRun marks a step as executing once per run, after all chunks are terminal.
	ScopeRun StepScope = "run"
)

// StepConfig describes a single pipeline stage (§3 Pipeline Stage).
type StepConfig struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Provider    string    `yaml:"provider,omitempty"`
	Model       string    `yaml:"model,omitempty"`
	Scope       StepScope `yaml:"scope,omitempty"`

	// LLM stage fields.
	PromptTemplate string `yaml:"prompt_template,omitempty"`

	// Expression stage fields.
	Init          ExprBlock `yaml:"init,omitempty"`
	Expressions   ExprBlock `yaml:"expressions,omitempty"`
	LoopUntil     string    `yaml:"loop_until,omitempty"`
	MaxIterations int       `yaml:"max_iterations,omitempty"`

	// Run-scope / post-process step fields.
	Script string `yaml:"script,omitempty"`
	Type   string `yaml:"type,omitempty"` // "script" | "gzip"
}

// IsLLM reports whether this step submits prompts to a provider.
func (s StepConfig) IsLLM() bool {
	return s.Scope != ScopeExpression && s.Scope != ScopeRun
}

// IsExpression reports whether this step evaluates locally with no API calls.
func (s StepConfig) IsExpression() bool {
	return s.Scope == ScopeExpression
}

// IsRunScope reports whether this step executes once per run.
func (s StepConfig) IsRunScope() bool {
	return s.Scope == ScopeRun
}

// HasLoop reports whether the expression stage iterates via loop_until.
func (s StepConfig) HasLoop() bool {
	return s.LoopUntil != ""
}

// EffectiveMaxIterations returns MaxIterations, defaulting to 1000 (§4.6).
func (s StepConfig) EffectiveMaxIterations() int {
	if s.MaxIterations > 0 {
		return s.MaxIterations
	}
	return 1000
}

// RetryConfig controls provider retry/backoff behavior (§4.7, §6.1).
type RetryConfig struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialDelay      float64 `yaml:"initial_delay_seconds"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
}

// RealtimeConfig controls the synchronous execution mode.
type RealtimeConfig struct {
	CostCapUSD float64 `yaml:"cost_cap_usd"`
	AutoRetry  bool    `yaml:"auto_retry"`
}

// APIConfig groups provider selection and loop-control knobs (§6.1).
type APIConfig struct {
	Provider              string         `yaml:"provider,omitempty"`
	MaxInflightBatches    int            `yaml:"max_inflight_batches"`
	PollIntervalSeconds   float64        `yaml:"poll_interval_seconds"`
	Retry                 RetryConfig    `yaml:"retry"`
	Realtime              RealtimeConfig `yaml:"realtime"`
	SubprocessTimeoutSecs int            `yaml:"subprocess_timeout_seconds"`
}

// UnitStrategy selects how the Unit Generator combines source data.
type UnitStrategy string

const (
	StrategyPermutation  UnitStrategy = "permutation"
	StrategyCrossProduct UnitStrategy = "cross_product"
	StrategyDirect       UnitStrategy = "direct"
)

// PositionConfig describes one axis of a cross_product/permutation strategy.
type PositionConfig struct {
	Name      string `yaml:"name"`
	SourceKey string `yaml:"source_key,omitempty"`
}

// ItemsConfig describes where unit source records come from.
type ItemsConfig struct {
	Source    string `yaml:"source"`
	Key       string `yaml:"key,omitempty"`
	NameField string `yaml:"name_field,omitempty"`
}

// ValidationRetryConfig holds the validation_retry block. It is parsed and
// defaulted, but no code reads MaxAttempts: the retry-recovery scan does
// not bound how often a chunk is reset.
type ValidationRetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// ProcessingConfig controls unit generation and chunking (§6.1).
type ProcessingConfig struct {
	Strategy        UnitStrategy          `yaml:"strategy"`
	ChunkSize       int                   `yaml:"chunk_size"`
	Repeat          int                   `yaml:"repeat,omitempty"`
	Expressions     ExprBlock             `yaml:"expressions,omitempty"`
	Positions       []PositionConfig      `yaml:"positions,omitempty"`
	Items           ItemsConfig           `yaml:"items"`
	ValidationRetry ValidationRetryConfig `yaml:"validation_retry"`
}

// PromptsConfig wires stage names to template files.
type PromptsConfig struct {
	TemplateDir   string            `yaml:"template_dir"`
	Templates     map[string]string `yaml:"templates"`
	GlobalContext map[string]any    `yaml:"global_context,omitempty"`
}

// SchemasConfig wires stage names to JSON Schema files.
type SchemasConfig struct {
	SchemaDir           string            `yaml:"schema_dir"`
	Files               map[string]string `yaml:"files"`
	StrictMode          bool              `yaml:"strict_mode"`
	LogValidationErrors bool              `yaml:"log_validation_errors"`
}

// RuleLevel distinguishes hard failures from logged-and-passed warnings.
type RuleLevel string

const (
	LevelError   RuleLevel = "error"
	LevelWarning RuleLevel = "warning"
)

// BusinessRule is one user-defined boolean-expression rule (§4.4 Phase 2).
type BusinessRule struct {
	Name  string    `yaml:"name"`
	Rule  string    `yaml:"rule"`
	Error string    `yaml:"error"`
	Level RuleLevel `yaml:"level,omitempty"`
	When  string    `yaml:"when,omitempty"`
}

// StepRules is the business-rule validation block for a single stage.
type StepRules struct {
	Required []string              `yaml:"required,omitempty"`
	Types    map[string]string     `yaml:"types,omitempty"`
	Enums    map[string][]string   `yaml:"enums,omitempty"`
	Ranges   map[string][2]float64 `yaml:"ranges,omitempty"`
	Rules    []BusinessRule        `yaml:"rules,omitempty"`
}

// PostProcessStep runs after all chunks and run-scope steps are terminal.
type PostProcessStep struct {
	Name          string   `yaml:"name"`
	Script        string   `yaml:"script,omitempty"`
	Args          []string `yaml:"args,omitempty"`
	Output        string   `yaml:"output,omitempty"`
	Type          string   `yaml:"type,omitempty"` // "gzip" when present
	Files         []string `yaml:"files,omitempty"`
	KeepOriginals bool     `yaml:"keep_originals,omitempty"`
}

// IsGzip reports whether this is a built-in compression step rather than a script.
func (p PostProcessStep) IsGzip() bool { return p.Type == "gzip" }
