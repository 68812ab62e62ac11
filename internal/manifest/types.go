// Package manifest implements the atomic Manifest Store (§4.1): the single
// authoritative record of a run's state, plus the derived lightweight
// summary cache consumers poll instead of re-parsing the full manifest.
package manifest

import "time"

// Status is the run-level lifecycle state (§3 Manifest).
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusComplete Status = "complete"
	StatusFailed  Status = "failed"
	StatusKilled  Status = "killed"
)

// Mode records whether a run's chunks were driven in batch mode, realtime
// mode, or a mix of both (a chunk may switch mode across resumes).
type Mode string

const (
	ModeBatch    Mode = "batch"
	ModeRealtime Mode = "realtime"
	ModeMixed    Mode = "mixed"
)

// Metadata carries run-level bookkeeping that does not belong to any single
// chunk: the PID of the owning process, the pause reason, and cumulative
// token/cost accounting split into initial vs. retry buckets (§4.9).
type Metadata struct {
	PID           int    `json:"pid,omitempty"`
	PausedReason  string `json:"paused_reason,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`

	InitialInputTokens  int64 `json:"initial_input_tokens"`
	InitialOutputTokens int64 `json:"initial_output_tokens"`
	RetryInputTokens    int64 `json:"retry_input_tokens"`
	RetryOutputTokens   int64 `json:"retry_output_tokens"`

	TotalCostUSD float64 `json:"total_cost_usd"`
}

// Chunk is a bounded partition of units tracked through the chunk state
// machine (§4.2). State is a raw string of the form "{stage}_PENDING",
// "{stage}_SUBMITTED", "VALIDATED", or "FAILED" — see package chunkstate
// for the transition logic over this field.
type Chunk struct {
	Name string `json:"name"`

	UnitCount   int `json:"unit_count"`
	ValidCount  int `json:"valid_count"`
	FailedCount int `json:"failed_count"`
	RetryCount  int `json:"retry_count"`

	BatchID        string     `json:"batch_id,omitempty"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
	ProviderStatus string     `json:"provider_status,omitempty"`

	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`

	State string `json:"state"`
	Mode  Mode   `json:"mode,omitempty"`
}

// Manifest is the persistent, authoritative state of a run (§3). Every
// mutation must go through Save so the write-temp-then-rename
// discipline applies uniformly.
type Manifest struct {
	RunName string `json:"run_name"`

	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
	Started *time.Time `json:"started_at,omitempty"`
	PausedAt *time.Time `json:"paused_at,omitempty"`
	Completed *time.Time `json:"completed_at,omitempty"`

	Status Status `json:"status"`

	PipelineName string   `json:"pipeline_name"`
	PipelineList []string `json:"pipeline_list"`

	Chunks []Chunk `json:"chunks"`

	Metadata Metadata `json:"metadata"`

	CompletedRunSteps []string `json:"completed_run_steps"`
}

// New creates a fresh manifest for a run about to be initialised.
func New(runName, pipelineName string, steps []string) *Manifest {
	now := time.Now()
	return &Manifest{
		RunName:      runName,
		Created:      now,
		Updated:      now,
		Status:       StatusPending,
		PipelineName: pipelineName,
		PipelineList: steps,
		Chunks:       nil,
		CompletedRunSteps: []string{},
	}
}

// Chunk returns a pointer to the named chunk, or nil if absent. The pointer
// aliases the manifest's own slice element so callers may mutate in place
// before the next Save.
func (m *Manifest) Chunk(name string) *Chunk {
	for i := range m.Chunks {
		if m.Chunks[i].Name == name {
			return &m.Chunks[i]
		}
	}
	return nil
}

// AllTerminal reports whether every chunk is VALIDATED or FAILED.
func (m *Manifest) AllTerminal() bool {
	for _, c := range m.Chunks {
		if c.State != "VALIDATED" && c.State != "FAILED" {
			return false
		}
	}
	return true
}

// HasCompletedRunStep reports whether a run-scope step has already executed
// (§4.3 epilogue idempotency via completed_run_steps).
func (m *Manifest) HasCompletedRunStep(name string) bool {
	for _, s := range m.CompletedRunSteps {
		if s == name {
			return true
		}
	}
	return false
}

// MarkRunStepCompleted appends name to completed_run_steps if not already
// present.
func (m *Manifest) MarkRunStepCompleted(name string) {
	if m.HasCompletedRunStep(name) {
		return
	}
	m.CompletedRunSteps = append(m.CompletedRunSteps, name)
}

// Summary is the derived, lightweight cache written alongside every
// manifest save (§4.1 "Summary fields"). Consumers poll this instead of
// re-parsing the full manifest; a stale summary is only ever stale, never
// corrupt, because it is produced by the same atomic discipline.
type Summary struct {
	RunName  string `json:"run_name"`
	Status   Status `json:"status"`
	Progress float64 `json:"progress_pct"`

	TotalUnits  int `json:"total_units"`
	ValidUnits  int `json:"valid_units"`
	FailedUnits int `json:"failed_units"`

	TotalCostUSD float64 `json:"total_cost_usd"`
	TotalTokens  int64   `json:"total_tokens"`

	Mode Mode `json:"mode"`

	PipelineName string `json:"pipeline_name"`

	Created   time.Time  `json:"created"`
	Updated   time.Time  `json:"updated"`
	Started   *time.Time `json:"started_at,omitempty"`
	Completed *time.Time `json:"completed_at,omitempty"`
}

// BuildSummary derives the summary cache from the current manifest state.
// Cost is computed best-effort by callers that have registry access; this
// function only aggregates the fields already tracked on the manifest.
func BuildSummary(m *Manifest) Summary {
	s := Summary{
		RunName:      m.RunName,
		Status:       m.Status,
		PipelineName: m.PipelineName,
		TotalCostUSD: m.Metadata.TotalCostUSD,
		TotalTokens: m.Metadata.InitialInputTokens + m.Metadata.InitialOutputTokens +
			m.Metadata.RetryInputTokens + m.Metadata.RetryOutputTokens,
		Created:   m.Created,
		Updated:   m.Updated,
		Started:   m.Started,
		Completed: m.Completed,
	}

	modes := map[Mode]bool{}
	for _, c := range m.Chunks {
		s.TotalUnits += c.UnitCount
		s.ValidUnits += c.ValidCount
		s.FailedUnits += c.FailedCount
		if c.Mode != "" {
			modes[c.Mode] = true
		}
	}
	switch len(modes) {
	case 0:
		s.Mode = ""
	case 1:
		for mode := range modes {
			s.Mode = mode
		}
	default:
		s.Mode = ModeMixed
	}

	if s.TotalUnits > 0 {
		s.Progress = float64(s.ValidUnits+s.FailedUnits) / float64(s.TotalUnits) * 100
	}

	return s
}
