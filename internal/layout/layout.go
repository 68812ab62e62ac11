// Package layout centralizes the on-disk run-directory structure (§6.5) so
// every component addresses files the same way.
package layout

import (
	"fmt"
	"path/filepath"
)

// Run addresses all paths under a single run directory.
type Run struct {
	Dir string
}

// New wraps a run directory path.
func New(dir string) Run { return Run{Dir: dir} }

// Manifest returns the authoritative state file path.
func (r Run) Manifest() string { return filepath.Join(r.Dir, "MANIFEST.json") }

// Summary returns the derived lightweight cache file path.
func (r Run) Summary() string { return filepath.Join(r.Dir, ".manifest_summary.json") }

// PIDFile returns the PID-file path.
func (r Run) PIDFile() string { return filepath.Join(r.Dir, "orchestrator.pid") }

// RunLog returns the operational log path.
func (r Run) RunLog() string { return filepath.Join(r.Dir, "RUN_LOG.txt") }

// TraceLog returns the per-request telemetry log path.
func (r Run) TraceLog() string { return filepath.Join(r.Dir, "TRACE_LOG.txt") }

// ConfigDir returns the snapshot directory created at --init time.
func (r Run) ConfigDir() string { return filepath.Join(r.Dir, "config") }

// ConfigFile returns the snapshotted pipeline YAML path.
func (r Run) ConfigFile() string { return filepath.Join(r.ConfigDir(), "config.yaml") }

// TemplatesDir returns the snapshotted templates directory.
func (r Run) TemplatesDir() string { return filepath.Join(r.ConfigDir(), "templates") }

// SchemasDir returns the snapshotted schemas directory.
func (r Run) SchemasDir() string { return filepath.Join(r.ConfigDir(), "schemas") }

// ChunksDir returns the root directory holding all chunk subdirectories.
func (r Run) ChunksDir() string { return filepath.Join(r.Dir, "chunks") }

// Chunk addresses a single chunk's files.
type Chunk struct {
	Run  Run
	Name string
}

// Chunk returns a Chunk addressing helper for the given chunk name.
func (r Run) Chunk(name string) Chunk { return Chunk{Run: r, Name: name} }

// Dir returns the chunk's directory.
func (c Chunk) Dir() string { return filepath.Join(c.Run.ChunksDir(), c.Name) }

// Units returns the chunk's input-units file (input to the first stage).
func (c Chunk) Units() string { return filepath.Join(c.Dir(), "units.jsonl") }

// Prompts returns the rendered-prompts file for a stage.
func (c Chunk) Prompts(stage string) string {
	return filepath.Join(c.Dir(), fmt.Sprintf("%s_prompts.jsonl", stage))
}

// Results returns the raw-LLM-response file for a stage (ephemeral/optional).
func (c Chunk) Results(stage string) string {
	return filepath.Join(c.Dir(), fmt.Sprintf("%s_results.jsonl", stage))
}

// Validated returns the validated-records file for a stage.
func (c Chunk) Validated(stage string) string {
	return filepath.Join(c.Dir(), fmt.Sprintf("%s_validated.jsonl", stage))
}

// Failures returns the failure-records file for a stage.
func (c Chunk) Failures(stage string) string {
	return filepath.Join(c.Dir(), fmt.Sprintf("%s_failures.jsonl", stage))
}

// FailuresBak returns the transient retry-recovery backup file for a stage.
func (c Chunk) FailuresBak(stage string) string {
	return c.Failures(stage) + ".bak"
}
