package layout

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunPaths(t *testing.T) {
	r := New("/runs/demo")

	assert.Equal(t, filepath.Join("/runs/demo", "MANIFEST.json"), r.Manifest())
	assert.Equal(t, filepath.Join("/runs/demo", ".manifest_summary.json"), r.Summary())
	assert.Equal(t, filepath.Join("/runs/demo", "orchestrator.pid"), r.PIDFile())
	assert.Equal(t, filepath.Join("/runs/demo", "RUN_LOG.txt"), r.RunLog())
	assert.Equal(t, filepath.Join("/runs/demo", "TRACE_LOG.txt"), r.TraceLog())
	assert.Equal(t, filepath.Join("/runs/demo", "config"), r.ConfigDir())
	assert.Equal(t, filepath.Join("/runs/demo", "config", "config.yaml"), r.ConfigFile())
	assert.Equal(t, filepath.Join("/runs/demo", "config", "templates"), r.TemplatesDir())
	assert.Equal(t, filepath.Join("/runs/demo", "config", "schemas"), r.SchemasDir())
	assert.Equal(t, filepath.Join("/runs/demo", "chunks"), r.ChunksDir())
}

func TestChunkPaths(t *testing.T) {
	r := New("/runs/demo")
	c := r.Chunk("chunk_000")

	wantDir := filepath.Join("/runs/demo", "chunks", "chunk_000")
	assert.Equal(t, wantDir, c.Dir())
	assert.Equal(t, filepath.Join(wantDir, "units.jsonl"), c.Units())
	assert.Equal(t, filepath.Join(wantDir, "generate_prompts.jsonl"), c.Prompts("generate"))
	assert.Equal(t, filepath.Join(wantDir, "generate_results.jsonl"), c.Results("generate"))
	assert.Equal(t, filepath.Join(wantDir, "generate_validated.jsonl"), c.Validated("generate"))
	assert.Equal(t, filepath.Join(wantDir, "generate_failures.jsonl"), c.Failures("generate"))
}

func TestFailuresBakAppendsSuffix(t *testing.T) {
	c := New("/runs/demo").Chunk("chunk_001")
	assert.Equal(t, c.Failures("score")+".bak", c.FailuresBak("score"))
}

func TestChunkAddressingIsStable(t *testing.T) {
	r := New("/runs/demo")
	a := r.Chunk("chunk_000")
	b := r.Chunk("chunk_000")
	assert.Equal(t, a.Dir(), b.Dir())
}
