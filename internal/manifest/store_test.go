package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := New("run-1", "demo", []string{"generate", "score"})
	m.Chunks = []Chunk{
		{Name: "chunk_000", UnitCount: 50, ValidCount: 30, State: "generate_PENDING"},
	}

	require.NoError(t, Save(dir, m))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, m.RunName, loaded.RunName)
	assert.Equal(t, m.PipelineList, loaded.PipelineList)
	assert.Len(t, loaded.Chunks, 1)
	assert.Equal(t, "generate_PENDING", loaded.Chunks[0].State)
}

func TestLoadMissingReturnsErrNotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLoadCorruptReturnsErrCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "MANIFEST.json"), []byte("{not json"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestSaveWritesSummaryAlongsideManifest(t *testing.T) {
	dir := t.TempDir()
	m := New("run-2", "demo", []string{"score"})
	m.Chunks = []Chunk{
		{Name: "chunk_000", UnitCount: 10, ValidCount: 10, State: "VALIDATED"},
	}
	m.Status = StatusComplete

	require.NoError(t, Save(dir, m))

	summary, err := ReadSummary(dir)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, summary.Status)
	assert.Equal(t, 10, summary.TotalUnits)
	assert.Equal(t, 10, summary.ValidUnits)
	assert.InDelta(t, 100.0, summary.Progress, 0.001)
}

func TestSaveNoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	m := New("run-3", "demo", []string{"score"})
	require.NoError(t, Save(dir, m))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}

func TestSaveIsIdempotentRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := New("run-4", "demo", []string{"generate"})
	require.NoError(t, Save(dir, m))

	loaded, err := Load(dir)
	require.NoError(t, err)

	require.NoError(t, Save(dir, loaded))
	reloaded, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, loaded.RunName, reloaded.RunName)
	assert.Equal(t, loaded.PipelineList, reloaded.PipelineList)
	assert.Equal(t, loaded.Status, reloaded.Status)
}
