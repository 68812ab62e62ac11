package unitgen

import (
	"testing"

	"github.com/codeready-toolchain/batchctl/internal/runconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func items(n int) []Item {
	out := make([]Item, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Item{Name: idFor(i), Fields: map[string]any{"i": i}})
	}
	return out
}

func idFor(i int) string {
	return "item_" + string(rune('a'+i))
}

func TestGenerateDirectIsPure(t *testing.T) {
	proc := runconfig.ProcessingConfig{Strategy: runconfig.StrategyDirect, ChunkSize: 10}
	a, err := Generate(proc, items(5))
	require.NoError(t, err)
	b, err := Generate(proc, items(5))
	require.NoError(t, err)

	require.Len(t, a, 5)
	for i := range a {
		assert.Equal(t, a[i].UnitID, b[i].UnitID)
	}
}

func TestGenerateRepeatProducesRepetitionIDsAndSeeds(t *testing.T) {
	proc := runconfig.ProcessingConfig{Strategy: runconfig.StrategyDirect, ChunkSize: 10, Repeat: 3}
	units, err := Generate(proc, items(2))
	require.NoError(t, err)
	require.Len(t, units, 6)

	for _, u := range units {
		assert.True(t, u.HasRepetition)
		assert.Contains(t, u.UnitID, "__rep")
	}
	assert.Equal(t, units[0].RepetitionSeed, units[0].RepetitionSeed)
	assert.NotEqual(t, units[0].RepetitionSeed, units[1].RepetitionSeed)
}

func TestGenerateRejectsZeroUnits(t *testing.T) {
	proc := runconfig.ProcessingConfig{Strategy: runconfig.StrategyDirect, ChunkSize: 10}
	_, err := Generate(proc, nil)
	assert.Error(t, err)
}

func TestGenerateUnknownStrategy(t *testing.T) {
	proc := runconfig.ProcessingConfig{Strategy: "bogus"}
	_, err := Generate(proc, items(1))
	assert.Error(t, err)
}

func TestCrossProductExpandsPositions(t *testing.T) {
	positions := []runconfig.PositionConfig{{Name: "left"}, {Name: "right"}}
	proc := runconfig.ProcessingConfig{Strategy: runconfig.StrategyCrossProduct, ChunkSize: 10, Positions: positions}
	units, err := Generate(proc, items(2))
	require.NoError(t, err)
	assert.Len(t, units, 4) // 2x2 cartesian product
}

func TestPartitionNeverEmptyChunks(t *testing.T) {
	proc := runconfig.ProcessingConfig{Strategy: runconfig.StrategyDirect, ChunkSize: 10}
	units, err := Generate(proc, items(5))
	require.NoError(t, err)

	chunks, err := Partition(units, 2)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.NotEmpty(t, c.Units)
	}
	assert.Equal(t, "chunk_000", chunks[0].Name)
	assert.Equal(t, "chunk_002", chunks[2].Name)
	assert.Len(t, chunks[2].Units, 1)
}

func TestPartitionRejectsZeroUnits(t *testing.T) {
	_, err := Partition(nil, 10)
	assert.Error(t, err)
}

func TestPartitionRejectsInvalidChunkSize(t *testing.T) {
	proc := runconfig.ProcessingConfig{Strategy: runconfig.StrategyDirect, ChunkSize: 10}
	units, err := Generate(proc, items(1))
	require.NoError(t, err)

	_, err = Partition(units, 0)
	assert.Error(t, err)
}
