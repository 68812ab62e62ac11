package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evalStr(t *testing.T, src string, vars map[string]any) any {
	t.Helper()
	env := NewEnv(vars, NewRNG(1))
	v, err := EvalString(src, env)
	require.NoError(t, err)
	return v
}

func TestArithmetic(t *testing.T) {
	assert.Equal(t, int64(7), evalStr(t, "3 + 4", nil))
	assert.Equal(t, int64(12), evalStr(t, "3 * 4", nil))
	assert.Equal(t, 1.5, evalStr(t, "3 / 2", nil))
	assert.Equal(t, int64(1), evalStr(t, "3 // 2", nil))
	assert.Equal(t, int64(1), evalStr(t, "7 % 2", nil))
	assert.Equal(t, int64(8), evalStr(t, "2 ** 3", nil))
}

func TestComparisonAndLogical(t *testing.T) {
	assert.Equal(t, true, evalStr(t, "pos <= 0 or pos >= 10", map[string]any{"pos": int64(0)}))
	assert.Equal(t, false, evalStr(t, "pos <= 0 or pos >= 10", map[string]any{"pos": int64(5)}))
	assert.Equal(t, true, evalStr(t, "1 < 2 < 3", nil))
	assert.Equal(t, false, evalStr(t, "1 < 2 < 1", nil))
}

func TestTernary(t *testing.T) {
	assert.Equal(t, int64(1), evalStr(t, "1 if True else 2", nil))
	assert.Equal(t, int64(2), evalStr(t, "1 if False else 2", nil))
}

func TestMembership(t *testing.T) {
	assert.Equal(t, true, evalStr(t, "2 in [1,2,3]", nil))
	assert.Equal(t, false, evalStr(t, "5 in [1,2,3]", nil))
	assert.Equal(t, true, evalStr(t, "5 not in [1,2,3]", nil))
}

func TestListConcatAndIndexSlice(t *testing.T) {
	assert.Equal(t, []any{int64(5), int64(4)}, evalStr(t, "path + [pos]", map[string]any{
		"path": []any{int64(5)}, "pos": int64(4),
	}))
	assert.Equal(t, int64(2), evalStr(t, "xs[1]", map[string]any{"xs": []any{int64(1), int64(2), int64(3)}}))
	assert.Equal(t, []any{int64(2), int64(3)}, evalStr(t, "xs[1:]", map[string]any{"xs": []any{int64(1), int64(2), int64(3)}}))
}

func TestBuiltins(t *testing.T) {
	assert.Equal(t, int64(3), evalStr(t, "len([1,2,3])", nil))
	assert.Equal(t, int64(6), evalStr(t, "sum([1,2,3])", nil))
	assert.Equal(t, int64(3), evalStr(t, "max([1,2,3])", nil))
	assert.Equal(t, int64(1), evalStr(t, "min([1,2,3])", nil))
	assert.Equal(t, int64(3), evalStr(t, "abs(-3)", nil))
}

func TestComprehension(t *testing.T) {
	got := evalStr(t, "[x * 2 for x in [1,2,3] if x > 1]", nil)
	assert.Equal(t, []any{int64(4), int64(6)}, got)
}

func TestStringMethods(t *testing.T) {
	assert.Equal(t, "HELLO", evalStr(t, `s.upper()`, map[string]any{"s": "hello"}))
	assert.Equal(t, true, evalStr(t, `s.startswith("he")`, map[string]any{"s": "hello"}))
}

func TestRandomChoiceIsDeterministicForFixedSeed(t *testing.T) {
	env1 := NewEnv(nil, NewRNG(42))
	v1, err := EvalString("random.choice([-1,1])", env1)
	require.NoError(t, err)

	env2 := NewEnv(nil, NewRNG(42))
	v2, err := EvalString("random.choice([-1,1])", env2)
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
}

func TestUndefinedNameErrors(t *testing.T) {
	env := NewEnv(nil, NewRNG(1))
	_, err := EvalString("nope + 1", env)
	assert.Error(t, err)
}
