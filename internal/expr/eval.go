// Package expr implements the sandboxed expression evaluator of §4.6: a
// Python-expression-subset parser plus an evaluator bound to a seeded RNG,
// used by expression-scope pipeline stages. No third-party expression or
// scripting library exists anywhere in the retrieval pack (grepped across
// every go.mod/go.sum), so this component is necessarily hand-rolled on
// the standard library — the one part of the core where that is true.
package expr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/codeready-toolchain/batchctl/internal/runconfig"
)

// Env is the symbol table an expression evaluates against: unit fields,
// values computed earlier in the same block, and the stage's shared RNG.
type Env struct {
	vars map[string]any
	rng  *RNG
}

// NewEnv creates an environment seeded from initial bindings (typically
// the merged unit/stage-input fields) bound to rng.
func NewEnv(initial map[string]any, rng *RNG) *Env {
	e := &Env{vars: make(map[string]any, len(initial)+1), rng: rng}
	for k, v := range initial {
		e.vars[k] = v
	}
	return e
}

// Set assigns a value into the environment, making it visible to
// subsequently evaluated expressions in the same block (§4.6 "Evaluation
// order").
func (e *Env) Set(name string, v any) { e.vars[name] = v }

// Get returns a bound value and whether it exists.
func (e *Env) Get(name string) (any, bool) {
	v, ok := e.vars[name]
	return v, ok
}

// Snapshot returns a shallow copy of all currently bound values.
func (e *Env) Snapshot() map[string]any {
	out := make(map[string]any, len(e.vars))
	for k, v := range e.vars {
		out[k] = v
	}
	return out
}

// Eval evaluates a pre-parsed expression tree against env.
func Eval(node Node, env *Env) (any, error) {
	switch n := node.(type) {
	case *NumberLit:
		if n.IsInt {
			return int64(n.Value), nil
		}
		return n.Value, nil
	case *StringLit:
		return n.Value, nil
	case *BoolLit:
		return n.Value, nil
	case *NoneLit:
		return nil, nil

	case *Ident:
		if v, ok := env.Get(n.Name); ok {
			return v, nil
		}
		if fn, ok := builtinFuncs[n.Name]; ok {
			return fn, nil
		}
		if n.Name == "random" {
			return randomModule{env.rng}, nil
		}
		return nil, fmt.Errorf("expr: undefined name %q", n.Name)

	case *ListLit:
		out := make([]any, 0, len(n.Elems))
		for _, el := range n.Elems {
			v, err := Eval(el, env)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case *TupleLit:
		out := make([]any, 0, len(n.Elems))
		for _, el := range n.Elems {
			v, err := Eval(el, env)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case *SetLit:
		out := make([]any, 0, len(n.Elems))
		for _, el := range n.Elems {
			v, err := Eval(el, env)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return dedupe(out), nil

	case *DictLit:
		out := make(map[string]any, len(n.Keys))
		for i, k := range n.Keys {
			kv, err := Eval(k, env)
			if err != nil {
				return nil, err
			}
			vv, err := Eval(n.Values[i], env)
			if err != nil {
				return nil, err
			}
			out[toStr(kv)] = vv
		}
		return out, nil

	case *Unary:
		v, err := Eval(n.Operand, env)
		if err != nil {
			return nil, err
		}
		f, _ := toNumber(v)
		if n.Op == "-" {
			if isIntVal(v) {
				return -int64(f), nil
			}
			return -f, nil
		}
		return v, nil

	case *Not:
		v, err := Eval(n.Operand, env)
		if err != nil {
			return nil, err
		}
		return !truthy(v), nil

	case *BoolOp:
		var last any = true
		for i, operand := range n.Operands {
			v, err := Eval(operand, env)
			if err != nil {
				return nil, err
			}
			last = v
			if n.Op == "and" && !truthy(v) {
				return v, nil
			}
			if n.Op == "or" && truthy(v) {
				return v, nil
			}
			_ = i
		}
		return last, nil

	case *Compare:
		left, err := Eval(n.First, env)
		if err != nil {
			return nil, err
		}
		for i, op := range n.Ops {
			right, err := Eval(n.Rest[i], env)
			if err != nil {
				return nil, err
			}
			ok, err := compareOp(op, left, right)
			if err != nil {
				return nil, err
			}
			if !ok {
				return false, nil
			}
			left = right
		}
		return true, nil

	case *Binary:
		l, err := Eval(n.Left, env)
		if err != nil {
			return nil, err
		}
		r, err := Eval(n.Right, env)
		if err != nil {
			return nil, err
		}
		return binaryOp(n.Op, l, r)

	case *IfElse:
		cond, err := Eval(n.Cond, env)
		if err != nil {
			return nil, err
		}
		if truthy(cond) {
			return Eval(n.Then, env)
		}
		return Eval(n.Else, env)

	case *Attr:
		target, err := Eval(n.Target, env)
		if err != nil {
			return nil, err
		}
		return evalAttr(target, n.Name)

	case *Call:
		return evalCall(n, env)

	case *Index:
		target, err := Eval(n.Target, env)
		if err != nil {
			return nil, err
		}
		idx, err := Eval(n.Index, env)
		if err != nil {
			return nil, err
		}
		return indexInto(target, idx)

	case *Slice:
		target, err := Eval(n.Target, env)
		if err != nil {
			return nil, err
		}
		return evalSlice(n, target, env)

	case *Comprehension:
		return evalComprehension(n, env)
	}

	return nil, fmt.Errorf("expr: unhandled node type %T", node)
}

func evalCall(n *Call, env *Env) (any, error) {
	args := make([]any, 0, len(n.Args))
	for _, a := range n.Args {
		v, err := Eval(a, env)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	switch target := n.Target.(type) {
	case *Attr:
		recv, err := Eval(target.Target, env)
		if err != nil {
			return nil, err
		}
		if mod, ok := recv.(randomModule); ok {
			return callRandom(mod.rng, target.Name, args)
		}
		return callMethod(recv, target.Name, args)
	default:
		fn, err := Eval(n.Target, env)
		if err != nil {
			return nil, err
		}
		bf, ok := fn.(builtinFunc)
		if !ok {
			return nil, fmt.Errorf("expr: value is not callable")
		}
		return bf(args)
	}
}

// randomModule is the sentinel value bound to the identifier "random",
// recognised specially by evalCall/evalAttr (§4.6 "a seeded RNG module").
type randomModule struct{ rng *RNG }

func evalAttr(target any, name string) (any, error) {
	if _, ok := target.(randomModule); ok {
		return nil, fmt.Errorf("expr: random.%s must be called", name)
	}
	if m, ok := target.(map[string]any); ok {
		return m[name], nil
	}
	return nil, fmt.Errorf("expr: cannot access attribute %q", name)
}

func evalComprehension(n *Comprehension, env *Env) (any, error) {
	iter, err := Eval(n.Iter, env)
	if err != nil {
		return nil, err
	}
	items, err := toSlice(iter)
	if err != nil {
		return nil, err
	}

	out := make([]any, 0, len(items))
	for _, item := range items {
		env.Set(n.Var, item)
		if n.Cond != nil {
			cond, err := Eval(n.Cond, env)
			if err != nil {
				return nil, err
			}
			if !truthy(cond) {
				continue
			}
		}
		v, err := Eval(n.Result, env)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func dedupe(items []any) []any {
	seen := make(map[string]bool, len(items))
	out := make([]any, 0, len(items))
	for _, it := range items {
		k := fmt.Sprintf("%v", it)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, it)
	}
	return out
}

// EvalString parses and evaluates src in one step, the common case for a
// single pipeline.yaml expression entry.
func EvalString(src string, env *Env) (any, error) {
	node, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return Eval(node, env)
}

// EvalBlock evaluates an ordered set of expressions, injecting each result
// into env before the next evaluates (§4.6 "Evaluation order").
func EvalBlock(block runconfig.ExprBlock, env *Env) error {
	for _, entry := range block {
		v, err := EvalString(entry.Expr, env)
		if err != nil {
			return fmt.Errorf("expr: evaluating %q: %w", entry.Name, err)
		}
		env.Set(entry.Name, v)
	}
	return nil
}

func toStr(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

func toSlice(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case string:
		out := make([]any, 0, len(t))
		for _, r := range t {
			out = append(out, string(r))
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, 0, len(keys))
		for _, k := range keys {
			out = append(out, k)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expr: value of type %T is not iterable", v)
	}
}

func indexInto(target, idx any) (any, error) {
	switch t := target.(type) {
	case []any:
		i, _ := toNumber(idx)
		ii := int(i)
		if ii < 0 {
			ii += len(t)
		}
		if ii < 0 || ii >= len(t) {
			return nil, fmt.Errorf("expr: list index out of range")
		}
		return t[ii], nil
	case string:
		runes := []rune(t)
		i, _ := toNumber(idx)
		ii := int(i)
		if ii < 0 {
			ii += len(runes)
		}
		if ii < 0 || ii >= len(runes) {
			return nil, fmt.Errorf("expr: string index out of range")
		}
		return string(runes[ii]), nil
	case map[string]any:
		return t[toStr(idx)], nil
	default:
		return nil, fmt.Errorf("expr: cannot index into %T", target)
	}
}

func evalSlice(n *Slice, target any, env *Env) (any, error) {
	resolve := func(node Node, def int, length int) (int, error) {
		if node == nil {
			return def, nil
		}
		v, err := Eval(node, env)
		if err != nil {
			return 0, err
		}
		f, _ := toNumber(v)
		i := int(f)
		if i < 0 {
			i += length
		}
		if i < 0 {
			i = 0
		}
		if i > length {
			i = length
		}
		return i, nil
	}

	switch t := target.(type) {
	case []any:
		lo, err := resolve(n.Low, 0, len(t))
		if err != nil {
			return nil, err
		}
		hi, err := resolve(n.High, len(t), len(t))
		if err != nil {
			return nil, err
		}
		if lo > hi {
			return []any{}, nil
		}
		return append([]any{}, t[lo:hi]...), nil
	case string:
		runes := []rune(t)
		lo, err := resolve(n.Low, 0, len(runes))
		if err != nil {
			return nil, err
		}
		hi, err := resolve(n.High, len(runes), len(runes))
		if err != nil {
			return nil, err
		}
		if lo > hi {
			return "", nil
		}
		return string(runes[lo:hi]), nil
	default:
		return nil, fmt.Errorf("expr: cannot slice %T", target)
	}
}

func compareOp(op string, l, r any) (bool, error) {
	switch op {
	case "in":
		items, err := toSlice(r)
		if err != nil {
			if m, ok := r.(map[string]any); ok {
				_, found := m[toStr(l)]
				return found, nil
			}
			return false, err
		}
		for _, it := range items {
			if equalValues(it, l) {
				return true, nil
			}
		}
		return false, nil
	case "not in":
		ok, err := compareOp("in", l, r)
		return !ok, err
	case "==":
		return equalValues(l, r), nil
	case "!=":
		return !equalValues(l, r), nil
	}

	if ls, ok := l.(string); ok {
		rs, _ := r.(string)
		switch op {
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		case ">":
			return ls > rs, nil
		case ">=":
			return ls >= rs, nil
		}
	}

	lf, _ := toNumber(l)
	rf, _ := toNumber(r)
	switch op {
	case "<":
		return lf < rf, nil
	case "<=":
		return lf <= rf, nil
	case ">":
		return lf > rf, nil
	case ">=":
		return lf >= rf, nil
	}
	return false, fmt.Errorf("expr: unsupported comparison operator %q", op)
}

func equalValues(l, r any) bool {
	if ls, ok := l.(string); ok {
		rs, ok2 := r.(string)
		return ok2 && ls == rs
	}
	if lb, ok := l.(bool); ok {
		rb, ok2 := r.(bool)
		return ok2 && lb == rb
	}
	lf, lok := toNumber(l)
	rf, rok := toNumber(r)
	if lok && rok {
		return lf == rf
	}
	return fmt.Sprintf("%v", l) == fmt.Sprintf("%v", r)
}

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case float64:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func isIntVal(v any) bool {
	switch v.(type) {
	case int64, int:
		return true
	}
	return false
}

func binaryOp(op string, l, r any) (any, error) {
	if op == "+" {
		if ls, ok := l.(string); ok {
			return ls + toStr(r), nil
		}
		if la, ok := l.([]any); ok {
			ra, ok2 := r.([]any)
			if !ok2 {
				return nil, fmt.Errorf("expr: cannot concatenate list with %T", r)
			}
			out := make([]any, 0, len(la)+len(ra))
			out = append(out, la...)
			out = append(out, ra...)
			return out, nil
		}
	}

	lf, lok := toNumber(l)
	rf, rok := toNumber(r)
	if !lok || !rok {
		return nil, fmt.Errorf("expr: unsupported operand types for %s: %T, %T", op, l, r)
	}
	bothInt := isIntVal(l) && isIntVal(r)

	var result float64
	switch op {
	case "+":
		result = lf + rf
	case "-":
		result = lf - rf
	case "*":
		result = lf * rf
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("expr: division by zero")
		}
		return lf / rf, nil // true division always yields a float
	case "//":
		if rf == 0 {
			return nil, fmt.Errorf("expr: division by zero")
		}
		result = float64(int64(lf / rf))
		if (lf < 0) != (rf < 0) && lf != result*rf {
			result--
		}
	case "%":
		if rf == 0 {
			return nil, fmt.Errorf("expr: modulo by zero")
		}
		result = lf - rf*floorDiv(lf, rf)
	case "**":
		result = powFloat(lf, rf)
	default:
		return nil, fmt.Errorf("expr: unsupported operator %q", op)
	}

	if bothInt && op != "**" {
		return int64(result), nil
	}
	if bothInt && op == "**" && rf >= 0 {
		return int64(result), nil
	}
	return result, nil
}

func floorDiv(a, b float64) float64 {
	q := a / b
	if q < 0 {
		return float64(int64(q)) - 1
	}
	return float64(int64(q))
}

func powFloat(base, exp float64) float64 {
	result := 1.0
	neg := exp < 0
	if neg {
		exp = -exp
	}
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	if neg {
		return 1 / result
	}
	return result
}

var _ = strings.TrimSpace
