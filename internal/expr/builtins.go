package expr

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// builtinFunc is a sandboxed built-in callable: no filesystem, network, or
// reflection access, just pure value-in/value-out transforms.
type builtinFunc func(args []any) (any, error)

var builtinFuncs = map[string]builtinFunc{
	"len":      biLen,
	"int":      biInt,
	"str":      biStr,
	"float":    biFloat,
	"bool":     biBool,
	"min":      biMin,
	"max":      biMax,
	"sum":      biSum,
	"abs":      biAbs,
	"round":    biRound,
	"sorted":   biSorted,
	"list":     biList,
	"dict":     biDict,
	"tuple":    biList,
	"set":      biSet,
	"range":    biRange,
	"enumerate": biEnumerate,
	"zip":      biZip,
	"map":      biMap,
	"filter":   biFilter,
	"any":      biAny,
	"all":      biAll,
}

func biLen(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("len() takes exactly one argument")
	}
	items, err := toSlice(args[0])
	if err != nil {
		return nil, err
	}
	return int64(len(items)), nil
}

func biInt(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("int() takes exactly one argument")
	}
	switch v := args[0].(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("int(): invalid literal %q", v)
		}
		return int64(f), nil
	default:
		f, ok := toNumber(v)
		if !ok {
			return nil, fmt.Errorf("int(): cannot convert %T", v)
		}
		return int64(f), nil
	}
}

func biFloat(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("float() takes exactly one argument")
	}
	switch v := args[0].(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("float(): invalid literal %q", v)
		}
		return f, nil
	default:
		f, ok := toNumber(v)
		if !ok {
			return nil, fmt.Errorf("float(): cannot convert %T", v)
		}
		return f, nil
	}
}

func biStr(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("str() takes exactly one argument")
	}
	return toStr(args[0]), nil
}

func biBool(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("bool() takes exactly one argument")
	}
	return truthy(args[0]), nil
}

func biAbs(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("abs() takes exactly one argument")
	}
	f, ok := toNumber(args[0])
	if !ok {
		return nil, fmt.Errorf("abs(): unsupported type")
	}
	if f < 0 {
		f = -f
	}
	if isIntVal(args[0]) {
		return int64(f), nil
	}
	return f, nil
}

func biRound(args []any) (any, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("round() takes at least one argument")
	}
	f, _ := toNumber(args[0])
	if len(args) == 1 {
		r := int64(f + sign(f)*0.5)
		return r, nil
	}
	digitsF, _ := toNumber(args[1])
	digits := int(digitsF)
	mult := powFloat(10, float64(digits))
	return float64(int64(f*mult+sign(f)*0.5)) / mult, nil
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}

func biMin(args []any) (any, error) { return minMax(args, true) }
func biMax(args []any) (any, error) { return minMax(args, false) }

func minMax(args []any, wantMin bool) (any, error) {
	items := args
	if len(args) == 1 {
		if sl, err := toSlice(args[0]); err == nil {
			items = sl
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("min/max() arg is an empty sequence")
	}
	best := items[0]
	bestF, _ := toNumber(best)
	for _, it := range items[1:] {
		f, _ := toNumber(it)
		if (wantMin && f < bestF) || (!wantMin && f > bestF) {
			best, bestF = it, f
		}
	}
	return best, nil
}

func biSum(args []any) (any, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("sum() takes at least one argument")
	}
	items, err := toSlice(args[0])
	if err != nil {
		return nil, err
	}
	start := 0.0
	if len(args) > 1 {
		start, _ = toNumber(args[1])
	}
	allInt := true
	total := start
	for _, it := range items {
		f, ok := toNumber(it)
		if !ok {
			return nil, fmt.Errorf("sum(): unsupported element type %T", it)
		}
		if !isIntVal(it) {
			allInt = false
		}
		total += f
	}
	if allInt && len(args) <= 1 {
		return int64(total), nil
	}
	return total, nil
}

func biSorted(args []any) (any, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("sorted() takes at least one argument")
	}
	items, err := toSlice(args[0])
	if err != nil {
		return nil, err
	}
	out := append([]any{}, items...)
	sort.SliceStable(out, func(i, j int) bool {
		if si, ok := out[i].(string); ok {
			sj, _ := out[j].(string)
			return si < sj
		}
		fi, _ := toNumber(out[i])
		fj, _ := toNumber(out[j])
		return fi < fj
	})
	return out, nil
}

func biList(args []any) (any, error) {
	if len(args) == 0 {
		return []any{}, nil
	}
	items, err := toSlice(args[0])
	if err != nil {
		return nil, err
	}
	return append([]any{}, items...), nil
}

func biSet(args []any) (any, error) {
	v, err := biList(args)
	if err != nil {
		return nil, err
	}
	return dedupe(v.([]any)), nil
}

func biDict(args []any) (any, error) {
	if len(args) == 0 {
		return map[string]any{}, nil
	}
	return nil, fmt.Errorf("dict(): only the zero-argument form is supported")
}

func biRange(args []any) (any, error) {
	var start, stop, step int64 = 0, 0, 1
	switch len(args) {
	case 1:
		f, _ := toNumber(args[0])
		stop = int64(f)
	case 2:
		f0, _ := toNumber(args[0])
		f1, _ := toNumber(args[1])
		start, stop = int64(f0), int64(f1)
	case 3:
		f0, _ := toNumber(args[0])
		f1, _ := toNumber(args[1])
		f2, _ := toNumber(args[2])
		start, stop, step = int64(f0), int64(f1), int64(f2)
	default:
		return nil, fmt.Errorf("range() takes 1 to 3 arguments")
	}
	if step == 0 {
		return nil, fmt.Errorf("range() step must not be zero")
	}
	var out []any
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, i)
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, i)
		}
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

func biEnumerate(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("enumerate() takes exactly one argument")
	}
	items, err := toSlice(args[0])
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(items))
	for i, it := range items {
		out = append(out, []any{int64(i), it})
	}
	return out, nil
}

func biZip(args []any) (any, error) {
	if len(args) == 0 {
		return []any{}, nil
	}
	lists := make([][]any, len(args))
	minLen := -1
	for i, a := range args {
		items, err := toSlice(a)
		if err != nil {
			return nil, err
		}
		lists[i] = items
		if minLen == -1 || len(items) < minLen {
			minLen = len(items)
		}
	}
	out := make([]any, 0, minLen)
	for i := 0; i < minLen; i++ {
		tuple := make([]any, len(lists))
		for j := range lists {
			tuple[j] = lists[j][i]
		}
		out = append(out, tuple)
	}
	return out, nil
}

func biMap(args []any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("map() takes exactly two arguments")
	}
	fn, ok := args[0].(builtinFunc)
	if !ok {
		return nil, fmt.Errorf("map(): first argument must be callable")
	}
	items, err := toSlice(args[1])
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(items))
	for _, it := range items {
		v, err := fn([]any{it})
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func biFilter(args []any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("filter() takes exactly two arguments")
	}
	fn, ok := args[0].(builtinFunc)
	if !ok {
		return nil, fmt.Errorf("filter(): first argument must be callable")
	}
	items, err := toSlice(args[1])
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(items))
	for _, it := range items {
		v, err := fn([]any{it})
		if err != nil {
			return nil, err
		}
		if truthy(v) {
			out = append(out, it)
		}
	}
	return out, nil
}

func biAny(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("any() takes exactly one argument")
	}
	items, err := toSlice(args[0])
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if truthy(it) {
			return true, nil
		}
	}
	return false, nil
}

func biAll(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("all() takes exactly one argument")
	}
	items, err := toSlice(args[0])
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if !truthy(it) {
			return false, nil
		}
	}
	return true, nil
}

// callMethod dispatches string/list method calls, e.g. s.lower(), s.strip(),
// xs.count(v) (§4.6 "string methods").
func callMethod(recv any, name string, args []any) (any, error) {
	if s, ok := recv.(string); ok {
		return stringMethod(s, name, args)
	}
	if l, ok := recv.([]any); ok {
		return listMethod(l, name, args)
	}
	return nil, fmt.Errorf("expr: no method %q on %T", name, recv)
}

func stringMethod(s string, name string, args []any) (any, error) {
	switch name {
	case "lower":
		return strings.ToLower(s), nil
	case "upper":
		return strings.ToUpper(s), nil
	case "strip":
		return strings.TrimSpace(s), nil
	case "title":
		return strings.Title(strings.ToLower(s)), nil
	case "split":
		sep := " "
		if len(args) > 0 {
			sep = toStr(args[0])
		}
		parts := strings.Fields(s)
		if len(args) > 0 {
			parts = strings.Split(s, sep)
		}
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			out = append(out, p)
		}
		return out, nil
	case "startswith":
		return strings.HasPrefix(s, toStr(arg0(args))), nil
	case "endswith":
		return strings.HasSuffix(s, toStr(arg0(args))), nil
	case "replace":
		if len(args) != 2 {
			return nil, fmt.Errorf("replace() takes exactly two arguments")
		}
		return strings.ReplaceAll(s, toStr(args[0]), toStr(args[1])), nil
	case "join":
		items, err := toSlice(arg0(args))
		if err != nil {
			return nil, err
		}
		parts := make([]string, 0, len(items))
		for _, it := range items {
			parts = append(parts, toStr(it))
		}
		return strings.Join(parts, s), nil
	case "format":
		out := s
		for _, a := range args {
			out = strings.Replace(out, "{}", toStr(a), 1)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expr: no string method %q", name)
}

func listMethod(l []any, name string, args []any) (any, error) {
	switch name {
	case "count":
		n := 0
		for _, it := range l {
			if equalValues(it, arg0(args)) {
				n++
			}
		}
		return int64(n), nil
	case "index":
		for i, it := range l {
			if equalValues(it, arg0(args)) {
				return int64(i), nil
			}
		}
		return nil, fmt.Errorf("expr: value not found in list")
	}
	return nil, fmt.Errorf("expr: no list method %q", name)
}

func arg0(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

// callRandom dispatches the seeded random.* module surface (§4.6).
func callRandom(rng *RNG, name string, args []any) (any, error) {
	switch name {
	case "random":
		return rng.Random(), nil
	case "randint":
		if len(args) != 2 {
			return nil, fmt.Errorf("random.randint() takes exactly two arguments")
		}
		lo, _ := toNumber(args[0])
		hi, _ := toNumber(args[1])
		return int64(rng.RandInt(int(lo), int(hi))), nil
	case "uniform":
		if len(args) != 2 {
			return nil, fmt.Errorf("random.uniform() takes exactly two arguments")
		}
		lo, _ := toNumber(args[0])
		hi, _ := toNumber(args[1])
		return rng.Uniform(lo, hi), nil
	case "choice":
		if len(args) != 1 {
			return nil, fmt.Errorf("random.choice() takes exactly one argument")
		}
		items, err := toSlice(args[0])
		if err != nil {
			return nil, err
		}
		return rng.Choice(items), nil
	case "sample":
		if len(args) != 2 {
			return nil, fmt.Errorf("random.sample() takes exactly two arguments")
		}
		items, err := toSlice(args[0])
		if err != nil {
			return nil, err
		}
		k, _ := toNumber(args[1])
		return rng.Sample(items, int(k)), nil
	case "shuffle":
		if len(args) != 1 {
			return nil, fmt.Errorf("random.shuffle() takes exactly one argument")
		}
		items, err := toSlice(args[0])
		if err != nil {
			return nil, err
		}
		rng.Shuffle(items)
		return items, nil
	case "gauss":
		if len(args) != 2 {
			return nil, fmt.Errorf("random.gauss() takes exactly two arguments")
		}
		mu, _ := toNumber(args[0])
		sigma, _ := toNumber(args[1])
		return rng.Gauss(mu, sigma), nil
	}
	return nil, fmt.Errorf("expr: no random module function %q", name)
}
