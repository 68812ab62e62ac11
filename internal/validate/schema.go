package validate

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// SchemaError is a single Phase 1 rejection, carrying the JSON pointer of
// the offending field (§4.4 "Output contract").
type SchemaError struct {
	Path    string
	Message string
}

func (e SchemaError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Schema is a hand-rolled Draft 2020-12 subset validator: object/array/
// scalar type checks, required, enum, and one level of $ref resolution
// against $defs. No third-party JSON-Schema implementation appears
// anywhere in the retrieval pack, so this stays intentionally narrow:
// only the keywords the pipeline's own schemas exercise.
type Schema struct {
	root map[string]any
}

// LoadSchema reads a JSON Schema document from disk. Trailing commas
// (a common hand-edited-JSON mistake) are stripped before parsing, per
// §4.4's coercion list.
func LoadSchema(path string) (*Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	clean := stripTrailingCommas(raw)

	var doc map[string]any
	if err := json.Unmarshal(clean, &doc); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", path, err)
	}
	return &Schema{root: doc}, nil
}

// Document returns the raw schema map, for callers (e.g. the provider
// adapter's FormatBatchRequest) that need to forward the schema itself
// rather than validate against it.
func (s *Schema) Document() map[string]any {
	return s.root
}

// stripTrailingCommas removes a comma that appears immediately before a
// closing ']' or '}', ignoring commas inside string literals.
func stripTrailingCommas(raw []byte) []byte {
	out := make([]byte, 0, len(raw))
	inString := false
	escaped := false

	for i := 0; i < len(raw); i++ {
		b := raw[i]
		if inString {
			out = append(out, b)
			if escaped {
				escaped = false
			} else if b == '\\' {
				escaped = true
			} else if b == '"' {
				inString = false
			}
			continue
		}
		if b == '"' {
			inString = true
			out = append(out, b)
			continue
		}
		if b == ',' {
			j := i + 1
			for j < len(raw) && isJSONSpace(raw[j]) {
				j++
			}
			if j < len(raw) && (raw[j] == ']' || raw[j] == '}') {
				continue // drop the comma
			}
		}
		out = append(out, b)
	}
	return out
}

func isJSONSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// UnwrapDoubleEncoded undoes one level of an LLM response that wrapped its
// real payload inside a "response" string field (§4.4 "one-level
// unwrapping of double-encoded responses"). Only one level is ever peeled;
// it never recurses into the unwrapped value.
func UnwrapDoubleEncoded(record map[string]any) map[string]any {
	raw, ok := record["response"]
	if !ok {
		return record
	}
	s, ok := raw.(string)
	if !ok {
		return record
	}

	var inner map[string]any
	if err := json.Unmarshal(stripTrailingCommas([]byte(s)), &inner); err != nil {
		return record
	}

	out := make(map[string]any, len(record)+len(inner))
	for k, v := range record {
		if k == "response" {
			continue
		}
		out[k] = v
	}
	for k, v := range inner {
		out[k] = v
	}
	return out
}

// Check coerces record against the schema, then validates the coerced
// result, returning the coerced record, a trace of every coercion applied
// (tagged [COERCE] lines in the run log), and any schema errors.
func (s *Schema) Check(record map[string]any) (map[string]any, []string, []SchemaError) {
	record = UnwrapDoubleEncoded(record)

	var trace []string
	coerced, err := coerceValue(record, s.root, s.root, "", &trace)
	if err != nil {
		return record, trace, []SchemaError{{Path: "", Message: err.Error()}}
	}

	var errs []SchemaError
	validateValue(coerced, s.root, s.root, "", &errs)
	return coerced.(map[string]any), trace, errs
}

func resolveRef(schema map[string]any, root map[string]any) map[string]any {
	ref, ok := schema["$ref"].(string)
	if !ok {
		return schema
	}
	ref = strings.TrimPrefix(ref, "#/")
	cur := any(root)
	for _, seg := range strings.Split(ref, "/") {
		m, ok := cur.(map[string]any)
		if !ok {
			return schema
		}
		cur, ok = m[seg]
		if !ok {
			return schema
		}
	}
	if m, ok := cur.(map[string]any); ok {
		return m
	}
	return schema
}

func declaredTypes(schema map[string]any) []string {
	switch t := schema["type"].(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func valueKind(v any) string {
	switch n := v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case float64:
		if n == float64(int64(n)) {
			return "integer"
		}
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "unknown"
	}
}

func matchesType(v any, want string) bool {
	kind := valueKind(v)
	if kind == want {
		return true
	}
	if want == "number" && kind == "integer" {
		return true
	}
	return false
}

// coerceValue applies §4.4's automatic type-coercion pipeline for a single
// field, recursing into object properties and array items.
func coerceValue(value any, schema map[string]any, root map[string]any, path string, trace *[]string) (any, error) {
	schema = resolveRef(schema, root)
	want := declaredTypes(schema)

	if m, ok := value.(map[string]any); ok {
		props, _ := schema["properties"].(map[string]any)
		out := make(map[string]any, len(m))
		for k, v := range m {
			sub, ok := props[k].(map[string]any)
			if !ok {
				out[k] = v
				continue
			}
			cv, err := coerceValue(v, sub, root, path+"/"+k, trace)
			if err != nil {
				return nil, err
			}
			out[k] = cv
		}
		return out, nil
	}

	if arr, ok := value.([]any); ok {
		itemSchema, _ := schema["items"].(map[string]any)
		out := make([]any, len(arr))
		for i, v := range arr {
			if itemSchema == nil {
				out[i] = v
				continue
			}
			cv, err := coerceValue(v, itemSchema, root, fmt.Sprintf("%s/%d", path, i), trace)
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	}

	if len(want) == 0 {
		return applyEnum(value, schema, path, trace), nil
	}

	for _, t := range want {
		if matchesType(value, t) {
			return applyEnum(value, schema, path, trace), nil
		}
	}

	coerced, ok := coerceScalar(value, want, path, trace)
	if !ok {
		return value, nil // leave as-is; Phase 1 validation reports the mismatch
	}
	return applyEnum(coerced, schema, path, trace), nil
}

func coerceScalar(value any, want []string, path string, trace *[]string) (any, bool) {
	for _, t := range want {
		switch t {
		case "integer":
			if f, ok := value.(float64); ok && f == float64(int64(f)) {
				return f, true
			}
			if s, ok := value.(string); ok {
				if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
					*trace = append(*trace, fmt.Sprintf("%s: string->integer", path))
					return float64(n), true
				}
				if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && f == float64(int64(f)) {
					*trace = append(*trace, fmt.Sprintf("%s: string->integer", path))
					return f, true
				}
			}
			if f, ok := value.(float64); ok {
				*trace = append(*trace, fmt.Sprintf("%s: float->integer", path))
				return float64(int64(f)), true
			}
		case "number":
			if s, ok := value.(string); ok {
				if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
					*trace = append(*trace, fmt.Sprintf("%s: string->number", path))
					return f, true
				}
			}
		case "boolean":
			if s, ok := value.(string); ok {
				switch strings.ToLower(strings.TrimSpace(s)) {
				case "true", "yes", "1":
					*trace = append(*trace, fmt.Sprintf("%s: string->boolean", path))
					return true, true
				case "false", "no", "0":
					*trace = append(*trace, fmt.Sprintf("%s: string->boolean", path))
					return false, true
				}
			}
		case "string":
			switch n := value.(type) {
			case float64:
				*trace = append(*trace, fmt.Sprintf("%s: number->string", path))
				if n == float64(int64(n)) {
					return strconv.FormatInt(int64(n), 10), true
				}
				return strconv.FormatFloat(n, 'g', -1, 64), true
			case bool:
				*trace = append(*trace, fmt.Sprintf("%s: boolean->string", path))
				return strconv.FormatBool(n), true
			}
		case "array":
			if s, ok := value.(string); ok {
				var arr []any
				if err := json.Unmarshal(stripTrailingCommas([]byte(s)), &arr); err == nil {
					*trace = append(*trace, fmt.Sprintf("%s: string->array (parsed)", path))
					return arr, true
				}
				*trace = append(*trace, fmt.Sprintf("%s: string->array (wrapped)", path))
				return []any{s}, true
			}
		}
	}
	return value, false
}

// applyEnum normalises a string value against a schema's enum list:
// case-insensitive match, with a known "prefix:" or "prefix/" stripped,
// and the value split on " | " to test each alternative in turn (§4.4
// "enum normalisation").
func applyEnum(value any, schema map[string]any, path string, trace *[]string) any {
	enumRaw, ok := schema["enum"].([]any)
	if !ok {
		return value
	}
	s, ok := value.(string)
	if !ok {
		return value
	}

	enum := make([]string, 0, len(enumRaw))
	for _, e := range enumRaw {
		if es, ok := e.(string); ok {
			enum = append(enum, es)
		}
	}

	candidates := []string{s}
	candidates = append(candidates, strings.Split(s, " | ")...)

	for _, cand := range candidates {
		cand = strings.TrimSpace(cand)
		if stripped := stripDomainPrefix(cand); stripped != cand {
			candidates = append(candidates, stripped)
		}
	}

	for _, cand := range candidates {
		cand = strings.TrimSpace(cand)
		for _, e := range enum {
			if strings.EqualFold(cand, e) {
				if cand != e {
					*trace = append(*trace, fmt.Sprintf("%s: enum normalised %q->%q", path, s, e))
				}
				return e
			}
		}
	}
	return value
}

func stripDomainPrefix(s string) string {
	if idx := strings.LastIndexAny(s, ":/"); idx != -1 && idx+1 < len(s) {
		return strings.TrimSpace(s[idx+1:])
	}
	return s
}

// validateValue performs strict validation on an already-coerced value.
func validateValue(value any, schema map[string]any, root map[string]any, path string, errs *[]SchemaError) {
	schema = resolveRef(schema, root)
	want := declaredTypes(schema)

	if len(want) > 0 {
		ok := false
		for _, t := range want {
			if matchesType(value, t) {
				ok = true
				break
			}
		}
		if !ok {
			*errs = append(*errs, SchemaError{Path: ptr(path), Message: fmt.Sprintf("expected type %v, got %s", want, valueKind(value))})
			return
		}
	}

	if enumRaw, ok := schema["enum"].([]any); ok {
		if s, ok := value.(string); ok {
			matched := false
			for _, e := range enumRaw {
				if es, ok := e.(string); ok && strings.EqualFold(s, es) {
					matched = true
					break
				}
			}
			if !matched {
				*errs = append(*errs, SchemaError{Path: ptr(path), Message: fmt.Sprintf("%q not in enum", s)})
			}
		}
	}

	switch v := value.(type) {
	case map[string]any:
		props, _ := schema["properties"].(map[string]any)
		for _, req := range requiredList(schema) {
			if _, ok := v[req]; !ok {
				*errs = append(*errs, SchemaError{Path: ptr(path + "/" + req), Message: "required property missing"})
			}
		}
		for k, sub := range props {
			fv, ok := v[k]
			if !ok {
				continue
			}
			subSchema, _ := sub.(map[string]any)
			validateValue(fv, subSchema, root, path+"/"+k, errs)
		}
	case []any:
		itemSchema, _ := schema["items"].(map[string]any)
		if itemSchema == nil {
			return
		}
		for i, ev := range v {
			validateValue(ev, itemSchema, root, fmt.Sprintf("%s/%d", path, i), errs)
		}
	}
}

func requiredList(schema map[string]any) []string {
	raw, ok := schema["required"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func ptr(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
