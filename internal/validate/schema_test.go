package validate

import (
	"encoding/json"
	"testing"
)

func boolSchema(typ string) map[string]any {
	return map[string]any{"type": typ}
}

func TestCoerceStringToInteger(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"count": boolSchema("integer"),
		},
	}
	s := &Schema{root: schema}
	out, trace, errs := s.Check(map[string]any{"count": "42"})
	if len(errs) != 0 {
		t.Fatalf("unexpected errs: %v", errs)
	}
	if out["count"].(float64) != 42 {
		t.Fatalf("got %v", out["count"])
	}
	if len(trace) == 0 {
		t.Fatalf("expected a coercion trace entry")
	}
}

func TestCoerceFloatToIntegerWhenWhole(t *testing.T) {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"n": boolSchema("integer")},
	}
	s := &Schema{root: schema}
	out, _, errs := s.Check(map[string]any{"n": 3.0})
	if len(errs) != 0 {
		t.Fatalf("unexpected errs: %v", errs)
	}
	if out["n"].(float64) != 3 {
		t.Fatalf("got %v", out["n"])
	}
}

func TestRequiredFieldMissingReportsError(t *testing.T) {
	schema := map[string]any{
		"type":       "object",
		"required":   []any{"name"},
		"properties": map[string]any{"name": boolSchema("string")},
	}
	s := &Schema{root: schema}
	_, _, errs := s.Check(map[string]any{})
	if len(errs) != 1 {
		t.Fatalf("expected one error, got %v", errs)
	}
}

func TestEnumNormalisationCaseInsensitive(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"status": map[string]any{
				"type": "string",
				"enum": []any{"APPROVED", "REJECTED"},
			},
		},
	}
	s := &Schema{root: schema}
	out, _, errs := s.Check(map[string]any{"status": "approved"})
	if len(errs) != 0 {
		t.Fatalf("unexpected errs: %v", errs)
	}
	if out["status"] != "APPROVED" {
		t.Fatalf("got %v", out["status"])
	}
}

func TestEnumNormalisationStripsPrefix(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"status": map[string]any{
				"type": "string",
				"enum": []any{"APPROVED", "REJECTED"},
			},
		},
	}
	s := &Schema{root: schema}
	out, _, errs := s.Check(map[string]any{"status": "decision: approved"})
	if len(errs) != 0 {
		t.Fatalf("unexpected errs: %v", errs)
	}
	if out["status"] != "APPROVED" {
		t.Fatalf("got %v", out["status"])
	}
}

func TestStringToArrayWithWrappingFallback(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tags": map[string]any{
				"type":  "array",
				"items": boolSchema("string"),
			},
		},
	}
	s := &Schema{root: schema}
	out, _, errs := s.Check(map[string]any{"tags": "solo-tag"})
	if len(errs) != 0 {
		t.Fatalf("unexpected errs: %v", errs)
	}
	arr, ok := out["tags"].([]any)
	if !ok || len(arr) != 1 || arr[0] != "solo-tag" {
		t.Fatalf("got %v", out["tags"])
	}
}

func TestStripTrailingCommas(t *testing.T) {
	raw := []byte(`{"a": 1, "b": [1, 2, ], }`)
	clean := stripTrailingCommas(raw)
	var v map[string]any
	if err := json.Unmarshal(clean, &v); err != nil {
		t.Fatalf("expected clean JSON to parse, got %v: %s", err, clean)
	}
}

func TestUnwrapDoubleEncodedResponse(t *testing.T) {
	record := map[string]any{
		"unit_id":  "u1",
		"response": `{"status": "ok"}`,
	}
	out := UnwrapDoubleEncoded(record)
	if out["status"] != "ok" {
		t.Fatalf("got %v", out)
	}
	if _, ok := out["response"]; ok {
		t.Fatalf("response key should be removed after unwrap")
	}
}
