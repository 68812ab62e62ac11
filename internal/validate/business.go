package validate

import (
	"fmt"
	"strings"

	"github.com/codeready-toolchain/batchctl/internal/expr"
	"github.com/codeready-toolchain/batchctl/internal/runconfig"
)

// BusinessResult is the outcome of running Phase 2 against one record:
// Errors fail the unit, Warnings are logged and the unit still passes
// (§4.4 "Errors fail the unit; warnings log and pass").
type BusinessResult struct {
	Errors   []SchemaError
	Warnings []SchemaError
}

// Passed reports whether the record survives Phase 2.
func (r BusinessResult) Passed() bool { return len(r.Errors) == 0 }

// CheckBusinessRules runs required/types/enums/ranges/user-rule checks
// against an already schema-valid record (§4.4 Phase 2).
func CheckBusinessRules(record map[string]any, rules runconfig.StepRules) BusinessResult {
	var result BusinessResult

	for _, field := range rules.Required {
		v, ok := record[field]
		if !ok || v == nil {
			result.Errors = append(result.Errors, SchemaError{Path: "/" + field, Message: "required field missing"})
		}
	}

	for field, wantType := range rules.Types {
		v, ok := record[field]
		if !ok || v == nil {
			continue
		}
		if !matchesBusinessType(v, wantType) {
			result.Errors = append(result.Errors, SchemaError{
				Path:    "/" + field,
				Message: fmt.Sprintf("expected type %s, got %s", wantType, valueKind(v)),
			})
		}
	}

	for field, enum := range rules.Enums {
		v, ok := record[field]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		matched := false
		for _, e := range enum {
			if strings.EqualFold(s, e) {
				matched = true
				break
			}
		}
		if !matched {
			result.Errors = append(result.Errors, SchemaError{Path: "/" + field, Message: fmt.Sprintf("%q not in enum %v", s, enum)})
		}
	}

	for field, bounds := range rules.Ranges {
		v, ok := record[field]
		if !ok || v == nil {
			continue
		}
		n, ok := toFloat(v)
		if !ok {
			continue
		}
		if n < bounds[0] || n > bounds[1] {
			result.Errors = append(result.Errors, SchemaError{
				Path:    "/" + field,
				Message: fmt.Sprintf("%v outside range [%v, %v]", n, bounds[0], bounds[1]),
			})
		}
	}

	for _, rule := range rules.Rules {
		if rule.When != "" {
			field := strings.TrimSpace(rule.When)
			if v, ok := record[field]; !ok || v == nil {
				continue // guard not satisfied, rule skipped
			}
		}

		env := expr.NewEnv(record, expr.NewRNG(1))
		ok, err := evalRuleExpr(rule.Rule, env)
		if err != nil {
			result.Errors = append(result.Errors, SchemaError{Path: "", Message: fmt.Sprintf("rule %q failed to evaluate: %v", rule.Name, err)})
			continue
		}
		if ok {
			continue
		}

		msg := interpolate(rule.Error, record)
		sErr := SchemaError{Path: "", Message: msg}
		if rule.Level == runconfig.LevelWarning {
			result.Warnings = append(result.Warnings, sErr)
		} else {
			result.Errors = append(result.Errors, sErr)
		}
	}

	return result
}

func evalRuleExpr(src string, env *expr.Env) (bool, error) {
	v, err := expr.EvalString(src, env)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("rule expression did not evaluate to a boolean: %v", v)
	}
	return b, nil
}

// interpolate substitutes {field} placeholders in a rule's error template
// with the record's actual field values (§4.4 "error message templates
// supporting {field} interpolation").
func interpolate(template string, record map[string]any) string {
	out := template
	for k, v := range record {
		out = strings.ReplaceAll(out, "{"+k+"}", fmt.Sprint(v))
	}
	return out
}

func matchesBusinessType(v any, want string) bool {
	switch want {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		_, ok := toFloat(v)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	default:
		return true
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
