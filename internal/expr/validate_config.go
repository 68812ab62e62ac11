package expr

import (
	"fmt"

	"github.com/codeready-toolchain/batchctl/internal/runconfig"
)

// ConfigIssue is one problem surfaced by ValidateConfig: a syntax error or
// an undefined reference in a declared expression.
type ConfigIssue struct {
	Step       string
	Expression string
	Source     string
	Err        error
}

func (i ConfigIssue) String() string {
	return fmt.Sprintf("%s.%s: %v", i.Step, i.Expression, i.Err)
}

// ValidateConfig offline-checks every expression/init/loop_until block in
// cfg against a mock context built from placeholder values for declared
// unit fields (§4.6 "Configuration validation"). When an expression fails,
// a safe fallback (0) is injected into the mock symbol table under its own
// name so a later expression that references it doesn't also report a
// spurious "undefined name" — failures must not cascade.
func ValidateConfig(cfg *runconfig.Config, declaredFields []string) []ConfigIssue {
	var issues []ConfigIssue

	mock := make(map[string]any, len(declaredFields))
	for _, f := range declaredFields {
		mock[f] = int64(0)
	}

	for _, step := range cfg.Steps.ChunkSteps() {
		if !step.IsExpression() {
			continue
		}

		rng := NewRNG(1)
		env := NewEnv(mock, rng)

		checkBlock(step.Name, step.Init, env, &issues)
		checkBlock(step.Name, step.Expressions, env, &issues)

		if step.LoopUntil != "" {
			if _, err := Parse(step.LoopUntil); err != nil {
				issues = append(issues, ConfigIssue{Step: step.Name, Expression: "loop_until", Source: step.LoopUntil, Err: err})
			}
		}

		// Mock context additions from this step carry forward so a later
		// step referencing its output is not also flagged as undefined.
		for k, v := range env.Snapshot() {
			mock[k] = v
		}
	}

	return issues
}

func checkBlock(stepName string, block runconfig.ExprBlock, env *Env, issues *[]ConfigIssue) {
	for _, entry := range block {
		v, err := EvalString(entry.Expr, env)
		if err != nil {
			*issues = append(*issues, ConfigIssue{Step: stepName, Expression: entry.Name, Source: entry.Expr, Err: err})
			// Safe fallback: inject a placeholder so downstream
			// expressions referencing this name don't also fail with
			// "undefined name", which would mask the real error behind a
			// cascade of unrelated ones.
			env.Set(entry.Name, int64(0))
			continue
		}
		env.Set(entry.Name, v)
	}
}
