package expr

import (
	"fmt"

	"github.com/codeready-toolchain/batchctl/internal/runconfig"
	"github.com/codeready-toolchain/batchctl/internal/seed"
)

// SeedForUnit resolves the seed for a stage invocation on a unit: the
// unit's explicit _repetition_seed takes precedence over the derived
// hash of unit_id + stage_name (§4.6 "Seeding").
func SeedForUnit(unitID, stageName string, repetitionSeed *uint32) uint32 {
	if repetitionSeed != nil {
		return *repetitionSeed
	}
	return seed.ForUnitStage(unitID, stageName)
}

// StageResult is the outcome of running an expression-scope stage on one
// unit: the accumulated fields (including any _metadata additions) ready
// to merge into the unit's running record.
type StageResult struct {
	Fields     map[string]any
	Iterations int
	TimedOut   bool
}

// RunStage evaluates a single stage invocation for one unit: a shared RNG
// is created once (§4.6 "A single RNG instance is created per stage
// invocation"), the init block runs once, then either the expressions
// block runs once (no loop_until) or the loop_until driver runs it
// repeatedly.
func RunStage(step runconfig.StepConfig, unitID string, repetitionSeed *uint32, input map[string]any) (StageResult, error) {
	rng := NewRNG(SeedForUnit(unitID, step.Name, repetitionSeed))
	env := NewEnv(input, rng)

	if err := EvalBlock(step.Init, env); err != nil {
		return StageResult{}, fmt.Errorf("expr: stage %s init: %w", step.Name, err)
	}

	if !step.HasLoop() {
		if err := EvalBlock(step.Expressions, env); err != nil {
			return StageResult{}, fmt.Errorf("expr: stage %s expressions: %w", step.Name, err)
		}
		return StageResult{Fields: env.Snapshot()}, nil
	}

	return runLoopUntil(step, env)
}

// runLoopUntil implements §4.6 "loop_until stages": evaluate expressions,
// check the exit condition, repeat until true or max_iterations is
// reached. Hitting the iteration cap is NOT a failure — the unit is still
// emitted, tagged with _metadata.timeout = true.
func runLoopUntil(step runconfig.StepConfig, env *Env) (StageResult, error) {
	maxIter := step.EffectiveMaxIterations()
	cond, err := Parse(step.LoopUntil)
	if err != nil {
		return StageResult{}, fmt.Errorf("expr: stage %s loop_until: %w", step.Name, err)
	}

	for i := 1; i <= maxIter; i++ {
		if err := EvalBlock(step.Expressions, env); err != nil {
			return StageResult{}, fmt.Errorf("expr: stage %s expressions (iteration %d): %w", step.Name, i, err)
		}

		done, err := Eval(cond, env)
		if err != nil {
			return StageResult{}, fmt.Errorf("expr: stage %s loop_until (iteration %d): %w", step.Name, i, err)
		}
		if truthy(done) {
			fields := env.Snapshot()
			fields["_metadata"] = map[string]any{"iterations": int64(i)}
			return StageResult{Fields: fields, Iterations: i}, nil
		}
	}

	fields := env.Snapshot()
	fields["_metadata"] = map[string]any{"iterations": int64(maxIter), "timeout": true}
	return StageResult{Fields: fields, Iterations: maxIter, TimedOut: true}, nil
}
