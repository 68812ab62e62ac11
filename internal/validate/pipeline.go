package validate

import (
	"context"
	"fmt"
	"time"

	"github.com/codeready-toolchain/batchctl/internal/runconfig"
)

// Outcome is the final verdict for one unit after both validation phases.
type Outcome struct {
	UnitID   string
	Record   map[string]any
	Passed   bool
	Failure  *FailureRecord
	Warnings []SchemaError
	Trace    []string
}

// ErrBudgetExceeded is returned when a phase's wall-clock budget runs out
// before every record in the batch has been checked.
var ErrBudgetExceeded = fmt.Errorf("validation phase exceeded its wall-clock budget")

// RunPipeline runs Phase 1 (schema) then Phase 2 (business rules) over a
// batch of pre-merged {**stage_input, **parsed_response} records. The two
// phases run strictly sequentially, each draining a bounded channel sized
// to the batch — NOT piped concurrently, which deadlocks once a batch
// exceeds the channel's buffer (§4.4 "Execution"). The total wall-clock
// budget comes from subprocess_timeout_seconds; whatever Phase 1 doesn't
// spend carries forward into Phase 2's budget.
func RunPipeline(ctx context.Context, unitIDs []string, records []map[string]any, stage string, schema *Schema, rules runconfig.StepRules, totalBudget time.Duration) ([]Outcome, error) {
	if len(unitIDs) != len(records) {
		return nil, fmt.Errorf("unitIDs and records length mismatch: %d vs %d", len(unitIDs), len(records))
	}

	deadline := time.Now().Add(totalBudget)

	phase1Out, err := runPhase1(ctx, unitIDs, records, stage, schema, deadline)
	if err != nil {
		return nil, err
	}

	return runPhase2(ctx, phase1Out, stage, rules, deadline)
}

type phase1Result struct {
	unitID  string
	record  map[string]any
	trace   []string
	errs    []SchemaError
	rawText string
}

func runPhase1(ctx context.Context, unitIDs []string, records []map[string]any, stage string, schema *Schema, deadline time.Time) ([]phase1Result, error) {
	ch := make(chan phase1Result, len(records))

	for i, rec := range records {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("phase1[%s]: %w", stage, ErrBudgetExceeded)
		}
		coerced, trace, errs := schema.Check(rec)
		ch <- phase1Result{unitID: unitIDs[i], record: coerced, trace: trace, errs: errs}
	}
	close(ch)

	out := make([]phase1Result, 0, len(records))
	for r := range ch {
		out = append(out, r)
	}
	return out, nil
}

func runPhase2(ctx context.Context, phase1Out []phase1Result, stage string, rules runconfig.StepRules, deadline time.Time) ([]Outcome, error) {
	ch := make(chan Outcome, len(phase1Out))

	for _, p1 := range phase1Out {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if len(p1.errs) > 0 {
			ch <- Outcome{
				UnitID: p1.unitID,
				Record: p1.record,
				Passed: false,
				Failure: &FailureRecord{
					UnitID:       p1.unitID,
					Stage:        stage,
					FailureStage: FailureSchema,
					Message:      p1.errs[0].Message,
					Path:         p1.errs[0].Path,
					Coercions:    p1.trace,
				},
				Trace: p1.trace,
			}
			continue
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("phase2[%s]: %w", stage, ErrBudgetExceeded)
		}

		result := CheckBusinessRules(p1.record, rules)
		if !result.Passed() {
			ch <- Outcome{
				UnitID: p1.unitID,
				Record: p1.record,
				Passed: false,
				Failure: &FailureRecord{
					UnitID:       p1.unitID,
					Stage:        stage,
					FailureStage: FailureBusiness,
					Message:      result.Errors[0].Message,
					Rule:         result.Errors[0].Path,
					Coercions:    p1.trace,
				},
				Warnings: result.Warnings,
				Trace:    p1.trace,
			}
			continue
		}

		ch <- Outcome{UnitID: p1.unitID, Record: p1.record, Passed: true, Warnings: result.Warnings, Trace: p1.trace}
	}
	close(ch)

	out := make([]Outcome, 0, len(phase1Out))
	for o := range ch {
		out = append(out, o)
	}
	return out, nil
}

// InternalFailure builds a FailureRecord for an upstream pipeline problem
// (no response, missing prior-stage file, non-JSON text) — categorised
// pipeline_internal and therefore excluded from the retry-recovery scan.
func InternalFailure(unitID, stage, message, rawResponse string) FailureRecord {
	return FailureRecord{
		UnitID:       unitID,
		Stage:        stage,
		FailureStage: FailureInternal,
		Message:      message,
		RawResponse:  rawResponse,
	}
}
