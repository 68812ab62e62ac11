package orchestrator

import (
	"fmt"
	"time"

	"github.com/codeready-toolchain/batchctl/internal/provider"
	"github.com/codeready-toolchain/batchctl/internal/renderer"
	"github.com/codeready-toolchain/batchctl/internal/runconfig"
)

// stageInput returns the accumulated record set a stage consumes: the raw
// generated units for the first chunk-scoped stage, or the previous
// stage's validated output otherwise (§3 "Validated Record" — each stage
// sees {**stage_input, **parsed_response} from everything before it).
func (o *Orchestrator) stageInput(chunkName, stage string) ([]map[string]any, error) {
	steps := o.Config.Steps.ChunkSteps()
	chunkAddr := o.Run.Chunk(chunkName)

	var idx = -1
	for i, s := range steps {
		if s.Name == stage {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("orchestrator: stage %q is not a chunk-scoped step", stage)
	}
	if idx == 0 {
		return provider.ReadNDJSON(chunkAddr.Units())
	}
	return provider.ReadNDJSON(chunkAddr.Validated(steps[idx-1].Name))
}

// recordsByUnitID indexes records by their unit_id field for O(1) merge
// lookups during the poll phase's result reconciliation.
func recordsByUnitID(records []map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(records))
	for _, r := range records {
		if id, ok := r["unit_id"].(string); ok {
			out[id] = r
		}
	}
	return out
}

// injectReserved returns a copy of record with the orchestrator-owned
// unit_id key set, one of the reserved keys every schema must permit
// (§4.4 "Schemas must not forbid additional properties"). It does not
// add _metadata.
func injectReserved(record map[string]any, unitID string) map[string]any {
	out := make(map[string]any, len(record)+1)
	for k, v := range record {
		out[k] = v
	}
	out["unit_id"] = unitID
	return out
}

// promptTemplate resolves the template file configured for a stage.
func (o *Orchestrator) promptTemplate(stage string) (string, bool) {
	t, ok := o.Config.Prompts.Templates[stage]
	return t, ok
}

// renderPrompt renders a stage's template against a unit's merged context
// (stage input fields plus the pipeline's global prompt context).
func (o *Orchestrator) renderPrompt(step runconfig.StepConfig, record map[string]any) (string, error) {
	tmplFile, ok := o.promptTemplate(step.Name)
	if !ok {
		return "", fmt.Errorf("orchestrator: no prompt template configured for stage %q", step.Name)
	}
	ctx := renderer.Merge(record, o.Config.Prompts.GlobalContext)
	return o.Renderer.Render(tmplFile, ctx)
}

// validationBudget resolves the per-stage validation subprocess timeout,
// falling back to a generous default when unset (§6.1
// subprocess_timeout_seconds).
func (o *Orchestrator) validationBudget() time.Duration {
	budget := time.Duration(o.Config.API.SubprocessTimeoutSecs) * time.Second
	if budget <= 0 {
		budget = 600 * time.Second
	}
	return budget
}
