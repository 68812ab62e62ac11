package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/codeready-toolchain/batchctl/internal/chunkstate"
	"github.com/codeready-toolchain/batchctl/internal/layout"
	"github.com/codeready-toolchain/batchctl/internal/manifest"
	"github.com/codeready-toolchain/batchctl/internal/provider"
	"github.com/codeready-toolchain/batchctl/internal/runconfig"
	"github.com/codeready-toolchain/batchctl/internal/validate"
)

// loadStageSchema loads the JSON schema bound to one stage, the same way
// the orchestrator's own schema cache does (internal/orchestrator/schemas.go),
// but standalone since --revalidate runs with no orchestrator instance.
func loadStageSchema(cfg *runconfig.Config, stage string) (*validate.Schema, error) {
	file, ok := cfg.Schemas.Files[stage]
	if !ok {
		return nil, fmt.Errorf("no schema bound to stage %q", stage)
	}
	return validate.LoadSchema(filepath.Join(cfg.Schemas.SchemaDir, file))
}

// runRetryFailuresCmd implements --retry-failures: build new retry chunks
// directly from a FAILED chunk's own {stage}_failures.jsonl files,
// independent of the automatic retry-recovery scan that runs at Prologue
// (§6.3 "distinct from the automatic retry-recovery scan" — that scan
// resets a chunk in place; this command instead spins up fresh chunks so
// the original FAILED chunk remains as a record of what happened).
func runRetryFailuresCmd(f globalFlags, out *console) int {
	run, err := requireRunDir(f)
	if err != nil {
		out.errorf("%v", err)
		return 1
	}
	m, err := manifest.Load(run.Dir)
	if err != nil {
		out.errorf("loading manifest: %v", err)
		return 1
	}
	cfg, _, err := loadRunConfig(run)
	if err != nil {
		out.errorf("%v", err)
		return 1
	}

	var stages []string
	for _, s := range cfg.Steps.ChunkSteps() {
		stages = append(stages, s.Name)
	}

	var created []manifest.Chunk
	for _, chunk := range m.Chunks {
		if chunk.State != chunkstate.Failed {
			continue
		}
		for _, stage := range stages {
			nc, err := retryChunkForStage(run, chunk.Name, stage)
			if err != nil {
				out.errorf("%v", err)
				return 1
			}
			if nc != nil {
				created = append(created, *nc)
			}
		}
	}

	if len(created) == 0 {
		out.infof("no retryable failures found")
		return 0
	}

	m.Chunks = append(m.Chunks, created...)
	if err := manifest.Save(run.Dir, m); err != nil {
		out.errorf("saving manifest: %v", err)
		return 1
	}
	out.infof("created %d retry chunk(s) from failures", len(created))
	return 0
}

// retryChunkForStage reads one chunk's failures file for one stage and,
// if any retryable failures exist, writes a new chunk directory seeded
// with the original unit records and returns its manifest.Chunk entry.
func retryChunkForStage(run layout.Run, chunkName, stage string) (*manifest.Chunk, error) {
	addr := run.Chunk(chunkName)
	failures, err := provider.ReadNDJSON(addr.Failures(stage))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading failures for %s/%s: %w", chunkName, stage, err)
	}

	retryIDs := make(map[string]bool)
	for _, rec := range failures {
		stageName, _ := rec["failure_stage"].(string)
		if validate.FailureStage(stageName).Retryable() {
			if id, ok := rec["unit_id"].(string); ok {
				retryIDs[id] = true
			}
		}
	}
	if len(retryIDs) == 0 {
		return nil, nil
	}

	units, err := provider.ReadNDJSON(addr.Units())
	if err != nil {
		return nil, fmt.Errorf("reading units for %s: %w", chunkName, err)
	}
	var records []map[string]any
	for _, u := range units {
		if id, ok := u["unit_id"].(string); ok && retryIDs[id] {
			records = append(records, u)
		}
	}
	if len(records) == 0 {
		return nil, nil
	}

	name := fmt.Sprintf("%s_retryfailures_%s", chunkName, stage)
	newAddr := run.Chunk(name)
	if err := os.MkdirAll(newAddr.Dir(), 0o755); err != nil {
		return nil, err
	}
	if err := provider.WriteNDJSON(newAddr.Units(), records); err != nil {
		return nil, err
	}

	return &manifest.Chunk{
		Name:      name,
		UnitCount: len(records),
		State:     chunkstate.Pending(stage),
	}, nil
}

// runRevalidateCmd implements --revalidate: re-run the validation pipeline
// against a stage's already-stored raw_response, with no provider call
// (§6.3). --use-source-config re-loads the pipeline from its original
// source path instead of the run's frozen config snapshot, for checking
// a schema/rule edit before committing it to the snapshot.
func runRevalidateCmd(f globalFlags, out *console) int {
	if f.step == "" {
		out.errorf("--revalidate requires --step S")
		return 1
	}
	run, err := requireRunDir(f)
	if err != nil {
		out.errorf("%v", err)
		return 1
	}

	var cfg *runconfig.Config
	if f.useSourceConfig && f.pipeline != "" {
		path, err := resolvePipelinePath(f.pipeline)
		if err != nil {
			out.errorf("%v", err)
			return 1
		}
		cfg, err = runconfig.Load(path)
		if err != nil {
			out.errorf("%v", err)
			return 1
		}
	} else {
		cfg, _, err = loadRunConfig(run)
		if err != nil {
			out.errorf("%v", err)
			return 1
		}
	}

	rules := cfg.Validation[f.step]
	schema, err := loadStageSchema(cfg, f.step)
	if err != nil {
		out.errorf("%v", err)
		return 1
	}

	m, err := manifest.Load(run.Dir)
	if err != nil {
		out.errorf("loading manifest: %v", err)
		return 1
	}

	budget := cfg.API.SubprocessTimeout()
	totalReset := 0
	for _, chunk := range m.Chunks {
		addr := run.Chunk(chunk.Name)
		failures, err := provider.ReadNDJSON(addr.Failures(f.step))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			out.errorf("reading failures for %s/%s: %v", chunk.Name, f.step, err)
			return 1
		}

		var unitIDs []string
		var records []map[string]any
		for _, rec := range failures {
			raw, _ := rec["raw_response"].(string)
			if raw == "" {
				continue
			}
			var parsed map[string]any
			if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
				continue
			}
			id, _ := rec["unit_id"].(string)
			unitIDs = append(unitIDs, id)
			records = append(records, parsed)
		}
		if len(unitIDs) == 0 {
			continue
		}

		outcomes, err := validate.RunPipeline(context.Background(), unitIDs, records, f.step, schema, rules, budget)
		if err != nil {
			out.errorf("revalidating %s/%s: %v", chunk.Name, f.step, err)
			return 1
		}
		for _, o := range outcomes {
			if o.Passed {
				totalReset++
			}
		}
	}

	out.infof("revalidation found %d unit(s) now passing against the current rules", totalReset)
	return 0
}
