package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/codeready-toolchain/batchctl/internal/manifest"
	"github.com/codeready-toolchain/batchctl/internal/verify"
	"github.com/schollz/progressbar/v3"
)

// newVerifyProgressBar mirrors cie's own phase-progress-bar setup
// (cmd/cie/index.go's NewProgressBar/SetProgressCallback), minus the
// phase-switch machinery cie needs for its multi-phase indexing run: a
// verify scan is a single phase over a fixed chunk/stage count, so one
// bar for the whole scan is enough. Suppressed under --quiet/--json the
// same way the rest of the console output is.
func newVerifyProgressBar(f globalFlags, total int) *progressbar.ProgressBar {
	if f.quiet || f.json || total == 0 {
		return progressbar.NewOptions(total, progressbar.OptionSetVisibility(false))
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("verifying"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)
}

func loadManifestAndStages(f globalFlags) (*manifest.Manifest, []string, error) {
	run, err := requireRunDir(f)
	if err != nil {
		return nil, nil, err
	}
	m, err := manifest.Load(run.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("loading manifest: %w", err)
	}
	cfg, _, err := loadRunConfig(run)
	if err != nil {
		return nil, nil, err
	}
	var stages []string
	for _, s := range cfg.Steps.ChunkSteps() {
		stages = append(stages, s.Name)
	}
	return m, stages, nil
}

// runVerifyCmd implements --verify: scan every chunk/stage for missing,
// duplicated, or orphaned units (§4.5, §6.3).
func runVerifyCmd(f globalFlags, out *console) int {
	run, err := requireRunDir(f)
	if err != nil {
		out.errorf("%v", err)
		return 1
	}
	m, stages, err := loadManifestAndStages(f)
	if err != nil {
		out.errorf("%v", err)
		return 1
	}

	bar := newVerifyProgressBar(f, len(m.Chunks)*len(stages))
	reports, err := verify.VerifyRun(context.Background(), run, m, stages)
	for range reports {
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	if err != nil {
		out.errorf("verify: %v", err)
		return 1
	}

	missing := 0
	for _, r := range reports {
		missing += len(r.Missing)
	}

	if f.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			out.errorf("encoding verify report: %v", err)
			return 1
		}
	} else {
		for _, r := range reports {
			if len(r.Missing) == 0 && len(r.Duplicated) == 0 && len(r.Orphaned) == 0 {
				continue
			}
			fmt.Printf("%s/%s: expected=%d valid=%d missing=%d duplicated=%d orphaned=%d\n",
				r.Chunk, r.Stage, r.Expected, r.Valid, len(r.Missing), len(r.Duplicated), len(r.Orphaned))
		}
		fmt.Printf("total missing units: %d\n", missing)
	}

	if missing > 0 {
		return 1
	}
	return 0
}

// runRepairCmd implements --repair: build new retry chunks from a fresh
// verify scan's missing units and append them to the manifest (§4.5,
// §6.3). Idempotent: a second run against an already-repaired manifest
// finds zero missing units and creates nothing (§8 "--repair is
// idempotent when run twice on an unchanged run").
func runRepairCmd(f globalFlags, out *console) int {
	if !f.yes {
		out.errorf("--repair requires --yes to confirm")
		return 1
	}
	run, err := requireRunDir(f)
	if err != nil {
		out.errorf("%v", err)
		return 1
	}
	m, stages, err := loadManifestAndStages(f)
	if err != nil {
		out.errorf("%v", err)
		return 1
	}

	bar := newVerifyProgressBar(f, len(m.Chunks)*len(stages))
	reports, err := verify.VerifyRun(context.Background(), run, m, stages)
	for range reports {
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	if err != nil {
		out.errorf("verify: %v", err)
		return 1
	}

	newChunks, err := verify.RepairRun(run, reports)
	if err != nil {
		out.errorf("repair: %v", err)
		return 1
	}
	if len(newChunks) == 0 {
		out.infof("nothing to repair: no missing units found")
		return 0
	}

	m.Chunks = append(m.Chunks, newChunks...)
	if err := manifest.Save(run.Dir, m); err != nil {
		out.errorf("saving manifest: %v", err)
		return 1
	}

	out.infof("repair created %d retry chunk(s)", len(newChunks))
	return 0
}
