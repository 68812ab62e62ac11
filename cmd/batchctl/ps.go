package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/codeready-toolchain/batchctl/internal/manifest"
)

// runsRoot is where --ps looks for run directories when none is given
// explicitly via --run-dir (used here only as the search root, not the
// run itself): the teacher's own default data directory convention
// (cmd/tarsy's CONFIG_DIR-style env-overridable default), applied to
// batchctl's own run layout (§6.5 "runs/<run_name>/").
func runsRoot(f globalFlags) string {
	if f.runDir != "" {
		return f.runDir
	}
	if v := os.Getenv("BATCHCTL_RUNS_DIR"); v != "" {
		return v
	}
	return "./runs"
}

// runPSCmd implements --ps: list every run under the runs root with its
// status, progress, and cost (§6.3).
func runPSCmd(f globalFlags, out *console) int {
	root := runsRoot(f)
	entries, err := os.ReadDir(root)
	if err != nil {
		out.errorf("listing runs under %s: %v", root, err)
		return 1
	}

	var summaries []*manifest.Summary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		s, err := manifest.ReadSummary(filepath.Join(root, e.Name()))
		if err != nil {
			continue // not a run directory, or not yet initialized
		}
		summaries = append(summaries, s)
	}

	if f.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summaries); err != nil {
			out.errorf("encoding ps output: %v", err)
			return 1
		}
		return 0
	}

	fmt.Printf("%-24s %-10s %8s %10s\n", "RUN", "STATUS", "PROGRESS", "COST")
	for _, s := range summaries {
		fmt.Printf("%-24s %-10s %7.1f%% $%9.4f\n", s.RunName, s.Status, s.Progress, s.TotalCostUSD)
	}
	return 0
}
