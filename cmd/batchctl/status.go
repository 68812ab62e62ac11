package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/codeready-toolchain/batchctl/internal/manifest"
)

// runStatusCmd implements --status: emit the run's summary cache as JSON
// (§6.3 "--status: Emit JSON status"), preferring the lightweight
// .manifest_summary.json over a full manifest parse.
func runStatusCmd(f globalFlags, out *console) int {
	run, err := requireRunDir(f)
	if err != nil {
		out.errorf("%v", err)
		return 1
	}

	summary, err := manifest.ReadSummary(run.Dir)
	if err != nil {
		out.errorf("reading run summary: %v", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		out.errorf("encoding status: %v", err)
		return 1
	}
	return 0
}

// runInfoCmd implements --info: the same summary, printed as a
// human-readable table, or as JSON under --json (§6.3).
func runInfoCmd(f globalFlags, out *console) int {
	run, err := requireRunDir(f)
	if err != nil {
		out.errorf("%v", err)
		return 1
	}

	summary, err := manifest.ReadSummary(run.Dir)
	if err != nil {
		out.errorf("reading run summary: %v", err)
		return 1
	}

	if f.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			out.errorf("encoding info: %v", err)
			return 1
		}
		return 0
	}

	fmt.Printf("run:      %s\n", summary.RunName)
	fmt.Printf("pipeline: %s\n", summary.PipelineName)
	fmt.Printf("status:   %s\n", summary.Status)
	fmt.Printf("mode:     %s\n", summary.Mode)
	fmt.Printf("progress: %.1f%% (%d valid, %d failed, %d total)\n", summary.Progress, summary.ValidUnits, summary.FailedUnits, summary.TotalUnits)
	fmt.Printf("cost:     $%.4f (%d tokens)\n", summary.TotalCostUSD, summary.TotalTokens)
	fmt.Printf("created:  %s\n", summary.Created.Format("2006-01-02 15:04:05"))
	fmt.Printf("updated:  %s\n", summary.Updated.Format("2006-01-02 15:04:05"))
	return 0
}
