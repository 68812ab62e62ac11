package main

import (
	"github.com/codeready-toolchain/batchctl/internal/runconfig"
)

// runValidateConfigCmd implements --validate-config: an offline check
// that a pipeline YAML loads and passes the 4-point-link rule without
// creating a run or touching any provider (§6.3).
func runValidateConfigCmd(f globalFlags, out *console) int {
	if f.configPath == "" {
		out.errorf("--validate-config requires --config PATH")
		return 1
	}

	cfg, err := runconfig.Load(f.configPath)
	if err != nil {
		out.errorf("%v", err)
		return 1
	}

	stats := cfg.Stats()
	out.infof("config OK: %d steps (%d llm, %d expression, %d run, %d post_process)",
		stats.Steps, stats.LLMSteps, stats.ExpressionSteps, stats.RunSteps, stats.PostProcess)
	return 0
}
