// Package main implements the batchctl CLI: a local batch-orchestration
// engine for multi-stage LLM workflows.
//
// Usage:
//
//	batchctl --init --pipeline NAME --run-dir DIR   Create a new run
//	batchctl --watch --run-dir DIR                  Enter batch-mode loop
//	batchctl --realtime --run-dir DIR               Enter realtime loop
//	batchctl --status --run-dir DIR                 Emit JSON status
//	batchctl --verify --run-dir DIR                 Integrity check
//	batchctl --repair --run-dir DIR --yes           Repair missing units
//	batchctl --ps                                   List all runs
//	batchctl --info --run-dir DIR                   Detailed run info
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/joho/godotenv"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// globalFlags holds every mode/global flag defined on the root command.
// Flags irrelevant to the selected mode are simply left at their zero
// value; each mode's driver reads only the ones it needs.
type globalFlags struct {
	init           bool
	watch          bool
	realtime       bool
	tick           bool
	status         bool
	retryFailures  bool
	revalidate     bool
	validateConfig bool
	verify         bool
	repair         bool
	ps             bool
	info           bool

	pipeline         string
	runDir           string
	configPath       string
	step             string
	useSourceConfig  bool
	maxUnits         int
	repeat           int
	provider         string
	model            string
	yes              bool
	json             bool
	quiet            bool
	noColor          bool
	maxCostUSD       float64
	timeoutSeconds   int
	intervalSeconds  int
	maxRetries       int
	showVersion      bool
}

func main() {
	os.Exit(run())
}

func run() int {
	var f globalFlags

	flag.BoolVar(&f.init, "init", false, "create a new run")
	flag.BoolVar(&f.watch, "watch", false, "enter batch-mode loop")
	flag.BoolVar(&f.realtime, "realtime", false, "enter realtime loop")
	flag.BoolVar(&f.tick, "tick", false, "execute exactly one batch tick")
	flag.BoolVar(&f.status, "status", false, "emit JSON status")
	flag.BoolVar(&f.retryFailures, "retry-failures", false, "construct retry chunks from failures")
	flag.BoolVar(&f.revalidate, "revalidate", false, "re-run validation without a provider call")
	flag.BoolVar(&f.validateConfig, "validate-config", false, "offline config check")
	flag.BoolVar(&f.verify, "verify", false, "integrity check across stages")
	flag.BoolVar(&f.repair, "repair", false, "create retry chunks for missing units")
	flag.BoolVar(&f.ps, "ps", false, "list all runs")
	flag.BoolVar(&f.info, "info", false, "detailed run info")

	flag.StringVar(&f.pipeline, "pipeline", "", "pipeline name to load from the config search path")
	flag.StringVar(&f.runDir, "run-dir", "", "run directory")
	flag.StringVar(&f.configPath, "config", "", "pipeline config path (--validate-config)")
	flag.StringVar(&f.step, "step", "", "stage name (--revalidate)")
	flag.BoolVar(&f.useSourceConfig, "use-source-config", false, "revalidate against the live config instead of the run's snapshot")
	flag.IntVar(&f.maxUnits, "max-units", 0, "cap the number of generated units (--init)")
	flag.IntVar(&f.repeat, "repeat", 0, "override processing.repeat (--init)")
	flag.StringVar(&f.provider, "provider", "", "override api.provider (--init)")
	flag.StringVar(&f.model, "model", "", "override the default model (--init)")
	flag.BoolVar(&f.yes, "yes", false, "skip confirmation prompts")
	flag.BoolVar(&f.json, "json", false, "emit JSON output")
	flag.BoolVar(&f.quiet, "quiet", false, "suppress console echo; log files still written")
	flag.BoolVar(&f.noColor, "no-color", false, "disable colored output")
	flag.Float64Var(&f.maxCostUSD, "max-cost", 0, "override api.realtime.cost_cap_usd")
	flag.IntVar(&f.timeoutSeconds, "timeout", 0, "override api.subprocess_timeout_seconds")
	flag.IntVar(&f.intervalSeconds, "interval", 0, "override api.poll_interval_seconds")
	flag.IntVar(&f.maxRetries, "max-retries", 0, "override api.retry.max_attempts")
	flag.BoolVar(&f.showVersion, "version", false, "print version and exit")

	flag.Usage = printUsage
	flag.Parse()

	if f.showVersion {
		fmt.Printf("batchctl %s (commit %s, built %s)\n", version, commit, date)
		return 0
	}

	if os.Getenv("NO_COLOR") != "" {
		f.noColor = true
	}
	if f.json {
		f.quiet = true
	}
	out := newConsole(f.quiet, f.noColor)

	if f.runDir != "" {
		if err := godotenv.Load(joinPath(f.runDir, ".env")); err != nil {
			out.infof("no .env file loaded from %s: %v", f.runDir, err)
		}
	}

	mode, err := selectMode(f)
	if err != nil {
		out.errorf("%v", err)
		return 1
	}

	switch mode {
	case modeInit:
		return runInitCmd(f, out)
	case modeInitRealtime:
		if code := runInitCmd(f, out); code != 0 {
			return code
		}
		return runRealtimeCmd(f, out)
	case modeWatch:
		return runWatchCmd(f, out)
	case modeRealtime:
		return runRealtimeCmd(f, out)
	case modeTick:
		return runTickCmd(f, out)
	case modeStatus:
		return runStatusCmd(f, out)
	case modeRetryFailures:
		return runRetryFailuresCmd(f, out)
	case modeRevalidate:
		return runRevalidateCmd(f, out)
	case modeValidateConfig:
		return runValidateConfigCmd(f, out)
	case modeVerify:
		return runVerifyCmd(f, out)
	case modeRepair:
		return runRepairCmd(f, out)
	case modePS:
		return runPSCmd(f, out)
	case modeInfo:
		return runInfoCmd(f, out)
	default:
		flag.Usage()
		return 1
	}
}

type cliMode int

const (
	modeNone cliMode = iota
	modeInit
	modeInitRealtime
	modeWatch
	modeRealtime
	modeTick
	modeStatus
	modeRetryFailures
	modeRevalidate
	modeValidateConfig
	modeVerify
	modeRepair
	modePS
	modeInfo
)

// selectMode resolves the mutually-exclusive mode flags into a single
// cliMode, honoring the one explicit exception (--init may combine with
// --realtime, §6.3).
func selectMode(f globalFlags) (cliMode, error) {
	count := 0
	for _, b := range []bool{f.init, f.watch, f.tick, f.status, f.retryFailures, f.revalidate, f.validateConfig, f.verify, f.repair, f.ps, f.info} {
		if b {
			count++
		}
	}
	if f.realtime {
		count++
	}

	switch {
	case f.init && f.realtime:
		return modeInitRealtime, nil
	case count == 0:
		return modeNone, fmt.Errorf("no mode flag given (see --help)")
	case count > 1:
		return modeNone, fmt.Errorf("mode flags are mutually exclusive except --init with --realtime")
	case f.init:
		return modeInit, nil
	case f.watch:
		return modeWatch, nil
	case f.realtime:
		return modeRealtime, nil
	case f.tick:
		return modeTick, nil
	case f.status:
		return modeStatus, nil
	case f.retryFailures:
		return modeRetryFailures, nil
	case f.revalidate:
		return modeRevalidate, nil
	case f.validateConfig:
		return modeValidateConfig, nil
	case f.verify:
		return modeVerify, nil
	case f.repair:
		return modeRepair, nil
	case f.ps:
		return modePS, nil
	case f.info:
		return modeInfo, nil
	default:
		return modeNone, fmt.Errorf("no mode flag given (see --help)")
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `batchctl - local batch-orchestration engine for multi-stage LLM workflows

Usage:
  batchctl --init --pipeline NAME --run-dir DIR [options]
  batchctl --watch --run-dir DIR
  batchctl --realtime --run-dir DIR
  batchctl --tick --run-dir DIR
  batchctl --status --run-dir DIR
  batchctl --retry-failures --run-dir DIR
  batchctl --revalidate --run-dir DIR --step S [--use-source-config]
  batchctl --validate-config --config PATH
  batchctl --verify --run-dir DIR [--json]
  batchctl --repair --run-dir DIR --yes
  batchctl --ps [--json]
  batchctl --info --run-dir DIR [--json]

Global Options:
  --quiet            Suppress console echo; log files still written
  --no-color         Disable colored output (respects NO_COLOR)
  --json             Output in JSON form where applicable
  --max-cost USD      Override api.realtime.cost_cap_usd
  --timeout SECS      Override api.subprocess_timeout_seconds
  --interval SECS     Override api.poll_interval_seconds
  --max-retries N     Override api.retry.max_attempts
  --version          Print version and exit

Exit codes: 0 success; 1 validation/runtime failure; 130 interrupted (paused).
`)
}
