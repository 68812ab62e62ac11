package main

import (
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// console is the CLI's colored/quiet status-line writer, grounded on the
// fatih/color + mattn/go-isatty + NO_COLOR convention used for console
// output (§C). Log files (RUN_LOG.txt/TRACE_LOG.txt) are written
// unconditionally by the orchestrator regardless of --quiet; this type
// only governs the terminal echo.
type console struct {
	quiet   bool
	info    *color.Color
	warn    *color.Color
	errColor *color.Color
}

func newConsole(quiet, noColor bool) *console {
	if noColor || !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
	return &console{
		quiet:    quiet,
		info:     color.New(color.FgCyan),
		warn:     color.New(color.FgYellow),
		errColor: color.New(color.FgRed, color.Bold),
	}
}

func (c *console) infof(format string, args ...any) {
	if c.quiet {
		return
	}
	c.info.Fprintf(os.Stderr, format+"\n", args...)
}

func (c *console) warnf(format string, args ...any) {
	if c.quiet {
		return
	}
	c.warn.Fprintf(os.Stderr, format+"\n", args...)
}

func (c *console) errorf(format string, args ...any) {
	c.errColor.Fprintf(os.Stderr, format+"\n", args...)
}

func joinPath(dir, name string) string {
	return filepath.Join(dir, name)
}
