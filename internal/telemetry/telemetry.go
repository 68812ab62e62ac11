// Package telemetry implements the run's two log files (§4.10): the
// tagged, human-readable operational log (RUN_LOG.txt) and the always-on
// per-call trace log (TRACE_LOG.txt), kept separate so operational noise
// never buries the trace record for a hung or slow provider call.
package telemetry

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// Tag is one of the fixed RUN_LOG.txt line prefixes (§4.10).
type Tag string

const (
	TagBatch      Tag = "[BATCH]"
	TagRealtime   Tag = "[REALTIME]"
	TagSubmit     Tag = "[SUBMIT]"
	TagPoll       Tag = "[POLL]"
	TagCollect    Tag = "[COLLECT]"
	TagValidate   Tag = "[VALIDATE]"
	TagExpression Tag = "[EXPRESSION]"
	TagSkip       Tag = "[SKIP]"
	TagRetry      Tag = "[RETRY]"
	TagError      Tag = "[ERROR]"
	TagThrottle   Tag = "[THROTTLE]"
	TagStep       Tag = "[STEP]"
	TagTick       Tag = "[TICK]"
	TagInfo       Tag = "[INFO]"
	TagTokens     Tag = "[TOKENS]"
	TagCoerce     Tag = "[COERCE]"
)

// RunLog wraps slog with the run's tagged-line convention. Every call site
// picks one Tag so the operational log stays greppable.
type RunLog struct {
	logger *slog.Logger
}

// NewRunLog opens (or appends to) RUN_LOG.txt at path, writing
// timestamped, tagged plain-text lines.
func NewRunLog(path string) (*RunLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	handler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &RunLog{logger: slog.New(handler)}, nil
}

// Log writes one tagged operational line.
func (r *RunLog) Log(tag Tag, msg string, args ...any) {
	r.logger.Info(string(tag)+" "+msg, args...)
}

// Error writes one tagged error line.
func (r *RunLog) Error(tag Tag, msg string, args ...any) {
	r.logger.Error(string(tag)+" "+msg, args...)
}

// Logger exposes the underlying slog.Logger for collaborators (e.g. the
// cost package's throttle summary) that log their own structured line
// without going through the tagged Log/Error convention.
func (r *RunLog) Logger() *slog.Logger {
	return r.logger
}

// TraceLog records one line per outgoing provider call on completion:
// provider, chunk, unit, duration, status (§4.10 "Trace log"). Always
// written regardless of verbosity settings.
type TraceLog struct {
	logger *slog.Logger
}

// NewTraceLog opens (or appends to) TRACE_LOG.txt at path.
func NewTraceLog(path string) (*TraceLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	handler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &TraceLog{logger: slog.New(handler)}, nil
}

// Record logs one completed provider call.
func (t *TraceLog) Record(provider, chunk, unit string, duration time.Duration, status string) {
	t.logger.Info("call",
		"provider", provider,
		"chunk", chunk,
		"unit", unit,
		"duration_ms", duration.Milliseconds(),
		"status", status,
	)
}

// discardTraceLog backs a TraceLog with io.Discard for callers (tests)
// that want the interface without a file on disk.
func discardTraceLog() *TraceLog {
	return &TraceLog{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// NewDiscardTraceLog returns a TraceLog that writes nowhere.
func NewDiscardTraceLog() *TraceLog { return discardTraceLog() }
