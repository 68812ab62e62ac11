package telemetry

import "time"

// Heartbeat emits an idle [INFO] line on a fixed interval (§4.10: "~60s
// when idle"), deduplicating so a busy loop that calls Tick every few
// milliseconds doesn't flood the log.
type Heartbeat struct {
	interval time.Duration
	last     time.Time
}

// NewHeartbeat creates a heartbeat with the given interval.
func NewHeartbeat(interval time.Duration) *Heartbeat {
	return &Heartbeat{interval: interval}
}

// Due reports whether enough time has elapsed since the last emission,
// and if so marks now as the new last-emitted time.
func (h *Heartbeat) Due(now time.Time) bool {
	if now.Sub(h.last) < h.interval {
		return false
	}
	h.last = now
	return true
}

// Tick emits a heartbeat line through log if Due, and is a no-op otherwise.
func (h *Heartbeat) Tick(log *RunLog, now time.Time, msg string, args ...any) {
	if !h.Due(now) {
		return
	}
	log.Log(TagInfo, msg, args...)
}
