package cost

import "log/slog"

// LogThrottle emits the single per-tick summary line batch mode uses to
// report backpressure against max_inflight_batches (§4.9 "Throttle").
func LogThrottle(logger *slog.Logger, waiting, inflight, maxInflight int) {
	logger.Info("[THROTTLE] batch inflight status",
		"waiting_chunks", waiting,
		"inflight", inflight,
		"max_inflight_batches", maxInflight,
	)
}
