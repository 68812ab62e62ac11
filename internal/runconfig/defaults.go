package runconfig

import "time"

// DefaultAPIConfig returns the built-in defaults applied when api.* keys
// are omitted from the pipeline YAML.
func DefaultAPIConfig() APIConfig {
	return APIConfig{
		MaxInflightBatches:  5,
		PollIntervalSeconds: 30,
		Retry: RetryConfig{
			MaxAttempts:       3,
			InitialDelay:      1,
			BackoffMultiplier: 2,
		},
		Realtime: RealtimeConfig{
			CostCapUSD: 0, // 0 == no cap
			AutoRetry:  true,
		},
		SubprocessTimeoutSecs: 600,
	}
}

// DefaultProcessingConfig returns built-in processing defaults.
func DefaultProcessingConfig() ProcessingConfig {
	return ProcessingConfig{
		Strategy:  StrategyDirect,
		ChunkSize: 50,
		Repeat:    1,
		ValidationRetry: ValidationRetryConfig{
			MaxAttempts: 3,
		},
	}
}

// PollInterval returns the API poll interval as a time.Duration.
func (a APIConfig) PollInterval() time.Duration {
	return time.Duration(a.PollIntervalSeconds * float64(time.Second))
}

// SubprocessTimeout returns the validation subprocess budget as a time.Duration.
func (a APIConfig) SubprocessTimeout() time.Duration {
	if a.SubprocessTimeoutSecs <= 0 {
		return 600 * time.Second
	}
	return time.Duration(a.SubprocessTimeoutSecs) * time.Second
}

// InitialDelayDuration returns the retry initial delay as a time.Duration.
func (r RetryConfig) InitialDelayDuration() time.Duration {
	return time.Duration(r.InitialDelay * float64(time.Second))
}
