package provider

import "fmt"

// ErrorKind classifies a provider failure so the orchestrator knows
// whether to retry, back off, or abort the whole run (§4.7 "Error
// taxonomy"). Classification is always on a structured status code, never
// a substring match — "400" appears in unrelated error text too often to
// be trustworthy.
type ErrorKind string

const (
	// KindRateLimit — retry with exponential backoff.
	KindRateLimit ErrorKind = "rate_limit"
	// KindAuthentication — fatal config/billing error (4xx auth/billing).
	// Abort the run; do NOT retry.
	KindAuthentication ErrorKind = "authentication"
	// KindTransient — 5xx or transport timeout. Retry.
	KindTransient ErrorKind = "transient"
	// KindOther — anything else. Log, retry per policy.
	KindOther ErrorKind = "other"
)

// ProviderError wraps a provider failure with its classified kind and the
// structured status code it was classified from.
type ProviderError struct {
	Kind       ErrorKind
	StatusCode int
	Provider   string
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s (status=%d, kind=%s)", e.Provider, e.Message, e.StatusCode, e.Kind)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the orchestrator should retry this call.
func (e *ProviderError) Retryable() bool {
	return e.Kind == KindRateLimit || e.Kind == KindTransient || e.Kind == KindOther
}

// Fatal reports whether the whole run must abort without retrying.
func (e *ProviderError) Fatal() bool {
	return e.Kind == KindAuthentication
}

// ClassifyHTTPStatus maps an HTTP status code to an ErrorKind using the
// structured code alone (§4.7).
func ClassifyHTTPStatus(statusCode int) ErrorKind {
	switch {
	case statusCode == 429:
		return KindRateLimit
	case statusCode == 401 || statusCode == 403 || statusCode == 402:
		return KindAuthentication
	case statusCode >= 500 && statusCode < 600:
		return KindTransient
	default:
		return KindOther
	}
}

// NewProviderError builds a classified ProviderError from an HTTP status
// code and the provider-reported message.
func NewProviderError(providerName string, statusCode int, message string, cause error) *ProviderError {
	return &ProviderError{
		Kind:       ClassifyHTTPStatus(statusCode),
		StatusCode: statusCode,
		Provider:   providerName,
		Message:    message,
		Err:        cause,
	}
}
