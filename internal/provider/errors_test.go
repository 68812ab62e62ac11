package provider

import "testing"

func TestClassifyHTTPStatusRateLimit(t *testing.T) {
	if ClassifyHTTPStatus(429) != KindRateLimit {
		t.Fatalf("429 must classify as rate limit")
	}
}

func TestClassifyHTTPStatusAuthIsFatal(t *testing.T) {
	err := NewProviderError("openai", 401, "invalid api key", nil)
	if !err.Fatal() {
		t.Fatalf("401 must be fatal")
	}
	if err.Retryable() {
		t.Fatalf("fatal errors must not be retryable")
	}
}

func TestClassifyHTTPStatusTransientIsRetryable(t *testing.T) {
	err := NewProviderError("openai", 503, "server error", nil)
	if !err.Retryable() {
		t.Fatalf("5xx must be retryable")
	}
	if err.Fatal() {
		t.Fatalf("transient errors must not be fatal")
	}
}

func TestClassifyHTTPStatusDoesNotSubstringMatch(t *testing.T) {
	// A status embedded in unrelated text must not influence classification;
	// only the structured code itself is consulted.
	err := NewProviderError("openai", 200, "contains the substring 400 in its message", nil)
	if err.Kind != KindOther {
		t.Fatalf("classification must come from the status code, not message text, got %v", err.Kind)
	}
}

func TestBatchStatusTerminal(t *testing.T) {
	cases := map[BatchStatus]bool{
		StatusPending:   false,
		StatusRunning:   false,
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	}
	for status, want := range cases {
		if status.Terminal() != want {
			t.Fatalf("status %v: expected Terminal()=%v", status, want)
		}
	}
}
