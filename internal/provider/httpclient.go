package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultRequestTimeout bounds a single realtime/submit/poll HTTP call.
// No provider client is permitted to inherit Go's default "no timeout"
// policy (§4.7 "Timeouts") — an unbounded hang at 0% CPU is a known
// failure mode that silently stalls a whole run.
const DefaultRequestTimeout = 30 * time.Second

// DefaultPollTimeout is a longer bound sized for batch-status polls that
// may return a larger payload once results are ready. No adapter builds
// its client with it: every adapter's client, polls included, uses
// DefaultRequestTimeout.
const DefaultPollTimeout = 90 * time.Second

// newHTTPClient returns a client with an explicit timeout. Every adapter
// constructs its client through this helper rather than using
// http.DefaultClient, which has no timeout at all.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &http.Client{Timeout: timeout}
}

// restClient is the small shared HTTP-plus-auth-header helper the
// Anthropic and Gemini adapters build on (§4.7: every adapter needs the
// same request/decode/classify shape; OpenAI's is large enough to keep
// its own copy inline).
type restClient struct {
	baseURL    string
	httpClient *http.Client
	setHeaders func(*http.Request)
	name       string
}

func (c *restClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	raw, err := c.doRaw(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.name, err)
	}
	return nil
}

func (c *restClient) doRaw(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", c.name, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NewProviderError(c.name, 0, err.Error(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response body: %w", c.name, err)
	}

	if resp.StatusCode >= 300 {
		return nil, NewProviderError(c.name, resp.StatusCode, string(raw), nil)
	}
	return raw, nil
}

