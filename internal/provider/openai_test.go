package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIGenerateRealtimeParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"content": "` + "```json\\n{\\\"ok\\\": true}\\n```" + `"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5}
		}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider("test-key", "gpt-test")
	p.baseURL = server.URL

	result, err := p.GenerateRealtime(context.Background(), "say ok", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("GenerateRealtime: %v", err)
	}
	if result.Content != `{"ok": true}` {
		t.Fatalf("expected markdown fence stripped, got %q", result.Content)
	}
	if result.InputTokens != 10 || result.OutputTokens != 5 {
		t.Fatalf("unexpected token counts: %+v", result)
	}
}

func TestOpenAIAuthErrorClassifiedFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": "invalid api key"}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider("bad-key", "gpt-test")
	p.baseURL = server.URL

	_, err := p.GenerateRealtime(context.Background(), "say ok", nil)
	if err == nil {
		t.Fatalf("expected an error")
	}
	perr, ok := err.(*ProviderError)
	if !ok {
		t.Fatalf("expected *ProviderError, got %T", err)
	}
	if !perr.Fatal() {
		t.Fatalf("401 must classify as fatal")
	}
}
