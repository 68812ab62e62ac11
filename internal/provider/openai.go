package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codeready-toolchain/batchctl/internal/validate"
)

// OpenAIProvider talks to the OpenAI Chat Completions and Batch APIs.
type OpenAIProvider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAIProvider builds an adapter for the given API key and default model.
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{
		apiKey:     apiKey,
		model:      model,
		baseURL:    "https://api.openai.com/v1",
		httpClient: newHTTPClient(DefaultRequestTimeout),
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) setAuth(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
}

func (p *OpenAIProvider) GenerateRealtime(ctx context.Context, prompt string, schema map[string]any) (RealtimeResult, error) {
	body := map[string]any{
		"model":    p.model,
		"messages": []map[string]string{{"role": "user", "content": prompt}},
	}
	if schema != nil {
		body["response_format"] = map[string]any{
			"type":        "json_schema",
			"json_schema": map[string]any{"name": "response", "schema": schema, "strict": true},
		}
	}

	var resp struct {
		Choices []struct {
			Message      struct{ Content string }
			FinishReason string `json:"finish_reason"`
		}
		Usage struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
		}
	}
	if err := p.doJSON(ctx, http.MethodPost, "/chat/completions", body, &resp); err != nil {
		return RealtimeResult{}, err
	}
	if len(resp.Choices) == 0 {
		return RealtimeResult{}, fmt.Errorf("openai: empty choices in response")
	}

	content := validate.Sanitize(resp.Choices[0].Message.Content)
	return RealtimeResult{
		Content:      content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		FinishReason: resp.Choices[0].FinishReason,
	}, nil
}

func (p *OpenAIProvider) FormatBatchRequest(unitID, prompt string, schema map[string]any) (map[string]any, error) {
	body := map[string]any{
		"model":    p.model,
		"messages": []map[string]string{{"role": "user", "content": prompt}},
	}
	if schema != nil {
		body["response_format"] = map[string]any{
			"type":        "json_schema",
			"json_schema": map[string]any{"name": "response", "schema": schema, "strict": true},
		}
	}
	return map[string]any{
		"custom_id": unitID,
		"method":    "POST",
		"url":       "/v1/chat/completions",
		"body":      body,
	}, nil
}

func (p *OpenAIProvider) UploadBatchFile(ctx context.Context, path string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := p.doJSON(ctx, http.MethodPost, "/files", map[string]any{"path": path, "purpose": "batch"}, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (p *OpenAIProvider) CreateBatch(ctx context.Context, fileID string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	body := map[string]any{
		"input_file_id":     fileID,
		"endpoint":          "/v1/chat/completions",
		"completion_window": "24h",
	}
	if err := p.doJSON(ctx, http.MethodPost, "/batches", body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (p *OpenAIProvider) GetBatchStatus(ctx context.Context, batchID string) (BatchStatusInfo, error) {
	var resp struct {
		Status           string `json:"status"`
		RequestCounts    struct{ Total, Completed, Failed int } `json:"request_counts"`
		ErrorFile        string `json:"error_file_id"`
		CompletedAtEpoch *int64 `json:"completed_at"`
	}
	if err := p.doJSON(ctx, http.MethodGet, "/batches/"+batchID, nil, &resp); err != nil {
		return BatchStatusInfo{}, err
	}

	info := BatchStatusInfo{
		Status:         normalizeOpenAIStatus(resp.Status),
		ProviderStatus: resp.Status,
	}
	if resp.RequestCounts.Total > 0 {
		info.Progress = float64(resp.RequestCounts.Completed+resp.RequestCounts.Failed) / float64(resp.RequestCounts.Total)
	}
	if resp.CompletedAtEpoch != nil {
		t := time.Unix(*resp.CompletedAtEpoch, 0)
		info.CompletedAt = &t
	}
	return info, nil
}

// normalizeOpenAIStatus maps OpenAI's native batch status vocabulary onto
// the unified set (§4.7 "Status normalisation"). OpenAI's "completed" is
// generic: whether any individual request failed must be disambiguated by
// counting per-request outcomes in the downloaded results, not here.
func normalizeOpenAIStatus(native string) BatchStatus {
	switch native {
	case "validating", "in_progress", "finalizing":
		return StatusRunning
	case "completed":
		return StatusCompleted
	case "failed", "expired":
		return StatusFailed
	case "cancelling", "cancelled":
		return StatusCancelled
	default:
		return StatusPending
	}
}

func (p *OpenAIProvider) DownloadBatchResults(ctx context.Context, batchID string) ([]BatchResultItem, BatchMetadata, error) {
	raw, err := p.doRaw(ctx, http.MethodGet, "/batches/"+batchID+"/content", nil)
	if err != nil {
		return nil, BatchMetadata{}, err
	}

	var items []BatchResultItem
	var meta BatchMetadata
	dec := json.NewDecoder(bytes.NewReader(raw))
	for {
		var line struct {
			CustomID string `json:"custom_id"`
			Response struct {
				Body struct {
					Choices []struct {
						Message struct{ Content string }
					}
					Usage struct {
						PromptTokens     int64 `json:"prompt_tokens"`
						CompletionTokens int64 `json:"completion_tokens"`
					}
				}
			}
			Error *struct{ Message string }
		}
		if err := dec.Decode(&line); err != nil {
			if err == io.EOF {
				break
			}
			return nil, BatchMetadata{}, fmt.Errorf("decode batch results: %w", err)
		}

		item := BatchResultItem{UnitID: line.CustomID}
		if line.Error != nil {
			item.Error = line.Error.Message
		} else if len(line.Response.Body.Choices) > 0 {
			item.Content = validate.Sanitize(line.Response.Body.Choices[0].Message.Content)
			item.InputTokens = line.Response.Body.Usage.PromptTokens
			item.OutputTokens = line.Response.Body.Usage.CompletionTokens
		}
		meta.TotalInputTokens += item.InputTokens
		meta.TotalOutputTokens += item.OutputTokens
		items = append(items, item)
	}
	return items, meta, nil
}

func (p *OpenAIProvider) CancelBatch(ctx context.Context, batchID string) (bool, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := p.doJSON(ctx, http.MethodPost, "/batches/"+batchID+"/cancel", nil, &resp); err != nil {
		return false, err
	}
	return true, nil
}

func (p *OpenAIProvider) doJSON(ctx context.Context, method, path string, body any, out any) error {
	raw, err := p.doRaw(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("openai: decode response: %w", err)
	}
	return nil
}

func (p *OpenAIProvider) doRaw(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("openai: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	p.setAuth(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, NewProviderError(p.Name(), 0, err.Error(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		return nil, NewProviderError(p.Name(), resp.StatusCode, string(raw), nil)
	}
	return raw, nil
}
