package provider

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/codeready-toolchain/batchctl/internal/validate"
)

// GeminiProvider talks to the Google Generative Language API. Gemini has
// no native asynchronous batch-submission API at this level, so batch
// mode is simulated: CreateBatch runs every request inline and returns a
// synthetic batch ID immediately in the COMPLETED state, with results
// cached for DownloadBatchResults.
type GeminiProvider struct {
	client  *restClient
	model   string
	mu      sync.Mutex
	results map[string][]BatchResultItem
}

// NewGeminiProvider builds an adapter for the given API key and model.
func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	p := &GeminiProvider{model: model, results: make(map[string][]BatchResultItem)}
	p.client = &restClient{
		baseURL:    "https://generativelanguage.googleapis.com/v1beta",
		httpClient: newHTTPClient(DefaultRequestTimeout),
		name:       "gemini",
		setHeaders: func(req *http.Request) {
			q := req.URL.Query()
			q.Set("key", apiKey)
			req.URL.RawQuery = q.Encode()
		},
	}
	return p
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) generate(ctx context.Context, prompt string, schema map[string]any) (RealtimeResult, error) {
	body := map[string]any{
		"contents": []map[string]any{{"parts": []map[string]string{{"text": prompt}}}},
	}
	if schema != nil {
		body["generationConfig"] = map[string]any{
			"responseMimeType": "application/json",
			"responseSchema":   schema,
		}
	}

	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []struct{ Text string }
			}
			FinishReason string `json:"finishReason"`
		}
		UsageMetadata struct {
			PromptTokenCount     int64 `json:"promptTokenCount"`
			CandidatesTokenCount int64 `json:"candidatesTokenCount"`
		} `json:"usageMetadata"`
	}
	path := fmt.Sprintf("/models/%s:generateContent", p.model)
	if err := p.client.doJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return RealtimeResult{}, err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return RealtimeResult{}, fmt.Errorf("gemini: empty candidates in response")
	}
	return RealtimeResult{
		Content:      validate.Sanitize(resp.Candidates[0].Content.Parts[0].Text),
		InputTokens:  resp.UsageMetadata.PromptTokenCount,
		OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
		FinishReason: resp.Candidates[0].FinishReason,
	}, nil
}

func (p *GeminiProvider) GenerateRealtime(ctx context.Context, prompt string, schema map[string]any) (RealtimeResult, error) {
	return p.generate(ctx, prompt, schema)
}

func (p *GeminiProvider) FormatBatchRequest(unitID, prompt string, schema map[string]any) (map[string]any, error) {
	return map[string]any{"unit_id": unitID, "prompt": prompt, "schema": schema}, nil
}

func (p *GeminiProvider) UploadBatchFile(ctx context.Context, path string) (string, error) {
	return path, nil
}

// CreateBatch executes every request inline (sequentially, within the
// caller's context) since there is no asynchronous batch endpoint to hand
// the work to; the returned ID is synthetic and only used to look the
// cached results back up in DownloadBatchResults/GetBatchStatus.
func (p *GeminiProvider) CreateBatch(ctx context.Context, fileID string) (string, error) {
	requests, err := ReadNDJSON(fileID)
	if err != nil {
		return "", err
	}

	batchID := "gemini-inline-" + fileID
	var items []BatchResultItem
	for _, req := range requests {
		unitID := fmt.Sprint(req["unit_id"])
		prompt := fmt.Sprint(req["prompt"])
		schema, _ := req["schema"].(map[string]any)

		result, err := p.generate(ctx, prompt, schema)
		item := BatchResultItem{UnitID: unitID}
		if err != nil {
			item.Error = err.Error()
		} else {
			item.Content = result.Content
			item.InputTokens = result.InputTokens
			item.OutputTokens = result.OutputTokens
		}
		items = append(items, item)
	}
	p.mu.Lock()
	p.results[batchID] = items
	p.mu.Unlock()
	return batchID, nil
}

func (p *GeminiProvider) GetBatchStatus(ctx context.Context, batchID string) (BatchStatusInfo, error) {
	p.mu.Lock()
	_, ok := p.results[batchID]
	p.mu.Unlock()
	if !ok {
		return BatchStatusInfo{}, fmt.Errorf("gemini: unknown batch %s", batchID)
	}
	return BatchStatusInfo{Status: StatusCompleted, Progress: 1, ProviderStatus: "completed"}, nil
}

func (p *GeminiProvider) DownloadBatchResults(ctx context.Context, batchID string) ([]BatchResultItem, BatchMetadata, error) {
	p.mu.Lock()
	items, ok := p.results[batchID]
	p.mu.Unlock()
	if !ok {
		return nil, BatchMetadata{}, fmt.Errorf("gemini: unknown batch %s", batchID)
	}
	var meta BatchMetadata
	for _, item := range items {
		meta.TotalInputTokens += item.InputTokens
		meta.TotalOutputTokens += item.OutputTokens
	}
	return items, meta, nil
}

func (p *GeminiProvider) CancelBatch(ctx context.Context, batchID string) (bool, error) {
	p.mu.Lock()
	delete(p.results, batchID)
	p.mu.Unlock()
	return true, nil
}
