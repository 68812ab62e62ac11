// Package provider implements the unified LLM Provider Adapter (§4.7):
// a single capability interface plus Gemini/OpenAI/Anthropic adapters,
// status normalisation, and an error taxonomy matched on structured
// status codes rather than substring matching.
package provider

import (
	"context"
	"time"
)

// BatchStatus is the normalised terminal/non-terminal batch state, common
// across every provider's native status vocabulary (§4.7 "Status
// normalisation").
type BatchStatus string

const (
	StatusPending   BatchStatus = "PENDING"
	StatusRunning   BatchStatus = "RUNNING"
	StatusCompleted BatchStatus = "COMPLETED"
	StatusFailed    BatchStatus = "FAILED"
	StatusCancelled BatchStatus = "CANCELLED"
)

// Terminal reports whether the batch requires no further polling.
func (s BatchStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// RealtimeResult is the outcome of a synchronous single-prompt call.
type RealtimeResult struct {
	Content      string
	InputTokens  int64
	OutputTokens int64
	FinishReason string
}

// BatchStatusInfo is the normalised view of a batch's current state.
type BatchStatusInfo struct {
	Status         BatchStatus
	Progress       float64 // 0..1
	Error          string
	ProviderStatus string // raw provider status string, kept for the manifest
	SubmittedAt    time.Time
	CompletedAt    *time.Time
}

// BatchResultItem is one unit's outcome inside a downloaded batch result set.
type BatchResultItem struct {
	UnitID       string
	Content      string
	InputTokens  int64
	OutputTokens int64
	Error        string
}

// BatchMetadata carries batch-level bookkeeping (overall token totals),
// reported alongside the per-unit results.
type BatchMetadata struct {
	TotalInputTokens  int64
	TotalOutputTokens int64
}

// Provider is the capability set every adapter implements in full (§4.7
// "Unified capability set"). uploadBatchFile may be a no-op for providers
// whose batch API accepts an inline payload.
type Provider interface {
	Name() string
	GenerateRealtime(ctx context.Context, prompt string, schema map[string]any) (RealtimeResult, error)
	FormatBatchRequest(unitID, prompt string, schema map[string]any) (map[string]any, error)
	UploadBatchFile(ctx context.Context, path string) (string, error)
	CreateBatch(ctx context.Context, fileID string) (string, error)
	GetBatchStatus(ctx context.Context, batchID string) (BatchStatusInfo, error)
	DownloadBatchResults(ctx context.Context, batchID string) ([]BatchResultItem, BatchMetadata, error)
	CancelBatch(ctx context.Context, batchID string) (bool, error)
}
