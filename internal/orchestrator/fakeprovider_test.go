package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/codeready-toolchain/batchctl/internal/provider"
)

// fakeProvider is a hand-rolled provider.Provider test double. Every
// behavior is driven by a function field so each test configures only the
// calls its scenario exercises. An unset GenerateRealtime, GetBatchStatus
// or DownloadBatchResults field returns a "not configured" error; the
// other unset fields fall back to a fixed success value.
type fakeProvider struct {
	mu sync.Mutex

	name string

	generateRealtimeFn    func(ctx context.Context, prompt string, schema map[string]any) (provider.RealtimeResult, error)
	formatBatchRequestFn  func(unitID, prompt string, schema map[string]any) (map[string]any, error)
	uploadBatchFileFn     func(ctx context.Context, path string) (string, error)
	createBatchFn         func(ctx context.Context, fileID string) (string, error)
	getBatchStatusFn      func(ctx context.Context, batchID string) (provider.BatchStatusInfo, error)
	downloadBatchResultsFn func(ctx context.Context, batchID string) ([]provider.BatchResultItem, provider.BatchMetadata, error)
	cancelBatchFn         func(ctx context.Context, batchID string) (bool, error)

	batchCalls int
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{name: name}
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) GenerateRealtime(ctx context.Context, prompt string, schema map[string]any) (provider.RealtimeResult, error) {
	if f.generateRealtimeFn == nil {
		return provider.RealtimeResult{}, fmt.Errorf("fakeProvider: GenerateRealtime not configured")
	}
	return f.generateRealtimeFn(ctx, prompt, schema)
}

func (f *fakeProvider) FormatBatchRequest(unitID, prompt string, schema map[string]any) (map[string]any, error) {
	if f.formatBatchRequestFn != nil {
		return f.formatBatchRequestFn(unitID, prompt, schema)
	}
	return map[string]any{"unit_id": unitID, "prompt": prompt}, nil
}

func (f *fakeProvider) UploadBatchFile(ctx context.Context, path string) (string, error) {
	if f.uploadBatchFileFn != nil {
		return f.uploadBatchFileFn(ctx, path)
	}
	return "file-1", nil
}

func (f *fakeProvider) CreateBatch(ctx context.Context, fileID string) (string, error) {
	f.mu.Lock()
	f.batchCalls++
	f.mu.Unlock()
	if f.createBatchFn != nil {
		return f.createBatchFn(ctx, fileID)
	}
	return "batch-1", nil
}

func (f *fakeProvider) GetBatchStatus(ctx context.Context, batchID string) (provider.BatchStatusInfo, error) {
	if f.getBatchStatusFn == nil {
		return provider.BatchStatusInfo{}, fmt.Errorf("fakeProvider: GetBatchStatus not configured")
	}
	return f.getBatchStatusFn(ctx, batchID)
}

func (f *fakeProvider) DownloadBatchResults(ctx context.Context, batchID string) ([]provider.BatchResultItem, provider.BatchMetadata, error) {
	if f.downloadBatchResultsFn == nil {
		return nil, provider.BatchMetadata{}, fmt.Errorf("fakeProvider: DownloadBatchResults not configured")
	}
	return f.downloadBatchResultsFn(ctx, batchID)
}

func (f *fakeProvider) CancelBatch(ctx context.Context, batchID string) (bool, error) {
	if f.cancelBatchFn != nil {
		return f.cancelBatchFn(ctx, batchID)
	}
	return true, nil
}
