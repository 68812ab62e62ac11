package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/codeready-toolchain/batchctl/internal/layout"
)

// Load reads and parses MANIFEST.json from runDir. Per §4.1 "Failure", a
// missing file and an unparseable file are distinguished: callers use
// errors.Is(err, ErrNotFound) / errors.Is(err, ErrCorrupt) to branch. No
// automatic repair is attempted here.
func Load(runDir string) (*Manifest, error) {
	path := layout.New(runDir).Manifest()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, newCorruptError(path, err)
	}
	return &m, nil
}

// Save writes both MANIFEST.json and .manifest_summary.json atomically
// (write-temp-then-rename, same directory, per §4.1 and §9 "Atomic
// persistence"). The summary is regenerated from m on every save so a
// reader observing a stale summary never observes a corrupt one.
//
// Grounded on the write-temp-then-rename shape of the reference pipeline
// manifest (other_examples' agent-funpic Save), extended to cover the
// sibling summary file with the same discipline.
func Save(runDir string, m *Manifest) error {
	m.Updated = time.Now()

	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	l := layout.New(runDir)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := atomicWrite(l.Manifest(), data); err != nil {
		return fmt.Errorf("failed to save manifest: %w", err)
	}

	summary := BuildSummary(m)
	summaryData, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := atomicWrite(l.Summary(), summaryData); err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}

	return nil
}

// ReadSummary reads only .manifest_summary.json, the ≈300-byte cache most
// observers (--ps, --info, dashboards) should prefer over the full
// manifest.
func ReadSummary(runDir string) (*Summary, error) {
	path := layout.New(runDir).Summary()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}

	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, newCorruptError(path, err)
	}
	return &s, nil
}

// atomicWrite writes data to a sibling temp file and renames it over path.
// The rename is same-directory, making it atomic on POSIX filesystems: a
// process killed mid-write leaves either the pre-write file or nothing at
// the temp path, never a partially-written destination (§9 "Atomic
// persistence").
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename into place: %w", err)
	}
	return nil
}
