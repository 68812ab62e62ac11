// Package verify implements the offline verify_run/repair_run tools
// (§4.5 "Verify/Repair path"): scanning a run's per-stage files for
// missing, duplicated, or orphaned units, and constructing new retry
// chunks from the complete set of missing unit IDs.
package verify

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/codeready-toolchain/batchctl/internal/layout"
	"github.com/codeready-toolchain/batchctl/internal/manifest"
	"github.com/codeready-toolchain/batchctl/internal/provider"
)

// maxConcurrentScans bounds how many chunks VerifyRun scans from disk at
// once — a run with many chunks and stages can otherwise open
// hundreds of files in a single burst.
const maxConcurrentScans = 8

// StageReport is the per-stage result of scanning one chunk's expected
// unit set against what actually landed in its validated/failure files.
type StageReport struct {
	Stage      string
	Chunk      string
	Expected   int
	Valid      int
	Missing    []string
	Duplicated []string
	Orphaned   []string
}

// VerifyRun scans every chunk of every stage and reports, per §4.5,
// {expected, valid, missing, duplicated, orphaned}. Each chunk is an
// independent scan job that checks its stages one after another; jobs run
// concurrently bounded by maxConcurrentScans, while results land in their
// original chunk/stage order regardless of completion order. A unit
// recorded in a stage's failures file is not counted as missing.
func VerifyRun(ctx context.Context, run layout.Run, m *manifest.Manifest, stages []string) ([]StageReport, error) {
	type job struct {
		chunkName string
	}

	jobs := make([]job, 0, len(m.Chunks))
	for _, chunk := range m.Chunks {
		jobs = append(jobs, job{chunkName: chunk.Name})
	}

	reports := make([]StageReport, len(jobs)*len(stages))
	sem := semaphore.NewWeighted(maxConcurrentScans)

	g, gctx := errgroup.WithContext(ctx)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			expected, err := readUnitIDs(run.Chunk(j.chunkName).Units())
			if err != nil {
				return err
			}
			expectedSet := toSet(expected)

			for si, stage := range stages {
				validated, err := provider.ReadNDJSON(run.Chunk(j.chunkName).Validated(stage))
				if err != nil {
					validated = nil // stage may not have run yet for this chunk
				}
				report := scanStage(j.chunkName, stage, expected, expectedSet, validated)
				if failures, err := provider.ReadNDJSON(run.Chunk(j.chunkName).Failures(stage)); err == nil {
					failed := make(map[string]bool, len(failures))
					for _, rec := range failures {
						id, _ := rec["unit_id"].(string)
						failed[id] = true
					}
					kept := report.Missing[:0]
					for _, id := range report.Missing {
						if !failed[id] {
							kept = append(kept, id)
						}
					}
					report.Missing = kept
				}
				reports[i*len(stages)+si] = report
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func scanStage(chunkName, stage string, expected []string, expectedSet map[string]bool, validated []map[string]any) StageReport {
	seen := make(map[string]int, len(validated))
	var orphaned []string
	for _, rec := range validated {
		id, _ := rec["unit_id"].(string)
		seen[id]++
		if !expectedSet[id] {
			orphaned = append(orphaned, id)
		}
	}

	var missing, duplicated []string
	for _, id := range expected {
		switch seen[id] {
		case 0:
			missing = append(missing, id)
		case 1:
			// fine
		default:
			duplicated = append(duplicated, id)
		}
	}

	return StageReport{
		Stage:      stage,
		Chunk:      chunkName,
		Expected:   len(expected),
		Valid:      len(validated) - len(orphaned),
		Missing:    missing,
		Duplicated: duplicated,
		Orphaned:   orphaned,
	}
}

func readUnitIDs(path string) ([]string, error) {
	records, err := provider.ReadNDJSON(path)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if id, ok := rec["unit_id"].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
