package verify

import (
	"fmt"
	"os"

	"github.com/codeready-toolchain/batchctl/internal/chunkstate"
	"github.com/codeready-toolchain/batchctl/internal/layout"
	"github.com/codeready-toolchain/batchctl/internal/manifest"
	"github.com/codeready-toolchain/batchctl/internal/provider"
)

// RepairRun builds one new retry chunk per (chunk, stage) report that has
// missing units, seeded with the complete, uncapped set of missing unit
// records pulled back out of the chunk's original units.jsonl. Any
// truncation for terminal display happens strictly in the CLI layer; the
// records handed to the new chunks here are always the full set (§4.5).
//
// The caller is responsible for appending the returned chunks to the
// manifest and saving it; RepairRun only writes the new chunk directories
// to disk and returns the manifest.Chunk entries ready for that append.
func RepairRun(run layout.Run, reports []StageReport) ([]manifest.Chunk, error) {
	var newChunks []manifest.Chunk

	for _, report := range reports {
		if len(report.Missing) == 0 {
			continue
		}

		missing := toSet(report.Missing)
		records, err := provider.ReadNDJSON(run.Chunk(report.Chunk).Units())
		if err != nil {
			return nil, fmt.Errorf("verify: reading units for chunk %s: %w", report.Chunk, err)
		}

		var retryRecords []map[string]any
		for _, rec := range records {
			id, _ := rec["unit_id"].(string)
			if missing[id] {
				retryRecords = append(retryRecords, rec)
			}
		}
		if len(retryRecords) == 0 {
			// Units referenced by the report no longer exist in the source
			// chunk; nothing to repair from, leave it to manual inspection.
			continue
		}

		name := fmt.Sprintf("%s_repair_%s", report.Chunk, report.Stage)
		dir := run.Chunk(name).Dir()
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("verify: creating repair chunk dir: %w", err)
		}
		if err := provider.WriteNDJSON(run.Chunk(name).Units(), retryRecords); err != nil {
			return nil, fmt.Errorf("verify: writing repair chunk units: %w", err)
		}

		newChunks = append(newChunks, manifest.Chunk{
			Name:      name,
			UnitCount: len(retryRecords),
			State:     chunkstate.Pending(report.Stage),
		})
	}

	return newChunks, nil
}
