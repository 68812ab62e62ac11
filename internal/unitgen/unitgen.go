// Package unitgen builds the input units for a run from the pipeline's
// `processing` configuration (§3 "Unit", §4 leaves referenced from §6.1
// `processing.strategy`), then partitions them into bounded chunks.
//
// Generation is a pure function of its inputs (§8 "Unit generator:
// generate(config, seed) is a pure function ... same inputs -> same
// units"): no wall-clock time, no process-random source, nothing but the
// supplied items and config feeds the output.
package unitgen

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/codeready-toolchain/batchctl/internal/runconfig"
	"github.com/codeready-toolchain/batchctl/internal/seed"
)

// Unit is a generated input record. Fields is the caller-visible payload
// (item fields, position bindings, computed expressions); RepetitionID and
// RepetitionSeed are populated only when repeat > 1.
type Unit struct {
	UnitID         string
	RepetitionID   int
	RepetitionSeed uint32
	HasRepetition  bool
	Fields         map[string]any
}

// MarshalJSON flattens Fields alongside the reserved unit_id/_repetition_*
// keys, matching the on-disk units.jsonl record shape.
func (u Unit) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(u.Fields)+3)
	for k, v := range u.Fields {
		out[k] = v
	}
	out["unit_id"] = u.UnitID
	if u.HasRepetition {
		out["_repetition_id"] = u.RepetitionID
		out["_repetition_seed"] = u.RepetitionSeed
	}
	return json.Marshal(out)
}

// Item is one row of the configured item source (§6.1 processing.items),
// already loaded by the caller (JSON/CSV/etc. decoding is an I/O concern
// outside this package's pure-function contract).
type Item struct {
	Name   string
	Fields map[string]any
}

// Generate builds the full ordered list of units for a pipeline's
// processing configuration and its loaded items, expanding cross-product
// positions or Monte-Carlo repetitions as configured. It is deterministic:
// the same proc config and items always produce the same units in the
// same order.
func Generate(proc runconfig.ProcessingConfig, items []Item) ([]Unit, error) {
	var bases []Unit

	switch proc.Strategy {
	case runconfig.StrategyDirect, "":
		bases = direct(items)
	case runconfig.StrategyPermutation:
		bases = permutation(items)
	case runconfig.StrategyCrossProduct:
		bases = crossProduct(items, proc.Positions)
	default:
		return nil, fmt.Errorf("unitgen: unknown strategy %q", proc.Strategy)
	}

	repeat := proc.Repeat
	if repeat < 1 {
		repeat = 1
	}

	units := make([]Unit, 0, len(bases)*repeat)
	for _, base := range bases {
		if repeat == 1 {
			units = append(units, base)
			continue
		}
		for rep := 0; rep < repeat; rep++ {
			u := base
			u.Fields = cloneFields(base.Fields)
			baseID := base.UnitID
			u.UnitID = fmt.Sprintf("%s__rep%04d", baseID, rep)
			u.HasRepetition = true
			u.RepetitionID = rep
			u.RepetitionSeed = seed.ForRepetition(baseID, rep)
			units = append(units, u)
		}
	}

	if len(units) == 0 {
		return nil, fmt.Errorf("unitgen: generated zero units from %d item(s)", len(items))
	}

	return units, nil
}

func direct(items []Item) []Unit {
	units := make([]Unit, 0, len(items))
	for _, it := range items {
		units = append(units, Unit{UnitID: it.Name, Fields: cloneFields(it.Fields)})
	}
	return units
}

// permutation treats each item as an independent unit, identical to direct
// for a single-position source; the name is retained from the spec's
// strategy vocabulary (§6.1) even though, with one items[] source, its
// expansion coincides with direct.
func permutation(items []Item) []Unit {
	return direct(items)
}

// crossProduct expands the Cartesian product of items across each declared
// position (§6.1 processing.positions[]), producing one unit per
// combination with fields namespaced by position name.
func crossProduct(items []Item, positions []runconfig.PositionConfig) []Unit {
	if len(positions) == 0 {
		return direct(items)
	}

	combos := [][]Item{{}}
	for range positions {
		next := make([][]Item, 0, len(combos)*len(items))
		for _, combo := range combos {
			for _, it := range items {
				extended := append(append([]Item{}, combo...), it)
				next = append(next, extended)
			}
		}
		combos = next
	}

	units := make([]Unit, 0, len(combos))
	for _, combo := range combos {
		fields := make(map[string]any)
		idParts := make([]string, 0, len(combo))
		for i, it := range combo {
			posName := positions[i].Name
			fields[posName] = it.Fields
			idParts = append(idParts, it.Name)
		}
		units = append(units, Unit{UnitID: joinID(idParts), Fields: fields})
	}
	return units
}

func joinID(parts []string) string {
	id := ""
	for i, p := range parts {
		if i > 0 {
			id += "_x_"
		}
		id += p
	}
	return id
}

func cloneFields(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Chunk is a bounded partition of units sharing a chunk name, written to
// chunks/<name>/units.jsonl at --init time.
type Chunk struct {
	Name  string
	Units []Unit
}

// Partition splits units into chunks of at most chunkSize, in input order,
// naming them chunk_000, chunk_001, ... Never emits an empty chunk (§8
// "Zero-unit chunk: never created by the unit generator").
func Partition(units []Unit, chunkSize int) ([]Chunk, error) {
	if chunkSize < 1 {
		return nil, fmt.Errorf("unitgen: chunk_size must be at least 1, got %d", chunkSize)
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("unitgen: cannot partition zero units")
	}

	var chunks []Chunk
	for i := 0; i < len(units); i += chunkSize {
		end := i + chunkSize
		if end > len(units) {
			end = len(units)
		}
		chunks = append(chunks, Chunk{
			Name:  fmt.Sprintf("chunk_%03d", len(chunks)),
			Units: units[i:end],
		})
	}
	return chunks, nil
}

// SortedItemNames returns item names in deterministic ascending order, for
// callers that load items from an unordered source (e.g. a JSON object
// keyed by name) and need a stable iteration order before calling Generate.
func SortedItemNames(items map[string]Item) []string {
	names := make([]string, 0, len(items))
	for name := range items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
