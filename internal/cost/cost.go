// Package cost implements token accounting, price computation, and the
// realtime cost cap (§4.9).
package cost

import (
	"fmt"

	"github.com/codeready-toolchain/batchctl/internal/manifest"
	"github.com/codeready-toolchain/batchctl/internal/registry"
)

// Estimate computes the USD cost of a token usage, applying the provider's
// realtime multiplier when isBatch is false (§4.9 "Cost computation").
func Estimate(reg *registry.Registry, provider, model string, inputTokens, outputTokens int64, isBatch bool) float64 {
	price := reg.ModelPrice(provider, model)
	usd := (float64(inputTokens)/1e6)*price.InputPricePerMillion + (float64(outputTokens)/1e6)*price.OutputPricePerMillion
	if !isBatch {
		usd *= reg.RealtimeMultiplier(provider)
	}
	return usd
}

// Record adds a unit's token usage into the manifest's cumulative buckets,
// splitting initial vs. retry accounting, and recomputes total cost.
func Record(m *manifest.Manifest, reg *registry.Registry, provider, model string, inputTokens, outputTokens int64, isBatch, isRetry bool) {
	if isRetry {
		m.Metadata.RetryInputTokens += inputTokens
		m.Metadata.RetryOutputTokens += outputTokens
	} else {
		m.Metadata.InitialInputTokens += inputTokens
		m.Metadata.InitialOutputTokens += outputTokens
	}
	m.Metadata.TotalCostUSD += Estimate(reg, provider, model, inputTokens, outputTokens, isBatch)
}

// ErrCapExceeded is returned by CheckCap once the realtime cost cap is
// crossed. The caller must abort the run gracefully (§4.9 "Cost cap").
type ErrCapExceeded struct {
	CapUSD   float64
	SpentUSD float64
}

func (e *ErrCapExceeded) Error() string {
	return fmt.Sprintf("realtime cost cap exceeded: spent $%.4f of $%.4f cap", e.SpentUSD, e.CapUSD)
}

// CheckCap is evaluated after every realtime unit (not every chunk, per
// §4.9) — a per-unit check catches the cap mid-chunk instead of only at
// chunk boundaries.
func CheckCap(capUSD, spentUSD float64) error {
	if capUSD <= 0 {
		return nil
	}
	if spentUSD >= capUSD {
		return &ErrCapExceeded{CapUSD: capUSD, SpentUSD: spentUSD}
	}
	return nil
}
