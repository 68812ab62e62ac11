package expr

import (
	"math"
	"math/rand/v2"
)

// RNG wraps a seeded PRNG exposing the evaluator's `random.*` module
// surface. One instance is created per stage invocation (§4.6 "Seeding")
// and shared across init, expressions, and every loop_until iteration —
// there is no per-iteration reseeding, so the sequence a caller observes
// is a pure function of the initial seed and the number of draws made.
type RNG struct {
	src *rand.Rand
}

// NewRNG creates an RNG from a 31-bit seed (see package seed).
func NewRNG(seedValue uint32) *RNG {
	return &RNG{src: rand.New(rand.NewPCG(uint64(seedValue), uint64(seedValue)^0x9e3779b97f4a7c15))}
}

func (r *RNG) Random() float64 { return r.src.Float64() }

func (r *RNG) RandInt(lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + r.src.IntN(hi-lo+1)
}

func (r *RNG) Uniform(lo, hi float64) float64 {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + r.src.Float64()*(hi-lo)
}

// Choice picks one element uniformly at random from a non-empty slice.
func (r *RNG) Choice(items []any) any {
	if len(items) == 0 {
		return nil
	}
	return items[r.src.IntN(len(items))]
}

// Sample draws k distinct elements without replacement, preserving the
// source order of the drawn indices (Python's random.sample semantics).
func (r *RNG) Sample(items []any, k int) []any {
	if k > len(items) {
		k = len(items)
	}
	idx := r.src.Perm(len(items))[:k]
	out := make([]any, 0, k)
	// Preserve ascending index order, matching Python's documented
	// behaviour that the result retains relative input order.
	chosen := make(map[int]bool, k)
	for _, i := range idx {
		chosen[i] = true
	}
	for i, it := range items {
		if chosen[i] {
			out = append(out, it)
		}
	}
	return out
}

// Shuffle permutes items in place using Fisher-Yates.
func (r *RNG) Shuffle(items []any) {
	r.src.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
}

// Gauss draws from a normal distribution via the Box-Muller transform,
// since math/rand/v2 dropped NormFloat64 from the top-level API surface.
func (r *RNG) Gauss(mu, sigma float64) float64 {
	u1 := r.src.Float64()
	u2 := r.src.Float64()
	if u1 <= 1e-12 {
		u1 = 1e-12
	}
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return mu + z*sigma
}
