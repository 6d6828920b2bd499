// Package sampling provides the random primitives used by the record
// generator: one seedable source threaded through every draw, CDF-based
// weighted choice, inclusive integer ranges, normal draws and clamping.
//
// Nothing here touches the process-wide math/rand state. Two Sources built
// from the same seed produce the same sequence of draws.
package sampling

import (
	"math"
	"math/rand"
	"time"
)

// Source is the single generator state shared by a whole batch.
// It is not safe for concurrent use.
type Source struct {
	rng  *rand.Rand
	seed int64
}

// NewSource returns a Source seeded with seed.
func NewSource(seed int64) *Source {
	return &Source{
		rng:  rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// NewTimeSource returns a Source seeded from the wall clock. The chosen seed
// is available via Seed so the run can be reproduced.
func NewTimeSource() *Source {
	return NewSource(time.Now().UnixNano())
}

// Seed reports the seed this Source was built from.
func (s *Source) Seed() int64 { return s.seed }

// Float64 returns a uniform draw in [0,1).
func (s *Source) Float64() float64 { return s.rng.Float64() }

// IntRange returns a uniform integer in the closed interval [lo, hi].
// If hi < lo the bounds are swapped.
func (s *Source) IntRange(lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + s.rng.Intn(hi-lo+1)
}

// Normal returns a draw from N(mean, sd).
func (s *Source) Normal(mean, sd float64) float64 {
	return mean + sd*s.rng.NormFloat64()
}

// Choice returns a uniformly chosen element of values.
// It panics on an empty slice, like indexing would.
func Choice[T any](s *Source, values []T) T {
	return values[s.rng.Intn(len(values))]
}

// Clamp forces v into [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

// ClampInt forces v into [lo, hi].
func ClampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// Round1 rounds v to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
