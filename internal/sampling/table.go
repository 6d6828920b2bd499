package sampling

import (
	"fmt"
	"math"
	"sort"
)

// Table is a categorical distribution stored as a cumulative distribution.
//
// The CDF is built once; Pick draws u in [0,1) and binary-searches the first
// boundary greater than u*total. Labels with zero weight are never picked.
type Table[T any] struct {
	labels []T
	cdf    []float64
	total  float64
}

// NewTable builds a Table from parallel label and weight slices.
//
// Weights need not sum to one; they are normalized by their sum. An error is
// returned when the slices differ in length, are empty, or any weight is
// negative or not finite, or when all weights are zero.
func NewTable[T any](labels []T, weights []float64) (Table[T], error) {
	if len(labels) == 0 {
		return Table[T]{}, fmt.Errorf("weight table is empty")
	}
	if len(labels) != len(weights) {
		return Table[T]{}, fmt.Errorf("weight table has %d labels but %d weights", len(labels), len(weights))
	}

	cdf := make([]float64, len(weights))
	var total float64
	for i, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return Table[T]{}, fmt.Errorf("weight %d (%v) for %v must be finite and non-negative", i, w, labels[i])
		}
		total += w
		cdf[i] = total
	}
	if total <= 0 {
		return Table[T]{}, fmt.Errorf("weight table sums to zero")
	}

	return Table[T]{
		labels: append([]T(nil), labels...),
		cdf:    cdf,
		total:  total,
	}, nil
}

// Pick draws one label.
func (t Table[T]) Pick(s *Source) T {
	u := s.Float64() * t.total
	i := sort.Search(len(t.cdf), func(i int) bool { return t.cdf[i] > u })
	if i >= len(t.cdf) {
		// u*total can round up to total; fall back to the last non-zero slot.
		i = len(t.cdf) - 1
		for i > 0 && t.cdf[i] == t.cdf[i-1] {
			i--
		}
	}
	return t.labels[i]
}
