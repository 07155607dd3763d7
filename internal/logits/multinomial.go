package logits

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
)

var (
	ErrEmptyWeights   = errors.New("logits: empty weight vector")
	ErrNegativeWeight = errors.New("logits: negative or non-finite weight")
	ErrZeroMass       = errors.New("logits: weights sum to zero")
)

// Multinomial draws k indices with replacement, each with probability
// proportional to its weight. The weights need not be normalised.
//
// The weights are normalised, turned into a prefix sum and every uniform draw
// in [0,1) selects the first position whose cumulative value exceeds it. A
// draw that lands above the final entry (rounding) selects the last index
// with nonzero weight.
func Multinomial(rng *rand.Rand, weights []float64, k int) ([]int, error) {
	if len(weights) == 0 {
		return nil, ErrEmptyWeights
	}
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: weights[%d]=%v", ErrNegativeWeight, i, w)
		}
	}
	sum := floats.Sum(weights)
	if sum == 0 {
		return nil, ErrZeroMass
	}

	last := len(weights) - 1
	for weights[last] == 0 {
		last--
	}
	cum := make([]float64, len(weights))
	floats.ScaleTo(cum, 1/sum, weights)
	floats.CumSum(cum, cum)

	out := make([]int, k)
	for i := range out {
		out[i] = searchCumulative(cum, rng.Float64(), last)
	}
	return out, nil
}

// searchCumulative returns the first index whose cumulative value is strictly
// greater than u, clamped to last.
func searchCumulative(cum []float64, u float64, last int) int {
	i := sort.Search(len(cum), func(i int) bool { return cum[i] > u })
	if i > last {
		return last
	}
	return i
}

// Softmax converts logits to probabilities after dividing by temperature.
// A non-positive temperature is treated as 1.
func Softmax(logits []float64, temperature float64) []float64 {
	if temperature <= 0 {
		temperature = 1
	}
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxv := floats.Max(logits) / temperature
	var sum float64
	for i, l := range logits {
		e := math.Exp(l/temperature - maxv)
		out[i] = e
		sum += e
	}
	floats.Scale(1/sum, out)
	return out
}

// argmax returns the index of the maximum value in the slice. If the slice is empty it panics.
func argmax(x []float64) int {
	if len(x) == 0 {
		panic("argmax: empty slice")
	}
	return floats.MaxIdx(x)
}
