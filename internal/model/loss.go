package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// CrossEntropy returns the mean negative log probability of targets under
// already-normalised rows of probs.
func CrossEntropy(probs *mat.Dense, targets []int) (float64, error) {
	r, c := probs.Dims()
	if r != len(targets) {
		return 0, fmt.Errorf("%w: %d rows for %d targets", ErrShape, r, len(targets))
	}
	if r == 0 {
		return 0, fmt.Errorf("%w: empty batch", ErrShape)
	}
	var total float64
	for i, t := range targets {
		if t < 0 || t >= c {
			return 0, fmt.Errorf("%w: target %d outside [0,%d)", ErrShape, t, c)
		}
		total -= math.Log(probs.At(i, t))
	}
	return total / float64(r), nil
}

// CrossEntropyLogits is CrossEntropy over unnormalised logits, using a
// max-shifted log-sum-exp per row.
func CrossEntropyLogits(logits *mat.Dense, targets []int) (float64, error) {
	r, c := logits.Dims()
	if r != len(targets) {
		return 0, fmt.Errorf("%w: %d rows for %d targets", ErrShape, r, len(targets))
	}
	if r == 0 {
		return 0, fmt.Errorf("%w: empty batch", ErrShape)
	}
	var total float64
	for i, t := range targets {
		if t < 0 || t >= c {
			return 0, fmt.Errorf("%w: target %d outside [0,%d)", ErrShape, t, c)
		}
		row := logits.RawRowView(i)
		total += logSumExp(row) - row[t]
	}
	return total / float64(r), nil
}

func logSumExp(row []float64) float64 {
	m := floats.Max(row)
	var s float64
	for _, v := range row {
		s += math.Exp(v - m)
	}
	return m + math.Log(s)
}

// softmaxRows normalises each row of m in place.
func softmaxRows(m *mat.Dense) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		lse := logSumExp(row)
		for j, v := range row {
			row[j] = math.Exp(v - lse)
		}
	}
}

// l2Penalty returns scale * mean(w^2).
func l2Penalty(w []float64, scale float64) float64 {
	if len(w) == 0 {
		return 0
	}
	return scale * floats.Dot(w, w) / float64(len(w))
}
