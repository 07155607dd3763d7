package train

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/samcharles93/makemore/internal/dataset"
	"github.com/samcharles93/makemore/internal/logger"
	"github.com/samcharles93/makemore/internal/model"
)

// RatePoint is the loss observed for one step at Rate.
type RatePoint struct {
	Rate float64 `json:"rate"`
	Loss float64 `json:"loss"`
}

// ExpSpace returns n rates spaced evenly in log10 between 10^start and
// 10^stop inclusive.
func ExpSpace(start, stop float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{math.Pow(10, start)}
	}
	out := make([]float64, n)
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = math.Pow(10, start+step*float64(i))
	}
	return out
}

// Sweep trains m for one step at each rate in order, continuing from the
// parameters left by the previous step, and records the loss of each step.
// The loss that follows a rate indicates whether that rate is too large.
func Sweep(ctx context.Context, m model.Trainable, data *dataset.Dataset, rng *rand.Rand, batchSize int, rates []float64) ([]RatePoint, error) {
	if len(rates) == 0 {
		return nil, fmt.Errorf("%w: no rates", ErrConfig)
	}
	tr, err := New(m, data, rng, Config{
		Steps:             len(rates),
		BatchSize:         batchSize,
		LearningRate:      rates[0],
		AllowExperimental: true,
	}, logger.FromContext(ctx))
	if err != nil {
		return nil, err
	}
	defer tr.Close()

	tr.state = StateTraining
	out := make([]RatePoint, 0, len(rates))
	for _, lr := range rates {
		if err := ctx.Err(); err != nil {
			tr.state = StateStopped
			return out, err
		}
		loss, err := tr.stepOnce(lr)
		if err != nil {
			tr.state = StateStopped
			return out, fmt.Errorf("rate %g: %w", lr, err)
		}
		tr.history.append(loss)
		tr.step++
		out = append(out, RatePoint{Rate: lr, Loss: loss})
	}
	tr.state = StateConverged
	return out, nil
}
