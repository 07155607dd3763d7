package train

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/samcharles93/makemore/internal/dataset"
	"github.com/samcharles93/makemore/internal/model"
	"github.com/samcharles93/makemore/internal/vocab"
)

var names = []string{"emma", "olivia", "ava", "isabella", "sophia", "mia", "amelia", "harper"}

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}

func fixture(t *testing.T, blockSize int) (*vocab.Vocab, *dataset.Dataset) {
	t.Helper()
	v, err := vocab.New(names, ".", ".")
	if err != nil {
		t.Fatalf("vocab.New: %v", err)
	}
	ds, err := dataset.Build(names, v, blockSize)
	if err != nil {
		t.Fatalf("dataset.Build: %v", err)
	}
	return v, ds
}

func snapshot(m model.Model) [][]float64 {
	var out [][]float64
	for _, p := range m.Params() {
		out = append(out, slices.Clone(p.Data))
	}
	return out
}

func TestLearningRateSchedule(t *testing.T) {
	t.Parallel()
	cfg := Config{LearningRate: 0.1, DecayedLearningRate: 0.01, DecayAfter: 5}
	if got := cfg.LearningRateAt(4); got != 0.1 {
		t.Fatalf("lr(4) = %v, want 0.1", got)
	}
	if got := cfg.LearningRateAt(5); got != 0.01 {
		t.Fatalf("lr(5) = %v, want 0.01", got)
	}
	def := Config{LearningRate: 0.1}
	if got := def.LearningRateAt(DefaultDecayAfter); got != 0.1 {
		t.Fatalf("without a decayed rate lr should stay 0.1, got %v", got)
	}
	if got := (Config{LearningRate: 0.1, DecayedLearningRate: 0.01}).LearningRateAt(DefaultDecayAfter - 1); got != 0.1 {
		t.Fatalf("default decay boundary: got %v", got)
	}
}

func TestZeroStepsLeavesParameters(t *testing.T) {
	t.Parallel()
	v, ds := fixture(t, 3)
	m := model.NewMLP(v.Size(), 3, 2, 8, newRNG(1))
	before := snapshot(m)

	tr, err := New(m, ds, newRNG(2), Config{Steps: 0, BatchSize: 4, LearningRate: 0.1}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tr.Close()
	if err := tr.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tr.State() != StateConverged || tr.History().Len() != 0 {
		t.Fatalf("state %s, history %d", tr.State(), tr.History().Len())
	}
	after := snapshot(m)
	for i := range before {
		if !slices.Equal(before[i], after[i]) {
			t.Fatalf("param %d changed with zero steps", i)
		}
	}
}

func TestFullBatchLossDecreases(t *testing.T) {
	t.Parallel()
	v, ds := fixture(t, 1)
	m := model.NewBigramNet(v.Size(), newRNG(3))
	start, err := m.Loss(ds)
	if err != nil {
		t.Fatalf("Loss: %v", err)
	}
	hist, err := Fit(context.Background(), m, ds, newRNG(4), Config{Steps: 30, LearningRate: 1})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if hist.Len() != 30 {
		t.Fatalf("history length %d, want 30", hist.Len())
	}
	// the first recorded loss is the one before any update
	if math.Abs(hist.Values()[0]-start) > 1e-9 {
		t.Fatalf("first step loss %v, evaluation %v", hist.Values()[0], start)
	}
	end, err := m.Loss(ds)
	if err != nil {
		t.Fatalf("Loss: %v", err)
	}
	if end >= start {
		t.Fatalf("loss did not decrease: %v -> %v", start, end)
	}
}

// TestFullBatchStepMatchesAnalyticGradient takes one full-batch step and
// checks every weight against W - lr*((p-y)/N + 0.02*W/V^2), which involves
// every example of the batch.
func TestFullBatchStepMatchesAnalyticGradient(t *testing.T) {
	t.Parallel()
	const lr = 0.5
	v, ds := fixture(t, 1)
	m := model.NewBigramNet(v.Size(), newRNG(8))
	n := v.Size()
	w := slices.Clone(m.Params()[0].Data)

	grad := make([]float64, len(w))
	for k, ctx := range ds.Contexts {
		p, err := m.Distribution(ctx)
		if err != nil {
			t.Fatalf("Distribution: %v", err)
		}
		for j, pj := range p {
			if j == ds.Targets[k] {
				pj--
			}
			grad[ctx[0]*n+j] += pj / float64(ds.Len())
		}
	}
	for i := range grad {
		grad[i] += 0.01 * 2 * w[i] / float64(n*n)
	}

	if _, err := Fit(context.Background(), m, ds, newRNG(9), Config{Steps: 1, LearningRate: lr}); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	got := m.Params()[0].Data
	for i := range w {
		want := w[i] - lr*grad[i]
		if math.Abs(got[i]-want) > 1e-9 {
			t.Fatalf("w[%d] = %v after one step, want %v", i, got[i], want)
		}
	}
}

func TestMinibatchMovingAverageDecreases(t *testing.T) {
	t.Parallel()
	v, ds := fixture(t, 3)
	m := model.NewMLP(v.Size(), 3, 4, 32, newRNG(5))
	hist, err := Fit(context.Background(), m, ds, newRNG(6), Config{Steps: 400, BatchSize: 16, LearningRate: 0.1})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	avg := hist.MovingAverage(100)
	if len(avg) != 4 {
		t.Fatalf("moving average windows %d, want 4", len(avg))
	}
	if avg[len(avg)-1] >= avg[0] {
		t.Fatalf("moving average did not decrease: %v", avg)
	}
}

func TestTrainingIsDeterministic(t *testing.T) {
	t.Parallel()
	v, ds := fixture(t, 3)
	run := func() []float64 {
		m := model.NewMLP(v.Size(), 3, 2, 8, newRNG(7))
		hist, err := Fit(context.Background(), m, ds, newRNG(8), Config{Steps: 20, BatchSize: 8, LearningRate: 0.1})
		if err != nil {
			t.Fatalf("Fit: %v", err)
		}
		return hist.Values()
	}
	if a, b := run(), run(); !slices.Equal(a, b) {
		t.Fatalf("same seeds produced different losses:\n%v\n%v", a, b)
	}
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()
	v, ds := fixture(t, 3)
	m := model.NewMLP(v.Size(), 3, 2, 8, newRNG(9))
	tr, err := New(m, ds, newRNG(10), Config{Steps: 10, BatchSize: 4, LearningRate: 0.1}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tr.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tr.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if tr.State() != StateStopped || tr.Step() != 0 {
		t.Fatalf("state %s at step %d", tr.State(), tr.Step())
	}
	if err := tr.Run(context.Background()); !errors.Is(err, ErrState) {
		t.Fatalf("second Run: expected ErrState, got %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	t.Parallel()
	v, ds := fixture(t, 3)
	m := model.NewMLP(v.Size(), 3, 2, 8, newRNG(11))
	cases := []Config{
		{Steps: -1, BatchSize: 4, LearningRate: 0.1},
		{Steps: 1, BatchSize: 4, LearningRate: 0},
		{Steps: 1, BatchSize: 0, LearningRate: 0.1},
	}
	for _, cfg := range cases {
		if _, err := New(m, ds, newRNG(1), cfg, nil); !errors.Is(err, ErrConfig) {
			t.Fatalf("%+v: expected ErrConfig, got %v", cfg, err)
		}
	}
	_, bigrams := fixture(t, 1)
	if _, err := New(m, bigrams, newRNG(1), Config{Steps: 1, BatchSize: 4, LearningRate: 0.1}, nil); !errors.Is(err, model.ErrShape) {
		t.Fatalf("block size mismatch: expected ErrShape, got %v", err)
	}
}

func TestExperimentalGate(t *testing.T) {
	t.Parallel()
	v, ds := fixture(t, 3)
	m := model.NewBatchNormMLP(v.Size(), 3, 2, 8, 2, newRNG(12))
	cfg := Config{Steps: 2, BatchSize: 8, LearningRate: 0.1}
	if _, err := New(m, ds, newRNG(1), cfg, nil); !errors.Is(err, ErrExperimental) {
		t.Fatalf("expected ErrExperimental, got %v", err)
	}
	cfg.AllowExperimental = true
	hist, err := Fit(context.Background(), m, ds, newRNG(1), cfg)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if hist.Len() != 2 {
		t.Fatalf("history length %d, want 2", hist.Len())
	}
}

func TestSweep(t *testing.T) {
	t.Parallel()
	rates := ExpSpace(-3, 0, 4)
	want := []float64{0.001, 0.01, 0.1, 1}
	for i := range want {
		if math.Abs(rates[i]-want[i]) > 1e-12 {
			t.Fatalf("ExpSpace[%d] = %v, want %v", i, rates[i], want[i])
		}
	}
	v, ds := fixture(t, 3)
	m := model.NewMLP(v.Size(), 3, 2, 8, newRNG(13))
	points, err := Sweep(context.Background(), m, ds, newRNG(14), 8, rates)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(points) != len(rates) {
		t.Fatalf("points %d, want %d", len(points), len(rates))
	}
	for i, p := range points {
		if p.Rate != rates[i] || math.IsNaN(p.Loss) {
			t.Fatalf("point %d = %+v", i, p)
		}
	}
	if _, err := Sweep(context.Background(), m, ds, newRNG(14), 8, nil); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for no rates, got %v", err)
	}
}

func TestHistoryMovingAverage(t *testing.T) {
	t.Parallel()
	var h History
	for _, v := range []float64{4, 2, 3, 1, 9} {
		h.append(v)
	}
	got := h.MovingAverage(2)
	if !slices.Equal(got, []float64{3, 2}) {
		t.Fatalf("MovingAverage(2) = %v, want [3 2]", got)
	}
	if h.Last() != 9 {
		t.Fatalf("Last = %v", h.Last())
	}
}
