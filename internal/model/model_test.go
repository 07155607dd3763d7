package model

import (
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/gorgonia"

	"github.com/samcharles93/makemore/internal/dataset"
	"github.com/samcharles93/makemore/internal/vocab"
)

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}

func fixture(t *testing.T, words []string, blockSize int) (*vocab.Vocab, *dataset.Dataset) {
	t.Helper()
	v, err := vocab.New(words, ".", ".")
	if err != nil {
		t.Fatalf("vocab.New: %v", err)
	}
	ds, err := dataset.Build(words, v, blockSize)
	if err != nil {
		t.Fatalf("dataset.Build: %v", err)
	}
	return v, ds
}

func TestCountBigrams(t *testing.T) {
	t.Parallel()
	v, _ := fixture(t, []string{"ana", "ann"}, 1)
	c, err := CountBigrams([]string{"ana", "ann"}, v)
	if err != nil {
		t.Fatalf("CountBigrams: %v", err)
	}
	dot, a, n := 0, 1, 2
	cases := []struct {
		lhs, rhs int
		want     float64
	}{
		{dot, a, 2}, {a, n, 2}, {n, a, 1}, {n, n, 1}, {a, dot, 1}, {n, dot, 1}, {dot, n, 0},
	}
	for _, tc := range cases {
		if got := c.Count(tc.lhs, tc.rhs); got != tc.want {
			t.Fatalf("count(%d,%d) = %v, want %v", tc.lhs, tc.rhs, got, tc.want)
		}
	}
}

// TestCountDistributionMatchesTable checks that the untrained frequency model
// samples from exactly the row-normalised count table.
func TestCountDistributionMatchesTable(t *testing.T) {
	t.Parallel()
	words := []string{"emma", "ava", "anna", "bob"}
	v, _ := fixture(t, words, 1)
	c, err := CountBigrams(words, v)
	if err != nil {
		t.Fatalf("CountBigrams: %v", err)
	}
	table := c.Probabilities(0)
	for i := 0; i < v.Size(); i++ {
		got, err := c.Distribution([]int{i})
		if err != nil {
			t.Fatalf("Distribution(%d): %v", i, err)
		}
		var sum float64
		for j := 0; j < v.Size(); j++ {
			sum += c.Count(i, j)
		}
		for j := range got {
			want := 0.0
			if sum > 0 {
				want = c.Count(i, j) / sum
			}
			if got[j] != want {
				t.Fatalf("p(%d|%d) = %v, want %v", j, i, got[j], want)
			}
			if table.At(i, j) != want {
				t.Fatalf("table p(%d|%d) = %v, want %v", j, i, table.At(i, j), want)
			}
		}
	}
}

func TestCountSmoothedLossIsFinite(t *testing.T) {
	t.Parallel()
	v, _ := fixture(t, []string{"ab", "ba"}, 1)
	c, err := CountBigrams([]string{"ab"}, v)
	if err != nil {
		t.Fatalf("CountBigrams: %v", err)
	}
	// "ba" contains pairs never counted
	nll, err := c.NLL([]string{"ba"})
	if err != nil {
		t.Fatalf("NLL: %v", err)
	}
	if math.IsInf(nll, 0) || math.IsNaN(nll) || nll <= 0 {
		t.Fatalf("smoothed NLL should be finite and positive, got %v", nll)
	}
}

func TestCrossEntropyPerfectPrediction(t *testing.T) {
	t.Parallel()
	probs := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 0, 1,
		0, 1, 0,
	})
	got, err := CrossEntropy(probs, []int{0, 2, 1})
	if err != nil {
		t.Fatalf("CrossEntropy: %v", err)
	}
	if math.Abs(got) > 1e-12 {
		t.Fatalf("loss = %v, want 0", got)
	}
	if _, err := CrossEntropy(probs, []int{0}); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
}

func TestCrossEntropyLogitsMatchesSoftmax(t *testing.T) {
	t.Parallel()
	logits := mat.NewDense(2, 4, []float64{
		0.5, -1, 2, 0,
		3, 3, -2, 1,
	})
	probs := mat.DenseCopyOf(logits)
	softmaxRows(probs)
	targets := []int{2, 0}
	a, err := CrossEntropyLogits(logits, targets)
	if err != nil {
		t.Fatalf("CrossEntropyLogits: %v", err)
	}
	b, err := CrossEntropy(probs, targets)
	if err != nil {
		t.Fatalf("CrossEntropy: %v", err)
	}
	if math.Abs(a-b) > 1e-12 {
		t.Fatalf("logits form %v != probs form %v", a, b)
	}
}

func TestMLPInitialisation(t *testing.T) {
	t.Parallel()
	a := NewMLP(27, 3, 10, 200, newRNG(5))
	b := NewMLP(27, 3, 10, 200, newRNG(5))
	for i, p := range a.Params() {
		if !slices.Equal(p.Data, b.Params()[i].Data) {
			t.Fatalf("param %s differs for the same seed", p.Name)
		}
	}
	if got, want := KaimingTanhScale(10, 3), math.Sqrt(5.0/3.0/30.0); math.Abs(got-want) > 1e-15 {
		t.Fatalf("scale = %v, want %v", got, want)
	}
	// output layer starts small so initial logits are near uniform
	for _, v := range a.w2.Data {
		if math.Abs(v) > 0.1 {
			t.Fatalf("w2 entry %v larger than expected for 0.01 scaling", v)
		}
	}
}

func TestMLPLogitsMatchManual(t *testing.T) {
	t.Parallel()
	m := NewMLP(4, 2, 3, 5, newRNG(11))
	ctx := []int{1, 3}
	got, err := m.RowLogits(ctx)
	if err != nil {
		t.Fatalf("RowLogits: %v", err)
	}

	x := append(slices.Clone(m.c.Data[3:6]), m.c.Data[9:12]...)
	h := make([]float64, 5)
	for j := range h {
		s := m.b1.Data[j]
		for i, xi := range x {
			s += xi * m.w1.Data[i*5+j]
		}
		h[j] = math.Tanh(s)
	}
	for k := 0; k < 4; k++ {
		s := m.b2.Data[k]
		for j, hj := range h {
			s += hj * m.w2.Data[j*4+k]
		}
		if math.Abs(s-got[k]) > 1e-12 {
			t.Fatalf("logit %d: got %v, want %v", k, got[k], s)
		}
	}
}

func TestContextValidation(t *testing.T) {
	t.Parallel()
	m := NewMLP(4, 3, 2, 4, newRNG(1))
	if _, err := m.Distribution([]int{0, 1}); !errors.Is(err, ErrShape) {
		t.Fatalf("short context: expected ErrShape, got %v", err)
	}
	if _, err := m.Distribution([]int{0, 1, 9}); !errors.Is(err, ErrShape) {
		t.Fatalf("bad index: expected ErrShape, got %v", err)
	}
	if _, err := New(Config{Kind: "rnn", VocabSize: 3}, newRNG(1)); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestDistributionsNormalised(t *testing.T) {
	t.Parallel()
	v, _ := fixture(t, []string{"emma", "ava"}, 3)
	models := []Model{
		NewBigramNet(v.Size(), newRNG(2)),
		NewMLP(v.Size(), 3, 2, 8, newRNG(2)),
		NewBatchNormMLP(v.Size(), 3, 2, 8, 2, newRNG(2)),
	}
	for _, m := range models {
		ctx := make([]int, m.BlockSize())
		p, err := m.Distribution(ctx)
		if err != nil {
			t.Fatalf("%s: Distribution: %v", m.Kind(), err)
		}
		var sum float64
		for _, x := range p {
			sum += x
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Fatalf("%s: distribution sums to %v", m.Kind(), sum)
		}
	}
}

// TestGraphLossMatchesEvaluation runs the gorgonia loss graph over the whole
// dataset once and compares it with the gonum evaluation path.
func TestGraphLossMatchesEvaluation(t *testing.T) {
	t.Parallel()
	words := []string{"emma", "olivia", "ava"}
	for _, tc := range []struct {
		name  string
		block int
		build func(vocabSize int) Trainable
	}{
		{"bigram-net", 1, func(n int) Trainable { return NewBigramNet(n, newRNG(3)) }},
		{"mlp", 3, func(n int) Trainable { return NewMLP(n, 3, 4, 16, newRNG(3)) }},
	} {
		v, ds := fixture(t, words, tc.block)
		m := tc.build(v.Size())

		g := gorgonia.NewGraph()
		lg, err := m.BuildLoss(g, ds.Len())
		if err != nil {
			t.Fatalf("%s: BuildLoss: %v", tc.name, err)
		}
		idx := make([]int, ds.Len())
		for i := range idx {
			idx[i] = i
		}
		if err := lg.Bind(ds, idx); err != nil {
			t.Fatalf("%s: Bind: %v", tc.name, err)
		}
		vm := gorgonia.NewTapeMachine(g)
		if err := vm.RunAll(); err != nil {
			vm.Close()
			t.Fatalf("%s: RunAll: %v", tc.name, err)
		}
		vm.Close()
		got, err := lg.LossValue()
		if err != nil {
			t.Fatalf("%s: LossValue: %v", tc.name, err)
		}
		want, err := m.Loss(ds)
		if err != nil {
			t.Fatalf("%s: Loss: %v", tc.name, err)
		}
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("%s: graph loss %v, evaluation loss %v", tc.name, got, want)
		}
	}
}

// TestGraphGradientsMatchFiniteDifference backpropagates the loss graph over
// a multi-row batch and compares every parameter gradient with a central
// difference of the gonum evaluation loss.
func TestGraphGradientsMatchFiniteDifference(t *testing.T) {
	t.Parallel()
	const (
		h   = 1e-5
		tol = 1e-6
	)
	words := []string{"emma", "olivia", "ava"}
	for _, tc := range []struct {
		name  string
		block int
		build func(vocabSize int) Trainable
	}{
		{"bigram-net", 1, func(n int) Trainable { return NewBigramNet(n, newRNG(4)) }},
		{"mlp", 3, func(n int) Trainable { return NewMLP(n, 3, 2, 6, newRNG(4)) }},
	} {
		v, ds := fixture(t, words, tc.block)
		m := tc.build(v.Size())
		if ds.Len() < 2 {
			t.Fatalf("%s: fixture has %d examples, want a multi-row batch", tc.name, ds.Len())
		}

		g := gorgonia.NewGraph()
		lg, err := m.BuildLoss(g, ds.Len())
		if err != nil {
			t.Fatalf("%s: BuildLoss: %v", tc.name, err)
		}
		if _, err := gorgonia.Grad(lg.Loss, lg.Learnables...); err != nil {
			t.Fatalf("%s: Grad: %v", tc.name, err)
		}
		idx := make([]int, ds.Len())
		for i := range idx {
			idx[i] = i
		}
		if err := lg.Bind(ds, idx); err != nil {
			t.Fatalf("%s: Bind: %v", tc.name, err)
		}
		vm := gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(lg.Learnables...))
		err = vm.RunAll()
		vm.Close()
		if err != nil {
			t.Fatalf("%s: RunAll: %v", tc.name, err)
		}

		for pi, p := range m.Params() {
			gv, err := lg.Learnables[pi].Grad()
			if err != nil {
				t.Fatalf("%s: %s grad: %v", tc.name, p.Name, err)
			}
			grad, ok := gv.Data().([]float64)
			if !ok || len(grad) != len(p.Data) {
				t.Fatalf("%s: %s grad has %T", tc.name, p.Name, gv.Data())
			}
			for k := range p.Data {
				orig := p.Data[k]
				p.Data[k] = orig + h
				up, err := m.Loss(ds)
				if err != nil {
					t.Fatalf("%s: Loss: %v", tc.name, err)
				}
				p.Data[k] = orig - h
				down, err := m.Loss(ds)
				if err != nil {
					t.Fatalf("%s: Loss: %v", tc.name, err)
				}
				p.Data[k] = orig
				want := (up - down) / (2 * h)
				if math.Abs(grad[k]-want) > tol {
					t.Fatalf("%s: d loss / d %s[%d] = %v, finite difference %v", tc.name, p.Name, k, grad[k], want)
				}
			}
		}
	}
}
