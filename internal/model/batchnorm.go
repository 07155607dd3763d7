package model

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samcharles93/makemore/internal/dataset"
)

const (
	bnEpsilon  = 1e-5
	bnMomentum = 0.1
	// linearGain multiplies the uniform init of every linear layer.
	linearGain = 5.0 / 3.0
)

// bnLayer is Linear -> BatchNorm with running statistics for inference.
type bnLayer struct {
	w, b        *Param
	gamma, beta *Param
	runMean     []float64
	runVar      []float64
}

// BatchNormMLP stacks Linear->BatchNorm->Tanh blocks over the concatenated
// embeddings and ends with Linear->BatchNorm.
//
// EXPERIMENTAL: this variant keeps the initialisation it was first written
// with (uniform [0,1) weights, gamma=0, beta=1) and does not converge. It is
// only constructed when explicitly requested.
type BatchNormMLP struct {
	blockSize int
	embDim    int
	c         *Param
	layers    []*bnLayer
}

func NewBatchNormMLP(vocab, blockSize, embDim, hidden, depth int, rng *rand.Rand) *BatchNormMLP {
	m := &BatchNormMLP{
		blockSize: blockSize,
		embDim:    embDim,
		c:         newParam("c", vocab, embDim),
	}
	m.c.fill(gaussian(rng), 1)

	uniform := distuv.Uniform{Min: 0, Max: 1, Src: rng}
	in := blockSize * embDim
	for i := 0; i <= depth; i++ {
		out := hidden
		if i == depth {
			out = vocab
		}
		l := &bnLayer{
			w:       newParam(fmt.Sprintf("w%d", i), in, out),
			b:       newParam(fmt.Sprintf("b%d", i), 1, out),
			gamma:   newParam(fmt.Sprintf("gamma%d", i), 1, out),
			beta:    newParam(fmt.Sprintf("beta%d", i), 1, out),
			runMean: make([]float64, out),
			runVar:  make([]float64, out),
		}
		l.w.fill(uniform, linearGain)
		l.beta.fillConst(1)
		for j := range l.runVar {
			l.runVar[j] = 1
		}
		m.layers = append(m.layers, l)
		in = out
	}
	return m
}

func (m *BatchNormMLP) Kind() Kind         { return KindBatchNormMLP }
func (m *BatchNormMLP) VocabSize() int     { return m.c.Rows }
func (m *BatchNormMLP) BlockSize() int     { return m.blockSize }
func (m *BatchNormMLP) FullBatch() bool    { return false }
func (m *BatchNormMLP) Experimental() bool { return true }

func (m *BatchNormMLP) Embeddings() *mat.Dense { return m.c.Snapshot() }

func (m *BatchNormMLP) Params() []*Param {
	ps := []*Param{m.c}
	for _, l := range m.layers {
		ps = append(ps, l.w, l.b, l.gamma, l.beta)
	}
	return ps
}

// Logits runs inference with the running batch statistics.
func (m *BatchNormMLP) Logits(contexts [][]int) (*mat.Dense, error) {
	x, err := concatEmbeddings(contexts, m.c, m.blockSize)
	if err != nil {
		return nil, err
	}
	h := x
	for i, l := range m.layers {
		var z mat.Dense
		z.Mul(h, l.w.Dense())
		b, g, be := l.b.Data, l.gamma.Data, l.beta.Data
		last := i == len(m.layers)-1
		z.Apply(func(_, j int, v float64) float64 {
			y := g[j]*(v+b[j]-l.runMean[j])/math.Sqrt(l.runVar[j]+bnEpsilon) + be[j]
			if last {
				return y
			}
			return math.Tanh(y)
		}, &z)
		h = &z
	}
	return h, nil
}

func (m *BatchNormMLP) RowLogits(context []int) ([]float64, error) {
	l, err := m.Logits([][]int{context})
	if err != nil {
		return nil, err
	}
	return mat.Row(nil, 0, l), nil
}

func (m *BatchNormMLP) Distribution(context []int) ([]float64, error) {
	l, err := m.Logits([][]int{context})
	if err != nil {
		return nil, err
	}
	softmaxRows(l)
	return mat.Row(nil, 0, l), nil
}

func (m *BatchNormMLP) Loss(ds *dataset.Dataset) (float64, error) {
	l, err := m.Logits(ds.Contexts)
	if err != nil {
		return 0, err
	}
	return CrossEntropyLogits(l, ds.Targets)
}

func (m *BatchNormMLP) BuildLoss(g *gorgonia.ExprGraph, batch int) (*LossGraph, error) {
	lg := newLossGraph(g, batch, m.blockSize, m.VocabSize(), m.Params())
	h, err := embedConcat(lg.X, lg.Learnables[0], batch, m.blockSize, m.embDim)
	if err != nil {
		return nil, err
	}

	means := make([]gorgonia.Value, len(m.layers))
	vars := make([]gorgonia.Value, len(m.layers))
	for i, l := range m.layers {
		nodes := lg.Learnables[1+4*i : 5+4*i]
		z, err := affine(h, nodes[0], nodes[1])
		if err != nil {
			return nil, fmt.Errorf("layer %d linear: %w", i, err)
		}
		y, mean, variance, err := batchNorm(z, nodes[2], nodes[3], l.w.Cols)
		if err != nil {
			return nil, fmt.Errorf("layer %d batch norm: %w", i, err)
		}
		gorgonia.Read(mean, &means[i])
		gorgonia.Read(variance, &vars[i])
		if i == len(m.layers)-1 {
			h = y
			break
		}
		if h, err = gorgonia.Tanh(y); err != nil {
			return nil, err
		}
	}
	if lg.Loss, err = crossEntropyNode(h, lg.Y); err != nil {
		return nil, fmt.Errorf("mlp-bn cross entropy: %w", err)
	}

	lg.afterSync = append(lg.afterSync, func() error {
		for i, l := range m.layers {
			if err := blendRunning(l.runMean, means[i]); err != nil {
				return err
			}
			if err := blendRunning(l.runVar, vars[i]); err != nil {
				return err
			}
		}
		return nil
	})
	return lg, nil
}

// batchNorm normalises z per feature over the batch and applies gamma/beta.
// It also returns the batch mean and variance as [1 x width] nodes.
func batchNorm(z, gamma, beta *gorgonia.Node, width int) (out, mean, variance *gorgonia.Node, err error) {
	row := tensor.Shape{1, width}
	if mean, err = gorgonia.Mean(z, 0); err != nil {
		return nil, nil, nil, err
	}
	if mean, err = gorgonia.Reshape(mean, row); err != nil {
		return nil, nil, nil, err
	}
	centered, err := gorgonia.BroadcastSub(z, mean, nil, []byte{0})
	if err != nil {
		return nil, nil, nil, err
	}
	sq, err := gorgonia.Square(centered)
	if err != nil {
		return nil, nil, nil, err
	}
	if variance, err = gorgonia.Mean(sq, 0); err != nil {
		return nil, nil, nil, err
	}
	if variance, err = gorgonia.Reshape(variance, row); err != nil {
		return nil, nil, nil, err
	}
	shifted, err := gorgonia.Add(variance, gorgonia.NewConstant(bnEpsilon))
	if err != nil {
		return nil, nil, nil, err
	}
	std, err := gorgonia.Sqrt(shifted)
	if err != nil {
		return nil, nil, nil, err
	}
	xhat, err := gorgonia.BroadcastHadamardDiv(centered, std, nil, []byte{0})
	if err != nil {
		return nil, nil, nil, err
	}
	scaled, err := gorgonia.BroadcastHadamardProd(xhat, gamma, nil, []byte{0})
	if err != nil {
		return nil, nil, nil, err
	}
	out, err = gorgonia.BroadcastAdd(scaled, beta, nil, []byte{0})
	return out, mean, variance, err
}

func blendRunning(running []float64, batch gorgonia.Value) error {
	if batch == nil {
		return fmt.Errorf("%w: batch statistics", ErrNotTrained)
	}
	data, ok := batch.Data().([]float64)
	if !ok || len(data) != len(running) {
		return fmt.Errorf("%w: batch statistics", ErrShape)
	}
	for j, v := range data {
		running[j] = (1-bnMomentum)*running[j] + bnMomentum*v
	}
	return nil
}
