package model

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/gorgonia"

	"github.com/samcharles93/makemore/internal/dataset"
)

// outputScale shrinks the output layer at init so the first logits are close
// to uniform.
const outputScale = 0.01

// MLP looks up BlockSize embeddings, concatenates them and applies
// affine -> tanh -> affine to produce unnormalised logits.
type MLP struct {
	blockSize int
	embDim    int
	hidden    int

	c  *Param // [vocab x embDim]
	w1 *Param // [blockSize*embDim x hidden]
	b1 *Param // [1 x hidden]
	w2 *Param // [hidden x vocab]
	b2 *Param // [1 x vocab]
}

// NewMLP draws every parameter from N(0,1). W1 is scaled by
// sqrt((5/3) / (embDim*blockSize)) to keep tanh out of saturation and the
// remaining layers by 0.01.
func NewMLP(vocab, blockSize, embDim, hidden int, rng *rand.Rand) *MLP {
	m := &MLP{
		blockSize: blockSize,
		embDim:    embDim,
		hidden:    hidden,
		c:         newParam("c", vocab, embDim),
		w1:        newParam("w1", blockSize*embDim, hidden),
		b1:        newParam("b1", 1, hidden),
		w2:        newParam("w2", hidden, vocab),
		b2:        newParam("b2", 1, vocab),
	}
	dist := gaussian(rng)
	m.c.fill(dist, 1)
	m.w1.fill(dist, KaimingTanhScale(embDim, blockSize))
	m.b1.fill(dist, outputScale)
	m.w2.fill(dist, outputScale)
	m.b2.fill(dist, outputScale)
	return m
}

// KaimingTanhScale is sqrt((5/3) / (embDim*blockSize)).
func KaimingTanhScale(embDim, blockSize int) float64 {
	return math.Sqrt((5.0 / 3.0) / float64(embDim*blockSize))
}

func (m *MLP) Kind() Kind         { return KindMLP }
func (m *MLP) VocabSize() int     { return m.c.Rows }
func (m *MLP) BlockSize() int     { return m.blockSize }
func (m *MLP) FullBatch() bool    { return false }
func (m *MLP) Experimental() bool { return false }

func (m *MLP) Params() []*Param {
	return []*Param{m.c, m.w1, m.b1, m.w2, m.b2}
}

func (m *MLP) Embeddings() *mat.Dense { return m.c.Snapshot() }

// concatEmbeddings builds one [blockSize*embDim] row per context.
func concatEmbeddings(contexts [][]int, table *Param, blockSize int) (*mat.Dense, error) {
	if len(contexts) == 0 {
		return nil, fmt.Errorf("%w: no contexts", ErrShape)
	}
	dim := table.Cols
	x := mat.NewDense(len(contexts), blockSize*dim, nil)
	for i, ctx := range contexts {
		if err := checkContext(ctx, blockSize, table.Rows); err != nil {
			return nil, err
		}
		row := x.RawRowView(i)
		for j, id := range ctx {
			copy(row[j*dim:(j+1)*dim], table.Data[id*dim:(id+1)*dim])
		}
	}
	return x, nil
}

func (m *MLP) Logits(contexts [][]int) (*mat.Dense, error) {
	x, err := concatEmbeddings(contexts, m.c, m.blockSize)
	if err != nil {
		return nil, err
	}
	var h mat.Dense
	h.Mul(x, m.w1.Dense())
	b1 := m.b1.Data
	h.Apply(func(_, j int, v float64) float64 { return math.Tanh(v + b1[j]) }, &h)

	var out mat.Dense
	out.Mul(&h, m.w2.Dense())
	b2 := m.b2.Data
	out.Apply(func(_, j int, v float64) float64 { return v + b2[j] }, &out)
	return &out, nil
}

func (m *MLP) RowLogits(context []int) ([]float64, error) {
	l, err := m.Logits([][]int{context})
	if err != nil {
		return nil, err
	}
	return mat.Row(nil, 0, l), nil
}

func (m *MLP) Distribution(context []int) ([]float64, error) {
	l, err := m.Logits([][]int{context})
	if err != nil {
		return nil, err
	}
	softmaxRows(l)
	return mat.Row(nil, 0, l), nil
}

// Loss is plain mean cross entropy; unlike BigramNet there is no weight
// penalty.
func (m *MLP) Loss(ds *dataset.Dataset) (float64, error) {
	l, err := m.Logits(ds.Contexts)
	if err != nil {
		return 0, err
	}
	return CrossEntropyLogits(l, ds.Targets)
}

func (m *MLP) BuildLoss(g *gorgonia.ExprGraph, batch int) (*LossGraph, error) {
	lg := newLossGraph(g, batch, m.blockSize, m.VocabSize(), m.Params())
	c, w1, b1, w2, b2 := lg.Learnables[0], lg.Learnables[1], lg.Learnables[2], lg.Learnables[3], lg.Learnables[4]

	x, err := embedConcat(lg.X, c, batch, m.blockSize, m.embDim)
	if err != nil {
		return nil, err
	}
	pre, err := affine(x, w1, b1)
	if err != nil {
		return nil, fmt.Errorf("hidden layer: %w", err)
	}
	h, err := gorgonia.Tanh(pre)
	if err != nil {
		return nil, err
	}
	logits, err := affine(h, w2, b2)
	if err != nil {
		return nil, fmt.Errorf("output layer: %w", err)
	}
	if lg.Loss, err = crossEntropyNode(logits, lg.Y); err != nil {
		return nil, fmt.Errorf("mlp cross entropy: %w", err)
	}
	return lg, nil
}
