package model

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/gorgonia"

	"github.com/samcharles93/makemore/internal/dataset"
)

// l2Scale weights the mean squared weight penalty of the neural bigram loss.
const l2Scale = 0.01

// BigramNet is a single V x V weight matrix applied to a one-hot encoding of
// the previous token, followed by softmax. It always trains on the full
// dataset.
type BigramNet struct {
	w *Param
}

func NewBigramNet(vocab int, rng *rand.Rand) *BigramNet {
	w := newParam("w", vocab, vocab)
	w.fill(gaussian(rng), 1)
	return &BigramNet{w: w}
}

func (b *BigramNet) Kind() Kind         { return KindBigramNet }
func (b *BigramNet) VocabSize() int     { return b.w.Rows }
func (b *BigramNet) BlockSize() int     { return 1 }
func (b *BigramNet) Params() []*Param   { return []*Param{b.w} }
func (b *BigramNet) FullBatch() bool    { return true }
func (b *BigramNet) Experimental() bool { return false }

// Logits returns log-probabilities; the one-hot product selects a row of W.
func (b *BigramNet) Logits(contexts [][]int) (*mat.Dense, error) {
	probs, err := b.probs(contexts)
	if err != nil {
		return nil, err
	}
	probs.Apply(func(_, _ int, v float64) float64 { return math.Log(v) }, probs)
	return probs, nil
}

func (b *BigramNet) probs(contexts [][]int) (*mat.Dense, error) {
	if len(contexts) == 0 {
		return nil, fmt.Errorf("%w: no contexts", ErrShape)
	}
	v := b.VocabSize()
	out := mat.NewDense(len(contexts), v, nil)
	w := b.w.Dense()
	for i, ctx := range contexts {
		if err := checkContext(ctx, 1, v); err != nil {
			return nil, err
		}
		out.SetRow(i, w.RawRowView(ctx[0]))
	}
	softmaxRows(out)
	return out, nil
}

func (b *BigramNet) Distribution(context []int) ([]float64, error) {
	p, err := b.probs([][]int{context})
	if err != nil {
		return nil, err
	}
	return mat.Row(nil, 0, p), nil
}

// Loss is cross entropy plus 0.01 * mean(W^2).
func (b *BigramNet) Loss(ds *dataset.Dataset) (float64, error) {
	p, err := b.probs(ds.Contexts)
	if err != nil {
		return 0, err
	}
	ce, err := CrossEntropy(p, ds.Targets)
	if err != nil {
		return 0, err
	}
	return ce + l2Penalty(b.w.Data, l2Scale), nil
}

func (b *BigramNet) BuildLoss(g *gorgonia.ExprGraph, batch int) (*LossGraph, error) {
	lg := newLossGraph(g, batch, 1, b.VocabSize(), b.Params())
	w := lg.Learnables[0]

	logits, err := gorgonia.Mul(lg.X, w)
	if err != nil {
		return nil, fmt.Errorf("bigram logits: %w", err)
	}
	ce, err := crossEntropyNode(logits, lg.Y)
	if err != nil {
		return nil, fmt.Errorf("bigram cross entropy: %w", err)
	}
	sq, err := gorgonia.Square(w)
	if err != nil {
		return nil, err
	}
	meanSq, err := gorgonia.Mean(sq)
	if err != nil {
		return nil, err
	}
	reg, err := gorgonia.Mul(gorgonia.NewConstant(l2Scale), meanSq)
	if err != nil {
		return nil, err
	}
	if lg.Loss, err = gorgonia.Add(ce, reg); err != nil {
		return nil, fmt.Errorf("bigram loss: %w", err)
	}
	return lg, nil
}
