package model

import (
	"fmt"
	"slices"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samcharles93/makemore/internal/dataset"
)

// LossGraph is the forward+loss expression of one variant for a fixed batch
// size. Learnables are fresh nodes initialised from the model's parameters;
// Sync copies their values back after a solver step.
type LossGraph struct {
	Batch      int
	X          *gorgonia.Node // one-hot contexts [Batch*BlockSize x Vocab]
	Y          *gorgonia.Node // one-hot targets [Batch x Vocab]
	Loss       *gorgonia.Node
	Learnables []*gorgonia.Node

	blockSize int
	vocab     int
	params    []*Param
	afterSync []func() error
}

func newLossGraph(g *gorgonia.ExprGraph, batch, blockSize, vocab int, params []*Param) *LossGraph {
	lg := &LossGraph{
		Batch:     batch,
		blockSize: blockSize,
		vocab:     vocab,
		params:    params,
	}
	lg.X = gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(batch*blockSize, vocab),
		gorgonia.WithName("x"))
	lg.Y = gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(batch, vocab),
		gorgonia.WithName("y"))
	for _, p := range params {
		lg.Learnables = append(lg.Learnables, paramNode(g, p))
	}
	return lg
}

func paramNode(g *gorgonia.ExprGraph, p *Param) *gorgonia.Node {
	t := tensor.New(
		tensor.WithShape(p.Rows, p.Cols),
		tensor.WithBacking(slices.Clone(p.Data)),
	)
	return gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(p.Rows, p.Cols),
		gorgonia.WithName(p.Name),
		gorgonia.WithValue(t))
}

// Bind one-hot encodes the examples idx of ds into the X and Y placeholders.
func (lg *LossGraph) Bind(ds *dataset.Dataset, idx []int) error {
	if len(idx) != lg.Batch {
		return fmt.Errorf("%w: batch of %d for graph of %d", ErrShape, len(idx), lg.Batch)
	}
	if ds.BlockSize != lg.blockSize {
		return fmt.Errorf("%w: dataset block size %d, model %d", ErrShape, ds.BlockSize, lg.blockSize)
	}
	x := make([]float64, lg.Batch*lg.blockSize*lg.vocab)
	y := make([]float64, lg.Batch*lg.vocab)
	for row, i := range idx {
		ctx := ds.Contexts[i]
		if err := checkContext(ctx, lg.blockSize, lg.vocab); err != nil {
			return err
		}
		for j, id := range ctx {
			x[(row*lg.blockSize+j)*lg.vocab+id] = 1
		}
		t := ds.Targets[i]
		if t < 0 || t >= lg.vocab {
			return fmt.Errorf("%w: target %d outside [0,%d)", ErrShape, t, lg.vocab)
		}
		y[row*lg.vocab+t] = 1
	}
	xt := tensor.New(tensor.WithShape(lg.Batch*lg.blockSize, lg.vocab), tensor.WithBacking(x))
	yt := tensor.New(tensor.WithShape(lg.Batch, lg.vocab), tensor.WithBacking(y))
	if err := gorgonia.Let(lg.X, xt); err != nil {
		return fmt.Errorf("bind inputs: %w", err)
	}
	if err := gorgonia.Let(lg.Y, yt); err != nil {
		return fmt.Errorf("bind targets: %w", err)
	}
	return nil
}

// LossValue returns the scalar loss computed by the last run.
func (lg *LossGraph) LossValue() (float64, error) {
	v := lg.Loss.Value()
	if v == nil {
		return 0, fmt.Errorf("%w: loss", ErrNotTrained)
	}
	switch d := v.Data().(type) {
	case float64:
		return d, nil
	case []float64:
		if len(d) == 1 {
			return d[0], nil
		}
	}
	return 0, fmt.Errorf("%w: loss has type %T", ErrShape, v.Data())
}

// Sync copies the learnable node values into the model's parameters and runs
// any variant-specific bookkeeping.
func (lg *LossGraph) Sync() error {
	for i, n := range lg.Learnables {
		v := n.Value()
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotTrained, n.Name())
		}
		data, ok := v.Data().([]float64)
		if !ok || len(data) != len(lg.params[i].Data) {
			return fmt.Errorf("%w: parameter %s", ErrShape, lg.params[i].Name)
		}
		copy(lg.params[i].Data, data)
	}
	for _, fn := range lg.afterSync {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

// embedConcat looks up blockSize embeddings per example by multiplying the
// one-hot inputs with the table and reshapes them into one row per example.
func embedConcat(x, table *gorgonia.Node, batch, blockSize, dim int) (*gorgonia.Node, error) {
	emb, err := gorgonia.Mul(x, table)
	if err != nil {
		return nil, fmt.Errorf("embedding lookup: %w", err)
	}
	flat, err := gorgonia.Reshape(emb, tensor.Shape{batch, blockSize * dim})
	if err != nil {
		return nil, fmt.Errorf("embedding concat: %w", err)
	}
	return flat, nil
}

// affine computes x*w + b with b a [1 x out] row broadcast over the batch.
func affine(x, w, b *gorgonia.Node) (*gorgonia.Node, error) {
	xw, err := gorgonia.Mul(x, w)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return xw, nil
	}
	return gorgonia.BroadcastAdd(xw, b, nil, []byte{0})
}

// crossEntropyNode is -mean(sum(y * logSoftmax(logits), 1)). The row
// softmax is built from elementwise ops and a row sum so every row of the
// batch receives a gradient.
func crossEntropyNode(logits, y *gorgonia.Node) (*gorgonia.Node, error) {
	logp, err := logSoftmaxRows(logits)
	if err != nil {
		return nil, fmt.Errorf("log softmax: %w", err)
	}
	picked, err := gorgonia.HadamardProd(y, logp)
	if err != nil {
		return nil, err
	}
	perRow, err := gorgonia.Sum(picked, 1)
	if err != nil {
		return nil, err
	}
	mean, err := gorgonia.Mean(perRow)
	if err != nil {
		return nil, err
	}
	return gorgonia.Neg(mean)
}

// logSoftmaxRows computes x - log(sum(exp(x), 1)) for an [N x V] matrix.
func logSoftmaxRows(x *gorgonia.Node) (*gorgonia.Node, error) {
	shape := x.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("%w: logits of shape %v", ErrShape, shape)
	}
	exp, err := gorgonia.Exp(x)
	if err != nil {
		return nil, err
	}
	sum, err := gorgonia.Sum(exp, 1)
	if err != nil {
		return nil, err
	}
	if sum, err = gorgonia.Reshape(sum, tensor.Shape{shape[0], 1}); err != nil {
		return nil, err
	}
	logZ, err := gorgonia.Log(sum)
	if err != nil {
		return nil, err
	}
	return gorgonia.BroadcastSub(x, logZ, nil, []byte{1})
}
