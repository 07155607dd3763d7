// Package model holds the character-level language models: a count table, a
// single-layer neural bigram and an embedding MLP. Trainable models describe
// their forward and loss computation as a gorgonia expression graph; read-only
// evaluation and sampling run the same forward pass on gonum matrices.
package model

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	"gorgonia.org/gorgonia"

	"github.com/samcharles93/makemore/internal/dataset"
)

var (
	ErrShape       = errors.New("model: shape mismatch")
	ErrUnknownKind = errors.New("model: unknown kind")
	ErrNotTrained  = errors.New("model: value not available")
)

// Kind names a model variant.
type Kind string

const (
	KindCounts       Kind = "bigram"
	KindBigramNet    Kind = "bigram-net"
	KindMLP          Kind = "mlp"
	KindBatchNormMLP Kind = "mlp-bn"
)

// Model is the capability set shared by every variant.
type Model interface {
	Kind() Kind
	VocabSize() int
	BlockSize() int
	// Params returns the model's parameter storage. Callers must treat it as
	// read-only; only a trainer writes to it.
	Params() []*Param
	// Logits returns one row of scores per context: log-probabilities for the
	// bigram variants, unnormalised logits for the MLPs.
	Logits(contexts [][]int) (*mat.Dense, error)
	// Distribution returns the normalised next-token distribution.
	Distribution(context []int) ([]float64, error)
	// Loss evaluates the variant's training objective over ds.
	Loss(ds *dataset.Dataset) (float64, error)
}

// Scorer is implemented by models whose natural output is unnormalised
// logits. Samplers apply their own softmax to these.
type Scorer interface {
	RowLogits(context []int) ([]float64, error)
}

// Embedder exposes a learned per-token embedding table.
type Embedder interface {
	Embeddings() *mat.Dense
}

// Trainable models can express forward+loss as a gorgonia graph.
type Trainable interface {
	Model
	// FullBatch reports whether every step trains on the whole dataset.
	FullBatch() bool
	// BuildLoss adds input placeholders, the forward pass and the loss for a
	// fixed batch size to g.
	BuildLoss(g *gorgonia.ExprGraph, batch int) (*LossGraph, error)
	// Experimental marks variants that are known not to converge.
	Experimental() bool
}

// Param is a named row-major matrix owned by a model.
type Param struct {
	Name       string
	Rows, Cols int
	Data       []float64
}

func newParam(name string, rows, cols int) *Param {
	return &Param{Name: name, Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// Dense returns a gonum view sharing the parameter's storage.
func (p *Param) Dense() *mat.Dense {
	return mat.NewDense(p.Rows, p.Cols, p.Data)
}

// Snapshot returns a copy of the parameter as a gonum matrix.
func (p *Param) Snapshot() *mat.Dense {
	return mat.DenseCopyOf(p.Dense())
}

func (p *Param) fill(dist interface{ Rand() float64 }, scale float64) {
	for i := range p.Data {
		p.Data[i] = dist.Rand() * scale
	}
}

func (p *Param) fillConst(v float64) {
	for i := range p.Data {
		p.Data[i] = v
	}
}

func gaussian(rng *rand.Rand) distuv.Normal {
	return distuv.Normal{Mu: 0, Sigma: 1, Src: rng}
}

// Config carries the hyperparameters needed to construct any variant.
type Config struct {
	Kind         Kind
	VocabSize    int
	BlockSize    int
	EmbeddingDim int
	Hidden       int
	// Layers is the number of hidden Linear->BatchNorm->Tanh blocks of the
	// batch-normalised MLP.
	Layers int
}

// New constructs a trainable variant with parameters drawn from rng.
func New(cfg Config, rng *rand.Rand) (Trainable, error) {
	if cfg.VocabSize < 1 {
		return nil, fmt.Errorf("%w: vocab size %d", ErrShape, cfg.VocabSize)
	}
	switch cfg.Kind {
	case KindBigramNet:
		return NewBigramNet(cfg.VocabSize, rng), nil
	case KindMLP:
		if cfg.BlockSize < 1 || cfg.EmbeddingDim < 1 || cfg.Hidden < 1 {
			return nil, fmt.Errorf("%w: block=%d emb=%d hidden=%d", ErrShape, cfg.BlockSize, cfg.EmbeddingDim, cfg.Hidden)
		}
		return NewMLP(cfg.VocabSize, cfg.BlockSize, cfg.EmbeddingDim, cfg.Hidden, rng), nil
	case KindBatchNormMLP:
		if cfg.BlockSize < 1 || cfg.EmbeddingDim < 1 || cfg.Hidden < 1 {
			return nil, fmt.Errorf("%w: block=%d emb=%d hidden=%d", ErrShape, cfg.BlockSize, cfg.EmbeddingDim, cfg.Hidden)
		}
		layers := cfg.Layers
		if layers <= 0 {
			layers = 5
		}
		return NewBatchNormMLP(cfg.VocabSize, cfg.BlockSize, cfg.EmbeddingDim, cfg.Hidden, layers, rng), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

func checkContext(ctx []int, blockSize, vocab int) error {
	if len(ctx) != blockSize {
		return fmt.Errorf("%w: context length %d, want %d", ErrShape, len(ctx), blockSize)
	}
	for _, id := range ctx {
		if id < 0 || id >= vocab {
			return fmt.Errorf("%w: token index %d outside [0,%d)", ErrShape, id, vocab)
		}
	}
	return nil
}
