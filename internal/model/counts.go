package model

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/samcharles93/makemore/internal/dataset"
	"github.com/samcharles93/makemore/internal/vocab"
)

type pair struct{ lhs, rhs int }

// Counts is the frequency bigram model: a dense table of how often token rhs
// follows token lhs in the corpus.
type Counts struct {
	v      *vocab.Vocab
	counts *Param
}

// CountBigrams accumulates pair counts in a map and then densifies them into
// a Vocab x Vocab table in one pass.
func CountBigrams(words []string, v *vocab.Vocab) (*Counts, error) {
	freq := make(map[pair]int)
	for _, w := range words {
		ids, err := v.Encode(w)
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", w, err)
		}
		prev := v.Opening()
		for _, id := range append(ids, v.Closing()) {
			freq[pair{prev, id}]++
			prev = id
		}
	}

	n := v.Size()
	p := newParam("counts", n, n)
	for k, c := range freq {
		p.Data[k.lhs*n+k.rhs] = float64(c)
	}
	return &Counts{v: v, counts: p}, nil
}

func (c *Counts) Kind() Kind        { return KindCounts }
func (c *Counts) VocabSize() int    { return c.v.Size() }
func (c *Counts) BlockSize() int    { return 1 }
func (c *Counts) Params() []*Param  { return []*Param{c.counts} }
func (c *Counts) Matrix() *mat.Dense { return c.counts.Snapshot() }

// Count returns how often rhs followed lhs.
func (c *Counts) Count(lhs, rhs int) float64 {
	return c.counts.Data[lhs*c.counts.Cols+rhs]
}

// Probabilities returns the row-normalised table after adding alpha to every
// cell. alpha=0 is the raw frequency distribution; alpha=1 is Laplace
// smoothing. Rows with no mass stay zero.
func (c *Counts) Probabilities(alpha float64) *mat.Dense {
	p := c.counts.Snapshot()
	r, _ := p.Dims()
	for i := 0; i < r; i++ {
		row := p.RawRowView(i)
		if alpha != 0 {
			floats.AddConst(alpha, row)
		}
		normalize(row)
	}
	return p
}

func (c *Counts) Distribution(context []int) ([]float64, error) {
	if err := checkContext(context, 1, c.VocabSize()); err != nil {
		return nil, err
	}
	row := slices.Clone(c.counts.Data[context[0]*c.counts.Cols : (context[0]+1)*c.counts.Cols])
	normalize(row)
	return row, nil
}

// Logits returns log-probabilities of the unsmoothed table.
func (c *Counts) Logits(contexts [][]int) (*mat.Dense, error) {
	if len(contexts) == 0 {
		return nil, fmt.Errorf("%w: no contexts", ErrShape)
	}
	probs := c.Probabilities(0)
	out := mat.NewDense(len(contexts), c.VocabSize(), nil)
	for i, ctx := range contexts {
		if err := checkContext(ctx, 1, c.VocabSize()); err != nil {
			return nil, err
		}
		for j := 0; j < c.VocabSize(); j++ {
			out.Set(i, j, math.Log(probs.At(ctx[0], j)))
		}
	}
	return out, nil
}

// Loss is the average negative log likelihood of ds under the Laplace
// smoothed table, so unseen pairs never produce an infinite loss.
func (c *Counts) Loss(ds *dataset.Dataset) (float64, error) {
	if ds.BlockSize != 1 {
		return 0, fmt.Errorf("%w: count model needs block size 1, got %d", ErrShape, ds.BlockSize)
	}
	if ds.Len() == 0 {
		return 0, fmt.Errorf("%w: empty dataset", ErrShape)
	}
	probs := c.Probabilities(1)
	rows := mat.NewDense(ds.Len(), c.VocabSize(), nil)
	for i, ctx := range ds.Contexts {
		if err := checkContext(ctx, 1, c.VocabSize()); err != nil {
			return 0, err
		}
		rows.SetRow(i, probs.RawRowView(ctx[0]))
	}
	return CrossEntropy(rows, ds.Targets)
}

// NLL is the smoothed average negative log likelihood over words.
func (c *Counts) NLL(words []string) (float64, error) {
	ds, err := dataset.Build(words, c.v, 1)
	if err != nil {
		return 0, err
	}
	return c.Loss(ds)
}


// normalize divides each cell by the row total so the result equals direct
// counting exactly. Rows with no mass are left as they are.
func normalize(row []float64) {
	s := floats.Sum(row)
	if s <= 0 {
		return
	}
	for j := range row {
		row[j] /= s
	}
}
