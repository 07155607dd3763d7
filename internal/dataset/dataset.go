package dataset

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/samcharles93/makemore/internal/vocab"
)

var (
	ErrBlockSize = errors.New("dataset: block size must be positive")
	ErrEmpty     = errors.New("dataset: no examples")
)

// Dataset holds parallel context windows and next-token targets.
type Dataset struct {
	BlockSize int
	Contexts  [][]int // [n][BlockSize]
	Targets   []int   // [n]
}

// Build turns words into sliding-window training examples. Every word yields
// len(word)+1 examples: one per character plus a final step predicting the
// closing sentinel. Windows start as BlockSize copies of the opening index.
func Build(words []string, v *vocab.Vocab, blockSize int) (*Dataset, error) {
	if blockSize < 1 {
		return nil, fmt.Errorf("%w: %d", ErrBlockSize, blockSize)
	}
	ds := &Dataset{BlockSize: blockSize}
	window := make([]int, blockSize)
	for _, w := range words {
		ids, err := v.Encode(w)
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", w, err)
		}
		ids = append(ids, v.Closing())

		for i := range window {
			window[i] = v.Opening()
		}
		for _, next := range ids {
			ctx := make([]int, blockSize)
			copy(ctx, window)
			ds.Contexts = append(ds.Contexts, ctx)
			ds.Targets = append(ds.Targets, next)

			copy(window, window[1:])
			window[blockSize-1] = next
		}
	}
	return ds, nil
}

func (d *Dataset) Len() int { return len(d.Targets) }

// Subset returns a dataset that shares context rows for the given indices.
func (d *Dataset) Subset(idx []int) *Dataset {
	out := &Dataset{
		BlockSize: d.BlockSize,
		Contexts:  make([][]int, len(idx)),
		Targets:   make([]int, len(idx)),
	}
	for i, j := range idx {
		out.Contexts[i] = d.Contexts[j]
		out.Targets[i] = d.Targets[j]
	}
	return out
}

// SampleIndices draws n example indices uniformly with replacement.
func (d *Dataset) SampleIndices(rng *rand.Rand, n int) ([]int, error) {
	if d.Len() == 0 {
		return nil, ErrEmpty
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rng.IntN(d.Len())
	}
	return idx, nil
}

// Split shuffles a copy of words and cuts it into train, dev and test lists
// at the trainFrac and trainFrac+devFrac boundaries.
func Split(words []string, rng *rand.Rand, trainFrac, devFrac float64) (train, dev, test []string) {
	shuffled := make([]string, len(words))
	copy(shuffled, words)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	n1 := int(trainFrac * float64(len(shuffled)))
	n2 := int((trainFrac + devFrac) * float64(len(shuffled)))
	n1 = min(max(n1, 0), len(shuffled))
	n2 = min(max(n2, n1), len(shuffled))
	return shuffled[:n1], shuffled[n1:n2], shuffled[n2:]
}
