// Package inference generates words from a model one character at a time.
package inference

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/samcharles93/makemore/internal/logits"
	"github.com/samcharles93/makemore/internal/model"
	"github.com/samcharles93/makemore/internal/vocab"
)

// Engine samples from a model. It is not safe for concurrent use because it
// advances a single random stream.
type Engine struct {
	model model.Model
	vocab *vocab.Vocab
	rng   *rand.Rand
}

func NewEngine(m model.Model, v *vocab.Vocab, rng *rand.Rand) (*Engine, error) {
	if m.VocabSize() != v.Size() {
		return nil, fmt.Errorf("%w: model vocab %d, vocabulary %d", model.ErrShape, m.VocabSize(), v.Size())
	}
	return &Engine{model: m, vocab: v, rng: rng}, nil
}

// Generate starts from a window of opening tokens and repeatedly samples the
// next character, sliding the window, until the closing token is drawn or
// req.MaxLength characters have been produced. The closing token is never
// part of the result.
func (e *Engine) Generate(ctx context.Context, req *Request, stream StreamFunc) (*Result, error) {
	start := time.Now()
	maxLen := req.MaxLength
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}
	sampler := logits.NewSampler(logits.SamplerConfig{Temperature: req.Temperature, TopK: req.TopK})
	scorer, hasLogits := e.model.(model.Scorer)

	window := make([]int, e.model.BlockSize())
	for i := range window {
		window[i] = e.vocab.Opening()
	}
	res := &Result{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(res.Tokens) == maxLen {
			res.Truncated = true
			break
		}
		next, err := e.next(sampler, scorer, hasLogits, window)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", res.Stats.Steps, err)
		}
		res.Stats.Steps++
		if next == e.vocab.Closing() {
			break
		}
		res.Tokens = append(res.Tokens, next)
		if stream != nil {
			tok, _ := e.vocab.Token(next)
			stream(tok)
		}
		copy(window, window[1:])
		window[len(window)-1] = next
	}
	res.Text = e.vocab.Decode(res.Tokens)
	res.Stats.Duration = time.Since(start)
	return res, nil
}

func (e *Engine) next(s *logits.Sampler, scorer model.Scorer, hasLogits bool, window []int) (int, error) {
	if hasLogits {
		row, err := scorer.RowLogits(window)
		if err != nil {
			return 0, err
		}
		return s.SampleLogits(e.rng, row)
	}
	p, err := e.model.Distribution(window)
	if err != nil {
		return 0, err
	}
	return s.SampleProbs(e.rng, p)
}

// GenerateN draws n independent samples in order.
func (e *Engine) GenerateN(ctx context.Context, n int, req *Request) ([]*Result, error) {
	out := make([]*Result, 0, n)
	for i := 0; i < n; i++ {
		r, err := e.Generate(ctx, req, nil)
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}
