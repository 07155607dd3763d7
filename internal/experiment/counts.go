package experiment

import (
	"context"
	"fmt"

	"github.com/samcharles93/makemore/internal/inference"
	"github.com/samcharles93/makemore/internal/logger"
	"github.com/samcharles93/makemore/internal/model"
	"github.com/samcharles93/makemore/internal/report"
	"github.com/samcharles93/makemore/internal/vocab"
)

// CountsResult is the output of the frequency bigram run. No training is
// involved: the table is the model.
type CountsResult struct {
	RunID   string
	Vocab   *vocab.Vocab
	Counts  *model.Counts
	NLL     float64
	Samples []string
}

// RunCounts tallies bigrams over the whole corpus, reports the smoothed
// average negative log likelihood of the corpus and draws cfg.Samples words.
func RunCounts(ctx context.Context, cfg Config) (*CountsResult, error) {
	words, err := cfg.words()
	if err != nil {
		return nil, err
	}
	v, err := vocab.New(words, Sentinel, Sentinel)
	if err != nil {
		return nil, fmt.Errorf("build vocabulary: %w", err)
	}
	c, err := model.CountBigrams(words, v)
	if err != nil {
		return nil, err
	}
	nll, err := c.NLL(words)
	if err != nil {
		return nil, err
	}
	res := &CountsResult{RunID: report.NewRunID(), Vocab: v, Counts: c, NLL: nll}
	logger.FromContext(ctx).Info("bigram counts", "run", res.RunID, "words", len(words), "vocab", v.Size(), "nll", nll)

	engine, err := inference.NewEngine(c, v, cfg.rng(streamSample))
	if err != nil {
		return nil, err
	}
	req := inference.ResolveRequest(inference.RequestOptions{MaxLength: &cfg.MaxLength, Temperature: &cfg.Temperature})
	samples, err := engine.GenerateN(ctx, cfg.Samples, &req)
	if err != nil {
		return nil, err
	}
	for _, s := range samples {
		res.Samples = append(res.Samples, s.Text)
	}
	return res, nil
}
