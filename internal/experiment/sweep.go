package experiment

import (
	"context"
	"fmt"

	"github.com/samcharles93/makemore/internal/dataset"
	"github.com/samcharles93/makemore/internal/model"
	"github.com/samcharles93/makemore/internal/train"
	"github.com/samcharles93/makemore/internal/vocab"
)

// RunSweep builds the configured model on the training split and runs a
// learning-rate sweep over rates.
func RunSweep(ctx context.Context, cfg Config, rates []float64) ([]train.RatePoint, error) {
	words, err := cfg.words()
	if err != nil {
		return nil, err
	}
	v, err := vocab.New(words, Sentinel, Sentinel)
	if err != nil {
		return nil, fmt.Errorf("build vocabulary: %w", err)
	}
	blockSize := cfg.BlockSize
	if cfg.Model == model.KindBigramNet {
		blockSize = 1
	}
	trainWords, _, _ := dataset.Split(words, cfg.rng(streamSplit), cfg.TrainFrac, cfg.DevFrac)
	ds, err := dataset.Build(trainWords, v, blockSize)
	if err != nil {
		return nil, err
	}
	m, err := model.New(model.Config{
		Kind:         cfg.Model,
		VocabSize:    v.Size(),
		BlockSize:    blockSize,
		EmbeddingDim: cfg.EmbeddingDim,
		Hidden:       cfg.Hidden,
		Layers:       cfg.Layers,
	}, cfg.rng(streamInit))
	if err != nil {
		return nil, err
	}
	return train.Sweep(ctx, m, ds, cfg.rng(streamTrain), cfg.Train.BatchSize, rates)
}
