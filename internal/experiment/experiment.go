// Package experiment wires a full run together: corpus, vocabulary, split
// datasets, model construction, training, evaluation and sampling.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/samcharles93/makemore/internal/corpus"
	"github.com/samcharles93/makemore/internal/dataset"
	"github.com/samcharles93/makemore/internal/inference"
	"github.com/samcharles93/makemore/internal/logger"
	"github.com/samcharles93/makemore/internal/model"
	"github.com/samcharles93/makemore/internal/report"
	"github.com/samcharles93/makemore/internal/train"
	"github.com/samcharles93/makemore/internal/vocab"
)

// Sentinel is the boundary token used by every command.
const Sentinel = "."

var ErrConfig = errors.New("experiment: invalid config")

// Random streams. Each concern draws from its own stream so that, for
// example, changing the sample count does not change the trained weights.
const (
	streamInit uint64 = iota + 1
	streamSplit
	streamTrain
	streamSample
)

type Config struct {
	// Corpus is a path to a newline-separated word list; empty selects the
	// built-in names.
	Corpus string
	// Words overrides Corpus when set.
	Words []string

	Model        model.Kind
	BlockSize    int
	EmbeddingDim int
	Hidden       int
	Layers       int

	Train train.Config

	TrainFrac float64
	DevFrac   float64

	Samples     int
	MaxLength   int
	Temperature float64

	Seed uint64
}

// Defaults are the settings of the reference MLP run.
func Defaults() Config {
	return Config{
		Model:        model.KindMLP,
		BlockSize:    3,
		EmbeddingDim: 10,
		Hidden:       200,
		Train: train.Config{
			Steps:               200_000,
			BatchSize:           32,
			LearningRate:        0.1,
			DecayedLearningRate: 0.01,
			DecayAfter:          train.DefaultDecayAfter,
			LogEvery:            10_000,
		},
		TrainFrac: 0.8,
		DevFrac:   0.1,
		Samples:   20,
		MaxLength: inference.DefaultMaxLength,
		Seed:      2147483647,
	}
}

func (c Config) rng(stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(c.Seed, stream))
}

// Result is everything a finished run produced. Model and Vocab stay usable
// for further sampling.
type Result struct {
	RunID    string
	Config   Config
	Vocab    *vocab.Vocab
	Model    model.Trainable
	Counts   *model.Counts
	History  *train.History
	Elapsed  time.Duration
	Words    int
	Examples int

	TrainLoss float64
	// DevLoss and TestLoss are zero when the split left no words.
	DevLoss  float64
	TestLoss float64

	Samples []string

	mu     sync.Mutex
	engine *inference.Engine
}

func (c Config) words() ([]string, error) {
	if len(c.Words) > 0 {
		return c.Words, nil
	}
	return corpus.Load(c.Corpus)
}

// Run trains the configured model. Cancelling ctx stops training after the
// current step; the partial result is still returned together with the
// context error.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	log := logger.FromContext(ctx)
	if cfg.TrainFrac <= 0 || cfg.TrainFrac > 1 || cfg.DevFrac < 0 || cfg.TrainFrac+cfg.DevFrac > 1 {
		return nil, fmt.Errorf("%w: split %v/%v", ErrConfig, cfg.TrainFrac, cfg.DevFrac)
	}
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
	trainWords, devWords, testWords := dataset.Split(words, cfg.rng(streamSplit), cfg.TrainFrac, cfg.DevFrac)
	trainSet, err := dataset.Build(trainWords, v, blockSize)
	if err != nil {
		return nil, err
	}
	if trainSet.Len() == 0 {
		return nil, fmt.Errorf("%w: training split is empty", dataset.ErrEmpty)
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
	counts, err := model.CountBigrams(trainWords, v)
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:    report.NewRunID(),
		Config:   cfg,
		Vocab:    v,
		Model:    m,
		Counts:   counts,
		Words:    len(words),
		Examples: trainSet.Len(),
	}
	log = log.With("run", res.RunID)
	log.Info("dataset ready", "words", len(words), "vocab", v.Size(), "train_examples", trainSet.Len(),
		"train_words", len(trainWords), "dev_words", len(devWords), "test_words", len(testWords))

	start := time.Now()
	tr, err := train.New(m, trainSet, cfg.rng(streamTrain), cfg.Train, log)
	if err != nil {
		return nil, err
	}
	runErr := tr.Run(ctx)
	_ = tr.Close()
	res.History = tr.History()
	res.Elapsed = time.Since(start)
	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return nil, runErr
	}

	if res.TrainLoss, err = m.Loss(trainSet); err != nil {
		return nil, fmt.Errorf("evaluate train: %w", err)
	}
	if res.DevLoss, err = evaluate(m, v, devWords, blockSize); err != nil {
		return nil, fmt.Errorf("evaluate dev: %w", err)
	}
	if res.TestLoss, err = evaluate(m, v, testWords, blockSize); err != nil {
		return nil, fmt.Errorf("evaluate test: %w", err)
	}
	log.Info("evaluation", "train_loss", res.TrainLoss, "dev_loss", res.DevLoss, "test_loss", res.TestLoss,
		"elapsed", res.Elapsed)

	if res.engine, err = inference.NewEngine(m, v, cfg.rng(streamSample)); err != nil {
		return nil, err
	}
	if res.Samples, err = res.Sample(context.WithoutCancel(ctx), cfg.Samples, cfg.Temperature); err != nil {
		return nil, err
	}
	return res, runErr
}

func evaluate(m model.Model, v *vocab.Vocab, words []string, blockSize int) (float64, error) {
	if len(words) == 0 {
		return 0, nil
	}
	ds, err := dataset.Build(words, v, blockSize)
	if err != nil {
		return 0, err
	}
	return m.Loss(ds)
}

// Sample draws n words from the trained model, continuing the run's sample
// stream. A zero temperature means 1.
func (r *Result) Sample(ctx context.Context, n int, temperature float64) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req := inference.ResolveRequest(inference.RequestOptions{
		MaxLength:   &r.Config.MaxLength,
		Temperature: &temperature,
	})
	results, err := r.engine.GenerateN(ctx, n, &req)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(results))
	for i, s := range results {
		out[i] = s.Text
	}
	return out, nil
}
