package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/makemore/internal/experiment"
	"github.com/samcharles93/makemore/internal/inference"
	"github.com/samcharles93/makemore/internal/model"
)

var (
	configFile string
	logLevel   string
	logFormat  string
	debug      bool

	// fileConfig is loaded once before any command runs.
	fileConfig Config
)

// runFlags holds the settings shared by train, sweep and serve.
type runFlags struct {
	corpus       string
	model        string
	blockSize    int
	embeddingDim int
	hidden       int
	layers       int
	steps        int
	batchSize    int
	lr           float64
	decayedLR    float64
	decayAfter   int
	logEvery     int
	samples      int
	maxLength    int
	temperature  float64
	seed         uint64
	experimental bool
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "config",
		Usage:       "path to config.yaml (default ~/.config/makemore/config.yaml)",
		Destination: &configFile,
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func corpusFlags(f *runFlags) []cli.Flag {
	d := experiment.Defaults()
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "corpus",
			Usage:       "newline-separated word list (default: built-in names)",
			Destination: &f.corpus,
		},
		&cli.IntFlag{
			Name:        "samples",
			Aliases:     []string{"n"},
			Usage:       "number of words to sample after training",
			Value:       d.Samples,
			Destination: &f.samples,
		},
		&cli.IntFlag{
			Name:        "max-length",
			Usage:       "maximum characters per sample",
			Value:       inference.DefaultMaxLength,
			Destination: &f.maxLength,
		},
		&cli.Float64Flag{
			Name:        "temperature",
			Aliases:     []string{"temp", "t"},
			Usage:       "sampling temperature; negative selects greedy decoding",
			Value:       1,
			Destination: &f.temperature,
		},
		&cli.Uint64Flag{
			Name:        "seed",
			Usage:       "seed for initialisation, splitting, batching and sampling",
			Value:       d.Seed,
			Destination: &f.seed,
		},
	}
}

func modelFlags(f *runFlags) []cli.Flag {
	d := experiment.Defaults()
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "model variant (bigram-net, mlp, mlp-bn)",
			Value:       string(model.KindMLP),
			Destination: &f.model,
		},
		&cli.IntFlag{
			Name:        "block-size",
			Usage:       "context length in characters",
			Value:       d.BlockSize,
			Destination: &f.blockSize,
		},
		&cli.IntFlag{
			Name:        "embedding-dim",
			Usage:       "embedding dimensions per character",
			Value:       d.EmbeddingDim,
			Destination: &f.embeddingDim,
		},
		&cli.IntFlag{
			Name:        "hidden",
			Usage:       "hidden layer width",
			Value:       d.Hidden,
			Destination: &f.hidden,
		},
		&cli.IntFlag{
			Name:        "layers",
			Usage:       "hidden blocks of the batch-normalised MLP",
			Value:       5,
			Destination: &f.layers,
		},
		&cli.IntFlag{
			Name:        "steps",
			Usage:       "optimisation steps",
			Value:       d.Train.Steps,
			Destination: &f.steps,
		},
		&cli.IntFlag{
			Name:        "batch-size",
			Usage:       "minibatch size (ignored by full-batch models)",
			Value:       d.Train.BatchSize,
			Destination: &f.batchSize,
		},
		&cli.Float64Flag{
			Name:        "lr",
			Usage:       "learning rate",
			Value:       d.Train.LearningRate,
			Destination: &f.lr,
		},
		&cli.Float64Flag{
			Name:        "decayed-lr",
			Usage:       "learning rate from --decay-after onwards",
			Value:       d.Train.DecayedLearningRate,
			Destination: &f.decayedLR,
		},
		&cli.IntFlag{
			Name:        "decay-after",
			Usage:       "first step trained with --decayed-lr",
			Value:       d.Train.DecayAfter,
			Destination: &f.decayAfter,
		},
		&cli.IntFlag{
			Name:        "log-every",
			Usage:       "log the loss every N steps (0 disables)",
			Value:       d.Train.LogEvery,
			Destination: &f.logEvery,
		},
		&cli.BoolFlag{
			Name:        "experimental",
			Usage:       "allow training variants known not to converge (mlp-bn)",
			Destination: &f.experimental,
		},
	}
}

// experimentConfig maps the parsed flags onto an experiment configuration.
func (f *runFlags) experimentConfig() experiment.Config {
	cfg := experiment.Defaults()
	cfg.Corpus = f.corpus
	cfg.Model = model.Kind(f.model)
	cfg.BlockSize = f.blockSize
	cfg.EmbeddingDim = f.embeddingDim
	cfg.Hidden = f.hidden
	cfg.Layers = f.layers
	cfg.Train.Steps = f.steps
	cfg.Train.BatchSize = f.batchSize
	cfg.Train.LearningRate = f.lr
	cfg.Train.DecayedLearningRate = f.decayedLR
	cfg.Train.DecayAfter = f.decayAfter
	cfg.Train.LogEvery = f.logEvery
	cfg.Train.AllowExperimental = f.experimental
	cfg.Samples = f.samples
	cfg.MaxLength = f.maxLength
	cfg.Temperature = f.temperature
	cfg.Seed = f.seed
	return cfg
}
