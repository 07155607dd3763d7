package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config is the makemore configuration file (~/.config/makemore/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	Corpus string `yaml:"corpus"`
	Model  string `yaml:"model"`

	BlockSize    *int `yaml:"block_size"`
	EmbeddingDim *int `yaml:"embedding_dim"`
	Hidden       *int `yaml:"hidden"`
	Layers       *int `yaml:"layers"`

	Steps      *int     `yaml:"steps"`
	BatchSize  *int     `yaml:"batch_size"`
	LR         *float64 `yaml:"lr"`
	DecayedLR  *float64 `yaml:"decayed_lr"`
	DecayAfter *int     `yaml:"decay_after"`
	LogEvery   *int     `yaml:"log_every"`

	Experimental *bool `yaml:"experimental"`

	Samples     *int     `yaml:"samples"`
	MaxLength   *int     `yaml:"max_length"`
	Temperature *float64 `yaml:"temperature"`
	Seed        *uint64  `yaml:"seed"`

	// Output
	OutDir    string `yaml:"out_dir"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "makemore", "config.yaml")
}

// LoadConfig reads path, or the default location when path is empty. A
// missing default file yields a zero Config; a missing explicit file is an
// error.
func LoadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = configPath()
	}
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyCorpusConfig applies file values for the corpus and sampling flags
// that were not set on the command line.
func applyCorpusConfig(c *cli.Command, cfg Config, f *runFlags) {
	if cfg.Corpus != "" && !c.IsSet("corpus") {
		f.corpus = cfg.Corpus
	}
	setInt(c, "samples", cfg.Samples, &f.samples)
	setInt(c, "max-length", cfg.MaxLength, &f.maxLength)
	if cfg.Temperature != nil && !c.IsSet("temperature") {
		f.temperature = *cfg.Temperature
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		f.seed = *cfg.Seed
	}
}

// applyRunConfig applies file values for the model and training flags.
func applyRunConfig(c *cli.Command, cfg Config, f *runFlags) {
	applyCorpusConfig(c, cfg, f)
	if cfg.Model != "" && !c.IsSet("model") {
		f.model = cfg.Model
	}
	setInt(c, "block-size", cfg.BlockSize, &f.blockSize)
	setInt(c, "embedding-dim", cfg.EmbeddingDim, &f.embeddingDim)
	setInt(c, "hidden", cfg.Hidden, &f.hidden)
	setInt(c, "layers", cfg.Layers, &f.layers)
	setInt(c, "steps", cfg.Steps, &f.steps)
	setInt(c, "batch-size", cfg.BatchSize, &f.batchSize)
	setInt(c, "decay-after", cfg.DecayAfter, &f.decayAfter)
	setInt(c, "log-every", cfg.LogEvery, &f.logEvery)
	if cfg.Experimental != nil && !c.IsSet("experimental") {
		f.experimental = *cfg.Experimental
	}
	if cfg.LR != nil && !c.IsSet("lr") {
		f.lr = *cfg.LR
	}
	if cfg.DecayedLR != nil && !c.IsSet("decayed-lr") {
		f.decayedLR = *cfg.DecayedLR
	}
}

func applyOutConfig(c *cli.Command, cfg Config, out *string) {
	if cfg.OutDir != "" && !c.IsSet("out") {
		*out = cfg.OutDir
	}
}

func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

func setInt(c *cli.Command, name string, v *int, dst *int) {
	if v != nil && !c.IsSet(name) {
		*dst = *v
	}
}
