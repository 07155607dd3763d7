// Package train runs minibatch stochastic gradient descent over a trainable
// model's gorgonia loss graph.
package train

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gorgonia.org/gorgonia"

	"github.com/samcharles93/makemore/internal/dataset"
	"github.com/samcharles93/makemore/internal/logger"
	"github.com/samcharles93/makemore/internal/model"
)

// DefaultDecayAfter is the step at which the learning rate switches to its
// decayed value.
const DefaultDecayAfter = 100_000

var (
	ErrConfig       = errors.New("train: invalid config")
	ErrState        = errors.New("train: trainer already ran")
	ErrExperimental = errors.New("train: experimental model not enabled")
	ErrDiverged     = errors.New("train: loss is not finite")
)

// State is the trainer lifecycle.
type State int

const (
	StateInitialized State = iota
	StateTraining
	StateStopped
	StateConverged
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateTraining:
		return "training"
	case StateStopped:
		return "stopped"
	case StateConverged:
		return "converged"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config holds the optimisation hyperparameters.
type Config struct {
	Steps               int
	BatchSize           int
	LearningRate        float64
	DecayedLearningRate float64
	// DecayAfter is the first step trained with DecayedLearningRate. Zero
	// means DefaultDecayAfter.
	DecayAfter int
	// LogEvery controls progress logging; zero disables it.
	LogEvery int
	// AllowExperimental permits training variants flagged as experimental.
	AllowExperimental bool
}

func (c Config) withDefaults() Config {
	if c.DecayAfter <= 0 {
		c.DecayAfter = DefaultDecayAfter
	}
	if c.DecayedLearningRate <= 0 {
		c.DecayedLearningRate = c.LearningRate
	}
	return c
}

// LearningRateAt returns the rate used at step: a two-phase step schedule.
func (c Config) LearningRateAt(step int) float64 {
	c = c.withDefaults()
	if step < c.DecayAfter {
		return c.LearningRate
	}
	return c.DecayedLearningRate
}

// Trainer owns a model's parameters for the duration of a run.
type Trainer struct {
	cfg   Config
	model model.Trainable
	data  *dataset.Dataset
	rng   *rand.Rand
	log   logger.Logger

	state   State
	step    int
	history *History

	graph *gorgonia.ExprGraph
	lg    *model.LossGraph
	vm    gorgonia.VM
}

// New builds the loss graph for m over data. Minibatch variants draw
// cfg.BatchSize examples per step; full-batch variants use all of data.
func New(m model.Trainable, data *dataset.Dataset, rng *rand.Rand, cfg Config, log logger.Logger) (*Trainer, error) {
	cfg = cfg.withDefaults()
	if cfg.Steps < 0 {
		return nil, fmt.Errorf("%w: steps %d", ErrConfig, cfg.Steps)
	}
	if cfg.LearningRate <= 0 {
		return nil, fmt.Errorf("%w: learning rate %v", ErrConfig, cfg.LearningRate)
	}
	if m.Experimental() && !cfg.AllowExperimental {
		return nil, fmt.Errorf("%w: %s", ErrExperimental, m.Kind())
	}
	if data.Len() == 0 {
		return nil, dataset.ErrEmpty
	}
	if data.BlockSize != m.BlockSize() {
		return nil, fmt.Errorf("%w: dataset block size %d, model %d", model.ErrShape, data.BlockSize, m.BlockSize())
	}
	batch := cfg.BatchSize
	if m.FullBatch() {
		batch = data.Len()
	}
	if batch < 1 {
		return nil, fmt.Errorf("%w: batch size %d", ErrConfig, batch)
	}
	if log == nil {
		log = logger.Discard()
	}

	g := gorgonia.NewGraph()
	lg, err := m.BuildLoss(g, batch)
	if err != nil {
		return nil, fmt.Errorf("build loss graph: %w", err)
	}
	if _, err := gorgonia.Grad(lg.Loss, lg.Learnables...); err != nil {
		return nil, fmt.Errorf("gradients: %w", err)
	}
	vm := gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(lg.Learnables...))

	return &Trainer{
		cfg:     cfg,
		model:   m,
		data:    data,
		rng:     rng,
		log:     log.With("model", string(m.Kind()), "batch", batch),
		history: &History{},
		graph:   g,
		lg:      lg,
		vm:      vm,
	}, nil
}

func (t *Trainer) State() State      { return t.state }
func (t *Trainer) Step() int         { return t.step }
func (t *Trainer) History() *History { return t.history }

// Close releases the tape machine.
func (t *Trainer) Close() error {
	if t.vm == nil {
		return nil
	}
	err := t.vm.Close()
	t.vm = nil
	return err
}

// Run performs cfg.Steps updates. It checks ctx between steps and stops with
// ctx.Err() when cancelled; the model keeps the parameters of the last
// completed step.
func (t *Trainer) Run(ctx context.Context) error {
	if t.state != StateInitialized {
		return fmt.Errorf("%w: state %s", ErrState, t.state)
	}
	t.state = StateTraining
	t.log.Info("training started", "steps", t.cfg.Steps, "lr", t.cfg.LearningRate,
		"decayed_lr", t.cfg.DecayedLearningRate, "decay_after", t.cfg.DecayAfter)

	for t.step < t.cfg.Steps {
		if err := ctx.Err(); err != nil {
			t.state = StateStopped
			t.log.Warn("training cancelled", "step", t.step)
			return err
		}
		lr := t.cfg.LearningRateAt(t.step)
		loss, err := t.stepOnce(lr)
		if err != nil {
			t.state = StateStopped
			return fmt.Errorf("step %d: %w", t.step, err)
		}
		t.history.append(loss)
		t.step++
		if t.cfg.LogEvery > 0 && (t.step%t.cfg.LogEvery == 0 || t.step == t.cfg.Steps) {
			t.log.Info("step", "step", t.step, "loss", loss, "lr", lr)
		}
	}
	t.state = StateConverged
	t.log.Info("training finished", "steps", t.step, "final_loss", t.history.Last())
	return nil
}

// stepOnce runs forward, backward and a vanilla SGD update at rate lr and
// writes the new parameters back into the model.
func (t *Trainer) stepOnce(lr float64) (float64, error) {
	idx, err := t.batchIndices()
	if err != nil {
		return 0, err
	}
	if err := t.lg.Bind(t.data, idx); err != nil {
		return 0, err
	}
	t.vm.Reset()
	if err := t.vm.RunAll(); err != nil {
		return 0, fmt.Errorf("run graph: %w", err)
	}
	loss, err := t.lg.LossValue()
	if err != nil {
		return 0, err
	}
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0, fmt.Errorf("%w: %v", ErrDiverged, loss)
	}
	solver := gorgonia.NewVanillaSolver(gorgonia.WithLearnRate(lr))
	if err := solver.Step(gorgonia.NodesToValueGrads(t.lg.Learnables)); err != nil {
		return 0, fmt.Errorf("sgd update: %w", err)
	}
	if err := t.lg.Sync(); err != nil {
		return 0, err
	}
	return loss, nil
}

func (t *Trainer) batchIndices() ([]int, error) {
	if t.model.FullBatch() {
		idx := make([]int, t.data.Len())
		for i := range idx {
			idx[i] = i
		}
		return idx, nil
	}
	return t.data.SampleIndices(t.rng, t.lg.Batch)
}

// Fit is New followed by Run and Close.
func Fit(ctx context.Context, m model.Trainable, data *dataset.Dataset, rng *rand.Rand, cfg Config) (*History, error) {
	tr, err := New(m, data, rng, cfg, logger.FromContext(ctx))
	if err != nil {
		return nil, err
	}
	defer tr.Close()
	if err := tr.Run(ctx); err != nil {
		return tr.History(), err
	}
	return tr.History(), nil
}
