package logits

import (
	"math/rand/v2"
	"slices"
)

// SamplerConfig configures the behaviour of a Sampler.
type SamplerConfig struct {
	Temperature float64
	TopK        int
}

// Sampler draws next-token indices from model outputs. It owns no random
// state; every call takes the generator explicitly so a run is reproducible
// from its seed.
type Sampler struct {
	cfg    SamplerConfig
	greedy bool
}

// NewSampler returns a new sampler with the provided configuration. A
// negative temperature selects greedy argmax decoding; zero means 1.
func NewSampler(cfg SamplerConfig) *Sampler {
	greedy := cfg.Temperature < 0
	if cfg.Temperature <= 0 {
		cfg.Temperature = 1
	}
	return &Sampler{cfg: cfg, greedy: greedy}
}

// Config returns the effective configuration.
func (s *Sampler) Config() SamplerConfig { return s.cfg }

// SampleProbs draws one index from an already-normalised (or merely
// non-negative) distribution. Temperature does not apply here; TopK does.
func (s *Sampler) SampleProbs(rng *rand.Rand, probs []float64) (int, error) {
	if len(probs) == 0 {
		return 0, ErrEmptyWeights
	}
	if s.greedy {
		return argmax(probs), nil
	}
	w := s.truncate(probs)
	idx, err := Multinomial(rng, w, 1)
	if err != nil {
		return 0, err
	}
	return idx[0], nil
}

// SampleLogits applies temperature softmax to unnormalised scores and draws
// one index.
func (s *Sampler) SampleLogits(rng *rand.Rand, logits []float64) (int, error) {
	if len(logits) == 0 {
		return 0, ErrEmptyWeights
	}
	if s.greedy {
		return argmax(logits), nil
	}
	return s.SampleProbs(rng, Softmax(logits, s.cfg.Temperature))
}

// truncate zeroes every weight outside the TopK largest. Ties at the cut are
// kept.
func (s *Sampler) truncate(w []float64) []float64 {
	k := s.cfg.TopK
	if k <= 0 || k >= len(w) {
		return w
	}
	sorted := slices.Clone(w)
	slices.Sort(sorted)
	cut := sorted[len(sorted)-k]
	out := make([]float64, len(w))
	for i, v := range w {
		if v >= cut {
			out[i] = v
		}
	}
	return out
}
