package train

import "slices"

// History is the append-only per-step loss record of a run. It is diagnostic
// only; nothing in training reads it.
type History struct {
	losses []float64
}

func (h *History) append(loss float64) { h.losses = append(h.losses, loss) }

// Len returns the number of recorded steps.
func (h *History) Len() int { return len(h.losses) }

// Values returns a copy of the recorded losses.
func (h *History) Values() []float64 { return slices.Clone(h.losses) }

// Last returns the most recent loss, or 0 when nothing was recorded.
func (h *History) Last() float64 {
	if len(h.losses) == 0 {
		return 0
	}
	return h.losses[len(h.losses)-1]
}

// MovingAverage returns the mean of each consecutive, non-overlapping window
// of the history. A trailing partial window is dropped.
func (h *History) MovingAverage(window int) []float64 {
	if window <= 0 {
		return nil
	}
	out := make([]float64, 0, len(h.losses)/window)
	for start := 0; start+window <= len(h.losses); start += window {
		var s float64
		for _, v := range h.losses[start : start+window] {
			s += v
		}
		out = append(out, s/float64(window))
	}
	return out
}
