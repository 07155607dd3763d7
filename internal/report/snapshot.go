// Package report turns a finished run into read-only snapshots: JSON
// documents and PNG charts of the count table, loss history, embeddings and
// learning-rate sweep.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/samcharles93/makemore/internal/train"
)

var ErrShape = errors.New("report: shape mismatch")

// LossSnapshot is the loss history of one training run.
type LossSnapshot struct {
	RunID  string    `json:"run_id"`
	Model  string    `json:"model"`
	Steps  int       `json:"steps"`
	Losses []float64 `json:"losses"`
	// Window is the width of the MovingAverage buckets.
	Window        int       `json:"window,omitempty"`
	MovingAverage []float64 `json:"moving_average,omitempty"`
}

func NewLossSnapshot(runID, model string, h *train.History, window int) LossSnapshot {
	s := LossSnapshot{
		RunID:  runID,
		Model:  model,
		Steps:  h.Len(),
		Losses: h.Values(),
	}
	if window > 0 && h.Len() >= window {
		s.Window = window
		s.MovingAverage = h.MovingAverage(window)
	}
	return s
}

// CountsSnapshot is a bigram count table with its row and column labels.
type CountsSnapshot struct {
	Tokens []string    `json:"tokens"`
	Counts [][]float64 `json:"counts"`
}

func NewCountsSnapshot(tokens []string, counts *mat.Dense) (CountsSnapshot, error) {
	r, c := counts.Dims()
	if r != len(tokens) || c != len(tokens) {
		return CountsSnapshot{}, fmt.Errorf("%w: %dx%d table for %d tokens", ErrShape, r, c, len(tokens))
	}
	return CountsSnapshot{Tokens: tokens, Counts: rows(counts)}, nil
}

// EmbeddingSnapshot holds one learned vector per token and its 2D
// projection.
type EmbeddingSnapshot struct {
	Tokens     []string     `json:"tokens"`
	Vectors    [][]float64  `json:"vectors"`
	Projection [][2]float64 `json:"projection"`
}

func NewEmbeddingSnapshot(tokens []string, table *mat.Dense) (EmbeddingSnapshot, error) {
	r, _ := table.Dims()
	if r != len(tokens) {
		return EmbeddingSnapshot{}, fmt.Errorf("%w: %d embeddings for %d tokens", ErrShape, r, len(tokens))
	}
	proj, err := Project2D(table)
	if err != nil {
		return EmbeddingSnapshot{}, err
	}
	pts := make([][2]float64, r)
	for i := range pts {
		pts[i] = [2]float64{proj.At(i, 0), proj.At(i, 1)}
	}
	return EmbeddingSnapshot{Tokens: tokens, Vectors: rows(table), Projection: pts}, nil
}

// SweepSnapshot is the output of a learning-rate sweep.
type SweepSnapshot struct {
	RunID  string            `json:"run_id"`
	Points []train.RatePoint `json:"points"`
}

func rows(m *mat.Dense) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}

// NewRunID returns a fresh identifier for a run's output directory.
func NewRunID() string {
	return uuid.NewString()
}

// RunDir creates base/<runID> and returns its path.
func RunDir(base, runID string) (string, error) {
	if _, err := uuid.Parse(runID); err != nil {
		return "", fmt.Errorf("run id %q: %w", runID, err)
	}
	dir := filepath.Join(base, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	return dir, nil
}

// WriteJSON writes v as indented JSON to path.
func WriteJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}
