// Package api serves a trained run over HTTP: model metadata, fresh samples
// and the run's read-only snapshots.
package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/makemore/internal/experiment"
	"github.com/samcharles93/makemore/internal/model"
	"github.com/samcharles93/makemore/internal/report"
)

const (
	// MaxSamples bounds the count of one samples request.
	MaxSamples        = 1000
	defaultLossWindow = 1000
)

type Server struct {
	run *experiment.Result
}

func NewServer(run *experiment.Result) *Server {
	return &Server{run: run}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/model", s.handleModel)
	e.POST("/v1/samples", s.handleSamples)
	e.GET("/v1/loss", s.handleLoss)
	e.GET("/v1/embeddings", s.handleEmbeddings)
	e.GET("/v1/counts", s.handleCounts)
}

func (s *Server) handleModel(c *echo.Context) error {
	r := s.run
	var params int
	for _, p := range r.Model.Params() {
		params += len(p.Data)
	}
	return c.JSON(http.StatusOK, ModelInfo{
		RunID:      r.RunID,
		Object:     "model",
		Kind:       string(r.Model.Kind()),
		VocabSize:  r.Model.VocabSize(),
		BlockSize:  r.Model.BlockSize(),
		Parameters: params,
		Steps:      r.History.Len(),
		Tokens:     r.Vocab.Tokens(),
		TrainLoss:  r.TrainLoss,
		DevLoss:    r.DevLoss,
		TestLoss:   r.TestLoss,
	})
}

func (s *Server) handleSamples(c *echo.Context) error {
	req, err := decodeJSON[SamplesRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	count := 1
	if req.Count != nil {
		count = *req.Count
	}
	if count < 1 || count > MaxSamples {
		return writeBadRequest(c, "count must be between 1 and 1000")
	}
	var temp float64
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	samples, err := s.run.Sample(c.Request().Context(), count, temp)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
	return c.JSON(http.StatusOK, SamplesResponse{
		RunID:       s.run.RunID,
		Object:      "list",
		Temperature: temp,
		Samples:     samples,
	})
}

func (s *Server) handleLoss(c *echo.Context) error {
	png, err := wantsPNG(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	window, err := intQuery(c, "window", defaultLossWindow)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	snap := report.NewLossSnapshot(s.run.RunID, string(s.run.Model.Kind()), s.run.History, window)
	if !png {
		return c.JSON(http.StatusOK, snap)
	}
	if len(snap.Losses) == 0 {
		return writeNotFound(c, "no training steps recorded")
	}
	return writePNG(c, func(w io.Writer) error { return report.LossCurve(w, snap) })
}

func (s *Server) handleEmbeddings(c *echo.Context) error {
	png, err := wantsPNG(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	emb, ok := s.run.Model.(model.Embedder)
	if !ok {
		return writeNotFound(c, "model "+string(s.run.Model.Kind())+" has no embedding table")
	}
	snap, err := report.NewEmbeddingSnapshot(s.run.Vocab.Tokens(), emb.Embeddings())
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
	if !png {
		return c.JSON(http.StatusOK, snap)
	}
	return writePNG(c, func(w io.Writer) error { return report.EmbeddingScatter(w, snap) })
}

func (s *Server) handleCounts(c *echo.Context) error {
	png, err := wantsPNG(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	snap, err := report.NewCountsSnapshot(s.run.Vocab.Tokens(), s.run.Counts.Matrix())
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
	if !png {
		return c.JSON(http.StatusOK, snap)
	}
	return writePNG(c, func(w io.Writer) error { return report.Heatmap(w, snap) })
}
