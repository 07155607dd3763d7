package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/makemore/internal/experiment"
	"github.com/samcharles93/makemore/internal/logger"
	"github.com/samcharles93/makemore/internal/model"
	"github.com/samcharles93/makemore/internal/report"
)

func trainCmd() *cli.Command {
	var (
		f   runFlags
		out string
	)
	return &cli.Command{
		Name:  "train",
		Usage: "Train a neural model and sample from it",
		Flags: append(append(corpusFlags(&f), modelFlags(&f)...),
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "directory for the run's JSON snapshots and charts",
				Destination: &out,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyRunConfig(cmd, fileConfig, &f)
			applyOutConfig(cmd, fileConfig, &out)
			res, err := experiment.Run(ctx, f.experimentConfig())
			if err != nil && (res == nil || !errors.Is(err, context.Canceled)) {
				return err
			}
			if err != nil {
				logger.FromContext(ctx).Warn("training interrupted, reporting partial run", "steps", res.History.Len())
			}
			printRun(os.Stdout, res)
			if out == "" {
				return nil
			}
			return writeRun(ctx, out, res)
		},
	}
}

func printRun(w io.Writer, res *experiment.Result) {
	_, _ = fmt.Fprintf(w, "run:   %s\n", res.RunID)
	_, _ = fmt.Fprintf(w, "model: %s (%d steps, %s)\n", res.Model.Kind(), res.History.Len(), res.Elapsed.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "loss:  train %.4f  dev %.4f  test %.4f\n", res.TrainLoss, res.DevLoss, res.TestLoss)
	for _, s := range res.Samples {
		_, _ = fmt.Fprintln(w, s)
	}
}

// writeRun stores every snapshot of res under out/<run id>.
func writeRun(ctx context.Context, out string, res *experiment.Result) error {
	dir, err := report.RunDir(out, res.RunID)
	if err != nil {
		return err
	}
	tokens := res.Vocab.Tokens()

	loss := report.NewLossSnapshot(res.RunID, string(res.Model.Kind()), res.History, 1000)
	if err := report.WriteJSON(filepath.Join(dir, "loss.json"), loss); err != nil {
		return err
	}
	if len(loss.Losses) > 0 {
		if err := writeChart(filepath.Join(dir, "loss.png"), func(w io.Writer) error { return report.LossCurve(w, loss) }); err != nil {
			return err
		}
	}

	counts, err := report.NewCountsSnapshot(tokens, res.Counts.Matrix())
	if err != nil {
		return err
	}
	if err := report.WriteJSON(filepath.Join(dir, "counts.json"), counts); err != nil {
		return err
	}

	if emb, ok := res.Model.(model.Embedder); ok {
		snap, err := report.NewEmbeddingSnapshot(tokens, emb.Embeddings())
		if err != nil {
			return err
		}
		if err := report.WriteJSON(filepath.Join(dir, "embeddings.json"), snap); err != nil {
			return err
		}
		if err := writeChart(filepath.Join(dir, "embeddings.png"), func(w io.Writer) error { return report.EmbeddingScatter(w, snap) }); err != nil {
			return err
		}
	}
	if err := report.WriteJSON(filepath.Join(dir, "samples.json"), res.Samples); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("run written", "dir", dir)
	return nil
}

func writeChart(path string, render func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return render(f)
}
