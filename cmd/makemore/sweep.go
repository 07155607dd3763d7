package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/makemore/internal/experiment"
	"github.com/samcharles93/makemore/internal/logger"
	"github.com/samcharles93/makemore/internal/report"
	"github.com/samcharles93/makemore/internal/train"
)

func sweepCmd() *cli.Command {
	var (
		f         runFlags
		out       string
		from, to  float64
		rateCount int
	)
	return &cli.Command{
		Name:  "sweep",
		Usage: "Take one training step per learning rate to find a usable rate",
		Flags: append(append(corpusFlags(&f), modelFlags(&f)...),
			&cli.Float64Flag{
				Name:        "from",
				Usage:       "log10 of the first learning rate",
				Value:       -3,
				Destination: &from,
			},
			&cli.Float64Flag{
				Name:        "to",
				Usage:       "log10 of the last learning rate",
				Value:       0,
				Destination: &to,
			},
			&cli.IntFlag{
				Name:        "rates",
				Usage:       "number of learning rates",
				Value:       1000,
				Destination: &rateCount,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "directory for sweep.json and the sweep chart",
				Destination: &out,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyRunConfig(cmd, fileConfig, &f)
			applyOutConfig(cmd, fileConfig, &out)
			points, err := experiment.RunSweep(ctx, f.experimentConfig(), train.ExpSpace(from, to, rateCount))
			if err != nil {
				return err
			}
			if best, ok := report.BestRate(points); ok {
				fmt.Printf("lowest loss %.4f at lr %.4g\n", best.Loss, best.Rate)
			}
			if out == "" {
				return nil
			}
			snap := report.SweepSnapshot{RunID: report.NewRunID(), Points: points}
			dir, err := report.RunDir(out, snap.RunID)
			if err != nil {
				return err
			}
			if err := report.WriteJSON(filepath.Join(dir, "sweep.json"), snap); err != nil {
				return err
			}
			if err := writeChart(filepath.Join(dir, "sweep.png"), func(w io.Writer) error { return report.SweepCurve(w, snap) }); err != nil {
				return err
			}
			logger.FromContext(ctx).Info("sweep written", "dir", dir)
			return nil
		},
	}
}
