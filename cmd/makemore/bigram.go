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
)

func bigramCmd() *cli.Command {
	var (
		f   runFlags
		out string
	)
	return &cli.Command{
		Name:  "bigram",
		Usage: "Count bigrams, report the smoothed likelihood and sample",
		Flags: append(corpusFlags(&f),
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "directory for counts.json and the count heatmap",
				Destination: &out,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyCorpusConfig(cmd, fileConfig, &f)
			applyOutConfig(cmd, fileConfig, &out)
			res, err := experiment.RunCounts(ctx, f.experimentConfig())
			if err != nil {
				return err
			}
			fmt.Printf("run: %s\n", res.RunID)
			fmt.Printf("nll: %.4f\n", res.NLL)
			for _, s := range res.Samples {
				fmt.Println(s)
			}
			if out == "" {
				return nil
			}
			dir, err := report.RunDir(out, res.RunID)
			if err != nil {
				return err
			}
			snap, err := report.NewCountsSnapshot(res.Vocab.Tokens(), res.Counts.Matrix())
			if err != nil {
				return err
			}
			if err := report.WriteJSON(filepath.Join(dir, "counts.json"), snap); err != nil {
				return err
			}
			if err := writeChart(filepath.Join(dir, "counts.png"), func(w io.Writer) error { return report.Heatmap(w, snap) }); err != nil {
				return err
			}
			logger.FromContext(ctx).Info("counts written", "dir", dir)
			return nil
		},
	}
}

