package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/makemore/internal/api"
	"github.com/samcharles93/makemore/internal/experiment"
	"github.com/samcharles93/makemore/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		f           runFlags
		addr        string
		readTimeout time.Duration
	)
	return &cli.Command{
		Name:  "serve",
		Usage: "Train a model, then serve samples and snapshots over HTTP",
		Flags: append(append(corpusFlags(&f), modelFlags(&f)...),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyRunConfig(cmd, fileConfig, &f)
			applyServeConfig(cmd, fileConfig, &addr)
			log := logger.FromContext(ctx)

			res, err := experiment.Run(ctx, f.experimentConfig())
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}

			server := api.NewServer(res)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "run", res.RunID)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
