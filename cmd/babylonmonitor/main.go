package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	log "gopkg.in/inconshreveable/log15.v2"
	"golang.org/x/sync/errgroup"

	"github.com/babylon-chain/liveness-monitor/internal/config"
	"github.com/babylon-chain/liveness-monitor/notifier"
	"github.com/babylon-chain/liveness-monitor/orchestrator"
	"github.com/babylon-chain/liveness-monitor/store"
)

var app *cli.App

func init() {
	app = &cli.App{
		Name:  "babylonmonitor",
		Usage: "liveness monitor for validator block-signatures, finality-provider votes, and BLS checkpoint participation",
		Action: run,
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run loads configuration, builds one orchestrator per configured
// network, and runs them concurrently until a termination signal.
func run(*cli.Context) error {
	logger := log.Root()
	logger.SetHandler(log.LvlFilterHandler(log.LvlInfo, log.StreamHandler(os.Stdout, log.LogfmtFormat())))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("babylonmonitor: load config: %w", err)
	}
	if !cfg.MonitoringEnabled {
		logger.Info("babylonmonitor: monitoring disabled via MONITORING_ENABLED, exiting")
		return nil
	}

	repo, err := store.NewMemoryRepository(0)
	if err != nil {
		return fmt.Errorf("babylonmonitor: new repository: %w", err)
	}
	sink := notifier.NewLogSink(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, netCfg := range cfg.Networks {
		netCfg := netCfg
		orc, err := orchestrator.New(netCfg, cfg, repo, sink, logger)
		if err != nil {
			return fmt.Errorf("babylonmonitor: build orchestrator for %s: %w", netCfg.Name, err)
		}
		g.Go(func() error {
			logger.Info("babylonmonitor: starting orchestrator", "network", netCfg.Name)
			return orc.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return fmt.Errorf("babylonmonitor: %w", err)
	}
	return nil
}
