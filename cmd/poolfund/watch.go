package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolfund/internal/config"
	"poolfund/internal/nav"
)

func runWatch(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadWatch(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	job, cleanup, err := newNavJob(ctx, cfg.NavConfig, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	logger.Info("watch start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("schedule", cfg.Schedule),
		zap.String("pg_dsn", redactDSN(cfg.Store.PGDSN)),
	)

	return nav.Schedule(ctx, cfg.Schedule, job, logger)
}
