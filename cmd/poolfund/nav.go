package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolfund/internal/chain"
	"poolfund/internal/config"
	"poolfund/internal/nav"
)

func runNav(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadNav(cfgFile, cmd.Flags())
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

	job, cleanup, err := newNavJob(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	logger.Info("nav start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("fund", cfg.Fund),
		zap.Uint64("block", cfg.Block),
		zap.String("pg_dsn", redactDSN(cfg.Store.PGDSN)),
	)

	_, err = job.Run(ctx)
	return err
}

func newNavJob(ctx context.Context, cfg config.NavConfig, logger *zap.Logger) (*nav.Job, func(), error) {
	if cfg.RPCURL == "" {
		return nil, nil, fmt.Errorf("rpc url is required")
	}
	var fundAddr common.Address
	if cfg.Fund != "" {
		if !common.IsHexAddress(cfg.Fund) {
			return nil, nil, fmt.Errorf("invalid fund address %q", cfg.Fund)
		}
		fundAddr = common.HexToAddress(cfg.Fund)
	}
	if cfg.Store.PGDSN == "" && cfg.Store.StateFile == "" {
		return nil, nil, fmt.Errorf("state-file or pg-dsn is required")
	}

	retry := chain.Retry{MaxRetries: cfg.MaxRetries, Backoff: cfg.RetryBackoff}
	chainClient, err := chain.Dial(ctx, cfg.RPCURL, retry)
	if err != nil {
		return nil, nil, fmt.Errorf("connect rpc: %w", err)
	}
	chainID, err := chainClient.ChainID(ctx)
	if err != nil {
		chainClient.Close()
		return nil, nil, fmt.Errorf("get chain id: %w", err)
	}
	logger.Info("rpc connected", zap.String("chain_id", chainID.String()))
	st, err := openStores(ctx, cfg.Store, cfg.Out)
	if err != nil {
		chainClient.Close()
		return nil, nil, err
	}

	dir := chain.NewDirectory(chainClient, retry)
	job := &nav.Job{
		Chain:    chainClient,
		Pricing:  dir,
		Balances: dir,
		States:   st.state,
		Recorder: st.recorder,
		Fund:     fundAddr,
		Block:    cfg.Block,
		Logger:   logger,
	}
	cleanup := func() {
		st.Close()
		chainClient.Close()
	}
	return job, cleanup, nil
}
