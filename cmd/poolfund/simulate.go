package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolfund/internal/config"
	"poolfund/internal/report"
	"poolfund/internal/scenario"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Scenario == "" {
		return fmt.Errorf("scenario path is required")
	}
	sc, err := scenario.Load(cfg.Scenario)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg.Store, cfg.Report)
	if err != nil {
		return err
	}
	defer st.Close()

	runID := uuid.NewString()
	logger.Info("simulate start",
		zap.String("run_id", runID),
		zap.String("scenario", cfg.Scenario),
		zap.Int("steps", len(sc.Steps)),
		zap.String("state_file", cfg.Store.StateFile),
		zap.String("pg_dsn", redactDSN(cfg.Store.PGDSN)),
	)

	res, err := scenario.Run(ctx, sc, scenario.Options{
		Start:  cfg.Start,
		Params: cfg.Fund,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	if err := st.state.Save(ctx, res.State); err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	fundAddr := res.State.Address.Hex()
	if err := st.recorder.PutProposals(ctx, fundAddr, res.Proposals); err != nil {
		return fmt.Errorf("record proposals: %w", err)
	}
	if err := st.recorder.PutPayouts(ctx, fundAddr, res.Payouts); err != nil {
		return fmt.Errorf("record payouts: %w", err)
	}
	snap := report.NavSnapshot(report.Snapshot{
		RunID:        runID,
		State:        res.State,
		BaseDecimals: res.Valuation.BaseDecimals,
		Total:        res.Valuation.Total,
		BlockTime:    res.EndTime,
	})
	if err := st.recorder.PutNavSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("record nav: %w", err)
	}

	logger.Info("simulate done",
		zap.String("run_id", runID),
		zap.String("fund", fundAddr),
		zap.String("nav", snap.TotalValue),
		zap.String("share_supply", snap.ShareSupply),
		zap.Int("proposals", len(res.Proposals)),
		zap.Int("payouts", len(res.Payouts)),
	)

	return report.WriteSummary(cmd.OutOrStdout(), res.State, res.Meta)
}
