package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"poolfund/internal/config"
	"poolfund/internal/report"
)

func runInspect(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadInspect(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Store.PGDSN == "" && cfg.Store.StateFile == "" {
		return fmt.Errorf("state-file or pg-dsn is required")
	}

	ctx := context.Background()
	st, err := openStores(ctx, cfg.Store, "")
	if err != nil {
		return err
	}
	defer st.Close()

	state, ok, err := st.state.Load(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no persisted fund state")
	}
	return report.WriteSummary(cmd.OutOrStdout(), state, nil)
}
