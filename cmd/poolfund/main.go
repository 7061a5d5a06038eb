package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "poolfund",
		Short:        "Pooled-asset fund ledger",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a scenario against an in-memory market",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().String("scenario", "", "scenario YAML path")
	simulateCmd.Flags().String("report", "./data/simulate.jsonl", "JSONL audit trail path (ignored with --pg-dsn)")
	simulateCmd.Flags().String("start", "", "simulated start time (unix seconds or RFC3339)")
	addStoreFlags(simulateCmd)
	addFundFlags(simulateCmd)
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(simulateCmd)

	navCmd := &cobra.Command{
		Use:   "nav",
		Short: "Value a persisted fund with on-chain prices and reconcile balances",
		RunE:  runNav,
	}

	addNavFlags(navCmd)
	root.AddCommand(navCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Record NAV snapshots on a cron schedule",
		RunE:  runWatch,
	}

	addNavFlags(watchCmd)
	watchCmd.Flags().String("schedule", "@every 5m", "cron schedule (standard five fields or descriptor)")
	root.AddCommand(watchCmd)

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print a persisted fund ledger",
		RunE:  runInspect,
	}

	addStoreFlags(inspectCmd)
	inspectCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(inspectCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("state-file", "", "fund state JSON file")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN (takes precedence over --state-file)")
	cmd.Flags().String("state-name", "default", "state row name in Postgres")
}

func addFundFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("epoch-duration", 24*time.Hour, "reward epoch length")
	cmd.Flags().String("proposer-rate", "0.01", "proposer reward per epoch as a fraction of supply")
	cmd.Flags().String("approver-rate", "0.01", "approver reward per epoch as a fraction of supply")
	cmd.Flags().Duration("timelock", 0, "delay between intent and acceptance")
	cmd.Flags().Uint8("share-decimals", 18, "share decimals used by the bootstrap peg")
	cmd.Flags().Uint64("mint-unit-divisor", 100, "bootstrap peg divisor")
}

func addNavFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "RPC URL")
	cmd.Flags().String("fund", "", "expected fund address")
	cmd.Flags().Uint64("block", 0, "block for balance reconciliation, 0 means latest")
	cmd.Flags().String("out", "./data/nav.jsonl", "JSONL snapshot path (ignored with --pg-dsn)")
	addStoreFlags(cmd)
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
