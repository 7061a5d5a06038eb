package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func simulateFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("simulate", pflag.ContinueOnError)
	flags.String("scenario", "", "")
	flags.String("state-file", "", "")
	flags.String("proposer-rate", "0.01", "")
	flags.Duration("timelock", 0, "")
	return flags
}

func TestLoadSimulateDefaults(t *testing.T) {
	flags := simulateFlags()
	if err := flags.Parse([]string{"--scenario", "s.yaml", "--timelock", "1h"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := LoadSimulate("", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Scenario != "s.yaml" {
		t.Fatalf("scenario = %q", cfg.Scenario)
	}
	if cfg.Fund.Timelock != time.Hour {
		t.Fatalf("timelock = %s", cfg.Fund.Timelock)
	}
	if cfg.Fund.EpochDuration != 24*time.Hour {
		t.Fatalf("epoch duration = %s", cfg.Fund.EpochDuration)
	}
	if peg := cfg.Fund.Peg(); peg.ShareDecimals != 18 || peg.MintUnitDivisor != 100 {
		t.Fatalf("unexpected peg %+v", peg)
	}
	if cfg.Store.StateName != "default" || cfg.LogLevel != "info" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if !cfg.Start.IsZero() {
		t.Fatalf("start should be unset, got %s", cfg.Start)
	}
}

func TestLoadSimulateEnvOverride(t *testing.T) {
	t.Setenv("POOLFUND_PROPOSER_RATE", "0.025")
	t.Setenv("POOLFUND_START", "1700000000")

	cfg, err := LoadSimulate("", simulateFlags())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	proposer, approver, err := cfg.Fund.Rates()
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	if proposer.Cmp(big.NewInt(25_000_000_000_000_000)) != 0 {
		t.Fatalf("proposer rate = %s", proposer)
	}
	if approver.Cmp(big.NewInt(10_000_000_000_000_000)) != 0 {
		t.Fatalf("approver rate = %s", approver)
	}
	if cfg.Start.Unix() != 1700000000 {
		t.Fatalf("start = %s", cfg.Start)
	}
}

func TestLoadWatchFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poolfund.yaml")
	body := "rpc: http://localhost:8545\nfund: \"0x4444444444444444444444444444444444444444\"\nschedule: \"@every 1m\"\npg-dsn: postgres://fund@localhost/fund\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadWatch(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCURL != "http://localhost:8545" || cfg.Schedule != "@every 1m" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Store.PGDSN == "" || cfg.MaxRetries != 5 || cfg.RetryBackoff != 500*time.Millisecond {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	if _, err := LoadInspect(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatalf("expected error for explicit missing config")
	}
}

func TestParseRate(t *testing.T) {
	cases := []struct {
		input string
		want  string
		ok    bool
	}{
		{"", "0", true},
		{"0.01", "10000000000000000", true},
		{"1", "1000000000000000000", true},
		{"1.5", "", false},
		{"-0.1", "", false},
		{"0.0000000000000000001", "", false},
		{"abc", "", false},
	}
	for _, tc := range cases {
		got, err := parseRate("rate", tc.input)
		if tc.ok != (err == nil) {
			t.Fatalf("parseRate(%q) err = %v", tc.input, err)
		}
		if tc.ok && got.String() != tc.want {
			t.Fatalf("parseRate(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("2024-01-02T03:04:05Z")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ts.Unix() != 1704164645 {
		t.Fatalf("unix = %d", ts.Unix())
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Fatalf("expected error")
	}
}
