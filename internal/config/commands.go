package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// SimulateConfig holds configuration for the simulate command.
type SimulateConfig struct {
	Scenario string
	Report   string
	Start    time.Time
	Store    StoreConfig
	Fund     FundParams
	LogLevel string
}

// LoadSimulate merges config file, environment variables, and flags into SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	defaults := fundDefaults()
	defaults["report"] = "./data/simulate.jsonl"
	v, err := newViper(cfgFile, flags, defaults)
	if err != nil {
		return SimulateConfig{}, err
	}

	start, err := ParseTimestamp(v.GetString("start"))
	if err != nil {
		return SimulateConfig{}, fmt.Errorf("parse start: %w", err)
	}
	params, err := fundParams(v)
	if err != nil {
		return SimulateConfig{}, err
	}

	return SimulateConfig{
		Scenario: v.GetString("scenario"),
		Report:   v.GetString("report"),
		Start:    start,
		Store:    storeConfig(v),
		Fund:     params,
		LogLevel: v.GetString("log-level"),
	}, nil
}

// NavConfig holds configuration for the nav command.
type NavConfig struct {
	RPCURL       string
	Fund         string
	Block        uint64
	Out          string
	Store        StoreConfig
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

func navDefaults() map[string]interface{} {
	return map[string]interface{}{
		"out":           "./data/nav.jsonl",
		"max-retries":   5,
		"retry-backoff": 500 * time.Millisecond,
	}
}

func navConfig(v *viper.Viper) NavConfig {
	return NavConfig{
		RPCURL:       v.GetString("rpc"),
		Fund:         v.GetString("fund"),
		Block:        v.GetUint64("block"),
		Out:          v.GetString("out"),
		Store:        storeConfig(v),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
	}
}

// LoadNav merges config file, environment variables, and flags into NavConfig.
func LoadNav(cfgFile string, flags *pflag.FlagSet) (NavConfig, error) {
	v, err := newViper(cfgFile, flags, navDefaults())
	if err != nil {
		return NavConfig{}, err
	}
	return navConfig(v), nil
}

// WatchConfig holds configuration for the watch command.
type WatchConfig struct {
	NavConfig
	Schedule string
}

// LoadWatch merges config file, environment variables, and flags into WatchConfig.
func LoadWatch(cfgFile string, flags *pflag.FlagSet) (WatchConfig, error) {
	defaults := navDefaults()
	defaults["schedule"] = "@every 5m"
	v, err := newViper(cfgFile, flags, defaults)
	if err != nil {
		return WatchConfig{}, err
	}
	return WatchConfig{NavConfig: navConfig(v), Schedule: v.GetString("schedule")}, nil
}

// InspectConfig holds configuration for the inspect command.
type InspectConfig struct {
	Store    StoreConfig
	LogLevel string
}

// LoadInspect merges config file, environment variables, and flags into InspectConfig.
func LoadInspect(cfgFile string, flags *pflag.FlagSet) (InspectConfig, error) {
	v, err := newViper(cfgFile, flags, nil)
	if err != nil {
		return InspectConfig{}, err
	}
	return InspectConfig{
		Store:    storeConfig(v),
		LogLevel: v.GetString("log-level"),
	}, nil
}
