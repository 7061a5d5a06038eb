package config

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"poolfund/internal/model"
)

const envPrefix = "POOLFUND"

// StoreConfig selects where the fund ledger is persisted. PGDSN wins over StateFile.
type StoreConfig struct {
	StateFile string
	PGDSN     string
	StateName string
}

// FundParams holds the parameters a new fund is created with.
type FundParams struct {
	EpochDuration   time.Duration
	ProposerRate    string
	ApproverRate    string
	Timelock        time.Duration
	ShareDecimals   uint8
	MintUnitDivisor uint64
}

var rateScale = decimal.New(1, 18)

// Rates parses the reward rates, given as fractions of supply per epoch
// (0.01 is 1%), into 1e18 fixed point.
func (p FundParams) Rates() (*big.Int, *big.Int, error) {
	proposer, err := parseRate("proposer-rate", p.ProposerRate)
	if err != nil {
		return nil, nil, err
	}
	approver, err := parseRate("approver-rate", p.ApproverRate)
	if err != nil {
		return nil, nil, err
	}
	return proposer, approver, nil
}

// Peg returns the bootstrap share conversion.
func (p FundParams) Peg() model.Peg {
	return model.Peg{ShareDecimals: p.ShareDecimals, MintUnitDivisor: p.MintUnitDivisor}
}

func parseRate(key, input string) (*big.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return new(big.Int), nil
	}
	d, err := decimal.NewFromString(input)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%s: %s is outside [0, 1]", key, input)
	}
	scaled := d.Mul(rateScale)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%s: %s has more than 18 decimal places", key, input)
	}
	return scaled.BigInt(), nil
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("state-name", "default")
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func storeConfig(v *viper.Viper) StoreConfig {
	return StoreConfig{
		StateFile: v.GetString("state-file"),
		PGDSN:     v.GetString("pg-dsn"),
		StateName: v.GetString("state-name"),
	}
}

// DefaultFundParams opens daily epochs paying 1% per role with no timelock.
func DefaultFundParams() FundParams {
	return FundParams{
		EpochDuration:   24 * time.Hour,
		ProposerRate:    "0.01",
		ApproverRate:    "0.01",
		ShareDecimals:   18,
		MintUnitDivisor: 100,
	}
}

func fundDefaults() map[string]interface{} {
	d := DefaultFundParams()
	return map[string]interface{}{
		"epoch-duration":    d.EpochDuration,
		"proposer-rate":     d.ProposerRate,
		"approver-rate":     d.ApproverRate,
		"timelock":          d.Timelock,
		"share-decimals":    d.ShareDecimals,
		"mint-unit-divisor": d.MintUnitDivisor,
	}
}

func fundParams(v *viper.Viper) (FundParams, error) {
	shareDecimals := v.GetUint("share-decimals")
	if shareDecimals > 77 {
		return FundParams{}, fmt.Errorf("share-decimals %d out of range", shareDecimals)
	}
	return FundParams{
		EpochDuration:   v.GetDuration("epoch-duration"),
		ProposerRate:    v.GetString("proposer-rate"),
		ApproverRate:    v.GetString("approver-rate"),
		Timelock:        v.GetDuration("timelock"),
		ShareDecimals:   uint8(shareDecimals),
		MintUnitDivisor: v.GetUint64("mint-unit-divisor"),
	}, nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339).
func ParseTimestamp(input string) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, nil
	}

	if isNumeric(input) {
		val, err := strconv.ParseInt(input, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(val, 0).UTC(), nil
	}

	return time.Parse(time.RFC3339, input)
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
