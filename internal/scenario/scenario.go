package scenario

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of fund operations against an in-memory market.
type Scenario struct {
	Name   string      `yaml:"name"`
	Owner  string      `yaml:"owner"`
	Fund   string      `yaml:"fund"`
	FeeBps uint64      `yaml:"fee_bps"`
	Params FundSpec    `yaml:"params"`
	Assets []AssetSpec `yaml:"assets"`
	Steps  []Step      `yaml:"steps"`
}

// FundSpec overrides fund parameters. Empty fields keep the caller's defaults.
type FundSpec struct {
	EpochDuration   string  `yaml:"epoch_duration"`
	ProposerRate    string  `yaml:"proposer_rate"`
	ApproverRate    string  `yaml:"approver_rate"`
	Timelock        string  `yaml:"timelock"`
	ShareDecimals   *uint8  `yaml:"share_decimals"`
	MintUnitDivisor *uint64 `yaml:"mint_unit_divisor"`
}

// AssetSpec lists a token in the market. The first asset is the fund's base asset.
type AssetSpec struct {
	Symbol       string `yaml:"symbol"`
	Decimals     uint8  `yaml:"decimals"`
	Price        string `yaml:"price"`
	FeedDecimals uint8  `yaml:"feed_decimals"`
	Reserve      string `yaml:"reserve"`
}

// TradeSpec is one leg of a proposal, amounts in whole token units.
type TradeSpec struct {
	In     string `yaml:"in"`
	Out    string `yaml:"out"`
	Amount string `yaml:"amount"`
	MinOut string `yaml:"min_out"`
}

// Step is a single action. Expect, when set, names the error kind the step must fail with.
type Step struct {
	Action   string      `yaml:"action"`
	Actor    string      `yaml:"actor"`
	To       string      `yaml:"to"`
	Asset    string      `yaml:"asset"`
	Amount   string      `yaml:"amount"`
	Shares   string      `yaml:"shares"`
	All      bool        `yaml:"all"`
	Price    string      `yaml:"price"`
	ID       uint64      `yaml:"id"`
	Role     string      `yaml:"role"`
	Duration string      `yaml:"duration"`
	Trades   []TradeSpec `yaml:"trades"`
	Params   *FundSpec   `yaml:"params"`
	Expect   string      `yaml:"expect"`
}

const (
	ActionDeposit   = "deposit"
	ActionAddAsset  = "add-asset"
	ActionPropose   = "propose"
	ActionIntent    = "intent"
	ActionAccept    = "accept"
	ActionCancel    = "cancel"
	ActionAdvance   = "advance"
	ActionPayout    = "payout"
	ActionRedeem    = "redeem"
	ActionTransfer  = "transfer"
	ActionPrice     = "price"
	ActionConfigure = "configure"
)

var actions = map[string]bool{
	ActionDeposit:   true,
	ActionAddAsset:  true,
	ActionPropose:   true,
	ActionIntent:    true,
	ActionAccept:    true,
	ActionCancel:    true,
	ActionAdvance:   true,
	ActionPayout:    true,
	ActionRedeem:    true,
	ActionTransfer:  true,
	ActionPrice:     true,
	ActionConfigure: true,
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML scenario.
func Parse(data []byte) (*Scenario, error) {
	sc := &Scenario{}
	if err := yaml.Unmarshal(data, sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if sc.Owner == "" {
		sc.Owner = "owner"
	}
	if sc.Fund == "" {
		sc.Fund = "fund"
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

// Validate checks the scenario is self-consistent before anything runs.
func (sc *Scenario) Validate() error {
	if len(sc.Assets) == 0 {
		return fmt.Errorf("scenario needs at least one asset")
	}
	seen := make(map[string]bool, len(sc.Assets))
	for i, asset := range sc.Assets {
		key := strings.ToUpper(asset.Symbol)
		if key == "" {
			return fmt.Errorf("asset %d: symbol is required", i)
		}
		if seen[key] {
			return fmt.Errorf("asset %s listed twice", asset.Symbol)
		}
		seen[key] = true
		if asset.Price == "" {
			return fmt.Errorf("asset %s: price is required", asset.Symbol)
		}
	}
	for i, step := range sc.Steps {
		if !actions[step.Action] {
			return fmt.Errorf("step %d: unknown action %q", i+1, step.Action)
		}
		if (step.Action == ActionAddAsset || step.Action == ActionPrice) && step.Asset == "" {
			return fmt.Errorf("step %d: %s needs an asset", i+1, step.Action)
		}
		if step.Action == ActionTransfer && step.To == "" {
			return fmt.Errorf("step %d: transfer needs a recipient", i+1)
		}
		for _, sym := range step.symbols() {
			if !seen[strings.ToUpper(sym)] {
				return fmt.Errorf("step %d: unknown asset %q", i+1, sym)
			}
		}
	}
	return nil
}

func (s Step) symbols() []string {
	var out []string
	if s.Asset != "" {
		out = append(out, s.Asset)
	}
	for _, t := range s.Trades {
		out = append(out, t.In, t.Out)
	}
	return out
}
