package scenario

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poolfund/internal/config"
	"poolfund/internal/model"
	"poolfund/internal/sim"
)

func exp10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

func units(n int64, decimals int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), exp10(decimals))
}

func TestCanonicalScenario(t *testing.T) {
	sc, err := Load(filepath.Join("testdata", "canonical.yaml"))
	require.NoError(t, err)

	res, err := Run(context.Background(), sc, Options{})
	require.NoError(t, err)
	require.Len(t, res.Steps, len(sc.Steps))

	state := res.State
	owner, alice := sim.Address("owner"), sim.Address("alice")
	usdc, weth := sim.Address("usdc"), sim.Address("weth")

	assert.Equal(t, "minted 1000 shares", res.Steps[0].Detail)
	assert.Equal(t, "2000 USDC -> 0.997 WETH", res.Steps[5].Detail)
	assert.NotEmpty(t, res.Steps[4].Error)

	require.Len(t, res.Payouts, 2)
	reward := units(10, 18)
	for _, p := range res.Payouts {
		assert.Equal(t, reward.String(), p.Amount)
		assert.Equal(t, uint64(1), p.Count)
	}

	// Alice redeemed her 10 reward shares out of 1020.
	assert.Equal(t, 0, state.SharesOf(alice).Sign())
	assert.Equal(t, units(1010, 18).String(), state.SharesOf(owner).String())
	assert.Equal(t, units(1010, 18).String(), state.ShareSupply.String())

	usdcLeft := units(98_000, 6)
	usdcOut := new(big.Int).Quo(new(big.Int).Mul(usdcLeft, big.NewInt(10)), big.NewInt(1020))
	assert.Equal(t, new(big.Int).Sub(usdcLeft, usdcOut).String(), state.Balance(usdc).String())

	wethLeft := big.NewInt(997_000_000_000_000_000)
	wethOut := new(big.Int).Quo(new(big.Int).Mul(wethLeft, big.NewInt(10)), big.NewInt(1020))
	assert.Equal(t, new(big.Int).Sub(wethLeft, wethOut).String(), state.Balance(weth).String())

	assert.Empty(t, state.Proposals)
	require.Len(t, res.Proposals, 2)
	assert.Equal(t, model.ProposalExecuted, res.Proposals[0].State)
	assert.Equal(t, big.NewInt(997_000_000_000_000_000).String(), res.Proposals[0].Trades[0].AmountOut.String())
	assert.Equal(t, model.ProposalCancelled, res.Proposals[1].State)
	assert.Equal(t, sim.Address("bob"), res.Proposals[1].Proposer)

	assert.Equal(t, uint8(6), res.Valuation.BaseDecimals)
	assert.Len(t, res.Meta, 3)
	assert.Equal(t, DefaultStart.Add(24*time.Hour), res.EndTime)
}

func TestRunStopsOnUnexpectedError(t *testing.T) {
	sc, err := Parse([]byte(`
assets:
  - symbol: USDC
    decimals: 6
    price: "1"
steps:
  - action: deposit
    amount: "0"
`))
	require.NoError(t, err)

	_, err = Run(context.Background(), sc, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 1 (deposit)")
}

func TestRunRejectsWrongExpectation(t *testing.T) {
	sc, err := Parse([]byte(`
assets:
  - symbol: USDC
    decimals: 6
    price: "1"
steps:
  - action: deposit
    amount: "10"
    expect: invalid_amount
`))
	require.NoError(t, err)

	_, err = Run(context.Background(), sc, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got success")
}

func TestScenarioParamsOverrideDefaults(t *testing.T) {
	sc, err := Parse([]byte(`
params:
  timelock: 1h
  proposer_rate: "0.02"
assets:
  - symbol: USDC
    decimals: 6
    price: "1"
  - symbol: WETH
    decimals: 18
    price: "2000"
steps:
  - action: deposit
    amount: "1000"
  - action: add-asset
    asset: WETH
  - action: propose
    trades:
      - in: USDC
        out: WETH
        amount: "100"
  - action: accept
    id: 1
    expect: invalid_state
  - action: intent
    id: 1
  - action: advance
    duration: 30m
  - action: accept
    id: 1
    expect: invalid_state
  - action: advance
    duration: 30m
  - action: accept
    id: 1
  - action: configure
    params:
      timelock: 0s
      approver_rate: "0.005"
`))
	require.NoError(t, err)

	res, err := Run(context.Background(), sc, Options{Params: config.DefaultFundParams()})
	require.NoError(t, err)

	state := res.State
	assert.Equal(t, uint64(0), state.TimelockSecs)
	assert.Equal(t, units(2, 16).String(), state.ProposerRewardRate.String())
	assert.Equal(t, units(5, 15).String(), state.ApproverRewardRate.String())
	require.Len(t, res.Proposals, 1)
	assert.Equal(t, model.ProposalExecuted, res.Proposals[0].State)
	assert.NotZero(t, res.Proposals[0].IntentAt)
}

func TestPriceStepMovesValuation(t *testing.T) {
	sc, err := Parse([]byte(`
assets:
  - symbol: USDC
    decimals: 6
    price: "1"
  - symbol: WETH
    decimals: 18
    price: "2000"
steps:
  - action: deposit
    amount: "10000"
  - action: add-asset
    asset: WETH
  - action: propose
    trades:
      - in: USDC
        out: WETH
        amount: "2000"
  - action: accept
    id: 1
  - action: price
    asset: WETH
    price: "1000"
`))
	require.NoError(t, err)

	res, err := Run(context.Background(), sc, Options{})
	require.NoError(t, err)
	// 8000 USDC plus 1 WETH at $1000.
	assert.Equal(t, units(9_000, 6).String(), res.Valuation.Total.String())
}

func TestParseValidation(t *testing.T) {
	cases := map[string]string{
		"no assets":       "steps: []",
		"duplicate asset": "assets:\n  - {symbol: USDC, price: \"1\"}\n  - {symbol: usdc, price: \"1\"}\n",
		"missing price":   "assets:\n  - {symbol: USDC}\n",
		"unknown action":  "assets:\n  - {symbol: USDC, price: \"1\"}\nsteps:\n  - action: fly\n",
		"unknown asset":   "assets:\n  - {symbol: USDC, price: \"1\"}\nsteps:\n  - {action: add-asset, asset: DOGE}\n",
		"no recipient":    "assets:\n  - {symbol: USDC, price: \"1\"}\nsteps:\n  - {action: transfer, shares: \"1\"}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestParseUnits(t *testing.T) {
	got, err := parseUnits("0.997", 18)
	require.NoError(t, err)
	assert.Equal(t, "997000000000000000", got.String())

	_, err = parseUnits("0.0000001", 6)
	assert.Error(t, err)
}
