package fund_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poolfund/internal/fund"
)

func TestPayoutBeforeAnyEpochCloses(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addAssets(t)
	fx.deposit(t, owner, units(100_000, 6))
	fx.accept(t, fx.propose(t, alice, usdcAddr, wethAddr, units(2_000, 6)))
	supply := fx.fund.TotalSupply()

	payouts, err := fx.fund.PayoutProposers(context.Background(), bob)
	require.NoError(t, err)
	assert.Empty(t, payouts)
	requireBig(t, supply, fx.fund.TotalSupply())
	assert.Equal(t, uint64(1), fx.fund.State().Epochs.Current.TotalAccepted)
}

func TestSingleEpochScenario(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	fx.deposit(t, owner, units(100_000, 6))
	requireBig(t, new(big.Int).Mul(units(100_000, 6), exp10(10)), fx.fund.TotalSupply())
	fx.addAssets(t)

	navBefore, err := fx.fund.TotalValue(ctx)
	require.NoError(t, err)
	fx.accept(t, fx.propose(t, alice, usdcAddr, wethAddr, units(2_000, 6)))
	navAfter, err := fx.fund.TotalValue(ctx)
	require.NoError(t, err)
	fee := new(big.Int).Sub(navBefore, navAfter)
	requireBig(t, units(6, 6), fee)

	fx.clock.Advance(day)
	supplyBefore := fx.fund.TotalSupply()
	ownerBefore := fx.fund.SharesOf(owner)

	payouts, err := fx.fund.PayoutProposers(ctx, alice)
	require.NoError(t, err)
	require.Len(t, payouts, 2)

	reward := new(big.Int).Mul(supplyBefore, onePercent)
	reward.Quo(reward, fund.RateScale)
	requireBig(t, reward, fx.fund.SharesOf(alice))
	requireBig(t, new(big.Int).Add(ownerBefore, reward), fx.fund.SharesOf(owner))

	again, err := fx.fund.PayoutApprovers(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, again)
	requireBig(t, reward, fx.fund.SharesOf(alice))
}

func TestPayoutSkipsEmptyEpochAndCompounds(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	fx.addAssets(t)
	fx.deposit(t, owner, units(100_000, 6))
	s0 := fx.fund.TotalSupply()

	fx.accept(t, fx.propose(t, alice, usdcAddr, wethAddr, units(2_000, 6)))
	fx.accept(t, fx.propose(t, alice, usdcAddr, btcAddr, units(2_000, 6)))
	fx.clock.Advance(2 * day)
	fx.accept(t, fx.propose(t, alice, usdcAddr, wethAddr, units(2_000, 6)))
	fx.clock.Advance(2 * day)

	payouts, err := fx.fund.PayoutApprovers(ctx, bob)
	require.NoError(t, err)
	require.Len(t, payouts, 4)

	first := new(big.Int).Quo(s0, big.NewInt(100))
	s1 := new(big.Int).Add(s0, new(big.Int).Mul(first, big.NewInt(2)))
	second := new(big.Int).Quo(s1, big.NewInt(100))
	s2 := new(big.Int).Add(s1, new(big.Int).Mul(second, big.NewInt(2)))

	requireBig(t, new(big.Int).Add(first, second), fx.fund.SharesOf(alice))
	requireBig(t, s2, fx.fund.TotalSupply())
	assert.Empty(t, fx.fund.State().Epochs.Pending)
	assert.Equal(t, uint64(start.Add(4*day).Unix()), fx.fund.State().Epochs.Current.StartTime)
}

func TestOnePayoutMatchesPayoutAtEachBoundary(t *testing.T) {
	run := func(payEachBoundary bool) *fixture {
		fx := newFixture(t, nil)
		ctx := context.Background()
		fx.addAssets(t)
		fx.deposit(t, owner, units(100_000, 6))
		fx.deposit(t, bob, units(33_333, 6))

		fx.accept(t, fx.propose(t, alice, usdcAddr, wethAddr, units(1_000, 6)))
		fx.accept(t, fx.propose(t, bob, usdcAddr, btcAddr, units(1_000, 6)))
		fx.clock.Advance(day)
		if payEachBoundary {
			_, err := fx.fund.PayoutProposers(ctx, alice)
			require.NoError(t, err)
		}
		fx.accept(t, fx.propose(t, alice, usdcAddr, wethAddr, units(1_000, 6)))
		fx.clock.Advance(day + time.Hour)
		_, err := fx.fund.PayoutProposers(ctx, alice)
		require.NoError(t, err)
		return fx
	}

	once := run(false)
	each := run(true)

	requireBig(t, each.fund.TotalSupply(), once.fund.TotalSupply())
	requireBig(t, each.fund.SharesOf(alice), once.fund.SharesOf(alice))
	requireBig(t, each.fund.SharesOf(bob), once.fund.SharesOf(bob))
	requireBig(t, each.fund.SharesOf(owner), once.fund.SharesOf(owner))
}

func TestAcceptanceRolledIntoCurrentEpoch(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addAssets(t)
	fx.deposit(t, owner, units(1_000, 6))
	id := fx.propose(t, alice, usdcAddr, wethAddr, units(100, 6))

	fx.clock.Advance(3*day + time.Minute)
	fx.accept(t, id)

	state := fx.fund.State()
	require.Len(t, state.Epochs.Pending, 3)
	assert.Equal(t, uint64(start.Add(3*day).Unix()), state.Epochs.Current.StartTime)
	assert.Equal(t, uint64(1), state.Epochs.Current.ProposerCounts[alice])
	assert.Equal(t, uint64(1), state.Epochs.Current.ApproverCounts[owner])
}

func TestSettleReturnsPaidEpochs(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	fx.deposit(t, owner, units(100_000, 6))
	fx.addAssets(t)
	fx.accept(t, fx.propose(t, alice, usdcAddr, wethAddr, units(2_000, 6)))
	fx.clock.Advance(2 * day)

	settled, err := fx.fund.Settle(ctx, bob)
	require.NoError(t, err)

	require.Len(t, settled.Epochs, 2)
	assert.Equal(t, uint64(start.Unix()), settled.Epochs[0].StartTime)
	assert.Equal(t, uint64(start.Add(day).Unix()), settled.Epochs[1].StartTime)
	for _, epoch := range settled.Epochs {
		assert.True(t, epoch.Paid)
	}
	assert.Equal(t, uint64(1), settled.Epochs[0].TotalAccepted)
	require.Len(t, settled.Payouts, 2)
	assert.Empty(t, fx.fund.State().Epochs.Pending)

	again, err := fx.fund.Settle(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, again.Epochs)
}
