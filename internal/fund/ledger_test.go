package fund_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poolfund/internal/fund"
)

func TestIssueBootstrapUsesPeg(t *testing.T) {
	fx := newFixture(t, nil)

	shares := fx.deposit(t, owner, units(100_000, 6))

	// 10^(18-6)/100 shares per base unit at a price of exactly one.
	peg := exp10(10)
	requireBig(t, new(big.Int).Mul(units(100_000, 6), peg), shares)
	requireBig(t, units(1000, 18), fx.fund.TotalSupply())
	requireBig(t, shares, fx.fund.SharesOf(owner))
	requireBig(t, units(100_000, 6), fx.balance(t, fx.usdc, fundAddr))
	fx.requireTracked(t)
}

func TestIssueProportionalToValue(t *testing.T) {
	fx := newFixture(t, nil)
	first := fx.deposit(t, owner, units(100_000, 6))

	second := fx.deposit(t, alice, units(50_000, 6))

	requireBig(t, new(big.Int).Quo(first, big.NewInt(2)), second)
	requireBig(t, new(big.Int).Add(first, second), fx.fund.TotalSupply())
	fx.requireTracked(t)
}

func TestIssueRejectsZero(t *testing.T) {
	fx := newFixture(t, nil)

	_, err := fx.fund.Issue(context.Background(), owner, big.NewInt(0))
	require.ErrorIs(t, err, fund.ErrInvalidAmount)
	_, err = fx.fund.Issue(context.Background(), owner, nil)
	require.ErrorIs(t, err, fund.ErrInvalidAmount)
	require.Zero(t, fx.fund.TotalSupply().Sign())
}

func TestIssueWithoutAllowanceRollsBack(t *testing.T) {
	fx := newFixture(t, nil)
	fx.usdc.Mint(alice, units(10, 6))

	_, err := fx.fund.Issue(context.Background(), alice, units(10, 6))
	require.ErrorIs(t, err, fund.ErrInsufficientFunds)

	assert.Zero(t, fx.fund.TotalSupply().Sign())
	assert.Zero(t, fx.fund.SharesOf(alice).Sign())
	assert.Zero(t, fx.fund.State().Balance(usdcAddr).Sign())
	requireBig(t, units(10, 6), fx.balance(t, fx.usdc, alice))
}

func TestIssueAfterPriceDrop(t *testing.T) {
	fx := newFixture(t, nil)
	require.NoError(t, fx.fund.AddAsset(context.Background(), owner, wethAddr, wethFeed))
	fx.deposit(t, owner, units(20_000, 6))
	fx.accept(t, fx.propose(t, alice, usdcAddr, wethAddr, units(20_000, 6)))

	feed, ok := fx.market.Aggregator(wethFeed)
	require.True(t, ok)
	feed.UpdateAnswer(units(1000, 8), fx.clock.Now())

	before := fx.fund.TotalSupply()
	fx.deposit(t, owner, units(10_000, 6))

	// Half the NAV now buys roughly as many shares as already exist.
	after := fx.fund.TotalSupply()
	epsilon := new(big.Int).Quo(after, big.NewInt(100))
	diff := new(big.Int).Sub(after, new(big.Int).Mul(before, big.NewInt(2)))
	assert.True(t, diff.CmpAbs(epsilon) <= 0, "supply %s not close to twice %s", after, before)
}

func TestRedeemIsProportionalAcrossAssets(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addAssets(t)
	fx.deposit(t, owner, units(100_000, 6))
	fx.deposit(t, alice, units(20_000, 6))
	fx.accept(t, fx.propose(t, bob, usdcAddr, wethAddr, units(30_000, 6)))
	fx.accept(t, fx.propose(t, bob, usdcAddr, btcAddr, units(12_000, 6)))

	before := fx.fund.State()
	shares := new(big.Int).Quo(fx.fund.SharesOf(alice), big.NewInt(3))

	out, err := fx.fund.Redeem(context.Background(), alice, shares)
	require.NoError(t, err)

	after := fx.fund.State()
	for _, asset := range before.Assets {
		bal := before.Balance(asset.Token)
		want := new(big.Int).Mul(bal, shares)
		want.Quo(want, before.ShareSupply)
		requireBig(t, want, out[asset.Token])
		requireBig(t, new(big.Int).Sub(bal, want), after.Balance(asset.Token))
	}
	requireBig(t, new(big.Int).Sub(before.ShareSupply, shares), after.ShareSupply)
	requireBig(t, out[wethAddr], fx.balance(t, fx.weth, alice))
	requireBig(t, out[btcAddr], fx.balance(t, fx.btc, alice))
	fx.requireTracked(t)
}

func TestRedeemReturnsDeposit(t *testing.T) {
	fx := newFixture(t, nil)
	deposit := units(12_345, 6)
	shares := fx.deposit(t, alice, deposit)

	out, err := fx.fund.Redeem(context.Background(), alice, shares)
	require.NoError(t, err)

	requireBig(t, deposit, out[usdcAddr])
	requireBig(t, deposit, fx.balance(t, fx.usdc, alice))
	assert.Zero(t, fx.fund.TotalSupply().Sign())
	assert.Zero(t, fx.fund.SharesOf(alice).Sign())
}

func TestRedeemMoreThanHeld(t *testing.T) {
	fx := newFixture(t, nil)
	shares := fx.deposit(t, alice, units(100, 6))
	fx.deposit(t, bob, units(100, 6))

	_, err := fx.fund.Redeem(context.Background(), alice, new(big.Int).Add(shares, big.NewInt(1)))
	require.ErrorIs(t, err, fund.ErrInsufficientFunds)

	_, err = fx.fund.Redeem(context.Background(), alice, big.NewInt(0))
	require.ErrorIs(t, err, fund.ErrInvalidAmount)

	requireBig(t, shares, fx.fund.SharesOf(alice))
	requireBig(t, units(200, 6), fx.fund.State().Balance(usdcAddr))
}

func TestRedeemFailedTransferReclaimsEarlierAssets(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addAssets(t)
	shares := fx.deposit(t, alice, units(10_000, 6))
	fx.accept(t, fx.propose(t, bob, usdcAddr, wethAddr, units(2_000, 6)))
	ctx := context.Background()

	fx.weth.OnTransfer = func(_ context.Context, from, _ common.Address, _ *big.Int) error {
		if from == fundAddr {
			return errors.New("token paused")
		}
		return nil
	}
	require.NoError(t, fx.usdc.Approve(ctx, alice, fundAddr, units(10_000, 6)))
	before := fx.fund.State()

	_, err := fx.fund.Redeem(ctx, alice, shares)
	require.ErrorIs(t, err, fund.ErrExternalFailure)

	assert.Equal(t, before, fx.fund.State())
	assert.Zero(t, fx.balance(t, fx.usdc, alice).Sign())
	assert.Zero(t, fx.balance(t, fx.weth, alice).Sign())
	fx.requireTracked(t)

	fx.weth.OnTransfer = nil
	_, err = fx.fund.Redeem(ctx, alice, shares)
	require.NoError(t, err)
	fx.requireTracked(t)
}

func TestRedeemReclaimNeedsAllowance(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addAssets(t)
	shares := fx.deposit(t, alice, units(10_000, 6))
	fx.accept(t, fx.propose(t, bob, usdcAddr, wethAddr, units(2_000, 6)))
	fx.weth.OnTransfer = func(context.Context, common.Address, common.Address, *big.Int) error {
		return errors.New("token paused")
	}

	_, err := fx.fund.Redeem(context.Background(), alice, shares)
	require.ErrorIs(t, err, fund.ErrExternalFailure)
	require.ErrorIs(t, err, fund.ErrInsufficientFunds)
	assert.ErrorContains(t, err, "reclaim")
	requireBig(t, shares, fx.fund.SharesOf(alice))
}

func TestTransferShares(t *testing.T) {
	fx := newFixture(t, nil)
	shares := fx.deposit(t, alice, units(100, 6))
	half := new(big.Int).Quo(shares, big.NewInt(2))

	require.NoError(t, fx.fund.TransferShares(context.Background(), alice, bob, half))
	requireBig(t, half, fx.fund.SharesOf(bob))
	requireBig(t, new(big.Int).Sub(shares, half), fx.fund.SharesOf(alice))
	requireBig(t, shares, fx.fund.TotalSupply())

	require.ErrorIs(t, fx.fund.TransferShares(context.Background(), bob, alice, shares), fund.ErrInsufficientFunds)
	require.ErrorIs(t, fx.fund.TransferShares(context.Background(), bob, alice, big.NewInt(0)), fund.ErrInvalidAmount)
}
