package fund

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poolfund/internal/model"
)

func TestRolloverBeforeBoundary(t *testing.T) {
	ledger := model.EpochLedger{Current: model.NewEpochRecord(1000)}

	next, closed := Rollover(ledger, 100, 1099)

	assert.Empty(t, closed)
	assert.Equal(t, uint64(1000), next.Current.StartTime)
	assert.Empty(t, next.Pending)
}

func TestRolloverClosesEveryElapsedEpoch(t *testing.T) {
	proposer := common.HexToAddress("0x1")
	approver := common.HexToAddress("0x2")
	ledger := model.EpochLedger{Current: model.NewEpochRecord(1000)}
	recordAcceptance(&ledger, proposer, approver)

	next, closed := Rollover(ledger, 100, 1350)

	require.Len(t, closed, 3)
	assert.Equal(t, []uint64{1000, 1100, 1200}, []uint64{closed[0].StartTime, closed[1].StartTime, closed[2].StartTime})
	assert.Equal(t, uint64(1), closed[0].TotalAccepted)
	assert.Zero(t, closed[1].TotalAccepted)
	assert.Equal(t, uint64(1300), next.Current.StartTime)
	assert.Zero(t, next.Current.TotalAccepted)
	require.Len(t, next.Pending, 3)

	// The input ledger is left untouched.
	assert.Equal(t, uint64(1000), ledger.Current.StartTime)
	assert.Equal(t, uint64(1), ledger.Current.ProposerCounts[proposer])
	assert.Empty(t, ledger.Pending)
}

func TestRolloverExactBoundary(t *testing.T) {
	next, closed := Rollover(model.EpochLedger{Current: model.NewEpochRecord(0)}, 10, 10)

	require.Len(t, closed, 1)
	assert.Equal(t, uint64(10), next.Current.StartTime)
}

func TestRolloverZeroDuration(t *testing.T) {
	next, closed := Rollover(model.EpochLedger{Current: model.NewEpochRecord(5)}, 0, 1<<40)

	assert.Empty(t, closed)
	assert.Equal(t, uint64(5), next.Current.StartTime)
}

func TestSettleCompoundsAcrossEpochs(t *testing.T) {
	proposer := common.HexToAddress("0xa")
	approver := common.HexToAddress("0xb")
	rate := new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil)
	supply := new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil)

	state := &model.FundState{
		ShareSupply:        new(big.Int).Set(supply),
		Shares:             map[common.Address]*big.Int{approver: new(big.Int).Set(supply)},
		ProposerRewardRate: rate,
		ApproverRewardRate: rate,
	}
	first := model.NewEpochRecord(0)
	first.ProposerCounts[proposer] = 2
	first.ApproverCounts[approver] = 2
	first.TotalAccepted = 2
	empty := model.NewEpochRecord(100)
	third := model.NewEpochRecord(200)
	third.ProposerCounts[proposer] = 1
	third.ApproverCounts[approver] = 1
	third.TotalAccepted = 1
	state.Epochs.Pending = []model.EpochRecord{first, empty, third}

	settled := settle(state)
	payouts := settled.Payouts

	require.Len(t, payouts, 4)
	e1 := new(big.Int).Exp(big.NewInt(10), big.NewInt(19), nil)
	e3 := new(big.Int).Mul(big.NewInt(102), new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil))
	assert.Equal(t, e1.String(), payouts[0].Amount)
	assert.Equal(t, roleProposer, payouts[0].Role)
	assert.Equal(t, e1.String(), payouts[1].Amount)
	assert.Equal(t, roleApprover, payouts[1].Role)
	assert.Equal(t, e3.String(), payouts[2].Amount)
	assert.Equal(t, uint64(200), payouts[3].EpochStart)

	want := new(big.Int).Mul(big.NewInt(10404), new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil))
	assert.Equal(t, 0, want.Cmp(state.ShareSupply), "supply %s", state.ShareSupply)
	assert.Empty(t, state.Epochs.Pending)

	require.Len(t, settled.Epochs, 3)
	for i, start := range []uint64{0, 100, 200} {
		assert.Equal(t, start, settled.Epochs[i].StartTime)
		assert.True(t, settled.Epochs[i].Paid)
	}
	assert.False(t, first.Paid)
}

func TestSettleSplitsByCount(t *testing.T) {
	a := common.HexToAddress("0xa")
	b := common.HexToAddress("0xb")
	state := &model.FundState{
		ShareSupply:        big.NewInt(3_000),
		Shares:             map[common.Address]*big.Int{},
		ProposerRewardRate: new(big.Int).Quo(RateScale, big.NewInt(10)),
		ApproverRewardRate: new(big.Int),
	}
	epoch := model.NewEpochRecord(0)
	epoch.ProposerCounts[a] = 2
	epoch.ProposerCounts[b] = 1
	epoch.ApproverCounts[a] = 3
	epoch.TotalAccepted = 3
	state.Epochs.Pending = []model.EpochRecord{epoch}

	payouts := settle(state).Payouts

	require.Len(t, payouts, 2)
	assert.Equal(t, "200", state.SharesOf(a).String())
	assert.Equal(t, "100", state.SharesOf(b).String())
	assert.Equal(t, "3300", state.ShareSupply.String())
}
