package fund

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"poolfund/internal/model"
)

// RateScale is the fixed-point unit of reward rates: 1e18 is 100% of the
// share supply per epoch, 1e16 is 1%.
var RateScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

const (
	roleProposer = "proposer"
	roleApprover = "approver"
)

// Rollover closes every epoch whose window has elapsed at now. Closed records
// are appended to the pending queue and also returned, oldest first. The input
// ledger is not modified. A zero duration never rolls over.
func Rollover(ledger model.EpochLedger, durationSecs, now uint64) (model.EpochLedger, []model.EpochRecord) {
	out := ledger.Clone()
	if durationSecs == 0 {
		return out, nil
	}

	var closed []model.EpochRecord
	for now >= out.Current.StartTime+durationSecs {
		next := model.NewEpochRecord(out.Current.StartTime + durationSecs)
		closed = append(closed, out.Current)
		out.Pending = append(out.Pending, out.Current.Clone())
		out.Current = next
	}
	return out, closed
}

// recordAcceptance credits one accepted proposal to both participants of the open epoch.
func recordAcceptance(ledger *model.EpochLedger, proposer, approver common.Address) {
	if ledger.Current.ProposerCounts == nil {
		ledger.Current.ProposerCounts = make(map[common.Address]uint64)
	}
	if ledger.Current.ApproverCounts == nil {
		ledger.Current.ApproverCounts = make(map[common.Address]uint64)
	}
	ledger.Current.ProposerCounts[proposer]++
	ledger.Current.ApproverCounts[approver]++
	ledger.Current.TotalAccepted++
}

// settle drains the pending queue in order and returns the drained records
// marked paid. Both roles of an epoch share one supply snapshot; the snapshot
// is re-read for every epoch, so rewards minted for earlier epochs enlarge the
// pools of later ones.
func settle(state *model.FundState) model.Settlement {
	var out model.Settlement
	for _, epoch := range state.Epochs.Pending {
		if epoch.TotalAccepted > 0 {
			supply := new(big.Int).Set(state.ShareSupply)
			out.Payouts = append(out.Payouts, distribute(state, epoch, roleProposer, epoch.ProposerCounts, supply, state.ProposerRewardRate)...)
			out.Payouts = append(out.Payouts, distribute(state, epoch, roleApprover, epoch.ApproverCounts, supply, state.ApproverRewardRate)...)
		}
		epoch.Paid = true
		out.Epochs = append(out.Epochs, epoch)
	}
	state.Epochs.Pending = nil
	return out
}

func distribute(
	state *model.FundState,
	epoch model.EpochRecord,
	role string,
	counts map[common.Address]uint64,
	supply *big.Int,
	rate *big.Int,
) []model.Payout {
	if rate == nil || rate.Sign() == 0 || supply.Sign() == 0 {
		return nil
	}
	den := new(big.Int).Mul(RateScale, new(big.Int).SetUint64(epoch.TotalAccepted))

	var payouts []model.Payout
	for _, participant := range sortedParticipants(counts) {
		count := counts[participant]
		if count == 0 {
			continue
		}
		reward := new(big.Int).Mul(supply, rate)
		reward.Mul(reward, new(big.Int).SetUint64(count))
		reward.Quo(reward, den)
		if reward.Sign() == 0 {
			continue
		}
		mint(state, participant, reward)
		payouts = append(payouts, model.Payout{
			EpochStart:  epoch.StartTime,
			Role:        role,
			Participant: participant.Hex(),
			Count:       count,
			Amount:      reward.String(),
		})
	}
	return payouts
}

func sortedParticipants(counts map[common.Address]uint64) []common.Address {
	out := make([]common.Address, 0, len(counts))
	for addr := range counts {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Bytes(), out[j].Bytes()) < 0
	})
	return out
}
