package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Peg configures the bootstrap conversion used while the share supply is zero.
// One base unit mints 10^(ShareDecimals-baseDecimals) / MintUnitDivisor shares
// per unit of oracle price.
type Peg struct {
	ShareDecimals   uint8  `json:"share_decimals"`
	MintUnitDivisor uint64 `json:"mint_unit_divisor"`
}

// FundState is the complete ledger of a fund. Assets[0] is the deposit asset.
type FundState struct {
	Owner   common.Address `json:"owner"`
	Address common.Address `json:"address"`

	Assets   []Asset                     `json:"assets"`
	Balances map[common.Address]*big.Int `json:"balances"`

	ShareSupply *big.Int                    `json:"share_supply"`
	Shares      map[common.Address]*big.Int `json:"shares"`

	EpochDurationSecs  uint64   `json:"epoch_duration_secs"`
	ProposerRewardRate *big.Int `json:"proposer_reward_rate"`
	ApproverRewardRate *big.Int `json:"approver_reward_rate"`
	TimelockSecs       uint64   `json:"timelock_secs"`
	Peg                Peg      `json:"peg"`

	Proposals      []Proposal `json:"proposals"`
	NextProposalID uint64     `json:"next_proposal_id"`

	Epochs EpochLedger `json:"epochs"`
}

// BaseAsset returns the deposit asset.
func (s *FundState) BaseAsset() (Asset, bool) {
	if s == nil || len(s.Assets) == 0 {
		return Asset{}, false
	}
	return s.Assets[0], true
}

// Balance returns the tracked holding of token, zero when absent.
func (s *FundState) Balance(token common.Address) *big.Int {
	if bal, ok := s.Balances[token]; ok && bal != nil {
		return bal
	}
	return new(big.Int)
}

// SharesOf returns the share balance of holder, zero when absent.
func (s *FundState) SharesOf(holder common.Address) *big.Int {
	if bal, ok := s.Shares[holder]; ok && bal != nil {
		return bal
	}
	return new(big.Int)
}

// Clone returns a deep copy so callers can mutate it and commit atomically.
func (s *FundState) Clone() *FundState {
	if s == nil {
		return nil
	}
	out := &FundState{
		Owner:              s.Owner,
		Address:            s.Address,
		Assets:             append([]Asset(nil), s.Assets...),
		Balances:           copyAmounts(s.Balances),
		ShareSupply:        copyInt(s.ShareSupply),
		Shares:             copyAmounts(s.Shares),
		EpochDurationSecs:  s.EpochDurationSecs,
		ProposerRewardRate: copyInt(s.ProposerRewardRate),
		ApproverRewardRate: copyInt(s.ApproverRewardRate),
		TimelockSecs:       s.TimelockSecs,
		Peg:                s.Peg,
		NextProposalID:     s.NextProposalID,
		Epochs:             s.Epochs.Clone(),
	}
	if out.ShareSupply == nil {
		out.ShareSupply = new(big.Int)
	}
	if s.Proposals != nil {
		out.Proposals = make([]Proposal, len(s.Proposals))
		for i, p := range s.Proposals {
			out.Proposals[i] = p.Clone()
		}
	}
	return out
}

func copyAmounts(in map[common.Address]*big.Int) map[common.Address]*big.Int {
	out := make(map[common.Address]*big.Int, len(in))
	for k, v := range in {
		out[k] = copyInt(v)
	}
	return out
}
