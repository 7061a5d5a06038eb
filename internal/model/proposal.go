package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ProposalState is the lifecycle position of a trade proposal.
type ProposalState uint8

const (
	ProposalActive ProposalState = iota
	ProposalIntentSignaled
	ProposalExecuted
	ProposalCancelled
)

func (s ProposalState) String() string {
	switch s {
	case ProposalActive:
		return "active"
	case ProposalIntentSignaled:
		return "intent_signaled"
	case ProposalExecuted:
		return "executed"
	case ProposalCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s ProposalState) Terminal() bool {
	return s == ProposalExecuted || s == ProposalCancelled
}

// Trade is one leg of a proposal: sell AmountIn of AssetIn for AssetOut.
// MinAmountOut may be nil when the proposer supplies no bound.
type Trade struct {
	AssetIn      common.Address `json:"asset_in"`
	AssetOut     common.Address `json:"asset_out"`
	AmountIn     *big.Int       `json:"amount_in"`
	MinAmountOut *big.Int       `json:"min_amount_out,omitempty"`
	AmountOut    *big.Int       `json:"amount_out,omitempty"`
}

// Proposal is a trade suggestion awaiting the owner's decision.
type Proposal struct {
	ID        uint64         `json:"id"`
	Proposer  common.Address `json:"proposer"`
	Trades    []Trade        `json:"trades"`
	CreatedAt uint64         `json:"created_at"`
	IntentAt  uint64         `json:"intent_at,omitempty"`
	State     ProposalState  `json:"state"`
}

// Clone returns a deep copy of the proposal.
func (p Proposal) Clone() Proposal {
	out := p
	out.Trades = make([]Trade, len(p.Trades))
	for i, t := range p.Trades {
		out.Trades[i] = Trade{
			AssetIn:      t.AssetIn,
			AssetOut:     t.AssetOut,
			AmountIn:     copyInt(t.AmountIn),
			MinAmountOut: copyInt(t.MinAmountOut),
			AmountOut:    copyInt(t.AmountOut),
		}
	}
	return out
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
