package fund

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolfund/internal/model"
)

// CreateProposal registers an Active proposal on behalf of any caller and
// returns its id.
func (f *Fund) CreateProposal(ctx context.Context, caller common.Address, trades []model.Trade) (uint64, error) {
	var id uint64
	err := f.updateContext(ctx, "create_proposal", caller, false, func(_ context.Context, state *model.FundState, now uint64) error {
		if caller == (common.Address{}) {
			return fmt.Errorf("%w: proposer is required", ErrInvalidAmount)
		}
		if len(trades) == 0 {
			return fmt.Errorf("%w: proposal has no trades", ErrInvalidAmount)
		}
		legs := make([]model.Trade, 0, len(trades))
		for i, t := range trades {
			if err := validateTrade(state, t); err != nil {
				return fmt.Errorf("trade %d: %w", i, err)
			}
			leg := model.Trade{AssetIn: t.AssetIn, AssetOut: t.AssetOut, AmountIn: new(big.Int).Set(t.AmountIn)}
			if t.MinAmountOut != nil {
				leg.MinAmountOut = new(big.Int).Set(t.MinAmountOut)
			}
			legs = append(legs, leg)
		}

		if state.NextProposalID == 0 {
			state.NextProposalID = 1
		}
		id = state.NextProposalID
		state.NextProposalID++
		state.Proposals = append(state.Proposals, model.Proposal{
			ID:        id,
			Proposer:  caller,
			Trades:    legs,
			CreatedAt: now,
			State:     model.ProposalActive,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	f.logger.Info("proposal created", zap.Uint64("id", id), zap.String("proposer", caller.Hex()), zap.Int("trades", len(trades)))
	return id, nil
}

// IntentToAccept starts the timelock of an Active proposal.
func (f *Fund) IntentToAccept(ctx context.Context, caller common.Address, id uint64) error {
	return f.updateContext(ctx, "intent_to_accept", caller, true, func(_ context.Context, state *model.FundState, now uint64) error {
		idx, err := findProposal(state, id)
		if err != nil {
			return err
		}
		p := &state.Proposals[idx]
		if p.State != model.ProposalActive {
			return fmt.Errorf("%w: proposal %d is %s", ErrInvalidState, id, p.State)
		}
		p.State = model.ProposalIntentSignaled
		p.IntentAt = now
		return nil
	})
}

// AcceptProposal executes the trades of proposal id and removes it from the
// active list. With a timelock configured, intent must have been signalled at
// least the timelock duration ago.
func (f *Fund) AcceptProposal(ctx context.Context, caller common.Address, id uint64) (model.Proposal, error) {
	var executed model.Proposal
	err := f.updateContext(ctx, "accept_proposal", caller, true, func(ctx context.Context, state *model.FundState, now uint64) error {
		idx, err := findProposal(state, id)
		if err != nil {
			return err
		}
		p := state.Proposals[idx].Clone()
		if err := checkAcceptable(state, p, now); err != nil {
			return err
		}

		if err := f.executeTrades(ctx, state, &p); err != nil {
			return fmt.Errorf("proposal %d: %w", id, err)
		}

		p.State = model.ProposalExecuted
		state.Proposals = append(state.Proposals[:idx], state.Proposals[idx+1:]...)
		recordAcceptance(&state.Epochs, p.Proposer, caller)
		executed = p
		return nil
	})
	if err != nil {
		return model.Proposal{}, err
	}
	f.logger.Info("proposal accepted",
		zap.Uint64("id", id),
		zap.String("proposer", executed.Proposer.Hex()),
		zap.String("approver", caller.Hex()),
	)
	return executed, nil
}

// CancelProposal withdraws an open proposal. Only its proposer or the owner may cancel.
func (f *Fund) CancelProposal(ctx context.Context, caller common.Address, id uint64) (model.Proposal, error) {
	var cancelled model.Proposal
	err := f.updateContext(ctx, "cancel_proposal", caller, false, func(_ context.Context, state *model.FundState, _ uint64) error {
		idx, err := findProposal(state, id)
		if err != nil {
			return err
		}
		p := state.Proposals[idx].Clone()
		if caller != p.Proposer && !isOwner(state, caller) {
			return fmt.Errorf("%w: only the proposer or owner may cancel proposal %d", ErrUnauthorized, id)
		}
		p.State = model.ProposalCancelled
		state.Proposals = append(state.Proposals[:idx], state.Proposals[idx+1:]...)
		cancelled = p
		return nil
	})
	if err != nil {
		return model.Proposal{}, err
	}
	f.logger.Info("proposal cancelled", zap.Uint64("id", id), zap.String("caller", caller.Hex()))
	return cancelled, nil
}

func checkAcceptable(state *model.FundState, p model.Proposal, now uint64) error {
	if state.TimelockSecs == 0 {
		if p.State != model.ProposalActive && p.State != model.ProposalIntentSignaled {
			return fmt.Errorf("%w: proposal %d is %s", ErrInvalidState, p.ID, p.State)
		}
		return nil
	}
	if p.State != model.ProposalIntentSignaled {
		return fmt.Errorf("%w: proposal %d requires intent before acceptance", ErrInvalidState, p.ID)
	}
	if now < p.IntentAt+state.TimelockSecs {
		return fmt.Errorf("%w: proposal %d timelocked until %d", ErrInvalidState, p.ID, p.IntentAt+state.TimelockSecs)
	}
	return nil
}

// findProposal scans the active list for id.
func findProposal(state *model.FundState, id uint64) (int, error) {
	for i, p := range state.Proposals {
		if p.ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: proposal %d", ErrNotFound, id)
}

func validateTrade(state *model.FundState, t model.Trade) error {
	if t.AmountIn == nil || t.AmountIn.Sign() <= 0 {
		return fmt.Errorf("%w: amount in must be positive", ErrInvalidAmount)
	}
	if t.MinAmountOut != nil && t.MinAmountOut.Sign() < 0 {
		return fmt.Errorf("%w: negative minimum out", ErrInvalidAmount)
	}
	if t.AssetIn == t.AssetOut {
		return fmt.Errorf("%w: asset %s traded for itself", ErrInvalidAmount, t.AssetIn.Hex())
	}
	if _, ok := assetIndex(state, t.AssetIn); !ok {
		return fmt.Errorf("%w: asset %s not registered", ErrNotFound, t.AssetIn.Hex())
	}
	if _, ok := assetIndex(state, t.AssetOut); !ok {
		return fmt.Errorf("%w: asset %s not registered", ErrNotFound, t.AssetOut.Hex())
	}
	return nil
}
