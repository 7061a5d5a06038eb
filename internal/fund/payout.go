package fund

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolfund/internal/model"
)

// PayoutProposers settles every closed epoch. Each epoch pays both roles from
// one supply snapshot, so this and PayoutApprovers drain the same queue.
func (f *Fund) PayoutProposers(ctx context.Context, caller common.Address) ([]model.Payout, error) {
	s, err := f.settle(ctx, "payout_proposers", caller)
	return s.Payouts, err
}

// PayoutApprovers settles every closed epoch; see PayoutProposers.
func (f *Fund) PayoutApprovers(ctx context.Context, caller common.Address) ([]model.Payout, error) {
	s, err := f.settle(ctx, "payout_approvers", caller)
	return s.Payouts, err
}

// Settle pays out every closed epoch and also returns the consumed records.
func (f *Fund) Settle(ctx context.Context, caller common.Address) (model.Settlement, error) {
	return f.settle(ctx, "settle", caller)
}

func (f *Fund) settle(ctx context.Context, op string, caller common.Address) (model.Settlement, error) {
	var out model.Settlement
	err := f.updateContext(ctx, op, caller, false, func(_ context.Context, state *model.FundState, _ uint64) error {
		out = settle(state)
		return nil
	})
	if err != nil {
		return model.Settlement{}, err
	}
	if len(out.Epochs) > 0 {
		f.logger.Info("epochs settled",
			zap.String("op", op),
			zap.Int("epochs", len(out.Epochs)),
			zap.Uint64("first_start", out.Epochs[0].StartTime),
			zap.Int("payouts", len(out.Payouts)),
			zap.String("supply", f.committed.Load().ShareSupply.String()),
		)
	}
	return out, nil
}
