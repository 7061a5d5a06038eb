package storage

import (
	"context"

	"poolfund/internal/model"
)

// StateStore persists the fund ledger between runs.
type StateStore interface {
	Load(ctx context.Context) (*model.FundState, bool, error)
	Save(ctx context.Context, state *model.FundState) error
}

// Recorder keeps an audit trail of fund activity.
type Recorder interface {
	PutProposals(ctx context.Context, fund string, proposals []model.Proposal) error
	PutPayouts(ctx context.Context, fund string, payouts []model.Payout) error
	PutNavSnapshot(ctx context.Context, snapshot model.NavSnapshot) error
}
