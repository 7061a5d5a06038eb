package nav

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"poolfund/internal/fund"
	"poolfund/internal/model"
	"poolfund/internal/report"
	"poolfund/internal/storage"
)

// Chain reports block heights and times.
type Chain interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// Balances reads on-chain token balances.
type Balances interface {
	BalanceAt(ctx context.Context, token, owner common.Address, block *big.Int) (*big.Int, error)
}

// Job values a persisted fund with live prices and reconciles its tracked
// balances against the chain.
type Job struct {
	Chain    Chain
	Pricing  fund.Pricing
	Balances Balances
	States   storage.StateStore
	Recorder storage.Recorder
	// Fund, when set, must match the persisted fund address.
	Fund common.Address
	// Block pins reconciliation to a height; 0 follows the head.
	Block  uint64
	Logger *zap.Logger

	decimals *fund.DecimalsCache
}

// Run takes one snapshot and records it.
func (j *Job) Run(ctx context.Context) (model.NavSnapshot, error) {
	logger := j.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if j.decimals == nil {
		j.decimals = fund.NewDecimalsCache()
	}

	state, ok, err := j.States.Load(ctx)
	if err != nil {
		return model.NavSnapshot{}, fmt.Errorf("load state: %w", err)
	}
	if !ok {
		return model.NavSnapshot{}, fmt.Errorf("no persisted fund state")
	}
	if j.Fund != (common.Address{}) && j.Fund != state.Address {
		return model.NavSnapshot{}, fmt.Errorf("state belongs to fund %s, not %s", state.Address.Hex(), j.Fund.Hex())
	}

	block := j.Block
	if block == 0 {
		block, err = j.Chain.LatestBlockNumber(ctx)
		if err != nil {
			return model.NavSnapshot{}, fmt.Errorf("latest block: %w", err)
		}
	}
	ts, err := j.Chain.BlockTimestamp(ctx, block)
	if err != nil {
		return model.NavSnapshot{}, fmt.Errorf("block %d time: %w", block, err)
	}

	valuation, err := fund.Value(ctx, state, j.Pricing, j.decimals)
	if err != nil {
		return model.NavSnapshot{}, fmt.Errorf("value fund: %w", err)
	}

	height := new(big.Int).SetUint64(block)
	actual := make(map[common.Address]*big.Int, len(state.Assets))
	for _, asset := range state.Assets {
		bal, err := j.Balances.BalanceAt(ctx, asset.Token, state.Address, height)
		if err != nil {
			return model.NavSnapshot{}, fmt.Errorf("balance of %s: %w", asset.Token.Hex(), err)
		}
		actual[asset.Token] = bal
	}

	snap := report.NavSnapshot(report.Snapshot{
		RunID:        uuid.NewString(),
		State:        state,
		BaseDecimals: valuation.BaseDecimals,
		Total:        valuation.Total,
		BlockNumber:  block,
		BlockTime:    time.Unix(int64(ts), 0),
		Actual:       actual,
	})
	if err := j.Recorder.PutNavSnapshot(ctx, snap); err != nil {
		return model.NavSnapshot{}, fmt.Errorf("record nav: %w", err)
	}

	for _, d := range snap.Drift {
		logger.Warn("balance drift",
			zap.String("token", d.Token),
			zap.String("tracked", d.Tracked),
			zap.String("actual", d.Actual),
		)
	}
	price := ""
	if snap.SharePrice != nil {
		price = *snap.SharePrice
	}
	logger.Info("nav snapshot",
		zap.String("run_id", snap.RunID),
		zap.String("fund", snap.FundAddress),
		zap.Uint64("block", block),
		zap.String("nav", snap.TotalValue),
		zap.String("share_supply", snap.ShareSupply),
		zap.String("share_price", price),
		zap.Int("drift", len(snap.Drift)),
	)
	return snap, nil
}
