package fund

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolfund/internal/model"
)

// AddAsset registers token, priced by feed, as a fund holding. Registration is
// append-only; a token can be added once.
func (f *Fund) AddAsset(ctx context.Context, caller, token, feed common.Address) error {
	err := f.updateContext(ctx, "add_asset", caller, true, func(_ context.Context, state *model.FundState, _ uint64) error {
		if token == (common.Address{}) || feed == (common.Address{}) {
			return fmt.Errorf("%w: asset token and feed are required", ErrInvalidAmount)
		}
		if _, ok := assetIndex(state, token); ok {
			return fmt.Errorf("%w: asset %s already registered", ErrInvalidState, token.Hex())
		}
		if _, err := f.dir.Token(token); err != nil {
			return fmt.Errorf("%w: resolve token %s: %w", ErrNotFound, token.Hex(), err)
		}
		if _, err := f.dir.Feed(feed); err != nil {
			return fmt.Errorf("%w: resolve feed %s: %w", ErrNotFound, feed.Hex(), err)
		}
		state.Assets = append(state.Assets, model.Asset{Token: token, Feed: feed})
		if state.Balances == nil {
			state.Balances = make(map[common.Address]*big.Int)
		}
		if _, ok := state.Balances[token]; !ok {
			state.Balances[token] = new(big.Int)
		}
		return nil
	})
	if err != nil {
		return err
	}
	f.logger.Info("asset added", zap.String("token", token.Hex()), zap.String("feed", feed.Hex()))
	return nil
}

func assetIndex(state *model.FundState, token common.Address) (int, bool) {
	for i, asset := range state.Assets {
		if asset.Token == token {
			return i, true
		}
	}
	return -1, false
}
