package fund

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"poolfund/internal/model"
)

// AssetValue is the contribution of one asset to the fund's NAV.
type AssetValue struct {
	Asset         model.Asset
	Balance       *big.Int
	TokenDecimals uint8
	Price         *big.Int
	PriceDecimals uint8
	Value         *big.Int
}

// Valuation is a NAV breakdown expressed in base-asset units.
type Valuation struct {
	BaseDecimals uint8
	Total        *big.Int
	Assets       []AssetValue
}

type quote struct {
	price    *big.Int
	decimals uint8
}

// Value computes the NAV of state. Each asset contributes
// balance*price*10^baseDecimals / (10^tokenDecimals * 10^priceDecimals);
// contributions are summed exactly and truncated once.
func Value(ctx context.Context, state *model.FundState, pricing Pricing, cache *DecimalsCache) (Valuation, error) {
	base, ok := state.BaseAsset()
	if !ok {
		return Valuation{}, fmt.Errorf("%w: fund has no base asset", ErrInvalidState)
	}
	if cache == nil {
		cache = NewDecimalsCache()
	}
	baseDecimals, err := tokenDecimals(ctx, pricing, cache, base.Token)
	if err != nil {
		return Valuation{}, err
	}

	val := Valuation{BaseDecimals: baseDecimals, Assets: make([]AssetValue, 0, len(state.Assets))}
	baseScale := pow10(baseDecimals)
	sum := new(big.Rat)
	for _, asset := range state.Assets {
		decimals, err := tokenDecimals(ctx, pricing, cache, asset.Token)
		if err != nil {
			return Valuation{}, err
		}
		q, err := latestPrice(ctx, pricing, cache, asset.Feed)
		if err != nil {
			return Valuation{}, err
		}

		balance := new(big.Int).Set(state.Balance(asset.Token))
		num := new(big.Int).Mul(balance, q.price)
		num.Mul(num, baseScale)
		den := new(big.Int).Mul(pow10(decimals), pow10(q.decimals))
		contrib := new(big.Rat).SetFrac(num, den)
		sum.Add(sum, contrib)

		val.Assets = append(val.Assets, AssetValue{
			Asset:         asset,
			Balance:       balance,
			TokenDecimals: decimals,
			Price:         q.price,
			PriceDecimals: q.decimals,
			Value:         new(big.Int).Quo(num, den),
		})
	}
	val.Total = new(big.Int).Quo(sum.Num(), sum.Denom())
	return val, nil
}

func tokenDecimals(ctx context.Context, pricing Pricing, cache *DecimalsCache, token common.Address) (uint8, error) {
	if decimals, ok := cache.Get(token); ok {
		return decimals, nil
	}
	meta, err := pricing.Meta(token)
	if err != nil {
		return 0, fmt.Errorf("%w: resolve token %s: %w", ErrNotFound, token.Hex(), err)
	}
	return cache.load(ctx, token, meta)
}

func latestPrice(ctx context.Context, pricing Pricing, cache *DecimalsCache, feedAddr common.Address) (quote, error) {
	feed, err := pricing.Feed(feedAddr)
	if err != nil {
		return quote{}, fmt.Errorf("%w: resolve feed %s: %w", ErrNotFound, feedAddr.Hex(), err)
	}
	decimals, err := cache.load(ctx, feedAddr, feed)
	if err != nil {
		return quote{}, err
	}
	round, err := feed.LatestRoundData(ctx)
	if err != nil {
		return quote{}, fmt.Errorf("%w: latest round of %s: %w", ErrExternalFailure, feedAddr.Hex(), err)
	}
	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return quote{}, fmt.Errorf("%w: feed %s answered %v", ErrExternalFailure, feedAddr.Hex(), round.Answer)
	}
	return quote{price: new(big.Int).Set(round.Answer), decimals: decimals}, nil
}

func pow10(exp uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}
