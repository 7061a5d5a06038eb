package sim

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"poolfund/internal/model"
)

const bpsDenominator = 10_000

// ErrSlippage is returned when a swap would pay out less than the caller's minimum.
var ErrSlippage = errors.New("output below minimum")

// Router swaps the fund's tokens against a reserve account at oracle prices,
// keeping FeeBps of the output.
type Router struct {
	market  *Market
	fund    common.Address
	reserve common.Address
	feeBps  uint64

	// OnSwap, when set, runs once per leg after validation and before any transfer.
	OnSwap func(ctx context.Context) error
}

func NewRouter(market *Market, fund, reserve common.Address, feeBps uint64) (*Router, error) {
	if market == nil {
		return nil, fmt.Errorf("market is nil")
	}
	if feeBps >= bpsDenominator {
		return nil, fmt.Errorf("fee %d bps out of range", feeBps)
	}
	return &Router{market: market, fund: fund, reserve: reserve, feeBps: feeBps}, nil
}

// Reserve is the account that supplies swap outputs.
func (r *Router) Reserve() common.Address {
	return r.reserve
}

// Quote prices amountIn of assetIn in assetOut after the fee:
// amountIn*pIn*10^(dOut+fOut)*(1-fee) / (10^(dIn+fIn)*pOut).
func (r *Router) Quote(ctx context.Context, assetIn, assetOut common.Address, amountIn *big.Int) (*big.Int, error) {
	in, err := r.listing(assetIn)
	if err != nil {
		return nil, err
	}
	out, err := r.listing(assetOut)
	if err != nil {
		return nil, err
	}
	inRound, err := in.feed.LatestRoundData(ctx)
	if err != nil {
		return nil, err
	}
	outRound, err := out.feed.LatestRoundData(ctx)
	if err != nil {
		return nil, err
	}
	if outRound.Answer.Sign() <= 0 || inRound.Answer.Sign() <= 0 {
		return nil, fmt.Errorf("non-positive price")
	}

	num := new(big.Int).Mul(amountIn, inRound.Answer)
	num.Mul(num, pow10(int64(out.token.decimals)+int64(out.feed.decimals)))
	num.Mul(num, big.NewInt(int64(bpsDenominator-r.feeBps)))
	den := new(big.Int).Mul(pow10(int64(in.token.decimals)+int64(in.feed.decimals)), outRound.Answer)
	den.Mul(den, big.NewInt(bpsDenominator))
	return num.Quo(num, den), nil
}

func (r *Router) Swap(ctx context.Context, assetIn, assetOut common.Address, amountIn, minAmountOut *big.Int) (*big.Int, error) {
	outs, err := r.SwapBatch(ctx, []model.Trade{{AssetIn: assetIn, AssetOut: assetOut, AmountIn: amountIn, MinAmountOut: minAmountOut}})
	if err != nil {
		return nil, err
	}
	return outs[0], nil
}

// SwapBatch quotes every leg and checks the fund and reserve can cover the
// whole batch before any token moves. Balances are checked as held before the
// batch, so no leg may rely on the output of another.
func (r *Router) SwapBatch(ctx context.Context, trades []model.Trade) ([]*big.Int, error) {
	if len(trades) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	outs := make([]*big.Int, len(trades))
	legs := make([]listingPair, len(trades))
	spend := make(map[*Token]*big.Int)
	pay := make(map[*Token]*big.Int)
	for i, t := range trades {
		if t.AmountIn == nil || t.AmountIn.Sign() <= 0 {
			return nil, fmt.Errorf("leg %d: swap amount must be positive", i)
		}
		out, err := r.Quote(ctx, t.AssetIn, t.AssetOut, t.AmountIn)
		if err != nil {
			return nil, fmt.Errorf("leg %d: %w", i, err)
		}
		if t.MinAmountOut != nil && out.Cmp(t.MinAmountOut) < 0 {
			return nil, fmt.Errorf("leg %d: %w: %s < %s", i, ErrSlippage, out, t.MinAmountOut)
		}
		in, _ := r.market.ERC20(t.AssetIn)
		to, _ := r.market.ERC20(t.AssetOut)
		legs[i] = listingPair{in: in, out: to}
		outs[i] = out
		addTo(spend, in, t.AmountIn)
		addTo(pay, to, out)
	}
	for token, amount := range spend {
		if bal, _ := token.BalanceOf(ctx, r.fund); bal.Cmp(amount) < 0 {
			return nil, fmt.Errorf("fund holds %s %s, batch needs %s", bal, token.Symbol, amount)
		}
	}
	for token, amount := range pay {
		if bal, _ := token.BalanceOf(ctx, r.reserve); bal.Cmp(amount) < 0 {
			return nil, fmt.Errorf("reserve holds %s %s, batch pays %s", bal, token.Symbol, amount)
		}
	}

	if r.OnSwap != nil {
		for range trades {
			if err := r.OnSwap(ctx); err != nil {
				return nil, err
			}
		}
	}

	for i, t := range trades {
		if err := legs[i].in.Transfer(ctx, r.fund, r.reserve, t.AmountIn); err != nil {
			return nil, fmt.Errorf("leg %d: %w", i, err)
		}
		if err := legs[i].out.Transfer(ctx, r.reserve, r.fund, outs[i]); err != nil {
			return nil, fmt.Errorf("leg %d: %w", i, err)
		}
	}
	return outs, nil
}

type listingPair struct {
	in, out *Token
}

func addTo(sums map[*Token]*big.Int, token *Token, amount *big.Int) {
	sum, ok := sums[token]
	if !ok {
		sum = new(big.Int)
		sums[token] = sum
	}
	sum.Add(sum, amount)
}

type listing struct {
	token *Token
	feed  *Aggregator
}

func (r *Router) listing(asset common.Address) (listing, error) {
	token, ok := r.market.ERC20(asset)
	if !ok {
		return listing{}, fmt.Errorf("token %s not listed", asset.Hex())
	}
	feed, ok := r.market.FeedOf(asset)
	if !ok {
		return listing{}, fmt.Errorf("no feed for %s", asset.Hex())
	}
	return listing{token: token, feed: feed}, nil
}

func pow10(exp int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil)
}
