package fund

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"poolfund/internal/model"
)

// executeTrades debits every input, settles the legs of p in one exchange
// call and credits the outputs. A single trade goes through Swap; several go
// through SwapBatch so that a failing leg leaves no leg filled.
func (f *Fund) executeTrades(ctx context.Context, state *model.FundState, p *model.Proposal) error {
	if f.exchange == nil {
		return fmt.Errorf("%w: no exchange configured", ErrExternalFailure)
	}

	need := make(map[common.Address]*big.Int)
	for _, t := range p.Trades {
		if err := validateTrade(state, t); err != nil {
			return err
		}
		sum, ok := need[t.AssetIn]
		if !ok {
			sum = new(big.Int)
			need[t.AssetIn] = sum
		}
		sum.Add(sum, t.AmountIn)
	}
	for token, amount := range need {
		if bal := state.Balance(token); bal.Cmp(amount) < 0 {
			return fmt.Errorf("%w: fund holds %s of %s, trades need %s", ErrInsufficientFunds, bal, token.Hex(), amount)
		}
	}

	var batch BatchExchange
	if len(p.Trades) > 1 {
		var ok bool
		if batch, ok = f.exchange.(BatchExchange); !ok {
			return fmt.Errorf("%w: exchange cannot settle %d trades as one batch", ErrExternalFailure, len(p.Trades))
		}
	}

	for _, t := range p.Trades {
		if err := debit(state, t.AssetIn, t.AmountIn); err != nil {
			return err
		}
	}

	var outs []*big.Int
	err := f.external(ctx, func(ctx context.Context) error {
		if batch != nil {
			var err error
			outs, err = batch.SwapBatch(ctx, p.Trades)
			return err
		}
		t := p.Trades[0]
		out, err := f.exchange.Swap(ctx, t.AssetIn, t.AssetOut, t.AmountIn, minOut(t))
		outs = []*big.Int{out}
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: swap: %w", ErrExternalFailure, err)
	}
	if len(outs) != len(p.Trades) {
		return fmt.Errorf("%w: exchange filled %d of %d trades", ErrExternalFailure, len(outs), len(p.Trades))
	}

	for i := range p.Trades {
		t := &p.Trades[i]
		out := outs[i]
		if out == nil || out.Sign() < 0 || out.Cmp(minOut(*t)) < 0 {
			return fmt.Errorf("%w: trade %d returned %v below minimum %s", ErrExternalFailure, i, out, minOut(*t))
		}
		credit(state, t.AssetOut, out)
		t.AmountOut = new(big.Int).Set(out)
	}
	return nil
}

func minOut(t model.Trade) *big.Int {
	if t.MinAmountOut == nil {
		return new(big.Int)
	}
	return t.MinAmountOut
}
