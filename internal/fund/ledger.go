package fund

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolfund/internal/model"
)

// Issue pulls amount of the base asset from caller and mints shares in
// proportion to the deposit's value against the current NAV. While the supply
// is zero the configured peg sets the conversion instead.
func (f *Fund) Issue(ctx context.Context, caller common.Address, amount *big.Int) (*big.Int, error) {
	var minted *big.Int
	err := f.updateContext(ctx, "issue", caller, false, func(ctx context.Context, state *model.FundState, _ uint64) error {
		if amount == nil || amount.Sign() <= 0 {
			return fmt.Errorf("%w: deposit must be positive", ErrInvalidAmount)
		}
		base, _ := state.BaseAsset()
		q, err := latestPrice(ctx, f.dir, f.decimals, base.Feed)
		if err != nil {
			return err
		}

		var shares *big.Int
		if state.ShareSupply.Sign() == 0 {
			baseDecimals, err := tokenDecimals(ctx, f.dir, f.decimals, base.Token)
			if err != nil {
				return err
			}
			shares, err = bootstrapShares(amount, q, baseDecimals, state.Peg)
			if err != nil {
				return err
			}
		} else {
			val, err := Value(ctx, state, f.dir, f.decimals)
			if err != nil {
				return err
			}
			if val.Total.Sign() == 0 {
				return fmt.Errorf("%w: fund has supply %s but no value", ErrInvalidState, state.ShareSupply)
			}
			shares = new(big.Int).Mul(amount, q.price)
			shares.Mul(shares, state.ShareSupply)
			shares.Quo(shares, new(big.Int).Mul(val.Total, pow10(q.decimals)))
		}
		if shares.Sign() == 0 {
			return fmt.Errorf("%w: deposit %s mints no shares", ErrInvalidAmount, amount)
		}

		token, err := f.dir.Token(base.Token)
		if err != nil {
			return fmt.Errorf("%w: resolve token %s: %w", ErrNotFound, base.Token.Hex(), err)
		}
		err = f.external(ctx, func(ctx context.Context) error {
			return token.TransferFrom(ctx, state.Address, caller, state.Address, amount)
		})
		if err != nil {
			return tokenError("pull deposit", err)
		}

		credit(state, base.Token, amount)
		mint(state, caller, shares)
		minted = shares
		return nil
	})
	if err != nil {
		return nil, err
	}
	f.logger.Info("shares issued",
		zap.String("depositor", caller.Hex()),
		zap.String("amount", amount.String()),
		zap.String("shares", minted.String()),
	)
	return minted, nil
}

// Redeem burns shares from caller and returns the same fraction of every
// held asset. The result is keyed by token.
func (f *Fund) Redeem(ctx context.Context, caller common.Address, shares *big.Int) (map[common.Address]*big.Int, error) {
	var out map[common.Address]*big.Int
	err := f.updateContext(ctx, "redeem", caller, false, func(ctx context.Context, state *model.FundState, _ uint64) error {
		if shares == nil || shares.Sign() <= 0 {
			return fmt.Errorf("%w: redeemed shares must be positive", ErrInvalidAmount)
		}
		held := state.SharesOf(caller)
		if shares.Cmp(held) > 0 {
			return fmt.Errorf("%w: redeem %s shares, holder has %s", ErrInsufficientFunds, shares, held)
		}

		supply := new(big.Int).Set(state.ShareSupply)
		amounts := make(map[common.Address]*big.Int, len(state.Assets))
		tokens := make(map[common.Address]Token, len(state.Assets))
		for _, asset := range state.Assets {
			amt := new(big.Int).Mul(state.Balance(asset.Token), shares)
			amt.Quo(amt, supply)
			amounts[asset.Token] = amt
			if amt.Sign() == 0 {
				continue
			}
			token, err := f.dir.Token(asset.Token)
			if err != nil {
				return fmt.Errorf("%w: resolve token %s: %w", ErrNotFound, asset.Token.Hex(), err)
			}
			onToken, err := token.BalanceOf(ctx, state.Address)
			if err != nil {
				return fmt.Errorf("%w: balance of %s: %w", ErrExternalFailure, asset.Token.Hex(), err)
			}
			if onToken.Cmp(amt) < 0 {
				return fmt.Errorf("%w: fund holds %s of %s, owes %s", ErrInsufficientFunds, onToken, asset.Token.Hex(), amt)
			}
			tokens[asset.Token] = token
		}

		var paid []payment
		for _, asset := range state.Assets {
			amt := amounts[asset.Token]
			if amt.Sign() == 0 {
				continue
			}
			token := tokens[asset.Token]
			err := f.external(ctx, func(ctx context.Context) error {
				return token.Transfer(ctx, state.Address, caller, amt)
			})
			if err != nil {
				err = tokenError("return "+asset.Token.Hex(), err)
				if rerr := f.reclaim(ctx, state.Address, caller, paid); rerr != nil {
					return fmt.Errorf("%w: %w", err, rerr)
				}
				return err
			}
			if err := debit(state, asset.Token, amt); err != nil {
				return err
			}
			paid = append(paid, payment{asset: asset.Token, token: token, amount: amt})
		}

		burn(state, caller, shares)
		out = amounts
		return nil
	})
	if err != nil {
		return nil, err
	}
	f.logger.Info("shares redeemed", zap.String("holder", caller.Hex()), zap.String("shares", shares.String()))
	return out, nil
}

type payment struct {
	asset  common.Address
	token  Token
	amount *big.Int
}

// reclaim pulls back the transfers of a redemption that could not finish,
// newest first, spending the holder's allowance to the fund.
func (f *Fund) reclaim(ctx context.Context, self, holder common.Address, paid []payment) error {
	for i := len(paid) - 1; i >= 0; i-- {
		p := paid[i]
		err := f.external(ctx, func(ctx context.Context) error {
			return p.token.TransferFrom(ctx, self, holder, self, p.amount)
		})
		if err != nil {
			f.logger.Error("redemption left unreclaimed",
				zap.String("holder", holder.Hex()),
				zap.String("token", p.asset.Hex()),
				zap.String("amount", p.amount.String()),
				zap.Error(err),
			)
			return fmt.Errorf("reclaim %s of %s: %w", p.amount, p.asset.Hex(), err)
		}
	}
	return nil
}

// TransferShares moves amount of caller's shares to another holder.
func (f *Fund) TransferShares(ctx context.Context, caller, to common.Address, amount *big.Int) error {
	return f.updateContext(ctx, "transfer_shares", caller, false, func(_ context.Context, state *model.FundState, _ uint64) error {
		if amount == nil || amount.Sign() <= 0 {
			return fmt.Errorf("%w: transfer must be positive", ErrInvalidAmount)
		}
		if to == (common.Address{}) {
			return fmt.Errorf("%w: transfer to zero address", ErrInvalidAmount)
		}
		held := state.SharesOf(caller)
		if amount.Cmp(held) > 0 {
			return fmt.Errorf("%w: transfer %s shares, holder has %s", ErrInsufficientFunds, amount, held)
		}
		burn(state, caller, amount)
		mint(state, to, amount)
		return nil
	})
}

// bootstrapShares converts the first deposit through the peg:
// amount * price * 10^(shareDecimals-baseDecimals) / divisor / 10^priceDecimals.
func bootstrapShares(amount *big.Int, q quote, baseDecimals uint8, peg model.Peg) (*big.Int, error) {
	if peg.MintUnitDivisor == 0 {
		return nil, fmt.Errorf("%w: mint unit divisor is zero", ErrInvalidState)
	}
	if peg.ShareDecimals < baseDecimals {
		return nil, fmt.Errorf("%w: share decimals %d below base decimals %d", ErrInvalidState, peg.ShareDecimals, baseDecimals)
	}
	unit := new(big.Int).Quo(pow10(peg.ShareDecimals-baseDecimals), new(big.Int).SetUint64(peg.MintUnitDivisor))
	shares := new(big.Int).Mul(amount, q.price)
	shares.Mul(shares, unit)
	return shares.Quo(shares, pow10(q.decimals)), nil
}

func tokenError(action string, err error) error {
	if errors.Is(err, ErrInsufficientFunds) {
		return fmt.Errorf("%s: %w", action, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrExternalFailure, action, err)
}

func credit(state *model.FundState, token common.Address, amount *big.Int) {
	if state.Balances == nil {
		state.Balances = make(map[common.Address]*big.Int)
	}
	state.Balances[token] = new(big.Int).Add(state.Balance(token), amount)
}

func debit(state *model.FundState, token common.Address, amount *big.Int) error {
	bal := state.Balance(token)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: fund holds %s of %s, needs %s", ErrInsufficientFunds, bal, token.Hex(), amount)
	}
	state.Balances[token] = new(big.Int).Sub(bal, amount)
	return nil
}

func mint(state *model.FundState, holder common.Address, amount *big.Int) {
	if state.Shares == nil {
		state.Shares = make(map[common.Address]*big.Int)
	}
	state.Shares[holder] = new(big.Int).Add(state.SharesOf(holder), amount)
	state.ShareSupply = new(big.Int).Add(state.ShareSupply, amount)
}

func burn(state *model.FundState, holder common.Address, amount *big.Int) {
	left := new(big.Int).Sub(state.SharesOf(holder), amount)
	if left.Sign() == 0 {
		delete(state.Shares, holder)
	} else {
		state.Shares[holder] = left
	}
	state.ShareSupply = new(big.Int).Sub(state.ShareSupply, amount)
}
