package fund

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"poolfund/internal/model"
)

// RoundData is the latest answer reported by a price feed.
type RoundData struct {
	RoundID   *big.Int
	Answer    *big.Int
	StartedAt uint64
	UpdatedAt uint64
}

// PriceFeed reports an asset price with Decimals of fixed-point precision.
type PriceFeed interface {
	LatestRoundData(ctx context.Context) (RoundData, error)
	Decimals(ctx context.Context) (uint8, error)
}

// ERC20 is the read side of a value token.
type ERC20 interface {
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Decimals(ctx context.Context) (uint8, error)
}

// Token is a transferable value token. The acting account is passed explicitly.
type Token interface {
	ERC20
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount *big.Int) error
	Approve(ctx context.Context, owner, spender common.Address, amount *big.Int) error
}

// Exchange converts amountIn of assetIn held by the fund into assetOut.
// It must fail without effect when the output would be below minAmountOut.
type Exchange interface {
	Swap(ctx context.Context, assetIn, assetOut common.Address, amountIn, minAmountOut *big.Int) (*big.Int, error)
}

// BatchExchange settles several swaps as one unit: every leg fills or none
// does. Proposals with more than one trade need it.
type BatchExchange interface {
	Exchange
	SwapBatch(ctx context.Context, trades []model.Trade) ([]*big.Int, error)
}

// Pricing resolves feeds and token metadata for valuation.
type Pricing interface {
	Feed(feed common.Address) (PriceFeed, error)
	Meta(token common.Address) (ERC20, error)
}

// Directory resolves every collaborator the fund drives.
type Directory interface {
	Pricing
	Token(token common.Address) (Token, error)
}

// Clock supplies the current time to entry points.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}
