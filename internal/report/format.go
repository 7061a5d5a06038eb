package report

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const priceScale = 18

// Amount renders a raw token amount with its decimals applied, trailing zeros trimmed.
func Amount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).String()
}

// SharePrice returns the base-asset value of one whole share, or nil while no
// shares exist.
func SharePrice(total *big.Int, baseDecimals uint8, supply *big.Int, shareDecimals uint8) *string {
	if total == nil || supply == nil || supply.Sign() <= 0 {
		return nil
	}
	value := decimal.NewFromBigInt(total, -int32(baseDecimals))
	shares := decimal.NewFromBigInt(supply, -int32(shareDecimals))
	price := value.DivRound(shares, priceScale).String()
	return &price
}

// Rate renders a 1e18 fixed-point rate as a percentage.
func Rate(rate *big.Int) string {
	if rate == nil {
		return "0%"
	}
	return decimal.NewFromBigInt(rate, -16).String() + "%"
}
