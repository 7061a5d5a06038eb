package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"poolfund/internal/fund"
)

// Feed reads an on-chain price aggregator.
type Feed struct {
	caller  Caller
	address common.Address
	retry   Retry
}

func NewFeed(caller Caller, address common.Address, retry Retry) *Feed {
	return &Feed{caller: caller, address: address, retry: retry}
}

func (f *Feed) LatestRoundData(ctx context.Context) (fund.RoundData, error) {
	parsed, err := AggregatorABI()
	if err != nil {
		return fund.RoundData{}, fmt.Errorf("parse aggregator abi: %w", err)
	}

	var values []interface{}
	err = f.retry.do(ctx, func(ctx context.Context) error {
		var err error
		values, err = callMethod(ctx, f.caller, f.address, parsed, "latestRoundData", nil)
		return err
	})
	if err != nil {
		return fund.RoundData{}, err
	}
	if len(values) < 4 {
		return fund.RoundData{}, fmt.Errorf("latestRoundData return size %d", len(values))
	}

	roundID, err := asBigInt(values[0])
	if err != nil {
		return fund.RoundData{}, fmt.Errorf("round id: %w", err)
	}
	answer, err := asBigInt(values[1])
	if err != nil {
		return fund.RoundData{}, fmt.Errorf("answer: %w", err)
	}
	startedAt, err := asUint64(values[2])
	if err != nil {
		return fund.RoundData{}, fmt.Errorf("started at: %w", err)
	}
	updatedAt, err := asUint64(values[3])
	if err != nil {
		return fund.RoundData{}, fmt.Errorf("updated at: %w", err)
	}
	return fund.RoundData{RoundID: roundID, Answer: answer, StartedAt: startedAt, UpdatedAt: updatedAt}, nil
}

func (f *Feed) Decimals(ctx context.Context) (uint8, error) {
	parsed, err := AggregatorABI()
	if err != nil {
		return 0, fmt.Errorf("parse aggregator abi: %w", err)
	}
	var values []interface{}
	err = f.retry.do(ctx, func(ctx context.Context) error {
		var err error
		values, err = callMethod(ctx, f.caller, f.address, parsed, "decimals", nil)
		return err
	})
	if err != nil {
		return 0, err
	}
	return asUint8(values[0])
}
