package sim

import (
	"context"
	"math/big"
	"sync"
	"time"

	"poolfund/internal/fund"
)

// Aggregator is an in-memory price feed. Round ids start at 1 and advance
// with every answer update; a round starts and updates at the same instant.
type Aggregator struct {
	mu        sync.RWMutex
	decimals  uint8
	roundID   *big.Int
	answer    *big.Int
	updatedAt uint64
}

func NewAggregator(decimals uint8, answer *big.Int, now time.Time) *Aggregator {
	return &Aggregator{
		decimals:  decimals,
		roundID:   big.NewInt(1),
		answer:    new(big.Int).Set(answer),
		updatedAt: uint64(now.Unix()),
	}
}

// UpdateAnswer publishes a new price in a new round.
func (a *Aggregator) UpdateAnswer(answer *big.Int, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.roundID = new(big.Int).Add(a.roundID, big.NewInt(1))
	a.answer = new(big.Int).Set(answer)
	a.updatedAt = uint64(now.Unix())
}

func (a *Aggregator) LatestRoundData(_ context.Context) (fund.RoundData, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return fund.RoundData{
		RoundID:   new(big.Int).Set(a.roundID),
		Answer:    new(big.Int).Set(a.answer),
		StartedAt: a.updatedAt,
		UpdatedAt: a.updatedAt,
	}, nil
}

func (a *Aggregator) Decimals(_ context.Context) (uint8, error) {
	return a.decimals, nil
}
