package model

import "time"

// NavSnapshot records a valuation of a fund at a point in time.
type NavSnapshot struct {
	RunID       string
	FundAddress string
	BlockNumber uint64
	BlockTime   time.Time
	TotalValue  string
	ShareSupply string
	SharePrice  *string
	Drift       []BalanceDrift
}

// BalanceDrift reports a mismatch between the tracked and the on-chain balance of an asset.
type BalanceDrift struct {
	Token   string `json:"token"`
	Tracked string `json:"tracked"`
	Actual  string `json:"actual"`
}

// Settlement is the outcome of one payout call: the epochs it consumed and
// the rewards it minted.
type Settlement struct {
	Epochs  []EpochRecord
	Payouts []Payout
}

// Payout records a reward minted to a participant for a closed epoch.
type Payout struct {
	EpochStart  uint64 `json:"epoch_start"`
	Role        string `json:"role"`
	Participant string `json:"participant"`
	Count       uint64 `json:"count"`
	Amount      string `json:"amount"`
}
