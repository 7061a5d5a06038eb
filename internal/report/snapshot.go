package report

import (
	"bytes"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"poolfund/internal/model"
)

// Snapshot describes one valuation of a fund for the audit trail.
type Snapshot struct {
	RunID        string
	State        *model.FundState
	BaseDecimals uint8
	Total        *big.Int
	BlockNumber  uint64
	BlockTime    time.Time
	// Actual holds on-chain balances; assets where it differs from the
	// tracked balance are reported as drift.
	Actual map[common.Address]*big.Int
}

// NavSnapshot formats s for storage. Amounts are written as decimal strings in
// whole units.
func NavSnapshot(s Snapshot) model.NavSnapshot {
	state := s.State
	out := model.NavSnapshot{
		RunID:       s.RunID,
		FundAddress: state.Address.Hex(),
		BlockNumber: s.BlockNumber,
		BlockTime:   s.BlockTime.UTC(),
		TotalValue:  Amount(s.Total, s.BaseDecimals),
		ShareSupply: Amount(state.ShareSupply, state.Peg.ShareDecimals),
		SharePrice:  SharePrice(s.Total, s.BaseDecimals, state.ShareSupply, state.Peg.ShareDecimals),
	}
	for _, asset := range state.Assets {
		actual, ok := s.Actual[asset.Token]
		if !ok || actual == nil {
			continue
		}
		tracked := state.Balance(asset.Token)
		if tracked.Cmp(actual) == 0 {
			continue
		}
		out.Drift = append(out.Drift, model.BalanceDrift{
			Token:   asset.Token.Hex(),
			Tracked: tracked.String(),
			Actual:  actual.String(),
		})
	}
	return out
}

func sortedHolders(shares map[common.Address]*big.Int) []common.Address {
	holders := make([]common.Address, 0, len(shares))
	for holder, bal := range shares {
		if bal == nil || bal.Sign() == 0 {
			continue
		}
		holders = append(holders, holder)
	}
	sort.Slice(holders, func(i, j int) bool {
		return bytes.Compare(holders[i][:], holders[j][:]) < 0
	})
	return holders
}
