package report

import (
	"fmt"
	"io"
	"math/big"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"poolfund/internal/model"
)

// Meta labels a token for display.
type Meta struct {
	Symbol   string
	Decimals uint8
}

// WriteSummary prints the ledger of a fund. Tokens missing from meta are shown
// by address with raw amounts.
func WriteSummary(w io.Writer, state *model.FundState, meta map[common.Address]Meta) error {
	if state == nil {
		return fmt.Errorf("state is nil")
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "fund\t%s\n", state.Address.Hex())
	fmt.Fprintf(tw, "owner\t%s\n", state.Owner.Hex())
	fmt.Fprintf(tw, "share supply\t%s\n", Amount(state.ShareSupply, state.Peg.ShareDecimals))
	fmt.Fprintf(tw, "epoch\t%s from %s\n", time.Duration(state.EpochDurationSecs)*time.Second, unixTime(state.Epochs.Current.StartTime))
	fmt.Fprintf(tw, "reward rates\tproposer %s, approver %s\n", Rate(state.ProposerRewardRate), Rate(state.ApproverRewardRate))
	fmt.Fprintf(tw, "timelock\t%s\n", time.Duration(state.TimelockSecs)*time.Second)

	fmt.Fprintln(tw, "\nasset\tbalance\tfeed")
	for _, asset := range state.Assets {
		label, amount := display(asset.Token, state.Balance(asset.Token), meta)
		fmt.Fprintf(tw, "%s\t%s\t%s\n", label, amount, asset.Feed.Hex())
	}

	fmt.Fprintln(tw, "\nholder\tshares")
	for _, holder := range sortedHolders(state.Shares) {
		fmt.Fprintf(tw, "%s\t%s\n", holder.Hex(), Amount(state.Shares[holder], state.Peg.ShareDecimals))
	}

	fmt.Fprintln(tw, "\nproposal\tproposer\tstate\ttrades")
	for _, p := range state.Proposals {
		if p.State.Terminal() {
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", p.ID, p.Proposer.Hex(), p.State, len(p.Trades))
	}

	fmt.Fprintln(tw, "\npending epoch\taccepted\tproposers\tapprovers")
	for _, rec := range state.Epochs.Pending {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", unixTime(rec.StartTime), rec.TotalAccepted, len(rec.ProposerCounts), len(rec.ApproverCounts))
	}

	return tw.Flush()
}

func display(token common.Address, amount *big.Int, meta map[common.Address]Meta) (string, string) {
	m, ok := meta[token]
	if !ok {
		return token.Hex(), amount.String()
	}
	label := m.Symbol
	if label == "" {
		label = token.Hex()
	}
	return label, Amount(amount, m.Decimals)
}

func unixTime(ts uint64) string {
	return time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
}
