package scenario

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"poolfund/internal/config"
	"poolfund/internal/fund"
	"poolfund/internal/model"
	"poolfund/internal/report"
	"poolfund/internal/sim"
)

const (
	defaultFeedDecimals = 8
	defaultReserve      = "1000000000"
)

// DefaultStart is the simulated time a scenario begins at when none is given.
var DefaultStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Options configures a run.
type Options struct {
	Start  time.Time
	Params config.FundParams
	Logger *zap.Logger
}

// StepResult describes how a step went.
type StepResult struct {
	Index  int    `json:"index"`
	Action string `json:"action"`
	Actor  string `json:"actor,omitempty"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Result is the outcome of a completed run.
type Result struct {
	State *model.FundState
	// Proposals holds every proposal created during the run, open or closed, by id.
	Proposals []model.Proposal
	Steps     []StepResult
	Payouts   []model.Payout
	Valuation fund.Valuation
	Meta      map[common.Address]report.Meta
	EndTime   time.Time
}

type listing struct {
	spec      AssetSpec
	tokenAddr common.Address
	feedAddr  common.Address
	token     *sim.Token
	feed      *sim.Aggregator
}

type runner struct {
	sc       *Scenario
	logger   *zap.Logger
	clock    *sim.Clock
	market   *sim.Market
	fund     *fund.Fund
	owner    common.Address
	fundAddr common.Address
	assets   map[string]*listing
	payouts  []model.Payout
	closed   []model.Proposal
}

// Run replays sc against a fresh fund. A step failing without a matching
// Expect aborts the run.
func Run(ctx context.Context, sc *Scenario, opts Options) (*Result, error) {
	if sc == nil {
		return nil, fmt.Errorf("scenario is nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	start := opts.Start
	if start.IsZero() {
		start = DefaultStart
	}

	r := &runner{
		sc:       sc,
		logger:   logger,
		clock:    sim.NewClock(start),
		market:   sim.NewMarket(),
		owner:    sim.Address(sc.Owner),
		fundAddr: sim.Address(sc.Fund),
		assets:   make(map[string]*listing, len(sc.Assets)),
	}
	if err := r.listAssets(); err != nil {
		return nil, err
	}
	params := opts.Params
	if params == (config.FundParams{}) {
		params = config.DefaultFundParams()
	}
	if err := r.openFund(params); err != nil {
		return nil, err
	}

	steps := make([]StepResult, 0, len(sc.Steps))
	for i, step := range sc.Steps {
		res := StepResult{Index: i + 1, Action: step.Action, Actor: step.Actor}
		detail, err := r.apply(ctx, step)
		res.Detail = detail
		switch {
		case step.Expect != "" && err == nil:
			return nil, fmt.Errorf("step %d (%s): expected %s error, got success", res.Index, step.Action, step.Expect)
		case step.Expect != "" && fund.Kind(err) != step.Expect:
			return nil, fmt.Errorf("step %d (%s): expected %s error, got %w", res.Index, step.Action, step.Expect, err)
		case err != nil && step.Expect == "":
			return nil, fmt.Errorf("step %d (%s): %w", res.Index, step.Action, err)
		case err != nil:
			res.Error = err.Error()
		}
		logger.Debug("scenario step",
			zap.Int("step", res.Index),
			zap.String("action", res.Action),
			zap.String("detail", res.Detail),
			zap.String("error", res.Error),
		)
		steps = append(steps, res)
	}

	valuation, err := r.fund.Valuation(ctx)
	if err != nil {
		return nil, fmt.Errorf("final valuation: %w", err)
	}
	meta := make(map[common.Address]report.Meta, len(r.assets))
	for _, l := range r.assets {
		meta[l.tokenAddr] = report.Meta{Symbol: l.spec.Symbol, Decimals: l.spec.Decimals}
	}

	state := r.fund.State()
	proposals := append(append([]model.Proposal(nil), r.closed...), state.Proposals...)
	sort.Slice(proposals, func(i, j int) bool { return proposals[i].ID < proposals[j].ID })

	return &Result{
		State:     state,
		Proposals: proposals,
		Steps:     steps,
		Payouts:   r.payouts,
		Valuation: valuation,
		Meta:      meta,
		EndTime:   r.clock.Now(),
	}, nil
}

func (r *runner) listAssets() error {
	reserve := sim.Address("reserve")
	for _, spec := range r.sc.Assets {
		if spec.FeedDecimals == 0 {
			spec.FeedDecimals = defaultFeedDecimals
		}
		if spec.Reserve == "" {
			spec.Reserve = defaultReserve
		}
		answer, err := parseUnits(spec.Price, spec.FeedDecimals)
		if err != nil {
			return fmt.Errorf("asset %s price: %w", spec.Symbol, err)
		}
		depth, err := parseUnits(spec.Reserve, spec.Decimals)
		if err != nil {
			return fmt.Errorf("asset %s reserve: %w", spec.Symbol, err)
		}

		symbol := strings.ToLower(spec.Symbol)
		l := &listing{
			spec:      spec,
			tokenAddr: sim.Address(symbol),
			feedAddr:  sim.Address(symbol + "-usd"),
			token:     sim.NewToken(spec.Symbol, spec.Decimals),
			feed:      sim.NewAggregator(spec.FeedDecimals, answer, r.clock.Now()),
		}
		r.market.List(l.tokenAddr, l.token, l.feedAddr, l.feed)
		l.token.Mint(reserve, depth)
		r.assets[strings.ToUpper(spec.Symbol)] = l
	}
	return nil
}

func (r *runner) openFund(defaults config.FundParams) error {
	params, err := r.sc.Params.apply(defaults)
	if err != nil {
		return err
	}
	proposerRate, approverRate, err := params.Rates()
	if err != nil {
		return err
	}
	router, err := sim.NewRouter(r.market, r.fundAddr, sim.Address("reserve"), r.sc.FeeBps)
	if err != nil {
		return err
	}

	base := r.asset(r.sc.Assets[0].Symbol)
	state, err := fund.NewState(fund.Options{
		Owner:              r.owner,
		Address:            r.fundAddr,
		BaseAsset:          model.Asset{Token: base.tokenAddr, Feed: base.feedAddr},
		EpochDuration:      params.EpochDuration,
		ProposerRewardRate: proposerRate,
		ApproverRewardRate: approverRate,
		Timelock:           params.Timelock,
		Peg:                params.Peg(),
	}, r.clock.Now())
	if err != nil {
		return err
	}
	r.fund, err = fund.New(state, r.market, router, r.clock, r.logger)
	return err
}

func (r *runner) apply(ctx context.Context, step Step) (string, error) {
	switch step.Action {
	case ActionDeposit:
		return r.deposit(ctx, step)
	case ActionAddAsset:
		l := r.asset(step.Asset)
		return l.spec.Symbol, r.fund.AddAsset(ctx, r.actor(step, r.owner), l.tokenAddr, l.feedAddr)
	case ActionPropose:
		trades, err := r.trades(step.Trades)
		if err != nil {
			return "", err
		}
		id, err := r.fund.CreateProposal(ctx, r.actor(step, r.owner), trades)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("proposal %d", id), nil
	case ActionIntent:
		return fmt.Sprintf("proposal %d", step.ID), r.fund.IntentToAccept(ctx, r.actor(step, r.owner), step.ID)
	case ActionAccept:
		p, err := r.fund.AcceptProposal(ctx, r.actor(step, r.owner), step.ID)
		if err != nil {
			return "", err
		}
		r.closed = append(r.closed, p)
		return r.describeFills(p), nil
	case ActionCancel:
		p, err := r.fund.CancelProposal(ctx, r.actor(step, r.owner), step.ID)
		if err != nil {
			return "", err
		}
		r.closed = append(r.closed, p)
		return fmt.Sprintf("proposal %d", step.ID), nil
	case ActionAdvance:
		d, err := time.ParseDuration(step.Duration)
		if err != nil {
			return "", fmt.Errorf("duration: %w", err)
		}
		if d < 0 {
			return "", fmt.Errorf("%w: cannot advance by %s", fund.ErrInvalidAmount, d)
		}
		return r.clock.Advance(d).UTC().Format(time.RFC3339), nil
	case ActionPayout:
		return r.payout(ctx, step)
	case ActionRedeem:
		return r.redeem(ctx, step)
	case ActionTransfer:
		from := r.actor(step, r.owner)
		shares, err := r.shares(step, from)
		if err != nil {
			return "", err
		}
		return report.Amount(shares, r.shareDecimals()), r.fund.TransferShares(ctx, from, sim.Address(step.To), shares)
	case ActionPrice:
		l := r.asset(step.Asset)
		answer, err := parseUnits(step.Price, l.spec.FeedDecimals)
		if err != nil {
			return "", fmt.Errorf("price: %w", err)
		}
		if answer.Sign() <= 0 {
			return "", fmt.Errorf("%w: price must be positive", fund.ErrInvalidAmount)
		}
		l.feed.UpdateAnswer(answer, r.clock.Now())
		return fmt.Sprintf("%s at %s", l.spec.Symbol, step.Price), nil
	case ActionConfigure:
		return "", r.configure(ctx, step)
	}
	return "", fmt.Errorf("unknown action %q", step.Action)
}

func (r *runner) deposit(ctx context.Context, step Step) (string, error) {
	base := r.asset(r.sc.Assets[0].Symbol)
	who := r.actor(step, r.owner)
	amount, err := parseUnits(step.Amount, base.spec.Decimals)
	if err != nil {
		return "", fmt.Errorf("amount: %w", err)
	}
	if amount.Sign() > 0 {
		base.token.Mint(who, amount)
		if err := base.token.Approve(ctx, who, r.fundAddr, amount); err != nil {
			return "", err
		}
	}
	minted, err := r.fund.Issue(ctx, who, amount)
	if err != nil {
		return "", err
	}
	return "minted " + report.Amount(minted, r.shareDecimals()) + " shares", nil
}

func (r *runner) payout(ctx context.Context, step Step) (string, error) {
	caller := r.actor(step, r.owner)
	var (
		payouts []model.Payout
		err     error
	)
	switch step.Role {
	case "", "proposers":
		payouts, err = r.fund.PayoutProposers(ctx, caller)
	case "approvers":
		payouts, err = r.fund.PayoutApprovers(ctx, caller)
	default:
		return "", fmt.Errorf("unknown payout role %q", step.Role)
	}
	if err != nil {
		return "", err
	}
	r.payouts = append(r.payouts, payouts...)
	return fmt.Sprintf("%d payouts", len(payouts)), nil
}

func (r *runner) redeem(ctx context.Context, step Step) (string, error) {
	who := r.actor(step, r.owner)
	shares, err := r.shares(step, who)
	if err != nil {
		return "", err
	}
	out, err := r.fund.Redeem(ctx, who, shares)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(out))
	for _, spec := range r.sc.Assets {
		l := r.asset(spec.Symbol)
		if amt, ok := out[l.tokenAddr]; ok && amt.Sign() > 0 {
			parts = append(parts, report.Amount(amt, spec.Decimals)+" "+spec.Symbol)
		}
	}
	return strings.Join(parts, ", "), nil
}

func (r *runner) configure(ctx context.Context, step Step) error {
	if step.Params == nil {
		return fmt.Errorf("configure step needs params")
	}
	caller := r.actor(step, r.owner)
	p := step.Params
	if p.EpochDuration != "" {
		d, err := time.ParseDuration(p.EpochDuration)
		if err != nil {
			return fmt.Errorf("epoch_duration: %w", err)
		}
		if err := r.fund.SetEpochDuration(ctx, caller, d); err != nil {
			return err
		}
	}
	if p.ProposerRate != "" || p.ApproverRate != "" {
		state := r.fund.State()
		params := config.FundParams{
			ProposerRate: rateOr(p.ProposerRate, state.ProposerRewardRate),
			ApproverRate: rateOr(p.ApproverRate, state.ApproverRewardRate),
		}
		proposer, approver, err := params.Rates()
		if err != nil {
			return err
		}
		if err := r.fund.SetRewardRates(ctx, caller, proposer, approver); err != nil {
			return err
		}
	}
	if p.Timelock != "" {
		d, err := time.ParseDuration(p.Timelock)
		if err != nil {
			return fmt.Errorf("timelock: %w", err)
		}
		if err := r.fund.SetTimelockDuration(ctx, caller, d); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) trades(specs []TradeSpec) ([]model.Trade, error) {
	trades := make([]model.Trade, 0, len(specs))
	for i, spec := range specs {
		in := r.asset(spec.In)
		out := r.asset(spec.Out)
		amount, err := parseUnits(spec.Amount, in.spec.Decimals)
		if err != nil {
			return nil, fmt.Errorf("trade %d amount: %w", i+1, err)
		}
		trade := model.Trade{AssetIn: in.tokenAddr, AssetOut: out.tokenAddr, AmountIn: amount}
		if spec.MinOut != "" {
			trade.MinAmountOut, err = parseUnits(spec.MinOut, out.spec.Decimals)
			if err != nil {
				return nil, fmt.Errorf("trade %d min_out: %w", i+1, err)
			}
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

func (r *runner) describeFills(p model.Proposal) string {
	parts := make([]string, 0, len(p.Trades))
	for _, t := range p.Trades {
		in, out := r.bySymbol(t.AssetIn), r.bySymbol(t.AssetOut)
		parts = append(parts, fmt.Sprintf("%s %s -> %s %s",
			report.Amount(t.AmountIn, in.spec.Decimals), in.spec.Symbol,
			report.Amount(t.AmountOut, out.spec.Decimals), out.spec.Symbol))
	}
	return strings.Join(parts, "; ")
}

func (r *runner) shares(step Step, holder common.Address) (*big.Int, error) {
	if step.All {
		return r.fund.SharesOf(holder), nil
	}
	shares, err := parseUnits(step.Shares, r.shareDecimals())
	if err != nil {
		return nil, fmt.Errorf("shares: %w", err)
	}
	return shares, nil
}

func (r *runner) shareDecimals() uint8 {
	return r.fund.State().Peg.ShareDecimals
}

func (r *runner) actor(step Step, fallback common.Address) common.Address {
	if step.Actor == "" {
		return fallback
	}
	return sim.Address(step.Actor)
}

// asset looks up a listed asset; Validate guarantees the symbol exists.
func (r *runner) asset(symbol string) *listing {
	return r.assets[strings.ToUpper(symbol)]
}

func (r *runner) bySymbol(token common.Address) *listing {
	for _, l := range r.assets {
		if l.tokenAddr == token {
			return l
		}
	}
	return &listing{spec: AssetSpec{Symbol: token.Hex()}}
}

func (s FundSpec) apply(p config.FundParams) (config.FundParams, error) {
	if s.EpochDuration != "" {
		d, err := time.ParseDuration(s.EpochDuration)
		if err != nil {
			return p, fmt.Errorf("epoch_duration: %w", err)
		}
		p.EpochDuration = d
	}
	if s.Timelock != "" {
		d, err := time.ParseDuration(s.Timelock)
		if err != nil {
			return p, fmt.Errorf("timelock: %w", err)
		}
		p.Timelock = d
	}
	if s.ProposerRate != "" {
		p.ProposerRate = s.ProposerRate
	}
	if s.ApproverRate != "" {
		p.ApproverRate = s.ApproverRate
	}
	if s.ShareDecimals != nil {
		p.ShareDecimals = *s.ShareDecimals
	}
	if s.MintUnitDivisor != nil {
		p.MintUnitDivisor = *s.MintUnitDivisor
	}
	return p, nil
}

func rateOr(input string, current *big.Int) string {
	if input != "" {
		return input
	}
	return decimal.NewFromBigInt(current, -18).String()
}

// parseUnits converts a decimal amount in whole units to base units.
func parseUnits(input string, decimals uint8) (*big.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("%w: amount is required", fund.ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(input)
	if err != nil {
		return nil, err
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: %s has more than %d decimal places", fund.ErrInvalidAmount, input, decimals)
	}
	return scaled.BigInt(), nil
}
