package fund

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolfund/internal/model"
)

// Options configures a new fund.
type Options struct {
	Owner              common.Address
	Address            common.Address
	BaseAsset          model.Asset
	EpochDuration      time.Duration
	ProposerRewardRate *big.Int
	ApproverRewardRate *big.Int
	Timelock           time.Duration
	Peg                model.Peg
}

// DefaultPeg mints 10^(18-baseDecimals)/100 shares per unit of base-asset price.
var DefaultPeg = model.Peg{ShareDecimals: 18, MintUnitDivisor: 100}

// NewState builds the initial ledger of a fund with the base asset registered
// and the first epoch opened at now.
func NewState(opts Options, now time.Time) (*model.FundState, error) {
	if opts.Owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidAmount)
	}
	if opts.Address == (common.Address{}) {
		return nil, fmt.Errorf("%w: fund address is required", ErrInvalidAmount)
	}
	if opts.BaseAsset.Token == (common.Address{}) || opts.BaseAsset.Feed == (common.Address{}) {
		return nil, fmt.Errorf("%w: base asset token and feed are required", ErrInvalidAmount)
	}
	if opts.EpochDuration < time.Second {
		return nil, fmt.Errorf("%w: epoch duration %s", ErrInvalidAmount, opts.EpochDuration)
	}
	proposerRate, err := checkRate(opts.ProposerRewardRate)
	if err != nil {
		return nil, err
	}
	approverRate, err := checkRate(opts.ApproverRewardRate)
	if err != nil {
		return nil, err
	}
	if opts.Timelock < 0 {
		return nil, fmt.Errorf("%w: timelock %s", ErrInvalidAmount, opts.Timelock)
	}
	peg := opts.Peg
	if peg == (model.Peg{}) {
		peg = DefaultPeg
	}
	if peg.MintUnitDivisor == 0 {
		return nil, fmt.Errorf("%w: mint unit divisor must be positive", ErrInvalidAmount)
	}

	return &model.FundState{
		Owner:              opts.Owner,
		Address:            opts.Address,
		Assets:             []model.Asset{opts.BaseAsset},
		Balances:           map[common.Address]*big.Int{opts.BaseAsset.Token: new(big.Int)},
		ShareSupply:        new(big.Int),
		Shares:             make(map[common.Address]*big.Int),
		EpochDurationSecs:  uint64(opts.EpochDuration / time.Second),
		ProposerRewardRate: proposerRate,
		ApproverRewardRate: approverRate,
		TimelockSecs:       uint64(opts.Timelock / time.Second),
		Peg:                peg,
		NextProposalID:     1,
		Epochs:             model.EpochLedger{Current: model.NewEpochRecord(unixSeconds(now))},
	}, nil
}

// Fund serialises every entry point over a single FundState. Each call works
// on a clone that replaces the committed state only when the call succeeds.
// Collaborators must pass the context they receive to any fund call they make.
type Fund struct {
	mu        sync.Mutex
	committed atomic.Pointer[model.FundState]

	dir      Directory
	exchange Exchange
	clock    Clock
	decimals *DecimalsCache
	logger   *zap.Logger
}

// New wraps an existing state. A nil clock uses the wall clock.
func New(state *model.FundState, dir Directory, exchange Exchange, clock Clock, logger *zap.Logger) (*Fund, error) {
	if state == nil {
		return nil, fmt.Errorf("fund state is nil")
	}
	if _, ok := state.BaseAsset(); !ok {
		return nil, fmt.Errorf("%w: fund has no base asset", ErrInvalidState)
	}
	if dir == nil {
		return nil, fmt.Errorf("directory is nil")
	}
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	f := &Fund{
		dir:      dir,
		exchange: exchange,
		clock:    clock,
		decimals: NewDecimalsCache(),
		logger:   logger,
	}
	f.committed.Store(state.Clone())
	return f, nil
}

// State returns a copy of the committed ledger.
func (f *Fund) State() *model.FundState {
	return f.committed.Load().Clone()
}

// Assets lists the registered assets in registration order.
func (f *Fund) Assets() []model.Asset {
	return append([]model.Asset(nil), f.committed.Load().Assets...)
}

// TotalSupply returns the outstanding share supply.
func (f *Fund) TotalSupply() *big.Int {
	return new(big.Int).Set(f.committed.Load().ShareSupply)
}

// SharesOf returns the share balance of holder.
func (f *Fund) SharesOf(holder common.Address) *big.Int {
	return new(big.Int).Set(f.committed.Load().SharesOf(holder))
}

// ActiveProposals lists proposals that have not been executed or cancelled.
func (f *Fund) ActiveProposals() []model.Proposal {
	state := f.committed.Load()
	out := make([]model.Proposal, len(state.Proposals))
	for i, p := range state.Proposals {
		out[i] = p.Clone()
	}
	return out
}

// TotalValue returns the NAV of the committed state in base-asset units.
func (f *Fund) TotalValue(ctx context.Context) (*big.Int, error) {
	val, err := f.Valuation(ctx)
	if err != nil {
		return nil, err
	}
	return val.Total, nil
}

// Valuation returns the per-asset NAV breakdown of the committed state.
func (f *Fund) Valuation(ctx context.Context) (Valuation, error) {
	return Value(ctx, f.committed.Load(), f.dir, f.decimals)
}

// SetEpochDuration changes the reward window. Elapsed epochs are closed with
// the previous duration first.
func (f *Fund) SetEpochDuration(ctx context.Context, caller common.Address, d time.Duration) error {
	return f.updateContext(ctx, "set_epoch_duration", caller, true, func(_ context.Context, state *model.FundState, _ uint64) error {
		if d < time.Second {
			return fmt.Errorf("%w: epoch duration %s", ErrInvalidAmount, d)
		}
		state.EpochDurationSecs = uint64(d / time.Second)
		return nil
	})
}

// SetRewardRates changes the per-epoch proposer and approver rates, both
// expressed against RateScale.
func (f *Fund) SetRewardRates(ctx context.Context, caller common.Address, proposerRate, approverRate *big.Int) error {
	return f.updateContext(ctx, "set_reward_rates", caller, true, func(_ context.Context, state *model.FundState, _ uint64) error {
		p, err := checkRate(proposerRate)
		if err != nil {
			return err
		}
		a, err := checkRate(approverRate)
		if err != nil {
			return err
		}
		state.ProposerRewardRate = p
		state.ApproverRewardRate = a
		return nil
	})
}

// SetTimelockDuration changes the delay between intent and acceptance. Zero
// disables the intent requirement.
func (f *Fund) SetTimelockDuration(ctx context.Context, caller common.Address, d time.Duration) error {
	return f.updateContext(ctx, "set_timelock", caller, true, func(_ context.Context, state *model.FundState, _ uint64) error {
		if d < 0 {
			return fmt.Errorf("%w: timelock %s", ErrInvalidAmount, d)
		}
		state.TimelockSecs = uint64(d / time.Second)
		return nil
	})
}

type mutation func(ctx context.Context, state *model.FundState, now uint64) error

// inFlightKey marks the context handed to a collaborator while a call holds
// the fund.
type inFlightKey struct{}

// updateContext runs fn against a clone of the committed state after the
// epoch rollover check, committing the clone only when fn succeeds. Calls
// queue on the write lock; a call made with a context that a collaborator
// received from this fund is re-entrant and fails with ErrInvalidState.
func (f *Fund) updateContext(ctx context.Context, op string, caller common.Address, ownerOnly bool, fn mutation) error {
	if owner, _ := ctx.Value(inFlightKey{}).(*Fund); owner == f {
		return fmt.Errorf("%w: %s called during an external call", ErrInvalidState, op)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	next := f.committed.Load().Clone()
	if ownerOnly && !isOwner(next, caller) {
		return fmt.Errorf("%w: %s requires owner, caller %s", ErrUnauthorized, op, caller.Hex())
	}

	now := unixSeconds(f.clock.Now())
	var closed []model.EpochRecord
	next.Epochs, closed = Rollover(next.Epochs, next.EpochDurationSecs, now)

	if err := fn(ctx, next, now); err != nil {
		f.logger.Debug("fund call rejected",
			zap.String("op", op),
			zap.String("caller", caller.Hex()),
			zap.String("kind", Kind(err)),
			zap.Error(err),
		)
		return err
	}

	f.committed.Store(next)
	if len(closed) > 0 {
		f.logger.Info("epochs closed",
			zap.String("op", op),
			zap.Int("closed", len(closed)),
			zap.Uint64("current_start", next.Epochs.Current.StartTime),
			zap.Int("pending", len(next.Epochs.Pending)),
		)
	}
	f.logger.Debug("fund call committed", zap.String("op", op), zap.String("caller", caller.Hex()))
	return nil
}

// external runs a collaborator call with a context marked as in flight, so an
// entry point it calls back into is refused instead of waiting on the lock.
func (f *Fund) external(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(context.WithValue(ctx, inFlightKey{}, f))
}

func isOwner(state *model.FundState, caller common.Address) bool {
	return caller != (common.Address{}) && caller == state.Owner
}

func checkRate(rate *big.Int) (*big.Int, error) {
	if rate == nil {
		return new(big.Int), nil
	}
	if rate.Sign() < 0 || rate.Cmp(RateScale) > 0 {
		return nil, fmt.Errorf("%w: reward rate %s outside [0, %s]", ErrInvalidAmount, rate, RateScale)
	}
	return new(big.Int).Set(rate), nil
}

func unixSeconds(t time.Time) uint64 {
	if t.Unix() < 0 {
		return 0
	}
	return uint64(t.Unix())
}
