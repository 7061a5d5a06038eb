package sim

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"poolfund/internal/fund"
)

// Token is an in-memory ERC20 ledger.
type Token struct {
	Symbol string

	// OnTransfer, when set, runs before every Transfer and can refuse it.
	OnTransfer func(ctx context.Context, from, to common.Address, amount *big.Int) error

	mu         sync.Mutex
	decimals   uint8
	supply     *big.Int
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

func NewToken(symbol string, decimals uint8) *Token {
	return &Token{
		Symbol:     symbol,
		decimals:   decimals,
		supply:     new(big.Int),
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Mint creates amount out of thin air for to.
func (t *Token) Mint(to common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[to] = new(big.Int).Add(t.balanceLocked(to), amount)
	t.supply.Add(t.supply, amount)
}

func (t *Token) TotalSupply() *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.supply)
}

func (t *Token) BalanceOf(_ context.Context, owner common.Address) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.balanceLocked(owner)), nil
}

func (t *Token) Decimals(_ context.Context) (uint8, error) {
	return t.decimals, nil
}

func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.allowanceLocked(owner, spender))
}

func (t *Token) Approve(_ context.Context, owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%s: approve negative amount", t.Symbol)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[common.Address]*big.Int)
	}
	t.allowances[owner][spender] = new(big.Int).Set(amount)
	return nil
}

func (t *Token) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if t.OnTransfer != nil {
		if err := t.OnTransfer(ctx, from, to, amount); err != nil {
			return err
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.moveLocked(from, to, amount)
}

func (t *Token) TransferFrom(_ context.Context, spender, from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	allowed := t.allowanceLocked(from, spender)
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s allowance %s for %s, need %s", fund.ErrInsufficientFunds, t.Symbol, allowed, spender.Hex(), amount)
	}
	if err := t.moveLocked(from, to, amount); err != nil {
		return err
	}
	t.allowances[from][spender] = new(big.Int).Sub(allowed, amount)
	return nil
}

func (t *Token) moveLocked(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%s: transfer negative amount", t.Symbol)
	}
	bal := t.balanceLocked(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s balance %s of %s, need %s", fund.ErrInsufficientFunds, t.Symbol, bal, from.Hex(), amount)
	}
	t.balances[from] = new(big.Int).Sub(bal, amount)
	t.balances[to] = new(big.Int).Add(t.balanceLocked(to), amount)
	return nil
}

func (t *Token) balanceLocked(owner common.Address) *big.Int {
	if bal, ok := t.balances[owner]; ok {
		return bal
	}
	return new(big.Int)
}

func (t *Token) allowanceLocked(owner, spender common.Address) *big.Int {
	if inner, ok := t.allowances[owner]; ok {
		if v, ok := inner[spender]; ok {
			return v
		}
	}
	return new(big.Int)
}
