package chain

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"poolfund/internal/fund"
)

// Directory resolves on-chain feeds and tokens for valuation. Adapters are
// created once per address and reused.
type Directory struct {
	caller Caller
	retry  Retry

	mu     sync.Mutex
	feeds  map[common.Address]*Feed
	tokens map[common.Address]*ERC20
}

func NewDirectory(caller Caller, retry Retry) *Directory {
	return &Directory{
		caller: caller,
		retry:  retry,
		feeds:  make(map[common.Address]*Feed),
		tokens: make(map[common.Address]*ERC20),
	}
}

func (d *Directory) Feed(addr common.Address) (fund.PriceFeed, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	feed, ok := d.feeds[addr]
	if !ok {
		feed = NewFeed(d.caller, addr, d.retry)
		d.feeds[addr] = feed
	}
	return feed, nil
}

func (d *Directory) Meta(addr common.Address) (fund.ERC20, error) {
	return d.ERC20(addr), nil
}

// ERC20 returns the token adapter for addr.
func (d *Directory) ERC20(addr common.Address) *ERC20 {
	d.mu.Lock()
	defer d.mu.Unlock()
	token, ok := d.tokens[addr]
	if !ok {
		token = NewERC20(d.caller, addr, d.retry)
		d.tokens[addr] = token
	}
	return token
}

// BalanceAt reads owner's balance of token at block; nil means latest.
func (d *Directory) BalanceAt(ctx context.Context, token, owner common.Address, block *big.Int) (*big.Int, error) {
	return d.ERC20(token).BalanceAt(ctx, owner, block)
}
