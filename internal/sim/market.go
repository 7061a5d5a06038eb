package sim

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"poolfund/internal/fund"
)

// Market resolves in-memory tokens and feeds by address and remembers which
// feed prices each token.
type Market struct {
	mu     sync.RWMutex
	tokens map[common.Address]*Token
	feeds  map[common.Address]*Aggregator
	feedOf map[common.Address]common.Address
}

func NewMarket() *Market {
	return &Market{
		tokens: make(map[common.Address]*Token),
		feeds:  make(map[common.Address]*Aggregator),
		feedOf: make(map[common.Address]common.Address),
	}
}

// List registers a token together with the feed that prices it.
func (m *Market) List(tokenAddr common.Address, token *Token, feedAddr common.Address, feed *Aggregator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[tokenAddr] = token
	m.feeds[feedAddr] = feed
	m.feedOf[tokenAddr] = feedAddr
}

// ERC20 returns the concrete token at addr.
func (m *Market) ERC20(addr common.Address) (*Token, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	token, ok := m.tokens[addr]
	return token, ok
}

// Aggregator returns the concrete feed at addr.
func (m *Market) Aggregator(addr common.Address) (*Aggregator, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	feed, ok := m.feeds[addr]
	return feed, ok
}

// FeedOf returns the feed listed for a token.
func (m *Market) FeedOf(token common.Address) (*Aggregator, bool) {
	m.mu.RLock()
	feedAddr, ok := m.feedOf[token]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return m.Aggregator(feedAddr)
}

func (m *Market) Token(addr common.Address) (fund.Token, error) {
	token, ok := m.ERC20(addr)
	if !ok {
		return nil, fmt.Errorf("token %s not listed", addr.Hex())
	}
	return token, nil
}

func (m *Market) Meta(addr common.Address) (fund.ERC20, error) {
	return m.Token(addr)
}

func (m *Market) Feed(addr common.Address) (fund.PriceFeed, error) {
	feed, ok := m.Aggregator(addr)
	if !ok {
		return nil, fmt.Errorf("feed %s not listed", addr.Hex())
	}
	return feed, nil
}
