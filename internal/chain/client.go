package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Caller executes read-only contract calls.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client reads the chain head for valuation runs and serves contract calls
// over one RPC connection. Head reads go through the retry policy; contract
// calls are retried by the adapters that issue them.
type Client struct {
	rpc   *rpc.Client
	eth   *ethclient.Client
	retry Retry

	// last header read; a run prices a single block.
	mu       sync.Mutex
	lastNum  uint64
	lastTime uint64
	hasLast  bool
}

// Dial connects to rpcURL.
func Dial(ctx context.Context, rpcURL string, retry Retry) (*Client, error) {
	c, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return newClient(c, retry), nil
}

func newClient(c *rpc.Client, retry Retry) *Client {
	return &Client{rpc: c, eth: ethclient.NewClient(c), retry: retry}
}

func (c *Client) Close() {
	if c.rpc != nil {
		c.rpc.Close()
	}
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := c.retry.do(ctx, func(ctx context.Context) error {
		var err error
		id, err = c.eth.ChainID(ctx)
		return err
	})
	return id, err
}

func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var head uint64
	err := c.retry.do(ctx, func(ctx context.Context) error {
		var err error
		head, err = c.eth.BlockNumber(ctx)
		return err
	})
	return head, err
}

// BlockTimestamp returns the time of block number in unix seconds.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.Lock()
	if c.hasLast && c.lastNum == number {
		ts := c.lastTime
		c.mu.Unlock()
		return ts, nil
	}
	c.mu.Unlock()

	var ts uint64
	err := c.retry.do(ctx, func(ctx context.Context) error {
		header, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		if err != nil {
			return err
		}
		ts = header.Time
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("header %d: %w", number, err)
	}

	c.mu.Lock()
	c.lastNum, c.lastTime, c.hasLast = number, ts, true
	c.mu.Unlock()
	return ts, nil
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.eth.CallContract(ctx, msg, blockNumber)
}
