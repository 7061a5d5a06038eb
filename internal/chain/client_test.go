package chain

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

type ethService struct {
	head     uint64
	failures atomic.Int32
	headers  atomic.Int32
}

func (s *ethService) ChainId() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(8453))
}

func (s *ethService) BlockNumber() (hexutil.Uint64, error) {
	if s.failures.Add(-1) >= 0 {
		return 0, errors.New("upstream busy")
	}
	return hexutil.Uint64(s.head), nil
}

func (s *ethService) GetBlockByNumber(number hexutil.Uint64, _ bool) (*types.Header, error) {
	s.headers.Add(1)
	return &types.Header{
		Number:     new(big.Int).SetUint64(uint64(number)),
		Time:       1_700_000_000 + 2*uint64(number),
		Difficulty: new(big.Int),
	}, nil
}

func newTestClient(t *testing.T, svc *ethService, retry Retry) *Client {
	t.Helper()
	server := rpc.NewServer()
	if err := server.RegisterName("eth", svc); err != nil {
		t.Fatalf("register service: %v", err)
	}
	t.Cleanup(server.Stop)
	c := newClient(rpc.DialInProc(server), retry)
	t.Cleanup(c.Close)
	return c
}

func TestClientChainID(t *testing.T) {
	c := newTestClient(t, &ethService{}, Retry{})

	id, err := c.ChainID(context.Background())
	if err != nil {
		t.Fatalf("chain id: %v", err)
	}
	if id.Int64() != 8453 {
		t.Fatalf("chain id = %s", id)
	}
}

func TestClientHeadRetries(t *testing.T) {
	svc := &ethService{head: 42}
	svc.failures.Store(2)
	c := newTestClient(t, svc, Retry{MaxRetries: 3, Backoff: time.Millisecond})

	head, err := c.LatestBlockNumber(context.Background())
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head != 42 {
		t.Fatalf("head = %d, want 42", head)
	}

	svc.failures.Store(5)
	strict := newTestClient(t, svc, Retry{MaxRetries: 1, Backoff: time.Millisecond})
	if _, err := strict.LatestBlockNumber(context.Background()); err == nil {
		t.Fatalf("expected error once retries run out")
	}
}

func TestClientBlockTimestampReusesLastHeader(t *testing.T) {
	svc := &ethService{}
	c := newTestClient(t, svc, Retry{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ts, err := c.BlockTimestamp(ctx, 100)
		if err != nil {
			t.Fatalf("timestamp: %v", err)
		}
		if ts != 1_700_000_200 {
			t.Fatalf("timestamp = %d", ts)
		}
	}
	if n := svc.headers.Load(); n != 1 {
		t.Fatalf("header reads = %d, want 1", n)
	}

	if ts, err := c.BlockTimestamp(ctx, 101); err != nil || ts != 1_700_000_202 {
		t.Fatalf("timestamp = %d, %v", ts, err)
	}
	if n := svc.headers.Load(); n != 2 {
		t.Fatalf("header reads = %d, want 2", n)
	}
}
