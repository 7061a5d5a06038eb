package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ERC20 reads balances and metadata of an on-chain token.
type ERC20 struct {
	caller  Caller
	address common.Address
	retry   Retry
}

func NewERC20(caller Caller, address common.Address, retry Retry) *ERC20 {
	return &ERC20{caller: caller, address: address, retry: retry}
}

func (t *ERC20) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return t.BalanceAt(ctx, owner, nil)
}

// BalanceAt reads the balance at a block height; nil means latest.
func (t *ERC20) BalanceAt(ctx context.Context, owner common.Address, block *big.Int) (*big.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	var values []interface{}
	err = t.retry.do(ctx, func(ctx context.Context) error {
		var err error
		values, err = callMethod(ctx, t.caller, t.address, parsed, "balanceOf", block, owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("balanceOf return size %d", len(values))
	}
	bal, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf unexpected type %T", values[0])
	}
	return bal, nil
}

func (t *ERC20) Decimals(ctx context.Context) (uint8, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return 0, fmt.Errorf("parse erc20 abi: %w", err)
	}
	var values []interface{}
	err = t.retry.do(ctx, func(ctx context.Context) error {
		var err error
		values, err = callMethod(ctx, t.caller, t.address, parsed, "decimals", nil)
		return err
	})
	if err != nil {
		return 0, err
	}
	return asUint8(values[0])
}

// Symbol reads the token symbol, falling back to the bytes32 encoding some
// older tokens use.
func (t *ERC20) Symbol(ctx context.Context) (string, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return "", fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := callMethod(ctx, t.caller, t.address, parsed, "symbol", nil)
	if err == nil {
		if symbol, ok := values[0].(string); ok {
			return symbol, nil
		}
	}

	legacy, perr := erc20Bytes32SymbolABI()
	if perr != nil {
		return "", fmt.Errorf("parse erc20 bytes32 abi: %w", perr)
	}
	values, err = callMethod(ctx, t.caller, t.address, legacy, "symbol", nil)
	if err != nil {
		return "", err
	}
	symbol, ok := bytes32ToString(values[0])
	if !ok {
		return "", fmt.Errorf("symbol unexpected type %T", values[0])
	}
	return symbol, nil
}
