package uniswap

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/state"
)

// UniswapV2Pair reads a Uniswap V2 pair contract over RPC
type UniswapV2Pair struct {
	contract *bind.BoundContract
	address  common.Address
}

// Pair contract ABI
const pairABIJson = `[{
	"constant": true,
	"inputs": [],
	"name": "getReserves",
	"outputs": [
		{"name": "reserve0", "type": "uint112"},
		{"name": "reserve1", "type": "uint112"},
		{"name": "blockTimestampLast", "type": "uint32"}
	],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}, {
	"constant": true,
	"inputs": [],
	"name": "token0",
	"outputs": [{"name": "", "type": "address"}],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}, {
	"constant": true,
	"inputs": [],
	"name": "token1",
	"outputs": [{"name": "", "type": "address"}],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}]`

// NewUniswapV2Pair creates a new UniswapV2Pair instance
func NewUniswapV2Pair(address common.Address, caller bind.ContractCaller) (*UniswapV2Pair, error) {
	parsedABI, err := abi.JSON(strings.NewReader(pairABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pair ABI: %w", err)
	}

	return &UniswapV2Pair{
		contract: bind.NewBoundContract(address, parsedABI, caller, nil, nil),
		address:  address,
	}, nil
}

// GetReserves returns the current reserves of the pair
func (p *UniswapV2Pair) GetReserves(ctx context.Context) (reserve0 *big.Int, reserve1 *big.Int, err error) {
	var out []interface{}
	err = p.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getReserves")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get reserves: %w", err)
	}
	if len(out) < 2 {
		return nil, nil, fmt.Errorf("unexpected getReserves output length %d", len(out))
	}

	reserve0, ok := out[0].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("failed to parse reserve0")
	}
	reserve1, ok = out[1].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("failed to parse reserve1")
	}

	return reserve0, reserve1, nil
}

// Token0 returns the address of token0
func (p *UniswapV2Pair) Token0(ctx context.Context) (common.Address, error) {
	return p.token(ctx, "token0")
}

// Token1 returns the address of token1
func (p *UniswapV2Pair) Token1(ctx context.Context) (common.Address, error) {
	return p.token(ctx, "token1")
}

func (p *UniswapV2Pair) token(ctx context.Context, method string) (common.Address, error) {
	var out []interface{}
	err := p.contract.Call(&bind.CallOpts{Context: ctx}, &out, method)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to get %s: %w", method, err)
	}
	if len(out) == 0 {
		return common.Address{}, fmt.Errorf("empty %s output", method)
	}

	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("failed to parse %s address", method)
	}

	return addr, nil
}

// SyncReserves mirrors the pair's reserves into the pool's balances so quotes
// price against the latest on-chain state.
func SyncReserves(ctx context.Context, world *state.World, pool common.Address, reader ReserveReader) error {
	token0, err := reader.Token0(ctx)
	if err != nil {
		return err
	}
	token1, err := reader.Token1(ctx)
	if err != nil {
		return err
	}
	reserve0, reserve1, err := reader.GetReserves(ctx)
	if err != nil {
		return err
	}

	if err := world.SetBalance(token0, pool, reserve0); err != nil {
		return fmt.Errorf("failed to sync reserve0: %w", err)
	}
	if err := world.SetBalance(token1, pool, reserve1); err != nil {
		return fmt.Errorf("failed to sync reserve1: %w", err)
	}
	return nil
}
