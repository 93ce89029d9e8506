package uniswap

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ReserveReader reads the reserves of a constant-product pair
type ReserveReader interface {
	GetReserves(ctx context.Context) (reserve0 *big.Int, reserve1 *big.Int, err error)
	Token0(ctx context.Context) (common.Address, error)
	Token1(ctx context.Context) (common.Address, error)
}
