package arbitrage

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/types"
)

var attemptArgs = mustArguments("address", "address", "uint256", "string", "string", "uint256")

func mustArguments(kinds ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(kinds))
	for _, kind := range kinds {
		t, err := abi.NewType(kind, "", nil)
		if err != nil {
			panic(fmt.Sprintf("invalid abi type %s: %v", kind, err))
		}
		args = append(args, abi.Argument{Type: t})
	}
	return args
}

// EncodeAttempt packs an attempt into the flash loan callback payload
func EncodeAttempt(a types.ArbitrageAttempt) ([]byte, error) {
	minProfit := a.MinProfit
	if minProfit == nil {
		minProfit = new(big.Int)
	}
	data, err := attemptArgs.Pack(a.Token0, a.Token1, a.Amount, a.SourceVenue, a.TargetVenue, minProfit)
	if err != nil {
		return nil, fmt.Errorf("failed to pack attempt: %w", err)
	}
	return data, nil
}

// DecodeAttempt is the inverse of EncodeAttempt
func DecodeAttempt(data []byte) (types.ArbitrageAttempt, error) {
	values, err := attemptArgs.Unpack(data)
	if err != nil {
		return types.ArbitrageAttempt{}, fmt.Errorf("failed to unpack attempt: %w", err)
	}
	if len(values) != len(attemptArgs) {
		return types.ArbitrageAttempt{}, fmt.Errorf("unexpected attempt field count %d", len(values))
	}

	token0, ok0 := values[0].(common.Address)
	token1, ok1 := values[1].(common.Address)
	amount, ok2 := values[2].(*big.Int)
	source, ok3 := values[3].(string)
	target, ok4 := values[4].(string)
	minProfit, ok5 := values[5].(*big.Int)
	if !(ok0 && ok1 && ok2 && ok3 && ok4 && ok5) {
		return types.ArbitrageAttempt{}, fmt.Errorf("malformed attempt payload")
	}

	return types.ArbitrageAttempt{
		Token0:      token0,
		Token1:      token1,
		Amount:      amount,
		SourceVenue: source,
		TargetVenue: target,
		MinProfit:   minProfit,
	}, nil
}
