package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PricingModel tags the pricing curve a venue uses
type PricingModel uint8

const (
	ModelUnknown PricingModel = iota
	ModelConstantProduct
	ModelStableSwap
	ModelWeightedPool
)

var modelNames = map[PricingModel]string{
	ModelConstantProduct: "constant-product",
	ModelStableSwap:      "stable-swap",
	ModelWeightedPool:    "weighted-pool",
}

func (m PricingModel) String() string {
	if name, ok := modelNames[m]; ok {
		return name
	}
	return "unknown"
}

// ParsePricingModel maps a config tag onto a PricingModel
func ParsePricingModel(s string) (PricingModel, error) {
	for model, name := range modelNames {
		if name == s {
			return model, nil
		}
	}
	return ModelUnknown, fmt.Errorf("unknown pricing model %q", s)
}

// Venue is a registered liquidity source
type Venue struct {
	ID     string
	Router common.Address
	Pool   common.Address
	Model  PricingModel
	Active bool
}

// TokenPair is a directed token pair
type TokenPair struct {
	TokenIn  common.Address
	TokenOut common.Address
}

// TradePlan describes a single trade leg
type TradePlan struct {
	TokenIn     common.Address
	TokenOut    common.Address
	AmountIn    *big.Int
	Venue       string
	ExpectedOut *big.Int
	MinOut      *big.Int
	Deadline    uint64
}

// ArbitrageAttempt holds the parameters of one atomic execution
type ArbitrageAttempt struct {
	Token0      common.Address
	Token1      common.Address
	Amount      *big.Int
	SourceVenue string
	TargetVenue string
	MinProfit   *big.Int
}

// ExecContext carries the ambient facts of the submitting transaction
type ExecContext struct {
	Origin   common.Address
	CostRate *big.Int
	Height   uint64
}

// ExecutionRecord is emitted for every settled attempt
type ExecutionRecord struct {
	ID          string
	Token0      common.Address
	Token1      common.Address
	Amount      *big.Int
	Profit      *big.Int
	SourceVenue string
	TargetVenue string
	CostUsed    uint64
	CostRate    *big.Int
	Height      uint64
}

// Opportunity is a sized, fee-adjusted candidate round trip
type Opportunity struct {
	Token0         common.Address
	Token1         common.Address
	SourceVenue    string
	TargetVenue    string
	AmountIn       *big.Int
	ExpectedProfit *big.Int
	NetProfit      *big.Int
	LoanFee        *big.Int
	GasEstimate    uint64
	SourceOut      *big.Int
	TargetOut      *big.Int
}
