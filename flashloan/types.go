package flashloan

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ProviderType represents different flash loan providers
type ProviderType int

const (
	ProviderAave ProviderType = iota
	ProviderBalancer
)

func (t ProviderType) String() string {
	switch t {
	case ProviderAave:
		return "aave"
	case ProviderBalancer:
		return "balancer"
	}
	return "unknown"
}

// RepaymentMode is the way a lender reclaims a loan
type RepaymentMode int

const (
	// RepayByAllowance pulls amount+fee through an allowance the receiver
	// granted to the lender
	RepayByAllowance RepaymentMode = iota

	// RepayByTransfer expects the receiver to have transferred amount+fee back
	RepayByTransfer
)

// ProviderConfig contains configuration for flash loan providers
type ProviderConfig struct {
	Type              ProviderType
	ContractAddress   common.Address
	MinLoanAmount     *big.Int // nil means no minimum
	MaxLoanAmount     *big.Int // nil means bounded by liquidity only
	MaxLoanPercentage uint8    // share of liquidity that may be lent, 0 means 100
	BaseFee           uint64   // In basis points (1 = 0.01%)
}

// FlashLoanParams contains parameters for executing a flash loan
type FlashLoanParams struct {
	Receiver  Receiver       // Callback target
	Target    common.Address // Address receiving the borrowed funds
	Initiator common.Address // Account that requested the loan
	Token     common.Address // Token to borrow
	Amount    *big.Int       // Amount to borrow
	Data      []byte         // Arbitrary data passed back to the receiver
}
