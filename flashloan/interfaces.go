package flashloan

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Provider defines the interface for flash loan providers
type Provider interface {
	// FlashLoan lends params.Amount to the receiver, invokes its callback and
	// reclaims amount plus fee. Any failure discards every state change made
	// during the call.
	FlashLoan(ctx context.Context, params FlashLoanParams) error

	// GetLoanFee returns the fee charged for borrowing amount of token
	GetLoanFee(ctx context.Context, token common.Address, amount *big.Int) (*big.Int, error)

	// GetMaxLoanAmount returns the largest amount of token that can be borrowed
	GetMaxLoanAmount(ctx context.Context, token common.Address) (*big.Int, error)

	// Address is the lender identity repayment is owed to
	Address() common.Address

	// Repayment reports how the lender reclaims amount plus fee
	Repayment() RepaymentMode

	String() string
}

// Receiver is implemented by borrowers. OnFlashLoan runs while the loan is
// outstanding and must leave amount+fee reclaimable before returning.
type Receiver interface {
	OnFlashLoan(ctx context.Context, asset common.Address, amount, fee *big.Int, initiator common.Address, data []byte) error
}
