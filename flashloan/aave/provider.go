package aave

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/state"
	"github.com/michaelpento.lv/flasharb/types"
	bigmath "github.com/michaelpento.lv/flasharb/utils/math"
	"go.uber.org/zap"
)

// DefaultPremiumBps is the Aave V2 flash loan premium of 0.09%
const DefaultPremiumBps = 9

// PoolAddress is the Aave V2 lending pool on mainnet
var PoolAddress = common.HexToAddress("0x7d2768dE32b0b80b7a3454c06BdAc94A69DDc7A9")

// AaveProvider lends out of the pool's balance and pulls repayment through
// the allowance the borrower grants the pool
type AaveProvider struct {
	world  *state.World
	config flashloan.ProviderConfig
	logger *zap.Logger
}

// NewAaveProvider creates a new Aave flash loan provider
func NewAaveProvider(world *state.World, config flashloan.ProviderConfig, logger *zap.Logger) (*AaveProvider, error) {
	if world == nil {
		return nil, fmt.Errorf("world cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if config.BaseFee >= bigmath.BasisPoints {
		return nil, fmt.Errorf("premium %d bps out of range", config.BaseFee)
	}
	if config.ContractAddress == (common.Address{}) {
		config.ContractAddress = PoolAddress
	}
	config.Type = flashloan.ProviderAave

	return &AaveProvider{
		world:  world,
		config: config,
		logger: logger,
	}, nil
}

// GetMaxLoanAmount returns the maximum amount that can be borrowed
func (p *AaveProvider) GetMaxLoanAmount(ctx context.Context, token common.Address) (*big.Int, error) {
	liquidity := p.world.BalanceOf(token, p.config.ContractAddress)
	return flashloan.MaxLoan(p.config, liquidity), nil
}

// GetLoanFee calculates the premium for a flash loan
func (p *AaveProvider) GetLoanFee(ctx context.Context, token common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: invalid loan amount", types.ErrInvalidAmount)
	}
	return bigmath.BpsOf(amount, p.config.BaseFee), nil
}

// FlashLoan executes a flash loan operation
func (p *AaveProvider) FlashLoan(ctx context.Context, params flashloan.FlashLoanParams) error {
	if err := p.validate(ctx, params); err != nil {
		return fmt.Errorf("loan validation failed: %w", err)
	}

	fee, err := p.GetLoanFee(ctx, params.Token, params.Amount)
	if err != nil {
		return err
	}

	p.logger.Debug("Executing Aave flash loan",
		zap.String("token", params.Token.Hex()),
		zap.String("amount", params.Amount.String()),
		zap.String("premium", fee.String()))

	return flashloan.Lend(ctx, p.world, p.config.ContractAddress, flashloan.RepayByAllowance, params, fee)
}

// validate checks the loan against the configured bounds
func (p *AaveProvider) validate(ctx context.Context, params flashloan.FlashLoanParams) error {
	if params.Amount == nil || params.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: loan amount must be positive", types.ErrInvalidAmount)
	}
	if p.config.MinLoanAmount != nil && params.Amount.Cmp(p.config.MinLoanAmount) < 0 {
		return fmt.Errorf("%w: loan amount below minimum", types.ErrInvalidAmount)
	}

	maxLoan, err := p.GetMaxLoanAmount(ctx, params.Token)
	if err != nil {
		return err
	}
	if params.Amount.Cmp(maxLoan) > 0 {
		return fmt.Errorf("%w: loan amount %v exceeds maximum %v", types.ErrNoLiquidity, params.Amount, maxLoan)
	}
	return nil
}

// Address returns the lending pool address
func (p *AaveProvider) Address() common.Address {
	return p.config.ContractAddress
}

// Repayment returns RepayByAllowance
func (p *AaveProvider) Repayment() flashloan.RepaymentMode {
	return flashloan.RepayByAllowance
}

func (p *AaveProvider) String() string {
	return flashloan.ProviderAave.String()
}
