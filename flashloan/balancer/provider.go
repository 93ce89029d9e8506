package balancer

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

// VaultAddress is the Balancer V2 vault on mainnet
var VaultAddress = common.HexToAddress("0xBA12222222228d8Ba445958a75a0704d566BF2C8")

// Provider lends out of the vault. The borrower must transfer amount plus
// the protocol fee back before the callback returns.
type Provider struct {
	world  *state.World
	config flashloan.ProviderConfig
	logger *zap.Logger
}

// NewProvider creates a new Balancer flash loan provider
func NewProvider(world *state.World, config flashloan.ProviderConfig, logger *zap.Logger) (*Provider, error) {
	if world == nil {
		return nil, fmt.Errorf("world cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if config.BaseFee >= bigmath.BasisPoints {
		return nil, fmt.Errorf("protocol fee %d bps out of range", config.BaseFee)
	}
	if config.ContractAddress == (common.Address{}) {
		config.ContractAddress = VaultAddress
	}
	config.Type = flashloan.ProviderBalancer

	return &Provider{
		world:  world,
		config: config,
		logger: logger,
	}, nil
}

// FlashLoan executes a flash loan through the vault
func (p *Provider) FlashLoan(ctx context.Context, params flashloan.FlashLoanParams) error {
	maxLoan, err := p.GetMaxLoanAmount(ctx, params.Token)
	if err != nil {
		return err
	}
	if params.Amount != nil && params.Amount.Cmp(maxLoan) > 0 {
		return fmt.Errorf("%w: vault can lend at most %v", types.ErrNoLiquidity, maxLoan)
	}

	fee, err := p.GetLoanFee(ctx, params.Token, params.Amount)
	if err != nil {
		return err
	}

	p.logger.Debug("Executing Balancer flash loan",
		zap.String("token", params.Token.Hex()),
		zap.String("amount", params.Amount.String()))

	return flashloan.Lend(ctx, p.world, p.config.ContractAddress, flashloan.RepayByTransfer, params, fee)
}

// GetLoanFee returns the protocol fee, zero unless configured
func (p *Provider) GetLoanFee(ctx context.Context, token common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: invalid loan amount", types.ErrInvalidAmount)
	}
	return bigmath.BpsOf(amount, p.config.BaseFee), nil
}

// GetMaxLoanAmount returns the vault's lendable balance of token
func (p *Provider) GetMaxLoanAmount(ctx context.Context, token common.Address) (*big.Int, error) {
	return flashloan.MaxLoan(p.config, p.world.BalanceOf(token, p.config.ContractAddress)), nil
}

// Address returns the vault address
func (p *Provider) Address() common.Address {
	return p.config.ContractAddress
}

// Repayment returns RepayByTransfer
func (p *Provider) Repayment() flashloan.RepaymentMode {
	return flashloan.RepayByTransfer
}

func (p *Provider) String() string {
	return flashloan.ProviderBalancer.String()
}
