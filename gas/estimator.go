package gas

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// ArbitrageGasLimit is the gas budgeted for one borrow, two swaps and repay
const ArbitrageGasLimit = 300000

// ErrNoCostRate is returned before the first successful update
var ErrNoCostRate = errors.New("cost rate not yet available")

// CostOracle reports the prevailing network cost rate in wei per gas
type CostOracle interface {
	CostRate(ctx context.Context) (*big.Int, error)
}

// FeeSource is the subset of ethclient.Client the estimator reads
type FeeSource interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

// Estimator provides gas price estimation and tracking
type Estimator struct {
	client       FeeSource
	logger       *zap.Logger
	baseGasPrice *big.Int
	priorityFee  *big.Int
	height       uint64
	mu           sync.RWMutex
}

// NewEstimator creates a new gas estimator over an RPC client
func NewEstimator(client FeeSource, logger *zap.Logger) *Estimator {
	return &Estimator{
		client: client,
		logger: logger,
	}
}

// Run refreshes gas prices every interval until ctx is done
func (e *Estimator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Update(ctx); err != nil {
				e.logger.Error("Failed to update gas prices", zap.Error(err))
			}
		}
	}
}

// Update fetches latest gas prices
func (e *Estimator) Update(ctx context.Context) error {
	header, err := e.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to get latest header: %w", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}

	priorityFee, err := e.client.SuggestGasTipCap(ctx)
	if err != nil {
		return fmt.Errorf("failed to get priority fee: %w", err)
	}

	e.mu.Lock()
	e.baseGasPrice = baseFee
	e.priorityFee = priorityFee
	e.height = header.Number.Uint64()
	e.mu.Unlock()

	e.logger.Debug("Updated gas prices",
		zap.Uint64("height", header.Number.Uint64()),
		zap.String("base_fee", baseFee.String()),
		zap.String("priority_fee", priorityFee.String()))
	return nil
}

// CostRate returns base fee plus priority fee, fetching once if no update
// has happened yet
func (e *Estimator) CostRate(ctx context.Context) (*big.Int, error) {
	e.mu.RLock()
	ready := e.baseGasPrice != nil
	e.mu.RUnlock()

	if !ready {
		if err := e.Update(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoCostRate, err)
		}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return new(big.Int).Add(e.baseGasPrice, e.priorityFee), nil
}

// Height returns the block number seen by the last update
func (e *Estimator) Height() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.height
}

// StaticOracle reports a fixed cost rate
type StaticOracle struct {
	mu   sync.RWMutex
	rate *big.Int
}

// NewStaticOracle creates an oracle fixed at rate
func NewStaticOracle(rate *big.Int) *StaticOracle {
	return &StaticOracle{rate: new(big.Int).Set(rate)}
}

// Set replaces the reported rate
func (s *StaticOracle) Set(rate *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = new(big.Int).Set(rate)
}

// CostRate returns the fixed rate
func (s *StaticOracle) CostRate(ctx context.Context) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.rate), nil
}

// EstimateGasCost estimates the gas cost for a transaction at costRate
func EstimateGasCost(costRate *big.Int, gasLimit uint64) *big.Int {
	return new(big.Int).Mul(costRate, new(big.Int).SetUint64(gasLimit))
}

// BufferedGas adds bufferPercent on top of gasLimit
func BufferedGas(gasLimit, bufferPercent uint64) uint64 {
	return gasLimit * (100 + bufferPercent) / 100
}
