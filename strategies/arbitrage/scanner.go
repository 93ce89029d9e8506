package arbitrage

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/gas"
	"github.com/michaelpento.lv/flasharb/types"
	bigmath "github.com/michaelpento.lv/flasharb/utils/math"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxDeviationBps drops an opportunity whose quotes moved more than 1%
const DefaultMaxDeviationBps = 100

// ScanPair is a token pair to scan and the largest amount to borrow for it
type ScanPair struct {
	Token0    common.Address
	Token1    common.Address
	MaxAmount *big.Int
}

// ScannerConfig tunes the scanner
type ScannerConfig struct {
	Pairs            []ScanPair
	MinNetProfit     *big.Int
	GasBufferPercent uint64
	Concurrency      int
	MaxDeviationBps  uint64
}

// ScanStats are the scanner's running totals
type ScanStats struct {
	OpportunitiesFound uint64
	TradesExecuted     uint64
	FailedTrades       uint64
	TotalProfit        *big.Int
}

// Scanner evaluates every pair on every ordered pair of active venues
type Scanner struct {
	registry *dex.Registry
	solver   *Solver
	quotes   *CachedQuoter
	verifier Quoter
	loans    *flashloan.FlashLoanManager
	oracle   gas.CostOracle
	config   ScannerConfig
	metrics  *metrics.ScannerMetrics
	logger   *zap.Logger

	mu    sync.Mutex
	stats ScanStats
}

// NewScanner creates a scanner. Sizing goes through quotes, re-verification
// through verifier so that it never sees cached values.
func NewScanner(registry *dex.Registry, quotes *CachedQuoter, verifier Quoter, mode SearchMode, loans *flashloan.FlashLoanManager, oracle gas.CostOracle, config ScannerConfig, m *metrics.ScannerMetrics, logger *zap.Logger) *Scanner {
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.MaxDeviationBps == 0 {
		config.MaxDeviationBps = DefaultMaxDeviationBps
	}
	if config.MinNetProfit == nil {
		config.MinNetProfit = new(big.Int)
	}

	return &Scanner{
		registry: registry,
		solver:   NewSolver(registry, quotes, mode),
		quotes:   quotes,
		verifier: verifier,
		loans:    loans,
		oracle:   oracle,
		config:   config,
		metrics:  m,
		logger:   logger,
		stats:    ScanStats{TotalProfit: new(big.Int)},
	}
}

type candidate struct {
	pair           ScanPair
	source, target string
}

// Scan returns every opportunity whose net profit after loan fee and gas
// reaches the threshold, best first
func (s *Scanner) Scan(ctx context.Context) ([]types.Opportunity, error) {
	start := time.Now()
	defer func() {
		s.metrics.Scans.Inc()
		s.metrics.ScanDuration.Observe(time.Since(start).Seconds())
	}()

	costRate, err := s.oracle.CostRate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get cost rate: %w", err)
	}
	rate, _ := new(big.Float).SetInt(costRate).Float64()
	s.metrics.CostRate.Set(rate)

	gasEstimate := gas.BufferedGas(gas.ArbitrageGasLimit, s.config.GasBufferPercent)
	gasCost := gas.EstimateGasCost(costRate, gasEstimate)

	// Quotes only live for one round
	s.quotes.Purge()

	var candidates []candidate
	venues := s.registry.Active()
	for _, pair := range s.config.Pairs {
		for _, source := range venues {
			for _, target := range venues {
				if source.ID == target.ID {
					continue
				}
				candidates = append(candidates, candidate{pair: pair, source: source.ID, target: target.ID})
			}
		}
	}
	s.metrics.Candidates.Add(float64(len(candidates)))

	var (
		mu            sync.Mutex
		opportunities []types.Opportunity
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for _, c := range candidates {
		c := c
		g.Go(func() error {
			opp, reason := s.evaluate(gctx, c, gasEstimate, gasCost)
			if opp == nil {
				s.metrics.Rejected.WithLabelValues(reason).Inc()
				return nil
			}
			mu.Lock()
			opportunities = append(opportunities, *opp)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		if cmp := opportunities[i].NetProfit.Cmp(opportunities[j].NetProfit); cmp != 0 {
			return cmp > 0
		}
		if opportunities[i].SourceVenue != opportunities[j].SourceVenue {
			return opportunities[i].SourceVenue < opportunities[j].SourceVenue
		}
		return opportunities[i].TargetVenue < opportunities[j].TargetVenue
	})

	s.mu.Lock()
	s.stats.OpportunitiesFound += uint64(len(opportunities))
	s.mu.Unlock()
	s.metrics.Opportunities.Add(float64(len(opportunities)))

	s.logger.Debug("Scan complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("opportunities", len(opportunities)),
		zap.String("cost_rate", costRate.String()),
		zap.Duration("took", time.Since(start)))
	return opportunities, nil
}

func (s *Scanner) evaluate(ctx context.Context, c candidate, gasEstimate uint64, gasCost *big.Int) (*types.Opportunity, string) {
	pair := c.pair
	amount, profit, err := s.solver.OptimalTrade(ctx, pair.Token0, pair.Token1, pair.MaxAmount, c.source, c.target)
	if err != nil {
		return nil, "venue"
	}
	if amount.Sign() == 0 {
		return nil, "unprofitable"
	}

	_, fee, err := s.loans.SelectProvider(ctx, pair.Token0, amount)
	if err != nil {
		return nil, "no_lender"
	}

	net := new(big.Int).Sub(profit, fee)
	net.Sub(net, gasCost)
	if net.Cmp(s.config.MinNetProfit) < 0 {
		return nil, "below_threshold"
	}

	sourceOut, targetOut, _ := s.solver.Simulate(ctx, pair.Token0, pair.Token1, amount, c.source, c.target)
	return &types.Opportunity{
		Token0:         pair.Token0,
		Token1:         pair.Token1,
		SourceVenue:    c.source,
		TargetVenue:    c.target,
		AmountIn:       amount,
		ExpectedProfit: profit,
		NetProfit:      net,
		LoanFee:        fee,
		GasEstimate:    gasEstimate,
		SourceOut:      sourceOut,
		TargetOut:      targetOut,
	}, ""
}

// Verify re-quotes both legs at the opportunity size and rejects it when
// either moved by more than the configured deviation
func (s *Scanner) Verify(ctx context.Context, opp types.Opportunity) error {
	sourceOut := s.verifier.ExpectedOutput(ctx, opp.SourceVenue, opp.Token0, opp.Token1, opp.AmountIn)
	if dev := bigmath.DeviationBps(sourceOut, opp.SourceOut); dev > s.config.MaxDeviationBps {
		return fmt.Errorf("%w: %s quote moved %d bps", types.ErrPriceMoved, opp.SourceVenue, dev)
	}

	targetOut := s.verifier.ExpectedOutput(ctx, opp.TargetVenue, opp.Token1, opp.Token0, sourceOut)
	if dev := bigmath.DeviationBps(targetOut, opp.TargetOut); dev > s.config.MaxDeviationBps {
		return fmt.Errorf("%w: %s quote moved %d bps", types.ErrPriceMoved, opp.TargetVenue, dev)
	}
	return nil
}

// RecordResult folds the outcome of an attempt into the running totals
func (s *Scanner) RecordResult(record *types.ExecutionRecord, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil || record == nil {
		s.stats.FailedTrades++
		return
	}
	s.stats.TradesExecuted++
	s.stats.TotalProfit.Add(s.stats.TotalProfit, record.Profit)
}

// Stats returns a copy of the running totals
func (s *Scanner) Stats() ScanStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	stats.TotalProfit = new(big.Int).Set(s.stats.TotalProfit)
	return stats
}
