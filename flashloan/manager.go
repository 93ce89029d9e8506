package flashloan

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

// FlashLoanManager coordinates flash loan operations across providers
type FlashLoanManager struct {
	mu      sync.RWMutex
	metrics struct {
		providerSelections *prometheus.CounterVec
		executionLatency   prometheus.Histogram
		successRate        prometheus.Gauge
		activeLoans        prometheus.Gauge
		successCount       prometheus.Counter
		totalCount         prometheus.Counter
		errors             *prometheus.CounterVec
	}
	providers []Provider
	logger    *zap.Logger
}

// NewFlashLoanManager creates a new flash loan manager registering its
// metrics with reg
func NewFlashLoanManager(logger *zap.Logger, reg prometheus.Registerer) *FlashLoanManager {
	manager := &FlashLoanManager{
		logger: logger,
	}
	factory := promauto.With(reg)

	manager.metrics.providerSelections = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "flashloan_provider_selections_total",
		Help: "Number of times each provider was selected",
	}, []string{"provider"})

	manager.metrics.executionLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "flashloan_execution_latency_seconds",
		Help:    "Latency of flash loan execution",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	})

	manager.metrics.successRate = factory.NewGauge(prometheus.GaugeOpts{
		Name: "flashloan_success_rate",
		Help: "Success rate of flash loan executions",
	})

	manager.metrics.activeLoans = factory.NewGauge(prometheus.GaugeOpts{
		Name: "flashloan_active_loans",
		Help: "Number of currently active flash loans",
	})

	manager.metrics.successCount = factory.NewCounter(prometheus.CounterOpts{
		Name: "flashloan_success_count",
		Help: "Number of successful flash loan executions",
	})

	manager.metrics.totalCount = factory.NewCounter(prometheus.CounterOpts{
		Name: "flashloan_total_count",
		Help: "Total number of flash loan executions",
	})

	manager.metrics.errors = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "flashloan_errors_total",
		Help: "Number of flash loan errors by type",
	}, []string{"error_type"})

	return manager
}

// AddProvider adds a new flash loan provider
func (m *FlashLoanManager) AddProvider(provider Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers = append(m.providers, provider)
}

// SelectProvider returns the cheapest provider able to lend amount of token
// together with its fee. Ties go to the provider added first.
func (m *FlashLoanManager) SelectProvider(ctx context.Context, token common.Address, amount *big.Int) (Provider, *big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.providers) == 0 {
		return nil, nil, fmt.Errorf("no providers available")
	}

	var (
		bestProvider Provider
		bestFee      *big.Int
	)

	for _, provider := range m.providers {
		maxLoan, err := provider.GetMaxLoanAmount(ctx, token)
		if err != nil {
			m.logger.Warn("Failed to get provider liquidity",
				zap.Stringer("provider", provider), zap.Error(err))
			continue
		}
		if maxLoan.Cmp(amount) < 0 {
			continue
		}

		fee, err := provider.GetLoanFee(ctx, token, amount)
		if err != nil {
			m.logger.Warn("Failed to get provider fee",
				zap.Stringer("provider", provider), zap.Error(err))
			continue
		}

		if bestFee == nil || fee.Cmp(bestFee) < 0 {
			bestProvider = provider
			bestFee = fee
		}
	}

	if bestProvider == nil {
		return nil, nil, fmt.Errorf("%w: no provider can lend %v of %s", types.ErrNoLiquidity, amount, token.Hex())
	}
	return bestProvider, bestFee, nil
}

// Execute runs a flash loan through provider and records the outcome
func (m *FlashLoanManager) Execute(ctx context.Context, provider Provider, params FlashLoanParams) error {
	start := time.Now()
	defer func() {
		m.metrics.executionLatency.Observe(time.Since(start).Seconds())
	}()

	m.metrics.activeLoans.Inc()
	defer m.metrics.activeLoans.Dec()

	m.metrics.providerSelections.WithLabelValues(provider.String()).Inc()
	m.metrics.totalCount.Inc()

	err := provider.FlashLoan(ctx, params)
	if err != nil {
		m.metrics.errors.WithLabelValues(errorType(err)).Inc()
	} else {
		m.metrics.successCount.Inc()
	}
	m.updateSuccessRate()

	return err
}

// errorType buckets loan failures for the errors counter
func errorType(err error) string {
	for _, known := range []struct {
		target error
		label  string
	}{
		{types.ErrRepaymentFailed, "repayment"},
		{types.ErrNoLiquidity, "liquidity"},
		{types.ErrInsufficientProfit, "unprofitable"},
		{types.ErrSlippageExceeded, "slippage"},
		{types.ErrDeadlineExpired, "deadline"},
		{types.ErrVenueInactive, "venue_inactive"},
	} {
		if errors.Is(err, known.target) {
			return known.label
		}
	}
	return "other"
}

// updateSuccessRate updates the success rate metric
func (m *FlashLoanManager) updateSuccessRate() {
	successCount := counterValue(m.metrics.successCount)
	totalCount := counterValue(m.metrics.totalCount)

	if totalCount > 0 {
		m.metrics.successRate.Set(successCount / totalCount)
	}
}

func counterValue(c prometheus.Counter) float64 {
	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil || metric.Counter == nil {
		return 0
	}
	return metric.Counter.GetValue()
}
