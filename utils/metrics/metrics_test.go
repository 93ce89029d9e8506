package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry()
	families, err := registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestStrategyMetrics(t *testing.T) {
	metrics := NewStrategyMetrics(prometheus.NewRegistry(), "test_strategy")
	assert.NotNil(t, metrics)

	metrics.Attempts.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Attempts))

	metrics.Failures.WithLabelValues("sizing").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Failures.WithLabelValues("sizing")))

	metrics.ProfitTotal.Add(17)
	assert.Equal(t, float64(17), testutil.ToFloat64(metrics.ProfitTotal))
}

func TestScannerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewScannerMetrics(reg, "test_scanner")

	metrics.CacheHits.Inc()
	metrics.CacheMisses.Add(2)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheHits))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.CacheMisses))

	// Registering twice on the same registry panics
	assert.Panics(t, func() { NewScannerMetrics(reg, "test_scanner") })
}
