package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRegistry creates a registry carrying the Go runtime and process collectors
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// Handler exposes registry in the Prometheus text format
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// Serve runs handler on addr until ctx is done
func Serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving HTTP", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type StrategyMetrics struct {
	Attempts      prometheus.Counter
	Successes     prometheus.Counter
	Failures      *prometheus.CounterVec
	ProfitTotal   prometheus.Counter
	GasUsed       prometheus.Histogram
	ExecutionTime prometheus.Histogram
	Paused        prometheus.Gauge
}

func NewStrategyMetrics(reg prometheus.Registerer, namespace string) *StrategyMetrics {
	factory := promauto.With(reg)
	return &StrategyMetrics{
		Attempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Total number of arbitrage attempts",
		}),
		Successes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "successes_total",
			Help:      "Total number of settled arbitrage attempts",
		}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Total number of aborted attempts by stage",
		}, []string{"stage"}),
		ProfitTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profit_total",
			Help:      "Total realized profit in raw token units",
		}),
		GasUsed: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gas_used",
			Help:      "Gas used per settled attempt",
			Buckets:   prometheus.ExponentialBuckets(21000, 2, 10),
		}),
		ExecutionTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_time_seconds",
			Help:      "Time taken to run an attempt",
			Buckets:   prometheus.DefBuckets,
		}),
		Paused: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "paused",
			Help:      "1 while the engine is paused",
		}),
	}
}

type ScannerMetrics struct {
	Scans         prometheus.Counter
	ScanDuration  prometheus.Histogram
	Candidates    prometheus.Counter
	Opportunities prometheus.Counter
	Rejected      *prometheus.CounterVec
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	CostRate      prometheus.Gauge
}

func NewScannerMetrics(reg prometheus.Registerer, namespace string) *ScannerMetrics {
	factory := promauto.With(reg)
	return &ScannerMetrics{
		Scans: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Total number of scan rounds",
		}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Time taken by a scan round",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		Candidates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Total number of venue pairs evaluated",
		}),
		Opportunities: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_total",
			Help:      "Total number of opportunities above threshold",
		}),
		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_total",
			Help:      "Candidates dropped by reason",
		}, []string{"reason"}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_cache_hits_total",
			Help:      "Quotes served from cache",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_cache_misses_total",
			Help:      "Quotes computed by the venue adapter",
		}),
		CostRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cost_rate_wei",
			Help:      "Network cost rate seen by the last scan",
		}),
	}
}
