package bot

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/michaelpento.lv/flasharb/admin"
	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/dex/factory"
	"github.com/michaelpento.lv/flasharb/dex/uniswap"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/flashloan/aave"
	"github.com/michaelpento.lv/flasharb/flashloan/balancer"
	"github.com/michaelpento.lv/flasharb/gas"
	"github.com/michaelpento.lv/flasharb/ledger"
	"github.com/michaelpento.lv/flasharb/risk"
	"github.com/michaelpento.lv/flasharb/state"
	"github.com/michaelpento.lv/flasharb/strategies/arbitrage"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const metricsNamespace = "flasharb"

// Bot represents the arbitrage bot instance
type Bot struct {
	cfg      *config.Config
	world    *state.World
	registry *dex.Registry
	loans    *flashloan.FlashLoanManager
	executor *arbitrage.Executor
	engine   *arbitrage.Engine
	scanner  *arbitrage.Scanner

	client    *ethclient.Client
	estimator *gas.Estimator
	oracle    gas.CostOracle
	readers   map[common.Address]uniswap.ReserveReader

	origin      common.Address
	minProfit   *big.Int
	maxGasPrice *big.Int
	maxAmounts  map[types.TokenPair]*big.Int

	metricsRegistry *prometheus.Registry
	logger          *zap.Logger
	wg              sync.WaitGroup
}

// New builds the venue registry, lenders, engine and scanner described by
// cfg. Without a node URL the world is seeded from the configured reserves
// and liquidity.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Bot, error) {
	b := &Bot{
		cfg:             cfg,
		world:           state.NewWorld(cfg.StartHeight),
		readers:         make(map[common.Address]uniswap.ReserveReader),
		maxAmounts:      make(map[types.TokenPair]*big.Int),
		maxGasPrice:     cfg.MaxGasPrice(),
		metricsRegistry: metrics.NewRegistry(),
		logger:          logger,
	}

	if cfg.NodeURL != "" {
		client, err := ethclient.DialContext(ctx, cfg.NodeURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to node: %w", err)
		}
		b.client = client
		b.estimator = gas.NewEstimator(client, logger)
		b.oracle = b.estimator
	} else {
		b.oracle = gas.NewStaticOracle(utils.GweiToWei(cfg.Gas.StaticGasGwei))
	}

	b.registry = dex.NewRegistry(logger)
	if err := b.registerVenues(); err != nil {
		return nil, err
	}

	b.loans = flashloan.NewFlashLoanManager(logger, b.metricsRegistry)
	if err := b.addLenders(); err != nil {
		return nil, err
	}

	engineAddr := common.HexToAddress(cfg.EngineAddress)
	origin, err := originAddress(cfg.PrivateKey, engineAddr)
	if err != nil {
		return nil, err
	}
	b.origin = origin

	gate, err := newGate(cfg, b.maxGasPrice, origin)
	if err != nil {
		return nil, err
	}

	b.minProfit, err = config.ParseInt(cfg.Scanner.MinProfit)
	if err != nil {
		return nil, err
	}
	minNetProfit, err := config.ParseInt(cfg.Scanner.MinNetProfit)
	if err != nil {
		return nil, err
	}
	mode, err := arbitrage.ParseSearchMode(cfg.Scanner.SearchMode)
	if err != nil {
		return nil, err
	}

	aggregator := arbitrage.NewAggregator(b.registry, logger)
	cache, err := arbitrage.NewQuoteCache(cfg.Scanner.CacheSize, cfg.Scanner.QuoteTTL.Std())
	if err != nil {
		return nil, fmt.Errorf("failed to create quote cache: %w", err)
	}
	var limiter *rate.Limiter
	if qps := cfg.Scanner.QuotesPerSecond; qps > 0 {
		limiter = rate.NewLimiter(rate.Limit(qps), int(qps)+1)
	}
	scannerMetrics := metrics.NewScannerMetrics(b.metricsRegistry, metricsNamespace)
	quotes := arbitrage.NewCachedQuoter(aggregator, cache, limiter, scannerMetrics)

	b.executor, err = arbitrage.NewExecutor(b.world, b.registry, engineAddr,
		cfg.Scanner.MaxSlippageBps, cfg.Scanner.DeadlineBuffer, logger)
	if err != nil {
		return nil, err
	}

	b.engine, err = arbitrage.NewEngine(arbitrage.EngineConfig{
		Address:          engineAddr,
		World:            b.world,
		Gate:             gate,
		Solver:           arbitrage.NewSolver(b.registry, aggregator, mode),
		Executor:         b.executor,
		Loans:            b.loans,
		Ledger:           ledger.New(),
		Sink:             b.onRecord,
		Metrics:          metrics.NewStrategyMetrics(b.metricsRegistry, metricsNamespace),
		GasBufferPercent: cfg.Gas.BufferPercent,
		Logger:           logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	pairs, err := b.scanPairs()
	if err != nil {
		return nil, err
	}
	b.scanner = arbitrage.NewScanner(b.registry, quotes, aggregator, mode, b.loans, b.oracle,
		arbitrage.ScannerConfig{
			Pairs:            pairs,
			MinNetProfit:     minNetProfit,
			GasBufferPercent: cfg.Gas.BufferPercent,
			Concurrency:      cfg.Scanner.Concurrency,
			MaxDeviationBps:  cfg.Scanner.MaxDeviationBps,
		}, scannerMetrics, logger)

	return b, nil
}

func (b *Bot) registerVenues() error {
	for _, vc := range b.cfg.Venues {
		model, err := types.ParsePricingModel(vc.Model)
		if err != nil {
			return fmt.Errorf("venue %s: %w", vc.ID, err)
		}

		if len(vc.Tokens) != 2 {
			return fmt.Errorf("venue %s: exactly two tokens must be specified", vc.ID)
		}
		var tokens [2]common.Address
		for i, sym := range vc.Tokens {
			if tokens[i], err = b.cfg.TokenAddress(sym); err != nil {
				return fmt.Errorf("venue %s: %w", vc.ID, err)
			}
		}

		params := factory.Params{
			Venue: types.Venue{
				ID:     vc.ID,
				Router: common.HexToAddress(vc.Router),
				Pool:   common.HexToAddress(vc.Pool),
				Model:  model,
				Active: !vc.Disabled,
			},
			Tokens:        tokens,
			FeeBps:        vc.FeeBps,
			Amplification: vc.Amplification,
			Factory:       common.HexToAddress(vc.Factory),
			InitCodeHash:  common.HexToHash(vc.InitCodeHash),
		}
		if len(vc.Weights) == 2 {
			params.Weights = [2]uint64{vc.Weights[0], vc.Weights[1]}
		}

		venue, adapter, err := factory.NewAdapter(b.world, params)
		if err != nil {
			return err
		}
		if err := b.registry.Register(venue, adapter); err != nil {
			return err
		}

		if b.client != nil && model == types.ModelConstantProduct {
			pair, err := uniswap.NewUniswapV2Pair(venue.Pool, b.client)
			if err != nil {
				return fmt.Errorf("venue %s: %w", vc.ID, err)
			}
			b.readers[venue.Pool] = pair
			continue
		}

		for i, r := range vc.Reserves {
			if r == "" {
				continue
			}
			amount, err := b.cfg.Amount(vc.Tokens[i], r)
			if err != nil {
				return fmt.Errorf("venue %s: %w", vc.ID, err)
			}
			if err := b.world.SetBalance(tokens[i], venue.Pool, amount); err != nil {
				return fmt.Errorf("venue %s: failed to seed reserve: %w", vc.ID, err)
			}
		}
	}
	return nil
}

func (b *Bot) addLenders() error {
	for _, lc := range b.cfg.Lenders {
		providerType, err := config.ParseProviderType(lc.Type)
		if err != nil {
			return err
		}
		pc := flashloan.ProviderConfig{
			Type:              providerType,
			BaseFee:           lc.FeeBps,
			MaxLoanPercentage: lc.MaxLoanPercentage,
		}
		if lc.Address != "" {
			pc.ContractAddress = common.HexToAddress(lc.Address)
		}

		var provider flashloan.Provider
		switch providerType {
		case flashloan.ProviderAave:
			provider, err = aave.NewAaveProvider(b.world, pc, b.logger)
		case flashloan.ProviderBalancer:
			provider, err = balancer.NewProvider(b.world, pc, b.logger)
		}
		if err != nil {
			return fmt.Errorf("failed to create %s lender: %w", lc.Type, err)
		}

		for sym, amount := range lc.Liquidity {
			token, err := b.cfg.TokenAddress(sym)
			if err != nil {
				return err
			}
			liquidity, err := b.cfg.Amount(sym, amount)
			if err != nil {
				return err
			}
			if err := b.world.SetBalance(token, provider.Address(), liquidity); err != nil {
				return fmt.Errorf("failed to seed %s liquidity: %w", lc.Type, err)
			}
		}
		b.loans.AddProvider(provider)
	}
	return nil
}

func (b *Bot) scanPairs() ([]arbitrage.ScanPair, error) {
	pairs := make([]arbitrage.ScanPair, 0, len(b.cfg.Pairs))
	for _, pc := range b.cfg.Pairs {
		token0, err := b.cfg.TokenAddress(pc.Token0)
		if err != nil {
			return nil, err
		}
		token1, err := b.cfg.TokenAddress(pc.Token1)
		if err != nil {
			return nil, err
		}
		maxAmount, err := b.cfg.Amount(pc.Token0, pc.MaxAmount)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, arbitrage.ScanPair{Token0: token0, Token1: token1, MaxAmount: maxAmount})
		b.maxAmounts[types.TokenPair{TokenIn: token0, TokenOut: token1}] = maxAmount
	}
	return pairs, nil
}

// originAddress derives the submitting account from the private key, or
// falls back to the engine address when none is configured
func originAddress(privateKey string, fallback common.Address) (common.Address, error) {
	if privateKey == "" {
		return fallback, nil
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid private key: %w", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

func newGate(cfg *config.Config, maxGasPrice *big.Int, origin common.Address) (*risk.Gate, error) {
	limits := risk.Limits{
		MaxCostRate:  maxGasPrice,
		TrustedRelay: origin,
	}
	if cfg.Risk.TrustedRelay != "" {
		limits.TrustedRelay = common.HexToAddress(cfg.Risk.TrustedRelay)
	}
	if cfg.Risk.MinRelayGasGwei > 0 {
		limits.MinRelayCostRate = utils.GweiToWei(cfg.Risk.MinRelayGasGwei)
	}
	if cfg.Risk.MaxRelayGasGwei > 0 {
		limits.MaxRelayCostRate = utils.GweiToWei(cfg.Risk.MaxRelayGasGwei)
	}
	gate, err := risk.NewGate(limits)
	if err != nil {
		return nil, fmt.Errorf("failed to create risk gate: %w", err)
	}
	return gate, nil
}

// Handler returns the admin and metrics HTTP surface
func (b *Bot) Handler() (http.Handler, error) {
	return admin.NewRouter(admin.Config{
		Venues:  b.registry,
		Engine:  b.engine,
		Stats:   b.scanner,
		Metrics: metrics.Handler(b.metricsRegistry),
		Auth: admin.AuthConfig{
			Secret:    b.cfg.Admin.Secret,
			Issuer:    b.cfg.Admin.Issuer,
			ClockSkew: b.cfg.Admin.ClockSkew.Std(),
		},
		Logger: b.logger.Named("admin"),
	})
}

// Start starts the admin and metrics server, the gas estimator and the monitoring loop
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Starting arbitrage bot",
		zap.Int("venues", len(b.registry.List())),
		zap.Int("pairs", len(b.cfg.Pairs)),
		zap.String("origin", b.origin.Hex()),
		zap.String("engine", b.engine.Address().Hex()))

	if b.cfg.Metrics.Enabled {
		handler, err := b.Handler()
		if err != nil {
			return err
		}
		if b.cfg.Admin.Secret == "" {
			b.logger.Warn("ADMIN_SECRET is not set, mutating admin routes will reject every request")
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			if err := metrics.Serve(ctx, b.cfg.Metrics.Addr, handler, b.logger); err != nil {
				b.logger.Error("HTTP server error", zap.Error(err))
			}
		}()
	}

	if b.estimator != nil {
		if err := b.estimator.Update(ctx); err != nil {
			b.logger.Warn("Initial gas price update failed", zap.Error(err))
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.estimator.Run(ctx, b.cfg.Gas.UpdateInterval.Std())
		}()
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.monitor(ctx)
	}()

	return nil
}

// Stop waits for every goroutine started by Start to return
func (b *Bot) Stop() {
	b.logger.Info("Stopping arbitrage bot...")
	b.wg.Wait()
	if b.client != nil {
		b.client.Close()
	}

	stats := b.scanner.Stats()
	b.logger.Info("Final statistics",
		zap.Uint64("opportunities_found", stats.OpportunitiesFound),
		zap.Uint64("trades_executed", stats.TradesExecuted),
		zap.Uint64("failed_trades", stats.FailedTrades),
		zap.String("total_profit", stats.TotalProfit.String()))
}

func (b *Bot) monitor(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.Scanner.Interval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := b.Round(ctx); err != nil && ctx.Err() == nil {
				b.logger.Error("Monitoring round failed", zap.Error(err))
			}
		}
	}
}

// Round refreshes prices, scans and attempts every verified opportunity. It
// returns the number of settled attempts. A cost rate above the configured
// maximum skips the round.
func (b *Bot) Round(ctx context.Context) (int, error) {
	if err := b.refresh(ctx); err != nil {
		return 0, err
	}

	costRate, err := b.oracle.CostRate(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get cost rate: %w", err)
	}
	if costRate.Cmp(b.maxGasPrice) > 0 {
		b.logger.Info("Gas price too high, skipping round",
			zap.String("cost_rate", costRate.String()),
			zap.String("max_gas_price", b.maxGasPrice.String()))
		return 0, nil
	}

	opportunities, err := b.scanner.Scan(ctx)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, opp := range opportunities {
		if err := b.scanner.Verify(ctx, opp); err != nil {
			b.logger.Info("Dropping opportunity",
				zap.String("source", opp.SourceVenue),
				zap.String("target", opp.TargetVenue),
				zap.Error(err))
			continue
		}

		maxAmount, ok := b.maxAmounts[types.TokenPair{TokenIn: opp.Token0, TokenOut: opp.Token1}]
		if !ok {
			maxAmount = opp.AmountIn
		}
		env := types.ExecContext{Origin: b.origin, CostRate: costRate, Height: b.world.Height()}
		record, err := b.engine.AttemptArbitrage(ctx, env, arbitrage.Request{
			Token0:      opp.Token0,
			Token1:      opp.Token1,
			MaxAmount:   maxAmount,
			SourceVenue: opp.SourceVenue,
			TargetVenue: opp.TargetVenue,
			MinProfit:   b.minProfit,
		})
		b.scanner.RecordResult(record, err)
		if err != nil {
			b.logger.Warn("Attempt failed",
				zap.String("source", opp.SourceVenue),
				zap.String("target", opp.TargetVenue),
				zap.Error(err))
			continue
		}
		settled++
	}
	return settled, nil
}

// Scan refreshes prices and returns the current opportunities without
// executing them
func (b *Bot) Scan(ctx context.Context) ([]types.Opportunity, error) {
	if err := b.refresh(ctx); err != nil {
		return nil, err
	}
	return b.scanner.Scan(ctx)
}

// Quote plans a single leg on venue without executing it
func (b *Bot) Quote(ctx context.Context, venue, tokenIn, tokenOut, amount string) (types.TradePlan, error) {
	in, err := b.cfg.TokenAddress(tokenIn)
	if err != nil {
		return types.TradePlan{}, err
	}
	out, err := b.cfg.TokenAddress(tokenOut)
	if err != nil {
		return types.TradePlan{}, err
	}
	amountIn, err := b.amount(in, amount)
	if err != nil {
		return types.TradePlan{}, err
	}

	if err := b.refresh(ctx); err != nil {
		return types.TradePlan{}, err
	}
	plan, _, err := b.executor.Plan(ctx, in, out, amountIn, venue)
	return plan, err
}

// amount parses a human readable amount of token, or a raw integer when the
// token is not configured
func (b *Bot) amount(token common.Address, s string) (*big.Int, error) {
	if t, ok := b.cfg.TokenByAddress(token); ok {
		return utils.ParseUnits(s, t.Decimals)
	}
	return config.ParseInt(s)
}

// refresh syncs constant-product reserves and the block height from the
// node. Without a node it advances the simulated height by one block.
func (b *Bot) refresh(ctx context.Context) error {
	if b.client == nil {
		b.world.AdvanceHeight(1)
		return nil
	}

	for pool, reader := range b.readers {
		if err := uniswap.SyncReserves(ctx, b.world, pool, reader); err != nil {
			return fmt.Errorf("failed to sync %s: %w", pool.Hex(), err)
		}
	}
	if height := b.estimator.Height(); height > b.world.Height() {
		b.world.AdvanceHeight(height - b.world.Height())
	}
	return nil
}

func (b *Bot) onRecord(record types.ExecutionRecord) {
	profit := record.Profit.String()
	if t, ok := b.cfg.TokenByAddress(record.Token0); ok {
		profit = utils.FormatUnits(record.Profit, t.Decimals) + " " + t.Symbol
	}
	b.logger.Info("Arbitrage executed",
		zap.String("source", record.SourceVenue),
		zap.String("target", record.TargetVenue),
		zap.String("amount", record.Amount.String()),
		zap.String("profit", profit),
		zap.Uint64("height", record.Height))
}

// Engine returns the bot's arbitrage engine
func (b *Bot) Engine() *arbitrage.Engine {
	return b.engine
}

// Registry returns the venue registry
func (b *Bot) Registry() *dex.Registry {
	return b.registry
}

// Config returns the configuration the bot was built from
func (b *Bot) Config() *config.Config {
	return b.cfg
}
