package arbitrage

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/gas"
	"github.com/michaelpento.lv/flasharb/ledger"
	"github.com/michaelpento.lv/flasharb/risk"
	"github.com/michaelpento.lv/flasharb/state"
	"github.com/michaelpento.lv/flasharb/types"
	bigmath "github.com/michaelpento.lv/flasharb/utils/math"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
	"go.uber.org/zap"
)

// Stage is a step of the attempt state machine
type Stage int

const (
	StageIdle Stage = iota
	StageGated
	StageSizing
	StageBorrowing
	StageTradingLeg1
	StageTradingLeg2
	StageVerifying
	StageRepaying
	StageSettled
	StageAborted
)

var stageNames = [...]string{
	"idle", "gated", "sizing", "borrowing", "trading_leg1",
	"trading_leg2", "verifying", "repaying", "settled", "aborted",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}

// Request is the input of AttemptArbitrage
type Request struct {
	Token0      common.Address
	Token1      common.Address
	MaxAmount   *big.Int
	SourceVenue string
	TargetVenue string
	MinProfit   *big.Int
}

// RecordSink receives an ExecutionRecord for every settled attempt
type RecordSink func(types.ExecutionRecord)

// loan is the attempt currently borrowing
type loan struct {
	provider flashloan.Provider
	attempt  types.ArbitrageAttempt
	stage    Stage
	net      *big.Int
}

// Engine runs atomic borrow, trade, repay attempts
type Engine struct {
	mu     sync.Mutex
	paused atomic.Bool
	active *loan

	address  common.Address
	world    *state.World
	gate     *risk.Gate
	solver   *Solver
	executor *Executor
	loans    *flashloan.FlashLoanManager
	ledger   *ledger.ProfitLedger
	sink     RecordSink
	gasUsed  uint64
	metrics  *metrics.StrategyMetrics
	logger   *zap.Logger
}

// EngineConfig wires the engine's collaborators
type EngineConfig struct {
	Address  common.Address
	World    *state.World
	Gate     *risk.Gate
	Solver   *Solver
	Executor *Executor
	Loans    *flashloan.FlashLoanManager
	Ledger   *ledger.ProfitLedger
	Sink     RecordSink
	Metrics  *metrics.StrategyMetrics
	Logger   *zap.Logger

	// GasBufferPercent is added on top of gas.ArbitrageGasLimit when
	// reporting CostUsed, matching the scanner's budget
	GasBufferPercent uint64
}

// NewEngine creates an engine. Sink is optional.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	switch {
	case cfg.World == nil:
		return nil, fmt.Errorf("world cannot be nil")
	case cfg.Gate == nil:
		return nil, fmt.Errorf("gate cannot be nil")
	case cfg.Solver == nil || cfg.Executor == nil:
		return nil, fmt.Errorf("solver and executor must be specified")
	case cfg.Loans == nil:
		return nil, fmt.Errorf("flash loan manager cannot be nil")
	case cfg.Ledger == nil:
		return nil, fmt.Errorf("ledger cannot be nil")
	case cfg.Metrics == nil:
		return nil, fmt.Errorf("metrics cannot be nil")
	case cfg.Logger == nil:
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &Engine{
		address:  cfg.Address,
		world:    cfg.World,
		gate:     cfg.Gate,
		solver:   cfg.Solver,
		executor: cfg.Executor,
		loans:    cfg.Loans,
		ledger:   cfg.Ledger,
		sink:     cfg.Sink,
		gasUsed:  gas.BufferedGas(gas.ArbitrageGasLimit, cfg.GasBufferPercent),
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}, nil
}

// Address returns the account the engine trades from
func (e *Engine) Address() common.Address {
	return e.address
}

// Ledger returns the engine's profit ledger
func (e *Engine) Ledger() *ledger.ProfitLedger {
	return e.ledger
}

// AttemptArbitrage gates, sizes, borrows and trades one round trip. On any
// error no balance, allowance or ledger change survives.
func (e *Engine) AttemptArbitrage(ctx context.Context, env types.ExecContext, req Request) (*types.ExecutionRecord, error) {
	if e.paused.Load() {
		return nil, types.ErrPaused
	}
	if !e.mu.TryLock() {
		return nil, types.ErrReentrant
	}
	defer e.mu.Unlock()

	start := time.Now()
	e.metrics.Attempts.Inc()
	defer func() {
		e.metrics.ExecutionTime.Observe(time.Since(start).Seconds())
	}()

	stage := StageIdle
	abort := func(err error) (*types.ExecutionRecord, error) {
		e.metrics.Failures.WithLabelValues(stage.String()).Inc()
		e.logger.Info("Attempt aborted",
			zap.Stringer("stage", stage),
			zap.String("source", req.SourceVenue),
			zap.String("target", req.TargetVenue),
			zap.Error(err))
		return nil, err
	}

	if err := e.gate.Check(env); err != nil {
		return abort(err)
	}
	stage = StageGated

	minProfit := req.MinProfit
	if minProfit == nil {
		minProfit = new(big.Int)
	}
	if minProfit.Sign() < 0 {
		return abort(fmt.Errorf("%w: min profit must not be negative", types.ErrInvalidAmount))
	}

	stage = StageSizing
	amount, expected, err := e.solver.OptimalTrade(ctx, req.Token0, req.Token1, req.MaxAmount, req.SourceVenue, req.TargetVenue)
	if err != nil {
		return abort(err)
	}
	if amount.Sign() == 0 || expected.Cmp(minProfit) < 0 {
		return abort(fmt.Errorf("%w: best size %v yields %v, need %v",
			types.ErrInsufficientExpectedProfit, amount, expected, minProfit))
	}

	stage = StageBorrowing
	provider, fee, err := e.loans.SelectProvider(ctx, req.Token0, amount)
	if err != nil {
		return abort(err)
	}

	attempt := types.ArbitrageAttempt{
		Token0:      req.Token0,
		Token1:      req.Token1,
		Amount:      amount,
		SourceVenue: req.SourceVenue,
		TargetVenue: req.TargetVenue,
		MinProfit:   minProfit,
	}
	data, err := EncodeAttempt(attempt)
	if err != nil {
		return abort(err)
	}

	e.active = &loan{provider: provider, attempt: attempt, stage: StageBorrowing}
	defer func() { e.active = nil }()

	err = e.loans.Execute(ctx, provider, flashloan.FlashLoanParams{
		Receiver:  e,
		Target:    e.address,
		Initiator: e.address,
		Token:     req.Token0,
		Amount:    amount,
		Data:      data,
	})
	if err != nil {
		stage = e.active.stage
		return abort(err)
	}

	stage = StageSettled
	height := env.Height
	if height == 0 {
		height = e.world.Height()
	}
	net := e.active.net
	if err := e.ledger.Record(req.Token1, net, height); err != nil {
		return abort(err)
	}

	record := types.ExecutionRecord{
		ID:          uuid.NewString(),
		Token0:      req.Token0,
		Token1:      req.Token1,
		Amount:      amount,
		Profit:      net,
		SourceVenue: req.SourceVenue,
		TargetVenue: req.TargetVenue,
		CostUsed:    e.gasUsed,
		CostRate:    env.CostRate,
		Height:      height,
	}

	e.metrics.Successes.Inc()
	e.metrics.GasUsed.Observe(float64(record.CostUsed))
	if f, _ := new(big.Float).SetInt(net).Float64(); f > 0 {
		e.metrics.ProfitTotal.Add(f)
	}
	e.logger.Info("Attempt settled",
		zap.String("id", record.ID),
		zap.String("source", req.SourceVenue),
		zap.String("target", req.TargetVenue),
		zap.String("amount", amount.String()),
		zap.String("fee", fee.String()),
		zap.String("profit", net.String()),
		zap.Stringer("lender", provider))

	if e.sink != nil {
		e.sink(record)
	}
	return &record, nil
}

// OnFlashLoan runs both legs, verifies profit and leaves amount+fee for the
// lender. It only accepts the loan the engine itself requested.
func (e *Engine) OnFlashLoan(ctx context.Context, asset common.Address, amount, fee *big.Int, initiator common.Address, data []byte) error {
	active := e.active
	if active == nil || initiator != e.address {
		return fmt.Errorf("%w: unsolicited flash loan callback", types.ErrUntrustedOrigin)
	}

	attempt, err := DecodeAttempt(data)
	if err != nil {
		return err
	}
	if asset != attempt.Token0 || amount.Cmp(attempt.Amount) != 0 || !sameAttempt(attempt, active.attempt) {
		return fmt.Errorf("%w: callback does not match requested loan", types.ErrUntrustedOrigin)
	}

	startingBalance := e.world.BalanceOf(asset, e.address)

	active.stage = StageTradingLeg1
	leg1, err := e.executor.ExecuteWithSlippage(ctx, attempt.Token0, attempt.Token1, amount, attempt.SourceVenue)
	if err != nil {
		return fmt.Errorf("leg 1 on %s: %w", attempt.SourceVenue, err)
	}

	active.stage = StageTradingLeg2
	if _, err := e.executor.ExecuteWithSlippage(ctx, attempt.Token1, attempt.Token0, leg1, attempt.TargetVenue); err != nil {
		return fmt.Errorf("leg 2 on %s: %w", attempt.TargetVenue, err)
	}

	active.stage = StageVerifying
	endingBalance := e.world.BalanceOf(asset, e.address)
	profit := new(big.Int).Sub(endingBalance, startingBalance)
	required := new(big.Int).Add(fee, attempt.MinProfit)
	if profit.Cmp(required) < 0 {
		return fmt.Errorf("%w: round trip gained %v, need %v", types.ErrInsufficientProfit, profit, required)
	}

	active.stage = StageRepaying
	owed := new(big.Int).Add(amount, fee)
	lender := active.provider.Address()
	switch active.provider.Repayment() {
	case flashloan.RepayByAllowance:
		err = e.world.Approve(asset, e.address, lender, owed)
	case flashloan.RepayByTransfer:
		err = e.world.Transfer(asset, e.address, lender, owed)
	default:
		err = fmt.Errorf("unknown repayment mode")
	}
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrRepaymentFailed, err)
	}

	active.net = profit.Sub(profit, fee)
	return nil
}

// sameAttempt reports whether a and b describe the same round trip
func sameAttempt(a, b types.ArbitrageAttempt) bool {
	return a.Token0 == b.Token0 &&
		a.Token1 == b.Token1 &&
		a.SourceVenue == b.SourceVenue &&
		a.TargetVenue == b.TargetVenue &&
		bigmath.Clone(a.Amount).Cmp(bigmath.Clone(b.Amount)) == 0 &&
		bigmath.Clone(a.MinProfit).Cmp(bigmath.Clone(b.MinProfit)) == 0
}

// Pause stops new attempts from starting
func (e *Engine) Pause() {
	e.paused.Store(true)
	e.metrics.Paused.Set(1)
	e.logger.Warn("Engine paused")
}

// Unpause resumes attempts
func (e *Engine) Unpause() {
	e.paused.Store(false)
	e.metrics.Paused.Set(0)
	e.logger.Info("Engine unpaused")
}

// Paused reports whether the engine is paused
func (e *Engine) Paused() bool {
	return e.paused.Load()
}

// Withdraw moves the engine's whole balance of token to to
func (e *Engine) Withdraw(token, to common.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	balance := e.world.BalanceOf(token, e.address)
	if balance.Sign() == 0 {
		return balance, nil
	}
	if err := e.world.Transfer(token, e.address, to, balance); err != nil {
		return nil, fmt.Errorf("failed to withdraw: %w", err)
	}

	e.logger.Info("Withdrew residual balance",
		zap.String("token", token.Hex()),
		zap.String("to", to.Hex()),
		zap.String("amount", balance.String()))
	return balance, nil
}
