package ledger

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/types"
)

// Summary is a point-in-time copy of the ledger
type Summary struct {
	TotalExecutions     uint64
	TotalProfit         *big.Int
	LastExecutionHeight uint64
	PerTokenProfit      map[common.Address]*big.Int
}

// ProfitLedger accumulates realized profit. Its counters never decrease and
// Record is the only mutator.
type ProfitLedger struct {
	mu                  sync.RWMutex
	totalExecutions     uint64
	totalProfit         *big.Int
	lastExecutionHeight uint64
	perTokenProfit      map[common.Address]*big.Int
}

// New creates a zeroed ledger
func New() *ProfitLedger {
	return &ProfitLedger{
		totalProfit:    new(big.Int),
		perTokenProfit: make(map[common.Address]*big.Int),
	}
}

// Record accounts one settled execution
func (l *ProfitLedger) Record(token common.Address, profit *big.Int, height uint64) error {
	if profit == nil || profit.Sign() < 0 {
		return fmt.Errorf("%w: profit must not be negative", types.ErrInvalidAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.totalExecutions++
	l.totalProfit.Add(l.totalProfit, profit)
	l.lastExecutionHeight = height

	perToken, ok := l.perTokenProfit[token]
	if !ok {
		perToken = new(big.Int)
		l.perTokenProfit[token] = perToken
	}
	perToken.Add(perToken, profit)
	return nil
}

// TotalExecutions returns the number of settled executions
func (l *ProfitLedger) TotalExecutions() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalExecutions
}

// TotalProfit returns the sum of all recorded profit
func (l *ProfitLedger) TotalProfit() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.totalProfit)
}

// LastExecutionHeight returns the height of the most recent execution
func (l *ProfitLedger) LastExecutionHeight() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastExecutionHeight
}

// PerTokenProfit returns the profit recorded against token
func (l *ProfitLedger) PerTokenProfit(token common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if v, ok := l.perTokenProfit[token]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Summary returns a copy of every counter
func (l *ProfitLedger) Summary() Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	perToken := make(map[common.Address]*big.Int, len(l.perTokenProfit))
	for token, v := range l.perTokenProfit {
		perToken[token] = new(big.Int).Set(v)
	}
	return Summary{
		TotalExecutions:     l.totalExecutions,
		TotalProfit:         new(big.Int).Set(l.totalProfit),
		LastExecutionHeight: l.lastExecutionHeight,
		PerTokenProfit:      perToken,
	}
}
