// Package state holds the token ledger every venue, lender and the engine
// settle against. Mutations are journaled so a failed attempt can be
// discarded as a whole.
package state

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/types"
)

type allowanceKey struct {
	token   common.Address
	owner   common.Address
	spender common.Address
}

// World is an in-process token ledger with snapshot/revert support
type World struct {
	mu         sync.RWMutex
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[allowanceKey]*big.Int
	height     uint64
	journal    journal
	snapshots  []int
}

// NewWorld creates an empty world at the given block height
func NewWorld(height uint64) *World {
	return &World{
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
		height:     height,
	}
}

// Height returns the current block height
func (w *World) Height() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.height
}

// AdvanceHeight moves the block height forward by n blocks
func (w *World) AdvanceHeight(n uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record(heightChange{prev: w.height})
	w.height += n
}

// BalanceOf returns a copy of holder's balance of token
func (w *World) BalanceOf(token, holder common.Address) *big.Int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return new(big.Int).Set(w.balance(token, holder))
}

// Allowance returns how much spender may pull from owner
func (w *World) Allowance(token, owner, spender common.Address) *big.Int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if a, ok := w.allowances[allowanceKey{token, owner, spender}]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

// Mint credits amount of token to holder
func (w *World) Mint(token, holder common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return types.ErrInvalidAmount
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.credit(token, holder, amount)
	return nil
}

// SetBalance overwrites holder's balance, used when syncing pool reserves
func (w *World) SetBalance(token, holder common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return types.ErrInvalidAmount
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.record(balanceChange{token: token, holder: holder, prev: w.balance(token, holder)})
	w.setBalance(token, holder, new(big.Int).Set(amount))
	return nil
}

// Transfer moves amount of token from one holder to another
func (w *World) Transfer(token, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return types.ErrInvalidAmount
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.transfer(token, from, to, amount)
}

// Approve sets the exact amount spender may pull from owner
func (w *World) Approve(token, owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return types.ErrInvalidAmount
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	key := allowanceKey{token, owner, spender}
	w.record(allowanceChange{key: key, prev: w.allowances[key]})
	w.allowances[key] = new(big.Int).Set(amount)
	return nil
}

// TransferFrom moves amount from owner to recipient, consuming spender's allowance
func (w *World) TransferFrom(token, spender, owner, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return types.ErrInvalidAmount
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	key := allowanceKey{token, owner, spender}
	allowed, ok := w.allowances[key]
	if !ok || allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s may pull %v of %s from %s, needs %v",
			types.ErrInsufficientAllowance, spender.Hex(), allowed, token.Hex(), owner.Hex(), amount)
	}
	if w.balance(token, owner).Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %v of %s, needs %v",
			types.ErrInsufficientBalance, owner.Hex(), w.balance(token, owner), token.Hex(), amount)
	}

	w.record(allowanceChange{key: key, prev: allowed})
	w.allowances[key] = new(big.Int).Sub(allowed, amount)
	return w.transfer(token, owner, to, amount)
}

// Snapshot returns an identifier for the current state revision
func (w *World) Snapshot() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.snapshots = append(w.snapshots, w.journal.length())
	return len(w.snapshots) - 1
}

// RevertToSnapshot discards every change made after the snapshot was taken
func (w *World) RevertToSnapshot(id int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if id < 0 || id >= len(w.snapshots) {
		panic(fmt.Sprintf("revision id %d cannot be reverted", id))
	}
	w.journal.revertTo(w, w.snapshots[id])
	w.snapshots = w.snapshots[:id]
}

// DiscardSnapshot keeps the changes made after the snapshot
func (w *World) DiscardSnapshot(id int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if id < 0 || id >= len(w.snapshots) {
		return
	}
	w.snapshots = w.snapshots[:id]
	if len(w.snapshots) == 0 {
		w.journal.entries = nil
	}
}

// Atomic runs fn against the world and reverts every change it made if it
// returns an error or panics.
func Atomic(w *World, fn func() error) (err error) {
	id := w.Snapshot()
	defer func() {
		if r := recover(); r != nil {
			w.RevertToSnapshot(id)
			panic(r)
		}
		if err != nil {
			w.RevertToSnapshot(id)
			return
		}
		w.DiscardSnapshot(id)
	}()
	return fn()
}

// record journals entry while a snapshot is open
func (w *World) record(entry journalEntry) {
	if len(w.snapshots) > 0 {
		w.journal.append(entry)
	}
}

func (w *World) balance(token, holder common.Address) *big.Int {
	if holders, ok := w.balances[token]; ok {
		if b, ok := holders[holder]; ok {
			return b
		}
	}
	return new(big.Int)
}

func (w *World) setBalance(token, holder common.Address, amount *big.Int) {
	holders, ok := w.balances[token]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		w.balances[token] = holders
	}
	holders[holder] = amount
}

func (w *World) credit(token, holder common.Address, amount *big.Int) {
	prev := w.balance(token, holder)
	w.record(balanceChange{token: token, holder: holder, prev: prev})
	w.setBalance(token, holder, new(big.Int).Add(prev, amount))
}

func (w *World) transfer(token, from, to common.Address, amount *big.Int) error {
	fromBal := w.balance(token, from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %v of %s, needs %v",
			types.ErrInsufficientBalance, from.Hex(), fromBal, token.Hex(), amount)
	}
	if from == to {
		return nil
	}
	w.record(balanceChange{token: token, holder: from, prev: fromBal})
	w.setBalance(token, from, new(big.Int).Sub(fromBal, amount))
	w.credit(token, to, amount)
	return nil
}
