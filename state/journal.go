package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// journalEntry is a modification that can be reverted
type journalEntry interface {
	revert(w *World)
}

type balanceChange struct {
	token  common.Address
	holder common.Address
	prev   *big.Int
}

func (c balanceChange) revert(w *World) {
	w.setBalance(c.token, c.holder, c.prev)
}

type allowanceChange struct {
	key  allowanceKey
	prev *big.Int
}

func (c allowanceChange) revert(w *World) {
	if c.prev == nil {
		delete(w.allowances, c.key)
		return
	}
	w.allowances[c.key] = c.prev
}

type heightChange struct {
	prev uint64
}

func (c heightChange) revert(w *World) {
	w.height = c.prev
}

// journal tracks state modifications in order so they can be rolled back
type journal struct {
	entries []journalEntry
}

func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
}

func (j *journal) length() int {
	return len(j.entries)
}

// revertTo undoes every entry recorded after snapshot
func (j *journal) revertTo(w *World, snapshot int) {
	for i := len(j.entries) - 1; i >= snapshot; i-- {
		j.entries[i].revert(w)
	}
	j.entries = j.entries[:snapshot]
}
