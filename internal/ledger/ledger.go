// Package ledger is the host's native-currency ledger. Balance changes made
// while a transaction is open are journaled so the host can undo them when
// the contract call they belong to reverts.
package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"poolwager/internal/models"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrRecipientRejected = errors.New("recipient rejected transfer")
	ErrNegativeAmount    = errors.New("negative amount")
	ErrTxInProgress      = errors.New("ledger transaction already in progress")
	ErrTxDone            = errors.New("ledger transaction already finished")
)

type change struct {
	addr models.Address
	prev *big.Int
}

// Ledger holds a balance per address.
type Ledger struct {
	mu        sync.RWMutex
	balances  map[models.Address]*big.Int
	rejecting map[models.Address]bool
	tx        *Tx
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		balances:  make(map[models.Address]*big.Int),
		rejecting: make(map[models.Address]bool),
	}
}

// BalanceOf returns a copy of addr's balance.
func (l *Ledger) BalanceOf(addr models.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Reject marks addr as unable to receive funds, like a contract without a
// payable fallback.
func (l *Ledger) Reject(addr models.Address, reject bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if reject {
		l.rejecting[addr] = true
	} else {
		delete(l.rejecting, addr)
	}
}

// Credit mints amount into addr.
func (l *Ledger) Credit(addr models.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.set(addr, new(big.Int).Add(l.get(addr), amount))
	return nil
}

// Transfer moves amount from one address to another. Either both balances
// change or neither does.
func (l *Ledger) Transfer(from, to models.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rejecting[to] {
		return fmt.Errorf("%w: %s", ErrRecipientRejected, to)
	}
	balance := l.get(from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from, balance.String(), amount.String())
	}
	if from == to {
		return nil
	}

	l.set(from, new(big.Int).Sub(balance, amount))
	l.set(to, new(big.Int).Add(l.get(to), amount))
	return nil
}

// Begin opens a transaction. Only one may be open at a time.
func (l *Ledger) Begin() (*Tx, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tx != nil {
		return nil, ErrTxInProgress
	}
	l.tx = &Tx{l: l}
	return l.tx, nil
}

func (l *Ledger) get(addr models.Address) *big.Int {
	if b, ok := l.balances[addr]; ok {
		return b
	}
	return new(big.Int)
}

// set must be called with mu held.
func (l *Ledger) set(addr models.Address, v *big.Int) {
	if l.tx != nil {
		var prev *big.Int
		if b, ok := l.balances[addr]; ok {
			prev = b
		}
		l.tx.journal = append(l.tx.journal, change{addr: addr, prev: prev})
	}
	l.balances[addr] = v
}

// Tx is an open ledger transaction.
type Tx struct {
	l       *Ledger
	journal []change
	done    bool
}

// Commit keeps every change made since Begin.
func (tx *Tx) Commit() error {
	tx.l.mu.Lock()
	defer tx.l.mu.Unlock()
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	tx.l.tx = nil
	return nil
}

// Rollback restores every balance touched since Begin.
func (tx *Tx) Rollback() error {
	tx.l.mu.Lock()
	defer tx.l.mu.Unlock()
	if tx.done {
		return ErrTxDone
	}
	for i := len(tx.journal) - 1; i >= 0; i-- {
		c := tx.journal[i]
		if c.prev == nil {
			delete(tx.l.balances, c.addr)
		} else {
			tx.l.balances[c.addr] = c.prev
		}
	}
	tx.done = true
	tx.l.tx = nil
	return nil
}
