package agent

import (
	"context"
	"sync"

	"github.com/lowtide/lowtide/pkg/errdefs"
)

// accountKey identifies one balance
type accountKey struct {
	address string
	asset   string
}

// MemoryLedger is an in-process Ledger for development and single-node
// deployments. Balances start at zero and are funded with Credit.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[accountKey]int64
}

// NewMemoryLedger creates an empty ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[accountKey]int64)}
}

// Credit adds funds to an account
func (l *MemoryLedger) Credit(address, asset string, amount int64) error {
	if amount <= 0 {
		return errdefs.Validation("credit amount must be positive, got %d", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[accountKey{address, asset}] += amount
	return nil
}

// Balance returns the current balance of an account
func (l *MemoryLedger) Balance(address, asset string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[accountKey{address, asset}]
}

// Transfer moves funds between accounts. Debit and credit happen under one
// lock, so a transfer is atomic: it either moves the full amount or nothing.
func (l *MemoryLedger) Transfer(ctx context.Context, from, to, asset string, amount int64) error {
	if amount <= 0 {
		return errdefs.Validation("transfer amount must be positive, got %d", amount)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	src := accountKey{from, asset}
	if l.balances[src] < amount {
		return ErrInsufficientBalance
	}
	l.balances[src] -= amount
	l.balances[accountKey{to, asset}] += amount
	return nil
}
