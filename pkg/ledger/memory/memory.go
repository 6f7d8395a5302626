// Package memory provides an in-process Ledger used by tests, the demo
// tooling and local single-node deployments.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/spantoken/bridge-hub/pkg/bridge"
	"github.com/spantoken/bridge-hub/pkg/ledger"
)

type chainState struct {
	balances    map[string]decimal.Decimal
	totalMinted decimal.Decimal
	totalBurned decimal.Decimal
}

// Ledger keeps per-chain balances and monotonic mint/burn counters in memory.
type Ledger struct {
	mu     sync.Mutex
	chains map[bridge.ChainID]*chainState
}

// NewLedger creates an empty in-memory ledger for the given chains.
func NewLedger(chains ...bridge.ChainID) *Ledger {
	l := &Ledger{chains: make(map[bridge.ChainID]*chainState, len(chains))}
	for _, c := range chains {
		l.chains[c] = &chainState{balances: make(map[string]decimal.Decimal)}
	}
	return l
}

func (l *Ledger) chain(id bridge.ChainID) (*chainState, error) {
	cs, ok := l.chains[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ledger.ErrUnknownChain, id)
	}
	return cs, nil
}

// Mint credits recipient and bumps the mint counter.
func (l *Ledger) Mint(_ context.Context, chain bridge.ChainID, recipient string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cs, err := l.chain(chain)
	if err != nil {
		return err
	}
	cs.balances[recipient] = cs.balances[recipient].Add(amount)
	cs.totalMinted = cs.totalMinted.Add(amount)
	return nil
}

// Burn debits holder and bumps the burn counter.
func (l *Ledger) Burn(_ context.Context, chain bridge.ChainID, holder string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cs, err := l.chain(chain)
	if err != nil {
		return err
	}
	balance := cs.balances[holder]
	if balance.LessThan(amount) {
		return fmt.Errorf("%w: have %s, need %s", ledger.ErrInsufficientBalance, balance, amount)
	}
	cs.balances[holder] = balance.Sub(amount)
	cs.totalBurned = cs.totalBurned.Add(amount)
	return nil
}

// TotalMinted returns the chain's cumulative mint counter.
func (l *Ledger) TotalMinted(_ context.Context, chain bridge.ChainID) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cs, err := l.chain(chain)
	if err != nil {
		return decimal.Zero, err
	}
	return cs.totalMinted, nil
}

// TotalBurned returns the chain's cumulative burn counter.
func (l *Ledger) TotalBurned(_ context.Context, chain bridge.ChainID) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cs, err := l.chain(chain)
	if err != nil {
		return decimal.Zero, err
	}
	return cs.totalBurned, nil
}

// BalanceOf returns an account balance on a chain.
func (l *Ledger) BalanceOf(_ context.Context, chain bridge.ChainID, account string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cs, err := l.chain(chain)
	if err != nil {
		return decimal.Zero, err
	}
	return cs.balances[account], nil
}

var _ ledger.Ledger = (*Ledger)(nil)
