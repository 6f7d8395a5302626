package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/spantoken/bridge-hub/pkg/ledger"
)

func TestMintBurnCounters(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(1)

	if err := l.Mint(ctx, 1, "alice", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if err := l.Burn(ctx, 1, "alice", decimal.NewFromInt(40)); err != nil {
		t.Fatalf("burn failed: %v", err)
	}

	minted, _ := l.TotalMinted(ctx, 1)
	burned, _ := l.TotalBurned(ctx, 1)
	balance, _ := l.BalanceOf(ctx, 1, "alice")

	if !minted.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected minted 100, got %s", minted)
	}
	if !burned.Equal(decimal.NewFromInt(40)) {
		t.Errorf("expected burned 40, got %s", burned)
	}
	if !balance.Equal(decimal.NewFromInt(60)) {
		t.Errorf("expected balance 60, got %s", balance)
	}
}

func TestBurnInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(1)

	err := l.Burn(ctx, 1, "alice", decimal.NewFromInt(1))
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestUnknownChain(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(1)

	if err := l.Mint(ctx, 99, "alice", decimal.NewFromInt(1)); !errors.Is(err, ledger.ErrUnknownChain) {
		t.Errorf("expected ErrUnknownChain, got %v", err)
	}
}
