// Package ledger defines the token ledger capability the bridge consumes.
// The base token's transfer and approval mechanics live outside this
// service; the bridge only needs the mint/burn role plus the supply
// counters for bookkeeping.
package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/spantoken/bridge-hub/pkg/bridge"
)

var (
	// ErrInsufficientBalance is returned when a burn exceeds the holder's balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrUnknownChain is returned for a chain the ledger has no binding for.
	ErrUnknownChain = errors.New("unknown chain")
)

// Ledger exposes the bridge-capable role of the base token on each chain.
type Ledger interface {
	Mint(ctx context.Context, chain bridge.ChainID, recipient string, amount decimal.Decimal) error
	Burn(ctx context.Context, chain bridge.ChainID, holder string, amount decimal.Decimal) error
	TotalMinted(ctx context.Context, chain bridge.ChainID) (decimal.Decimal, error)
	TotalBurned(ctx context.Context, chain bridge.ChainID) (decimal.Decimal, error)
	BalanceOf(ctx context.Context, chain bridge.ChainID, account string) (decimal.Decimal, error)
}
