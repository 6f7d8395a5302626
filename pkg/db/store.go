// Package db provides the bun-backed persistence layer. Components keep
// their authoritative state in memory and journal through this store; on
// startup the service reloads supplies, nonces, windows and open transfers.
package db

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/spantoken/bridge-hub/pkg/bridge"
	"github.com/spantoken/bridge-hub/pkg/db/dao"
	"github.com/spantoken/bridge-hub/pkg/ratelimit"
)

// Store provides database operations for the bridge.
type Store struct {
	db *bun.DB
}

// NewStore creates a store over an established connection.
func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveTransfer upserts one transfer record. Implements the router's Store.
func (s *Store) SaveTransfer(ctx context.Context, transfer *bridge.Transfer) error {
	model := toTransferDao(transfer)
	_, err := s.db.NewInsert().
		Model(model).
		On("CONFLICT (id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("message_hash = EXCLUDED.message_hash").
		Set("nonce = EXCLUDED.nonce").
		Set("correlation_id = EXCLUDED.correlation_id").
		Set("updated_at = EXCLUDED.updated_at").
		Set("completed_at = EXCLUDED.completed_at").
		Set("error_message = EXCLUDED.error_message").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save transfer: %w", err)
	}
	return nil
}

// GetTransfer retrieves one transfer by id. Returns nil when not found.
func (s *Store) GetTransfer(ctx context.Context, id string) (*bridge.Transfer, error) {
	model := new(dao.TransferDao)
	err := s.db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}
	return toTransfer(model)
}

// ListOpenTransfers returns every non-terminal transfer, oldest first,
// for the startup reload.
func (s *Store) ListOpenTransfers(ctx context.Context) ([]bridge.Transfer, error) {
	var models []dao.TransferDao
	err := s.db.NewSelect().
		Model(&models).
		Where("status IN (?)", bun.In([]string{string(bridge.StatusPending), string(bridge.StatusFailed)})).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list open transfers: %w", err)
	}

	transfers := make([]bridge.Transfer, 0, len(models))
	for i := range models {
		t, err := toTransfer(&models[i])
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, *t)
	}
	return transfers, nil
}

// SaveChainSupply upserts one chain's attested supply. Implements the
// oracle's Store.
func (s *Store) SaveChainSupply(ctx context.Context, supply *bridge.ChainSupply) error {
	model := &dao.ChainSupplyDao{
		ChainID:           int64(supply.ChainID),
		TotalSupply:       supply.TotalSupply.String(),
		LockedSupply:      supply.LockedSupply.String(),
		CirculatingSupply: supply.CirculatingSupply.String(),
		LastUpdateTime:    supply.LastUpdateTime,
		UpdateCount:       int64(supply.UpdateCount),
	}
	_, err := s.db.NewInsert().
		Model(model).
		On("CONFLICT (chain_id) DO UPDATE").
		Set("total_supply = EXCLUDED.total_supply").
		Set("locked_supply = EXCLUDED.locked_supply").
		Set("circulating_supply = EXCLUDED.circulating_supply").
		Set("last_update_time = EXCLUDED.last_update_time").
		Set("update_count = EXCLUDED.update_count").
		Set("updated_at = NOW()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save chain supply: %w", err)
	}
	return nil
}

// ListChainSupplies returns every persisted supply record.
func (s *Store) ListChainSupplies(ctx context.Context) ([]bridge.ChainSupply, error) {
	var models []dao.ChainSupplyDao
	if err := s.db.NewSelect().Model(&models).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list chain supplies: %w", err)
	}

	supplies := make([]bridge.ChainSupply, 0, len(models))
	for _, m := range models {
		total, err := decimal.NewFromString(m.TotalSupply)
		if err != nil {
			return nil, fmt.Errorf("corrupt total supply for chain %d: %w", m.ChainID, err)
		}
		locked, err := decimal.NewFromString(m.LockedSupply)
		if err != nil {
			return nil, fmt.Errorf("corrupt locked supply for chain %d: %w", m.ChainID, err)
		}
		supplies = append(supplies, bridge.ChainSupply{
			ChainID:           bridge.ChainID(m.ChainID),
			TotalSupply:       total,
			LockedSupply:      locked,
			CirculatingSupply: total.Sub(locked),
			LastUpdateTime:    m.LastUpdateTime,
			UpdateCount:       uint64(m.UpdateCount),
		})
	}
	return supplies, nil
}

// SaveNonce journals one consumed inbound nonce. Implements the adapter's
// NonceStore. The composite primary key absorbs duplicate writes.
func (s *Store) SaveNonce(ctx context.Context, protocol bridge.Protocol, chain bridge.ChainID, nonce uint64) error {
	model := &dao.ProcessedNonceDao{
		Protocol: string(protocol),
		ChainID:  int64(chain),
		Nonce:    int64(nonce),
	}
	_, err := s.db.NewInsert().
		Model(model).
		On("CONFLICT (protocol, chain_id, nonce) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save nonce: %w", err)
	}
	return nil
}

// DeleteNonce removes one journaled nonce. The adapter calls it to
// compensate the journal write when the mint fails.
func (s *Store) DeleteNonce(ctx context.Context, protocol bridge.Protocol, chain bridge.ChainID, nonce uint64) error {
	_, err := s.db.NewDelete().
		Model((*dao.ProcessedNonceDao)(nil)).
		Where("protocol = ? AND chain_id = ? AND nonce = ?", string(protocol), int64(chain), int64(nonce)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete nonce: %w", err)
	}
	return nil
}

// ListNonces returns the consumed nonces for one protocol and chain.
func (s *Store) ListNonces(ctx context.Context, protocol bridge.Protocol, chain bridge.ChainID) ([]uint64, error) {
	var models []dao.ProcessedNonceDao
	err := s.db.NewSelect().
		Model(&models).
		Where("protocol = ? AND chain_id = ?", string(protocol), int64(chain)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list nonces: %w", err)
	}

	nonces := make([]uint64, 0, len(models))
	for _, m := range models {
		nonces = append(nonces, uint64(m.Nonce))
	}
	return nonces, nil
}

// SaveWindow upserts one rate window. Implements the limiter's Store.
func (s *Store) SaveWindow(ctx context.Context, state ratelimit.WindowState) error {
	model := &dao.RateWindowDao{
		Account:     state.Account,
		OpType:      string(state.Op),
		TokensUsed:  state.TokensUsed.String(),
		TxCount:     state.TxCount,
		WindowStart: state.WindowStart,
	}
	_, err := s.db.NewInsert().
		Model(model).
		On("CONFLICT (account, op_type) DO UPDATE").
		Set("tokens_used = EXCLUDED.tokens_used").
		Set("tx_count = EXCLUDED.tx_count").
		Set("window_start = EXCLUDED.window_start").
		Set("updated_at = NOW()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save rate window: %w", err)
	}
	return nil
}

// ListWindows returns every persisted rate window for the startup reload.
func (s *Store) ListWindows(ctx context.Context) ([]ratelimit.WindowState, error) {
	var models []dao.RateWindowDao
	if err := s.db.NewSelect().Model(&models).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list rate windows: %w", err)
	}

	states := make([]ratelimit.WindowState, 0, len(models))
	for _, m := range models {
		tokens, err := decimal.NewFromString(m.TokensUsed)
		if err != nil {
			return nil, fmt.Errorf("corrupt window for account %q: %w", m.Account, err)
		}
		states = append(states, ratelimit.WindowState{
			Account:     m.Account,
			Op:          bridge.OpType(m.OpType),
			TokensUsed:  tokens,
			TxCount:     m.TxCount,
			WindowStart: m.WindowStart,
		})
	}
	return states, nil
}

func toTransferDao(t *bridge.Transfer) *dao.TransferDao {
	model := &dao.TransferDao{
		ID:          t.ID,
		Sender:      t.Sender,
		Recipient:   t.Recipient,
		Amount:      t.Amount.String(),
		SourceChain: int64(t.SourceChain),
		DestChain:   int64(t.DestChain),
		Protocol:    string(t.Protocol),
		Status:      string(t.Status),
		Timestamp:   t.Timestamp,
		Nonce:       int64(t.Nonce),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		CompletedAt: t.CompletedAt,
	}
	if t.MessageHash != "" {
		model.MessageHash = &t.MessageHash
	}
	if t.CorrelationID != "" {
		model.CorrelationID = &t.CorrelationID
	}
	if t.ErrorMessage != "" {
		model.ErrorMessage = &t.ErrorMessage
	}
	return model
}

func toTransfer(m *dao.TransferDao) (*bridge.Transfer, error) {
	amount, err := decimal.NewFromString(m.Amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount for transfer %s: %w", m.ID, err)
	}

	t := &bridge.Transfer{
		ID:          m.ID,
		Sender:      m.Sender,
		Recipient:   m.Recipient,
		Amount:      amount,
		SourceChain: bridge.ChainID(m.SourceChain),
		DestChain:   bridge.ChainID(m.DestChain),
		Protocol:    bridge.Protocol(m.Protocol),
		Status:      bridge.TransferStatus(m.Status),
		Timestamp:   m.Timestamp,
		Nonce:       uint64(m.Nonce),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		CompletedAt: m.CompletedAt,
	}
	if m.MessageHash != nil {
		t.MessageHash = *m.MessageHash
	}
	if m.CorrelationID != nil {
		t.CorrelationID = *m.CorrelationID
	}
	if m.ErrorMessage != nil {
		t.ErrorMessage = *m.ErrorMessage
	}
	return t, nil
}
