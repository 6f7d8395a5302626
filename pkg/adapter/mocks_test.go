package adapter

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/spantoken/bridge-hub/pkg/bridge"
)

// MockNetwork is a fn-field mock of the Network interface.
type MockNetwork struct {
	EstimateFeeFunc func(ctx context.Context, dest bridge.ChainID, payloadSize int) (decimal.Decimal, error)
	DispatchFunc    func(ctx context.Context, dest bridge.ChainID, payload []byte) (string, error)
	Dispatched      [][]byte
}

func (m *MockNetwork) EstimateFee(ctx context.Context, dest bridge.ChainID, payloadSize int) (decimal.Decimal, error) {
	if m.EstimateFeeFunc != nil {
		return m.EstimateFeeFunc(ctx, dest, payloadSize)
	}
	return decimal.Zero, nil
}

func (m *MockNetwork) Dispatch(ctx context.Context, dest bridge.ChainID, payload []byte) (string, error) {
	m.Dispatched = append(m.Dispatched, payload)
	if m.DispatchFunc != nil {
		return m.DispatchFunc(ctx, dest, payload)
	}
	return "corr-1", nil
}

// MockLimiter is a fn-field mock of the RateLimiter capability.
type MockLimiter struct {
	ReserveFunc func(ctx context.Context, account string, op bridge.OpType, amount decimal.Decimal) error
	Released    int
}

func (m *MockLimiter) Reserve(ctx context.Context, account string, op bridge.OpType, amount decimal.Decimal) error {
	if m.ReserveFunc != nil {
		return m.ReserveFunc(ctx, account, op, amount)
	}
	return nil
}

func (m *MockLimiter) Release(_ context.Context, _ string, _ bridge.OpType, _ decimal.Decimal) {
	m.Released++
}

// MockNonceStore records journaled and deleted nonces.
type MockNonceStore struct {
	SaveNonceFunc   func(ctx context.Context, protocol bridge.Protocol, chain bridge.ChainID, nonce uint64) error
	DeleteNonceFunc func(ctx context.Context, protocol bridge.Protocol, chain bridge.ChainID, nonce uint64) error
	Saved           []uint64
	Deleted         []uint64
}

func (m *MockNonceStore) SaveNonce(ctx context.Context, protocol bridge.Protocol, chain bridge.ChainID, nonce uint64) error {
	if m.SaveNonceFunc != nil {
		if err := m.SaveNonceFunc(ctx, protocol, chain, nonce); err != nil {
			return err
		}
	}
	m.Saved = append(m.Saved, nonce)
	return nil
}

func (m *MockNonceStore) DeleteNonce(ctx context.Context, protocol bridge.Protocol, chain bridge.ChainID, nonce uint64) error {
	if m.DeleteNonceFunc != nil {
		if err := m.DeleteNonceFunc(ctx, protocol, chain, nonce); err != nil {
			return err
		}
	}
	m.Deleted = append(m.Deleted, nonce)
	return nil
}
