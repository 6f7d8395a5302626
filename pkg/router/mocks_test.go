package router

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/spantoken/bridge-hub/pkg/adapter"
	"github.com/spantoken/bridge-hub/pkg/bridge"
)

// MockAdapter is a fn-field mock of the Adapter capability.
type MockAdapter struct {
	ProtocolValue   bridge.Protocol
	EstimateFeeFunc func(ctx context.Context, dest bridge.ChainID, amount decimal.Decimal, data []byte) (adapter.Quote, error)
	DispatchFunc    func(ctx context.Context, req adapter.OutboundRequest) (adapter.DispatchResult, error)
	Dispatched      []adapter.OutboundRequest
}

func (m *MockAdapter) Protocol() bridge.Protocol {
	return m.ProtocolValue
}

func (m *MockAdapter) SupportsChain(_ bridge.ChainID) bool {
	return true
}

func (m *MockAdapter) EstimateFee(ctx context.Context, dest bridge.ChainID, amount decimal.Decimal, data []byte) (adapter.Quote, error) {
	if m.EstimateFeeFunc != nil {
		return m.EstimateFeeFunc(ctx, dest, amount, data)
	}
	return adapter.Quote{Fee: decimal.NewFromInt(1)}, nil
}

func (m *MockAdapter) Dispatch(ctx context.Context, req adapter.OutboundRequest) (adapter.DispatchResult, error) {
	m.Dispatched = append(m.Dispatched, req)
	if m.DispatchFunc != nil {
		return m.DispatchFunc(ctx, req)
	}
	return adapter.DispatchResult{CorrelationID: "corr-1", Nonce: uint64(len(m.Dispatched))}, nil
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

// MockStore records journaled transfers keyed by id, last write wins.
type MockStore struct {
	SaveTransferFunc func(ctx context.Context, transfer *bridge.Transfer) error
	Saved            map[string]bridge.Transfer
}

func (m *MockStore) SaveTransfer(ctx context.Context, transfer *bridge.Transfer) error {
	if m.Saved == nil {
		m.Saved = make(map[string]bridge.Transfer)
	}
	m.Saved[transfer.ID] = *transfer
	if m.SaveTransferFunc != nil {
		return m.SaveTransferFunc(ctx, transfer)
	}
	return nil
}
