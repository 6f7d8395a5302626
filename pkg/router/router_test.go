package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spantoken/bridge-hub/pkg/adapter"
	apperrors "github.com/spantoken/bridge-hub/pkg/app/errors"
	"github.com/spantoken/bridge-hub/pkg/bridge"
	"github.com/spantoken/bridge-hub/pkg/ledger/memory"
)

const (
	chainA bridge.ChainID = 1
	chainB bridge.ChainID = 2
)

func quoteAdapter(p bridge.Protocol, fee string, eta time.Duration, security int) *MockAdapter {
	return &MockAdapter{
		ProtocolValue: p,
		EstimateFeeFunc: func(_ context.Context, _ bridge.ChainID, _ decimal.Decimal, _ []byte) (adapter.Quote, error) {
			return adapter.Quote{
				Fee:           decimal.RequireFromString(fee),
				EstimatedTime: eta,
				SecurityLevel: security,
			}, nil
		},
	}
}

func newTestRouter(t *testing.T, adapters ...*MockAdapter) (*Router, *memory.Ledger, *MockLimiter) {
	t.Helper()
	lgr := memory.NewLedger(chainA, chainB)
	limiter := &MockLimiter{}
	r := New(lgr, limiter, nil, zap.NewNop())
	for _, a := range adapters {
		r.RegisterAdapter(a)
		if err := r.RegisterRoute(chainB, a.Protocol()); err != nil {
			t.Fatalf("register route: %v", err)
		}
	}
	return r, lgr, limiter
}

func TestGetBridgeOptionsIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	healthy := quoteAdapter(bridge.ProtocolGuardian, "1", time.Minute, 9)
	failing := &MockAdapter{
		ProtocolValue: bridge.ProtocolMessageBus,
		EstimateFeeFunc: func(_ context.Context, _ bridge.ChainID, _ decimal.Decimal, _ []byte) (adapter.Quote, error) {
			return adapter.Quote{}, errors.New("estimator offline")
		},
	}
	panicking := &MockAdapter{
		ProtocolValue: bridge.ProtocolCourier,
		EstimateFeeFunc: func(_ context.Context, _ bridge.ChainID, _ decimal.Decimal, _ []byte) (adapter.Quote, error) {
			panic("estimator bug")
		},
	}

	r, _, _ := newTestRouter(t, healthy, failing, panicking)

	options := r.GetBridgeOptions(ctx, chainB, decimal.NewFromInt(100))
	if len(options) != 1 {
		t.Fatalf("expected 1 option, got %d", len(options))
	}
	if options[0].Protocol != bridge.ProtocolGuardian || !options[0].Available {
		t.Errorf("unexpected surviving option: %+v", options[0])
	}
}

func TestGetBridgeOptionsSkipsDisabled(t *testing.T) {
	ctx := context.Background()
	a := quoteAdapter(bridge.ProtocolGuardian, "1", time.Minute, 9)
	b := quoteAdapter(bridge.ProtocolMessageBus, "2", time.Minute, 6)
	r, _, _ := newTestRouter(t, a, b)

	r.SetEnabled(bridge.ProtocolGuardian, false)

	options := r.GetBridgeOptions(ctx, chainB, decimal.NewFromInt(100))
	if len(options) != 1 || options[0].Protocol != bridge.ProtocolMessageBus {
		t.Errorf("expected only messagebus, got %+v", options)
	}
}

func TestGetOptimalRouteCheapestKeepsFirstMinimum(t *testing.T) {
	ctx := context.Background()
	// Fees 10, 5, 5: the scan keeps the first minimum, so messagebus wins
	// over courier despite the equal fee.
	r, _, _ := newTestRouter(t,
		quoteAdapter(bridge.ProtocolGuardian, "10", time.Minute, 9),
		quoteAdapter(bridge.ProtocolMessageBus, "5", time.Minute, 6),
		quoteAdapter(bridge.ProtocolCourier, "5", time.Minute, 7),
	)

	got, err := r.GetOptimalRoute(ctx, chainB, decimal.NewFromInt(100), PreferCheapest)
	if err != nil {
		t.Fatalf("route selection failed: %v", err)
	}
	if got != bridge.ProtocolMessageBus {
		t.Errorf("expected messagebus, got %s", got)
	}
}

func TestGetOptimalRoutePreferences(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRouter(t,
		quoteAdapter(bridge.ProtocolGuardian, "3", 15*time.Minute, 9),
		quoteAdapter(bridge.ProtocolMessageBus, "1", 2*time.Minute, 6),
		quoteAdapter(bridge.ProtocolLightClient, "5", 60*time.Minute, 10),
	)

	cases := []struct {
		preference RoutePreference
		want       bridge.Protocol
	}{
		{PreferCheapest, bridge.ProtocolMessageBus},
		{PreferFastest, bridge.ProtocolMessageBus},
		{PreferMostSecure, bridge.ProtocolLightClient},
	}
	for _, tc := range cases {
		got, err := r.GetOptimalRoute(ctx, chainB, decimal.NewFromInt(100), tc.preference)
		if err != nil {
			t.Fatalf("%s: %v", tc.preference, err)
		}
		if got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.preference, tc.want, got)
		}
	}
}

func TestGetOptimalRouteNoRoutes(t *testing.T) {
	r, _, _ := newTestRouter(t)
	_, err := r.GetOptimalRoute(context.Background(), chainB, decimal.NewFromInt(100), PreferCheapest)
	if !errors.Is(err, ErrNoRouteAvailable) {
		t.Errorf("expected ErrNoRouteAvailable, got %v", err)
	}
}

func TestBridgeTokenHappyPath(t *testing.T) {
	ctx := context.Background()
	a := quoteAdapter(bridge.ProtocolGuardian, "1", time.Minute, 9)
	r, lgr, _ := newTestRouter(t, a)
	_ = lgr.Mint(ctx, chainA, "alice", decimal.NewFromInt(500))

	id, err := r.BridgeToken(ctx, BridgeRequest{
		SourceChain: chainA,
		DestChain:   chainB,
		Sender:      "alice",
		Recipient:   "bob",
		Amount:      decimal.NewFromInt(100),
		Protocol:    bridge.ProtocolGuardian,
	})
	if err != nil {
		t.Fatalf("bridge failed: %v", err)
	}

	transfer, err := r.GetTransfer(id)
	if err != nil {
		t.Fatalf("get transfer: %v", err)
	}
	if transfer.Status != bridge.StatusPending {
		t.Errorf("expected pending, got %s", transfer.Status)
	}
	if transfer.CorrelationID == "" {
		t.Error("expected correlation id recorded")
	}

	burned, _ := lgr.TotalBurned(ctx, chainA)
	if !burned.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected burned 100, got %s", burned)
	}
	if len(a.Dispatched) != 1 {
		t.Errorf("expected one dispatch, got %d", len(a.Dispatched))
	}
}

func TestBridgeTokenRefundsOnDispatchFailure(t *testing.T) {
	ctx := context.Background()
	a := quoteAdapter(bridge.ProtocolGuardian, "1", time.Minute, 9)
	a.DispatchFunc = func(_ context.Context, _ adapter.OutboundRequest) (adapter.DispatchResult, error) {
		return adapter.DispatchResult{}, errors.New("network unreachable")
	}
	r, lgr, limiter := newTestRouter(t, a)
	_ = lgr.Mint(ctx, chainA, "alice", decimal.NewFromInt(500))

	_, err := r.BridgeToken(ctx, BridgeRequest{
		SourceChain: chainA, DestChain: chainB,
		Sender: "alice", Recipient: "bob",
		Amount:   decimal.NewFromInt(100),
		Protocol: bridge.ProtocolGuardian,
	})
	if err == nil {
		t.Fatal("expected dispatch error")
	}

	balance, _ := lgr.BalanceOf(ctx, chainA, "alice")
	if !balance.Equal(decimal.NewFromInt(500)) {
		t.Errorf("expected balance restored to 500, got %s", balance)
	}
	if limiter.Released != 1 {
		t.Errorf("expected reserved capacity released, got %d", limiter.Released)
	}

	// The record ends Refunded, never stuck in pending or failed.
	transfers := r.Transfers()
	if len(transfers) != 1 {
		t.Fatalf("expected one transfer record, got %d", len(transfers))
	}
	if transfers[0].Status != bridge.StatusRefunded {
		t.Errorf("expected refunded, got %s", transfers[0].Status)
	}
}

func TestBridgeTokenInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	a := quoteAdapter(bridge.ProtocolGuardian, "1", time.Minute, 9)
	r, _, limiter := newTestRouter(t, a)

	_, err := r.BridgeToken(ctx, BridgeRequest{
		SourceChain: chainA, DestChain: chainB,
		Sender: "alice", Recipient: "bob",
		Amount:   decimal.NewFromInt(100),
		Protocol: bridge.ProtocolGuardian,
	})
	if !apperrors.Is(err, apperrors.KindValidation) {
		t.Fatalf("expected Validation error, got %v", err)
	}
	if limiter.Released != 1 {
		t.Errorf("expected reservation released after failed burn, got %d", limiter.Released)
	}
	if len(a.Dispatched) != 0 {
		t.Error("failed burn must not dispatch")
	}
}

func TestBridgeTokenValidation(t *testing.T) {
	ctx := context.Background()
	a := quoteAdapter(bridge.ProtocolGuardian, "1", time.Minute, 9)
	r, _, _ := newTestRouter(t, a)

	cases := []struct {
		name string
		req  BridgeRequest
		kind apperrors.Kind
	}{
		{
			name: "unregistered protocol",
			req: BridgeRequest{
				SourceChain: chainA, DestChain: chainB,
				Sender: "alice", Recipient: "bob",
				Amount: decimal.NewFromInt(1), Protocol: bridge.ProtocolCourier,
			},
			kind: apperrors.KindConfiguration,
		},
		{
			name: "unrouted chain",
			req: BridgeRequest{
				SourceChain: chainA, DestChain: 99,
				Sender: "alice", Recipient: "bob",
				Amount: decimal.NewFromInt(1), Protocol: bridge.ProtocolGuardian,
			},
			kind: apperrors.KindConfiguration,
		},
		{
			name: "empty recipient",
			req: BridgeRequest{
				SourceChain: chainA, DestChain: chainB,
				Sender: "alice",
				Amount: decimal.NewFromInt(1), Protocol: bridge.ProtocolGuardian,
			},
			kind: apperrors.KindValidation,
		},
		{
			name: "zero amount",
			req: BridgeRequest{
				SourceChain: chainA, DestChain: chainB,
				Sender: "alice", Recipient: "bob",
				Amount: decimal.Zero, Protocol: bridge.ProtocolGuardian,
			},
			kind: apperrors.KindValidation,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.BridgeToken(ctx, tc.req)
			if !apperrors.Is(err, tc.kind) {
				t.Errorf("expected %s error, got %v", tc.kind, err)
			}
		})
	}
}

func TestBridgeTokenDisabledProtocol(t *testing.T) {
	ctx := context.Background()
	a := quoteAdapter(bridge.ProtocolGuardian, "1", time.Minute, 9)
	r, _, _ := newTestRouter(t, a)
	r.SetEnabled(bridge.ProtocolGuardian, false)

	_, err := r.BridgeToken(ctx, BridgeRequest{
		SourceChain: chainA, DestChain: chainB,
		Sender: "alice", Recipient: "bob",
		Amount: decimal.NewFromInt(1), Protocol: bridge.ProtocolGuardian,
	})
	if !apperrors.Is(err, apperrors.KindConfiguration) {
		t.Errorf("expected Configuration error, got %v", err)
	}
}

func TestBridgeTokenPaused(t *testing.T) {
	ctx := context.Background()
	a := quoteAdapter(bridge.ProtocolGuardian, "1", time.Minute, 9)
	r, _, _ := newTestRouter(t, a)
	_ = r.Pause()

	_, err := r.BridgeToken(ctx, BridgeRequest{
		SourceChain: chainA, DestChain: chainB,
		Sender: "alice", Recipient: "bob",
		Amount: decimal.NewFromInt(1), Protocol: bridge.ProtocolGuardian,
	})
	if !apperrors.Is(err, apperrors.KindConsistency) {
		t.Errorf("expected Consistency error while paused, got %v", err)
	}

	r.Unpause()
	lgr := r.ledger.(*memory.Ledger)
	_ = lgr.Mint(ctx, chainA, "alice", decimal.NewFromInt(10))
	if _, err := r.BridgeToken(ctx, BridgeRequest{
		SourceChain: chainA, DestChain: chainB,
		Sender: "alice", Recipient: "bob",
		Amount: decimal.NewFromInt(1), Protocol: bridge.ProtocolGuardian,
	}); err != nil {
		t.Errorf("unpaused bridge failed: %v", err)
	}
}

func TestUpdateTransferStatus(t *testing.T) {
	ctx := context.Background()
	a := quoteAdapter(bridge.ProtocolGuardian, "1", time.Minute, 9)
	b := quoteAdapter(bridge.ProtocolMessageBus, "1", time.Minute, 6)
	r, lgr, _ := newTestRouter(t, a, b)
	_ = lgr.Mint(ctx, chainA, "alice", decimal.NewFromInt(100))

	id, err := r.BridgeToken(ctx, BridgeRequest{
		SourceChain: chainA, DestChain: chainB,
		Sender: "alice", Recipient: "bob",
		Amount: decimal.NewFromInt(10), Protocol: bridge.ProtocolGuardian,
	})
	if err != nil {
		t.Fatalf("bridge failed: %v", err)
	}

	// Any registered adapter may report, not only the dispatching one.
	if err := r.UpdateTransferStatus(ctx, bridge.ProtocolMessageBus, id, bridge.StatusCompleted); err != nil {
		t.Fatalf("status update failed: %v", err)
	}

	transfer, _ := r.GetTransfer(id)
	if transfer.Status != bridge.StatusCompleted {
		t.Errorf("expected completed, got %s", transfer.Status)
	}
	if transfer.CompletedAt == nil {
		t.Error("expected CompletedAt set on terminal status")
	}

	// Terminal states are immutable.
	err = r.UpdateTransferStatus(ctx, bridge.ProtocolGuardian, id, bridge.StatusFailed)
	if !apperrors.Is(err, apperrors.KindValidation) {
		t.Errorf("expected Validation error on terminal transition, got %v", err)
	}
}

func TestUpdateTransferStatusAuthorization(t *testing.T) {
	ctx := context.Background()
	a := quoteAdapter(bridge.ProtocolGuardian, "1", time.Minute, 9)
	r, lgr, _ := newTestRouter(t, a)
	_ = lgr.Mint(ctx, chainA, "alice", decimal.NewFromInt(100))

	id, _ := r.BridgeToken(ctx, BridgeRequest{
		SourceChain: chainA, DestChain: chainB,
		Sender: "alice", Recipient: "bob",
		Amount: decimal.NewFromInt(10), Protocol: bridge.ProtocolGuardian,
	})

	err := r.UpdateTransferStatus(ctx, bridge.ProtocolCourier, id, bridge.StatusCompleted)
	if !apperrors.Is(err, apperrors.KindAuthorization) {
		t.Errorf("expected Authorization error, got %v", err)
	}

	err = r.UpdateTransferStatus(ctx, bridge.ProtocolGuardian, "no-such-id", bridge.StatusCompleted)
	if !apperrors.Is(err, apperrors.KindValidation) {
		t.Errorf("expected Validation error for unknown transfer, got %v", err)
	}
}

func TestBridgeTokenWriteThrough(t *testing.T) {
	ctx := context.Background()
	a := quoteAdapter(bridge.ProtocolGuardian, "1", time.Minute, 9)
	store := &MockStore{}
	lgr := memory.NewLedger(chainA, chainB)
	r := New(lgr, &MockLimiter{}, store, zap.NewNop())
	r.RegisterAdapter(a)
	if err := r.RegisterRoute(chainB, bridge.ProtocolGuardian); err != nil {
		t.Fatalf("register route: %v", err)
	}
	_ = lgr.Mint(ctx, chainA, "alice", decimal.NewFromInt(100))

	id, err := r.BridgeToken(ctx, BridgeRequest{
		SourceChain: chainA, DestChain: chainB,
		Sender: "alice", Recipient: "bob",
		Amount: decimal.NewFromInt(10), Protocol: bridge.ProtocolGuardian,
	})
	if err != nil {
		t.Fatalf("bridge failed: %v", err)
	}

	saved, ok := store.Saved[id]
	if !ok {
		t.Fatal("transfer was not journaled")
	}
	if saved.CorrelationID == "" {
		t.Error("journaled record is missing the dispatch result")
	}
}

func TestRestoreTransfers(t *testing.T) {
	r, _, _ := newTestRouter(t)
	r.RestoreTransfers([]bridge.Transfer{
		{ID: "t1", Status: bridge.StatusPending, Protocol: bridge.ProtocolGuardian},
		{ID: "t2", Status: bridge.StatusCompleted, Protocol: bridge.ProtocolCourier},
	})

	got, err := r.GetTransfer("t2")
	if err != nil {
		t.Fatalf("get restored transfer: %v", err)
	}
	if got.Status != bridge.StatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
}
