// Package router coordinates transfers across the registered protocol
// adapters: route discovery, route selection and the burn-then-dispatch
// saga with compensating refunds.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spantoken/bridge-hub/internal/metrics"
	"github.com/spantoken/bridge-hub/pkg/adapter"
	apperrors "github.com/spantoken/bridge-hub/pkg/app/errors"
	"github.com/spantoken/bridge-hub/pkg/bridge"
	"github.com/spantoken/bridge-hub/pkg/ledger"
)

// RoutePreference selects the dimension GetOptimalRoute minimizes or
// maximizes over the available options.
type RoutePreference string

const (
	PreferCheapest   RoutePreference = "cheapest"
	PreferFastest    RoutePreference = "fastest"
	PreferMostSecure RoutePreference = "mostSecure"
)

// ErrNoRouteAvailable is returned when no enabled protocol can quote the
// requested destination chain.
var ErrNoRouteAvailable = errors.New("no route available")

// Adapter is the protocol capability the router consumes.
type Adapter interface {
	Protocol() bridge.Protocol
	SupportsChain(dest bridge.ChainID) bool
	EstimateFee(ctx context.Context, dest bridge.ChainID, amount decimal.Decimal, data []byte) (adapter.Quote, error)
	Dispatch(ctx context.Context, req adapter.OutboundRequest) (adapter.DispatchResult, error)
}

// RateLimiter is the quota capability the router consumes.
type RateLimiter interface {
	Reserve(ctx context.Context, account string, op bridge.OpType, amount decimal.Decimal) error
	Release(ctx context.Context, account string, op bridge.OpType, amount decimal.Decimal)
}

// Store journals transfer records. May be nil for memory-only deployments.
type Store interface {
	SaveTransfer(ctx context.Context, transfer *bridge.Transfer) error
}

// BridgeRequest describes one client-initiated transfer.
type BridgeRequest struct {
	SourceChain bridge.ChainID
	DestChain   bridge.ChainID
	Sender      string
	Recipient   string
	Amount      decimal.Decimal
	Protocol    bridge.Protocol
	Data        []byte
}

// Router owns the protocol registry and the transfer records. The
// in-memory maps are the serialization point; the Store is write-through.
type Router struct {
	ledger  ledger.Ledger
	limiter RateLimiter
	store   Store
	logger  *zap.Logger

	paused atomic.Bool

	mu sync.RWMutex
	// routes keeps registration order per chain so route selection ties
	// break deterministically.
	routes    map[bridge.ChainID][]bridge.Protocol
	adapters  map[bridge.Protocol]Adapter
	enabled   map[bridge.Protocol]bool
	transfers map[string]*bridge.Transfer
	sequence  uint64
}

// New creates an empty router. store may be nil.
func New(lgr ledger.Ledger, limiter RateLimiter, store Store, logger *zap.Logger) *Router {
	return &Router{
		ledger:    lgr,
		limiter:   limiter,
		store:     store,
		logger:    logger.Named("router"),
		routes:    make(map[bridge.ChainID][]bridge.Protocol),
		adapters:  make(map[bridge.Protocol]Adapter),
		enabled:   make(map[bridge.Protocol]bool),
		transfers: make(map[string]*bridge.Transfer),
	}
}

// RegisterAdapter adds an adapter and enables it. Registering the same
// protocol twice replaces the previous adapter.
func (r *Router) RegisterAdapter(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Protocol()] = a
	r.enabled[a.Protocol()] = true
}

// RegisterRoute appends a protocol to a chain's ordered route list.
func (r *Router) RegisterRoute(chain bridge.ChainID, protocol bridge.Protocol) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.adapters[protocol]; !ok {
		return apperrors.Configuration(nil, fmt.Sprintf("protocol %s has no registered adapter", protocol))
	}
	for _, p := range r.routes[chain] {
		if p == protocol {
			return nil
		}
	}
	r.routes[chain] = append(r.routes[chain], protocol)
	return nil
}

// SetEnabled flips a protocol's availability without unregistering it.
func (r *Router) SetEnabled(protocol bridge.Protocol, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled[protocol] = enabled
}

// GetBridgeOptions quotes every enabled protocol registered for the chain.
// A failing or panicking estimator only drops its own option.
func (r *Router) GetBridgeOptions(ctx context.Context, chain bridge.ChainID, amount decimal.Decimal) []bridge.BridgeOption {
	r.mu.RLock()
	protocols := append([]bridge.Protocol(nil), r.routes[chain]...)
	r.mu.RUnlock()

	options := make([]bridge.BridgeOption, 0, len(protocols))
	for _, p := range protocols {
		r.mu.RLock()
		a, registered := r.adapters[p]
		enabled := r.enabled[p]
		r.mu.RUnlock()
		if !registered || !enabled {
			continue
		}

		quote, err := r.quote(ctx, a, chain, amount)
		if err != nil {
			r.logger.Warn("Fee estimate unavailable",
				zap.String("protocol", string(p)),
				zap.Uint64("chain", uint64(chain)),
				zap.Error(err))
			continue
		}

		options = append(options, bridge.BridgeOption{
			Protocol:      p,
			Fee:           quote.Fee,
			EstimatedTime: quote.EstimatedTime,
			SecurityLevel: quote.SecurityLevel,
			Available:     true,
			MinAmount:     quote.MinAmount,
			MaxAmount:     quote.MaxAmount,
		})
	}
	return options
}

// quote isolates a single estimator call. Adapters reach external fee
// estimators, so a panic is contained here rather than taking down the
// whole options query.
func (r *Router) quote(ctx context.Context, a Adapter, chain bridge.ChainID, amount decimal.Decimal) (q adapter.Quote, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("estimator panic: %v", rec)
		}
	}()
	return a.EstimateFee(ctx, chain, amount, nil)
}

// GetOptimalRoute picks the best protocol for the preference. Ties keep
// the first-encountered option, so registration order decides.
func (r *Router) GetOptimalRoute(ctx context.Context, chain bridge.ChainID, amount decimal.Decimal, preference RoutePreference) (bridge.Protocol, error) {
	options := r.GetBridgeOptions(ctx, chain, amount)
	if len(options) == 0 {
		return "", ErrNoRouteAvailable
	}

	best := options[0]
	for _, opt := range options[1:] {
		switch preference {
		case PreferFastest:
			if opt.EstimatedTime < best.EstimatedTime {
				best = opt
			}
		case PreferMostSecure:
			if opt.SecurityLevel > best.SecurityLevel {
				best = opt
			}
		default: // cheapest
			if opt.Fee.LessThan(best.Fee) {
				best = opt
			}
		}
	}
	return best.Protocol, nil
}

// BridgeToken runs the outbound saga: reserve capacity, record the
// transfer, burn, dispatch. A dispatch failure refunds the burned value
// before the error surfaces; the transfer ends Refunded, never stuck.
func (r *Router) BridgeToken(ctx context.Context, req BridgeRequest) (string, error) {
	if r.Paused() {
		return "", apperrors.Consistency(nil, "router is paused")
	}
	if req.Recipient == "" {
		return "", apperrors.Validation(nil, "recipient is empty")
	}
	if !req.Amount.IsPositive() {
		return "", apperrors.Validation(nil, "amount must be positive")
	}

	a, err := r.adapterFor(req.DestChain, req.Protocol)
	if err != nil {
		return "", err
	}

	if err := r.limiter.Reserve(ctx, req.Sender, bridge.OpBridge, req.Amount); err != nil {
		metrics.RateLimitRejections.WithLabelValues(string(bridge.OpBridge), "router").Inc()
		return "", err
	}

	transfer := r.newTransfer(req)
	r.recordTransfer(ctx, transfer)

	if err := r.ledger.Burn(ctx, req.SourceChain, req.Sender, req.Amount); err != nil {
		r.transition(ctx, transfer, bridge.StatusFailed, err.Error())
		r.limiter.Release(ctx, req.Sender, bridge.OpBridge, req.Amount)
		return "", apperrors.Validation(err, "burn failed")
	}
	metrics.BurnsTotal.WithLabelValues(req.SourceChain.String(), string(req.Protocol)).Inc()

	result, err := a.Dispatch(ctx, adapter.OutboundRequest{
		SourceChain: req.SourceChain,
		DestChain:   req.DestChain,
		Sender:      req.Sender,
		Recipient:   req.Recipient,
		Amount:      req.Amount,
		Data:        req.Data,
	})
	if err != nil {
		r.transition(ctx, transfer, bridge.StatusFailed, err.Error())

		// Compensate before surfacing: the sender's funds come back even
		// if the refund record cannot be journaled.
		if refundErr := r.ledger.Mint(ctx, req.SourceChain, req.Sender, req.Amount); refundErr != nil {
			r.logger.Error("Refund after failed dispatch failed",
				zap.String("transfer_id", transfer.ID),
				zap.Error(refundErr))
		} else {
			r.transition(ctx, transfer, bridge.StatusRefunded, "")
		}
		r.limiter.Release(ctx, req.Sender, bridge.OpBridge, req.Amount)

		return "", fmt.Errorf("bridge via %s: %w", req.Protocol, err)
	}

	r.mu.Lock()
	transfer.MessageHash = result.MessageHash
	transfer.Nonce = result.Nonce
	transfer.CorrelationID = result.CorrelationID
	transfer.UpdatedAt = time.Now()
	r.mu.Unlock()
	r.persist(ctx, transfer)

	metrics.TransferAmount.WithLabelValues(string(req.Protocol)).Observe(amountAsFloat(req.Amount))

	r.logger.Info("Bridge transfer dispatched",
		zap.String("transfer_id", transfer.ID),
		zap.String("protocol", string(req.Protocol)),
		zap.Uint64("dest_chain", uint64(req.DestChain)),
		zap.String("amount", req.Amount.String()),
		zap.String("correlation_id", result.CorrelationID))

	return transfer.ID, nil
}

// UpdateTransferStatus moves a transfer through its state machine. Only
// registered adapters may report status; terminal states are immutable.
func (r *Router) UpdateTransferStatus(ctx context.Context, caller bridge.Protocol, transferID string, status bridge.TransferStatus) error {
	r.mu.Lock()
	if _, registered := r.adapters[caller]; !registered {
		r.mu.Unlock()
		return apperrors.Authorization(nil, fmt.Sprintf("protocol %s is not a registered adapter", caller))
	}

	transfer, ok := r.transfers[transferID]
	if !ok {
		r.mu.Unlock()
		return apperrors.Validation(nil, fmt.Sprintf("unknown transfer %s", transferID))
	}
	if !transfer.Status.CanTransitionTo(status) {
		current := transfer.Status
		r.mu.Unlock()
		return apperrors.Validation(nil, fmt.Sprintf("invalid transition %s -> %s", current, status))
	}

	transfer.Status = status
	transfer.UpdatedAt = time.Now()
	if status.Terminal() {
		now := transfer.UpdatedAt
		transfer.CompletedAt = &now
	}
	snapshot := *transfer
	r.mu.Unlock()

	r.persist(ctx, &snapshot)
	metrics.TransfersTotal.WithLabelValues(string(snapshot.Protocol), string(status)).Inc()

	r.logger.Info("Transfer status updated",
		zap.String("transfer_id", transferID),
		zap.String("status", string(status)),
		zap.String("reported_by", string(caller)))
	return nil
}

// GetTransfer returns a copy of the transfer record.
func (r *Router) GetTransfer(transferID string) (bridge.Transfer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	transfer, ok := r.transfers[transferID]
	if !ok {
		return bridge.Transfer{}, apperrors.Validation(nil, fmt.Sprintf("unknown transfer %s", transferID))
	}
	return *transfer, nil
}

// Transfers returns a snapshot of every known transfer record.
func (r *Router) Transfers() []bridge.Transfer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]bridge.Transfer, 0, len(r.transfers))
	for _, t := range r.transfers {
		out = append(out, *t)
	}
	return out
}

// RestoreTransfers reloads journaled records, typically at startup.
func (r *Router) RestoreTransfers(transfers []bridge.Transfer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range transfers {
		t := transfers[i]
		r.transfers[t.ID] = &t
	}
}

// Pause gates BridgeToken. Implements the oracle's Pausable capability.
func (r *Router) Pause() error {
	r.paused.Store(true)
	metrics.ComponentPaused.WithLabelValues("router").Set(1)
	r.logger.Warn("Router paused")
	return nil
}

// Unpause resumes transfer processing.
func (r *Router) Unpause() {
	r.paused.Store(false)
	metrics.ComponentPaused.WithLabelValues("router").Set(0)
	r.logger.Info("Router unpaused")
}

// Paused reports the pause flag.
func (r *Router) Paused() bool {
	return r.paused.Load()
}

func (r *Router) adapterFor(chain bridge.ChainID, protocol bridge.Protocol) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[protocol]
	if !ok {
		return nil, apperrors.Configuration(nil, fmt.Sprintf("protocol %s is not registered", protocol))
	}
	if !r.enabled[protocol] {
		return nil, apperrors.Configuration(nil, fmt.Sprintf("protocol %s is disabled", protocol))
	}
	routed := false
	for _, p := range r.routes[chain] {
		if p == protocol {
			routed = true
			break
		}
	}
	if !routed {
		return nil, apperrors.Configuration(nil, fmt.Sprintf("protocol %s is not configured for chain %d", protocol, chain))
	}
	return a, nil
}

func (r *Router) newTransfer(req BridgeRequest) *bridge.Transfer {
	now := time.Now()

	r.mu.Lock()
	r.sequence++
	seq := r.sequence
	r.mu.Unlock()

	transfer := &bridge.Transfer{
		ID:          bridge.TransferID(req.Sender, req.Recipient, req.Amount, req.DestChain, req.Protocol, now, seq),
		Sender:      req.Sender,
		Recipient:   req.Recipient,
		Amount:      req.Amount,
		SourceChain: req.SourceChain,
		DestChain:   req.DestChain,
		Protocol:    req.Protocol,
		Status:      bridge.StatusPending,
		Timestamp:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return transfer
}

func (r *Router) recordTransfer(ctx context.Context, transfer *bridge.Transfer) {
	r.mu.Lock()
	r.transfers[transfer.ID] = transfer
	r.mu.Unlock()
	r.persist(ctx, transfer)
}

// transition moves a transfer as part of the saga itself; unlike
// UpdateTransferStatus it is internal and pre-authorized.
func (r *Router) transition(ctx context.Context, transfer *bridge.Transfer, status bridge.TransferStatus, errMsg string) {
	r.mu.Lock()
	if !transfer.Status.CanTransitionTo(status) {
		r.mu.Unlock()
		return
	}
	transfer.Status = status
	transfer.UpdatedAt = time.Now()
	if errMsg != "" {
		transfer.ErrorMessage = errMsg
	}
	if status.Terminal() {
		now := transfer.UpdatedAt
		transfer.CompletedAt = &now
	}
	snapshot := *transfer
	r.mu.Unlock()

	r.persist(ctx, &snapshot)
	metrics.TransfersTotal.WithLabelValues(string(snapshot.Protocol), string(status)).Inc()
}

func (r *Router) persist(ctx context.Context, transfer *bridge.Transfer) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveTransfer(ctx, transfer); err != nil {
		r.logger.Warn("Failed to journal transfer",
			zap.String("transfer_id", transfer.ID),
			zap.Error(err))
	}
}

func amountAsFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
