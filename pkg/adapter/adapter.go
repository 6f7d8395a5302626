// Package adapter implements the per-protocol bridge adapter: outbound
// dispatch, inbound delivery with replay protection, and fee estimation.
// Adapters are mutually independent; a fault or pause in one never blocks
// another, which is why rate limiting and nonce tracking are adapter-local.
package adapter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spantoken/bridge-hub/internal/metrics"
	apperrors "github.com/spantoken/bridge-hub/pkg/app/errors"
	"github.com/spantoken/bridge-hub/pkg/bridge"
	"github.com/spantoken/bridge-hub/pkg/ledger"
)

// RateLimiter is the quota capability the adapter consumes.
type RateLimiter interface {
	Reserve(ctx context.Context, account string, op bridge.OpType, amount decimal.Decimal) error
	Release(ctx context.Context, account string, op bridge.OpType, amount decimal.Decimal)
}

// NonceStore journals consumed inbound nonces. May be nil. The journal
// write is part of consuming a nonce: it happens before the mint, and the
// record is deleted again when the mint fails.
type NonceStore interface {
	SaveNonce(ctx context.Context, protocol bridge.Protocol, chain bridge.ChainID, nonce uint64) error
	DeleteNonce(ctx context.Context, protocol bridge.Protocol, chain bridge.ChainID, nonce uint64) error
}

// Quote is one adapter's fee estimate for a destination chain.
type Quote struct {
	Fee           decimal.Decimal
	EstimatedTime time.Duration
	SecurityLevel int
	MinAmount     decimal.Decimal
	MaxAmount     decimal.Decimal
}

// OutboundRequest describes one outbound transfer through this adapter.
type OutboundRequest struct {
	SourceChain bridge.ChainID
	DestChain   bridge.ChainID
	Sender      string
	Recipient   string
	Amount      decimal.Decimal
	Data        []byte
}

// DispatchResult reports the outcome of an outbound dispatch.
type DispatchResult struct {
	CorrelationID string
	Nonce         uint64
	MessageHash   string
}

// Config holds one protocol's fee schedule, trust configuration and limits.
type Config struct {
	Protocol         bridge.Protocol
	SecurityLevel    int
	BaseFee          decimal.Decimal
	FeeBps           int64
	DeliveryEstimate time.Duration
	MinAmount        decimal.Decimal
	MaxAmount        decimal.Decimal
	// Chains lists the destination chains this adapter can reach.
	Chains []bridge.ChainID
	// TrustedRemotes maps each origin chain to the only sender identity
	// accepted for inbound deliveries from that chain.
	TrustedRemotes map[bridge.ChainID]string
}

// Adapter bridges one external messaging network.
type Adapter struct {
	cfg     Config
	network Network
	ledger  ledger.Ledger
	limiter RateLimiter
	logger  *zap.Logger

	paused atomic.Bool

	remotesMu sync.RWMutex
	remotes   map[bridge.ChainID]string

	nonceMu   sync.Mutex
	processed map[nonceKey]bool
	outbound  map[bridge.ChainID]uint64
	store     NonceStore
}

type nonceKey struct {
	chain bridge.ChainID
	nonce uint64
}

// New creates an adapter for one protocol. store may be nil.
func New(cfg Config, network Network, lgr ledger.Ledger, limiter RateLimiter, store NonceStore, logger *zap.Logger) *Adapter {
	remotes := make(map[bridge.ChainID]string, len(cfg.TrustedRemotes))
	for chain, sender := range cfg.TrustedRemotes {
		remotes[chain] = sender
	}
	return &Adapter{
		cfg:       cfg,
		network:   network,
		ledger:    lgr,
		limiter:   limiter,
		store:     store,
		logger:    logger.With(zap.String("protocol", string(cfg.Protocol))),
		remotes:   remotes,
		processed: make(map[nonceKey]bool),
		outbound:  make(map[bridge.ChainID]uint64),
	}
}

// Protocol returns the adapter's protocol identity.
func (a *Adapter) Protocol() bridge.Protocol {
	return a.cfg.Protocol
}

// SupportsChain reports whether dest is reachable through this adapter.
func (a *Adapter) SupportsChain(dest bridge.ChainID) bool {
	for _, c := range a.cfg.Chains {
		if c == dest {
			return true
		}
	}
	return false
}

// EstimateFee quotes the protocol fee and delivery estimate for a transfer.
// It mutates no state; failure means "unavailable", not fatal.
func (a *Adapter) EstimateFee(ctx context.Context, dest bridge.ChainID, amount decimal.Decimal, _ []byte) (Quote, error) {
	if !a.SupportsChain(dest) {
		return Quote{}, apperrors.Configuration(nil, fmt.Sprintf("protocol %s does not reach chain %d", a.cfg.Protocol, dest))
	}

	networkFee, err := a.network.EstimateFee(ctx, dest, a.remoteCount())
	if err != nil {
		return Quote{}, fmt.Errorf("network fee estimate: %w", err)
	}

	variable := amount.Mul(decimal.NewFromInt(a.cfg.FeeBps)).Div(decimal.NewFromInt(10000))
	return Quote{
		Fee:           a.cfg.BaseFee.Add(variable).Add(networkFee),
		EstimatedTime: a.cfg.DeliveryEstimate,
		SecurityLevel: a.cfg.SecurityLevel,
		MinAmount:     a.cfg.MinAmount,
		MaxAmount:     a.cfg.MaxAmount,
	}, nil
}

// Dispatch serializes the canonical message and hands it to the external
// network. It performs no burn and no rate limiting; that belongs to the
// caller (the router's saga, or BridgeOut below).
func (a *Adapter) Dispatch(ctx context.Context, req OutboundRequest) (DispatchResult, error) {
	if a.Paused() {
		return DispatchResult{}, apperrors.Consistency(nil, fmt.Sprintf("adapter %s is paused", a.cfg.Protocol))
	}
	if err := a.validateOutbound(req); err != nil {
		return DispatchResult{}, err
	}

	msg := &bridge.Message{
		Version:     bridge.MessageVersion,
		Nonce:       a.nextNonce(req.DestChain),
		SourceChain: req.SourceChain,
		DestChain:   req.DestChain,
		Sender:      req.Sender,
		Recipient:   req.Recipient,
		Amount:      req.Amount,
	}

	start := time.Now()
	correlationID, err := a.network.Dispatch(ctx, req.DestChain, msg.Encode())
	metrics.DispatchDuration.WithLabelValues(string(a.cfg.Protocol)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("adapter", "dispatch").Inc()
		return DispatchResult{}, fmt.Errorf("dispatch via %s: %w", a.cfg.Protocol, err)
	}

	a.logger.Info("Dispatched outbound message",
		zap.Uint64("nonce", msg.Nonce),
		zap.Uint64("dest_chain", uint64(req.DestChain)),
		zap.String("correlation_id", correlationID),
		zap.Duration("duration", time.Since(start)))

	return DispatchResult{CorrelationID: correlationID, Nonce: msg.Nonce, MessageHash: msg.Hash()}, nil
}

// BridgeOut is the direct, value-bearing entry point: it reserves rate
// capacity, burns the value on the source chain and dispatches. If dispatch
// fails after the burn, the adapter refunds before surfacing the error,
// the same guarantee the router-mediated path gives.
func (a *Adapter) BridgeOut(ctx context.Context, req OutboundRequest) (string, error) {
	if a.Paused() {
		return "", apperrors.Consistency(nil, fmt.Sprintf("adapter %s is paused", a.cfg.Protocol))
	}
	if err := a.validateOutbound(req); err != nil {
		return "", err
	}

	if err := a.limiter.Reserve(ctx, req.Sender, bridge.OpBridge, req.Amount); err != nil {
		return "", err
	}

	if err := a.ledger.Burn(ctx, req.SourceChain, req.Sender, req.Amount); err != nil {
		a.limiter.Release(ctx, req.Sender, bridge.OpBridge, req.Amount)
		return "", apperrors.Validation(err, "burn failed")
	}
	metrics.BurnsTotal.WithLabelValues(req.SourceChain.String(), string(a.cfg.Protocol)).Inc()

	result, err := a.Dispatch(ctx, req)
	if err != nil {
		// Compensate: the burned value is restored before the error surfaces.
		if refundErr := a.ledger.Mint(ctx, req.SourceChain, req.Sender, req.Amount); refundErr != nil {
			a.logger.Error("Refund after failed dispatch failed",
				zap.String("sender", req.Sender),
				zap.String("amount", req.Amount.String()),
				zap.Error(refundErr))
		}
		a.limiter.Release(ctx, req.Sender, bridge.OpBridge, req.Amount)
		return "", err
	}

	return result.CorrelationID, nil
}

// HandleInbound processes one delivery from the trusted external network
// endpoint: it authenticates the sender, consumes the nonce and mints.
func (a *Adapter) HandleInbound(ctx context.Context, origin bridge.ChainID, sender string, payload []byte) error {
	if a.Paused() {
		return apperrors.Consistency(nil, fmt.Sprintf("adapter %s is paused", a.cfg.Protocol))
	}

	trusted, ok := a.trustedRemote(origin)
	if !ok || trusted != sender {
		return apperrors.Authorization(nil, fmt.Sprintf("sender %q is not the trusted remote for chain %d", sender, origin))
	}

	msg, err := bridge.DecodeMessage(payload)
	if err != nil {
		return err
	}
	if msg.SourceChain != origin {
		return apperrors.Validation(nil, fmt.Sprintf("message claims origin %d, delivered from %d", msg.SourceChain, origin))
	}

	if err := a.limiter.Reserve(ctx, msg.Recipient, bridge.OpMint, msg.Amount); err != nil {
		return err
	}

	// Check-then-mark before the mint so a concurrent duplicate delivery
	// can never mint twice.
	if !a.markNonce(origin, msg.Nonce) {
		a.limiter.Release(ctx, msg.Recipient, bridge.OpMint, msg.Amount)
		metrics.ReplayRejections.WithLabelValues(string(a.cfg.Protocol), origin.String()).Inc()
		return apperrors.Replay(nil, fmt.Sprintf("nonce %d from chain %d already processed", msg.Nonce, origin))
	}

	// The journal write is part of consuming the nonce. Journaling only
	// after the mint leaves a crash window in which the minted delivery
	// would be replayable on restart.
	if err := a.journalNonce(ctx, origin, msg.Nonce); err != nil {
		a.releaseNonce(origin, msg.Nonce)
		a.limiter.Release(ctx, msg.Recipient, bridge.OpMint, msg.Amount)
		return apperrors.Internal(fmt.Errorf("journal nonce %d from chain %d: %w", msg.Nonce, origin, err))
	}

	if err := a.ledger.Mint(ctx, msg.DestChain, msg.Recipient, msg.Amount); err != nil {
		// The mint never happened; release the nonce so the network can
		// redeliver the message.
		a.releaseNonce(origin, msg.Nonce)
		a.unjournalNonce(ctx, origin, msg.Nonce)
		a.limiter.Release(ctx, msg.Recipient, bridge.OpMint, msg.Amount)
		return apperrors.Internal(fmt.Errorf("mint on chain %d: %w", msg.DestChain, err))
	}
	metrics.MintsTotal.WithLabelValues(msg.DestChain.String(), string(a.cfg.Protocol)).Inc()

	a.logger.Info("Processed inbound delivery",
		zap.Uint64("origin_chain", uint64(origin)),
		zap.Uint64("nonce", msg.Nonce),
		zap.String("recipient", msg.Recipient),
		zap.String("amount", msg.Amount.String()))
	return nil
}

// Pause stops outbound and inbound processing; the flag is checked at the
// top of the next operation. Implements the oracle's Pausable capability.
func (a *Adapter) Pause() error {
	a.paused.Store(true)
	metrics.ComponentPaused.WithLabelValues("adapter_" + string(a.cfg.Protocol)).Set(1)
	a.logger.Warn("Adapter paused")
	return nil
}

// Unpause resumes processing.
func (a *Adapter) Unpause() {
	a.paused.Store(false)
	metrics.ComponentPaused.WithLabelValues("adapter_" + string(a.cfg.Protocol)).Set(0)
	a.logger.Info("Adapter unpaused")
}

// Paused reports the pause flag.
func (a *Adapter) Paused() bool {
	return a.paused.Load()
}

// SetTrustedRemote binds an origin chain to the only sender identity
// accepted for inbound deliveries from it, replacing any previous binding.
func (a *Adapter) SetTrustedRemote(origin bridge.ChainID, sender string) {
	a.remotesMu.Lock()
	a.remotes[origin] = sender
	a.remotesMu.Unlock()
	a.logger.Info("Trusted remote updated",
		zap.Uint64("origin_chain", uint64(origin)),
		zap.String("sender", sender))
}

func (a *Adapter) trustedRemote(origin bridge.ChainID) (string, bool) {
	a.remotesMu.RLock()
	defer a.remotesMu.RUnlock()
	sender, ok := a.remotes[origin]
	return sender, ok
}

func (a *Adapter) remoteCount() int {
	a.remotesMu.RLock()
	defer a.remotesMu.RUnlock()
	return len(a.remotes)
}

// SeenNonce reports whether an inbound nonce was already consumed.
func (a *Adapter) SeenNonce(chain bridge.ChainID, nonce uint64) bool {
	a.nonceMu.Lock()
	defer a.nonceMu.Unlock()
	return a.processed[nonceKey{chain: chain, nonce: nonce}]
}

// RestoreNonces loads persisted consumed nonces, typically at startup.
func (a *Adapter) RestoreNonces(chain bridge.ChainID, nonces []uint64) {
	a.nonceMu.Lock()
	defer a.nonceMu.Unlock()
	for _, n := range nonces {
		a.processed[nonceKey{chain: chain, nonce: n}] = true
	}
}

func (a *Adapter) validateOutbound(req OutboundRequest) error {
	if !a.SupportsChain(req.DestChain) {
		return apperrors.Configuration(nil, fmt.Sprintf("protocol %s does not reach chain %d", a.cfg.Protocol, req.DestChain))
	}
	if req.Recipient == "" {
		return apperrors.Validation(nil, "recipient is empty")
	}
	if !req.Amount.IsPositive() {
		return apperrors.Validation(nil, "amount must be positive")
	}
	if a.cfg.MinAmount.IsPositive() && req.Amount.LessThan(a.cfg.MinAmount) {
		return apperrors.Validation(nil, fmt.Sprintf("amount %s below protocol minimum %s", req.Amount, a.cfg.MinAmount))
	}
	if a.cfg.MaxAmount.IsPositive() && req.Amount.GreaterThan(a.cfg.MaxAmount) {
		return apperrors.Validation(nil, fmt.Sprintf("amount %s above protocol maximum %s", req.Amount, a.cfg.MaxAmount))
	}
	return nil
}

func (a *Adapter) nextNonce(dest bridge.ChainID) uint64 {
	a.nonceMu.Lock()
	defer a.nonceMu.Unlock()
	a.outbound[dest]++
	return a.outbound[dest]
}

// markNonce is the atomic check-and-set over the processed set.
func (a *Adapter) markNonce(chain bridge.ChainID, nonce uint64) bool {
	a.nonceMu.Lock()
	defer a.nonceMu.Unlock()

	key := nonceKey{chain: chain, nonce: nonce}
	if a.processed[key] {
		return false
	}
	a.processed[key] = true
	return true
}

func (a *Adapter) releaseNonce(chain bridge.ChainID, nonce uint64) {
	a.nonceMu.Lock()
	defer a.nonceMu.Unlock()
	delete(a.processed, nonceKey{chain: chain, nonce: nonce})
}

func (a *Adapter) journalNonce(ctx context.Context, chain bridge.ChainID, nonce uint64) error {
	if a.store == nil {
		return nil
	}
	return a.store.SaveNonce(ctx, a.cfg.Protocol, chain, nonce)
}

// unjournalNonce compensates a journal write after a failed mint. If the
// delete itself fails the record stays behind and the delivery is rejected
// after a restart, which fails closed.
func (a *Adapter) unjournalNonce(ctx context.Context, chain bridge.ChainID, nonce uint64) {
	if a.store == nil {
		return
	}
	if err := a.store.DeleteNonce(ctx, a.cfg.Protocol, chain, nonce); err != nil {
		a.logger.Error("Failed to remove journaled nonce after failed mint",
			zap.Uint64("chain", uint64(chain)),
			zap.Uint64("nonce", nonce),
			zap.Error(err))
	}
}
