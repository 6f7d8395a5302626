package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spantoken/bridge-hub/pkg/bridge"
)

// Network abstracts one external messaging network. The adapter is the
// only component aware of the network's real wire format; the bridge
// itself only produces and consumes the canonical payload.
type Network interface {
	EstimateFee(ctx context.Context, dest bridge.ChainID, payloadSize int) (decimal.Decimal, error)
	Dispatch(ctx context.Context, dest bridge.ChainID, payload []byte) (correlationID string, err error)
}

// InboundHandler receives deliveries from a network endpoint.
type InboundHandler interface {
	HandleInbound(ctx context.Context, origin bridge.ChainID, sender string, payload []byte) error
}

// Loopback is an in-process Network that delivers dispatched messages
// synchronously to an attached handler. It backs local single-node
// deployments and the end-to-end tests.
type Loopback struct {
	fee decimal.Decimal

	mu sync.Mutex
	// senders maps each origin chain to the identity this network
	// presents on delivery; it must match the receiving adapter's
	// trusted remote for that chain.
	senders map[bridge.ChainID]string
	handler InboundHandler
}

// NewLoopback creates a loopback network with a flat fee.
func NewLoopback(fee decimal.Decimal, senders map[bridge.ChainID]string) *Loopback {
	return &Loopback{fee: fee, senders: senders}
}

// AttachHandler wires the destination adapter. Dispatch fails until a
// handler is attached.
func (l *Loopback) AttachHandler(h InboundHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = h
}

// EstimateFee returns the flat network fee.
func (l *Loopback) EstimateFee(_ context.Context, _ bridge.ChainID, _ int) (decimal.Decimal, error) {
	return l.fee, nil
}

// Dispatch decodes the canonical payload to learn its origin chain and
// delivers it to the attached handler under that chain's sender identity.
func (l *Loopback) Dispatch(ctx context.Context, _ bridge.ChainID, payload []byte) (string, error) {
	l.mu.Lock()
	handler := l.handler
	l.mu.Unlock()

	if handler == nil {
		return "", fmt.Errorf("loopback network has no attached handler")
	}

	msg, err := bridge.DecodeMessage(payload)
	if err != nil {
		return "", fmt.Errorf("loopback payload: %w", err)
	}

	sender, ok := l.senders[msg.SourceChain]
	if !ok {
		return "", fmt.Errorf("loopback has no sender identity for chain %d", msg.SourceChain)
	}

	if err := handler.HandleInbound(ctx, msg.SourceChain, sender, payload); err != nil {
		return "", fmt.Errorf("loopback delivery: %w", err)
	}
	return uuid.New().String(), nil
}
