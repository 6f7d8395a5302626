// Package bridge holds the domain types shared by the router, the protocol
// adapters, the supply oracle and the rate limiter.
package bridge

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// ChainID identifies a registered ledger.
type ChainID uint64

func (c ChainID) String() string {
	return fmt.Sprintf("%d", c)
}

// Protocol identifies one of the external messaging networks.
type Protocol string

const (
	// ProtocolGuardian is backed by a threshold validator set.
	ProtocolGuardian Protocol = "guardian"
	// ProtocolMessageBus is backed by an operator-run message bus.
	ProtocolMessageBus Protocol = "messagebus"
	// ProtocolLightClient is backed by an on-chain light client relay.
	ProtocolLightClient Protocol = "lightclient"
	// ProtocolCourier is backed by an independent oracle + relayer pair.
	ProtocolCourier Protocol = "courier"
)

// Protocols lists every known protocol in registration order.
func Protocols() []Protocol {
	return []Protocol{ProtocolGuardian, ProtocolMessageBus, ProtocolLightClient, ProtocolCourier}
}

// OpType is a rate-limited operation class.
type OpType string

const (
	OpBridge OpType = "bridge"
	OpMint   OpType = "mint"
	OpBurn   OpType = "burn"
)

// TransferStatus is the lifecycle state of a Transfer.
type TransferStatus string

const (
	StatusPending   TransferStatus = "pending"
	StatusCompleted TransferStatus = "completed"
	StatusFailed    TransferStatus = "failed"
	StatusRefunded  TransferStatus = "refunded"
)

// CanTransitionTo reports whether the status may move to next.
// Valid transitions are exactly pending->completed, pending->failed
// and failed->refunded. Completed and refunded are terminal.
func (s TransferStatus) CanTransitionTo(next TransferStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusCompleted || next == StatusFailed
	case StatusFailed:
		return next == StatusRefunded
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed out of s.
func (s TransferStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusRefunded
}

// Transfer is the record the router keeps for one in-flight bridge operation.
type Transfer struct {
	ID          string          `json:"id"`
	Sender      string          `json:"sender"`
	Recipient   string          `json:"recipient"`
	Amount      decimal.Decimal `json:"amount"`
	SourceChain ChainID         `json:"source_chain"`
	DestChain   ChainID         `json:"dest_chain"`
	Protocol    Protocol        `json:"protocol"`
	Status      TransferStatus  `json:"status"`
	Timestamp   time.Time       `json:"timestamp"`
	MessageHash string          `json:"message_hash,omitempty"`
	Nonce       uint64          `json:"nonce"`

	// CorrelationID is the adapter-local id returned by the external network.
	CorrelationID string     `json:"correlation_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
}

// BridgeOption is an ephemeral routing quote, recomputed per query.
type BridgeOption struct {
	Protocol      Protocol        `json:"protocol"`
	Fee           decimal.Decimal `json:"fee"`
	EstimatedTime time.Duration   `json:"estimated_time"`
	SecurityLevel int             `json:"security_level"`
	Available     bool            `json:"available"`
	MinAmount     decimal.Decimal `json:"min_amount"`
	MaxAmount     decimal.Decimal `json:"max_amount"`
}

// ChainSupply is one chain's attested supply report.
// CirculatingSupply is always recomputed as TotalSupply - LockedSupply,
// never stored independently.
type ChainSupply struct {
	ChainID           ChainID         `json:"chain_id"`
	TotalSupply       decimal.Decimal `json:"total_supply"`
	LockedSupply      decimal.Decimal `json:"locked_supply"`
	CirculatingSupply decimal.Decimal `json:"circulating_supply"`
	LastUpdateTime    time.Time       `json:"last_update_time"`
	UpdateCount       uint64          `json:"update_count"`
}

// TransferID derives the globally unique transfer id from the request
// parameters plus the router's monotonic sequence number.
func TransferID(sender, recipient string, amount decimal.Decimal, destChain ChainID, protocol Protocol, timestamp time.Time, sequence uint64) string {
	buf := make([]byte, 0, 128)
	buf = append(buf, []byte(sender)...)
	buf = append(buf, []byte(recipient)...)
	buf = append(buf, []byte(amount.String())...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(destChain))
	buf = append(buf, []byte(protocol)...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(timestamp.UnixNano()))
	buf = binary.BigEndian.AppendUint64(buf, sequence)
	return crypto.Keccak256Hash(buf).Hex()
}
