package bridge

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	apperrors "github.com/spantoken/bridge-hub/pkg/app/errors"
)

// MessageVersion is the current wire version of the canonical payload.
const MessageVersion byte = 1

// maxFieldLen bounds the length-prefixed string fields so a corrupt
// prefix cannot force a huge allocation.
const maxFieldLen = 4096

// ErrMalformedPayload is returned when an inbound payload cannot be decoded.
var ErrMalformedPayload = errors.New("malformed payload")

// Message is the canonical cross-chain payload every adapter serializes.
// The real wire format of each external network wraps this; the bridge
// itself only ever sees this shape.
type Message struct {
	Version     byte
	Nonce       uint64
	SourceChain ChainID
	DestChain   ChainID
	Sender      string
	Recipient   string
	Amount      decimal.Decimal
}

// Encode serializes the message with the deterministic binary codec:
// version byte, fixed-width big-endian nonce and chain ids, then
// length-prefixed sender, recipient and amount strings.
func (m *Message) Encode() []byte {
	sender := []byte(m.Sender)
	recipient := []byte(m.Recipient)
	amount := []byte(m.Amount.String())

	buf := make([]byte, 0, 1+8+8+8+4*3+len(sender)+len(recipient)+len(amount))
	buf = append(buf, m.Version)
	buf = binary.BigEndian.AppendUint64(buf, m.Nonce)
	buf = binary.BigEndian.AppendUint64(buf, uint64(m.SourceChain))
	buf = binary.BigEndian.AppendUint64(buf, uint64(m.DestChain))
	buf = appendField(buf, sender)
	buf = appendField(buf, recipient)
	buf = appendField(buf, amount)
	return buf
}

// Hash returns the keccak256 hash of the encoded message as a hex string.
func (m *Message) Hash() string {
	return crypto.Keccak256Hash(m.Encode()).Hex()
}

// DecodeMessage parses a canonical payload. Any structural problem yields
// a Validation error wrapping ErrMalformedPayload.
func DecodeMessage(payload []byte) (*Message, error) {
	if len(payload) < 1+8+8+8 {
		return nil, malformed(fmt.Errorf("payload too short: %d bytes", len(payload)))
	}
	if payload[0] != MessageVersion {
		return nil, malformed(fmt.Errorf("unsupported version %d", payload[0]))
	}

	m := &Message{Version: payload[0]}
	m.Nonce = binary.BigEndian.Uint64(payload[1:9])
	m.SourceChain = ChainID(binary.BigEndian.Uint64(payload[9:17]))
	m.DestChain = ChainID(binary.BigEndian.Uint64(payload[17:25]))

	rest := payload[25:]
	sender, rest, err := readField(rest)
	if err != nil {
		return nil, malformed(fmt.Errorf("sender: %w", err))
	}
	recipient, rest, err := readField(rest)
	if err != nil {
		return nil, malformed(fmt.Errorf("recipient: %w", err))
	}
	amountStr, rest, err := readField(rest)
	if err != nil {
		return nil, malformed(fmt.Errorf("amount: %w", err))
	}
	if len(rest) != 0 {
		return nil, malformed(fmt.Errorf("%d trailing bytes", len(rest)))
	}

	amount, err := decimal.NewFromString(string(amountStr))
	if err != nil {
		return nil, malformed(fmt.Errorf("amount %q: %w", amountStr, err))
	}

	m.Sender = string(sender)
	m.Recipient = string(recipient)
	m.Amount = amount
	return m, nil
}

func appendField(buf, field []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(field)))
	return append(buf, field...)
}

func readField(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, fmt.Errorf("truncated length prefix")
	}
	n := binary.BigEndian.Uint32(buf[:4])
	if n > maxFieldLen {
		return nil, nil, fmt.Errorf("field length %d exceeds maximum", n)
	}
	buf = buf[4:]
	if uint32(len(buf)) < n {
		return nil, nil, fmt.Errorf("truncated field: want %d bytes, have %d", n, len(buf))
	}
	return buf[:n], buf[n:], nil
}

func malformed(err error) error {
	return apperrors.Validation(fmt.Errorf("%w: %w", ErrMalformedPayload, err), "malformed payload")
}
