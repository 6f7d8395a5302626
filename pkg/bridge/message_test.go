package bridge

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	apperrors "github.com/spantoken/bridge-hub/pkg/app/errors"
)

func TestMessageRoundTrip(t *testing.T) {
	in := &Message{
		Version:     MessageVersion,
		Nonce:       42,
		SourceChain: 1,
		DestChain:   137,
		Sender:      "0xAlice",
		Recipient:   "0xBob",
		Amount:      decimal.RequireFromString("100.5"),
	}

	out, err := DecodeMessage(in.Encode())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if out.Nonce != in.Nonce || out.SourceChain != in.SourceChain || out.DestChain != in.DestChain {
		t.Errorf("header mismatch: %+v", out)
	}
	if out.Sender != in.Sender || out.Recipient != in.Recipient {
		t.Errorf("party mismatch: %+v", out)
	}
	if !out.Amount.Equal(in.Amount) {
		t.Errorf("expected amount %s, got %s", in.Amount, out.Amount)
	}
}

func TestDecodeMessageMalformed(t *testing.T) {
	valid := (&Message{
		Version:   MessageVersion,
		Nonce:     1,
		DestChain: 2,
		Sender:    "a",
		Recipient: "b",
		Amount:    decimal.NewFromInt(1),
	}).Encode()

	cases := map[string][]byte{
		"empty":             {},
		"short header":      valid[:10],
		"bad version":       append([]byte{99}, valid[1:]...),
		"truncated field":   valid[:len(valid)-1],
		"trailing garbage":  append(append([]byte{}, valid...), 0xFF),
		"length past input": append(valid[:25], 0xFF, 0xFF, 0xFF, 0xFF),
	}

	for name, payload := range cases {
		_, err := DecodeMessage(payload)
		if err == nil {
			t.Errorf("%s: expected error", name)
			continue
		}
		if !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("%s: expected ErrMalformedPayload, got %v", name, err)
		}
		if !apperrors.Is(err, apperrors.KindValidation) {
			t.Errorf("%s: expected KindValidation, got %v", name, err)
		}
	}
}

func TestMessageHashStable(t *testing.T) {
	m := &Message{Version: MessageVersion, Nonce: 7, SourceChain: 1, DestChain: 2, Sender: "a", Recipient: "b", Amount: decimal.NewFromInt(5)}
	if m.Hash() != m.Hash() {
		t.Error("hash not deterministic")
	}

	other := *m
	other.Nonce = 8
	if m.Hash() == other.Hash() {
		t.Error("different nonce produced same hash")
	}
}
