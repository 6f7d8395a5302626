package keys

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spantoken/bridge-hub/pkg/bridge"
	"github.com/spantoken/bridge-hub/pkg/oracle"
)

func TestGenerateSignerKeyPair(t *testing.T) {
	kp, err := GenerateSignerKeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(kp.PrivateKey) != 32 {
		t.Errorf("expected 32-byte private key, got %d", len(kp.PrivateKey))
	}
	if len(kp.PublicKey) != 33 {
		t.Errorf("expected 33-byte compressed public key, got %d", len(kp.PublicKey))
	}
	if _, err := kp.Address(); err != nil {
		t.Errorf("address derivation failed: %v", err)
	}
}

func TestDeriveSignerKeyPairDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, 32)

	a, err := DeriveSignerKeyPair("signer-0", seed)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, err := DeriveSignerKeyPair("signer-0", seed)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if !bytes.Equal(a.PrivateKey, b.PrivateKey) {
		t.Error("same label and seed must derive the same key")
	}

	c, err := DeriveSignerKeyPair("signer-1", seed)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if bytes.Equal(a.PrivateKey, c.PrivateKey) {
		t.Error("different labels must derive different keys")
	}

	if _, err := DeriveSignerKeyPair("signer-0", []byte("short")); err == nil {
		t.Error("expected error for short seed")
	}
}

func TestAttestRecoversToSigner(t *testing.T) {
	kp, err := GenerateSignerKeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	addr, err := kp.Address()
	if err != nil {
		t.Fatalf("address: %v", err)
	}

	total := decimal.NewFromInt(1000)
	locked := decimal.NewFromInt(200)
	nonce := uint64(time.Now().Unix())

	sig, err := kp.Attest(bridge.ChainID(1), total, locked, nonce)
	if err != nil {
		t.Fatalf("attest: %v", err)
	}

	// The attestation must satisfy the oracle's signer check end to end.
	o := oracle.New(oracle.Config{
		RequiredSignatures: 1,
		ValidityPeriod:     time.Minute,
		ClockSkewTolerance: time.Minute,
	}, nil, zap.NewNop())
	o.RegisterChain(1)
	o.RegisterSigner(addr)

	if err := o.ProposeUpdate(context.Background(), 1, total, locked, nonce, addr, sig); err != nil {
		t.Fatalf("oracle rejected attestation: %v", err)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	masterKey, err := GenerateMasterKey()
	if err != nil {
		t.Fatalf("master key: %v", err)
	}
	kp, _ := GenerateSignerKeyPair()

	encrypted, err := EncryptPrivateKey(kp.PrivateKey, masterKey)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	decrypted, err := DecryptPrivateKey(encrypted, masterKey)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, kp.PrivateKey) {
		t.Error("round trip corrupted the key")
	}

	// Wrong master key must fail authentication.
	other, _ := GenerateMasterKey()
	if _, err := DecryptPrivateKey(encrypted, other); err == nil {
		t.Error("expected decryption failure with wrong master key")
	}
}

func TestMasterKeyEncoding(t *testing.T) {
	key, _ := GenerateMasterKey()
	encoded := MasterKeyToBase64(key)

	decoded, err := MasterKeyFromBase64(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(key, decoded) {
		t.Error("encoding round trip corrupted the key")
	}

	if _, err := MasterKeyFromBase64("dG9vIHNob3J0"); err == nil {
		t.Error("expected error for short key")
	}
}
