//go:build ignore

// sign-supply.go produces a signed supply proposal for the oracle.
//
// It derives (or parses) a signer key, signs the attestation over
// (chain, total, locked, nonce) and prints the JSON body ready for
// POST /api/v1/oracle/proposals, plus the signer address to register
// in oracle.signers.
//
// Run with:
//
//	go run scripts/sign-supply.go -seed <base64 32+ bytes> -label signer-1 \
//	  -chain 1 -total 600000 -locked 0 -nonce $(date +%s)
//
// or with a raw private key:
//
//	go run scripts/sign-supply.go -key <hex> -chain 1 -total 600000 -locked 0 -nonce 42
package main

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/spantoken/bridge-hub/pkg/bridge"
	"github.com/spantoken/bridge-hub/pkg/keys"
)

func main() {
	seed := flag.String("seed", "", "Base64 service seed for deterministic key derivation")
	label := flag.String("label", "signer-1", "Signer label used with -seed")
	key := flag.String("key", "", "Hex secp256k1 private key (alternative to -seed)")
	chain := flag.Uint64("chain", 0, "Chain id the attestation covers")
	total := flag.String("total", "", "Attested total supply")
	locked := flag.String("locked", "0", "Attested locked supply")
	nonce := flag.Uint64("nonce", 0, "Proposal nonce (unix timestamp recommended)")
	flag.Parse()

	if *chain == 0 || *total == "" || *nonce == 0 {
		fail("chain, total and nonce are required")
	}

	kp, err := loadKeyPair(*seed, *label, *key)
	if err != nil {
		fail("load signer key: %v", err)
	}

	totalSupply, err := decimal.NewFromString(*total)
	if err != nil {
		fail("invalid total: %v", err)
	}
	lockedSupply, err := decimal.NewFromString(*locked)
	if err != nil {
		fail("invalid locked: %v", err)
	}

	signature, err := kp.Attest(bridge.ChainID(*chain), totalSupply, lockedSupply, *nonce)
	if err != nil {
		fail("sign attestation: %v", err)
	}
	address, err := kp.Address()
	if err != nil {
		fail("derive signer address: %v", err)
	}

	body, err := json.MarshalIndent(map[string]interface{}{
		"chain_id":      *chain,
		"total_supply":  totalSupply.String(),
		"locked_supply": lockedSupply.String(),
		"nonce":         *nonce,
		"signer":        address.Hex(),
		"signature":     base64.StdEncoding.EncodeToString(signature),
	}, "", "  ")
	if err != nil {
		fail("encode proposal: %v", err)
	}

	fmt.Printf("signer address: %s\n", address.Hex())
	fmt.Printf("proposal body:\n%s\n", body)
}

func loadKeyPair(seed, label, key string) (*keys.SignerKeyPair, error) {
	switch {
	case key != "":
		raw, err := hex.DecodeString(strings.TrimPrefix(key, "0x"))
		if err != nil {
			return nil, fmt.Errorf("decode private key hex: %w", err)
		}
		return keys.FromPrivateKey(raw)
	case seed != "":
		raw, err := base64.StdEncoding.DecodeString(seed)
		if err != nil {
			return nil, fmt.Errorf("decode seed base64: %w", err)
		}
		return keys.DeriveSignerKeyPair(label, raw)
	default:
		return nil, fmt.Errorf("either -seed or -key is required")
	}
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
