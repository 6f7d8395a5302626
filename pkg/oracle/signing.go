package oracle

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/spantoken/bridge-hub/pkg/bridge"
)

// UpdateHash is the deterministic digest a signer attests: chain id,
// total and locked supply and the proposal nonce. Votes for the same
// values accumulate under the same hash regardless of arrival order.
func UpdateHash(chainID bridge.ChainID, total, locked decimal.Decimal, nonce uint64) common.Hash {
	buf := make([]byte, 0, 64)
	buf = binary.BigEndian.AppendUint64(buf, uint64(chainID))
	buf = append(buf, []byte(total.String())...)
	buf = append(buf, []byte(locked.String())...)
	buf = binary.BigEndian.AppendUint64(buf, nonce)
	return crypto.Keccak256Hash(buf)
}

// SignUpdate produces a recoverable secp256k1 signature over the update
// hash. Used by signer tooling and the tests.
func SignUpdate(key *ecdsa.PrivateKey, chainID bridge.ChainID, total, locked decimal.Decimal, nonce uint64) ([]byte, error) {
	return crypto.Sign(UpdateHash(chainID, total, locked, nonce).Bytes(), key)
}

// recoverSigner returns the address that produced the signature.
func recoverSigner(hash common.Hash, signature []byte) (common.Address, error) {
	pub, err := crypto.SigToPub(hash.Bytes(), signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
