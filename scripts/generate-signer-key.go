//go:build ignore

// generate-signer-key.go generates an oracle signer keypair and prints it
// encrypted under a fresh (or provided) AES-256 master key, ready for
// at-rest storage. The printed address goes into oracle.signers.
//
// Run with:
//
//	go run scripts/generate-signer-key.go
//	go run scripts/generate-signer-key.go -master <base64 32-byte key>
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spantoken/bridge-hub/pkg/keys"
)

func main() {
	master := flag.String("master", "", "Base64 AES-256 master key; generated when empty")
	flag.Parse()

	masterKey, err := loadMasterKey(*master)
	if err != nil {
		fmt.Fprintf(os.Stderr, "master key: %v\n", err)
		os.Exit(1)
	}

	kp, err := keys.GenerateSignerKeyPair()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate keypair: %v\n", err)
		os.Exit(1)
	}

	encrypted, err := keys.EncryptPrivateKey(kp.PrivateKey, masterKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encrypt private key: %v\n", err)
		os.Exit(1)
	}
	address, err := kp.Address()
	if err != nil {
		fmt.Fprintf(os.Stderr, "derive address: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("signer address:        %s\n", address.Hex())
	fmt.Printf("public key:            %s\n", kp.PublicKeyHex())
	fmt.Printf("master key (base64):   %s\n", keys.MasterKeyToBase64(masterKey))
	fmt.Printf("private key (sealed):  %s\n", encrypted)
}

func loadMasterKey(encoded string) ([]byte, error) {
	if encoded == "" {
		return keys.GenerateMasterKey()
	}
	return keys.MasterKeyFromBase64(encoded)
}
