// Package crypto signs and verifies exported lockfile bundles with an
// Ed25519 keypair, independent of the artifact-integrity digests
// internal/digest computes for upstream packages.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
)

const (
	privateKeyType = "ED25519 PRIVATE KEY"
	publicKeyType  = "ED25519 PUBLIC KEY"
)

// GenerateKeys writes a fresh Ed25519 keypair to privateKeyPath and
// publicKeyPath as PEM blocks.
func GenerateKeys(privateKeyPath, publicKeyPath string) error {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate keypair: %w", err)
	}

	if err := writePEM(privateKeyPath, privateKeyType, privateKey); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	if err := writePEM(publicKeyPath, publicKeyType, publicKey); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}
	return nil
}

func writePEM(path, blockType string, bytes []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return pem.Encode(f, &pem.Block{Type: blockType, Bytes: bytes})
}

// Sign returns an Ed25519 signature over data using the private key at
// privateKeyPath.
func Sign(data []byte, privateKeyPath string) ([]byte, error) {
	keyData, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("decode PEM block")
	}
	if block.Type != privateKeyType {
		return nil, fmt.Errorf("invalid key type: expected %s, got %s", privateKeyType, block.Type)
	}

	privateKey := ed25519.PrivateKey(block.Bytes)
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size")
	}

	return ed25519.Sign(privateKey, data), nil
}

// Verify reports whether signature is a valid Ed25519 signature over data
// under the public key at publicKeyPath.
func Verify(data []byte, signature []byte, publicKeyPath string) (bool, error) {
	keyData, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return false, fmt.Errorf("read public key: %w", err)
	}

	block, _ := pem.Decode(keyData)
	if block == nil {
		return false, fmt.Errorf("decode PEM block")
	}
	if block.Type != publicKeyType {
		return false, fmt.Errorf("invalid key type: expected %s, got %s", publicKeyType, block.Type)
	}

	publicKey := ed25519.PublicKey(block.Bytes)
	if len(publicKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("invalid public key size")
	}

	return ed25519.Verify(publicKey, data, signature), nil
}
