package cesr

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// Secp256r1Signer is a software stand-in for the HSM's signing key: it signs
// message text with ECDSA P-256 over SHA-256 and emits CESR signatures.
// Chain authoring and tests use it; the production log is written by the
// hardware module itself.
type Secp256r1Signer struct {
	key *ecdsa.PrivateKey
}

func NewSecp256r1Signer() (*Secp256r1Signer, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Secp256r1Signer{key: key}, nil
}

func NewSecp256r1SignerFromKey(key *ecdsa.PrivateKey) *Secp256r1Signer {
	return &Secp256r1Signer{key: key}
}

// Public returns the CESR encoding of the signer's public key.
func (s *Secp256r1Signer) Public() string {
	return PublicKeyToCESR(&s.key.PublicKey)
}

func (s *Secp256r1Signer) Sign(message string) (string, error) {
	digest := sha256.Sum256([]byte(message))

	r, sv, err := ecdsa.Sign(rand.Reader, s.key, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}

	return SignatureToCESR(r, sv), nil
}

// MarshalPEM serializes the private key as SEC1 PEM for on-disk chain state.
func (s *Secp256r1Signer) MarshalPEM() ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(s.key)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}

func ParseSignerPEM(data []byte) (*Secp256r1Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "EC PRIVATE KEY" {
		return nil, errors.New("no ec private key block")
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Secp256r1Signer{key: key}, nil
}
