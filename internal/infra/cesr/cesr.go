// Package cesr implements the CESR text encodings the HSM key log is
// published in: BLAKE3-256 digests prefixed with 'E', secp256r1 public keys
// prefixed with "1AAI", and detached ECDSA signatures prefixed with "0I".
package cesr

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"fmt"
	"math/big"
)

const (
	// DigestLength is the character count of an encoded digest: one pad
	// byte plus 32 digest bytes, base64url without padding.
	DigestLength = 44

	publicKeyPrefix = "1AAI"
)

// PublicKeyToCESR encodes an ECDSA P-256 public key as "1AAI" followed by
// the base64url compressed SEC1 point.
func PublicKeyToCESR(publicKey *ecdsa.PublicKey) string {
	compressed := elliptic.MarshalCompressed(elliptic.P256(), publicKey.X, publicKey.Y)
	return publicKeyPrefix + base64.URLEncoding.EncodeToString(compressed)
}

// ParsePublicKey decodes a CESR public key string. The whole string is
// base64-decoded and the three bytes covering the "1AAI" prefix are skipped.
func ParsePublicKey(cesrPublicKey string) (*ecdsa.PublicKey, error) {
	raw, err := base64.URLEncoding.DecodeString(cesrPublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(raw) != 36 {
		return nil, fmt.Errorf("invalid public key length: expected 36, got %d", len(raw))
	}

	x, y := elliptic.UnmarshalCompressed(elliptic.P256(), raw[3:])
	if x == nil {
		return nil, fmt.Errorf("invalid compressed point")
	}

	return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
}

// SignatureToCESR packs (R, S) into a 66-byte buffer, two pad bytes then the
// fixed-width components, base64url-encoded with the first two characters
// replaced by "0I".
func SignatureToCESR(r, s *big.Int) string {
	signatureBytes := make([]byte, 66)
	r.FillBytes(signatureBytes[2:34])
	s.FillBytes(signatureBytes[34:66])

	encoded := []byte(base64.URLEncoding.EncodeToString(signatureBytes))
	encoded[0] = '0'
	encoded[1] = 'I'

	return string(encoded)
}

// ParseSignature decodes a CESR signature string into (R, S), skipping the
// two pad bytes.
func ParseSignature(cesrSignature string) (*big.Int, *big.Int, error) {
	raw, err := base64.URLEncoding.DecodeString(cesrSignature)
	if err != nil {
		return nil, nil, fmt.Errorf("decode signature: %w", err)
	}
	if len(raw) != 66 {
		return nil, nil, fmt.Errorf("invalid signature length: expected 66, got %d", len(raw))
	}

	r := new(big.Int).SetBytes(raw[2:34])
	s := new(big.Int).SetBytes(raw[34:66])
	return r, s, nil
}
