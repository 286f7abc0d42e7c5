package cesr

import (
	"crypto/ecdsa"
	"crypto/sha256"

	"hsmtrust/internal/domain"
)

// Secp256r1Verifier checks detached CESR signatures: ECDSA P-256 over
// SHA-256 of the message text.
type Secp256r1Verifier struct{}

func NewSecp256r1Verifier() *Secp256r1Verifier {
	return &Secp256r1Verifier{}
}

func (v *Secp256r1Verifier) Verify(message, signature, publicKey string) error {
	pub, err := ParsePublicKey(publicKey)
	if err != nil {
		return domain.ErrSignatureInvalid
	}

	r, s, err := ParseSignature(signature)
	if err != nil {
		return domain.ErrSignatureInvalid
	}

	digest := sha256.Sum256([]byte(message))
	if !ecdsa.Verify(pub, digest[:], r, s) {
		return domain.ErrSignatureInvalid
	}
	return nil
}
