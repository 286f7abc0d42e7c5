package cesr

import (
	"encoding/base64"

	"lukechampine.com/blake3"
)

// Blake3Hasher produces CESR-encoded BLAKE3-256 digests.
type Blake3Hasher struct{}

func NewBlake3Hasher() *Blake3Hasher {
	return &Blake3Hasher{}
}

// Sum digests message and returns the 44-character CESR string: a leading
// zero pad byte plus the 32 digest bytes, base64url without padding, first
// character replaced with 'E'.
func (h *Blake3Hasher) Sum(message string) string {
	digest := blake3.Sum256([]byte(message))

	padded := make([]byte, 33)
	copy(padded[1:], digest[:])

	encoded := base64.RawURLEncoding.EncodeToString(padded)
	return "E" + encoded[1:]
}
