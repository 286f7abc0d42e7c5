// Package keylog authors HSM key-rotation records that satisfy the log's
// verification invariants: self-referential content digests, detached CESR
// signatures, and pre-committed rotation hashes. The production log is
// written by the hardware module; this package serves the CLI and tests.
package keylog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"hsmtrust/internal/domain"
)

type Signer interface {
	Public() string
	Sign(message string) (string, error)
}

type Hasher interface {
	Sum(message string) string
}

// Record pairs a decoded entry with the exact bytes it was published as.
// Only Raw is safe to store; re-serializing the entry elsewhere could change
// the digests.
type Record struct {
	Entry domain.SignedLogEntry
	Raw   string
}

// Genesis authors the first record of a chain. Its id doubles as the chain
// prefix, and rotationHash pre-commits to the digest of nextPublicKey, the
// key that will sign the next record.
func Genesis(signer Signer, nextPublicKey, purpose string, createdAt time.Time, hasher Hasher) (Record, error) {
	return Seal(domain.LogEntry{
		SequenceNumber: 0,
		CreatedAt:      createdAt.UTC(),
		Purpose:        purpose,
		PublicKey:      signer.Public(),
		RotationHash:   hasher.Sum(nextPublicKey),
	}, signer, hasher)
}

// Rotate authors the successor of prev. The signer's public key must match
// the commitment prev published; verification fails with a bad commitment
// otherwise.
func Rotate(prev domain.LogEntry, signer Signer, nextPublicKey string, createdAt time.Time, hasher Hasher) (Record, error) {
	previous := prev.ID
	return Seal(domain.LogEntry{
		Prefix:         prev.Prefix,
		Previous:       &previous,
		SequenceNumber: prev.SequenceNumber + 1,
		CreatedAt:      createdAt.UTC(),
		Purpose:        prev.Purpose,
		PublicKey:      signer.Public(),
		RotationHash:   hasher.Sum(nextPublicKey),
	}, signer, hasher)
}

// Seal computes an entry's content id, signs the payload, and wraps it in
// the stored envelope. It applies no chain validation; tests use it to
// author deliberately broken records.
//
// The id is the digest of the payload serialized with a fixed-width
// placeholder in the id position (and the prefix position on sequence 0,
// where prefix equals id). The placeholder width equals the digest encoding
// width, so substituting the real id back is length-preserving and the
// verifier can undo it byte for byte.
func Seal(entry domain.LogEntry, signer Signer, hasher Hasher) (Record, error) {
	placeholder := strings.Repeat("#", len(hasher.Sum("")))

	entry.ID = placeholder
	genesis := entry.SequenceNumber == 0
	if genesis {
		entry.Prefix = placeholder
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return Record{}, fmt.Errorf("marshal payload: %w", err)
	}

	id := hasher.Sum(string(payload))
	final := strings.ReplaceAll(string(payload), placeholder, id)

	entry.ID = id
	if genesis {
		entry.Prefix = id
	}

	signature, err := signer.Sign(final)
	if err != nil {
		return Record{}, err
	}

	raw, err := json.Marshal(struct {
		Payload   json.RawMessage `json:"payload"`
		Signature string          `json:"signature"`
	}{
		Payload:   json.RawMessage(final),
		Signature: signature,
	})
	if err != nil {
		return Record{}, fmt.Errorf("marshal record: %w", err)
	}

	return Record{
		Entry: domain.SignedLogEntry{
			Payload:   entry,
			Signature: signature,
		},
		Raw: string(raw),
	}, nil
}

// AuthorizeAccessKey signs a single-record authorization for an access
// verification key under the chain key addressed by generationID.
func AuthorizeAccessKey(signer Signer, hsmIdentity, generationID, accessPublicKey string, expiration time.Time) (string, error) {
	body, err := json.Marshal(domain.AuthorizationBody{
		Payload: domain.AccessAuthorization{
			Purpose:    "access",
			PublicKey:  accessPublicKey,
			Expiration: expiration.UTC().Format(time.RFC3339Nano),
		},
		HSM: domain.HSMRef{
			Identity:     hsmIdentity,
			GenerationID: generationID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal body: %w", err)
	}

	signature, err := signer.Sign(string(body))
	if err != nil {
		return "", err
	}

	raw, err := json.Marshal(struct {
		Body      json.RawMessage `json:"body"`
		Signature string          `json:"signature"`
	}{
		Body:      json.RawMessage(body),
		Signature: signature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	return string(raw), nil
}
