package domain

import (
	"encoding/json"
	"time"
)

// LogEntry is one record in an HSM key-rotation log. Its ID is a content
// digest of its own payload with the ID value redacted, so a record can be
// re-verified from the exact bytes it was published as.
type LogEntry struct {
	ID             string    `json:"id"`
	Prefix         string    `json:"prefix"`
	Previous       *string   `json:"previous,omitempty"`
	SequenceNumber int64     `json:"sequenceNumber"`
	CreatedAt      time.Time `json:"createdAt"`
	Purpose        string    `json:"purpose"`
	PublicKey      string    `json:"publicKey"`
	RotationHash   string    `json:"rotationHash"`
}

// SignedLogEntry carries a detached signature over the payload bytes,
// verifiable against the payload's own PublicKey.
type SignedLogEntry struct {
	Payload   LogEntry `json:"payload"`
	Signature string   `json:"signature"`
}

// AccessAuthorization is the single-record trust-anchor variant: a key
// authorized directly by an HSM chain key, with an explicit expiration
// instead of chain linkage.
type AccessAuthorization struct {
	Purpose    string `json:"purpose"`
	PublicKey  string `json:"publicKey"`
	Expiration string `json:"expiration"`
}

type HSMRef struct {
	Identity     string `json:"identity"`
	GenerationID string `json:"generationId"`
}

type AuthorizationBody struct {
	Payload AccessAuthorization `json:"payload"`
	HSM     HSMRef              `json:"hsm"`
}

type SignedAuthorization struct {
	Body      AuthorizationBody `json:"body"`
	Signature string            `json:"signature"`
}

// ParseSignedRecord decodes a raw log record and captures the exact payload
// substring the signer hashed and signed. The substring, not a
// re-serialization, is what all digest and signature checks operate over.
func ParseSignedRecord(raw string) (*SignedLogEntry, string, error) {
	payloadJSON, err := ExtractObject(raw, "payload")
	if err != nil {
		return nil, "", err
	}

	record := &SignedLogEntry{}
	if err := json.Unmarshal([]byte(raw), record); err != nil {
		return nil, "", err
	}

	return record, payloadJSON, nil
}
