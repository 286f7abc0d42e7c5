package usecase

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"hsmtrust/internal/domain"
)

// PurposeAccess is the declared purpose of a single-record access-key
// authorization. Matched case-insensitively, as published envelopes are.
const PurposeAccess = "access"

// AccessKeyVerifier resolves the access verification key for an identity
// from a single signed authorization envelope rather than a chain: the
// envelope's detached signature is checked through the key-log verifier,
// then the declared purpose and expiration gate the key.
type AccessKeyVerifier struct {
	Authorizations AuthorizationStore
	Keys           *KeyLogVerifier
	Now            Clock
}

func NewAccessKeyVerifier(authorizations AuthorizationStore, keys *KeyLogVerifier, now Clock) *AccessKeyVerifier {
	if now == nil {
		now = time.Now
	}
	return &AccessKeyVerifier{
		Authorizations: authorizations,
		Keys:           keys,
		Now:            now,
	}
}

// Get returns the authorized public key for identity.
func (v *AccessKeyVerifier) Get(ctx context.Context, identity string) (string, error) {
	raw, err := v.Authorizations.Get(ctx, identity)
	if err != nil {
		return "", err
	}

	// The signature covers the exact body bytes as published.
	bodyJSON, err := domain.ExtractObject(raw, "body")
	if err != nil {
		return "", err
	}

	envelope := domain.SignedAuthorization{}
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return "", err
	}

	if err := v.Keys.Verify(
		ctx,
		envelope.Signature,
		envelope.Body.HSM.Identity,
		envelope.Body.HSM.GenerationID,
		bodyJSON,
	); err != nil {
		return "", err
	}

	if !strings.EqualFold(envelope.Body.Payload.Purpose, PurposeAccess) {
		return "", domain.ErrIncorrectPurpose
	}

	expiration, err := time.Parse(time.RFC3339Nano, envelope.Body.Payload.Expiration)
	if err != nil {
		return "", domain.ErrInvalidTimestamp
	}
	if v.Now().After(expiration) {
		return "", domain.ErrExpiredKey
	}

	return envelope.Body.Payload.PublicKey, nil
}
