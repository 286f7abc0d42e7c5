package domain

import "errors"

var (
	ErrNoKeysFound           = errors.New("no hsm keys found")
	ErrMissingBody           = errors.New("missing body in record")
	ErrExtractionFailed      = errors.New("failed to extract body from record")
	ErrSelfReferenceMismatch = errors.New("id does not match content digest")
	ErrSignatureInvalid      = errors.New("signature invalid")
	ErrBadSequenceNumber     = errors.New("bad sequence number")
	ErrBrokenChain           = errors.New("broken chain")
	ErrBadCommitment         = errors.New("bad commitment")
	ErrIdentityNotFound      = errors.New("hsm identity not found")
	ErrNoValidKey            = errors.New("no valid public key")
	ErrIncorrectIdentity     = errors.New("incorrect identity")
	ErrIncorrectPurpose      = errors.New("incorrect purpose")
	ErrInvalidTimestamp      = errors.New("invalid timestamp")
	ErrExpiredKey            = errors.New("expired key")
	ErrNotFound              = errors.New("not found")
)
