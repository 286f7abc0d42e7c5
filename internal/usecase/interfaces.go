package usecase

import (
	"context"
	"time"

	"hsmtrust/internal/domain"
)

// RecordStore supplies the full set of raw log records for the HSM key log
// namespace. No ordering or filtering; a rebuild always consumes everything.
type RecordStore interface {
	FetchAll(ctx context.Context) ([]string, error)
}

// AuthorizationStore supplies the signed access-key authorization envelope
// published for an identity.
type AuthorizationStore interface {
	Get(ctx context.Context, identity string) (string, error)
}

// Hasher computes the content digest used for record ids and rotation
// commitments. Deterministic; same encoding as published records.
type Hasher interface {
	Sum(message string) string
}

// Verifier checks a detached signature over message against publicKey.
type Verifier interface {
	Verify(message, signature, publicKey string) error
}

type AuditEventRepository interface {
	Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error)
	ListByIdentity(ctx context.Context, identity string) ([]domain.AuditEvent, error)
}

type Clock func() time.Time
