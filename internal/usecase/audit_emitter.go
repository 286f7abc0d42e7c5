package usecase

import (
	"context"
	"errors"
	"time"

	"hsmtrust/internal/domain"
)

type AuditEmitter struct {
	Repo  AuditEventRepository
	Clock Clock
}

func NewAuditEmitter(repo AuditEventRepository, clock Clock) *AuditEmitter {
	return &AuditEmitter{
		Repo:  repo,
		Clock: clock,
	}
}

func (e *AuditEmitter) Emit(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if e == nil || e.Repo == nil {
		return domain.AuditEvent{}, errors.New("audit repository required")
	}
	if event.EventType == "" || event.TargetType == "" || event.Result == "" || event.ActorType == "" {
		return domain.AuditEvent{}, errors.New("audit event missing required fields")
	}
	if event.Payload == nil {
		event.Payload = map[string]any{}
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = e.now().UTC()
	} else {
		event.CreatedAt = event.CreatedAt.UTC()
	}
	return e.Repo.Append(ctx, event)
}

func (e *AuditEmitter) EmitKeyLogVerified(ctx context.Context, hsmIdentity, generationID string) error {
	_, err := e.Emit(ctx, domain.AuditEvent{
		Identity:  hsmIdentity,
		ActorType: domain.AuditActorService,
		EventType: domain.AuditEventKeyLogVerified,
		Payload: map[string]any{
			"hsm_identity":  hsmIdentity,
			"generation_id": generationID,
		},
		TargetType: domain.AuditTargetGeneration,
		TargetID:   generationID,
		Result:     domain.AuditResultSuccess,
	})
	return err
}

func (e *AuditEmitter) EmitKeyLogRejected(ctx context.Context, hsmIdentity, generationID, errorCode string) error {
	_, err := e.Emit(ctx, domain.AuditEvent{
		Identity:  hsmIdentity,
		ActorType: domain.AuditActorService,
		EventType: domain.AuditEventKeyLogRejected,
		Payload: map[string]any{
			"hsm_identity":  hsmIdentity,
			"generation_id": generationID,
		},
		TargetType: domain.AuditTargetGeneration,
		TargetID:   generationID,
		Result:     domain.AuditResultFailure,
		ErrorCode:  errorCode,
	})
	return err
}

func (e *AuditEmitter) EmitCacheRebuilt(ctx context.Context, hsmIdentity string, chainLength, cached int) error {
	_, err := e.Emit(ctx, domain.AuditEvent{
		Identity:  hsmIdentity,
		ActorType: domain.AuditActorService,
		EventType: domain.AuditEventCacheRebuilt,
		Payload: map[string]any{
			"hsm_identity": hsmIdentity,
			"chain_length": chainLength,
			"cached":       cached,
		},
		TargetType: domain.AuditTargetChain,
		TargetID:   hsmIdentity,
		Result:     domain.AuditResultSuccess,
	})
	return err
}

func (e *AuditEmitter) EmitAccessKeyRead(ctx context.Context, identity string, result domain.AuditResult, errorCode string) error {
	_, err := e.Emit(ctx, domain.AuditEvent{
		Identity:  domain.AuditSystemIdentity,
		ActorType: domain.AuditActorService,
		EventType: domain.AuditEventAccessKeyRead,
		Payload: map[string]any{
			"identity": identity,
		},
		TargetType: domain.AuditTargetAccessKey,
		TargetID:   identity,
		Result:     result,
		ErrorCode:  errorCode,
	})
	return err
}

func (e *AuditEmitter) now() time.Time {
	if e != nil && e.Clock != nil {
		return e.Clock()
	}
	return time.Now().UTC()
}
