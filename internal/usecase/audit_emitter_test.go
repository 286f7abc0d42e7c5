package usecase

import (
	"context"
	"testing"
	"time"

	"hsmtrust/internal/domain"
)

func TestAuditEmitter_Emit(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeAuditRepo{}
	emitter := NewAuditEmitter(repo, fixedClock(now))

	event, err := emitter.Emit(context.Background(), domain.AuditEvent{
		Identity:   "hsm-1",
		ActorType:  domain.AuditActorService,
		EventType:  domain.AuditEventKeyLogVerified,
		TargetType: domain.AuditTargetGeneration,
		TargetID:   "gen-1",
		Result:     domain.AuditResultSuccess,
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if !event.CreatedAt.Equal(now) {
		t.Fatalf("created at = %v, want %v", event.CreatedAt, now)
	}
	if event.Payload == nil {
		t.Fatal("payload not defaulted")
	}
	if len(repo.events) != 1 {
		t.Fatalf("appended %d events, want 1", len(repo.events))
	}
}

func TestAuditEmitter_RejectsIncompleteEvent(t *testing.T) {
	repo := &fakeAuditRepo{}
	emitter := NewAuditEmitter(repo, nil)

	_, err := emitter.Emit(context.Background(), domain.AuditEvent{
		EventType: domain.AuditEventKeyLogVerified,
	})
	if err == nil {
		t.Fatal("expected error for incomplete event")
	}
	if len(repo.events) != 0 {
		t.Fatal("incomplete event was appended")
	}
}

func TestAuditEmitter_NilEmitter(t *testing.T) {
	var emitter *AuditEmitter

	_, err := emitter.Emit(context.Background(), domain.AuditEvent{})
	if err == nil {
		t.Fatal("expected error from nil emitter")
	}
}

func TestAuditEmitter_EventHelpers(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeAuditRepo{}
	emitter := NewAuditEmitter(repo, fixedClock(now))
	ctx := context.Background()

	if err := emitter.EmitKeyLogVerified(ctx, "hsm-1", "gen-1"); err != nil {
		t.Fatalf("emit verified: %v", err)
	}
	if err := emitter.EmitKeyLogRejected(ctx, "hsm-1", "gen-1", "SIGNATURE_INVALID"); err != nil {
		t.Fatalf("emit rejected: %v", err)
	}
	if err := emitter.EmitCacheRebuilt(ctx, "hsm-1", 3, 2); err != nil {
		t.Fatalf("emit rebuilt: %v", err)
	}
	if err := emitter.EmitAccessKeyRead(ctx, "service-a", domain.AuditResultSuccess, ""); err != nil {
		t.Fatalf("emit read: %v", err)
	}

	events, err := repo.ListByIdentity(ctx, "hsm-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("hsm-1 has %d events, want 3", len(events))
	}
	if events[1].Result != domain.AuditResultFailure || events[1].ErrorCode != "SIGNATURE_INVALID" {
		t.Fatalf("rejected event not recorded: %+v", events[1])
	}

	reads, err := repo.ListByIdentity(ctx, domain.AuditSystemIdentity)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(reads) != 1 || reads[0].EventType != domain.AuditEventAccessKeyRead {
		t.Fatalf("access key read not recorded under system identity: %+v", reads)
	}
}
