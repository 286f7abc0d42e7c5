package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"hsmtrust/internal/domain"
)

// AuditEventRepository appends verification outcomes as a hash-linked chain
// per HSM identity, in the same spirit as the key log it audits.
type AuditEventRepository struct {
	db *gorm.DB
}

func NewAuditEventRepository(db *gorm.DB) *AuditEventRepository {
	return &AuditEventRepository{db: db}
}

func (r *AuditEventRepository) Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if r.db == nil {
		return domain.AuditEvent{}, errDBUnavailable
	}
	if event.ID == "" {
		id, err := newUUID()
		if err != nil {
			return domain.AuditEvent{}, err
		}
		event.ID = id
	}
	if event.EventType == "" {
		return domain.AuditEvent{}, errors.New("event_type is required")
	}
	if event.Identity == "" {
		event.Identity = domain.AuditSystemIdentity
	}
	if event.Payload == nil {
		event.Payload = map[string]any{}
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	} else {
		event.CreatedAt = event.CreatedAt.UTC()
	}
	event.CreatedAt = event.CreatedAt.Truncate(time.Microsecond)

	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	event.PayloadHash = sha256Hex(payloadJSON)

	var out domain.AuditEvent
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, prevHash, err := nextSeq(ctx, tx, event.Identity)
		if err != nil {
			return err
		}
		event.Seq = seq
		event.PrevEventHash = prevHash

		eventHash, err := computeEventHash(event)
		if err != nil {
			return err
		}
		event.EventHash = eventHash

		model := modelFromEvent(event, payloadJSON)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		out = event
		return nil
	})
	if err != nil {
		return domain.AuditEvent{}, err
	}
	return out, nil
}

func (r *AuditEventRepository) ListByIdentity(ctx context.Context, identity string) ([]domain.AuditEvent, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if identity == "" {
		identity = domain.AuditSystemIdentity
	}
	var models []AuditEventModel
	if err := r.db.WithContext(ctx).
		Where("identity = ?", identity).
		Order("seq ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.AuditEvent, 0, len(models))
	for _, model := range models {
		event, err := eventFromModel(model)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, nil
}

func modelFromEvent(event domain.AuditEvent, payloadJSON []byte) AuditEventModel {
	return AuditEventModel{
		ID:            event.ID,
		Identity:      event.Identity,
		Seq:           event.Seq,
		EventType:     string(event.EventType),
		PayloadJSON:   payloadJSON,
		PayloadHash:   event.PayloadHash,
		ActorType:     string(event.ActorType),
		TargetType:    string(event.TargetType),
		TargetID:      stringPtrIfNotEmpty(event.TargetID),
		Result:        string(event.Result),
		ErrorCode:     stringPtrIfNotEmpty(event.ErrorCode),
		PrevEventHash: event.PrevEventHash,
		EventHash:     event.EventHash,
		CreatedAt:     event.CreatedAt.UTC(),
	}
}

func eventFromModel(model AuditEventModel) (domain.AuditEvent, error) {
	payload := map[string]any{}
	if len(model.PayloadJSON) > 0 {
		if err := json.Unmarshal(model.PayloadJSON, &payload); err != nil {
			return domain.AuditEvent{}, err
		}
	}
	return domain.AuditEvent{
		ID:            model.ID,
		Identity:      model.Identity,
		Seq:           model.Seq,
		EventType:     domain.AuditEventType(model.EventType),
		Payload:       payload,
		PayloadHash:   model.PayloadHash,
		ActorType:     domain.AuditActorType(model.ActorType),
		TargetType:    domain.AuditTargetType(model.TargetType),
		TargetID:      stringValue(model.TargetID),
		Result:        domain.AuditResult(model.Result),
		ErrorCode:     stringValue(model.ErrorCode),
		PrevEventHash: model.PrevEventHash,
		EventHash:     model.EventHash,
		CreatedAt:     model.CreatedAt.UTC(),
	}, nil
}

func computeEventHash(event domain.AuditEvent) (string, error) {
	if event.PayloadHash == "" {
		return "", errors.New("payload_hash is required")
	}
	if event.PrevEventHash == "" {
		return "", errors.New("prev_event_hash is required")
	}
	// json.Marshal sorts map keys, so this rendering is deterministic.
	canonical, err := json.Marshal(map[string]any{
		"v":               domain.AuditChainVersion,
		"identity":        event.Identity,
		"seq":             event.Seq,
		"event_type":      string(event.EventType),
		"payload_hash":    event.PayloadHash,
		"prev_event_hash": event.PrevEventHash,
		"created_at":      event.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", err
	}
	return sha256Hex(canonical), nil
}

func nextSeq(ctx context.Context, tx *gorm.DB, identity string) (int64, string, error) {
	if identity == "" {
		return 0, "", errors.New("identity is required")
	}
	if err := tx.WithContext(ctx).Exec(
		"INSERT INTO audit_seq (identity, seq) VALUES (?, 0) ON CONFLICT (identity) DO NOTHING",
		identity,
	).Error; err != nil {
		return 0, "", err
	}

	var currentSeq int64
	if err := tx.WithContext(ctx).Raw(
		"SELECT seq FROM audit_seq WHERE identity = ? FOR UPDATE",
		identity,
	).Scan(&currentSeq).Error; err != nil {
		return 0, "", err
	}
	nextSeq := currentSeq + 1
	if err := tx.WithContext(ctx).Exec(
		"UPDATE audit_seq SET seq = ? WHERE identity = ?",
		nextSeq,
		identity,
	).Error; err != nil {
		return 0, "", err
	}

	prevHash := zeroHash()
	if currentSeq > 0 {
		var prev AuditEventModel
		if err := tx.WithContext(ctx).
			Where("identity = ? AND seq = ?", identity, currentSeq).
			Take(&prev).Error; err != nil {
			return 0, "", err
		}
		prevHash = prev.EventHash
	}
	if prevHash == "" {
		return 0, "", fmt.Errorf("missing previous event hash for identity %s", identity)
	}
	return nextSeq, prevHash, nil
}

func zeroHash() string {
	return "0000000000000000000000000000000000000000000000000000000000000000"
}

func sha256Hex(input []byte) string {
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])
}
