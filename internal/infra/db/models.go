package db

import "time"

type AuditEventModel struct {
	ID            string    `gorm:"type:uuid;primaryKey"`
	Identity      string    `gorm:"index:idx_audit_identity_seq,unique;not null"`
	Seq           int64     `gorm:"index:idx_audit_identity_seq,unique;not null"`
	EventType     string    `gorm:"not null"`
	PayloadJSON   []byte    `gorm:"type:jsonb;not null"`
	PayloadHash   string    `gorm:"not null"`
	ActorType     string    `gorm:"not null"`
	TargetType    string    `gorm:"not null"`
	TargetID      *string   `gorm:"index"`
	Result        string    `gorm:"not null"`
	ErrorCode     *string
	PrevEventHash string    `gorm:"not null"`
	EventHash     string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (AuditEventModel) TableName() string {
	return "audit_events"
}

// AuditSeqModel tracks the next chain position per identity so appends
// serialize under row locks.
type AuditSeqModel struct {
	Identity string `gorm:"primaryKey"`
	Seq      int64  `gorm:"not null"`
}

func (AuditSeqModel) TableName() string {
	return "audit_seq"
}
