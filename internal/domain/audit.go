package domain

import "time"

type AuditActorType string

const (
	// AuditSystemIdentity is the reserved identity for events not tied to a
	// specific HSM chain.
	AuditSystemIdentity = "__system__"
	AuditChainVersion   = "audit_chain_v0"

	AuditActorSystem  AuditActorType = "system"
	AuditActorService AuditActorType = "service"
	AuditActorUser    AuditActorType = "user"
)

type AuditEventType string

const (
	AuditEventKeyLogVerified AuditEventType = "key_log_verified"
	AuditEventKeyLogRejected AuditEventType = "key_log_rejected"
	AuditEventCacheRebuilt   AuditEventType = "key_cache_rebuilt"
	AuditEventAccessKeyRead  AuditEventType = "access_key_read"
)

type AuditTargetType string

const (
	AuditTargetChain      AuditTargetType = "chain"
	AuditTargetGeneration AuditTargetType = "generation"
	AuditTargetAccessKey  AuditTargetType = "access_key"
)

type AuditResult string

const (
	AuditResultSuccess AuditResult = "success"
	AuditResultFailure AuditResult = "failure"
)

type AuditEvent struct {
	ID            string
	Identity      string
	Seq           int64
	EventType     AuditEventType
	Payload       map[string]any
	PayloadHash   string
	ActorType     AuditActorType
	TargetType    AuditTargetType
	TargetID      string
	Result        AuditResult
	ErrorCode     string
	PrevEventHash string
	EventHash     string
	CreatedAt     time.Time
}
