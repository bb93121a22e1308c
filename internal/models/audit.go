package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ActorType says who caused an audited change.
type ActorType string

const (
	ActorUser    ActorType = "user"
	ActorSystem  ActorType = "system"
	ActorWebhook ActorType = "webhook"
)

type AuditAction string

const (
	AuditWalletProvisioned AuditAction = "wallet_provisioned"
	AuditIntentCreated     AuditAction = "intent_created"
	AuditIntentSettled     AuditAction = "intent_settled"
	AuditIntentFailed      AuditAction = "intent_failed"
	AuditIntentCancelled   AuditAction = "intent_cancelled"
	AuditWebhookRejected   AuditAction = "webhook_rejected"
	AuditSwapExecuted      AuditAction = "swap_executed"
	AuditShieldDeposit     AuditAction = "shield_deposit"
	AuditShieldWithdraw    AuditAction = "shield_withdraw"
)

// AuditEntity names the kind of row an audit entry is about.
type AuditEntity string

const (
	EntityWallet       AuditEntity = "wallet"
	EntityIntent       AuditEntity = "transfer_intent"
	EntityWebhookEvent AuditEntity = "webhook_event"
)

var auditEntities = map[AuditEntity]struct{}{
	EntityWallet:       {},
	EntityIntent:       {},
	EntityWebhookEvent: {},
}

func ParseAuditEntity(s string) (AuditEntity, bool) {
	e := AuditEntity(s)
	_, ok := auditEntities[e]
	return e, ok
}

var (
	ErrAuditIncomplete    = errors.New("audit entry needs an actor type and an action")
	ErrAuditEntityUnknown = errors.New("unknown audit entity")
)

// AuditLog is one append-only entry of the money-movement trail. Meta is
// stored as JSONB and carries amounts, receipts and signatures.
type AuditLog struct {
	ID          uuid.UUID      `json:"id"`
	ActorUserID *uuid.UUID     `json:"actor_user_id,omitempty"`
	ActorType   ActorType      `json:"actor_type"`
	Action      AuditAction    `json:"action"`
	EntityType  AuditEntity    `json:"entity_type"`
	EntityID    *uuid.UUID     `json:"entity_id,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (l *AuditLog) Validate() error {
	if l.ActorType == "" || l.Action == "" {
		return ErrAuditIncomplete
	}
	if _, ok := auditEntities[l.EntityType]; !ok {
		return ErrAuditEntityUnknown
	}
	return nil
}
