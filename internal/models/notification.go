package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationRole string

const (
	RolePayer NotificationRole = "payer"
	RolePayee NotificationRole = "payee"
)

const (
	NotificationPending   = "pending"
	NotificationDelivered = "delivered"
	NotificationFailed    = "failed"
)

// NotificationJob is one user-visible message about one intent.
// (IntentID, Role) is unique.
type NotificationJob struct {
	ID              uuid.UUID        `json:"id"`
	IntentID        uuid.UUID        `json:"intent_id"`
	RecipientUserID uuid.UUID        `json:"recipient_user_id"`
	TelegramUserID  int64            `json:"-"`
	Role            NotificationRole `json:"role"`
	Status          string           `json:"status"`
	Attempts        int              `json:"attempts"`
	LastError       *string          `json:"last_error,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	DeliveredAt     *time.Time       `json:"delivered_at,omitempty"`
}

func (j *NotificationJob) Delivered() bool {
	return j.Status == NotificationDelivered
}
