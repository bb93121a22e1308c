package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	PaymentRequestPending = "pending"
	// PaymentRequestPaying means one payer holds the request while its
	// transfer settles.
	PaymentRequestPaying  = "paying"
	PaymentRequestSent    = "sent"
	PaymentRequestExpired = "expired"
)

// PaymentRequest is a shareable "pay me" link created by the payee.
type PaymentRequest struct {
	ID            string     `json:"id"`
	PayeeUserID   uuid.UUID  `json:"payee_user_id"`
	WalletAddress string     `json:"wallet_address"`
	Token         Token      `json:"token"`
	Amount        int64      `json:"amount"`
	IsPrivate     bool       `json:"is_private"`
	Status        string     `json:"status"`
	PayerUserID   *uuid.UUID `json:"payer_user_id,omitempty"`
	IntentID      *uuid.UUID `json:"intent_id,omitempty"`
	Attempts      int        `json:"attempts"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
}

// HeldBy reports whether payer holds or has completed the request.
func (p *PaymentRequest) HeldBy(payer uuid.UUID) bool {
	if p.PayerUserID == nil || p.IntentID == nil || *p.PayerUserID != payer {
		return false
	}
	return p.Status == PaymentRequestPaying || p.Status == PaymentRequestSent
}
