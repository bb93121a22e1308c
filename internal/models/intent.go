package models

import (
	"time"

	"github.com/google/uuid"
)

type IntentKind string

const (
	IntentKindPublic  IntentKind = "public"
	IntentKindPrivate IntentKind = "private"
)

type IntentStatus string

// Intent statuses. pending moves to exactly one terminal state.
const (
	IntentStatusPending IntentStatus = "pending"
	IntentStatusSettled IntentStatus = "settled"
	IntentStatusFailed  IntentStatus = "failed"
)

var ValidIntentTransitions = map[IntentStatus][]IntentStatus{
	IntentStatusPending: {IntentStatusSettled, IntentStatusFailed},
	IntentStatusSettled: {},
	IntentStatusFailed:  {},
}

func IsValidIntentTransition(from, to IntentStatus) bool {
	for _, s := range ValidIntentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s IntentStatus) Terminal() bool {
	return s == IntentStatusSettled || s == IntentStatusFailed
}

type IntentStage string

// Orchestrator stages of a transfer. done and failed are absorbing.
const (
	StageValidating IntentStage = "validating"
	StageSubmitting IntentStage = "submitting"
	StageSettling   IntentStage = "settling"
	StageNotifying  IntentStage = "notifying"
	StageDone       IntentStage = "done"
	StageFailed     IntentStage = "failed"
)

var ValidStageTransitions = map[IntentStage][]IntentStage{
	StageValidating: {StageSubmitting, StageFailed},
	StageSubmitting: {StageSettling, StageFailed},
	StageSettling:   {StageNotifying, StageFailed},
	StageNotifying:  {StageDone},
	StageDone:       {},
	StageFailed:     {},
}

func IsValidStageTransition(from, to IntentStage) bool {
	for _, s := range ValidStageTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StagesInto lists the stages that may move directly to to, in pipeline order.
func StagesInto(to IntentStage) []IntentStage {
	var out []IntentStage
	for _, from := range []IntentStage{StageValidating, StageSubmitting, StageSettling, StageNotifying, StageDone, StageFailed} {
		if IsValidStageTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// TransferIntent is one logical movement of value between two wallets.
// Amount is in the token's minor units.
type TransferIntent struct {
	ID            uuid.UUID    `json:"id"`
	Kind          IntentKind   `json:"kind"`
	Token         Token        `json:"token"`
	Amount        int64        `json:"amount"`
	PayerWalletID *uuid.UUID   `json:"payer_wallet_id,omitempty"`
	PayeeWalletID *uuid.UUID   `json:"payee_wallet_id,omitempty"`
	PayerAddress  string       `json:"payer_address"`
	PayeeAddress  string       `json:"payee_address"`
	Status        IntentStatus `json:"status"`
	Stage         IntentStage  `json:"stage"`
	TxSignature   *string      `json:"tx_signature,omitempty"`
	ReceiptRef    *string      `json:"receipt_ref,omitempty"`
	FeeAmount     int64        `json:"fee_amount"`
	FailureReason *string      `json:"failure_reason,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// SameTerms reports whether two intents describe the same movement of value.
// A reused idempotency key with different terms must never be executed.
func (i *TransferIntent) SameTerms(o *TransferIntent) bool {
	return i.Kind == o.Kind &&
		i.Token == o.Token &&
		i.Amount == o.Amount &&
		i.PayerAddress == o.PayerAddress &&
		i.PayeeAddress == o.PayeeAddress
}

// Outcome carries what a terminal transition records alongside the status.
type Outcome struct {
	Stage         IntentStage
	TxSignature   string
	ReceiptRef    string
	FeeAmount     int64
	FailureReason string
}

type CreateResult int

const (
	Created CreateResult = iota
	DuplicateIgnored
)
