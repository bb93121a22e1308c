package services

import (
	"fmt"

	"github.com/google/uuid"
)

// intentNamespace seeds deterministic intent ids, so the same external event
// always maps to the same intent.
var intentNamespace = uuid.MustParse("8b0e6c3f-4f7a-5d2e-9c61-2a7d3b9e1f40")

// WebhookIntentID identifies the index-th supported transfer of a transaction.
func WebhookIntentID(signature string, index int) uuid.UUID {
	return uuid.NewSHA1(intentNamespace, []byte(fmt.Sprintf("%s:%d", signature, index)))
}

// ChatIntentID identifies the transfer started by one chat message.
func ChatIntentID(chatID, messageID int64) uuid.UUID {
	return uuid.NewSHA1(intentNamespace, []byte(fmt.Sprintf("tg:%d:%d", chatID, messageID)))
}

// PaymentRequestIntentID identifies payer's attempt-th claim of one payment
// request. A released claim is retried under the next attempt.
func PaymentRequestIntentID(requestID string, payer uuid.UUID, attempt int) uuid.UUID {
	return uuid.NewSHA1(intentNamespace, []byte(fmt.Sprintf("payreq:%s:%s:%d", requestID, payer, attempt)))
}
