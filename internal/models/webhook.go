package models

import "time"

type WebhookEvent struct {
	ProviderEventID string    `json:"provider_event_id"`
	RawPayload      []byte    `json:"-"`
	Processed       bool      `json:"processed"`
	ReceivedAt      time.Time `json:"received_at"`
}

type WebhookRecord int

const (
	FirstSeen WebhookRecord = iota
	AlreadySeen
)
