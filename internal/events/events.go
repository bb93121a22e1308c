package events

import "context"

// Redis channels
const (
	ChannelNotify = "events:notify"
)

// Event types
const (
	EventNotificationQueued = "notification_queued"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, channel string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, handler func(channel string, event Event), channels ...string) error
}
