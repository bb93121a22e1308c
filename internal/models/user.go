package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID  `json:"id"`
	TelegramUserID int64      `json:"telegram_user_id"`
	Username       *string    `json:"username,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	LastActiveAt   time.Time  `json:"last_active_at"`
	ArchivedAt     *time.Time `json:"archived_at,omitempty"`
}

// Display renders the user for chat messages: @username when known.
func (u *User) Display() string {
	if u != nil && u.Username != nil && *u.Username != "" {
		return "@" + *u.Username
	}
	return ""
}
