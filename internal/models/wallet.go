package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet is the custodial Solana wallet owned by exactly one user.
// Address never changes once the row exists.
type Wallet struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	Address         string    `json:"address"`
	CustodyWalletID string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}

// ShortAddress renders "AbCdEfGh...WxYz" for chat messages.
func ShortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:8] + "..." + addr[len(addr)-4:]
}
