package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/solana-agent/backend/internal/models"
	"github.com/solana-agent/backend/internal/settlement"
)

// Storage and provider contracts the services depend on. The repositories
// and settlement packages satisfy them in production.

type UserStore interface {
	UpsertByTelegramID(ctx context.Context, telegramID int64, username *string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

type WalletStore interface {
	Insert(ctx context.Context, w *models.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetByAddress(ctx context.Context, address string) (*models.Wallet, error)
}

type Ledger interface {
	CreateIntent(ctx context.Context, in *models.TransferIntent) (models.CreateResult, error)
	GetIntent(ctx context.Context, id uuid.UUID) (*models.TransferIntent, error)
	GetIntentBySignature(ctx context.Context, sig string) (*models.TransferIntent, error)
	Transition(ctx context.Context, id uuid.UUID, from, to models.IntentStatus, out models.Outcome) error
	AdvanceStage(ctx context.Context, id uuid.UUID, from, to models.IntentStage) error
	CancelPending(ctx context.Context, id uuid.UUID, reason string) error
	AttachSignature(ctx context.Context, id uuid.UUID, sig string) error
	RecordWebhook(ctx context.Context, eventID string, raw []byte, lease time.Duration) (models.WebhookRecord, error)
	MarkWebhookProcessed(ctx context.Context, eventID string) error
	ReleaseWebhook(ctx context.Context, eventID string) error
	ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]models.TransferIntent, error)
	ListSubmittedPublic(ctx context.Context, limit int) ([]models.TransferIntent, error)
	ListStaleNotifying(ctx context.Context, olderThan time.Duration, limit int) ([]models.TransferIntent, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]models.TransferIntent, error)
}

type NotificationStore interface {
	Enqueue(ctx context.Context, intentID, recipient uuid.UUID, role models.NotificationRole) (*models.NotificationJob, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.NotificationJob, error)
	Claim(ctx context.Context, id uuid.UUID, lease time.Duration) (*models.NotificationJob, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, attempts int) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastErr string) error
	ListPending(ctx context.Context, minAge time.Duration, limit int) ([]models.NotificationJob, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.NotificationJob, error)
}

type PaymentRequestStore interface {
	Create(ctx context.Context, p *models.PaymentRequest) error
	GetByID(ctx context.Context, id string) (*models.PaymentRequest, error)
	Claim(ctx context.Context, id string, payer, intentID uuid.UUID, attempt int) error
	Release(ctx context.Context, id string, intentID uuid.UUID) error
	MarkSent(ctx context.Context, id string, intentID uuid.UUID) error
	ListPaying(ctx context.Context, olderThan time.Duration, limit int) ([]models.PaymentRequest, error)
	ExpireOverdue(ctx context.Context) (int64, error)
}

type AuditLogger interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

type WalletProvisioner interface {
	CreateWallet(ctx context.Context, ownerKey, idemKey string) (*settlement.CustodyWallet, error)
}

type PrivateSettler interface {
	SubmitPrivate(ctx context.Context, t settlement.PrivateTransfer) (*settlement.ShieldedReceipt, error)
	PollPrivate(ctx context.Context, idemKey string) (*settlement.ShieldedReceipt, error)
}

type PublicSettler interface {
	Build(ctx context.Context, tok models.Token, amount int64, from, to string) (*settlement.PublicTransfer, error)
	Submit(ctx context.Context, custodyWalletID string, pt *settlement.PublicTransfer, idemKey string) (string, error)
	Status(ctx context.Context, sig string) (settlement.SignatureState, error)
}

// ShieldPool moves funds in and out of a user's shielded balance.
type ShieldPool interface {
	Deposit(ctx context.Context, m settlement.ShieldMove) (*settlement.ShieldedReceipt, error)
	Withdraw(ctx context.Context, m settlement.ShieldMove) (*settlement.ShieldedReceipt, error)
	Balance(ctx context.Context, owner string, tok models.Token) (*settlement.ShieldBalance, error)
}

type Swapper interface {
	SubmitSwap(ctx context.Context, req settlement.SwapRequest) (*settlement.SwapReceipt, error)
}

type ChatSender interface {
	SendNotification(ctx context.Context, telegramUserID int64, text string) error
}
