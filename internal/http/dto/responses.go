package dto

import (
	"time"

	"github.com/solana-agent/backend/internal/chain"
	"github.com/solana-agent/backend/internal/models"
)

type AuthResponse struct {
	Token string `json:"token"`
	User  any    `json:"user"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// Intent is a transfer intent with display amounts.
type Intent struct {
	*models.TransferIntent
	AmountDisplay string `json:"amount_display"`
	FeeDisplay    string `json:"fee_display,omitempty"`
	ExplorerURL   string `json:"explorer_url,omitempty"`
}

func NewIntent(i *models.TransferIntent) Intent {
	out := Intent{TransferIntent: i, AmountDisplay: chain.FormatAmount(i.Amount, i.Token)}
	if i.FeeAmount > 0 {
		out.FeeDisplay = chain.FormatAmount(i.FeeAmount, i.Token)
	}
	if i.Kind == models.IntentKindPublic && i.TxSignature != nil {
		out.ExplorerURL = chain.ExplorerTxURL(*i.TxSignature)
	}
	return out
}

func NewIntents(list []models.TransferIntent) []Intent {
	out := make([]Intent, 0, len(list))
	for i := range list {
		out = append(out, NewIntent(&list[i]))
	}
	return out
}

type PaymentRequest struct {
	*models.PaymentRequest
	AmountDisplay string `json:"amount_display"`
	DeepLink      string `json:"deep_link"`
}

type SwapResponse struct {
	RequestID   string `json:"request_id"`
	Signature   string `json:"signature"`
	InAmount    int64  `json:"in_amount"`
	OutAmount   int64  `json:"out_amount"`
	ExplorerURL string `json:"explorer_url"`
}

type ShieldReceipt struct {
	ReceiptID string `json:"receipt_id"`
	Status    string `json:"status"`
	Fee       int64  `json:"fee"`
	Error     string `json:"error,omitempty"`
}

type ShieldBalance struct {
	Token         models.Token `json:"token"`
	Amount        int64        `json:"amount"`
	AmountDisplay string       `json:"amount_display"`
}

type WebhookResponse struct {
	Outcome    string    `json:"outcome"`
	ReceivedAt time.Time `json:"received_at"`
}
