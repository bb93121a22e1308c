package settlement

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/solana-agent/backend/internal/models"
	"go.uber.org/zap"
)

type ReceiptStatus string

const (
	ReceiptSettled ReceiptStatus = "settled"
	ReceiptPending ReceiptStatus = "pending"
	ReceiptFailed  ReceiptStatus = "failed"
)

// ShieldedReceipt is the shielding service's record of one private transfer.
// Signature is the pool's on-chain payout, set once the transfer settles.
type ShieldedReceipt struct {
	ID        string        `json:"id"`
	Status    ReceiptStatus `json:"status"`
	Fee       int64         `json:"fee"`
	Signature string        `json:"signature,omitempty"`
	Error     string        `json:"error,omitempty"`
}

type PrivateTransfer struct {
	Token          models.Token
	Amount         int64
	FromWalletID   string
	FromAddress    string
	ToAddress      string
	IdempotencyKey string
}

// ShieldingClient submits private transfers to the Privacy Cash relayer.
type ShieldingClient struct {
	baseURL string
	apiKey  string
	retrier *Retrier
	log     *zap.Logger
}

func NewShieldingClient(baseURL, apiKey string, retrier *Retrier, log *zap.Logger) *ShieldingClient {
	return &ShieldingClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		retrier: retrier,
		log:     log,
	}
}

func (c *ShieldingClient) headers(idemKey string) map[string]string {
	h := map[string]string{"x-api-key": c.apiKey}
	if idemKey != "" {
		h["Idempotency-Key"] = idemKey
	}
	return h
}

// SubmitPrivate shields a transfer. The returned receipt may still be pending;
// the caller polls with PollPrivate.
func (c *ShieldingClient) SubmitPrivate(ctx context.Context, t PrivateTransfer) (*ShieldedReceipt, error) {
	if t.IdempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotency key required", ErrRejected)
	}
	var r ShieldedReceipt
	err := c.retrier.do(ctx, call{
		method:  "POST",
		url:     c.baseURL + "/v1/transfers",
		headers: c.headers(t.IdempotencyKey),
		body: map[string]any{
			"token":          string(t.Token),
			"mint":           t.Token.Mint(),
			"amount":         t.Amount,
			"from_wallet_id": t.FromWalletID,
			"from":           t.FromAddress,
			"to":             t.ToAddress,
		},
		idempotencyKey: t.IdempotencyKey,
		mutating:       true,
	}, &r)
	if err != nil {
		return nil, fmt.Errorf("shield transfer: %w", err)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	c.log.Debug("shielded transfer submitted",
		zap.String("idempotency_key", t.IdempotencyKey),
		zap.String("status", string(r.Status)),
	)
	return &r, nil
}

// PollPrivate looks up a previous submission by idempotency key. ErrNotFound
// means the service never received it.
func (c *ShieldingClient) PollPrivate(ctx context.Context, idemKey string) (*ShieldedReceipt, error) {
	var r ShieldedReceipt
	err := c.retrier.do(ctx, call{
		method:  "GET",
		url:     c.baseURL + "/v1/transfers/by-key/" + url.PathEscape(idemKey),
		headers: c.headers(""),
	}, &r)
	if err != nil {
		return nil, fmt.Errorf("poll shielded transfer: %w", err)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// ShieldMove moves funds between a wallet and its shielded balance. Deposits
// credit the owner's shielded balance; withdrawals pay ToAddress out of it.
type ShieldMove struct {
	Token          models.Token
	Amount         int64
	WalletID       string
	Address        string
	ToAddress      string
	IdempotencyKey string
}

// ShieldBalance is an owner's shielded balance in minor units.
type ShieldBalance struct {
	Token  models.Token `json:"token"`
	Amount int64        `json:"amount"`
}

// Deposit shields funds from the owner's wallet.
func (c *ShieldingClient) Deposit(ctx context.Context, m ShieldMove) (*ShieldedReceipt, error) {
	return c.move(ctx, "/v1/deposits", "shield deposit", m)
}

// Withdraw unshields funds to m.ToAddress.
func (c *ShieldingClient) Withdraw(ctx context.Context, m ShieldMove) (*ShieldedReceipt, error) {
	if m.ToAddress == "" {
		return nil, fmt.Errorf("%w: withdrawal address required", ErrRejected)
	}
	return c.move(ctx, "/v1/withdrawals", "shield withdraw", m)
}

func (c *ShieldingClient) move(ctx context.Context, path, op string, m ShieldMove) (*ShieldedReceipt, error) {
	if m.IdempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotency key required", ErrRejected)
	}
	body := map[string]any{
		"token":     string(m.Token),
		"mint":      m.Token.Mint(),
		"amount":    m.Amount,
		"wallet_id": m.WalletID,
		"owner":     m.Address,
	}
	if m.ToAddress != "" {
		body["to"] = m.ToAddress
	}
	var r ShieldedReceipt
	err := c.retrier.do(ctx, call{
		method:         "POST",
		url:            c.baseURL + path,
		headers:        c.headers(m.IdempotencyKey),
		body:           body,
		idempotencyKey: m.IdempotencyKey,
		mutating:       true,
	}, &r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	c.log.Debug(op+" submitted",
		zap.String("idempotency_key", m.IdempotencyKey),
		zap.String("status", string(r.Status)),
	)
	return &r, nil
}

// Balance returns owner's shielded balance of tok.
func (c *ShieldingClient) Balance(ctx context.Context, owner string, tok models.Token) (*ShieldBalance, error) {
	var b ShieldBalance
	err := c.retrier.do(ctx, call{
		method:  "GET",
		url:     c.baseURL + "/v1/balances/" + url.PathEscape(owner) + "?token=" + url.QueryEscape(string(tok)),
		headers: c.headers(""),
	}, &b)
	if err != nil {
		return nil, fmt.Errorf("shielded balance: %w", err)
	}
	if b.Token == "" {
		b.Token = tok
	}
	return &b, nil
}

func (r *ShieldedReceipt) validate() error {
	switch r.Status {
	case ReceiptSettled, ReceiptPending, ReceiptFailed:
		return nil
	default:
		return fmt.Errorf("%w: unknown receipt status %q", ErrAmbiguousOutcome, r.Status)
	}
}
