// Package commands turns chat messages relayed by the bot transport into
// wallet, transfer and payment-request operations.
package commands

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"
	"github.com/solana-agent/backend/internal/chain"
	"github.com/solana-agent/backend/internal/models"
	"github.com/solana-agent/backend/internal/repositories"
	"github.com/solana-agent/backend/internal/services"
	"github.com/solana-agent/backend/internal/settlement"
	"go.uber.org/zap"
)

// Update is one incoming chat message.
type Update struct {
	ChatID         int64  `json:"chat_id"`
	ChatType       string `json:"chat_type"`
	MessageID      int64  `json:"message_id"`
	TelegramUserID int64  `json:"telegram_user_id"`
	Username       string `json:"username"`
	Text           string `json:"text"`
}

// Reply is what the bot should answer. Ignored updates get no answer.
type Reply struct {
	Text      string `json:"text,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
	Ignored   bool   `json:"ignored,omitempty"`
}

func htmlReply(format string, args ...any) *Reply {
	return &Reply{Text: fmt.Sprintf(format, args...), ParseMode: "HTML"}
}

type Handler struct {
	directory *services.WalletService
	transfers *services.TransferService
	requests  *services.PaymentRequestService
	swaps     *services.SwapService
	shields   *services.ShieldService
	log       *zap.Logger
}

func NewHandler(
	directory *services.WalletService,
	transfers *services.TransferService,
	requests *services.PaymentRequestService,
	swaps *services.SwapService,
	shields *services.ShieldService,
	log *zap.Logger,
) *Handler {
	return &Handler{
		directory: directory,
		transfers: transfers,
		requests:  requests,
		swaps:     swaps,
		shields:   shields,
		log:       log,
	}
}

// Handle processes one update. Only private one-to-one chats are served;
// anything else is ignored without side effects. A returned error means the
// transport should retry the update.
func (h *Handler) Handle(ctx context.Context, u Update) (*Reply, error) {
	if u.ChatType != "private" {
		h.log.Debug("ignoring non-private chat", zap.Int64("chat_id", u.ChatID), zap.String("chat_type", u.ChatType))
		return &Reply{Ignored: true}, nil
	}
	cmd, args := splitCommand(u.Text)
	if cmd == "" {
		return &Reply{Ignored: true}, nil
	}

	user, err := h.directory.EnsureUser(ctx, u.TelegramUserID, u.Username)
	if err != nil {
		return nil, err
	}

	var reply *Reply
	switch cmd {
	case "/start":
		reply, err = h.start(ctx, user, args)
	case "/wallet":
		reply, err = h.wallet(ctx, user)
	case "/transfer":
		reply, err = h.transfer(ctx, u, user, args, models.IntentKindPrivate)
	case "/send":
		reply, err = h.transfer(ctx, u, user, args, models.IntentKindPublic)
	case "/accept":
		reply, err = h.accept(ctx, user, args)
	case "/pay":
		reply, err = h.pay(ctx, user, args)
	case "/cancel":
		reply, err = h.cancel(ctx, user, args)
	case "/swap":
		reply, err = h.swap(ctx, user, args)
	case "/shield_deposit":
		reply, err = h.shieldDeposit(ctx, u, user, args)
	case "/shield_withdraw":
		reply, err = h.shieldWithdraw(ctx, u, user, args)
	case "/shield_balance":
		reply, err = h.shieldBalance(ctx, user, args)
	case "/help":
		reply = &Reply{Text: helpText}
	default:
		reply = &Reply{Text: "Unknown command. Send /help to see what I can do."}
	}
	if err != nil {
		return h.explain(err)
	}
	return reply, nil
}

// explain turns service errors the user can act on into replies.
func (h *Handler) explain(err error) (*Reply, error) {
	var v *services.ValidationError
	switch {
	case errors.As(err, &v):
		return &Reply{Text: "❌ " + v.Msg}, nil
	case errors.Is(err, services.ErrProvisioningFailed):
		return &Reply{Text: "❌ Could not create your wallet right now. Please try /start again in a minute."}, nil
	case errors.Is(err, services.ErrIdempotencyMismatch):
		return &Reply{Text: "❌ This message was already used for a different transfer."}, nil
	case errors.Is(err, services.ErrCancelled):
		return &Reply{Text: "❌ This transfer is already being processed and can no longer be cancelled."}, nil
	case errors.Is(err, services.ErrForbidden), errors.Is(err, repositories.ErrNotFound):
		return &Reply{Text: "❌ Transfer not found."}, nil
	case errors.Is(err, settlement.ErrRejected):
		return &Reply{Text: "❌ The request was refused: " + err.Error()}, nil
	}
	return nil, err
}

const helpText = `Commands:
/wallet - show your wallet address
/transfer <amount> <SOL|USDC> to <@user> - private transfer
/send <amount> <SOL|USDC> to <@user|address> - public transfer
/accept <amount> <SOL|USDC> - request a private payment
/swap <amount> <SOL|USDC> <token> - swap tokens
/shield_deposit <amount> <SOL|USDC> - move funds into your shielded balance
/shield_withdraw <amount> <SOL|USDC> [to <@user|address>] - move shielded funds out
/shield_balance <SOL|USDC> - show your shielded balance
/cancel <transfer id> - cancel a transfer that has not started`

// splitCommand returns the lowercased command without a @botname suffix,
// and the remaining arguments.
func splitCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	cmd := strings.ToLower(fields[0])
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	return cmd, fields[1:]
}

func (h *Handler) start(ctx context.Context, user *models.User, args []string) (*Reply, error) {
	w, err := h.directory.Provision(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if len(args) > 0 {
		if id, ok := strings.CutPrefix(args[0], "pay_priv_"); ok {
			return h.describeRequest(ctx, id)
		}
		if id, ok := strings.CutPrefix(args[0], "pay_"); ok {
			return h.describeRequest(ctx, id)
		}
	}
	return htmlReply("👋 Welcome!\n\nYour wallet:\n<code>%s</code>\n\nSend /help to see what I can do.", w.Address), nil
}

func (h *Handler) describeRequest(ctx context.Context, id string) (*Reply, error) {
	req, err := h.requests.Get(ctx, id)
	if err == nil && req.Status == models.PaymentRequestPaying {
		return &Reply{Text: "⏳ This payment request is already being paid."}, nil
	}
	if err != nil || req.Status != models.PaymentRequestPending {
		return &Reply{Text: "⚠️ Payment request not found or expired."}, nil
	}
	payee := models.ShortAddress(req.WalletAddress)
	if u, err := h.directory.GetUser(ctx, req.PayeeUserID); err == nil && u.Display() != "" {
		payee = u.Display()
	}
	title := "Payment Request"
	if req.IsPrivate {
		title = "🔒 Private Payment Request"
	}
	return htmlReply("<b>%s</b>\n\n<b>Amount:</b> %s %s\n<b>To:</b> %s\n\nConfirm with /pay %s",
		title, chain.FormatAmount(req.Amount, req.Token), req.Token, html.EscapeString(payee), req.ID), nil
}

func (h *Handler) wallet(ctx context.Context, user *models.User) (*Reply, error) {
	w, err := h.directory.Provision(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return htmlReply("👛 <b>Your wallet</b>\n\n<code>%s</code>", w.Address), nil
}

// parseTransferArgs reads "<amount> <token> [to] <payee>".
func parseTransferArgs(args []string) (int64, models.Token, string, error) {
	if len(args) == 4 && strings.EqualFold(args[2], "to") {
		args = []string{args[0], args[1], args[3]}
	}
	if len(args) != 3 {
		return 0, "", "", errUsage
	}
	tok, ok := models.ParseToken(args[1])
	if !ok {
		return 0, "", "", errUsage
	}
	amount, err := chain.ParseAmount(args[0], tok)
	if err != nil {
		return 0, "", "", errUsage
	}
	return amount, tok, args[2], nil
}

var errUsage = errors.New("usage")

func (h *Handler) transfer(ctx context.Context, u Update, user *models.User, args []string, kind models.IntentKind) (*Reply, error) {
	amount, tok, payee, err := parseTransferArgs(args)
	if err != nil {
		cmd := "/transfer"
		if kind == models.IntentKindPublic {
			cmd = "/send"
		}
		return &Reply{Text: fmt.Sprintf("Usage: %s <amount> <SOL|USDC> to <@user>\nExample: %s 1.5 SOL to @alice", cmd, cmd)}, nil
	}

	req := services.TransferRequest{
		IntentID:    services.ChatIntentID(u.ChatID, u.MessageID),
		PayerUserID: user.ID,
		Token:       tok,
		Amount:      amount,
		Payee:       payee,
	}
	var intent *models.TransferIntent
	if kind == models.IntentKindPrivate {
		intent, err = h.transfers.ExecutePrivate(ctx, req)
	} else {
		intent, err = h.transfers.ExecutePublic(ctx, req)
	}
	if errors.Is(err, services.ErrOutcomePending) {
		return htmlReply("⏳ Transfer submitted and waiting for confirmation. You will get a message once it settles.\n\nID: <code>%s</code>", intent.ID), nil
	}
	if err != nil {
		return nil, err
	}
	return intentReply(intent), nil
}

func intentReply(intent *models.TransferIntent) *Reply {
	amount := chain.FormatAmount(intent.Amount, intent.Token)
	switch intent.Status {
	case models.IntentStatusSettled:
		// The notification carries the details.
		return htmlReply("✅ Sent %s %s.", amount, intent.Token)
	case models.IntentStatusFailed:
		reason := "unknown error"
		if intent.FailureReason != nil {
			reason = *intent.FailureReason
		}
		return htmlReply("❌ Transfer of %s %s failed: %s", amount, intent.Token, html.EscapeString(reason))
	default:
		return htmlReply("⏳ Transfer of %s %s is processing.\n\nID: <code>%s</code>", amount, intent.Token, intent.ID)
	}
}

func (h *Handler) accept(ctx context.Context, user *models.User, args []string) (*Reply, error) {
	if len(args) != 2 {
		return &Reply{Text: "Usage: /accept <amount> <SOL|USDC>\nExample: /accept 10 USDC"}, nil
	}
	tok, ok := models.ParseToken(args[1])
	if !ok {
		return &Reply{Text: "❌ Please choose SOL or USDC."}, nil
	}
	amount, err := chain.ParseAmount(args[0], tok)
	if err != nil {
		return &Reply{Text: "❌ Couldn't understand that amount. Try: /accept 5 SOL"}, nil
	}
	req, err := h.requests.Create(ctx, user.ID, tok, amount, true)
	if err != nil {
		return nil, err
	}
	return htmlReply("🔒 <b>Private Payment Request</b>\n\n<b>Amount:</b> %s %s\n\nShare this link to get paid:\n%s",
		chain.FormatAmount(amount, tok), tok, h.requests.DeepLink(req)), nil
}

func (h *Handler) pay(ctx context.Context, user *models.User, args []string) (*Reply, error) {
	if len(args) != 1 {
		return &Reply{Text: "Usage: /pay <request id>"}, nil
	}
	intent, err := h.requests.Pay(ctx, args[0], user.ID)
	if errors.Is(err, services.ErrOutcomePending) {
		return htmlReply("⏳ Payment submitted and waiting for confirmation.\n\nID: <code>%s</code>", intent.ID), nil
	}
	if err != nil {
		return nil, err
	}
	return intentReply(intent), nil
}

func (h *Handler) cancel(ctx context.Context, user *models.User, args []string) (*Reply, error) {
	if len(args) != 1 {
		return &Reply{Text: "Usage: /cancel <transfer id>"}, nil
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return &Reply{Text: "❌ That is not a transfer id."}, nil
	}
	if _, err := h.transfers.Cancel(ctx, id, user.ID); err != nil {
		return nil, err
	}
	return &Reply{Text: "🚫 Transfer cancelled."}, nil
}

func (h *Handler) swap(ctx context.Context, user *models.User, args []string) (*Reply, error) {
	if len(args) != 3 {
		return &Reply{Text: "Usage: /swap <amount> <SOL|USDC> <token>\nExample: /swap 1 SOL USDC"}, nil
	}
	tok, ok := models.ParseToken(args[1])
	if !ok {
		return &Reply{Text: "❌ You can swap from SOL or USDC."}, nil
	}
	amount, err := chain.ParseAmount(args[0], tok)
	if err != nil {
		return &Reply{Text: "❌ Couldn't understand that amount."}, nil
	}
	receipt, err := h.swaps.Swap(ctx, user.ID, args[1], args[2], amount)
	if err != nil {
		return nil, err
	}
	return htmlReply("🔄 Swap executed.\n\n<a href='%s'>View on Explorer</a>", chain.ExplorerTxURL(receipt.Signature)), nil
}

// parseShieldArgs reads "<amount> <token>".
func parseShieldArgs(args []string) (int64, models.Token, error) {
	if len(args) != 2 {
		return 0, "", errUsage
	}
	tok, ok := models.ParseToken(args[1])
	if !ok {
		return 0, "", errUsage
	}
	amount, err := chain.ParseAmount(args[0], tok)
	if err != nil {
		return 0, "", errUsage
	}
	return amount, tok, nil
}

func shieldReply(verb string, amount int64, tok models.Token, r *settlement.ShieldedReceipt) *Reply {
	switch r.Status {
	case settlement.ReceiptFailed:
		reason := r.Error
		if reason == "" {
			reason = "unknown error"
		}
		return htmlReply("❌ %s of %s %s failed: %s", verb, chain.FormatAmount(amount, tok), tok, html.EscapeString(reason))
	case settlement.ReceiptPending:
		return htmlReply("⏳ %s of %s %s is processing.", verb, chain.FormatAmount(amount, tok), tok)
	default:
		return htmlReply("🔒 %s of %s %s complete.\nFee: %s %s", verb, chain.FormatAmount(amount, tok), tok,
			chain.FormatAmount(r.Fee, tok), tok)
	}
}

func (h *Handler) shieldDeposit(ctx context.Context, u Update, user *models.User, args []string) (*Reply, error) {
	amount, tok, err := parseShieldArgs(args)
	if err != nil {
		return &Reply{Text: "Usage: /shield_deposit <amount> <SOL|USDC>\nExample: /shield_deposit 0.5 SOL"}, nil
	}
	r, err := h.shields.Deposit(ctx, user.ID, services.ChatIntentID(u.ChatID, u.MessageID), tok, amount)
	if err != nil {
		return nil, err
	}
	return shieldReply("Deposit", amount, tok, r), nil
}

func (h *Handler) shieldWithdraw(ctx context.Context, u Update, user *models.User, args []string) (*Reply, error) {
	var to string
	switch {
	case len(args) == 4 && strings.EqualFold(args[2], "to"):
		to, args = args[3], args[:2]
	case len(args) == 3 && !strings.EqualFold(args[2], "to"):
		to, args = args[2], args[:2]
	}
	amount, tok, err := parseShieldArgs(args)
	if err != nil {
		return &Reply{Text: "Usage: /shield_withdraw <amount> <SOL|USDC> [to <@user|address>]\nExample: /shield_withdraw 5 USDC to @alice"}, nil
	}
	r, err := h.shields.Withdraw(ctx, user.ID, services.ChatIntentID(u.ChatID, u.MessageID), tok, amount, to)
	if err != nil {
		return nil, err
	}
	return shieldReply("Withdrawal", amount, tok, r), nil
}

func (h *Handler) shieldBalance(ctx context.Context, user *models.User, args []string) (*Reply, error) {
	if len(args) != 1 {
		return &Reply{Text: "Usage: /shield_balance <SOL|USDC>\nExample: /shield_balance USDC"}, nil
	}
	tok, ok := models.ParseToken(args[0])
	if !ok {
		return &Reply{Text: "❌ Please choose SOL or USDC."}, nil
	}
	b, err := h.shields.Balance(ctx, user.ID, tok)
	if err != nil {
		return nil, err
	}
	return htmlReply("🔒 Shielded balance: <b>%s %s</b>", chain.FormatAmount(b.Amount, b.Token), b.Token), nil
}
