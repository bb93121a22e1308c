package services

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/solana-agent/backend/internal/chain"
	"github.com/solana-agent/backend/internal/models"
)

// renderNotification builds the HTML chat message for one job. counterparty
// is the other side of the transfer as the recipient should see it.
func renderNotification(intent *models.TransferIntent, role models.NotificationRole, counterparty string) string {
	amount := chain.FormatAmount(intent.Amount, intent.Token)
	cp := html.EscapeString(counterparty)

	var b strings.Builder
	if intent.Kind == models.IntentKindPrivate {
		fee := intent.FeeAmount
		if fee <= 0 {
			fee = chain.EstimatePrivateFee(intent.Amount, intent.Token, decimal.Zero).Total
		}
		net := intent.Amount - fee
		if net < 0 {
			net = 0
		}
		if role == models.RolePayee {
			b.WriteString("🔒 <b>Private Payment Received</b>\n\n")
			fmt.Fprintf(&b, "<b>From:</b> %s\n", cp)
		} else {
			b.WriteString("✅ <b>Private Payment Sent</b>\n\n")
			fmt.Fprintf(&b, "<b>To:</b> %s\n", cp)
		}
		fmt.Fprintf(&b, "<b>Amount:</b> %s %s\n", amount, intent.Token)
		fmt.Fprintf(&b, "Fees: %s %s\n", chain.FormatAmount(fee, intent.Token), intent.Token)
		fmt.Fprintf(&b, "<b>Recipient receives: %s %s</b>\n", chain.FormatAmount(net, intent.Token), intent.Token)
		b.WriteString("\nThis transfer is private and has no public explorer link.")
		return b.String()
	}

	if role == models.RolePayee {
		b.WriteString("💰 <b>Payment Received!</b>\n\n")
		fmt.Fprintf(&b, "<b>From:</b> %s\n", cp)
	} else {
		b.WriteString("✅ <b>Payment Sent</b>\n\n")
		fmt.Fprintf(&b, "<b>To:</b> %s\n", cp)
	}
	fmt.Fprintf(&b, "<b>Amount:</b> %s %s", amount, intent.Token)
	if intent.TxSignature != nil && *intent.TxSignature != "" {
		fmt.Fprintf(&b, "\n\n<a href='%s'>View on Explorer</a>", chain.ExplorerTxURL(*intent.TxSignature))
	}
	return b.String()
}
