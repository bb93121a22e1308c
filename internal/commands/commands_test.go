package commands

import (
	"context"
	"strings"
	"testing"

	"github.com/solana-agent/backend/internal/models"
	"github.com/solana-agent/backend/internal/settlement"
	"go.uber.org/zap"
)

func TestHandleIgnoresGroupChats(t *testing.T) {
	// No services are wired: a group message must not reach any of them.
	h := NewHandler(nil, nil, nil, nil, nil, zap.NewNop())
	for _, chatType := range []string{"group", "supergroup", "channel", ""} {
		reply, err := h.Handle(context.Background(), Update{
			ChatID:   -100123,
			ChatType: chatType,
			Text:     "/transfer 1 SOL to @bob",
		})
		if err != nil || !reply.Ignored {
			t.Errorf("chat type %q: reply=%+v err=%v", chatType, reply, err)
		}
	}
}

func TestHandleIgnoresPlainText(t *testing.T) {
	h := NewHandler(nil, nil, nil, nil, nil, zap.NewNop())
	reply, err := h.Handle(context.Background(), Update{ChatType: "private", Text: "hello there"})
	if err != nil || !reply.Ignored {
		t.Errorf("reply=%+v err=%v", reply, err)
	}
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		in       string
		wantCmd  string
		wantArgs int
	}{
		{"/start", "/start", 0},
		{"/Transfer 1 SOL to @bob", "/transfer", 4},
		{"/wallet@solana_agent_bot", "/wallet", 0},
		{"  /accept   10 USDC ", "/accept", 2},
		{"transfer 1 SOL", "", 0},
		{"", "", 0},
	}
	for _, tt := range tests {
		cmd, args := splitCommand(tt.in)
		if cmd != tt.wantCmd || len(args) != tt.wantArgs {
			t.Errorf("splitCommand(%q) = %q, %v", tt.in, cmd, args)
		}
	}
}

func TestParseTransferArgs(t *testing.T) {
	tests := []struct {
		args       string
		wantAmount int64
		wantToken  models.Token
		wantPayee  string
		wantErr    bool
	}{
		{"1.5 SOL to @bob", 1_500_000_000, models.TokenSOL, "@bob", false},
		{"10 usdc @alice", 10_000_000, models.TokenUSDC, "@alice", false},
		{"$5 USDC TO @carol", 5_000_000, models.TokenUSDC, "@carol", false},
		{"1 BONK to @bob", 0, "", "", true},
		{"abc SOL to @bob", 0, "", "", true},
		{"1 SOL", 0, "", "", true},
		{"0.0000000001 SOL to @bob", 0, "", "", true},
	}
	for _, tt := range tests {
		amount, tok, payee, err := parseTransferArgs(strings.Fields(tt.args))
		if tt.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tt.args)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", tt.args, err)
			continue
		}
		if amount != tt.wantAmount || tok != tt.wantToken || payee != tt.wantPayee {
			t.Errorf("%q = %d %s %s", tt.args, amount, tok, payee)
		}
	}
}

func TestIntentReply(t *testing.T) {
	reason := "insufficient <funds>"
	failed := &models.TransferIntent{Token: models.TokenSOL, Amount: 1_000_000_000, Status: models.IntentStatusFailed, FailureReason: &reason}
	if r := intentReply(failed); !strings.Contains(r.Text, "failed") || !strings.Contains(r.Text, "&lt;funds&gt;") {
		t.Errorf("failed reply = %q", r.Text)
	}
	settled := &models.TransferIntent{Token: models.TokenUSDC, Amount: 2_500_000, Status: models.IntentStatusSettled}
	if r := intentReply(settled); !strings.Contains(r.Text, "2.5 USDC") {
		t.Errorf("settled reply = %q", r.Text)
	}
}

func TestParseShieldArgs(t *testing.T) {
	amount, tok, err := parseShieldArgs([]string{"0.5", "sol"})
	if err != nil || amount != 500_000_000 || tok != models.TokenSOL {
		t.Errorf("parseShieldArgs = %d %s %v", amount, tok, err)
	}
	for _, args := range [][]string{nil, {"1"}, {"1", "DOGE"}, {"abc", "USDC"}, {"1", "USDC", "extra"}} {
		if _, _, err := parseShieldArgs(args); err != errUsage {
			t.Errorf("%q: err = %v, want usage", args, err)
		}
	}
}

func TestShieldReply(t *testing.T) {
	done := shieldReply("Deposit", 500_000_000, models.TokenSOL, &settlement.ShieldedReceipt{Status: settlement.ReceiptSettled, Fee: 1_000_000})
	if !strings.Contains(done.Text, "0.5 SOL complete") || !strings.Contains(done.Text, "0.001 SOL") {
		t.Errorf("settled reply = %q", done.Text)
	}
	failed := shieldReply("Withdrawal", 2_500_000, models.TokenUSDC, &settlement.ShieldedReceipt{Status: settlement.ReceiptFailed, Error: "not <enough>"})
	if !strings.Contains(failed.Text, "failed") || !strings.Contains(failed.Text, "&lt;enough&gt;") {
		t.Errorf("failed reply = %q", failed.Text)
	}
	pending := shieldReply("Deposit", 1, models.TokenUSDC, &settlement.ShieldedReceipt{Status: settlement.ReceiptPending})
	if !strings.Contains(pending.Text, "processing") {
		t.Errorf("pending reply = %q", pending.Text)
	}
}
