package config

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SETTLEMENT_MAX_ATTEMPTS", "")
	t.Setenv("NOTIFY_BACKOFF_MS", "")

	cfg := Load()
	if cfg.SettlementMaxAttempts != 3 {
		t.Errorf("SettlementMaxAttempts = %d, want 3", cfg.SettlementMaxAttempts)
	}
	if cfg.NotifyBackoff != 500*time.Millisecond {
		t.Errorf("NotifyBackoff = %s, want 500ms", cfg.NotifyBackoff)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SETTLEMENT_TIMEOUT_MS", "1500")
	t.Setenv("ADMIN_TELEGRAM_IDS", "10, 20,bad,30")
	t.Setenv("BOT_TOKEN", "bot-token")
	t.Setenv("WEBAPP_SECRET", "")

	cfg := Load()
	if cfg.SettlementTimeout != 1500*time.Millisecond {
		t.Errorf("SettlementTimeout = %s", cfg.SettlementTimeout)
	}
	if len(cfg.AdminTelegramIDs) != 3 {
		t.Fatalf("AdminTelegramIDs = %v, want 3 ids", cfg.AdminTelegramIDs)
	}
	if !cfg.IsAdmin(20) || cfg.IsAdmin(40) {
		t.Error("IsAdmin mismatch")
	}
	if cfg.WebAppSecret != "bot-token" {
		t.Errorf("WebAppSecret should fall back to BOT_TOKEN, got %q", cfg.WebAppSecret)
	}
}

func TestLoadShieldPoolAddresses(t *testing.T) {
	t.Setenv("SHIELD_POOL_ADDRESSES", " PoolA, ,RelayerB ")

	cfg := Load()
	if len(cfg.ShieldPoolAddresses) != 2 || cfg.ShieldPoolAddresses[0] != "PoolA" || cfg.ShieldPoolAddresses[1] != "RelayerB" {
		t.Errorf("ShieldPoolAddresses = %q", cfg.ShieldPoolAddresses)
	}
}

func TestGetEnvIntFallback(t *testing.T) {
	t.Setenv("SOME_INT", "not-a-number")
	if v := getEnvInt("SOME_INT", 7); v != 7 {
		t.Errorf("getEnvInt = %d, want 7", v)
	}
}

func TestValidateClampsAttempts(t *testing.T) {
	cfg := &Config{SettlementMaxAttempts: 0, NotifyMaxAttempts: -1}
	cfg.Validate(zap.NewNop())
	if cfg.SettlementMaxAttempts != 1 || cfg.NotifyMaxAttempts != 1 {
		t.Errorf("attempts not clamped: %d %d", cfg.SettlementMaxAttempts, cfg.NotifyMaxAttempts)
	}
}
