// Package app wires repositories, provider clients and services for the
// binaries under cmd/.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/solana-agent/backend/internal/commands"
	"github.com/solana-agent/backend/internal/config"
	"github.com/solana-agent/backend/internal/db"
	"github.com/solana-agent/backend/internal/events"
	"github.com/solana-agent/backend/internal/repositories"
	"github.com/solana-agent/backend/internal/services"
	"github.com/solana-agent/backend/internal/settlement"
	"go.uber.org/zap"
)

type App struct {
	Config *config.Config
	Pool   *pgxpool.Pool
	Redis  *redis.Client

	Ledger     *repositories.LedgerRepo
	Audit      *repositories.AuditRepo
	Publisher  *events.RedisPublisher
	Subscriber *events.RedisSubscriber

	Wallets   *services.WalletService
	Notify    *services.NotifyService
	Transfers *services.TransferService
	Webhooks  *services.WebhookService
	Requests  *services.PaymentRequestService
	Swaps     *services.SwapService
	Shields   *services.ShieldService
	Commands  *commands.Handler
}

// New connects to postgres and redis and builds every service. Migrations
// run only when migrationsDir is set.
func New(ctx context.Context, cfg *config.Config, migrationsDir string, log *zap.Logger) (*App, error) {
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: int32(cfg.PostgresMaxConns)}, log)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if migrationsDir != "" {
		if err := db.RunMigrations(ctx, pool, migrationsDir, log); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	a := &App{Config: cfg, Pool: pool, Redis: rdb}
	if err := a.wire(log); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(log *zap.Logger) error {
	cfg := a.Config

	// Repositories
	userRepo := repositories.NewUserRepo(a.Pool)
	walletRepo := repositories.NewWalletRepo(a.Pool)
	a.Ledger = repositories.NewLedgerRepo(a.Pool)
	notificationRepo := repositories.NewNotificationRepo(a.Pool)
	requestRepo := repositories.NewPaymentRequestRepo(a.Pool)
	auditRepo := repositories.NewAuditRepo(a.Pool)
	a.Audit = auditRepo

	// Events
	a.Publisher = events.NewRedisPublisher(a.Redis, log)
	a.Subscriber = events.NewRedisSubscriber(a.Redis, log)

	// Providers
	retrier := settlement.NewRetrier(cfg.SettlementTimeout, cfg.SettlementMaxAttempts)
	custody := settlement.NewCustodyClient(cfg.PrivyAPIURL, cfg.PrivyAppID, cfg.PrivyAppSecret, retrier, log)
	shielding := settlement.NewShieldingClient(cfg.PrivacyCashURL, cfg.PrivacyCashAPIKey, retrier, log)
	public, err := settlement.NewPublicAdapter(cfg.HeliusRPCURL, cfg.FeePayer, custody, log)
	if err != nil {
		return fmt.Errorf("public adapter: %w", err)
	}
	swapper := settlement.NewSwapClient(cfg.JupiterAPIURL, cfg.JupiterAPIKey, custody, retrier, log)

	// Services
	botClient := services.NewBotClient(cfg.BotInternalURL, cfg.BotInternalToken, log)
	a.Wallets = services.NewWalletService(userRepo, walletRepo, custody, auditRepo, log)
	a.Notify = services.NewNotifyService(notificationRepo, a.Ledger, userRepo, walletRepo, botClient, a.Publisher,
		cfg.NotifyMaxAttempts, cfg.NotifyBackoff, log)
	a.Transfers = services.NewTransferService(a.Ledger, a.Wallets, shielding, public, a.Notify, auditRepo,
		services.TransferOptions{PollTimeout: cfg.SettlementPollTimeout}, log)
	a.Webhooks = services.NewWebhookService(cfg.HeliusWebhookSecret, a.Ledger, a.Wallets, a.Transfers, a.Notify, auditRepo,
		append([]string{public.FeePayerAddress()}, cfg.ShieldPoolAddresses...), log)
	a.Requests = services.NewPaymentRequestService(requestRepo, a.Wallets, a.Transfers, cfg.BotUsername, cfg.PaymentRequestTTL, log)
	a.Swaps = services.NewSwapService(a.Wallets, swapper, auditRepo, log)
	a.Shields = services.NewShieldService(a.Wallets, shielding, auditRepo, log)
	a.Commands = commands.NewHandler(a.Wallets, a.Transfers, a.Requests, a.Swaps, a.Shields, log)
	return nil
}

func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
