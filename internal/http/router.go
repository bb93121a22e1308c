package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/solana-agent/backend/internal/config"
	"github.com/solana-agent/backend/internal/http/handlers"
	"github.com/solana-agent/backend/internal/middleware"
	"go.uber.org/zap"
)

type Handlers struct {
	Auth           *handlers.AuthHandler
	User           *handlers.UserHandler
	Wallet         *handlers.WalletHandler
	Transfer       *handlers.TransferHandler
	PaymentRequest *handlers.PaymentRequestHandler
	Swap           *handlers.SwapHandler
	Shield         *handlers.ShieldHandler
	Audit          *handlers.AuditHandler
	Webhook        *handlers.WebhookHandler
	Bot            *handlers.BotHandler
	WS             *handlers.WSHub
}

func SetupRouter(app *fiber.App, cfg *config.Config, log *zap.Logger, rdb *redis.Client, h Handlers) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, Idempotency-Key",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Chain webhooks authenticate with the shared secret in the handler.
	app.Post("/webhooks/helius", h.Webhook.Helius)

	// Chat transport
	internal := app.Group("/internal", middleware.InternalTokenMiddleware(cfg.BotInternalToken))
	internal.Post("/bot/updates", h.Bot.Update)

	api := app.Group("/api/v1")

	// Auth (public)
	api.Post("/auth/telegram", h.Auth.TelegramAuth)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log), middleware.RateLimitMiddleware(rdb, 60, time.Minute, log))

	// User
	protected.Get("/me", h.User.GetMe)
	protected.Get("/me/notifications", h.User.Notifications)

	// Wallet
	protected.Get("/me/wallet", h.Wallet.GetWallet)
	protected.Post("/me/wallet", h.Wallet.ProvisionWallet)

	// Transfers
	protected.Post("/transfers/private", h.Transfer.CreatePrivate)
	protected.Post("/transfers/public", h.Transfer.CreatePublic)
	protected.Get("/transfers", h.Transfer.List)
	protected.Get("/transfers/:id", h.Transfer.Get)
	protected.Post("/transfers/:id/cancel", h.Transfer.Cancel)

	// Swaps
	protected.Post("/swaps", h.Swap.Swap)

	// Shielded balance
	protected.Post("/shield/deposits", h.Shield.Deposit)
	protected.Post("/shield/withdrawals", h.Shield.Withdraw)
	protected.Get("/shield/balance", h.Shield.Balance)

	// Payment requests
	protected.Post("/payment-requests", h.PaymentRequest.Create)
	protected.Get("/payment-requests/:id", h.PaymentRequest.Get)
	protected.Post("/payment-requests/:id/pay", h.PaymentRequest.Pay)

	// Admin
	admin := protected.Group("/admin", middleware.AdminMiddleware(cfg))
	admin.Post("/transfers/:id/resume", h.Transfer.Resume)
	admin.Get("/audit/:entity/:id", h.Audit.Trail)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(h.WS.HandleWS))
}
