package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/solana-agent/backend/internal/app"
	"github.com/solana-agent/backend/internal/config"
	apphttp "github.com/solana-agent/backend/internal/http"
	"github.com/solana-agent/backend/internal/http/dto"
	"github.com/solana-agent/backend/internal/http/handlers"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, "migrations", log)
	if err != nil {
		log.Fatal("failed to start", zap.Error(err))
	}
	defer a.Close()

	wsHub := handlers.NewWSHub(cfg, a.Subscriber, log)
	if err := wsHub.Start(ctx); err != nil {
		log.Fatal("failed to subscribe ws hub", zap.Error(err))
	}

	h := apphttp.Handlers{
		Auth:           handlers.NewAuthHandler(a.Wallets, cfg, log),
		User:           handlers.NewUserHandler(a.Wallets, a.Notify, log),
		Wallet:         handlers.NewWalletHandler(a.Wallets, log),
		Transfer:       handlers.NewTransferHandler(a.Transfers, log),
		PaymentRequest: handlers.NewPaymentRequestHandler(a.Requests, log),
		Swap:           handlers.NewSwapHandler(a.Swaps, log),
		Shield:         handlers.NewShieldHandler(a.Shields, log),
		Audit:          handlers.NewAuditHandler(a.Audit, log),
		Webhook:        handlers.NewWebhookHandler(a.Webhooks, log),
		Bot:            handlers.NewBotHandler(a.Commands, log),
		WS:             wsHub,
	}

	srv := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(dto.ErrorResponse{Error: err.Error()})
		},
	})

	apphttp.SetupRouter(srv, cfg, log, a.Redis, h)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = srv.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := srv.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
