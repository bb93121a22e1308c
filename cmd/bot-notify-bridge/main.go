package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/solana-agent/backend/internal/app"
	"github.com/solana-agent/backend/internal/config"
	"github.com/solana-agent/backend/internal/events"
	"github.com/solana-agent/backend/internal/services"
	"go.uber.org/zap"
)

// Bot Notify Bridge delivers notification jobs as soon as they are published.
// Jobs missed while it is down are picked up by the worker sweep.

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, "", log)
	if err != nil {
		log.Fatal("failed to start", zap.Error(err))
	}
	defer a.Close()

	err = a.Subscriber.Subscribe(ctx, func(_ string, event events.Event) {
		deliver(ctx, a.Notify, event, log)
	}, events.ChannelNotify)
	if err != nil {
		log.Fatal("failed to subscribe", zap.Error(err))
	}

	log.Info("bot-notify-bridge started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down bot-notify-bridge")
	cancel()
}

func deliver(ctx context.Context, notify *services.NotifyService, event events.Event, log *zap.Logger) {
	if event.Type != events.EventNotificationQueued {
		return
	}
	raw, _ := event.Payload["job_id"].(string)
	jobID, err := uuid.Parse(raw)
	if err != nil {
		log.Warn("notification event without job id", zap.Any("payload", event.Payload))
		return
	}

	res, err := notify.Deliver(ctx, jobID)
	if err != nil {
		log.Warn("notification delivery failed", zap.String("job_id", raw), zap.Error(err))
		return
	}
	log.Debug("notification handled", zap.String("job_id", raw), zap.Stringer("result", res))
}
