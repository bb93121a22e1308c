package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/solana-agent/backend/internal/app"
	"github.com/solana-agent/backend/internal/config"
	"github.com/solana-agent/backend/internal/models"
	"github.com/solana-agent/backend/internal/repositories"
	"github.com/solana-agent/backend/internal/services"
	"go.uber.org/zap"
)

const batchSize = 100

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, "", log)
	if err != nil {
		log.Fatal("failed to start", zap.Error(err))
	}
	defer a.Close()

	log.Info("worker started")

	// Run jobs on tickers
	resumeTicker := time.NewTicker(30 * time.Second)
	confirmTicker := time.NewTicker(15 * time.Second)
	notifyTicker := time.NewTicker(time.Minute)
	expireTicker := time.NewTicker(10 * time.Minute)
	defer resumeTicker.Stop()
	defer confirmTicker.Stop()
	defer notifyTicker.Stop()
	defer expireTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-resumeTicker.C:
			runResumePending(ctx, a.Ledger, a.Transfers, cfg.PendingResumeAfter, log)
			runResumeNotifying(ctx, a.Ledger, a.Transfers, cfg.PendingResumeAfter, log)
			if n, err := a.Requests.ReconcileClaims(ctx, cfg.PendingResumeAfter, batchSize); err != nil {
				log.Error("failed to reconcile payment request claims", zap.Error(err))
			} else if n > 0 {
				log.Info("reconciled payment request claims", zap.Int("count", n))
			}
		case <-confirmTicker.C:
			runConfirmPublic(ctx, a.Ledger, a.Transfers, log)
		case <-notifyTicker.C:
			if n := a.Notify.RedeliverPending(ctx, time.Minute, batchSize); n > 0 {
				log.Info("redelivered notifications", zap.Int("count", n))
			}
		case <-expireTicker.C:
			n, err := a.Requests.ExpireOverdue(ctx)
			if err != nil {
				log.Error("failed to expire payment requests", zap.Error(err))
			} else if n > 0 {
				log.Info("expired payment requests", zap.Int64("count", n))
			}
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// runResumePending drives intents whose request died mid-flight to a
// terminal state.
func runResumePending(ctx context.Context, ledger *repositories.LedgerRepo, transfers *services.TransferService, olderThan time.Duration, log *zap.Logger) {
	intents, err := ledger.ListStalePending(ctx, olderThan, batchSize)
	if err != nil {
		log.Error("failed to list stale intents", zap.Error(err))
		return
	}

	for i := range intents {
		intent := &intents[i]
		log.Info("resuming pending intent",
			zap.String("intent_id", intent.ID.String()),
			zap.String("kind", string(intent.Kind)),
			zap.String("stage", string(intent.Stage)),
		)
		res, err := transfers.Resume(ctx, intent)
		if err != nil {
			log.Warn("resume did not finish", zap.String("intent_id", intent.ID.String()), zap.Error(err))
			continue
		}
		log.Info("intent resumed", zap.String("intent_id", res.ID.String()), zap.String("status", string(res.Status)))
	}
}

// runResumeNotifying enqueues notifications for settled intents whose
// enqueue failed or was interrupted.
func runResumeNotifying(ctx context.Context, ledger *repositories.LedgerRepo, transfers *services.TransferService, olderThan time.Duration, log *zap.Logger) {
	intents, err := ledger.ListStaleNotifying(ctx, olderThan, batchSize)
	if err != nil {
		log.Error("failed to list settled intents awaiting notification", zap.Error(err))
		return
	}

	for i := range intents {
		res, err := transfers.Resume(ctx, &intents[i])
		if err != nil {
			log.Warn("notification enqueue retry failed", zap.String("intent_id", intents[i].ID.String()), zap.Error(err))
			continue
		}
		if res.Stage != models.StageDone {
			log.Warn("intent still awaiting notification", zap.String("intent_id", res.ID.String()))
		}
	}
}

func runConfirmPublic(ctx context.Context, ledger *repositories.LedgerRepo, transfers *services.TransferService, log *zap.Logger) {
	intents, err := ledger.ListSubmittedPublic(ctx, batchSize)
	if err != nil {
		log.Error("failed to list submitted public intents", zap.Error(err))
		return
	}

	for i := range intents {
		if _, err := transfers.ConfirmPublic(ctx, &intents[i]); err != nil {
			log.Warn("confirm public intent failed", zap.String("intent_id", intents[i].ID.String()), zap.Error(err))
		}
	}
}
