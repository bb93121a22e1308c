package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/solana-agent/backend/internal/events"
	"github.com/solana-agent/backend/internal/metrics"
	"github.com/solana-agent/backend/internal/models"
	"github.com/solana-agent/backend/internal/repositories"
	"go.uber.org/zap"
)

type DeliveryResult int

const (
	Delivered DeliveryResult = iota
	DeliveryFailed
	// DeliverySkipped means another dispatcher holds the job or it already failed.
	DeliverySkipped
)

func (r DeliveryResult) String() string {
	switch r {
	case Delivered:
		return "delivered"
	case DeliveryFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// NotifyService is the notification dispatcher. Jobs are unique per
// (intent, role); the delivered flag makes redelivery a no-op.
type NotifyService struct {
	jobs        NotificationStore
	ledger      Ledger
	users       UserStore
	wallets     WalletStore
	sender      ChatSender
	publisher   events.Publisher
	maxAttempts int
	backoff     time.Duration
	lease       time.Duration
	log         *zap.Logger
}

func NewNotifyService(
	jobs NotificationStore,
	ledger Ledger,
	users UserStore,
	wallets WalletStore,
	sender ChatSender,
	publisher events.Publisher,
	maxAttempts int,
	backoff time.Duration,
	log *zap.Logger,
) *NotifyService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &NotifyService{
		jobs:        jobs,
		ledger:      ledger,
		users:       users,
		wallets:     wallets,
		sender:      sender,
		publisher:   publisher,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		lease:       2 * time.Minute,
		log:         log,
	}
}

// EnqueueForIntent creates the payer and payee jobs for a settled intent.
// Sides without a known wallet are skipped. Jobs that already exist are not
// published again.
func (s *NotifyService) EnqueueForIntent(ctx context.Context, intent *models.TransferIntent) ([]*models.NotificationJob, error) {
	var created []*models.NotificationJob
	sides := []struct {
		walletID *uuid.UUID
		role     models.NotificationRole
	}{
		{intent.PayerWalletID, models.RolePayer},
		{intent.PayeeWalletID, models.RolePayee},
	}
	for _, side := range sides {
		if side.walletID == nil {
			continue
		}
		w, err := s.wallets.GetByID(ctx, *side.walletID)
		if err != nil {
			return created, fmt.Errorf("resolve %s wallet: %w", side.role, err)
		}
		job, err := s.jobs.Enqueue(ctx, intent.ID, w.UserID, side.role)
		if err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				continue
			}
			return created, fmt.Errorf("enqueue %s notification: %w", side.role, err)
		}
		created = append(created, job)
		s.publish(ctx, job)
	}
	return created, nil
}

func (s *NotifyService) publish(ctx context.Context, job *models.NotificationJob) {
	err := s.publisher.Publish(ctx, events.ChannelNotify, events.Event{
		Type: events.EventNotificationQueued,
		Payload: map[string]any{
			"job_id":    job.ID.String(),
			"intent_id": job.IntentID.String(),
			"user_id":   job.RecipientUserID.String(),
			"role":      string(job.Role),
		},
	})
	if err != nil {
		// The worker sweep picks the job up later.
		s.log.Warn("failed to publish notification job", zap.String("job_id", job.ID.String()), zap.Error(err))
	}
}

// Deliver sends one job with bounded retries.
func (s *NotifyService) Deliver(ctx context.Context, jobID uuid.UUID) (DeliveryResult, error) {
	// 1. Claim the job so only one dispatcher works on it
	job, err := s.jobs.Claim(ctx, jobID, s.lease)
	if err != nil {
		if !errors.Is(err, repositories.ErrConflict) {
			return DeliveryFailed, fmt.Errorf("claim job: %w", err)
		}
		current, gerr := s.jobs.GetByID(ctx, jobID)
		if gerr != nil {
			return DeliveryFailed, gerr
		}
		if current.Delivered() {
			return Delivered, nil
		}
		return DeliverySkipped, nil
	}

	// 2. Render
	intent, err := s.ledger.GetIntent(ctx, job.IntentID)
	if err != nil {
		return DeliveryFailed, fmt.Errorf("load intent: %w", err)
	}
	text := renderNotification(intent, job.Role, s.counterparty(ctx, intent, job.Role))

	// 3. Send with backoff
	var lastErr error
	attempts := 0
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * s.backoff
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return DeliveryFailed, ctx.Err()
			}
		}
		attempts++
		if lastErr = s.sender.SendNotification(ctx, job.TelegramUserID, text); lastErr == nil {
			break
		}
		s.log.Debug("notification attempt failed",
			zap.String("job_id", job.ID.String()),
			zap.Int("attempt", attempts),
			zap.Error(lastErr),
		)
	}

	// 4. Record the outcome
	if lastErr == nil {
		if err := s.jobs.MarkDelivered(ctx, job.ID, attempts); err != nil && !errors.Is(err, repositories.ErrConflict) {
			return Delivered, fmt.Errorf("mark delivered: %w", err)
		}
		metrics.Notifications.WithLabelValues("delivered").Inc()
		return Delivered, nil
	}

	if err := s.jobs.MarkFailed(ctx, job.ID, attempts, lastErr.Error()); err != nil && !errors.Is(err, repositories.ErrConflict) {
		s.log.Error("failed to mark notification failed", zap.String("job_id", job.ID.String()), zap.Error(err))
	}
	metrics.Notifications.WithLabelValues("failed").Inc()
	s.log.Error("notification delivery exhausted",
		zap.String("job_id", job.ID.String()),
		zap.String("intent_id", job.IntentID.String()),
		zap.Int("attempts", attempts),
		zap.Error(lastErr),
	)
	return DeliveryFailed, fmt.Errorf("%w: %v", ErrDeliveryFailed, lastErr)
}

// counterparty describes the other side of intent for the recipient in role.
func (s *NotifyService) counterparty(ctx context.Context, intent *models.TransferIntent, role models.NotificationRole) string {
	walletID, address := intent.PayerWalletID, intent.PayerAddress
	if role == models.RolePayer {
		walletID, address = intent.PayeeWalletID, intent.PayeeAddress
	}
	if walletID != nil {
		if w, err := s.wallets.GetByID(ctx, *walletID); err == nil {
			if u, err := s.users.GetByID(ctx, w.UserID); err == nil && u.Display() != "" {
				return u.Display()
			}
		}
	}
	return models.ShortAddress(address)
}

// RedeliverPending sweeps jobs whose publish was lost or whose dispatcher died.
func (s *NotifyService) RedeliverPending(ctx context.Context, minAge time.Duration, limit int) int {
	jobs, err := s.jobs.ListPending(ctx, minAge, limit)
	if err != nil {
		s.log.Error("failed to list pending notifications", zap.Error(err))
		return 0
	}
	delivered := 0
	for _, j := range jobs {
		res, err := s.Deliver(ctx, j.ID)
		if err != nil {
			s.log.Warn("redelivery failed", zap.String("job_id", j.ID.String()), zap.Error(err))
			continue
		}
		if res == Delivered {
			delivered++
		}
	}
	return delivered
}

func (s *NotifyService) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.NotificationJob, error) {
	return s.jobs.ListByUser(ctx, userID, limit, offset)
}
