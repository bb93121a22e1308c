package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/solana-agent/backend/internal/chain"
	"github.com/solana-agent/backend/internal/metrics"
	"github.com/solana-agent/backend/internal/models"
	"github.com/solana-agent/backend/internal/repositories"
	"go.uber.org/zap"
)

// WalletService is the wallet directory: users, their single custodial
// wallet, and lookups by user, address or chat handle.
type WalletService struct {
	users   UserStore
	wallets WalletStore
	custody WalletProvisioner
	audit   AuditLogger
	log     *zap.Logger
}

func NewWalletService(users UserStore, wallets WalletStore, custody WalletProvisioner, audit AuditLogger, log *zap.Logger) *WalletService {
	return &WalletService{
		users:   users,
		wallets: wallets,
		custody: custody,
		audit:   audit,
		log:     log,
	}
}

// EnsureUser creates the user on first contact and refreshes the username.
func (s *WalletService) EnsureUser(ctx context.Context, telegramID int64, username string) (*models.User, error) {
	var uname *string
	if u := strings.TrimPrefix(strings.TrimSpace(username), "@"); u != "" {
		uname = &u
	}
	user, err := s.users.UpsertByTelegramID(ctx, telegramID, uname)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return user, nil
}

func (s *WalletService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *WalletService) ResolveByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return s.wallets.GetByUserID(ctx, userID)
}

func (s *WalletService) ResolveByAddress(ctx context.Context, address string) (*models.Wallet, error) {
	return s.wallets.GetByAddress(ctx, address)
}

func (s *WalletService) ResolveByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return s.wallets.GetByID(ctx, id)
}

// Provision returns the user's wallet, creating it through custody on first
// use. The custody call is keyed per user, and the row is only written once
// the provider returned a full wallet, so concurrent callers converge on one.
func (s *WalletService) Provision(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if w, err := s.wallets.GetByUserID(ctx, userID); err == nil {
		return w, nil
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	cw, err := s.custody.CreateWallet(ctx, userID.String(), "wallet:"+userID.String())
	if err != nil {
		s.log.Warn("custody wallet creation failed", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}
	if !chain.IsAddress(cw.Address) {
		return nil, fmt.Errorf("%w: custody returned invalid address %q", ErrProvisioningFailed, cw.Address)
	}

	w := &models.Wallet{UserID: userID, Address: cw.Address, CustodyWalletID: cw.ID}
	if err := s.wallets.Insert(ctx, w); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return s.wallets.GetByUserID(ctx, userID)
		}
		return nil, fmt.Errorf("store wallet: %w", err)
	}

	metrics.WalletsProvisioned.Inc()
	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &userID,
		ActorType:   models.ActorSystem,
		Action:      models.AuditWalletProvisioned,
		EntityType:  models.EntityWallet,
		EntityID:    &w.ID,
		Meta:        map[string]any{"address": w.Address},
	})
	s.log.Info("wallet provisioned", zap.String("user_id", userID.String()), zap.String("address", w.Address))
	return w, nil
}

// Payee is a resolved transfer destination. Wallet and User are nil for an
// external address that does not belong to any user.
type Payee struct {
	Address string
	Wallet  *models.Wallet
	User    *models.User
}

// ResolveHandle accepts "@username", "username" or a Solana address.
func (s *WalletService) ResolveHandle(ctx context.Context, handle string) (*Payee, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, invalid("recipient is required")
	}

	if !strings.HasPrefix(handle, "@") && chain.IsAddress(handle) {
		p := &Payee{Address: handle}
		w, err := s.wallets.GetByAddress(ctx, handle)
		switch {
		case err == nil:
			p.Wallet = w
			if u, uerr := s.users.GetByID(ctx, w.UserID); uerr == nil {
				p.User = u
			}
		case !errors.Is(err, repositories.ErrNotFound):
			return nil, err
		}
		return p, nil
	}

	name := strings.TrimPrefix(handle, "@")
	user, err := s.users.GetByUsername(ctx, name)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, invalid("user @%s has not started the bot yet", name)
		}
		return nil, err
	}
	w, err := s.wallets.GetByUserID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, invalid("user @%s has no wallet yet", name)
		}
		return nil, err
	}
	return &Payee{Address: w.Address, Wallet: w, User: user}, nil
}
