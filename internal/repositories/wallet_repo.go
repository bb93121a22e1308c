package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/solana-agent/backend/internal/models"
)

type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

const walletColumns = `id, user_id, address, custody_wallet_id, created_at`

func scanWallet(row interface{ Scan(...any) error }) (*models.Wallet, error) {
	var w models.Wallet
	if err := row.Scan(&w.ID, &w.UserID, &w.Address, &w.CustodyWalletID, &w.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &w, nil
}

// Insert stores a freshly provisioned wallet. It returns ErrDuplicate when the
// user already owns a wallet; the caller re-reads the winner's row.
func (r *WalletRepo) Insert(ctx context.Context, w *models.Wallet) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO wallets (user_id, address, custody_wallet_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING id, created_at
	`, w.UserID, w.Address, w.CustodyWalletID).Scan(&w.ID, &w.CreatedAt)
	if err != nil {
		if notFound(err) == ErrNotFound || isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return scanWallet(r.pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID))
}

func (r *WalletRepo) GetByAddress(ctx context.Context, address string) (*models.Wallet, error) {
	return scanWallet(r.pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE address = $1`, address))
}

func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return scanWallet(r.pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id))
}
