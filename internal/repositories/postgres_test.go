package repositories

import (
	"context"
	"math/rand"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/solana-agent/backend/internal/db"
	"github.com/solana-agent/backend/internal/models"
	"go.uber.org/zap"
)

// testPool connects to POSTGRES_TEST_DSN and applies the migrations. Tests
// that need it are skipped when the variable is unset. Every test works on
// freshly generated ids so the database does not have to be empty.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	log := zap.NewNop()
	pool, err := db.NewPostgresPool(ctx, dsn, db.PoolOptions{MaxConns: 4}, log)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := db.RunMigrations(ctx, pool, "../../migrations", log); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

// newWalletOwner creates a user with a wallet at a random address.
func newWalletOwner(t *testing.T, pool *pgxpool.Pool) (*models.User, *models.Wallet) {
	t.Helper()
	ctx := context.Background()
	user, err := NewUserRepo(pool).UpsertByTelegramID(ctx, 1<<40+rand.Int63n(1<<40), nil)
	if err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	w := &models.Wallet{
		UserID:          user.ID,
		Address:         "addr-" + uuid.NewString(),
		CustodyWalletID: "cw-" + uuid.NewString(),
	}
	if err := NewWalletRepo(pool).Insert(ctx, w); err != nil {
		t.Fatalf("insert wallet: %v", err)
	}
	return user, w
}

func newPendingIntent(t *testing.T, ledger *LedgerRepo, payer, payee *models.Wallet) *models.TransferIntent {
	t.Helper()
	in := &models.TransferIntent{
		ID:            uuid.New(),
		Kind:          models.IntentKindPublic,
		Token:         models.TokenSOL,
		Amount:        1_000_000,
		PayerWalletID: &payer.ID,
		PayeeWalletID: &payee.ID,
		PayerAddress:  payer.Address,
		PayeeAddress:  payee.Address,
		Status:        models.IntentStatusPending,
		Stage:         models.StageValidating,
	}
	res, err := ledger.CreateIntent(context.Background(), in)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if res != models.Created {
		t.Fatalf("create result = %v, want Created", res)
	}
	return in
}
