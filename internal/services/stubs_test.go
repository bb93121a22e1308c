package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/solana-agent/backend/internal/events"
	"github.com/solana-agent/backend/internal/models"
	"github.com/solana-agent/backend/internal/repositories"
	"github.com/solana-agent/backend/internal/settlement"
	"go.uber.org/zap"
)

// In-memory stand-ins for the pgx repositories. They follow the same
// compare-and-set rules as the SQL.

type memUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newMemUsers() *memUsers { return &memUsers{users: map[uuid.UUID]*models.User{}} }

func (m *memUsers) UpsertByTelegramID(_ context.Context, tgID int64, username *string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.TelegramUserID == tgID {
			if username != nil {
				u.Username = username
			}
			c := *u
			return &c, nil
		}
	}
	u := &models.User{ID: uuid.New(), TelegramUserID: tgID, Username: username, CreatedAt: time.Now(), LastActiveAt: time.Now()}
	m.users[u.ID] = u
	c := *u
	return &c, nil
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (m *memUsers) GetByTelegramID(_ context.Context, tgID int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.TelegramUserID == tgID {
			c := *u
			return &c, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *memUsers) GetByUsername(_ context.Context, name string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name = strings.TrimPrefix(name, "@")
	for _, u := range m.users {
		if u.Username != nil && strings.EqualFold(*u.Username, name) {
			c := *u
			return &c, nil
		}
	}
	return nil, repositories.ErrNotFound
}

type memWallets struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]*models.Wallet
}

func newMemWallets() *memWallets { return &memWallets{wallets: map[uuid.UUID]*models.Wallet{}} }

func (m *memWallets) Insert(_ context.Context, w *models.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.wallets {
		if e.UserID == w.UserID || e.Address == w.Address {
			return repositories.ErrDuplicate
		}
	}
	w.ID = uuid.New()
	w.CreatedAt = time.Now()
	c := *w
	m.wallets[w.ID] = &c
	return nil
}

func (m *memWallets) find(match func(*models.Wallet) bool) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wallets {
		if match(w) {
			c := *w
			return &c, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *memWallets) GetByID(_ context.Context, id uuid.UUID) (*models.Wallet, error) {
	return m.find(func(w *models.Wallet) bool { return w.ID == id })
}

func (m *memWallets) GetByUserID(_ context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return m.find(func(w *models.Wallet) bool { return w.UserID == userID })
}

func (m *memWallets) GetByAddress(_ context.Context, addr string) (*models.Wallet, error) {
	return m.find(func(w *models.Wallet) bool { return w.Address == addr })
}

type webhookRow struct {
	processed bool
	claimedAt time.Time
}

type memLedger struct {
	mu          sync.Mutex
	intents     map[uuid.UUID]*models.TransferIntent
	webhooks    map[string]*webhookRow
	settles     int
	transitions int
	failRecord  error
}

func newMemLedger() *memLedger {
	return &memLedger{intents: map[uuid.UUID]*models.TransferIntent{}, webhooks: map[string]*webhookRow{}}
}

func copyIntent(i *models.TransferIntent) *models.TransferIntent {
	c := *i
	return &c
}

func (m *memLedger) CreateIntent(_ context.Context, in *models.TransferIntent) (models.CreateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.intents[in.ID]; ok {
		return models.DuplicateIgnored, nil
	}
	in.CreatedAt = time.Now()
	in.UpdatedAt = in.CreatedAt
	m.intents[in.ID] = copyIntent(in)
	return models.Created, nil
}

func (m *memLedger) GetIntent(_ context.Context, id uuid.UUID) (*models.TransferIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.intents[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return copyIntent(i), nil
}

func (m *memLedger) GetIntentBySignature(_ context.Context, sig string) (*models.TransferIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *models.TransferIntent
	for _, i := range m.intents {
		if i.TxSignature != nil && *i.TxSignature == sig {
			if found == nil || i.CreatedAt.Before(found.CreatedAt) {
				found = i
			}
		}
	}
	if found == nil {
		return nil, repositories.ErrNotFound
	}
	return copyIntent(found), nil
}

func (m *memLedger) Transition(_ context.Context, id uuid.UUID, from, to models.IntentStatus, out models.Outcome) error {
	if !models.IsValidIntentTransition(from, to) {
		return fmt.Errorf("invalid intent transition %s -> %s", from, to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.intents[id]
	if !ok || i.Status != from || !models.IsValidStageTransition(i.Stage, out.Stage) {
		return repositories.ErrConflict
	}
	i.Status = to
	i.Stage = out.Stage
	if out.TxSignature != "" {
		s := out.TxSignature
		i.TxSignature = &s
	}
	if out.ReceiptRef != "" {
		r := out.ReceiptRef
		i.ReceiptRef = &r
	}
	if out.FeeAmount > 0 {
		i.FeeAmount = out.FeeAmount
	}
	i.FailureReason = nil
	if out.FailureReason != "" {
		f := out.FailureReason
		i.FailureReason = &f
	}
	i.UpdatedAt = time.Now()
	m.transitions++
	if to == models.IntentStatusSettled {
		m.settles++
	}
	return nil
}

func (m *memLedger) AdvanceStage(_ context.Context, id uuid.UUID, from, to models.IntentStage) error {
	if !models.IsValidStageTransition(from, to) {
		return fmt.Errorf("invalid stage transition %s -> %s", from, to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.intents[id]
	if !ok || i.Stage != from {
		return repositories.ErrConflict
	}
	i.Stage = to
	i.UpdatedAt = time.Now()
	return nil
}

func (m *memLedger) CancelPending(_ context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.intents[id]
	if !ok || i.Status != models.IntentStatusPending || i.Stage != models.StageValidating {
		return repositories.ErrConflict
	}
	i.Status = models.IntentStatusFailed
	i.Stage = models.StageFailed
	i.FailureReason = &reason
	m.transitions++
	return nil
}

func (m *memLedger) AttachSignature(_ context.Context, id uuid.UUID, sig string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.intents[id]
	if !ok || i.Status != models.IntentStatusPending || (i.TxSignature != nil && *i.TxSignature != sig) {
		return repositories.ErrConflict
	}
	i.TxSignature = &sig
	return nil
}

func (m *memLedger) RecordWebhook(_ context.Context, eventID string, _ []byte, lease time.Duration) (models.WebhookRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRecord != nil {
		return 0, m.failRecord
	}
	row, ok := m.webhooks[eventID]
	if !ok {
		m.webhooks[eventID] = &webhookRow{claimedAt: time.Now()}
		return models.FirstSeen, nil
	}
	if !row.processed && row.claimedAt.Before(time.Now().Add(-lease)) {
		row.claimedAt = time.Now()
		return models.FirstSeen, nil
	}
	return models.AlreadySeen, nil
}

func (m *memLedger) MarkWebhookProcessed(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.webhooks[eventID]; ok {
		row.processed = true
	}
	return nil
}

func (m *memLedger) ReleaseWebhook(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.webhooks[eventID]; ok && !row.processed {
		row.claimedAt = time.Time{}
	}
	return nil
}

func (m *memLedger) list(match func(*models.TransferIntent) bool) []models.TransferIntent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TransferIntent
	for _, i := range m.intents {
		if match(i) {
			out = append(out, *i)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out
}

func (m *memLedger) ListStalePending(_ context.Context, olderThan time.Duration, _ int) ([]models.TransferIntent, error) {
	cutoff := time.Now().Add(-olderThan)
	return m.list(func(i *models.TransferIntent) bool {
		return i.Status == models.IntentStatusPending && i.UpdatedAt.Before(cutoff)
	}), nil
}

func (m *memLedger) ListStaleNotifying(_ context.Context, olderThan time.Duration, _ int) ([]models.TransferIntent, error) {
	cutoff := time.Now().Add(-olderThan)
	return m.list(func(i *models.TransferIntent) bool {
		return i.Status == models.IntentStatusSettled && i.Stage == models.StageNotifying && !i.UpdatedAt.After(cutoff)
	}), nil
}

func (m *memLedger) ListSubmittedPublic(_ context.Context, _ int) ([]models.TransferIntent, error) {
	return m.list(func(i *models.TransferIntent) bool {
		return i.Kind == models.IntentKindPublic && i.Status == models.IntentStatusPending &&
			(i.Stage == models.StageSubmitting || i.Stage == models.StageSettling) && i.TxSignature != nil
	}), nil
}

func (m *memLedger) ListByWallet(_ context.Context, walletID uuid.UUID, _, _ int) ([]models.TransferIntent, error) {
	return m.list(func(i *models.TransferIntent) bool {
		return (i.PayerWalletID != nil && *i.PayerWalletID == walletID) || (i.PayeeWalletID != nil && *i.PayeeWalletID == walletID)
	}), nil
}

func (m *memLedger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.intents)
}

type memJobs struct {
	mu    sync.Mutex
	users *memUsers
	jobs  map[uuid.UUID]*models.NotificationJob
	lease map[uuid.UUID]time.Time
}

func newMemJobs(users *memUsers) *memJobs {
	return &memJobs{users: users, jobs: map[uuid.UUID]*models.NotificationJob{}, lease: map[uuid.UUID]time.Time{}}
}

func (m *memJobs) Enqueue(ctx context.Context, intentID, recipient uuid.UUID, role models.NotificationRole) (*models.NotificationJob, error) {
	u, err := m.users.GetByID(ctx, recipient)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.IntentID == intentID && j.Role == role {
			c := *j
			return &c, repositories.ErrDuplicate
		}
	}
	j := &models.NotificationJob{
		ID: uuid.New(), IntentID: intentID, RecipientUserID: recipient, TelegramUserID: u.TelegramUserID,
		Role: role, Status: models.NotificationPending, CreatedAt: time.Now(),
	}
	m.jobs[j.ID] = j
	c := *j
	return &c, nil
}

func (m *memJobs) GetByID(_ context.Context, id uuid.UUID) (*models.NotificationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := *j
	return &c, nil
}

func (m *memJobs) Claim(_ context.Context, id uuid.UUID, lease time.Duration) (*models.NotificationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if j.Status != models.NotificationPending || m.lease[id].After(time.Now()) {
		return nil, repositories.ErrConflict
	}
	m.lease[id] = time.Now().Add(lease)
	c := *j
	return &c, nil
}

func (m *memJobs) MarkDelivered(_ context.Context, id uuid.UUID, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != models.NotificationPending {
		return repositories.ErrConflict
	}
	now := time.Now()
	j.Status = models.NotificationDelivered
	j.Attempts += attempts
	j.DeliveredAt = &now
	delete(m.lease, id)
	return nil
}

func (m *memJobs) MarkFailed(_ context.Context, id uuid.UUID, attempts int, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != models.NotificationPending {
		return repositories.ErrConflict
	}
	j.Status = models.NotificationFailed
	j.Attempts += attempts
	j.LastError = &lastErr
	delete(m.lease, id)
	return nil
}

func (m *memJobs) ListPending(_ context.Context, _ time.Duration, _ int) ([]models.NotificationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.NotificationJob
	for id, j := range m.jobs {
		if j.Status == models.NotificationPending && !m.lease[id].After(time.Now()) {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (m *memJobs) ListByUser(_ context.Context, userID uuid.UUID, _, _ int) ([]models.NotificationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.NotificationJob
	for _, j := range m.jobs {
		if j.RecipientUserID == userID {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (m *memJobs) forIntent(intentID uuid.UUID) []models.NotificationJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.NotificationJob
	for _, j := range m.jobs {
		if j.IntentID == intentID {
			out = append(out, *j)
		}
	}
	return out
}

func (m *memJobs) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

type memRequests struct {
	mu       sync.Mutex
	requests map[string]*models.PaymentRequest
	claims   int
}

func newMemRequests() *memRequests {
	return &memRequests{requests: map[string]*models.PaymentRequest{}}
}

func (m *memRequests) Create(_ context.Context, p *models.PaymentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[p.ID]; ok {
		return repositories.ErrDuplicate
	}
	p.CreatedAt = time.Now()
	c := *p
	m.requests[p.ID] = &c
	return nil
}

func (m *memRequests) GetByID(_ context.Context, id string) (*models.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.requests[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (m *memRequests) Claim(_ context.Context, id string, payer, intentID uuid.UUID, attempt int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.requests[id]
	if !ok || p.Status != models.PaymentRequestPending || p.Attempts != attempt-1 || !p.ExpiresAt.After(time.Now()) {
		return repositories.ErrConflict
	}
	now := time.Now()
	p.Status = models.PaymentRequestPaying
	p.PayerUserID = &payer
	p.IntentID = &intentID
	p.Attempts = attempt
	p.ClaimedAt = &now
	m.claims++
	return nil
}

func (m *memRequests) Release(_ context.Context, id string, intentID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.requests[id]
	if !ok || p.Status != models.PaymentRequestPaying || p.IntentID == nil || *p.IntentID != intentID {
		return repositories.ErrConflict
	}
	p.Status = models.PaymentRequestPending
	p.PayerUserID = nil
	p.IntentID = nil
	p.ClaimedAt = nil
	return nil
}

func (m *memRequests) MarkSent(_ context.Context, id string, intentID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.requests[id]
	if !ok || p.Status != models.PaymentRequestPaying || p.IntentID == nil || *p.IntentID != intentID {
		return repositories.ErrConflict
	}
	now := time.Now()
	p.Status = models.PaymentRequestSent
	p.SentAt = &now
	return nil
}

func (m *memRequests) ListPaying(_ context.Context, olderThan time.Duration, _ int) ([]models.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var out []models.PaymentRequest
	for _, p := range m.requests {
		if p.Status == models.PaymentRequestPaying && p.ClaimedAt != nil && !p.ClaimedAt.After(cutoff) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memRequests) ExpireOverdue(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.requests {
		if p.Status == models.PaymentRequestPending && p.ExpiresAt.Before(time.Now()) {
			p.Status = models.PaymentRequestExpired
			n++
		}
	}
	return n, nil
}

type nopAudit struct{}

func (nopAudit) Log(context.Context, models.AuditLog) error { return nil }

type fakeCustody struct {
	mu      sync.Mutex
	calls   int
	err     error
	wallets map[string]*settlement.CustodyWallet
}

func (f *fakeCustody) CreateWallet(_ context.Context, ownerKey, idemKey string) (*settlement.CustodyWallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.wallets == nil {
		f.wallets = map[string]*settlement.CustodyWallet{}
	}
	if w, ok := f.wallets[idemKey]; ok {
		return w, nil
	}
	w := &settlement.CustodyWallet{ID: "cw-" + ownerKey, Address: solana.NewWallet().PublicKey().String(), ChainType: "solana"}
	f.wallets[idemKey] = w
	return w, nil
}

// fakeShield executes a transfer at most once per idempotency key.
type fakeShield struct {
	mu         sync.Mutex
	receipts   map[string]*settlement.ShieldedReceipt
	submits    int
	executions int
	polls      int
	// onSubmit overrides the default behaviour of the n-th submit (1-based).
	onSubmit func(n int, t settlement.PrivateTransfer) (*settlement.ShieldedReceipt, error)
	status   settlement.ReceiptStatus
}

func newFakeShield() *fakeShield {
	return &fakeShield{receipts: map[string]*settlement.ShieldedReceipt{}, status: settlement.ReceiptSettled}
}

func (f *fakeShield) execute(key string) *settlement.ShieldedReceipt {
	if r, ok := f.receipts[key]; ok {
		return r
	}
	f.executions++
	r := &settlement.ShieldedReceipt{ID: "rcpt-" + key[:8], Status: f.status, Fee: 1000, Signature: "payout-" + key}
	f.receipts[key] = r
	return r
}

func (f *fakeShield) SubmitPrivate(_ context.Context, t settlement.PrivateTransfer) (*settlement.ShieldedReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if f.onSubmit != nil {
		if r, err := f.onSubmit(f.submits, t); r != nil || err != nil {
			return r, err
		}
	}
	c := *f.execute(t.IdempotencyKey)
	return &c, nil
}

func (f *fakeShield) PollPrivate(_ context.Context, key string) (*settlement.ShieldedReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	r, ok := f.receipts[key]
	if !ok {
		return nil, settlement.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (f *fakeShield) setStatus(key string, st settlement.ReceiptStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = st
	if r, ok := f.receipts[key]; ok {
		r.Status = st
	}
}

func (f *fakeShield) counts() (submits, executions int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits, f.executions
}

type fakePublic struct {
	mu        sync.Mutex
	builds    int
	submits   int
	buildErr  error
	submitErr error
	state     settlement.SignatureState
}

func (f *fakePublic) Build(_ context.Context, _ models.Token, _ int64, from, to string) (*settlement.PublicTransfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds++
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	return &settlement.PublicTransfer{Signature: fmt.Sprintf("sig-%s-%s-%d", from[:4], to[:4], f.builds)}, nil
}

func (f *fakePublic) Submit(_ context.Context, _ string, pt *settlement.PublicTransfer, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return pt.Signature, nil
}

func (f *fakePublic) Status(context.Context, string) (settlement.SignatureState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, nil
}

func (f *fakePublic) setState(st settlement.SignatureState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = st
}

type sentMessage struct {
	telegramID int64
	text       string
}

type fakeSender struct {
	mu       sync.Mutex
	failures int
	sent     []sentMessage
	attempts int
}

func (f *fakeSender) SendNotification(_ context.Context, tgID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failures > 0 {
		f.failures--
		return errors.New("chat transport unavailable")
	}
	f.sent = append(f.sent, sentMessage{telegramID: tgID, text: text})
	return nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type recPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recPublisher) Publish(_ context.Context, _ string, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type harness struct {
	users    *memUsers
	wallets  *memWallets
	ledger   *memLedger
	jobs     *memJobs
	requests *memRequests
	custody  *fakeCustody
	shield   *fakeShield
	public   *fakePublic
	sender   *fakeSender
	pub      *recPublisher

	directory *WalletService
	notify    *NotifyService
	transfers *TransferService
	webhooks  *WebhookService
	payreqs   *PaymentRequestService
}

const testWebhookSecret = "hook-secret"

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zap.NewNop()
	h := &harness{
		users:    newMemUsers(),
		wallets:  newMemWallets(),
		ledger:   newMemLedger(),
		requests: newMemRequests(),
		custody:  &fakeCustody{},
		shield:   newFakeShield(),
		public:   &fakePublic{state: settlement.SignatureConfirmed},
		sender:   &fakeSender{},
		pub:      &recPublisher{},
	}
	h.jobs = newMemJobs(h.users)
	h.directory = NewWalletService(h.users, h.wallets, h.custody, nopAudit{}, log)
	h.notify = NewNotifyService(h.jobs, h.ledger, h.users, h.wallets, h.sender, h.pub, 3, time.Millisecond, log)
	h.transfers = NewTransferService(h.ledger, h.directory, h.shield, h.public, h.notify, nopAudit{}, TransferOptions{
		PollTimeout:  30 * time.Millisecond,
		PollInterval: time.Millisecond,
		ExpireAfter:  time.Hour,
	}, log)
	h.webhooks = NewWebhookService(testWebhookSecret, h.ledger, h.directory, h.transfers, h.notify, nopAudit{}, nil, log)
	h.payreqs = NewPaymentRequestService(h.requests, h.directory, h.transfers, "agent_bot", time.Hour, log)
	return h
}

// user creates a user with a provisioned wallet.
func (h *harness) user(t *testing.T, tgID int64, username string) (*models.User, *models.Wallet) {
	t.Helper()
	ctx := context.Background()
	u, err := h.directory.EnsureUser(ctx, tgID, username)
	if err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	w, err := h.directory.Provision(ctx, u.ID)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	return u, w
}
