package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"ticketpay/internal/publisher"
	"ticketpay/internal/repository"
	"ticketpay/internal/service"
	"ticketpay/internal/testutil"
	"ticketpay/pkg/payment"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []publisher.PaymentSettledEvent
}

func (r *recordingPublisher) Publish(ctx context.Context, topic string, message interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev, ok := message.(publisher.PaymentSettledEvent); ok {
		r.events = append(r.events, ev)
	}
	return nil
}

func (r *recordingPublisher) Events() []publisher.PaymentSettledEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]publisher.PaymentSettledEvent(nil), r.events...)
}

type recordingNotifier struct {
	mu    sync.Mutex
	users []uint
}

func (n *recordingNotifier) BroadcastToUser(userID uint, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = append(n.users, userID)
}

// fakeRail is an asynchronous mobile-money style rail.
type fakeRail struct {
	name string

	mu          sync.Mutex
	initiateErr error
	pollStatus  payment.Status
	pollErr     error
	polls       int
}

func (f *fakeRail) Name() string { return f.name }

func (f *fakeRail) Initiate(ctx context.Context, c payment.Charge) (*payment.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initiateErr != nil {
		return nil, f.initiateErr
	}
	return &payment.Result{
		ExternalReference: c.Reference,
		Status:            payment.StatusProcessing,
		RawPayload:        []byte(`{"accepted":true}`),
	}, nil
}

func (f *fakeRail) PollStatus(ctx context.Context, c payment.Charge) (payment.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.pollErr != nil {
		return "", f.pollErr
	}
	if f.pollStatus == "" {
		return payment.StatusProcessing, nil
	}
	return f.pollStatus, nil
}

func (f *fakeRail) MapStatus(code string) payment.Status {
	switch code {
	case "SUCCESSFUL":
		return payment.StatusCompleted
	case "FAILED":
		return payment.StatusFailed
	default:
		return payment.StatusProcessing
	}
}

func (f *fakeRail) Polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

// redirectRail is a card-switch style rail: redirect on initiation, callbacks only.
type redirectRail struct{}

func (redirectRail) Name() string { return payment.ProviderCardSwitch }

func (redirectRail) Initiate(ctx context.Context, c payment.Charge) (*payment.Result, error) {
	return &payment.Result{
		ExternalReference: "SW-" + c.Reference[:8],
		Status:            payment.StatusProcessing,
		PaymentURL:        "https://pay.switch.rw/s/" + c.Reference,
	}, nil
}

type testEnv struct {
	db         *gorm.DB
	payments   *repository.PaymentRepository
	wallets    *repository.WalletRepository
	audit      *repository.AuditLogRepository
	ledger     *service.Ledger
	svc        *service.PaymentService
	reconciler *service.CallbackReconciler
	mtn        *fakeRail
	pub        *recordingPublisher
	notifier   *recordingNotifier
}

const cardSecret = "card-secret"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	env := &testEnv{
		db:       db,
		payments: repository.NewPaymentRepository(db),
		wallets:  repository.NewWalletRepository(db),
		audit:    repository.NewAuditLogRepository(db),
		mtn:      &fakeRail{name: payment.ProviderMTN},
		pub:      &recordingPublisher{},
		notifier: &recordingNotifier{},
	}
	env.ledger = service.NewLedger(env.wallets)

	reg := payment.NewRegistry()
	reg.Register(payment.MethodWallet, payment.NewWalletAdapter(env.ledger))
	reg.Register(payment.MethodMTNMoMo, env.mtn)
	reg.Register(payment.MethodCard, redirectRail{})

	env.svc = service.NewPaymentService(env.payments, env.audit, env.ledger, reg, env.pub, env.notifier, 15*time.Minute)
	env.reconciler = service.NewCallbackReconciler(env.svc, env.audit, cardSecret)
	return env
}

func (e *testEnv) fund(t *testing.T, userID uint, amount int64) {
	t.Helper()
	_, err := e.ledger.Credit(context.Background(), userID, amount, "test funding")
	require.NoError(t, err)
}

func mobileMoneyRequest(userID uint, amount int64) service.InitiateRequest {
	return service.InitiateRequest{
		UserID:        userID,
		EventID:       9,
		TicketIDs:     []string{"TCK-1", "TCK-2"},
		Amount:        amount,
		Method:        "MTN_MOMO",
		CustomerName:  "Aline Uwase",
		CustomerPhone: "0788123456",
	}
}

func walletRequest(userID uint, amount int64) service.InitiateRequest {
	return service.InitiateRequest{
		UserID:    userID,
		EventID:   9,
		TicketIDs: []string{"TCK-1"},
		Amount:    amount,
		Method:    "wallet",
	}
}
