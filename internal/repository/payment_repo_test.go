package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"ticketpay/internal/domain"
	"ticketpay/internal/models"
	"ticketpay/internal/repository"
	"ticketpay/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createPayment(t *testing.T, repo *repository.PaymentRepository, ref string) *models.Payment {
	t.Helper()
	now := time.Now()
	p := &models.Payment{
		PaymentReference: ref,
		UserID:           1,
		EventID:          2,
		TicketIDs:        []string{"T-1", "T-2"},
		Amount:           5000,
		Currency:         domain.Currency,
		Method:           "MTN_MOMO",
		Status:           domain.PaymentStatusPending,
		InitiatedAt:      now,
		ExpiresAt:        now.Add(15 * time.Minute),
	}
	require.NoError(t, repo.Create(context.Background(), p))
	return p
}

func TestPaymentRepository_TransitionIsCompareAndSwap(t *testing.T) {
	repo := repository.NewPaymentRepository(testutil.NewDB(t))
	ctx := context.Background()
	p := createPayment(t, repo, "ref-cas")

	from := []string{domain.PaymentStatusPending, domain.PaymentStatusProcessing}
	require.NoError(t, repo.Transition(ctx, p.ID, from, domain.PaymentStatusCompleted, time.Now(), ""))

	err := repo.Transition(ctx, p.ID, from, domain.PaymentStatusFailed, time.Now(), "late failure")
	assert.ErrorIs(t, err, repository.ErrTransitionLost)

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Nil(t, got.FailedAt)
	assert.Empty(t, got.FailureReason)
	assert.Equal(t, []string{"T-1", "T-2"}, got.TicketIDs)
}

func TestPaymentRepository_ConcurrentTransitionsOneWinner(t *testing.T) {
	repo := repository.NewPaymentRepository(testutil.NewDB(t))
	p := createPayment(t, repo, "ref-race")
	from := []string{domain.PaymentStatusPending, domain.PaymentStatusProcessing}

	var wg sync.WaitGroup
	results := make([]error, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			to := domain.PaymentStatusCompleted
			if i%2 == 1 {
				to = domain.PaymentStatusFailed
			}
			results[i] = repo.Transition(context.Background(), p.ID, from, to, time.Now(), "")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, repository.ErrTransitionLost)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestPaymentRepository_AttachResult(t *testing.T) {
	repo := repository.NewPaymentRepository(testutil.NewDB(t))
	ctx := context.Background()
	p := createPayment(t, repo, "ref-attach")

	applied, err := repo.AttachResult(ctx, p.ID, repository.ProviderResult{
		ExternalReference: "ext-1",
		Status:            domain.PaymentStatusProcessing,
		RawPayload:        `{"ok":true}`,
	}, time.Now())
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusProcessing, got.Status)
	assert.Equal(t, "ext-1", got.ExternalReference)
	assert.Equal(t, `{"ok":true}`, got.ProviderResponse)

	// the external reference is write-once
	require.NoError(t, repo.SetExternalReference(ctx, p.ID, "ext-2"))
	got, err = repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "ext-1", got.ExternalReference)
}

func TestPaymentRepository_AttachResultAfterEarlyCallback(t *testing.T) {
	repo := repository.NewPaymentRepository(testutil.NewDB(t))
	ctx := context.Background()
	p := createPayment(t, repo, "ref-early")

	require.NoError(t, repo.Transition(ctx, p.ID, []string{domain.PaymentStatusPending}, domain.PaymentStatusCompleted, time.Now(), ""))

	applied, err := repo.AttachResult(ctx, p.ID, repository.ProviderResult{
		ExternalReference: "ext-9",
		Status:            domain.PaymentStatusProcessing,
	}, time.Now())
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, got.Status)
	assert.Equal(t, "ext-9", got.ExternalReference)
}

func TestPaymentRepository_ExternalReferenceFrozenOnceSettled(t *testing.T) {
	repo := repository.NewPaymentRepository(testutil.NewDB(t))
	ctx := context.Background()
	p := createPayment(t, repo, "ref-frozen")

	require.NoError(t, repo.Transition(ctx, p.ID, []string{domain.PaymentStatusPending}, domain.PaymentStatusFailed, time.Now(), "rail down"))
	require.NoError(t, repo.SetExternalReference(ctx, p.ID, "late-ext"))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ExternalReference)
}

func TestPaymentRepository_ListByUser(t *testing.T) {
	repo := repository.NewPaymentRepository(testutil.NewDB(t))
	createPayment(t, repo, "ref-a")
	createPayment(t, repo, "ref-b")

	list, err := repo.ListByUser(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ref-b", list[0].PaymentReference)

	byRef, err := repo.GetByReference(context.Background(), "ref-a")
	require.NoError(t, err)
	assert.Equal(t, list[1].ID, byRef.ID)
}
