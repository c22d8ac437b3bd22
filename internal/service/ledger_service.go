package service

import (
	"context"
	"errors"
	"sync"

	"ticketpay/internal/domain"
	"ticketpay/internal/metrics"
	"ticketpay/internal/models"
	"ticketpay/internal/repository"
	"ticketpay/pkg/payment"

	"github.com/sirupsen/logrus"
)

var ErrNoWalletDebit = errors.New("no wallet debit recorded for payment")

// walletLocks serializes ledger writes per user inside this process. The row
// lock taken by WalletRepository.Apply covers other processes.
type walletLocks struct {
	mu    sync.Mutex
	locks map[uint]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (w *walletLocks) lock(userID uint) func() {
	w.mu.Lock()
	if w.locks == nil {
		w.locks = make(map[uint]*refMutex)
	}
	m, ok := w.locks[userID]
	if !ok {
		m = &refMutex{}
		w.locks[userID] = m
	}
	m.refs++
	w.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		w.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(w.locks, userID)
		}
		w.mu.Unlock()
	}
}

// Ledger is the only writer of wallet balances.
type Ledger struct {
	wallets *repository.WalletRepository
	locks   walletLocks
}

func NewLedger(wallets *repository.WalletRepository) *Ledger {
	return &Ledger{wallets: wallets}
}

// Debit removes amount from the user's wallet and records a PAYMENT entry.
func (l *Ledger) Debit(ctx context.Context, userID uint, amount int64, paymentID *uint, description string) (*models.WalletTransaction, error) {
	if amount <= 0 {
		return nil, &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	unlock := l.locks.lock(userID)
	defer unlock()

	entry, err := l.wallets.Apply(ctx, repository.Mutation{
		UserID:      userID,
		Amount:      -amount,
		Type:        domain.WalletTxTypePayment,
		PaymentID:   paymentID,
		Description: description,
	})
	if err != nil {
		return nil, err
	}
	metrics.LedgerEntries.WithLabelValues(entry.Type).Inc()
	return entry, nil
}

// DebitForPayment lets the wallet rail settle through the ledger.
func (l *Ledger) DebitForPayment(ctx context.Context, userID uint, amount int64, paymentID uint, description string) (*payment.DebitReceipt, error) {
	entry, err := l.Debit(ctx, userID, amount, &paymentID, description)
	if err != nil {
		return nil, err
	}
	return &payment.DebitReceipt{
		TransactionReference: entry.TransactionReference,
		BalanceBefore:        entry.BalanceBefore,
		BalanceAfter:         entry.BalanceAfter,
	}, nil
}

// Credit adds a TOPUP to the user's wallet, opening the wallet if needed.
func (l *Ledger) Credit(ctx context.Context, userID uint, amount int64, description string) (*models.WalletTransaction, error) {
	if amount <= 0 {
		return nil, &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	unlock := l.locks.lock(userID)
	defer unlock()

	entry, err := l.wallets.Apply(ctx, repository.Mutation{
		UserID:          userID,
		Amount:          amount,
		Type:            domain.WalletTxTypeTopup,
		Description:     description,
		CreateIfMissing: true,
	})
	if err != nil {
		return nil, err
	}
	metrics.LedgerEntries.WithLabelValues(entry.Type).Inc()
	return entry, nil
}

// Refund reverses the wallet debit of a payment. Calling it again for the same
// payment returns the existing REFUND entry.
func (l *Ledger) Refund(ctx context.Context, paymentID uint, description string) (*models.WalletTransaction, error) {
	entries, err := l.wallets.PaymentEntries(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	var debit *models.WalletTransaction
	for i := range entries {
		if entries[i].Type == domain.WalletTxTypePayment {
			debit = &entries[i]
			break
		}
	}
	if debit == nil {
		return nil, ErrNoWalletDebit
	}

	unlock := l.locks.lock(debit.UserID)
	defer unlock()

	// re-read under the lock so two concurrent refunds cannot both pass
	entries, err = l.wallets.PaymentEntries(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].Type == domain.WalletTxTypeRefund {
			return &entries[i], nil
		}
	}

	entry, err := l.wallets.Apply(ctx, repository.Mutation{
		UserID:      debit.UserID,
		Amount:      -debit.Amount,
		Type:        domain.WalletTxTypeRefund,
		PaymentID:   &paymentID,
		Description: description,
	})
	if err != nil {
		return nil, err
	}
	metrics.LedgerEntries.WithLabelValues(entry.Type).Inc()
	logrus.WithFields(logrus.Fields{
		"payment_id": paymentID,
		"user_id":    debit.UserID,
		"amount":     entry.Amount,
	}).Info("[Ledger] wallet debit reversed")
	return entry, nil
}

func (l *Ledger) Balance(ctx context.Context, userID uint) (*models.Wallet, error) {
	return l.wallets.GetByUserID(ctx, userID)
}

func (l *Ledger) Transactions(ctx context.Context, userID uint, limit int) ([]models.WalletTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return l.wallets.ListTransactions(ctx, userID, limit)
}
