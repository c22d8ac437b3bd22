package repository

import (
	"context"
	"errors"
	"time"

	"ticketpay/internal/domain"
	"ticketpay/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
	ErrWalletNotFound    = errors.New("wallet not found")
)

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) GetByUserID(ctx context.Context, userID uint) (*models.Wallet, error) {
	var w models.Wallet
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WalletRepository) ListTransactions(ctx context.Context, userID uint, limit int) ([]models.WalletTransaction, error) {
	var list []models.WalletTransaction
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id DESC").Limit(limit).Find(&list).Error
	return list, err
}

// PaymentEntries returns the ledger entries attached to a payment, oldest first.
func (r *WalletRepository) PaymentEntries(ctx context.Context, paymentID uint) ([]models.WalletTransaction, error) {
	var list []models.WalletTransaction
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).Order("id ASC").Find(&list).Error
	return list, err
}

// Mutation is one signed change to a wallet balance.
type Mutation struct {
	UserID          uint
	Amount          int64 // negative debits, positive credits
	Type            string
	PaymentID       *uint
	Description     string
	CreateIfMissing bool
}

// Apply performs a mutation as one atomic unit: it reads the wallet under a
// row lock, writes the ledger entry from that read and updates the wallet's
// running totals. Debits never take the balance below zero.
func (r *WalletRepository) Apply(ctx context.Context, m Mutation) (*models.WalletTransaction, error) {
	var entry models.WalletTransaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var w models.Wallet
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", m.UserID).First(&w).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if !m.CreateIfMissing {
				return ErrWalletNotFound
			}
			w = models.Wallet{UserID: m.UserID, Currency: domain.Currency, IsActive: true}
			if err := tx.Create(&w).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		}
		if !w.IsActive {
			return ErrWalletNotFound
		}
		if m.Amount < 0 && w.Balance < -m.Amount {
			return ErrInsufficientFunds
		}

		now := time.Now()
		entry = models.WalletTransaction{
			TransactionReference: newLedgerReference(),
			WalletID:             w.ID,
			UserID:               w.UserID,
			Type:                 m.Type,
			Amount:               m.Amount,
			BalanceBefore:        w.Balance,
			BalanceAfter:         w.Balance + m.Amount,
			Status:               domain.WalletTxStatusCompleted,
			PaymentID:            m.PaymentID,
			Description:          m.Description,
			CreatedAt:            now,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		spent := w.LifetimeSpent
		switch m.Type {
		case domain.WalletTxTypePayment:
			spent -= m.Amount
		case domain.WalletTxTypeRefund:
			spent -= m.Amount
			if spent < 0 {
				spent = 0
			}
		}
		return tx.Model(&models.Wallet{}).Where("id = ?", w.ID).Updates(map[string]interface{}{
			"balance":             entry.BalanceAfter,
			"lifetime_spent":      spent,
			"total_transactions":  w.TotalTransactions + 1,
			"last_transaction_at": now,
			"updated_at":          now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func newLedgerReference() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "WTX-" + uuid.NewString()
	}
	return "WTX-" + id.String()
}
