package models

import (
	"time"
)

// WalletTransaction is an append-only ledger entry. BalanceAfter always equals
// BalanceBefore + Amount; rows are never updated once written.
type WalletTransaction struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	TransactionReference string    `gorm:"size:64;uniqueIndex;not null" json:"transaction_reference"`
	WalletID             uint      `gorm:"not null;index" json:"wallet_id"`
	UserID               uint      `gorm:"not null;index" json:"user_id"`
	Type                 string    `gorm:"size:20;not null;index" json:"type"` // PAYMENT, REFUND, TOPUP
	Amount               int64     `gorm:"not null" json:"amount"`             // positive = credit, negative = debit
	BalanceBefore        int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter         int64     `gorm:"not null" json:"balance_after"`
	Status               string    `gorm:"size:20;not null" json:"status"`
	PaymentID            *uint     `gorm:"index" json:"payment_id,omitempty"`
	Description          string    `gorm:"size:255" json:"description"`
	CreatedAt            time.Time `json:"created_at"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}
