package models

import (
	"time"
)

type Wallet struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	UserID            uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance           int64      `gorm:"not null;default:0" json:"balance"`
	LifetimeSpent     int64      `gorm:"not null;default:0" json:"lifetime_spent"`
	TotalTransactions int64      `gorm:"not null;default:0" json:"total_transactions"`
	LastTransactionAt *time.Time `json:"last_transaction_at"`
	Currency          string     `gorm:"size:3;default:'RWF'" json:"currency"`
	IsActive          bool       `gorm:"not null;default:true" json:"is_active"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallets"
}
