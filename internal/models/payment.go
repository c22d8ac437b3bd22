package models

import (
	"time"

	"ticketpay/internal/domain"
)

type Payment struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	PaymentReference  string     `gorm:"size:64;uniqueIndex;not null" json:"payment_reference"`
	UserID            uint       `gorm:"not null;index" json:"user_id"`
	EventID           uint       `gorm:"not null;index" json:"event_id"`
	TicketIDs         []string   `gorm:"type:text;serializer:json" json:"ticket_ids"`
	Amount            int64      `gorm:"not null" json:"amount"` // whole RWF
	Currency          string     `gorm:"size:3;default:'RWF'" json:"currency"`
	Method            string     `gorm:"size:30;not null;index" json:"method"`
	CustomerName      string     `gorm:"size:255" json:"customer_name"`
	CustomerEmail     string     `gorm:"size:255" json:"customer_email"`
	CustomerPhone     string     `gorm:"size:20" json:"customer_phone"`
	Status            string     `gorm:"size:20;not null;index" json:"status"` // PENDING, PROCESSING, COMPLETED, FAILED
	ExternalReference string     `gorm:"size:128;index" json:"external_reference,omitempty"`
	PaymentURL        string     `gorm:"size:512" json:"payment_url,omitempty"`
	ProviderResponse  string     `gorm:"type:text" json:"-"` // raw provider payload, audit only
	FailureReason     string     `gorm:"size:255" json:"failure_reason,omitempty"`
	InitiatedAt       time.Time  `gorm:"not null" json:"initiated_at"`
	ExpiresAt         time.Time  `gorm:"not null;index" json:"expires_at"`
	CompletedAt       *time.Time `json:"completed_at"`
	FailedAt          *time.Time `json:"failed_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

// IsTerminal reports whether the stored status is settled.
func (p *Payment) IsTerminal() bool {
	return domain.IsTerminalStatus(p.Status)
}

// EffectiveStatus is the status shown to callers: a non-terminal payment whose
// expiry has elapsed reads as EXPIRED. The stored row is left untouched so a
// late settlement can still be applied.
func (p *Payment) EffectiveStatus(now time.Time) string {
	if !p.IsTerminal() && !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt) {
		return domain.PaymentStatusExpired
	}
	return p.Status
}
