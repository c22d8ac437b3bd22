package repository

import (
	"context"
	"errors"
	"time"

	"ticketpay/internal/domain"
	"ticketpay/internal/models"

	"gorm.io/gorm"
)

// ErrTransitionLost means another writer moved the payment first; the caller's
// update was not applied.
var ErrTransitionLost = errors.New("payment status changed concurrently")

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uint) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).First(&p, id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByReference(ctx context.Context, ref string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).Where("payment_reference = ?", ref).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) ListByUser(ctx context.Context, userID uint, limit int) ([]models.Payment, error) {
	var list []models.Payment
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id DESC").Limit(limit).Find(&list).Error
	return list, err
}

// ProviderResult is what the adapter reported at initiation.
type ProviderResult struct {
	ExternalReference string
	Status            string
	RawPayload        string
	PaymentURL        string
}

// AttachResult records the adapter's answer on a payment. The external
// reference is written only if still empty. Status moves only if the row is
// still PENDING; applied is false when a callback or poll settled it first.
func (r *PaymentRepository) AttachResult(ctx context.Context, id uint, res ProviderResult, at time.Time) (applied bool, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if res.ExternalReference != "" {
			if err := tx.Model(&models.Payment{}).
				Where("id = ? AND (external_reference = '' OR external_reference IS NULL)", id).
				Update("external_reference", res.ExternalReference).Error; err != nil {
				return err
			}
		}
		updates := map[string]interface{}{
			"status":            res.Status,
			"provider_response": res.RawPayload,
			"payment_url":       res.PaymentURL,
			"updated_at":        at,
		}
		switch res.Status {
		case domain.PaymentStatusCompleted:
			updates["completed_at"] = at
		case domain.PaymentStatusFailed:
			updates["failed_at"] = at
		}
		out := tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", id, domain.PaymentStatusPending).
			Updates(updates)
		if out.Error != nil {
			return out.Error
		}
		applied = out.RowsAffected == 1
		return nil
	})
	return applied, err
}

// SetExternalReference fills the rail's reference when none was recorded yet
// and the payment is still unsettled.
func (r *PaymentRepository) SetExternalReference(ctx context.Context, id uint, ref string) error {
	return r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND (external_reference = '' OR external_reference IS NULL)", id).
		Where("status IN ?", []string{domain.PaymentStatusPending, domain.PaymentStatusProcessing}).
		Update("external_reference", ref).Error
}

// Transition is a compare-and-swap on status: the row moves to `to` only if
// its current status is one of `from`. Returns ErrTransitionLost otherwise.
func (r *PaymentRepository) Transition(ctx context.Context, id uint, from []string, to string, at time.Time, reason string) error {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": at,
	}
	switch to {
	case domain.PaymentStatusCompleted:
		updates["completed_at"] = at
	case domain.PaymentStatusFailed:
		updates["failed_at"] = at
		if reason != "" {
			if len(reason) > 255 {
				reason = reason[:255]
			}
			updates["failure_reason"] = reason
		}
	}
	out := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if out.Error != nil {
		return out.Error
	}
	if out.RowsAffected == 0 {
		return ErrTransitionLost
	}
	return nil
}
