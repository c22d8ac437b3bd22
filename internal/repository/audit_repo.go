package repository

import (
	"context"

	"ticketpay/internal/models"

	"gorm.io/gorm"
)

type AuditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

func (r *AuditLogRepository) Create(ctx context.Context, log *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *AuditLogRepository) ListByResource(ctx context.Context, resource, resourceID string) ([]models.AuditLog, error) {
	var list []models.AuditLog
	err := r.db.WithContext(ctx).Where("resource = ? AND resource_id = ?", resource, resourceID).Order("id ASC").Find(&list).Error
	return list, err
}

func (r *AuditLogRepository) ListByAction(ctx context.Context, action string) ([]models.AuditLog, error) {
	var list []models.AuditLog
	err := r.db.WithContext(ctx).Where("action = ?", action).Order("id ASC").Find(&list).Error
	return list, err
}
