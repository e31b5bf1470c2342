package repository

import (
	"context"

	"github.com/kursadbilgin/shift-dispatch/internal/domain"
	"gorm.io/gorm"
)

type MessageLogRepository interface {
	Create(ctx context.Context, l *domain.MessageLog) error
	ListByDeliveryID(ctx context.Context, deliveryID string) ([]domain.MessageLog, error)
}

type MessageRepository interface {
	Create(ctx context.Context, m *domain.Message) error
}

type GormMessageLogRepo struct {
	db *gorm.DB
}

func NewGormMessageLogRepo(db *gorm.DB) *GormMessageLogRepo {
	return &GormMessageLogRepo{db: db}
}

func (r *GormMessageLogRepo) Create(ctx context.Context, l *domain.MessageLog) error {
	model := messageLogModelFromDomain(l)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if l != nil {
		*l = *messageLogModelToDomain(model)
	}
	return nil
}

func (r *GormMessageLogRepo) ListByDeliveryID(ctx context.Context, deliveryID string) ([]domain.MessageLog, error) {
	var models []MessageLogModel
	err := r.db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	logs := make([]domain.MessageLog, 0, len(models))
	for i := range models {
		logs = append(logs, *messageLogModelToDomain(&models[i]))
	}

	return logs, nil
}

type GormMessageRepo struct {
	db *gorm.DB
}

func NewGormMessageRepo(db *gorm.DB) *GormMessageRepo {
	return &GormMessageRepo{db: db}
}

func (r *GormMessageRepo) Create(ctx context.Context, m *domain.Message) error {
	model := messageModelFromDomain(m)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if m != nil {
		*m = *messageModelToDomain(model)
	}
	return nil
}
