package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/shift-dispatch/internal/domain"
	"gorm.io/gorm"
)

type StatusCount struct {
	Status domain.DeliveryStatus `gorm:"column:status"`
	Count  int                   `gorm:"column:count"`
}

type DeliveryRepository interface {
	Create(ctx context.Context, d *domain.PushNotificationDelivery) error
	GetByID(ctx context.Context, id string) (*domain.PushNotificationDelivery, error)
	// ClaimDueFallbacks flips fallback_processed for up to limit overdue sent
	// deliveries and returns only the rows this caller won.
	ClaimDueFallbacks(ctx context.Context, now time.Time, limit int) ([]domain.PushNotificationDelivery, error)
	// MarkDeliveredByNotificationID applies a push receipt. It reports false
	// when no unclaimed sent delivery matched.
	MarkDeliveredByNotificationID(ctx context.Context, notificationID string, deliveredAt time.Time) (bool, error)
	MarkDelivered(ctx context.Context, id string, deliveredAt time.Time) error
	MarkSMSFallback(ctx context.Context, id string, sentAt time.Time, providerMessageID *string) error
	MarkFailed(ctx context.Context, id string, reason string) error
	// ReleaseClaim makes a claimed delivery eligible again at retryAt.
	ReleaseClaim(ctx context.Context, id string, retryAt time.Time, reason string) error
	GetCampaignSummary(ctx context.Context, campaignID string) ([]StatusCount, error)
}

type GormDeliveryRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormDeliveryRepo(db *gorm.DB) *GormDeliveryRepo {
	return &GormDeliveryRepo{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *GormDeliveryRepo) Create(ctx context.Context, d *domain.PushNotificationDelivery) error {
	model := deliveryModelFromDomain(d)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if d != nil {
		*d = *deliveryModelToDomain(model)
	}
	return nil
}

func (r *GormDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.PushNotificationDelivery, error) {
	var model PushNotificationDeliveryModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if isNotFound(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deliveryModelToDomain(&model), nil
}

func (r *GormDeliveryRepo) ClaimDueFallbacks(ctx context.Context, now time.Time, limit int) ([]domain.PushNotificationDelivery, error) {
	var candidates []PushNotificationDeliveryModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND fallback_processed = ? AND fallback_due_at < ?", domain.DeliveryStatusSent, false, now).
		Order("fallback_due_at ASC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to select due fallbacks: %w", err)
	}

	claimed := make([]domain.PushNotificationDelivery, 0, len(candidates))
	for i := range candidates {
		candidate := &candidates[i]
		result := r.db.WithContext(ctx).
			Model(&PushNotificationDeliveryModel{}).
			Where("id = ? AND status = ? AND fallback_processed = ?", candidate.ID, domain.DeliveryStatusSent, false).
			Updates(map[string]any{
				"fallback_processed":  true,
				"fallback_attempts":   gorm.Expr("fallback_attempts + 1"),
				"fallback_claimed_at": now,
				"updated_at":          now,
			})
		if result.Error != nil {
			// Rows claimed so far belong to this caller and must still be processed.
			return claimed, fmt.Errorf("failed to claim delivery %s: %w", candidate.ID, result.Error)
		}
		if result.RowsAffected != 1 {
			continue
		}

		candidate.FallbackProcessed = true
		candidate.FallbackAttempts++
		claimedAt := now
		candidate.FallbackClaimedAt = &claimedAt
		candidate.UpdatedAt = now
		claimed = append(claimed, *deliveryModelToDomain(candidate))
	}

	return claimed, nil
}

func (r *GormDeliveryRepo) MarkDeliveredByNotificationID(ctx context.Context, notificationID string, deliveredAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&PushNotificationDeliveryModel{}).
		Where("notification_id = ? AND status = ? AND fallback_processed = ?", notificationID, domain.DeliveryStatusSent, false).
		Updates(map[string]any{
			"status":       domain.DeliveryStatusDelivered,
			"delivered_at": deliveredAt,
			"updated_at":   deliveredAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormDeliveryRepo) MarkDelivered(ctx context.Context, id string, deliveredAt time.Time) error {
	return r.finishClaimed(ctx, id, deliveredAt, map[string]any{
		"status":       domain.DeliveryStatusDelivered,
		"delivered_at": deliveredAt,
	})
}

func (r *GormDeliveryRepo) MarkSMSFallback(ctx context.Context, id string, sentAt time.Time, providerMessageID *string) error {
	return r.finishClaimed(ctx, id, sentAt, map[string]any{
		"status":               domain.DeliveryStatusSMSFallback,
		"sms_fallback_sent_at": sentAt,
		"provider_message_id":  providerMessageID,
		"last_error":           nil,
	})
}

func (r *GormDeliveryRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	return r.finishClaimed(ctx, id, r.now(), map[string]any{
		"status":     domain.DeliveryStatusFailed,
		"last_error": reason,
	})
}

func (r *GormDeliveryRepo) ReleaseClaim(ctx context.Context, id string, retryAt time.Time, reason string) error {
	result := r.db.WithContext(ctx).
		Model(&PushNotificationDeliveryModel{}).
		Where("id = ? AND status = ? AND fallback_processed = ?", id, domain.DeliveryStatusSent, true).
		Updates(map[string]any{
			"fallback_processed":  false,
			"fallback_due_at":     retryAt,
			"fallback_claimed_at": nil,
			"last_error":          reason,
			"updated_at":          r.now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

// finishClaimed moves a delivery the caller has claimed into a terminal status
// stamped at.
func (r *GormDeliveryRepo) finishClaimed(ctx context.Context, id string, at time.Time, updates map[string]any) error {
	updates["updated_at"] = at
	result := r.db.WithContext(ctx).
		Model(&PushNotificationDeliveryModel{}).
		Where("id = ? AND status = ? AND fallback_processed = ?", id, domain.DeliveryStatusSent, true).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormDeliveryRepo) GetCampaignSummary(ctx context.Context, campaignID string) ([]StatusCount, error) {
	var summaries []StatusCount
	err := r.db.WithContext(ctx).
		Model(&PushNotificationDeliveryModel{}).
		Select("status, COUNT(*) as count").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Order("status ASC").
		Scan(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}
