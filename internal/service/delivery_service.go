package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/shift-dispatch/internal/domain"
	"github.com/kursadbilgin/shift-dispatch/internal/observability"
	"github.com/kursadbilgin/shift-dispatch/internal/queue"
	"github.com/kursadbilgin/shift-dispatch/internal/repository"
	"go.uber.org/zap"
)

const defaultFallbackDelay = 5 * time.Minute

const (
	receiptApplied = "applied"
	receiptIgnored = "ignored"
	receiptFailed  = "failed"
)

// DispatchRequest describes a push notification that was just handed to the
// push provider.
type DispatchRequest struct {
	ContactID      string
	JobID          string
	CampaignID     *string
	OrganizationID *string
	NotificationID string
	TemplateID     *string
	CustomMessage  *string
	FallbackDueAt  *time.Time
}

type CampaignSummary struct {
	CampaignID string
	TotalCount int
	Counts     []repository.StatusCount
}

// DeliveryService records push dispatches and applies push receipts.
type DeliveryService struct {
	deliveries    repository.DeliveryRepository
	fallbackDelay time.Duration
	metrics       *observability.Metrics
	logger        *zap.Logger
	now           func() time.Time
}

func NewDeliveryService(
	deliveries repository.DeliveryRepository,
	fallbackDelay time.Duration,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*DeliveryService, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if fallbackDelay <= 0 {
		fallbackDelay = defaultFallbackDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeliveryService{
		deliveries:    deliveries,
		fallbackDelay: fallbackDelay,
		metrics:       metrics,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *DeliveryService) RecordDispatch(ctx context.Context, req DispatchRequest) (*domain.PushNotificationDelivery, error) {
	now := s.now()
	dueAt := now.Add(s.fallbackDelay)
	if req.FallbackDueAt != nil {
		dueAt = req.FallbackDueAt.UTC()
	}

	delivery := &domain.PushNotificationDelivery{
		ID:             uuid.NewString(),
		ContactID:      strings.TrimSpace(req.ContactID),
		JobID:          strings.TrimSpace(req.JobID),
		CampaignID:     req.CampaignID,
		OrganizationID: req.OrganizationID,
		NotificationID: strings.TrimSpace(req.NotificationID),
		TemplateID:     req.TemplateID,
		CustomMessage:  req.CustomMessage,
		Status:         domain.DeliveryStatusSent,
		FallbackDueAt:  dueAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := delivery.Validate(); err != nil {
		return nil, err
	}

	if err := s.deliveries.Create(ctx, delivery); err != nil {
		return nil, fmt.Errorf("failed to record push dispatch: %w", err)
	}

	s.logger.Debug("push dispatch recorded",
		append(observability.DeliveryFields(*delivery), zap.Time("fallbackDueAt", dueAt))...,
	)
	return delivery, nil
}

// RecordPushReceipt marks a delivery delivered. It reports false when the
// fallback already claimed the delivery or no delivery matched.
func (s *DeliveryService) RecordPushReceipt(ctx context.Context, notificationID string, deliveredAt time.Time) (bool, error) {
	if strings.TrimSpace(notificationID) == "" {
		return false, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	if deliveredAt.IsZero() {
		deliveredAt = s.now()
	}

	applied, err := s.deliveries.MarkDeliveredByNotificationID(ctx, notificationID, deliveredAt.UTC())
	if err != nil {
		s.metrics.IncReceipt(receiptFailed)
		return false, fmt.Errorf("failed to apply push receipt: %w", err)
	}

	if !applied {
		s.metrics.IncReceipt(receiptIgnored)
		observability.WithContextLogger(s.logger, ctx).Info("push receipt ignored, delivery already claimed or unknown",
			zap.String("notificationId", notificationID),
		)
		return false, nil
	}

	s.metrics.IncReceipt(receiptApplied)
	return true, nil
}

// HandleReceipt is the queue handler for push receipts.
func (s *DeliveryService) HandleReceipt(ctx context.Context, msg queue.ReceiptMessage) error {
	ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)

	_, err := s.RecordPushReceipt(ctx, msg.NotificationID, msg.DeliveredAt)
	if errors.Is(err, domain.ErrValidation) {
		return fmt.Errorf("%w: %v", queue.ErrRejectMessage, err)
	}
	return err
}

// ConsumeReceipts blocks consuming the receipt queue until ctx ends.
func (s *DeliveryService) ConsumeReceipts(ctx context.Context, consumer queue.Consumer) error {
	if consumer == nil {
		return fmt.Errorf("receipt consumer is required")
	}

	s.logger.Info("receipt consumer started", zap.String("queue", queue.ReceiptQueue))
	err := consumer.Consume(ctx, queue.ReceiptQueue, s.HandleReceipt)
	s.logger.Info("receipt consumer stopped", zap.String("queue", queue.ReceiptQueue))
	return err
}

func (s *DeliveryService) GetCampaignSummary(ctx context.Context, campaignID string) (*CampaignSummary, error) {
	if strings.TrimSpace(campaignID) == "" {
		return nil, fmt.Errorf("%w: campaign id is required", domain.ErrValidation)
	}

	counts, err := s.deliveries.GetCampaignSummary(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		return nil, domain.ErrNotFound
	}

	total := 0
	for _, c := range counts {
		total += c.Count
	}

	return &CampaignSummary{CampaignID: campaignID, TotalCount: total, Counts: counts}, nil
}
