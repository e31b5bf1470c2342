package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/shift-dispatch/internal/domain"
	"github.com/kursadbilgin/shift-dispatch/internal/queue"
	"github.com/kursadbilgin/shift-dispatch/internal/service"
)

type DeliveryService interface {
	RecordDispatch(ctx context.Context, req service.DispatchRequest) (*domain.PushNotificationDelivery, error)
	GetCampaignSummary(ctx context.Context, campaignID string) (*service.CampaignSummary, error)
}

// ReceiptPublisher hands push receipts to the worker through the broker.
type ReceiptPublisher interface {
	Publish(ctx context.Context, queue string, msg queue.ReceiptMessage) error
}

type DeliveryHandler struct {
	service   DeliveryService
	publisher ReceiptPublisher
}

func NewDeliveryHandler(service DeliveryService, publisher ReceiptPublisher) (*DeliveryHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("delivery service is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("receipt publisher is required")
	}
	return &DeliveryHandler{service: service, publisher: publisher}, nil
}

func RegisterDeliveryRoutes(router fiber.Router, service DeliveryService, publisher ReceiptPublisher) error {
	h, err := NewDeliveryHandler(service, publisher)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/push/deliveries", h.RecordDispatch)
	v1.Post("/push/receipts", h.PublishReceipt)
	v1.Get("/campaigns/:campaignId/summary", h.GetCampaignSummary)

	return nil
}

type dispatchRequest struct {
	ContactID      string     `json:"contactId"`
	JobID          string     `json:"jobId"`
	CampaignID     *string    `json:"campaignId,omitempty"`
	OrganizationID *string    `json:"organizationId,omitempty"`
	NotificationID string     `json:"notificationId"`
	TemplateID     *string    `json:"templateId,omitempty"`
	CustomMessage  *string    `json:"customMessage,omitempty"`
	FallbackDueAt  *time.Time `json:"fallbackDueAt,omitempty"`
}

type receiptRequest struct {
	NotificationID string     `json:"notificationId"`
	DeliveredAt    *time.Time `json:"deliveredAt,omitempty"`
}

type deliveryResponse struct {
	ID             string    `json:"id"`
	NotificationID string    `json:"notificationId"`
	ContactID      string    `json:"contactId"`
	JobID          string    `json:"jobId"`
	CampaignID     *string   `json:"campaignId,omitempty"`
	Status         string    `json:"status"`
	FallbackDueAt  time.Time `json:"fallbackDueAt"`
	CreatedAt      time.Time `json:"createdAt"`
}

type campaignSummaryResponse struct {
	CampaignID string                    `json:"campaignId"`
	TotalCount int                       `json:"totalCount"`
	Counts     []campaignStatusCountItem `json:"counts"`
}

type campaignStatusCountItem struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

func (h *DeliveryHandler) RecordDispatch(c *fiber.Ctx) error {
	var req dispatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	delivery, err := h.service.RecordDispatch(c.Context(), service.DispatchRequest{
		ContactID:      req.ContactID,
		JobID:          req.JobID,
		CampaignID:     req.CampaignID,
		OrganizationID: req.OrganizationID,
		NotificationID: req.NotificationID,
		TemplateID:     req.TemplateID,
		CustomMessage:  req.CustomMessage,
		FallbackDueAt:  req.FallbackDueAt,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(deliveryResponse{
		ID:             delivery.ID,
		NotificationID: delivery.NotificationID,
		ContactID:      delivery.ContactID,
		JobID:          delivery.JobID,
		CampaignID:     delivery.CampaignID,
		Status:         delivery.Status.String(),
		FallbackDueAt:  delivery.FallbackDueAt,
		CreatedAt:      delivery.CreatedAt,
	})
}

func (h *DeliveryHandler) PublishReceipt(c *fiber.Ctx) error {
	var req receiptRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	msg := queue.ReceiptMessage{
		NotificationID: strings.TrimSpace(req.NotificationID),
		DeliveredAt:    time.Now().UTC(),
		CorrelationID:  requestCorrelationID(c),
	}
	if req.DeliveredAt != nil {
		msg.DeliveredAt = req.DeliveredAt.UTC()
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if err := h.publisher.Publish(c.Context(), queue.ReceiptQueue, msg); err != nil {
		return fmt.Errorf("failed to enqueue push receipt: %w", err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"notificationId": msg.NotificationID,
		"status":         "accepted",
	})
}

func (h *DeliveryHandler) GetCampaignSummary(c *fiber.Ctx) error {
	summary, err := h.service.GetCampaignSummary(c.Context(), c.Params("campaignId"))
	if err != nil {
		return err
	}

	counts := make([]campaignStatusCountItem, 0, len(summary.Counts))
	for _, count := range summary.Counts {
		counts = append(counts, campaignStatusCountItem{Status: count.Status.String(), Count: count.Count})
	}

	return c.JSON(campaignSummaryResponse{
		CampaignID: summary.CampaignID,
		TotalCount: summary.TotalCount,
		Counts:     counts,
	})
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
