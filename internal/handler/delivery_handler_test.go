package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/shift-dispatch/internal/domain"
	"github.com/kursadbilgin/shift-dispatch/internal/queue"
	"github.com/kursadbilgin/shift-dispatch/internal/repository"
	"github.com/kursadbilgin/shift-dispatch/internal/service"
)

type stubDeliveryService struct {
	recordFn  func(ctx context.Context, req service.DispatchRequest) (*domain.PushNotificationDelivery, error)
	summaryFn func(ctx context.Context, campaignID string) (*service.CampaignSummary, error)
}

func (s *stubDeliveryService) RecordDispatch(ctx context.Context, req service.DispatchRequest) (*domain.PushNotificationDelivery, error) {
	if s.recordFn != nil {
		return s.recordFn(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (s *stubDeliveryService) GetCampaignSummary(ctx context.Context, campaignID string) (*service.CampaignSummary, error) {
	if s.summaryFn != nil {
		return s.summaryFn(ctx, campaignID)
	}
	return nil, domain.ErrNotFound
}

type stubReceiptPublisher struct {
	mu        sync.Mutex
	published []queue.ReceiptMessage
	queues    []string
	err       error
}

func (p *stubReceiptPublisher) Publish(ctx context.Context, queueName string, msg queue.ReceiptMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.queues = append(p.queues, queueName)
	p.published = append(p.published, msg)
	return nil
}

func newDeliveryTestApp(t *testing.T, svc DeliveryService, publisher ReceiptPublisher) *fiber.App {
	t.Helper()
	return newTestApp(t, func(app *fiber.App) error {
		return RegisterDeliveryRoutes(app, svc, publisher)
	})
}

func TestDeliveryHandlerRecordDispatch(t *testing.T) {
	t.Parallel()

	due := time.Date(2026, 3, 2, 12, 5, 0, 0, time.UTC)
	var got service.DispatchRequest
	svc := &stubDeliveryService{
		recordFn: func(ctx context.Context, req service.DispatchRequest) (*domain.PushNotificationDelivery, error) {
			got = req
			if req.ContactID == "" {
				return nil, fmt.Errorf("%w: contact id is required", domain.ErrValidation)
			}
			return &domain.PushNotificationDelivery{
				ID:             "d-1",
				NotificationID: req.NotificationID,
				ContactID:      req.ContactID,
				JobID:          req.JobID,
				CampaignID:     req.CampaignID,
				Status:         domain.DeliveryStatusSent,
				FallbackDueAt:  due,
			}, nil
		},
	}
	app := newDeliveryTestApp(t, svc, &stubReceiptPublisher{})

	resp, body := performRequest(t, app, http.MethodPost, "/v1/push/deliveries",
		`{"contactId":"c-1","jobId":"j-1","campaignId":"camp-1","notificationId":"n-1","templateId":"tpl-1"}`)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", resp.StatusCode, string(body))
	}
	if got.TemplateID == nil || *got.TemplateID != "tpl-1" || got.CampaignID == nil || *got.CampaignID != "camp-1" {
		t.Fatalf("request = %+v, want template and campaign forwarded", got)
	}

	var parsed deliveryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.ID != "d-1" || parsed.Status != "sent" || !parsed.FallbackDueAt.Equal(due) {
		t.Fatalf("response = %+v, unexpected", parsed)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/push/deliveries", `{"jobId":"j-1","notificationId":"n-2"}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/push/deliveries", `not json`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for malformed body", resp.StatusCode)
	}
}

func TestDeliveryHandlerPublishReceipt(t *testing.T) {
	t.Parallel()

	publisher := &stubReceiptPublisher{}
	app := newDeliveryTestApp(t, &stubDeliveryService{}, publisher)

	testCases := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "explicit time", body: `{"notificationId":"n-1","deliveredAt":"2026-03-02T12:01:00+03:00"}`, wantStatus: fiber.StatusAccepted},
		{name: "defaults time", body: `{"notificationId":"n-2"}`, wantStatus: fiber.StatusAccepted},
		{name: "missing id", body: `{"notificationId":"  "}`, wantStatus: fiber.StatusBadRequest},
	}

	for _, tc := range testCases {
		resp, body := performRequest(t, app, http.MethodPost, "/v1/push/receipts", tc.body)
		if resp.StatusCode != tc.wantStatus {
			t.Fatalf("%s: status = %d, want %d, body=%s", tc.name, resp.StatusCode, tc.wantStatus, string(body))
		}
	}

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	if len(publisher.published) != 2 {
		t.Fatalf("published = %d, want 2", len(publisher.published))
	}
	for _, q := range publisher.queues {
		if q != queue.ReceiptQueue {
			t.Fatalf("queue = %q, want %q", q, queue.ReceiptQueue)
		}
	}
	first := publisher.published[0]
	want := time.Date(2026, 3, 2, 9, 1, 0, 0, time.UTC)
	if !first.DeliveredAt.Equal(want) || first.DeliveredAt.Location() != time.UTC {
		t.Fatalf("deliveredAt = %v, want %v in UTC", first.DeliveredAt, want)
	}
	if publisher.published[1].DeliveredAt.IsZero() {
		t.Fatal("expected default deliveredAt to be set")
	}
}

func TestDeliveryHandlerPublishReceiptBrokerFailure(t *testing.T) {
	t.Parallel()

	publisher := &stubReceiptPublisher{err: errors.New("channel closed")}
	app := newDeliveryTestApp(t, &stubDeliveryService{}, publisher)

	resp, body := performRequest(t, app, http.MethodPost, "/v1/push/receipts", `{"notificationId":"n-1"}`)
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("status = %d, want 500, body=%s", resp.StatusCode, string(body))
	}
}

func TestDeliveryHandlerCampaignSummary(t *testing.T) {
	t.Parallel()

	svc := &stubDeliveryService{
		summaryFn: func(ctx context.Context, campaignID string) (*service.CampaignSummary, error) {
			if campaignID != "camp-1" {
				return nil, fmt.Errorf("%w: campaign %s", domain.ErrNotFound, campaignID)
			}
			return &service.CampaignSummary{
				CampaignID: campaignID,
				TotalCount: 3,
				Counts: []repository.StatusCount{
					{Status: domain.DeliveryStatusDelivered, Count: 2},
					{Status: domain.DeliveryStatusSMSFallback, Count: 1},
				},
			}, nil
		},
	}
	app := newDeliveryTestApp(t, svc, &stubReceiptPublisher{})

	resp, body := performRequest(t, app, http.MethodGet, "/v1/campaigns/camp-1/summary", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	var parsed campaignSummaryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.TotalCount != 3 || len(parsed.Counts) != 2 || parsed.Counts[1].Status != "sms_fallback" {
		t.Fatalf("summary = %+v, unexpected", parsed)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/campaigns/camp-9/summary", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRegisterDeliveryRoutesRequiresDependencies(t *testing.T) {
	t.Parallel()

	if err := RegisterDeliveryRoutes(fiber.New(), nil, &stubReceiptPublisher{}); err == nil {
		t.Fatal("expected error for nil service")
	}
	if err := RegisterDeliveryRoutes(fiber.New(), &stubDeliveryService{}, nil); err == nil {
		t.Fatal("expected error for nil publisher")
	}
}
