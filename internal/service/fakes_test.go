package service

import (
	"context"
	"sync"
	"time"

	"github.com/kursadbilgin/shift-dispatch/internal/domain"
	"github.com/kursadbilgin/shift-dispatch/internal/provider"
	"github.com/kursadbilgin/shift-dispatch/internal/queue"
	"github.com/kursadbilgin/shift-dispatch/internal/repository"
)

func ptr[T any](v T) *T {
	return &v
}

type releaseCall struct {
	id      string
	retryAt time.Time
	reason  string
}

type fakeDeliveryRepo struct {
	createFn             func(ctx context.Context, d *domain.PushNotificationDelivery) error
	claimFn              func(ctx context.Context, now time.Time, limit int) ([]domain.PushNotificationDelivery, error)
	markByNotificationFn func(ctx context.Context, notificationID string, deliveredAt time.Time) (bool, error)
	campaignSummaryFn    func(ctx context.Context, campaignID string) ([]repository.StatusCount, error)

	mu          sync.Mutex
	delivered   []string
	smsFallback map[string]*string
	failed      map[string]string
	released    []releaseCall
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{
		smsFallback: make(map[string]*string),
		failed:      make(map[string]string),
	}
}

func (f *fakeDeliveryRepo) Create(ctx context.Context, d *domain.PushNotificationDelivery) error {
	if f.createFn != nil {
		return f.createFn(ctx, d)
	}
	return nil
}

func (f *fakeDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.PushNotificationDelivery, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeDeliveryRepo) ClaimDueFallbacks(ctx context.Context, now time.Time, limit int) ([]domain.PushNotificationDelivery, error) {
	if f.claimFn != nil {
		return f.claimFn(ctx, now, limit)
	}
	return nil, nil
}

func (f *fakeDeliveryRepo) MarkDeliveredByNotificationID(ctx context.Context, notificationID string, deliveredAt time.Time) (bool, error) {
	if f.markByNotificationFn != nil {
		return f.markByNotificationFn(ctx, notificationID, deliveredAt)
	}
	return false, nil
}

func (f *fakeDeliveryRepo) MarkDelivered(ctx context.Context, id string, deliveredAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, id)
	return nil
}

func (f *fakeDeliveryRepo) MarkSMSFallback(ctx context.Context, id string, sentAt time.Time, providerMessageID *string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.smsFallback[id] = providerMessageID
	return nil
}

func (f *fakeDeliveryRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = reason
	return nil
}

func (f *fakeDeliveryRepo) ReleaseClaim(ctx context.Context, id string, retryAt time.Time, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, releaseCall{id: id, retryAt: retryAt, reason: reason})
	return nil
}

func (f *fakeDeliveryRepo) GetCampaignSummary(ctx context.Context, campaignID string) ([]repository.StatusCount, error) {
	if f.campaignSummaryFn != nil {
		return f.campaignSummaryFn(ctx, campaignID)
	}
	return nil, nil
}

type fakeJobRepo struct {
	jobs map[string]domain.Job
}

func (f *fakeJobRepo) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &job, nil
}

type fakeContactRepo struct {
	getByIDFn func(ctx context.Context, id string) (*domain.Contact, error)
	contacts  map[string]domain.Contact
}

func (f *fakeContactRepo) GetByID(ctx context.Context, id string) (*domain.Contact, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	contact, ok := f.contacts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &contact, nil
}

type fakeTemplateRepo struct {
	templates map[string]domain.Template
}

func (f *fakeTemplateRepo) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	template, ok := f.templates[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &template, nil
}

type fakeUserRepo struct {
	users map[string]domain.User
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &user, nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []domain.Message
}

func (f *fakeMessageRepo) Create(ctx context.Context, m *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, *m)
	return nil
}

type fakeMessageLogRepo struct {
	mu   sync.Mutex
	logs []domain.MessageLog
}

func (f *fakeMessageLogRepo) Create(ctx context.Context, l *domain.MessageLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, *l)
	return nil
}

func (f *fakeMessageLogRepo) ListByDeliveryID(ctx context.Context, deliveryID string) ([]domain.MessageLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.MessageLog, 0)
	for _, l := range f.logs {
		if l.DeliveryID == deliveryID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeMessageLogRepo) events(deliveryID string) []domain.MessageLogEvent {
	logs, _ := f.ListByDeliveryID(context.Background(), deliveryID)
	events := make([]domain.MessageLogEvent, 0, len(logs))
	for _, l := range logs {
		events = append(events, l.Event)
	}
	return events
}

type fakeSMSProvider struct {
	sendFn func(ctx context.Context, msg provider.SMSMessage) (*provider.ProviderResponse, error)

	mu   sync.Mutex
	sent []provider.SMSMessage
}

func (f *fakeSMSProvider) Send(ctx context.Context, msg provider.SMSMessage) (*provider.ProviderResponse, error) {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()

	if f.sendFn != nil {
		return f.sendFn(ctx, msg)
	}
	return &provider.ProviderResponse{StatusCode: 200, MessageID: "sm-1"}, nil
}

func (f *fakeSMSProvider) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeRateLimiter struct {
	waitFn func(ctx context.Context, key string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, key string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, key)
	}
	return nil
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	return nil
}

func (f *fakeConsumer) Close() error {
	return nil
}
