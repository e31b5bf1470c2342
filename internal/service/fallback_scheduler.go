package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/shift-dispatch/internal/domain"
	"github.com/kursadbilgin/shift-dispatch/internal/observability"
	"github.com/kursadbilgin/shift-dispatch/internal/provider"
	"github.com/kursadbilgin/shift-dispatch/internal/ratelimit"
	"github.com/kursadbilgin/shift-dispatch/internal/render"
	"github.com/kursadbilgin/shift-dispatch/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultFallbackScanInterval = 30 * time.Second
	defaultFallbackScanLimit    = 200
	defaultFallbackConcurrency  = 8
	defaultFallbackMaxAttempts  = 3
	defaultFallbackRetryBackoff = 5 * time.Minute
	defaultFallbackCycleTimeout = 2 * time.Minute
	settleTimeout               = 10 * time.Second

	noCampaignKey = "no-campaign"
	refundReason  = "SMS send failed"
)

var errNoFallbackContent = errors.New("no template body or custom message for fallback")

// CreditReserver is the slice of CreditService the scheduler charges against.
type CreditReserver interface {
	ConsumeForMessage(ctx context.Context, organizationID string, messageID string) ([]domain.CreditTransaction, error)
	RefundCredits(ctx context.Context, scope domain.Scope, transactionIDs []string, reason string) ([]domain.CreditTransaction, error)
}

// FallbackDependencies are the collaborators of FallbackScheduler.
type FallbackDependencies struct {
	Deliveries  repository.DeliveryRepository
	Jobs        repository.JobRepository
	Contacts    repository.ContactRepository
	Templates   repository.TemplateRepository
	Messages    repository.MessageRepository
	MessageLogs repository.MessageLogRepository
	Credits     CreditReserver
	SMS         provider.SMSProvider
	RateLimiter ratelimit.RateLimiter
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

type FallbackConfig struct {
	Interval     time.Duration
	Limit        int
	Concurrency  int
	MaxAttempts  int
	RetryBackoff time.Duration
	CycleTimeout time.Duration
	FromNumber   string
}

// FallbackScheduler turns unacknowledged push notifications into SMS.
type FallbackScheduler struct {
	deliveries  repository.DeliveryRepository
	jobs        repository.JobRepository
	contacts    repository.ContactRepository
	templates   repository.TemplateRepository
	messages    repository.MessageRepository
	messageLogs repository.MessageLogRepository
	credits     CreditReserver
	sms         provider.SMSProvider
	rateLimiter ratelimit.RateLimiter
	metrics     *observability.Metrics
	logger      *zap.Logger

	interval     time.Duration
	limit        int
	concurrency  int
	maxAttempts  int
	retryBackoff time.Duration
	cycleTimeout time.Duration
	fromNumber   string

	now   func() time.Time
	newID func() string
}

type fallbackGroup struct {
	key        string
	jobID      string
	templateID *string
	deliveries []domain.PushNotificationDelivery
}

type groupContent struct {
	job          domain.Job
	templateBody string
}

func NewFallbackScheduler(deps FallbackDependencies, cfg FallbackConfig) (*FallbackScheduler, error) {
	switch {
	case deps.Deliveries == nil:
		return nil, fmt.Errorf("delivery repository is required")
	case deps.Jobs == nil || deps.Contacts == nil || deps.Templates == nil:
		return nil, fmt.Errorf("job, contact and template repositories are required")
	case deps.Messages == nil || deps.MessageLogs == nil:
		return nil, fmt.Errorf("message repositories are required")
	case deps.Credits == nil:
		return nil, fmt.Errorf("credit reserver is required")
	case deps.SMS == nil:
		return nil, fmt.Errorf("sms provider is required")
	}

	if cfg.Interval <= 0 {
		cfg.Interval = defaultFallbackScanInterval
	}
	if cfg.Limit <= 0 {
		cfg.Limit = defaultFallbackScanLimit
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultFallbackConcurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultFallbackMaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultFallbackRetryBackoff
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = defaultFallbackCycleTimeout
	}
	if deps.RateLimiter == nil {
		deps.RateLimiter = ratelimit.Unlimited{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &FallbackScheduler{
		deliveries:   deps.Deliveries,
		jobs:         deps.Jobs,
		contacts:     deps.Contacts,
		templates:    deps.Templates,
		messages:     deps.Messages,
		messageLogs:  deps.MessageLogs,
		credits:      deps.Credits,
		sms:          deps.SMS,
		rateLimiter:  deps.RateLimiter,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		interval:     cfg.Interval,
		limit:        cfg.Limit,
		concurrency:  cfg.Concurrency,
		maxAttempts:  cfg.MaxAttempts,
		retryBackoff: cfg.RetryBackoff,
		cycleTimeout: cfg.CycleTimeout,
		fromNumber:   cfg.FromNumber,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
	}, nil
}

// Start runs a cycle immediately and then once per interval until ctx ends.
func (s *FallbackScheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("fallback initial cycle failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.RunCycle(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("fallback cycle failed", zap.Error(err))
			}
		}
	}
}

// RunCycle claims overdue deliveries and processes every claimed row. Only
// a claim failure is returned; per-delivery failures are recorded on the
// delivery and logged.
//
// A cancelled ctx stops the cycle before the claim. Claimed rows are worked on
// a context detached from ctx and bounded by the cycle timeout, so shutdown
// never strands a claim or a reserved credit.
func (s *FallbackScheduler) RunCycle(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	claimed, claimErr := s.deliveries.ClaimDueFallbacks(ctx, s.now(), s.limit)
	if len(claimed) == 0 {
		if claimErr != nil {
			return 0, fmt.Errorf("failed to claim due fallbacks: %w", claimErr)
		}
		return 0, nil
	}

	s.metrics.AddFallbackClaimed(len(claimed))
	s.logger.Info("claimed due fallbacks", zap.Int("count", len(claimed)))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cycleTimeout)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for _, group := range groupDeliveries(claimed) {
		content, err := s.resolveGroup(ctx, group)
		if err != nil {
			s.logger.Warn("fallback group could not be resolved",
				zap.String("group", group.key),
				zap.Int("deliveries", len(group.deliveries)),
				zap.Error(err),
			)
			for i := range group.deliveries {
				s.releaseOrExhaust(ctx, group.deliveries[i], err)
			}
			continue
		}

		for i := range group.deliveries {
			delivery := group.deliveries[i]
			g.Go(func() error {
				s.processDelivery(ctx, delivery, content)
				return nil
			})
		}
	}

	_ = g.Wait()

	if claimErr != nil {
		return len(claimed), fmt.Errorf("claim interrupted after %d deliveries: %w", len(claimed), claimErr)
	}
	return len(claimed), nil
}

// groupDeliveries buckets claimed rows by campaign, then by the job and
// template they share, so content is fetched once per bucket.
func groupDeliveries(deliveries []domain.PushNotificationDelivery) []*fallbackGroup {
	groups := make(map[string]*fallbackGroup)
	keys := make([]string, 0)

	for _, d := range deliveries {
		campaign := noCampaignKey
		if d.CampaignID != nil && *d.CampaignID != "" {
			campaign = *d.CampaignID
		}
		template := ""
		if d.TemplateID != nil {
			template = *d.TemplateID
		}
		key := campaign + "/" + d.JobID + "/" + template

		group, ok := groups[key]
		if !ok {
			group = &fallbackGroup{key: key, jobID: d.JobID, templateID: d.TemplateID}
			groups[key] = group
			keys = append(keys, key)
		}
		group.deliveries = append(group.deliveries, d)
	}

	sort.Strings(keys)
	ordered := make([]*fallbackGroup, 0, len(keys))
	for _, key := range keys {
		ordered = append(ordered, groups[key])
	}
	return ordered
}

func (s *FallbackScheduler) resolveGroup(ctx context.Context, group *fallbackGroup) (groupContent, error) {
	job, err := s.jobs.GetByID(ctx, group.jobID)
	if err != nil {
		return groupContent{}, fmt.Errorf("failed to load job %s: %w", group.jobID, err)
	}

	content := groupContent{job: *job}
	if group.templateID != nil {
		template, err := s.templates.GetByID(ctx, *group.templateID)
		if err != nil {
			return groupContent{}, fmt.Errorf("failed to load template %s: %w", *group.templateID, err)
		}
		content.templateBody = template.Body
	}

	if strings.TrimSpace(content.templateBody) != "" {
		return content, nil
	}
	for _, d := range group.deliveries {
		if d.CustomMessage == nil || strings.TrimSpace(*d.CustomMessage) == "" {
			return groupContent{}, errNoFallbackContent
		}
	}
	return content, nil
}

func (s *FallbackScheduler) processDelivery(ctx context.Context, d domain.PushNotificationDelivery, content groupContent) {
	logger := s.logger.With(observability.DeliveryFields(d)...)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing fallback",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	contact, err := s.contacts.GetByID(ctx, d.ContactID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("contact not found, skipping fallback")
			s.metrics.IncFallbackOutcome(observability.OutcomeSkipped)
			return
		}
		s.releaseOrExhaust(ctx, d, fmt.Errorf("failed to load contact: %w", err))
		return
	}

	if contact.IsOptedOut {
		logger.Debug("contact opted out, skipping fallback")
		s.metrics.IncFallbackOutcome(observability.OutcomeOptedOut)
		return
	}

	if contact.HasLogin {
		if err := s.deliveries.MarkDelivered(ctx, d.ID, s.now()); err != nil {
			logger.Error("failed to mark delivery delivered", zap.Error(err))
			return
		}
		s.metrics.IncFallbackOutcome(observability.OutcomeDelivered)
		return
	}

	s.sendFallback(ctx, logger, d, *contact, content)
}

func (s *FallbackScheduler) sendFallback(
	ctx context.Context,
	logger *zap.Logger,
	d domain.PushNotificationDelivery,
	contact domain.Contact,
	content groupContent,
) {
	organizationID := organizationFor(d, content.job)

	if err := s.writeLog(ctx, d, organizationID, domain.EventSMSFallbackTriggered, ""); err != nil {
		s.releaseOrExhaust(ctx, d, fmt.Errorf("failed to write fallback log: %w", err))
		return
	}

	body := content.templateBody
	if strings.TrimSpace(body) == "" && d.CustomMessage != nil {
		body = *d.CustomMessage
	}
	body = render.Render(body, contact, content.job)
	if strings.TrimSpace(body) == "" {
		s.fail(ctx, logger, d, organizationID, "empty message body", observability.OutcomeSMSFailed)
		return
	}

	to, err := domain.ToE164(contact.CountryCode, contact.PhoneNumber)
	if err != nil {
		s.fail(ctx, logger, d, organizationID, fmt.Sprintf("invalid phone number: %v", err), observability.OutcomeSMSFailed)
		return
	}

	messageID := s.newID()

	var reservation []domain.CreditTransaction
	if organizationID == "" {
		logger.Warn("delivery has no organization, sending uncharged")
	} else {
		reservation, err = s.credits.ConsumeForMessage(ctx, organizationID, messageID)
		if err != nil {
			if errors.Is(err, domain.ErrInsufficientCredits) {
				s.fail(ctx, logger, d, organizationID, "insufficient credits", observability.OutcomeInsufficient)
				return
			}
			s.releaseOrExhaust(ctx, d, fmt.Errorf("failed to reserve credit: %w", err))
			return
		}
	}

	if err := s.rateLimiter.Wait(ctx, ratelimit.KeySMS); err != nil {
		s.refund(ctx, logger, organizationID, reservation)
		s.releaseOrExhaust(ctx, d, fmt.Errorf("rate limiter wait failed: %w", err))
		return
	}

	start := time.Now()
	resp, sendErr := s.sms.Send(ctx, provider.SMSMessage{From: s.fromNumber, To: to, Body: body})
	s.metrics.ObserveSMSSendDuration(time.Since(start))

	if sendErr != nil {
		s.refund(ctx, logger, organizationID, reservation)
		if provider.Resendable(sendErr) {
			s.releaseOrExhaust(ctx, d, sendErr)
			return
		}
		s.fail(ctx, logger, d, organizationID, sendErr.Error(), observability.OutcomeSMSFailed)
		return
	}

	var providerMessageID *string
	if resp != nil && strings.TrimSpace(resp.MessageID) != "" {
		value := resp.MessageID
		providerMessageID = &value
	}

	ctx, cancel := settleContext(ctx)
	defer cancel()

	sentAt := s.now()
	if err := s.deliveries.MarkSMSFallback(ctx, d.ID, sentAt, providerMessageID); err != nil {
		logger.Error("sms sent but delivery status update failed", zap.Error(err))
	}

	if organizationID != "" {
		message := &domain.Message{
			ID:                messageID,
			OrganizationID:    organizationID,
			ContactID:         contact.ID,
			JobID:             content.job.ID,
			Direction:         domain.DirectionOutbound,
			Body:              body,
			ProviderMessageID: providerMessageID,
			CreatedAt:         sentAt,
		}
		if err := s.messages.Create(ctx, message); err != nil {
			logger.Error("failed to record outbound message", zap.String("messageId", messageID), zap.Error(err))
		}
	}

	if err := s.writeLog(ctx, d, organizationID, domain.EventSMSSent, ""); err != nil {
		logger.Error("failed to write sms_sent log", zap.Error(err))
	}

	s.metrics.IncFallbackOutcome(observability.OutcomeSMSSent)
	logger.Info("sms fallback sent", zap.String("messageId", messageID))
}

func (s *FallbackScheduler) fail(ctx context.Context, logger *zap.Logger, d domain.PushNotificationDelivery, organizationID string, reason string, outcome string) {
	ctx, cancel := settleContext(ctx)
	defer cancel()

	if err := s.deliveries.MarkFailed(ctx, d.ID, reason); err != nil {
		logger.Error("failed to mark delivery failed", zap.Error(err))
	}
	if err := s.writeLog(ctx, d, organizationID, domain.EventSMSFailed, reason); err != nil {
		logger.Error("failed to write sms_failed log", zap.Error(err))
	}

	s.metrics.IncFallbackOutcome(outcome)
	logger.Warn("sms fallback failed", zap.String("reason", reason))
}

func (s *FallbackScheduler) refund(ctx context.Context, logger *zap.Logger, organizationID string, reservation []domain.CreditTransaction) {
	if organizationID == "" || len(reservation) == 0 {
		return
	}

	ctx, cancel := settleContext(ctx)
	defer cancel()

	ids := make([]string, 0, len(reservation))
	for _, txn := range reservation {
		ids = append(ids, txn.ID)
	}

	if _, err := s.credits.RefundCredits(ctx, domain.OrganizationScope(organizationID), ids, refundReason); err != nil {
		logger.Error("failed to refund reserved credit",
			zap.Strings("transactionIds", ids),
			zap.Error(err),
		)
	}
}

// releaseOrExhaust hands a claimed delivery back to a later cycle until its
// attempts run out. It is never used once the gateway may have accepted the SMS.
func (s *FallbackScheduler) releaseOrExhaust(ctx context.Context, d domain.PushNotificationDelivery, cause error) {
	logger := s.logger.With(observability.DeliveryFields(d)...)

	ctx, cancel := settleContext(ctx)
	defer cancel()

	if d.FallbackAttempts >= s.maxAttempts {
		reason := fmt.Sprintf("fallback attempts exhausted: %v", cause)
		if err := s.deliveries.MarkFailed(ctx, d.ID, reason); err != nil {
			logger.Error("failed to mark exhausted delivery failed", zap.Error(err))
			return
		}
		s.metrics.IncFallbackOutcome(observability.OutcomeExhausted)
		logger.Warn("fallback attempts exhausted", zap.Int("attempts", d.FallbackAttempts), zap.Error(cause))
		return
	}

	attempts := max(d.FallbackAttempts, 1)
	retryAt := s.now().Add(s.retryBackoff * time.Duration(attempts))
	if err := s.deliveries.ReleaseClaim(ctx, d.ID, retryAt, cause.Error()); err != nil {
		logger.Error("failed to release fallback claim", zap.Error(err))
		return
	}

	s.metrics.IncFallbackOutcome(observability.OutcomeReleased)
	logger.Warn("fallback released for retry",
		zap.Int("attempts", d.FallbackAttempts),
		zap.Time("retryAt", retryAt),
		zap.Error(cause),
	)
}

func (s *FallbackScheduler) writeLog(ctx context.Context, d domain.PushNotificationDelivery, organizationID string, event domain.MessageLogEvent, detail string) error {
	entry := &domain.MessageLog{
		ID:         s.newID(),
		DeliveryID: d.ID,
		Event:      event,
		CreatedAt:  s.now(),
	}
	if organizationID != "" {
		entry.OrganizationID = &organizationID
	}
	if detail != "" {
		entry.Detail = &detail
	}
	return s.messageLogs.Create(ctx, entry)
}

// settleContext outlives ctx so state-restoring writes land even after the
// cycle deadline.
func settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

func organizationFor(d domain.PushNotificationDelivery, job domain.Job) string {
	if d.OrganizationID != nil && strings.TrimSpace(*d.OrganizationID) != "" {
		return *d.OrganizationID
	}
	return strings.TrimSpace(job.OrganizationID)
}
