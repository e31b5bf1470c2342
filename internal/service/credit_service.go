package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/shift-dispatch/internal/domain"
	"github.com/kursadbilgin/shift-dispatch/internal/ledger"
	"github.com/kursadbilgin/shift-dispatch/internal/observability"
	"github.com/kursadbilgin/shift-dispatch/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultTrialDuration         = 14 * 24 * time.Hour
	defaultSubscriptionCreditTTL = 30 * 24 * time.Hour
	messageConsumeReason         = "SMS message"
)

// CreditConfig holds the grant policies applied by CreditService.
type CreditConfig struct {
	TrialCredits          int
	TrialDuration         time.Duration
	SubscriptionCreditTTL time.Duration
}

// CreditService is the application facade over the credit ledger.
type CreditService struct {
	ledger  ledger.Ledger
	users   repository.UserRepository
	cfg     CreditConfig
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewCreditService(
	l ledger.Ledger,
	users repository.UserRepository,
	cfg CreditConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*CreditService, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if cfg.TrialDuration <= 0 {
		cfg.TrialDuration = defaultTrialDuration
	}
	if cfg.SubscriptionCreditTTL <= 0 {
		cfg.SubscriptionCreditTTL = defaultSubscriptionCreditTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CreditService{
		ledger:  l,
		users:   users,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// GrantTrialCredits gives a new organization its trial allowance. It
// returns nil without error when trials are disabled.
func (s *CreditService) GrantTrialCredits(ctx context.Context, organizationID string) (*domain.CreditGrant, error) {
	if s.cfg.TrialCredits <= 0 {
		s.logger.Debug("trial credits disabled, skipping grant", zap.String("organizationId", organizationID))
		return nil, nil
	}

	expiresAt := s.now().Add(s.cfg.TrialDuration)
	return s.GrantCredits(ctx, domain.OrganizationScope(organizationID), ledger.GrantRequest{
		SourceType: domain.SourceTrial,
		Amount:     s.cfg.TrialCredits,
		ExpiresAt:  &expiresAt,
	})
}

// GrantSubscriptionCredits adds a billing period's allowance, expiring
// after the configured subscription TTL.
func (s *CreditService) GrantSubscriptionCredits(ctx context.Context, organizationID string, amount int, subscriptionRef string) (*domain.CreditGrant, error) {
	expiresAt := s.now().Add(s.cfg.SubscriptionCreditTTL)
	return s.GrantCredits(ctx, domain.OrganizationScope(organizationID), ledger.GrantRequest{
		SourceType: domain.SourceSubscription,
		Amount:     amount,
		SourceRef:  optionalString(subscriptionRef),
		ExpiresAt:  &expiresAt,
	})
}

// GrantBundleCredits records a purchased bundle. A nil expiresAt never expires.
func (s *CreditService) GrantBundleCredits(ctx context.Context, organizationID string, amount int, purchaseRef string, expiresAt *time.Time) (*domain.CreditGrant, error) {
	return s.GrantCredits(ctx, domain.OrganizationScope(organizationID), ledger.GrantRequest{
		SourceType: domain.SourceBundle,
		Amount:     amount,
		SourceRef:  optionalString(purchaseRef),
		ExpiresAt:  expiresAt,
	})
}

func (s *CreditService) GrantCredits(ctx context.Context, scope domain.Scope, req ledger.GrantRequest) (*domain.CreditGrant, error) {
	grant, err := s.ledger.Grant(ctx, scope, req)
	if err != nil {
		return nil, err
	}

	s.metrics.AddCreditsGranted(grant.SourceType.String(), grant.CreditsGranted)
	s.logger.With(observability.ScopeFields(scope)...).Info("credits granted",
		zap.String("grantId", grant.ID),
		zap.String("source", grant.SourceType.String()),
		zap.Int("amount", grant.CreditsGranted),
	)
	return grant, nil
}

func (s *CreditService) ConsumeCredits(ctx context.Context, scope domain.Scope, amount int, reason string) ([]domain.CreditTransaction, error) {
	return s.consume(ctx, scope, amount, reason, nil)
}

// ConsumeForMessage reserves one organization credit for an outbound message.
func (s *CreditService) ConsumeForMessage(ctx context.Context, organizationID string, messageID string) ([]domain.CreditTransaction, error) {
	return s.consume(ctx, domain.OrganizationScope(organizationID), 1, messageConsumeReason, optionalString(messageID))
}

func (s *CreditService) consume(ctx context.Context, scope domain.Scope, amount int, reason string, messageID *string) ([]domain.CreditTransaction, error) {
	txns, err := s.ledger.Consume(ctx, scope, amount, reason, messageID)
	if err != nil {
		if shortfall, ok := domain.Shortfall(err); ok {
			s.metrics.IncCreditsInsufficient(scope.Kind.String())
			s.logger.With(observability.ScopeFields(scope)...).Info("credit consumption rejected",
				zap.Int("requested", amount),
				zap.Int("shortfall", shortfall),
			)
		}
		return nil, err
	}

	s.metrics.AddCreditsConsumed(scope.Kind.String(), amount)
	return txns, nil
}

func (s *CreditService) RefundCredits(ctx context.Context, scope domain.Scope, transactionIDs []string, reason string) ([]domain.CreditTransaction, error) {
	refunds, err := s.ledger.Refund(ctx, scope, transactionIDs, reason)
	if err != nil {
		return nil, err
	}

	restored := 0
	for _, refund := range refunds {
		restored += refund.Delta
	}
	s.metrics.AddCreditsRefunded(scope.Kind.String(), restored)
	s.logger.With(observability.ScopeFields(scope)...).Info("credits refunded",
		zap.Int("transactions", len(refunds)),
		zap.Int("amount", restored),
	)
	return refunds, nil
}

func (s *CreditService) GetAvailableCredits(ctx context.Context, scope domain.Scope) (int, error) {
	return s.ledger.TotalAvailable(ctx, scope)
}

func (s *CreditService) GetCreditBreakdown(ctx context.Context, scope domain.Scope) ([]domain.CreditGrant, error) {
	return s.ledger.Breakdown(ctx, scope)
}

// ResolveUserScope maps a user to its ledger scope. Users outside an
// organization cannot hold credits.
func (s *CreditService) ResolveUserScope(ctx context.Context, userID string) (domain.Scope, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Scope{}, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if s.users == nil {
		return domain.Scope{}, fmt.Errorf("%w: user lookup is not configured", domain.ErrScopeNotResolvable)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return domain.Scope{}, err
	}
	if user.OrganizationID == nil || strings.TrimSpace(*user.OrganizationID) == "" {
		return domain.Scope{}, fmt.Errorf("%w: user %s has no organization", domain.ErrScopeNotResolvable, userID)
	}

	return domain.UserScope(*user.OrganizationID, user.ID), nil
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
