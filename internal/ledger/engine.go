package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/shift-dispatch/internal/domain"
	"github.com/kursadbilgin/shift-dispatch/internal/observability"
	"go.uber.org/zap"
)

const refundReasonPrefix = "Refund: "

// Engine implements Ledger over a Store and a Locker.
type Engine struct {
	store   Store
	locker  Locker
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

var _ Ledger = (*Engine)(nil)

func NewEngine(store Store, locker Locker, metrics *observability.Metrics, logger *zap.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if locker == nil {
		locker = NewKeyedMutex()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		store:   store,
		locker:  locker,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (e *Engine) Consume(ctx context.Context, scope domain.Scope, amount int, reason string, messageID *string) ([]domain.CreditTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: consume amount must be positive, got %d", domain.ErrInvalidAmount, amount)
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	unlock, err := e.lock(ctx, scope)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var created []domain.CreditTransaction
	err = e.store.Atomic(ctx, func(tx Tx) error {
		grants, err := tx.LockGrants(ctx, scope)
		if err != nil {
			return fmt.Errorf("failed to lock grants: %w", err)
		}

		now := e.now()
		plan, err := PlanConsumption(grants, amount, now)
		if err != nil {
			return err
		}

		created = make([]domain.CreditTransaction, 0, len(plan))
		for _, step := range plan {
			grant := step.Grant
			grant.CreditsConsumed += step.Amount
			grant.CreditsRemaining -= step.Amount
			grant.UpdatedAt = now
			if err := tx.SaveGrant(ctx, &grant); err != nil {
				return fmt.Errorf("failed to update grant %s: %w", grant.ID, err)
			}

			txn := domain.CreditTransaction{
				ID:             uuid.NewString(),
				OrganizationID: grant.OrganizationID,
				UserID:         grant.UserID,
				GrantID:        grant.ID,
				MessageID:      messageID,
				Delta:          -step.Amount,
				Reason:         reason,
				CreatedAt:      now,
			}
			if err := tx.CreateTransaction(ctx, &txn); err != nil {
				return fmt.Errorf("failed to record consumption: %w", err)
			}
			created = append(created, txn)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.With(observability.ScopeFields(scope)...).Debug("credits consumed",
		zap.Int("amount", amount),
		zap.Int("grantsTouched", len(created)),
	)
	return created, nil
}

func (e *Engine) Refund(ctx context.Context, scope domain.Scope, transactionIDs []string, reason string) ([]domain.CreditTransaction, error) {
	if len(transactionIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one transaction id is required", domain.ErrValidation)
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(transactionIDs))
	for _, id := range transactionIDs {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: transaction %s listed twice", domain.ErrAlreadyRefunded, id)
		}
		seen[id] = struct{}{}
	}

	unlock, err := e.lock(ctx, scope)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var created []domain.CreditTransaction
	err = e.store.Atomic(ctx, func(tx Tx) error {
		grants, err := tx.LockGrants(ctx, scope)
		if err != nil {
			return fmt.Errorf("failed to lock grants: %w", err)
		}
		grantsByID := make(map[string]*domain.CreditGrant, len(grants))
		for i := range grants {
			grantsByID[grants[i].ID] = &grants[i]
		}

		found, err := tx.GetTransactions(ctx, transactionIDs)
		if err != nil {
			return fmt.Errorf("failed to load transactions: %w", err)
		}
		byID := make(map[string]domain.CreditTransaction, len(found))
		for _, t := range found {
			byID[t.ID] = t
		}

		consumptions := make([]domain.CreditTransaction, 0, len(transactionIDs))
		for _, id := range transactionIDs {
			t, ok := byID[id]
			if !ok {
				return fmt.Errorf("%w: %s", domain.ErrTransactionNotFound, id)
			}
			if !scope.OwnsTransaction(t) {
				return fmt.Errorf("%w: %s", domain.ErrScopeMismatch, id)
			}
			if !t.IsConsumption() {
				return fmt.Errorf("%w: %s has delta %d", domain.ErrNotAConsumption, id, t.Delta)
			}
			if t.IsRefunded() {
				return fmt.Errorf("%w: %s", domain.ErrAlreadyRefunded, id)
			}
			if _, ok := grantsByID[t.GrantID]; !ok {
				return fmt.Errorf("%w: grant %s for transaction %s", domain.ErrNotFound, t.GrantID, id)
			}
			consumptions = append(consumptions, t)
		}

		now := e.now()
		touched := make(map[string]struct{})
		created = make([]domain.CreditTransaction, 0, len(consumptions))
		for _, c := range consumptions {
			amount := -c.Delta
			grant := grantsByID[c.GrantID]
			if grant.CreditsConsumed < amount {
				return fmt.Errorf("%w: grant %s has %d consumed, cannot refund %d",
					domain.ErrConflict, grant.ID, grant.CreditsConsumed, amount)
			}
			grant.CreditsConsumed -= amount
			grant.CreditsRemaining += amount
			grant.UpdatedAt = now
			touched[grant.ID] = struct{}{}

			consumptionID := c.ID
			refund := domain.CreditTransaction{
				ID:             uuid.NewString(),
				OrganizationID: c.OrganizationID,
				UserID:         c.UserID,
				GrantID:        c.GrantID,
				MessageID:      c.MessageID,
				Delta:          amount,
				Reason:         refundReason(reason),
				RefundOfID:     &consumptionID,
				CreatedAt:      now,
			}
			if err := tx.CreateTransaction(ctx, &refund); err != nil {
				return fmt.Errorf("failed to record refund: %w", err)
			}
			if err := tx.MarkRefunded(ctx, c.ID, refund.ID); err != nil {
				return err
			}
			created = append(created, refund)
		}

		ids := make([]string, 0, len(touched))
		for id := range touched {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if err := tx.SaveGrant(ctx, grantsByID[id]); err != nil {
				return fmt.Errorf("failed to update grant %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

func (e *Engine) Grant(ctx context.Context, scope domain.Scope, req GrantRequest) (*domain.CreditGrant, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: grant amount must be positive, got %d", domain.ErrInvalidAmount, req.Amount)
	}
	if !req.SourceType.IsValid() {
		return nil, fmt.Errorf("%w: invalid source type %q", domain.ErrValidation, req.SourceType)
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	now := e.now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%w: grant expiry must be in the future", domain.ErrValidation)
	}

	grant := &domain.CreditGrant{
		ID:               uuid.NewString(),
		OrganizationID:   scope.OrganizationID,
		UserID:           scope.UserID,
		SourceType:       req.SourceType,
		SourceRef:        req.SourceRef,
		CreditsGranted:   req.Amount,
		CreditsConsumed:  0,
		CreditsRemaining: req.Amount,
		ExpiresAt:        req.ExpiresAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := e.store.CreateGrant(ctx, grant); err != nil {
		return nil, fmt.Errorf("failed to create grant: %w", err)
	}

	return grant, nil
}

func (e *Engine) TotalAvailable(ctx context.Context, scope domain.Scope) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}

	grants, err := e.store.ListGrants(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("failed to list grants: %w", err)
	}
	return sumAvailable(grants, e.now()), nil
}

// Breakdown returns the scope's spendable grants in the order Consume drains them.
func (e *Engine) Breakdown(ctx context.Context, scope domain.Scope) ([]domain.CreditGrant, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	grants, err := e.store.ListGrants(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	return OrderForConsumption(grants, e.now()), nil
}

func (e *Engine) lock(ctx context.Context, scope domain.Scope) (func(), error) {
	start := time.Now()
	unlock, err := e.locker.Lock(ctx, scope.Key())
	e.metrics.ObserveLedgerLockWait(time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to lock scope %s: %w", scope.Key(), err)
	}
	return unlock, nil
}

func refundReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if strings.HasPrefix(reason, refundReasonPrefix) {
		return reason
	}
	return refundReasonPrefix + reason
}
