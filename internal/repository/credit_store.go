package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/shift-dispatch/internal/domain"
	"github.com/kursadbilgin/shift-dispatch/internal/ledger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCreditStore persists the ledger in the database. LockGrants takes
// row locks with SELECT ... FOR UPDATE, so consumers in different processes
// serialize on the scope's grant rows.
type GormCreditStore struct {
	db *gorm.DB
}

var _ ledger.Store = (*GormCreditStore)(nil)

func NewGormCreditStore(db *gorm.DB) *GormCreditStore {
	return &GormCreditStore{db: db}
}

func (s *GormCreditStore) Atomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormCreditTx{db: tx})
	})
}

func (s *GormCreditStore) ListGrants(ctx context.Context, scope domain.Scope) ([]domain.CreditGrant, error) {
	var models []CreditGrantModel
	err := scopeQuery(s.db.WithContext(ctx), scope).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return grantsToDomain(models), nil
}

func (s *GormCreditStore) CreateGrant(ctx context.Context, grant *domain.CreditGrant) error {
	model := grantModelFromDomain(grant)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	*grant = *grantModelToDomain(model)
	return nil
}

// ListTransactions returns the scope's ledger movements, newest first.
func (s *GormCreditStore) ListTransactions(ctx context.Context, scope domain.Scope, limit int) ([]domain.CreditTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	limit = min(limit, 500)

	query := s.db.WithContext(ctx).Model(&CreditTransactionModel{})
	if scope.Kind == domain.ScopeUser {
		query = query.Where("user_id = ?", scope.UserID)
	} else {
		query = query.Where("organization_id = ?", scope.OrganizationID)
	}

	var models []CreditTransactionModel
	if err := query.Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}

	out := make([]domain.CreditTransaction, 0, len(models))
	for i := range models {
		out = append(out, *transactionModelToDomain(&models[i]))
	}
	return out, nil
}

type gormCreditTx struct {
	db *gorm.DB
}

func (t *gormCreditTx) LockGrants(ctx context.Context, scope domain.Scope) ([]domain.CreditGrant, error) {
	var models []CreditGrantModel
	err := scopeQuery(t.db.WithContext(ctx), scope).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return grantsToDomain(models), nil
}

func (t *gormCreditTx) GetTransactions(ctx context.Context, ids []string) ([]domain.CreditTransaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var models []CreditTransactionModel
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	out := make([]domain.CreditTransaction, 0, len(models))
	for i := range models {
		out = append(out, *transactionModelToDomain(&models[i]))
	}
	return out, nil
}

func (t *gormCreditTx) SaveGrant(ctx context.Context, grant *domain.CreditGrant) error {
	result := t.db.WithContext(ctx).
		Model(&CreditGrantModel{}).
		Where("id = ?", grant.ID).
		Updates(map[string]any{
			"credits_consumed":  grant.CreditsConsumed,
			"credits_remaining": grant.CreditsRemaining,
			"updated_at":        grant.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *gormCreditTx) CreateTransaction(ctx context.Context, txn *domain.CreditTransaction) error {
	return t.db.WithContext(ctx).Create(transactionModelFromDomain(txn)).Error
}

func (t *gormCreditTx) MarkRefunded(ctx context.Context, consumptionID, refundID string) error {
	result := t.db.WithContext(ctx).
		Model(&CreditTransactionModel{}).
		Where("id = ? AND refunded_by_id IS NULL", consumptionID).
		Update("refunded_by_id", refundID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyRefunded, consumptionID)
	}
	return nil
}

func scopeQuery(db *gorm.DB, scope domain.Scope) *gorm.DB {
	query := db.Model(&CreditGrantModel{})
	if scope.Kind == domain.ScopeUser {
		return query.Where("user_id = ?", scope.UserID)
	}
	return query.Where("organization_id = ?", scope.OrganizationID)
}

func grantsToDomain(models []CreditGrantModel) []domain.CreditGrant {
	out := make([]domain.CreditGrant, 0, len(models))
	for i := range models {
		out = append(out, *grantModelToDomain(&models[i]))
	}
	return out
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
