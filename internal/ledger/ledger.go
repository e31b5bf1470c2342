// Package ledger implements multi-grant credit accounting.
//
// Credits are drawn from a scope's grants earliest-expiry first. Every consume
// and refund runs inside a single Store unit of work while holding the scope's
// Locker key, so concurrent callers on one scope never observe each other's
// partial writes and never overdraw.
package ledger

import (
	"context"
	"time"

	"github.com/kursadbilgin/shift-dispatch/internal/domain"
)

// Ledger is the credit accounting contract used by callers. Implementations
// differ only in how they serialize access to a scope.
type Ledger interface {
	Consume(ctx context.Context, scope domain.Scope, amount int, reason string, messageID *string) ([]domain.CreditTransaction, error)
	Refund(ctx context.Context, scope domain.Scope, transactionIDs []string, reason string) ([]domain.CreditTransaction, error)
	Grant(ctx context.Context, scope domain.Scope, req GrantRequest) (*domain.CreditGrant, error)
	TotalAvailable(ctx context.Context, scope domain.Scope) (int, error)
	Breakdown(ctx context.Context, scope domain.Scope) ([]domain.CreditGrant, error)
}

// GrantRequest describes a new grant. A nil ExpiresAt never expires.
type GrantRequest struct {
	SourceType domain.SourceType
	Amount     int
	SourceRef  *string
	ExpiresAt  *time.Time
}

// Store persists grants and transactions.
type Store interface {
	// Atomic runs fn as one all-or-nothing unit. Writes made through tx are
	// discarded when fn returns an error.
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	// ListGrants reads the scope's grants without locking.
	ListGrants(ctx context.Context, scope domain.Scope) ([]domain.CreditGrant, error)
	CreateGrant(ctx context.Context, grant *domain.CreditGrant) error
}

// Tx is the view of a Store inside Atomic.
type Tx interface {
	// LockGrants returns the scope's grants and holds them until the unit ends.
	LockGrants(ctx context.Context, scope domain.Scope) ([]domain.CreditGrant, error)
	GetTransactions(ctx context.Context, ids []string) ([]domain.CreditTransaction, error)
	SaveGrant(ctx context.Context, grant *domain.CreditGrant) error
	CreateTransaction(ctx context.Context, txn *domain.CreditTransaction) error
	// MarkRefunded stamps a consumption with its refund. It fails with
	// domain.ErrAlreadyRefunded when the consumption already carries one.
	MarkRefunded(ctx context.Context, consumptionID, refundID string) error
}
