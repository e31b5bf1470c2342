package domain

import (
	"fmt"
	"strings"
	"time"
)

// SourceType identifies where a credit grant originated.
type SourceType string

const (
	SourceTrial        SourceType = "trial"
	SourceSubscription SourceType = "subscription"
	SourceBundle       SourceType = "bundle"
)

func (s SourceType) String() string { return string(s) }

func (s SourceType) IsValid() bool {
	switch s {
	case SourceTrial, SourceSubscription, SourceBundle:
		return true
	}
	return false
}

func ParseSourceTypeFromString(s string) (SourceType, error) {
	st := SourceType(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid source type %q", ErrValidation, s)
	}
	return st, nil
}

// ScopeKind selects which grant owner a ledger operation is evaluated against.
type ScopeKind string

const (
	ScopeOrganization ScopeKind = "organization"
	ScopeUser         ScopeKind = "user"
)

func (k ScopeKind) String() string { return string(k) }

// Scope is the accounting boundary for credit sufficiency.
type Scope struct {
	Kind           ScopeKind
	OrganizationID string
	UserID         string
}

func OrganizationScope(organizationID string) Scope {
	return Scope{Kind: ScopeOrganization, OrganizationID: organizationID}
}

func UserScope(organizationID, userID string) Scope {
	return Scope{Kind: ScopeUser, OrganizationID: organizationID, UserID: userID}
}

func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeOrganization:
		if s.OrganizationID == "" {
			return fmt.Errorf("%w: organization id is required", ErrValidation)
		}
	case ScopeUser:
		if s.UserID == "" {
			return fmt.Errorf("%w: user id is required", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: invalid scope kind %q", ErrValidation, s.Kind)
	}
	return nil
}

// Key identifies the scope for locking.
func (s Scope) Key() string {
	if s.Kind == ScopeUser {
		return "user:" + s.UserID
	}
	return "org:" + s.OrganizationID
}

func (s Scope) OwnsGrant(g CreditGrant) bool {
	if s.Kind == ScopeUser {
		return g.UserID == s.UserID
	}
	return g.OrganizationID == s.OrganizationID
}

func (s Scope) OwnsTransaction(t CreditTransaction) bool {
	if s.Kind == ScopeUser {
		return t.UserID == s.UserID
	}
	return t.OrganizationID == s.OrganizationID
}

// CreditGrant is a bucket of credits from one source.
type CreditGrant struct {
	ID               string
	OrganizationID   string
	UserID           string
	SourceType       SourceType
	SourceRef        *string
	CreditsGranted   int
	CreditsConsumed  int
	CreditsRemaining int
	ExpiresAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsAvailable reports whether the grant can still be drawn from at now.
func (g CreditGrant) IsAvailable(now time.Time) bool {
	if g.CreditsRemaining <= 0 {
		return false
	}
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

func (g CreditGrant) IsBalanced() bool {
	return g.CreditsRemaining+g.CreditsConsumed == g.CreditsGranted &&
		g.CreditsRemaining >= 0 && g.CreditsConsumed >= 0
}

// CreditTransaction is an append-only record of one ledger movement.
type CreditTransaction struct {
	ID             string
	OrganizationID string
	UserID         string
	GrantID        string
	MessageID      *string
	Delta          int
	Reason         string
	RefundOfID     *string
	RefundedByID   *string
	CreatedAt      time.Time
}

func (t CreditTransaction) IsConsumption() bool { return t.Delta < 0 }

func (t CreditTransaction) IsRefunded() bool { return t.RefundedByID != nil }
