package ledger

import (
	"sort"
	"time"

	"github.com/kursadbilgin/shift-dispatch/internal/domain"
)

// Allocation is the share of a consume request drawn from one grant.
type Allocation struct {
	Grant  domain.CreditGrant
	Amount int
}

// OrderForConsumption returns the grants available at now in the order they
// are drained: earliest expiry first, non-expiring grants last, oldest first
// on ties.
func OrderForConsumption(grants []domain.CreditGrant, now time.Time) []domain.CreditGrant {
	eligible := make([]domain.CreditGrant, 0, len(grants))
	for _, g := range grants {
		if g.IsAvailable(now) {
			eligible = append(eligible, g)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		switch {
		case a.ExpiresAt == nil && b.ExpiresAt != nil:
			return false
		case a.ExpiresAt != nil && b.ExpiresAt == nil:
			return true
		case a.ExpiresAt != nil && b.ExpiresAt != nil && !a.ExpiresAt.Equal(*b.ExpiresAt):
			return a.ExpiresAt.Before(*b.ExpiresAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	return eligible
}

// PlanConsumption splits amount across grants. It returns an
// *domain.InsufficientCreditsError without a plan when the available total
// is short.
func PlanConsumption(grants []domain.CreditGrant, amount int, now time.Time) ([]Allocation, error) {
	ordered := OrderForConsumption(grants, now)

	available := 0
	for _, g := range ordered {
		available += g.CreditsRemaining
	}
	if available < amount {
		return nil, &domain.InsufficientCreditsError{Requested: amount, Available: available}
	}

	needed := amount
	plan := make([]Allocation, 0, len(ordered))
	for _, g := range ordered {
		if needed == 0 {
			break
		}
		take := min(needed, g.CreditsRemaining)
		plan = append(plan, Allocation{Grant: g, Amount: take})
		needed -= take
	}

	return plan, nil
}

func sumAvailable(grants []domain.CreditGrant, now time.Time) int {
	total := 0
	for _, g := range grants {
		if g.IsAvailable(now) {
			total += g.CreditsRemaining
		}
	}
	return total
}
