package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrTransactionNotFound = errors.New("credit transaction not found")
	ErrScopeMismatch       = errors.New("credit transaction belongs to another scope")
	ErrNotAConsumption     = errors.New("credit transaction is not a consumption")
	ErrAlreadyRefunded     = errors.New("credit transaction already refunded")
	ErrScopeNotResolvable  = errors.New("scope not resolvable")
)

// InsufficientCreditsError reports how far a consume request fell short.
type InsufficientCreditsError struct {
	Requested int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("%s: requested %d, available %d (short by %d)",
		ErrInsufficientCredits, e.Requested, e.Available, e.Shortfall())
}

func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}

func (e *InsufficientCreditsError) Shortfall() int {
	if e.Requested <= e.Available {
		return 0
	}
	return e.Requested - e.Available
}

// Shortfall extracts the missing credit count from an insufficient credits error.
func Shortfall(err error) (int, bool) {
	var insufficient *InsufficientCreditsError
	if errors.As(err, &insufficient) {
		return insufficient.Shortfall(), true
	}
	return 0, false
}
