package domain

import (
	"fmt"
	"strings"
)

const maxE164Digits = 15

// ToE164 joins a country calling code and a national number into +<digits> form.
// A national number that already carries a leading '+' is treated as international.
func ToE164(countryCode, nationalNumber string) (string, error) {
	national := strings.TrimSpace(nationalNumber)
	if strings.HasPrefix(national, "+") {
		digits := digitsOnly(national)
		if err := checkE164Length(digits); err != nil {
			return "", err
		}
		return "+" + digits, nil
	}

	if strings.HasPrefix(national, "00") {
		digits := digitsOnly(national[2:])
		if err := checkE164Length(digits); err != nil {
			return "", err
		}
		return "+" + digits, nil
	}

	cc := digitsOnly(countryCode)
	if cc == "" {
		return "", fmt.Errorf("%w: country code is required", ErrValidation)
	}

	digits := strings.TrimLeft(digitsOnly(national), "0")
	if digits == "" {
		return "", fmt.Errorf("%w: phone number is required", ErrValidation)
	}

	full := cc + digits
	if err := checkE164Length(full); err != nil {
		return "", err
	}
	return "+" + full, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func checkE164Length(digits string) error {
	if len(digits) < 7 || len(digits) > maxE164Digits {
		return fmt.Errorf("%w: phone number must have 7 to %d digits, got %d", ErrValidation, maxE164Digits, len(digits))
	}
	return nil
}
