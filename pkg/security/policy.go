package security

import (
	"errors"
	"fmt"
	"unicode"
)

// ErrWeakPassword is returned when a password fails the character-class policy.
var ErrWeakPassword = errors.New("password must contain lowercase, uppercase, digit and symbol characters")

const defaultMinPasswordLength = 8

// ValidatePasswordPolicy checks minimum length plus character-class diversity.
// A non-positive minLength falls back to 8.
func ValidatePasswordPolicy(password string, minLength int) error {
	if minLength <= 0 {
		minLength = defaultMinPasswordLength
	}
	if len([]rune(password)) < minLength {
		return fmt.Errorf("password must be at least %d characters", minLength)
	}

	var lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if !lower || !upper || !digit || !symbol {
		return ErrWeakPassword
	}
	return nil
}
