// Package validator checks the user-supplied fields of an account.
//
// Every function is pure: no I/O, no state. A nil error means the value passed;
// otherwise the error is an *apperror.AppError of kind ErrValidation whose Field
// names the offending input and whose Message is the reason.
package validator

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mipt-portal/userservice/internal/apperror"
)

const (
	MinEmailLength    = 5
	MinPasswordLength = 8
	MaxPasswordLength = 30

	// MaxPasswordBytes is bcrypt's input limit. Thirty multi-byte characters
	// can exceed it.
	MaxPasswordBytes = 72

	// MinStrength is the lowest PasswordStrength score that passes.
	MinStrength = 4.0
)

// Reasons reported in AppError.Message.
const (
	ReasonEmailRequired  = "email required"
	ReasonNotLowercase   = "must be lowercase"
	ReasonBadFormat      = "bad format"
	ReasonNameRequired   = "name required"
	ReasonNameWhitespace = "name must not contain spaces"
	ReasonPasswordLength = "password must be 8 to 30 characters"
	ReasonPasswordBytes  = "password must be at most 72 bytes"
	ReasonPasswordWeak   = "password too weak"
)

// Strength weights. Each applies at most once per password.
const (
	weightLower   = 1.0
	weightUpper   = 2.0
	weightDigit   = 1.5
	weightSpecial = 2.0
	weightLength  = 1.5

	// goodLength is exclusive: only passwords longer than this earn weightLength.
	goodLength = 10
)

// emailPattern accepts phystech mailboxes: an alphanumeric-bounded local part of at
// least two characters with '.', '_' or '-' allowed inside.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*[a-zA-Z0-9]@phystech\.edu$`)

const specialChars = "!?@#$%&*_-"

// ValidateEmail checks length, case and the phystech address format, in that order.
func ValidateEmail(email string) error {
	if utf8.RuneCountInString(email) < MinEmailLength {
		return apperror.ValidationFailed("email", ReasonEmailRequired)
	}
	if email != strings.ToLower(email) {
		return apperror.ValidationFailed("email", ReasonNotLowercase)
	}
	if !emailPattern.MatchString(email) {
		return apperror.ValidationFailed("email", ReasonBadFormat)
	}
	return nil
}

// ValidateName rejects empty names and names containing any whitespace.
func ValidateName(name string) error {
	if name == "" {
		return apperror.ValidationFailed("name", ReasonNameRequired)
	}
	if strings.ContainsFunc(name, unicode.IsSpace) {
		return apperror.ValidationFailed("name", ReasonNameWhitespace)
	}
	return nil
}

// ValidatePassword checks that the password length, in characters, is within
// [MinPasswordLength, MaxPasswordLength] and that its UTF-8 encoding fits in
// MaxPasswordBytes.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength || n > MaxPasswordLength {
		return apperror.ValidationFailed("password", ReasonPasswordLength)
	}
	if len(password) > MaxPasswordBytes {
		return apperror.ValidationFailed("password", ReasonPasswordBytes)
	}
	return nil
}

// PasswordStrength scores a password by the character classes it uses:
//
//	lowercase letter      1.0
//	uppercase letter      2.0
//	decimal digit         1.5
//	one of !?@#$%&*_-     2.0
//	more than 10 chars    1.5
//
// Each class counts once no matter how many characters hit it.
func PasswordStrength(password string) float64 {
	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
		if strings.ContainsRune(specialChars, r) {
			hasSpecial = true
		}
	}

	score := 0.0
	if hasLower {
		score += weightLower
	}
	if hasUpper {
		score += weightUpper
	}
	if hasDigit {
		score += weightDigit
	}
	if hasSpecial {
		score += weightSpecial
	}
	if utf8.RuneCountInString(password) > goodLength {
		score += weightLength
	}
	return score
}

// PasswordStrengthOK fails when PasswordStrength is below MinStrength.
func PasswordStrengthOK(password string) error {
	if PasswordStrength(password) < MinStrength {
		return apperror.ValidationFailed("password", ReasonPasswordWeak)
	}
	return nil
}
