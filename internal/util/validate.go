// Package util provides input validation utilities.
package util

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

// Validation errors
var (
	ErrEmptyField   = fmt.Errorf("field cannot be empty")
	ErrInvalidEmail = fmt.Errorf("invalid email address")
	ErrInvalidPhone = fmt.Errorf("invalid phone number")
)

// phoneRegex matches international phone numbers with optional separators.
var phoneRegex = regexp.MustCompile(`^\+?[0-9][0-9 ()\-]{5,19}$`)

// ValidateEmail checks if a string is a valid email address.
func ValidateEmail(email string) error {
	if email == "" {
		return ErrEmptyField
	}

	_, err := mail.ParseAddress(email)
	if err != nil {
		return ErrInvalidEmail
	}

	return nil
}

// ValidatePhone checks if a string looks like a dialable phone number.
func ValidatePhone(phone string) error {
	if phone == "" {
		return ErrEmptyField
	}

	if !phoneRegex.MatchString(phone) {
		return ErrInvalidPhone
	}

	return nil
}

// SanitizeString removes leading/trailing whitespace and normalizes internal whitespace.
func SanitizeString(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Join(strings.Fields(s), " ")
	return s
}
