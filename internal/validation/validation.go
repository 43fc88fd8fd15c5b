// Package validation holds input checks that return structured field errors.
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"chitchat/internal/models"
)

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
	MinPasswordLength = 6
	MaxEmailLength    = 254

	MaxDisplayNameLength = 50
	MaxBioLength         = 160
	MaxLocationLength    = 50
	MaxImagesPerPost     = 4
	MaxImageAltLength    = 200
)

// Errors accumulates field failures. The zero value is ready to use.
type Errors []models.FieldError

// Add records err against field when err is non-nil.
func (e *Errors) Add(field string, err error) {
	if err != nil {
		*e = append(*e, models.FieldError{Field: field, Message: err.Error()})
	}
}

// Err returns nil when nothing failed, otherwise a VALIDATION_ERROR AppError
// listing every failure.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return models.NewFieldValidationError(e)
}

// ValidateUsername checks length and the allowed character set.
func ValidateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < MinUsernameLength || n > MaxUsernameLength {
		return fmt.Errorf("username must be between %d and %d characters", MinUsernameLength, MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("username can only contain letters, numbers, and underscores")
	}
	return nil
}

// ValidateEmail checks the address shape.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if len(email) > MaxEmailLength {
		return fmt.Errorf("email must be at most %d characters", MaxEmailLength)
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("please provide a valid email")
	}
	return nil
}

// ValidatePassword requires a minimum length plus at least one letter and one digit.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLength)
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return fmt.Errorf("password must contain at least one letter and one number")
	}
	return nil
}

// ValidateMaxLength rejects values longer than max characters.
func ValidateMaxLength(name, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return fmt.Errorf("%s cannot exceed %d characters", name, max)
	}
	return nil
}

// ValidateURL accepts absolute http and https URLs. Empty values pass.
func ValidateURL(name, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be a valid URL", name)
	}
	return nil
}

// ValidatePostContent enforces the 1..280 character rule on trimmed content.
func ValidatePostContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("post content is required")
	}
	if utf8.RuneCountInString(content) > models.MaxPostLength {
		return fmt.Errorf("post content must be between 1 and %d characters", models.MaxPostLength)
	}
	return nil
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
