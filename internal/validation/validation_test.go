package validation

import (
	"errors"
	"strings"
	"testing"

	"chitchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePassword(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"Valid", "secret1", false},
		{"Exactly Min Length", "abcde1", false},
		{"Too Short", "abc1", true},
		{"No Digit", "secretpass", true},
		{"No Letter", "12345678", true},
		{"Unicode Letter", "Ångström9", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidatePassword(tt.password)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateUsername(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{"Valid", "test_user123", false},
		{"Leading Underscore", "_alice", false},
		{"Too Short", "tu", true},
		{"Too Long", strings.Repeat("a", 31), true},
		{"Exactly Max", strings.Repeat("a", 30), false},
		{"Illegal Chars", "user@123", true},
		{"Dash", "user-name", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateUsername(tt.username)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{"Valid", "alice@x.com", false},
		{"Empty", "", true},
		{"Invalid Format", "not-an-email", true},
		{"Missing Domain", "user@", true},
		{"Too Long", strings.Repeat("a", 250) + "@x.com", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateEmail(tt.email)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePostContent(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidatePostContent("x"))
	assert.NoError(t, ValidatePostContent(strings.Repeat("a", 280)))
	assert.NoError(t, ValidatePostContent(strings.Repeat("é", 280)), "length counts characters, not bytes")
	assert.Error(t, ValidatePostContent(strings.Repeat("a", 281)))
	assert.Error(t, ValidatePostContent(""))
	assert.Error(t, ValidatePostContent("   "))
}

func TestValidateURL(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateURL("website", ""))
	assert.NoError(t, ValidateURL("website", "https://example.com/me"))
	assert.Error(t, ValidateURL("website", "example.com"))
	assert.Error(t, ValidateURL("website", "ftp://example.com"))
}

func TestErrors(t *testing.T) {
	t.Parallel()

	var errs Errors
	assert.NoError(t, errs.Err())

	errs.Add("username", nil)
	errs.Add("email", ValidateEmail("bad"))
	errs.Add("password", ValidatePassword("abc"))

	err := errs.Err()
	require.Error(t, err)

	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, models.CodeValidation, appErr.Code)
	assert.Equal(t, "Validation failed", appErr.Message)
	require.Len(t, appErr.Fields, 2)
	assert.Equal(t, "email", appErr.Fields[0].Field)
	assert.Equal(t, "password", appErr.Fields[1].Field)
}

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "alice@x.com", NormalizeEmail("  Alice@X.com "))
}
