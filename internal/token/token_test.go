package token

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-long-enough-32+"

func newTestService() *Service {
	return NewService(Options{
		Secret:   testSecret,
		TTL:      7 * 24 * time.Hour,
		Issuer:   "chitchat-api",
		Audience: "chitchat-users",
	})
}

func TestService_IssueVerifyRoundTrip(t *testing.T) {
	t.Parallel()
	svc := newTestService()

	tok, err := svc.Issue(42)
	require.NoError(t, err)

	claims, err := svc.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), claims.ExpiresAt, time.Minute)
}

func TestService_IssueUsesUniqueIDs(t *testing.T) {
	t.Parallel()
	svc := newTestService()

	a, err := svc.Verify(mustIssue(t, svc, 1))
	require.NoError(t, err)
	b, err := svc.Verify(mustIssue(t, svc, 1))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestService_VerifyFailures(t *testing.T) {
	t.Parallel()
	svc := newTestService()

	sign := func(claims jwt.MapClaims, secret string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}
	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"sub": "1",
			"iss": "chitchat-api",
			"aud": "chitchat-users",
			"exp": time.Now().Add(time.Hour).Unix(),
		}
	}

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"malformed", "not.a.token", ErrInvalid},
		{"wrong secret", sign(base(), "another-secret"), ErrInvalid},
		{"wrong issuer", func() string {
			c := base()
			c["iss"] = "someone-else"
			return sign(c, testSecret)
		}(), ErrInvalid},
		{"wrong audience", func() string {
			c := base()
			c["aud"] = "other-clients"
			return sign(c, testSecret)
		}(), ErrInvalid},
		{"non numeric subject", func() string {
			c := base()
			c["sub"] = "abc"
			return sign(c, testSecret)
		}(), ErrInvalid},
		{"missing expiry", func() string {
			c := base()
			delete(c, "exp")
			return sign(c, testSecret)
		}(), ErrInvalid},
		{"expired", func() string {
			c := base()
			c["exp"] = time.Now().Add(-time.Hour).Unix()
			return sign(c, testSecret)
		}(), ErrExpired},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.Verify(tt.token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestService_ExpiryUsesClock(t *testing.T) {
	t.Parallel()
	svc := newTestService()
	issuedAt := time.Now()
	svc.now = func() time.Time { return issuedAt }

	tok := mustIssue(t, svc, 5)

	svc.now = func() time.Time { return issuedAt.Add(8 * 24 * time.Hour) }
	_, err := svc.Verify(tok)
	assert.ErrorIs(t, err, ErrExpired)
}

func mustIssue(t *testing.T, svc *Service, userID uint) string {
	t.Helper()
	tok, err := svc.Issue(userID)
	require.NoError(t, err)
	return tok
}
