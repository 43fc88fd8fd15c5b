// Package middleware provides the Fiber middleware shared by every route:
// authentication, request logging, tracing, rate limiting and feature gates.
package middleware

import (
	"context"
	"errors"
	"strings"

	"chitchat/internal/models"
	"chitchat/internal/observability"
	"chitchat/internal/token"

	"github.com/gofiber/fiber/v2"
)

// Fiber locals written by the auth middleware.
const (
	LocalUserID = "userID"
	LocalUser   = "user"
	LocalClaims = "claims"
)

var (
	errNoToken      = &models.AppError{Code: models.CodeNoToken, Message: "Access token required"}
	errInvalidToken = &models.AppError{Code: models.CodeInvalidToken, Message: "Invalid token"}
	errTokenExpired = &models.AppError{Code: models.CodeTokenExpired, Message: "Token expired"}
	errUserNotFound = &models.AppError{Code: models.CodeUserNotFound, Message: "User not found"}
)

// UserLookup loads the account behind a verified token.
type UserLookup interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// RevocationList answers whether a token id was logged out.
type RevocationList interface {
	IsRevoked(ctx context.Context, jti string) bool
}

// Auth resolves bearer tokens to users.
type Auth struct {
	tokens  *token.Service
	users   UserLookup
	revoked RevocationList
}

// NewAuth builds the auth middleware. revoked may be nil.
func NewAuth(tokens *token.Service, users UserLookup, revoked RevocationList) *Auth {
	return &Auth{tokens: tokens, users: users, revoked: revoked}
}

// Resolve verifies raw and loads its user. Errors are AppErrors carrying one
// of the NO_TOKEN, INVALID_TOKEN, TOKEN_EXPIRED, USER_NOT_FOUND or AUTH_ERROR
// codes.
func (a *Auth) Resolve(ctx context.Context, raw string) (*models.User, *token.Claims, error) {
	if raw == "" {
		return nil, nil, errNoToken
	}
	claims, err := a.tokens.Verify(raw)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, nil, errTokenExpired
		}
		return nil, nil, errInvalidToken
	}
	if a.revoked != nil && a.revoked.IsRevoked(ctx, claims.ID) {
		return nil, nil, errInvalidToken
	}

	user, err := a.users.GetByID(ctx, claims.UserID)
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) && appErr.Code == models.CodeNotFound {
			return nil, nil, errUserNotFound
		}
		return nil, nil, &models.AppError{Code: models.CodeAuth, Message: "Authentication error", Err: err}
	}
	return user.Sanitized(), claims, nil
}

// RequireAuth rejects requests without a valid bearer token.
func (a *Auth) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, claims, err := a.Resolve(c.UserContext(), BearerToken(c))
		if err != nil {
			var appErr *models.AppError
			if errors.As(err, &appErr) {
				observability.AuthFailures.WithLabelValues(appErr.Code).Inc()
				if appErr.Code == models.CodeAuth {
					observability.Logger.ErrorContext(c.UserContext(), "authentication lookup failed", "error", appErr.Err)
					return models.RespondWithError(c, fiber.StatusInternalServerError, err)
				}
			}
			return models.RespondWithError(c, fiber.StatusUnauthorized, err)
		}
		attach(c, user, claims)
		return c.Next()
	}
}

// OptionalAuth attaches the user when a valid token is present and lets the
// request through either way.
func (a *Auth) OptionalAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := BearerToken(c)
		if raw == "" {
			return c.Next()
		}
		if user, claims, err := a.Resolve(c.UserContext(), raw); err == nil {
			attach(c, user, claims)
		}
		return c.Next()
	}
}

func attach(c *fiber.Ctx, user *models.User, claims *token.Claims) {
	c.Locals(LocalUserID, user.ID)
	c.Locals(LocalUser, user)
	c.Locals(LocalClaims, claims)
	c.SetUserContext(observability.WithUserID(c.UserContext(), user.ID))
}

// BearerToken returns the second space-separated part of the Authorization header.
func BearerToken(c *fiber.Ctx) string {
	parts := strings.Split(c.Get(fiber.HeaderAuthorization), " ")
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// UserID returns the authenticated user id, or 0 for anonymous requests.
func UserID(c *fiber.Ctx) uint {
	id, _ := c.Locals(LocalUserID).(uint)
	return id
}

// CurrentUser returns the authenticated user, or nil.
func CurrentUser(c *fiber.Ctx) *models.User {
	u, _ := c.Locals(LocalUser).(*models.User)
	return u
}

// CurrentClaims returns the verified token claims, or nil.
func CurrentClaims(c *fiber.Ctx) *token.Claims {
	cl, _ := c.Locals(LocalClaims).(*token.Claims)
	return cl
}
