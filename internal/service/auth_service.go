// Package service holds the business rules that sit between HTTP handlers
// and repositories.
package service

import (
	"context"
	"strings"
	"time"

	"chitchat/internal/models"
	"chitchat/internal/observability"
	"chitchat/internal/repository"
	"chitchat/internal/token"
	"chitchat/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

// TokenRevoker deny-lists token ids until they expire.
type TokenRevoker interface {
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
}

// AuthService owns sign-up, login and the token lifecycle.
type AuthService struct {
	users      repository.UserRepository
	tokens     *token.Service
	revoker    TokenRevoker
	bcryptCost int
}

// RegisterInput is a sign-up request. DisplayName defaults to Username.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
}

// NewAuthService wires the account store to the token service. revoker may
// be nil, in which case logout only acknowledges. A zero bcryptCost means
// bcrypt.DefaultCost.
func NewAuthService(users repository.UserRepository, tokens *token.Service, revoker TokenRevoker, bcryptCost int) *AuthService {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{users: users, tokens: tokens, revoker: revoker, bcryptCost: bcryptCost}
}

// Register validates and stores a new account and returns it with a fresh token.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, string, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = validation.NormalizeEmail(in.Email)
	in.DisplayName = strings.TrimSpace(in.DisplayName)

	var errs validation.Errors
	errs.Add("username", validation.ValidateUsername(in.Username))
	errs.Add("email", validation.ValidateEmail(in.Email))
	errs.Add("password", validation.ValidatePassword(in.Password))
	errs.Add("displayName", validation.ValidateMaxLength("Display name", in.DisplayName, validation.MaxDisplayNameLength))
	if err := errs.Err(); err != nil {
		return nil, "", err
	}

	field, err := s.users.FindConflict(ctx, in.Username, in.Email)
	if err != nil {
		return nil, "", err
	}
	if field != "" {
		return nil, "", models.NewConflictError(field)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, "", models.NewInternalError(err)
	}

	displayName := in.DisplayName
	if displayName == "" {
		displayName = in.Username
	}
	user := &models.User{
		Username: in.Username,
		Email:    in.Email,
		Password: string(hash),
		Profile:  models.Profile{DisplayName: displayName},
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", err
	}

	tok, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", models.NewInternalError(err)
	}
	return user.Sanitized(), tok, nil
}

// Login checks identifier (username or email) and password.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*models.User, string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, "", models.NewValidationError("Identifier and password are required")
	}

	user, err := s.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		if isCode(err, models.CodeNotFound) {
			observability.AuthFailures.WithLabelValues(models.CodeInvalidCredentials).Inc()
			return nil, "", models.ErrInvalidCredentials
		}
		return nil, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		observability.AuthFailures.WithLabelValues(models.CodeInvalidCredentials).Inc()
		return nil, "", models.ErrInvalidCredentials
	}

	tok, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", models.NewInternalError(err)
	}
	return user.Sanitized(), tok, nil
}

// Refresh issues a new token for an already authenticated user.
func (s *AuthService) Refresh(userID uint) (string, error) {
	tok, err := s.tokens.Issue(userID)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	return tok, nil
}

// Logout revokes the presented token.
func (s *AuthService) Logout(ctx context.Context, claims *token.Claims) error {
	if s.revoker == nil || claims == nil {
		return nil
	}
	if err := s.revoker.RevokeToken(ctx, claims.ID, claims.ExpiresAt); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
