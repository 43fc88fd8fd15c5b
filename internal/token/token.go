// Package token issues and verifies the signed session credentials handed to
// clients after login or registration.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrExpired is returned for well-formed tokens past their expiry.
	ErrExpired = errors.New("token expired")
	// ErrInvalid covers bad signatures, wrong issuer/audience and malformed input.
	ErrInvalid = errors.New("invalid token")
)

// Claims is the verified identity carried by a token.
type Claims struct {
	UserID    uint
	ID        string
	ExpiresAt time.Time
}

// Service signs tokens with a shared HMAC secret.
type Service struct {
	secret   []byte
	ttl      time.Duration
	issuer   string
	audience string
	now      func() time.Time
}

// Options configures a Service.
type Options struct {
	Secret   string
	TTL      time.Duration
	Issuer   string
	Audience string
}

// NewService builds a token service. Now defaults to time.Now.
func NewService(opts Options) *Service {
	return &Service{
		secret:   []byte(opts.Secret),
		ttl:      opts.TTL,
		issuer:   opts.Issuer,
		audience: opts.Audience,
		now:      time.Now,
	}
}

// TTL returns the lifetime applied to new tokens.
func (s *Service) TTL() time.Duration { return s.ttl }

// Issue signs a token for userID.
func (s *Service) Issue(userID uint) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{s.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry, issuer and audience and returns the
// embedded identity.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 32)
	if err != nil || userID == 0 {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalid)
	}

	out := &Claims{UserID: uint(userID), ID: claims.ID}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
