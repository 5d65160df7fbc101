// Package auth issues and verifies the bearer tokens that identify callers.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"learnloop-service/internal/domain"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload: sub carries the user ID.
type Claims struct {
	jwt.RegisteredClaims
	Role domain.Role `json:"role"`
}

// TokenService signs HS256 tokens with a shared secret.
type TokenService struct {
	secret []byte
	expiry time.Duration
	issuer string
	now    func() time.Time
}

func NewTokenService(secret string, expiry time.Duration) *TokenService {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &TokenService{secret: []byte(secret), expiry: expiry, issuer: "learnloop", now: time.Now}
}

// Issue mints a token for caller.
func (s *TokenService) Issue(caller domain.Caller) (string, error) {
	if caller.UserID == "" {
		return "", fmt.Errorf("issue token: empty user id")
	}
	role, ok := domain.ParseRole(string(caller.Role))
	if !ok {
		return "", fmt.Errorf("issue token: unknown role %q", caller.Role)
	}
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.UserID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
		Role: role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Parse verifies tokenStr and returns the caller it identifies.
func (s *TokenService) Parse(tokenStr string) (domain.Caller, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(s.issuer))
	if err != nil {
		return domain.Caller{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return domain.Caller{}, ErrInvalidToken
	}
	role, ok := domain.ParseRole(string(claims.Role))
	if !ok {
		return domain.Caller{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return domain.Caller{UserID: claims.Subject, Role: role}, nil
}
