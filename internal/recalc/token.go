package recalc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"impact/internal/core"
)

const tokenIssuer = "impact"

// TokenSource issues the bearer token identifying a user to the endpoint.
type TokenSource interface {
	Token(ctx context.Context, userID string) (string, error)
}

// StaticToken always returns the same token.
type StaticToken string

func (t StaticToken) Token(context.Context, string) (string, error) {
	if t == "" {
		return "", core.ErrUnauthenticated
	}
	return string(t), nil
}

// JWTSource signs short-lived HS256 tokens whose subject is the user id.
type JWTSource struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTSource(secret string, ttl time.Duration) *JWTSource {
	return &JWTSource{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (s *JWTSource) Token(_ context.Context, userID string) (string, error) {
	if err := core.RequireUser(userID); err != nil {
		return "", err
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// UserID validates a token issued by s and returns its subject.
func (s *JWTSource) UserID(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrUnauthenticated, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("%w: %w", core.ErrUnauthenticated, errors.New("invalid token"))
	}
	return claims.Subject, nil
}
