package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	appErr "github.com/iac-studio/envforge/pkg/errors"
)

// TokenService issues and checks the bearer tokens of the HTTP API.
type TokenService interface {
	Issue(subject string, ttl time.Duration) (string, error)
	Parse(token string) (string, error)
}

type tokenService struct {
	hmacSecret []byte
	now        func() time.Time
}

func NewTokenService(secret []byte) TokenService {
	return &tokenService{hmacSecret: secret, now: time.Now}
}

func (s *tokenService) Issue(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", appErr.New(appErr.CodeInvalid, "token subject is required")
	}
	if ttl <= 0 {
		return "", appErr.New(appErr.CodeInvalid, "token ttl must be positive")
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	signed, err := token.SignedString(s.hmacSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse returns the subject of a valid token.
func (s *tokenService) Parse(tokenStr string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.hmacSecret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", appErr.Wrap(err, appErr.CodeUnauthorized, "invalid token")
	}
	if claims.Subject == "" {
		return "", appErr.New(appErr.CodeUnauthorized, "token has no subject")
	}
	return claims.Subject, nil
}
