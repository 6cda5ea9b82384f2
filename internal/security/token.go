package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidSessionToken indicates a session token failed verification.
var ErrInvalidSessionToken = errors.New("invalid session token")

// SessionClaims are the claims carried by the signed session cookie.
type SessionClaims struct {
	jwt.RegisteredClaims
}

// IssueSessionToken signs an HS256 token whose subject is userID.
func IssueSessionToken(secret []byte, userID string, issuedAt, expiresAt time.Time) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("issue session token: empty secret")
	}
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, errSign := token.SignedString(secret)
	if errSign != nil {
		return "", fmt.Errorf("issue session token: %w", errSign)
	}
	return signed, nil
}

// ParseSessionToken verifies signature, algorithm and expiry at now and returns the subject.
func ParseSessionToken(secret []byte, raw string, now time.Time) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(secret) == 0 {
		return "", ErrInvalidSessionToken
	}
	claims := &SessionClaims{}
	token, errParse := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if errParse != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSessionToken, errParse)
	}
	if !token.Valid {
		return "", ErrInvalidSessionToken
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidSessionToken)
	}
	return subject, nil
}
