// Package auth mints and verifies the bearer tokens that carry a caller's
// identity key. The ledger trusts upstream signature verification; the
// token subject is simply the identity in hex.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pairmatch/ledger/internal/identity"
)

// Sign issues an HMAC token whose subject is the given identity key.
func Sign(key identity.Key, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   key.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies the token and returns the caller identity from its
// subject claim.
func Parse(tokenString, secret string) (identity.Key, error) {
	var zero identity.Key

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return zero, errors.New("auth: invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return zero, errors.New("auth: invalid token claims")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return zero, errors.New("auth: token missing subject")
	}

	key, err := identity.Parse(sub)
	if err != nil {
		return zero, fmt.Errorf("auth: subject is not an identity key: %w", err)
	}
	return key, nil
}
