package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MFAClaims are the claims carried by a temporary MFA token. The token is
// issued after a correct password when a second factor is still pending;
// it grants nothing except the right to complete that second step.
type MFAClaims struct {
	PrincipalID string `json:"principal_id"`
	OriginIP    string `json:"origin_ip"`
	jwt.RegisteredClaims
}

// MFATokenManager issues and validates short-lived MFA continuation tokens.
type MFATokenManager struct {
	secret []byte
	expiry time.Duration
}

// NewMFATokenManager creates a token manager. expiry bounds how long a
// principal has to present the second factor.
func NewMFATokenManager(secret string, expiry time.Duration) *MFATokenManager {
	return &MFATokenManager{
		secret: []byte(secret),
		expiry: expiry,
	}
}

// Generate creates a signed MFA continuation token for the principal.
func (tm *MFATokenManager) Generate(principalID, originIP string) (string, error) {
	now := time.Now()
	claims := &MFAClaims{
		PrincipalID: principalID,
		OriginIP:    originIP,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign mfa token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies an MFA continuation token.
func (tm *MFATokenManager) Validate(tokenString string) (*MFAClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &MFAClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid mfa token: %w", err)
	}

	claims, ok := token.Claims.(*MFAClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid mfa token claims")
	}

	return claims, nil
}
