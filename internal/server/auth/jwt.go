// Package auth issues and verifies the resume tokens a candidate uses to
// return to an onboarding session from a new device.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/haulhq/driveronboard/internal/common"
)

// ResumeClaims carries the standard claims plus the session the token
// resumes.
type ResumeClaims struct {
	jwt.RegisteredClaims
	SessionID string
}

func GenerateResumeToken(sessionID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, ResumeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		SessionID: sessionID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetSessionIDFromToken verifies signature and expiry and returns the
// embedded session id. An expired token maps to ErrSessionExpired so the
// caller does not have to distinguish an old token from an old session.
func GetSessionIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &ResumeClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrSessionExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid {
		return "", common.ErrInvalidToken
	}

	return claims.SessionID, nil
}
