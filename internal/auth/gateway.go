// Package auth mints bearer tokens for the signaling gateway.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carry the session the token grants access to and the traffic class
// it is scoped to (the gateway multiplexes chat, stream control and more).
type Claims struct {
	SessionID string `json:"session_id"`
	Purpose   string `json:"purpose"`
	jwt.RegisteredClaims
}

// GatewayTokenService signs and validates gateway tokens with a shared
// secret. When no secret is configured the agent falls back to the static
// platform token instead.
type GatewayTokenService struct {
	secret  []byte
	ttl     time.Duration
	subject string
}

// NewGatewayTokenService creates a token service.
func NewGatewayTokenService(secret, subject string, ttl time.Duration) *GatewayTokenService {
	return &GatewayTokenService{secret: []byte(secret), subject: subject, ttl: ttl}
}

// Mint creates a token scoped to one session and purpose.
func (s *GatewayTokenService) Mint(sessionID, purpose string) (string, error) {
	now := time.Now()
	claims := Claims{
		SessionID: sessionID,
		Purpose:   purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and validates a gateway token.
func (s *GatewayTokenService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
