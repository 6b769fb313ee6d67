package service

import (
	"fmt"
	"time"

	"github.com/boddenberg/upsell-checkout-bfa/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const sessionTokenType = "checkout_session"

// SessionClaims are the claims of a checkout session token. The session id
// is the subject.
type SessionClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// SessionTokens issues and validates signed checkout-session tokens.
type SessionTokens struct {
	secret []byte
	ttl    time.Duration
}

// NewSessionTokens creates a token issuer signing with HS256.
func NewSessionTokens(secret string, ttl time.Duration) *SessionTokens {
	return &SessionTokens{secret: []byte(secret), ttl: ttl}
}

// TTL is how long an issued token stays valid.
func (t *SessionTokens) TTL() time.Duration { return t.ttl }

// NewSession starts a session and returns its id and token.
func (t *SessionTokens) NewSession() (id, token string, err error) {
	id = uuid.NewString()
	token, err = t.Issue(id)
	if err != nil {
		return "", "", err
	}
	return id, token, nil
}

// Issue signs a token for an existing session id.
func (t *SessionTokens) Issue(sessionID string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		Type: sessionTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			Issuer:    "upsell-bfa",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Validate checks a token and returns the session id it carries.
func (t *SessionTokens) Validate(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return "", &domain.ErrUnauthorized{Message: "Sessão inválida ou expirada"}
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Type != sessionTokenType || claims.Subject == "" {
		return "", &domain.ErrUnauthorized{Message: "Sessão inválida"}
	}
	return claims.Subject, nil
}
