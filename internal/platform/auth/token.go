package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carried by a session token. The token is only a pointer to the
// server-side session row; expiry is governed by the rolling window, not by
// the token's own lifetime.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
	Role      string `json:"role"`
	Email     string `json:"email"`
}

// TokenIssuer signs and parses session tokens with an HMAC secret.
type TokenIssuer struct {
	secret []byte
	issuer string
}

func NewTokenIssuer(secret, issuer string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), issuer: issuer}
}

// Issue creates a signed token for the session. The token itself is long
// lived; the session row is what expires.
func (t *TokenIssuer) Issue(s *Session) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  s.UserID.String(),
			Issuer:   t.issuer,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
		SessionID: s.ID.String(),
		Role:      s.Role,
		Email:     s.Email,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse validates the token signature and returns the session id it points to.
func (t *TokenIssuer) Parse(tokenStr string) (uuid.UUID, *Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(tok *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return uuid.Nil, nil, fmt.Errorf("invalid token")
	}

	sid, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("invalid session id in token")
	}
	return sid, claims, nil
}
