// Package auth issues and verifies session tokens and validates Telegram
// WebApp init data.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/teens-space/progress-hub/internal/domain/curator"
	"github.com/teens-space/progress-hub/internal/domain/shared"
)

// DefaultIssuer is the iss claim of tokens minted by the server.
const DefaultIssuer = "teens-space-progress-hub"

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = shared.NewDomainError("auth", "ParseToken", shared.ErrUnauthorized, "invalid or expired token")

// sessionClaims is the JWT body of a curator.Session.
type sessionClaims struct {
	jwt.RegisteredClaims
	Role       string `json:"role"`
	CuratorID  string `json:"curator_id,omitempty"`
	TelegramID int64  `json:"telegram_id,omitempty"`
}

// Tokens signs sessions with HS256.
type Tokens struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokens creates a signer. The secret must be at least 32 bytes.
func NewTokens(secret string, issuer string) (*Tokens, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("auth: jwt secret must be at least 32 bytes, got %d", len(secret))
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &Tokens{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Issue implements command.TokenIssuer.
func (t *Tokens) Issue(s curator.Session) (string, error) {
	now := t.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   s.Subject(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
		Role:       string(s.Role),
		CuratorID:  s.CuratorID.String(),
		TelegramID: s.TelegramID.Int64(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token and returns its session.
func (t *Tokens) Parse(token string) (curator.Session, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)

	claims := &sessionClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	})
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("token not valid")
		}
		return curator.Session{}, shared.WrapError("auth", "ParseToken", shared.ErrUnauthorized, "invalid or expired token", err)
	}

	s := curator.Session{
		Role:       curator.Role(claims.Role),
		CuratorID:  shared.CuratorID(claims.CuratorID),
		TelegramID: shared.TelegramID(claims.TelegramID),
		ExpiresAt:  claims.ExpiresAt.Time.UTC(),
	}
	switch s.Role {
	case curator.RoleCurator:
		if !s.CuratorID.IsValid() {
			return curator.Session{}, ErrInvalidToken
		}
	case curator.RoleStudent, curator.RoleParent:
		if !s.TelegramID.IsValid() {
			return curator.Session{}, ErrInvalidToken
		}
	default:
		return curator.Session{}, ErrInvalidToken
	}
	return s, nil
}
