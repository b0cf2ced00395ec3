package service

import (
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/homespot/identity-service/internal/core/domain"
	"github.com/homespot/identity-service/internal/core/ports"
)

const defaultSessionTTL = 24 * time.Hour

// TokenIssuerConfig is injected at construction time; the issuer never reads
// ambient process state mid-operation.
type TokenIssuerConfig struct {
	Secret     string
	Issuer     string
	Audience   string
	SessionTTL time.Duration
}

type jwtTokenIssuer struct {
	cfg TokenIssuerConfig
}

// NewTokenIssuer returns the HS256 session-token issuer. A missing signing
// secret is a startup misconfiguration, reported as an error here and treated
// as fatal by the caller, never as a per-request failure.
func NewTokenIssuer(cfg TokenIssuerConfig) (ports.TokenIssuer, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token issuer: signing secret is required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	return &jwtTokenIssuer{cfg: cfg}, nil
}

// SessionClaims is the bearer-token claim set: account id as subject, the
// single role asserted for this session, and a fresh jti so replayed tokens
// never collide in the session registry.
type SessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (i *jwtTokenIssuer) IssueSessionToken(accountID, role string) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(i.cfg.SessionTTL)

	claims := SessionClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    i.cfg.Issuer,
			Audience:  jwt.ClaimStrings{i.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.cfg.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// EncodeOpaqueToken prepares a credential-store purpose token for transport
// inside a link: URL-safe base64 without padding.
func EncodeOpaqueToken(token string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(token))
}

// DecodeOpaqueToken reverses EncodeOpaqueToken. Malformed input is rejected
// before any storage access.
func DecodeOpaqueToken(encoded string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", domain.ErrMalformedToken
	}
	return string(raw), nil
}
