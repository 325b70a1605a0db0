package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the claim set carried by every issued session token.
type Claims struct {
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Roles       []string `json:"roles"`
	DisplayName string   `json:"display_name,omitempty"`
	Picture     string   `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// Profile holds the optional display claims attached to a token. Empty
// fields are omitted from the claim set entirely.
type Profile struct {
	DisplayName string
	Picture     string
}

// Signer issues and verifies HMAC-signed session tokens. It is a pure
// primitive: it does no I/O and does not inspect or de-duplicate the
// role set it is given.
type Signer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
}

// NewSigner validates the signing configuration once at startup.
func NewSigner(secret, issuer, audience string, expireMinutes int) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("token: signing secret is required")
	}
	if issuer == "" || audience == "" {
		return nil, errors.New("token: issuer and audience are required")
	}
	if expireMinutes <= 0 {
		return nil, fmt.Errorf("token: expiry must be positive, got %d minutes", expireMinutes)
	}
	return &Signer{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      time.Duration(expireMinutes) * time.Minute,
	}, nil
}

// Issue builds and signs a token for the given account. Every call
// mints a fresh jti, so two tokens for the same login are distinct.
func (s *Signer) Issue(
	userID string,
	email string,
	username string,
	roles []string,
	profile Profile,
) (string, time.Time, error) {

	now := time.Now().UTC()
	exp := now.Add(s.ttl)

	claims := Claims{
		Email:       email,
		Name:        username,
		Roles:       roles,
		DisplayName: profile.DisplayName,
		Picture:     profile.Picture,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign: %w", err)
	}
	return signed, exp, nil
}

// Verify parses a token, checking signature, issuer, audience and
// expiry against this signer's configuration.
func (s *Signer) Verify(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("token: verify: %w", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("token: invalid claims")
	}
	return claims, nil
}
