package google

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"marketplace-auth/internal/auth"

	"github.com/golang-jwt/jwt/v5"
)

const providerName = "google"

// Google mints ID tokens under two equivalent issuer forms; both are
// accepted.
var googleIssuers = []string{
	"https://accounts.google.com",
	"accounts.google.com",
}

const expectedAlg = "RS256"

var errUnexpectedAlg = errors.New("unexpected signing algorithm")

type idTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	jwt.RegisteredClaims
}

// Validator checks provider-issued ID tokens against the cached signing
// keys and the configured client id, and extracts a normalized identity.
type Validator struct {
	clientID string
	keys     *KeyCache
}

func NewValidator(clientID string, keys *KeyCache) (*Validator, error) {
	if clientID == "" {
		return nil, errors.New("google: client id is required")
	}
	if keys == nil {
		return nil, errors.New("google: key cache is required")
	}
	return &Validator{clientID: clientID, keys: keys}, nil
}

// ValidateIDToken verifies signature, algorithm, issuer, audience and
// expiry, then extracts the identity claims. All failures collapse to
// ValidationError; the failed check is recorded for logging only.
func (v *Validator) ValidateIDToken(ctx context.Context, raw string) (*auth.Identity, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: id token is empty", auth.ErrInvalidArgument)
	}

	keyfunc := func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != expectedAlg {
			return nil, fmt.Errorf("%w: %s", errUnexpectedAlg, t.Method.Alg())
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token header has no kid")
		}
		return v.keys.Key(ctx, kid)
	}

	claims := &idTokenClaims{}
	_, err := jwt.ParseWithClaims(
		raw,
		claims,
		keyfunc,
		jwt.WithValidMethods([]string{expectedAlg}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, &auth.ValidationError{Check: classify(err), Err: err}
	}

	issuer := claims.Issuer
	if !knownIssuer(issuer) {
		return nil, &auth.ValidationError{
			Check: "issuer",
			Err:   fmt.Errorf("unknown issuer %q", issuer),
		}
	}

	if claims.Subject == "" || claims.Email == "" || claims.Name == "" {
		return nil, &auth.ValidationError{
			Check: "claims",
			Err:   errors.New("missing required claim (sub, email or name)"),
		}
	}

	return &auth.Identity{
		Provider:      providerName,
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: parseBoolClaim(claims.EmailVerified),
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}

func knownIssuer(issuer string) bool {
	for _, known := range googleIssuers {
		if issuer == known {
			return true
		}
	}
	return false
}

func classify(err error) string {
	switch {
	case errors.Is(err, errUnexpectedAlg):
		return "algorithm"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expiry"
	case errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "audience"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	default:
		return "signature"
	}
}

// parseBoolClaim handles providers that encode email_verified as either
// a JSON bool or the strings "true"/"false". Anything unparseable is
// treated as unverified.
func parseBoolClaim(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		parsed, err := strconv.ParseBool(val)
		return err == nil && parsed
	default:
		return false
	}
}
