package auth

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"marketplace-auth/internal/auth/credentials"
	"marketplace-auth/internal/auth/token"
)

// RoleCustomer is the default role assigned to every new account.
const RoleCustomer = "Customer"

// Result is the minimal profile echo returned by every successful auth
// operation alongside the signed token.
type Result struct {
	Token    string
	Username string
	Email    string
	Roles    []string
}

// Exchanger trades an authorization code for provider tokens.
type Exchanger interface {
	ExchangeCode(ctx context.Context, code string) (*ProviderTokens, error)
}

// IdentityValidator validates a provider-issued ID token and extracts a
// normalized identity. Together with Exchanger it forms the capability
// pair a second provider would implement.
type IdentityValidator interface {
	ValidateIDToken(ctx context.Context, raw string) (*Identity, error)
}

// Reconciler maps a validated external identity to a local account.
type Reconciler interface {
	FindOrCreate(ctx context.Context, identity *Identity) (*credentials.User, error)
	SyncProfileClaims(ctx context.Context, u *credentials.User, identity *Identity) error
}

// RefreshTokenSaver persists the provider's refresh token per account.
type RefreshTokenSaver interface {
	Save(ctx context.Context, userID string, refreshToken string, expiresIn int64) error
}

// UserStore is the slice of the credential store the orchestrator uses.
type UserStore interface {
	Create(ctx context.Context, username, email, password string) (*credentials.User, error)
	FindByEmail(ctx context.Context, email string) (*credentials.User, error)
	VerifyPassword(ctx context.Context, userID string, password string) error
	Roles(ctx context.Context, userID string) ([]string, error)
	AddRole(ctx context.Context, userID string, role string) error
	Delete(ctx context.Context, userID string) error
}

// Service composes the auth components into the three public
// operations. It is the failure boundary: component errors are logged
// with their diagnostic detail here and collapsed to uniform,
// non-revealing results for the caller.
type Service struct {
	users      UserStore
	signer     *token.Signer
	exchange   Exchanger
	validator  IdentityValidator
	reconciler Reconciler
	refresh    RefreshTokenSaver
	log        *slog.Logger

	// failureDelay returns the randomized pause inserted before every
	// login failure so latency does not reveal which branch was taken.
	failureDelay func() time.Duration
}

func NewService(
	users UserStore,
	signer *token.Signer,
	exchange Exchanger,
	validator IdentityValidator,
	reconciler Reconciler,
	refresh RefreshTokenSaver,
) *Service {
	return &Service{
		users:      users,
		signer:     signer,
		exchange:   exchange,
		validator:  validator,
		reconciler: reconciler,
		refresh:    refresh,
		log:        slog.Default(),
		failureDelay: func() time.Duration {
			return 100*time.Millisecond + rand.N(200*time.Millisecond)
		},
	}
}

// Register creates a password-based account, assigns the default role
// and issues a session token. Input validation errors come back as
// *credentials.ValidationError; everything else collapses to
// ErrRegistration.
func (s *Service) Register(ctx context.Context, username, email, password string) (result *Result, err error) {
	defer s.boundary(&err, ErrRegistration, "register")

	u, err := s.users.Create(ctx, username, email, password)
	if err != nil {
		var verr *credentials.ValidationError
		if errors.As(err, &verr) {
			return nil, verr
		}
		s.log.Error("account creation failed", "error", err)
		return nil, ErrRegistration
	}

	if err := s.users.AddRole(ctx, u.ID, RoleCustomer); err != nil {
		s.log.Error("default role assignment failed", "user_id", u.ID, "error", err)
		if delErr := s.users.Delete(ctx, u.ID); delErr != nil {
			s.log.Error("compensating account delete failed", "user_id", u.ID, "error", delErr)
		}
		return nil, ErrRegistration
	}

	roles := []string{RoleCustomer}
	signed, _, err := s.signer.Issue(u.ID, u.Email, u.Username, roles, token.Profile{})
	if err != nil {
		s.log.Error("token issuance failed", "user_id", u.ID, "error", err)
		return nil, ErrRegistration
	}

	return &Result{Token: signed, Username: u.Username, Email: u.Email, Roles: roles}, nil
}

// Login validates credentials and issues a session token. All failure
// reasons are logged but indistinguishable to the caller, and every
// failure path pauses for the randomized delay before returning.
func (s *Service) Login(ctx context.Context, email, password string) (result *Result, err error) {
	defer s.loginBoundary(ctx, &err)

	if strings.TrimSpace(email) == "" || strings.TrimSpace(password) == "" {
		return nil, s.failLogin(ctx, "empty credentials", email)
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, s.failLogin(ctx, "account not found", email)
	}

	if err := s.users.VerifyPassword(ctx, u.ID, password); err != nil {
		reason := "invalid credentials"
		if errors.Is(err, credentials.ErrNoPassword) {
			reason = "no password credential"
		}
		return nil, s.failLogin(ctx, reason, email)
	}

	roles, err := s.users.Roles(ctx, u.ID)
	if err != nil {
		return nil, s.failLogin(ctx, "role lookup failed", email)
	}

	signed, _, err := s.signer.Issue(u.ID, u.Email, u.Username, dedupeRoles(roles), token.Profile{})
	if err != nil {
		return nil, s.failLogin(ctx, "token issuance failed", email)
	}

	return &Result{Token: signed, Username: u.Username, Email: u.Email, Roles: roles}, nil
}

// GoogleCallback runs the OAuth login flow: exchange the code, validate
// the ID token, reconcile the account, persist the refresh token
// (best-effort), sync profile claims and issue a session token. The
// response body reflects the persisted account; the token's optional
// profile claims carry the freshest OAuth data.
func (s *Service) GoogleCallback(ctx context.Context, code string) (result *Result, err error) {
	defer s.boundary(&err, ErrAuthFailed, "google callback")

	toks, err := s.exchange.ExchangeCode(ctx, code)
	if err != nil {
		var exchangeErr *ExchangeError
		if errors.As(err, &exchangeErr) {
			s.log.Error("code exchange rejected",
				"reason", exchangeErr.Reason,
				"provider_body", exchangeErr.Body,
			)
		} else {
			s.log.Error("code exchange failed", "error", err)
		}
		return nil, ErrAuthFailed
	}

	if toks.IDToken == "" {
		s.log.Error("provider response missing id_token")
		return nil, ErrAuthFailed
	}

	identity, err := s.validator.ValidateIDToken(ctx, toks.IDToken)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			s.log.Error("id token rejected", "check", verr.Check, "error", verr.Err)
		} else {
			s.log.Error("id token validation failed", "error", err)
		}
		return nil, ErrAuthFailed
	}

	account, err := s.reconciler.FindOrCreate(ctx, identity)
	if err != nil {
		s.log.Error("account reconciliation failed", "email", identity.Email, "error", err)
		return nil, ErrAuthFailed
	}

	if toks.RefreshToken != "" {
		if err := s.refresh.Save(ctx, account.ID, toks.RefreshToken, toks.ExpiresIn); err != nil {
			// Best-effort: the refresh token only matters for future
			// offline renewal, not the current session.
			s.log.Warn("refresh token persistence failed", "user_id", account.ID, "error", err)
		}
	}

	if err := s.reconciler.SyncProfileClaims(ctx, account, identity); err != nil {
		s.log.Error("profile claim sync failed", "user_id", account.ID, "error", err)
		return nil, ErrAuthFailed
	}

	roles, err := s.users.Roles(ctx, account.ID)
	if err != nil {
		s.log.Error("role lookup failed", "user_id", account.ID, "error", err)
		return nil, ErrAuthFailed
	}

	signed, _, err := s.signer.Issue(
		account.ID,
		account.Email,
		account.Username,
		dedupeRoles(roles),
		token.Profile{DisplayName: identity.Name, Picture: identity.Picture},
	)
	if err != nil {
		s.log.Error("token issuance failed", "user_id", account.ID, "error", err)
		return nil, ErrAuthFailed
	}

	return &Result{Token: signed, Username: account.Username, Email: account.Email, Roles: roles}, nil
}

// failLogin logs the real failure reason, waits out the randomized
// delay and returns the uniform failure.
func (s *Service) failLogin(ctx context.Context, reason, email string) error {
	s.log.Info("login failed", "reason", reason, "email", email)
	s.waitFailureDelay(ctx)
	return ErrAuthFailed
}

func (s *Service) waitFailureDelay(ctx context.Context) {
	select {
	case <-time.After(s.failureDelay()):
	case <-ctx.Done():
	}
}

// boundary converts panics in an operation into its generic failure.
func (s *Service) boundary(err *error, fallback error, op string) {
	if r := recover(); r != nil {
		s.log.Error("panic in auth operation", "op", op, "panic", r)
		*err = fallback
	}
}

// loginBoundary is the Login form of boundary: a recovered panic waits
// out the same randomized delay as the other failure paths, so an
// internal error is not distinguishable from them by latency.
func (s *Service) loginBoundary(ctx context.Context, err *error) {
	if r := recover(); r != nil {
		s.log.Error("panic in auth operation", "op", "login", "panic", r)
		s.waitFailureDelay(ctx)
		*err = ErrAuthFailed
	}
}

// dedupeRoles removes duplicate role names while preserving order. The
// signer emits roles as given, so de-duplication happens here.
func dedupeRoles(roles []string) []string {
	seen := make(map[string]bool, len(roles))
	out := roles[:0:0]
	for _, role := range roles {
		if seen[role] {
			continue
		}
		seen[role] = true
		out = append(out, role)
	}
	return out
}
