package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"marketplace-auth/internal/auth/credentials"
	"marketplace-auth/internal/auth/token"
)

type fakeUsers struct {
	byEmail map[string]*credentials.User
	passwd  map[string]string // userID -> plaintext, "" means no credential
	roles   map[string][]string
	claims  map[string]map[string]string

	nextID      int
	upsertCalls int
	createErr   error
	addRoleErr  error
	findPanic   string
	deleted     []string
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		byEmail: make(map[string]*credentials.User),
		passwd:  make(map[string]string),
		roles:   make(map[string][]string),
		claims:  make(map[string]map[string]string),
	}
}

func (f *fakeUsers) Create(_ context.Context, username, email, password string) (*credentials.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, exists := f.byEmail[strings.ToLower(email)]; exists {
		return nil, &credentials.ValidationError{Fields: []credentials.FieldError{
			{Field: "email", Message: "is already registered"},
		}}
	}
	f.nextID++
	u := &credentials.User{ID: fmt.Sprintf("u-%d", f.nextID), Username: username, Email: email}
	f.byEmail[strings.ToLower(email)] = u
	f.passwd[u.ID] = password
	return u, nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*credentials.User, error) {
	if f.findPanic != "" {
		panic(f.findPanic)
	}
	u, ok := f.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, credentials.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) VerifyPassword(_ context.Context, userID, password string) error {
	stored, ok := f.passwd[userID]
	if !ok || stored == "" {
		return credentials.ErrNoPassword
	}
	if stored != password {
		return credentials.ErrInvalidCredentials
	}
	return nil
}

func (f *fakeUsers) Roles(_ context.Context, userID string) ([]string, error) {
	return f.roles[userID], nil
}

func (f *fakeUsers) AddRole(_ context.Context, userID, role string) error {
	if f.addRoleErr != nil {
		return f.addRoleErr
	}
	f.roles[userID] = append(f.roles[userID], role)
	return nil
}

func (f *fakeUsers) Delete(_ context.Context, userID string) error {
	f.deleted = append(f.deleted, userID)
	for email, u := range f.byEmail {
		if u.ID == userID {
			delete(f.byEmail, email)
		}
	}
	return nil
}

// CreateExternal, Claims and UpsertClaim make fakeUsers double as the
// reconciler's store in the callback tests.
func (f *fakeUsers) CreateExternal(_ context.Context, username, email string, emailConfirmed bool) (*credentials.User, error) {
	f.nextID++
	u := &credentials.User{
		ID:             fmt.Sprintf("u-%d", f.nextID),
		Username:       username,
		Email:          email,
		EmailConfirmed: emailConfirmed,
	}
	f.byEmail[strings.ToLower(email)] = u
	return u, nil
}

func (f *fakeUsers) Claims(_ context.Context, userID string) (map[string]string, error) {
	out := make(map[string]string, len(f.claims[userID]))
	for k, v := range f.claims[userID] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeUsers) UpsertClaim(_ context.Context, userID, claimType, claimValue string) error {
	f.upsertCalls++
	if f.claims[userID] == nil {
		f.claims[userID] = make(map[string]string)
	}
	f.claims[userID][claimType] = claimValue
	return nil
}

type fakeExchange struct {
	tokens *ProviderTokens
	err    error
}

func (f *fakeExchange) ExchangeCode(_ context.Context, code string) (*ProviderTokens, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tokens, nil
}

type fakeValidator struct {
	identity *Identity
	err      error
}

func (f *fakeValidator) ValidateIDToken(_ context.Context, raw string) (*Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

type fakeReconciler struct {
	store *fakeUsers
}

func (f *fakeReconciler) FindOrCreate(ctx context.Context, identity *Identity) (*credentials.User, error) {
	if identity.Email == "" {
		return nil, ErrMissingIdentityData
	}
	if u, err := f.store.FindByEmail(ctx, identity.Email); err == nil {
		return u, nil
	}
	u, err := f.store.CreateExternal(ctx, identity.Email, identity.Email, true)
	if err != nil {
		return nil, err
	}
	if err := f.store.AddRole(ctx, u.ID, RoleCustomer); err != nil {
		return nil, err
	}
	return u, nil
}

func (f *fakeReconciler) SyncProfileClaims(ctx context.Context, u *credentials.User, identity *Identity) error {
	_ = f.store.UpsertClaim(ctx, u.ID, "external_id", identity.Subject)
	_ = f.store.UpsertClaim(ctx, u.ID, "display_name", identity.Name)
	_ = f.store.UpsertClaim(ctx, u.ID, "picture", identity.Picture)
	return nil
}

type fakeRefresh struct {
	saved map[string]string
	err   error
}

func (f *fakeRefresh) Save(_ context.Context, userID, refreshToken string, expiresIn int64) error {
	if f.err != nil {
		return f.err
	}
	if f.saved == nil {
		f.saved = make(map[string]string)
	}
	f.saved[userID] = refreshToken
	return nil
}

type serviceFixture struct {
	svc      *Service
	users    *fakeUsers
	exchange *fakeExchange
	valid    *fakeValidator
	refresh  *fakeRefresh
}

func newFixture(t *testing.T) *serviceFixture {
	t.Helper()
	signer, err := token.NewSigner("test-secret", "auth.test", "marketplace", 30)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	users := newFakeUsers()
	exchange := &fakeExchange{tokens: &ProviderTokens{
		IDToken:      "valid-jwt",
		RefreshToken: "rt-123",
		ExpiresIn:    3600,
	}}
	valid := &fakeValidator{identity: &Identity{
		Provider:      "google",
		Subject:       "ext-1",
		Email:         "a@b.com",
		EmailVerified: true,
		Name:          "Ann",
	}}
	refresh := &fakeRefresh{}

	svc := NewService(users, signer, exchange, valid, &fakeReconciler{store: users}, refresh)
	svc.failureDelay = func() time.Duration { return 0 }

	return &serviceFixture{svc: svc, users: users, exchange: exchange, valid: valid, refresh: refresh}
}

func verifyToken(t *testing.T, signed string) *token.Claims {
	t.Helper()
	signer, err := token.NewSigner("test-secret", "auth.test", "marketplace", 30)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	claims, err := signer.Verify(signed)
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	return claims
}

func TestRegisterSuccess(t *testing.T) {
	fx := newFixture(t)

	res, err := fx.svc.Register(context.Background(), "ann", "a@b.com", "longenough")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(res.Roles) != 1 || res.Roles[0] != RoleCustomer {
		t.Errorf("roles = %v, want [Customer]", res.Roles)
	}
	if res.Username != "ann" || res.Email != "a@b.com" {
		t.Errorf("profile echo = %q/%q", res.Username, res.Email)
	}

	claims := verifyToken(t, res.Token)
	account, err := fx.users.FindByEmail(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("expected account to exist: %v", err)
	}
	if claims.Subject != account.ID {
		t.Errorf("token subject = %q, want created account id %q", claims.Subject, account.ID)
	}
}

func TestRegisterValidationErrorsPropagate(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.svc.Register(context.Background(), "ann", "a@b.com", "longenough"); err != nil {
		t.Fatalf("first register: %v", err)
	}

	_, err := fx.svc.Register(context.Background(), "ann2", "a@b.com", "longenough")
	var verr *credentials.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for duplicate email, got %v", err)
	}
}

func TestRegisterRoleFailureCompensates(t *testing.T) {
	fx := newFixture(t)
	fx.users.addRoleErr = errors.New("role table unavailable")

	_, err := fx.svc.Register(context.Background(), "ann", "a@b.com", "longenough")
	if !errors.Is(err, ErrRegistration) {
		t.Fatalf("expected ErrRegistration, got %v", err)
	}
	if len(fx.users.deleted) != 1 {
		t.Fatalf("expected the partial account to be deleted, deletions: %v", fx.users.deleted)
	}
}

func TestLoginSuccess(t *testing.T) {
	fx := newFixture(t)
	if _, err := fx.svc.Register(context.Background(), "ann", "a@b.com", "longenough"); err != nil {
		t.Fatalf("register: %v", err)
	}

	res, err := fx.svc.Login(context.Background(), "a@b.com", "longenough")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims := verifyToken(t, res.Token)
	if claims.Email != "a@b.com" {
		t.Errorf("token email = %q", claims.Email)
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	fx := newFixture(t)
	if _, err := fx.svc.Register(context.Background(), "ann", "a@b.com", "longenough"); err != nil {
		t.Fatalf("register: %v", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"empty email", "", "longenough"},
		{"empty password", "a@b.com", "   "},
		{"unknown email", "nobody@b.com", "longenough"},
		{"wrong password", "a@b.com", "wrong-password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.svc.Login(context.Background(), tt.email, tt.password)
			if !errors.Is(err, ErrAuthFailed) {
				t.Fatalf("expected the uniform ErrAuthFailed, got %v", err)
			}
		})
	}
}

func TestLoginFailureDelay(t *testing.T) {
	fx := newFixture(t)
	fx.svc.failureDelay = func() time.Duration { return 100 * time.Millisecond }

	start := time.Now()
	_, err := fx.svc.Login(context.Background(), "nobody@b.com", "whatever")
	elapsed := time.Since(start)

	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if elapsed < 100*time.Millisecond {
		t.Fatalf("failure returned after %v, want >= 100ms", elapsed)
	}
}

func TestLoginInternalErrorStillDelays(t *testing.T) {
	fx := newFixture(t)
	fx.users.findPanic = "credential store unavailable"
	fx.svc.failureDelay = func() time.Duration { return 100 * time.Millisecond }

	start := time.Now()
	_, err := fx.svc.Login(context.Background(), "a@b.com", "longenough")
	elapsed := time.Since(start)

	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected the uniform ErrAuthFailed, got %v", err)
	}
	if elapsed < 100*time.Millisecond {
		t.Fatalf("internal failure returned after %v, want >= 100ms like the other failure paths", elapsed)
	}
}

func TestGoogleCallbackFreshAccount(t *testing.T) {
	fx := newFixture(t)

	res, err := fx.svc.GoogleCallback(context.Background(), "valid-code")
	if err != nil {
		t.Fatalf("callback: %v", err)
	}

	account, err := fx.users.FindByEmail(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("expected account to be created: %v", err)
	}
	if got := fx.users.roles[account.ID]; len(got) != 1 || got[0] != RoleCustomer {
		t.Errorf("roles = %v, want [Customer]", got)
	}
	if fx.users.claims[account.ID]["external_id"] != "ext-1" {
		t.Errorf("external_id claim = %q, want ext-1", fx.users.claims[account.ID]["external_id"])
	}
	if fx.users.claims[account.ID]["display_name"] != "Ann" {
		t.Errorf("display_name claim = %q, want Ann", fx.users.claims[account.ID]["display_name"])
	}
	if fx.refresh.saved[account.ID] != "rt-123" {
		t.Errorf("refresh token = %q, want rt-123", fx.refresh.saved[account.ID])
	}

	claims := verifyToken(t, res.Token)
	if claims.Email != "a@b.com" {
		t.Errorf("token email = %q, want a@b.com", claims.Email)
	}
	if claims.DisplayName != "Ann" {
		t.Errorf("token display_name = %q, want Ann", claims.DisplayName)
	}
}

func TestGoogleCallbackMissingIDToken(t *testing.T) {
	fx := newFixture(t)
	fx.exchange.tokens = &ProviderTokens{AccessToken: "at-1"}

	if _, err := fx.svc.GoogleCallback(context.Background(), "valid-code"); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestGoogleCallbackExchangeFailure(t *testing.T) {
	fx := newFixture(t)
	fx.exchange.err = &ExchangeError{Reason: "provider rejected code", Body: `{"error":"invalid_grant"}`}

	_, err := fx.svc.GoogleCallback(context.Background(), "used-code")
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if strings.Contains(err.Error(), "invalid_grant") {
		t.Fatal("provider error body must not leak to the caller")
	}
}

func TestGoogleCallbackInvalidIDToken(t *testing.T) {
	fx := newFixture(t)
	fx.valid.err = &ValidationError{Check: "audience"}

	if _, err := fx.svc.GoogleCallback(context.Background(), "valid-code"); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestGoogleCallbackRefreshFailureIsBestEffort(t *testing.T) {
	fx := newFixture(t)
	fx.refresh.err = errors.New("redis down")

	res, err := fx.svc.GoogleCallback(context.Background(), "valid-code")
	if err != nil {
		t.Fatalf("login should survive a refresh-store failure, got %v", err)
	}
	if res.Token == "" {
		t.Fatal("expected a token despite the refresh-store failure")
	}
}

func TestGoogleCallbackNoRefreshTokenSkipsSave(t *testing.T) {
	fx := newFixture(t)
	fx.exchange.tokens.RefreshToken = ""

	if _, err := fx.svc.GoogleCallback(context.Background(), "valid-code"); err != nil {
		t.Fatalf("callback: %v", err)
	}
	if len(fx.refresh.saved) != 0 {
		t.Fatalf("expected no refresh token writes, got %v", fx.refresh.saved)
	}
}

func TestGoogleCallbackUsesPersistedAccountIdentity(t *testing.T) {
	fx := newFixture(t)
	if _, err := fx.svc.Register(context.Background(), "ann-local", "a@b.com", "longenough"); err != nil {
		t.Fatalf("register: %v", err)
	}

	res, err := fx.svc.GoogleCallback(context.Background(), "valid-code")
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	// The local account stays the source of truth for the response body.
	if res.Username != "ann-local" {
		t.Errorf("username = %q, want persisted ann-local", res.Username)
	}
	claims := verifyToken(t, res.Token)
	if claims.DisplayName != "Ann" {
		t.Errorf("token display_name = %q, want fresh OAuth value Ann", claims.DisplayName)
	}
}

func TestDedupeRoles(t *testing.T) {
	got := dedupeRoles([]string{"Admin", "Customer", "Admin", "Customer"})
	if len(got) != 2 || got[0] != "Admin" || got[1] != "Customer" {
		t.Fatalf("dedupeRoles = %v, want [Admin Customer]", got)
	}
}
