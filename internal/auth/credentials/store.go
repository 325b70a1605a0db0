package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"marketplace-auth/internal/db"

	"github.com/lib/pq"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoPassword         = errors.New("account has no password credential")
)

const pqUniqueViolation = "23505"

// Store is the system of record for local accounts: identity rows,
// password credentials, role names and profile claims.
type Store struct {
	db *db.DB
}

func NewStore(db *db.DB) *Store {
	return &Store{db: db}
}

// Create registers a password-based account. Input is validated against
// the store's rules; a duplicate email surfaces as a field error, not a
// raw constraint violation.
func (s *Store) Create(
	ctx context.Context,
	username string,
	email string,
	password string,
) (*User, error) {

	if err := validateNewUser(username, email, password); err != nil {
		return nil, err
	}

	hash, version, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	u := &User{Username: username, Email: email}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (username, email, email_confirmed)
		VALUES ($1, $2, false)
		RETURNING id, created_at
	`, username, email).Scan(&u.ID, &u.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return nil, &ValidationError{Fields: []FieldError{
				{Field: "email", Message: "is already registered"},
			}}
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_credentials (user_id, password_hash, hash_version)
		VALUES ($1, $2, $3)
	`, u.ID, hash, version)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return u, nil
}

// CreateExternal registers an account with no password credential, used
// on first OAuth login. The provider-verified email is trusted, so the
// confirmed flag is set by the caller.
func (s *Store) CreateExternal(
	ctx context.Context,
	username string,
	email string,
	emailConfirmed bool,
) (*User, error) {

	u := &User{Username: username, Email: email, EmailConfirmed: emailConfirmed}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, email_confirmed)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, username, email, emailConfirmed).Scan(&u.ID, &u.CreatedAt)

	if err != nil {
		return nil, err
	}
	return u, nil
}

// FindByEmail looks an account up by email, case-insensitively.
func (s *Store) FindByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, email_confirmed, created_at
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email).Scan(&u.ID, &u.Username, &u.Email, &u.EmailConfirmed, &u.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// VerifyPassword checks a plaintext password against the stored hash.
// Every failure collapses to ErrInvalidCredentials except the internal
// no-credential case, which callers log but never expose.
func (s *Store) VerifyPassword(ctx context.Context, userID string, password string) error {
	var hash string
	err := s.db.QueryRowContext(ctx, `
		SELECT password_hash FROM user_credentials WHERE user_id = $1
	`, userID).Scan(&hash)

	if err == sql.ErrNoRows {
		return ErrNoPassword
	}
	if err != nil {
		return err
	}

	if err := verifyHash(hash, password); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Roles returns the account's role names in insertion order.
func (s *Store) Roles(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role FROM user_roles
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// AddRole assigns a role to the account. Assigning an already held role
// is a no-op.
func (s *Store) AddRole(ctx context.Context, userID string, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role)
		VALUES ($1, $2)
		ON CONFLICT (user_id, role) DO NOTHING
	`, userID, role)
	return err
}

// Claims returns the account's profile claims as a type→value map.
func (s *Store) Claims(ctx context.Context, userID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT claim_type, claim_value FROM user_claims WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	claims := make(map[string]string)
	for rows.Next() {
		var claimType, claimValue string
		if err := rows.Scan(&claimType, &claimValue); err != nil {
			return nil, err
		}
		claims[claimType] = claimValue
	}
	return claims, rows.Err()
}

// UpsertClaim sets a profile claim, replacing any previous value.
func (s *Store) UpsertClaim(ctx context.Context, userID string, claimType string, claimValue string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_claims (user_id, claim_type, claim_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, claim_type)
		DO UPDATE SET claim_value = EXCLUDED.claim_value, updated_at = NOW()
	`, userID, claimType, claimValue)
	return err
}

// Delete removes the account and its dependent rows. Used only as a
// compensating action when provisioning fails partway.
func (s *Store) Delete(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
