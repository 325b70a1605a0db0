// Package reconcile maps validated external identities onto local
// accounts. It is the only place where identity-to-account linking
// decisions live; providers hand it facts and it owns the outcome.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"marketplace-auth/internal/auth"
	"marketplace-auth/internal/auth/credentials"
)

// Profile claim types projected from an external identity.
const (
	ClaimExternalID  = "external_id"
	ClaimDisplayName = "display_name"
	ClaimPicture     = "picture"
)

const defaultRole = auth.RoleCustomer

// UserStore is the slice of the credential store the reconciler needs.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*credentials.User, error)
	CreateExternal(ctx context.Context, username, email string, emailConfirmed bool) (*credentials.User, error)
	AddRole(ctx context.Context, userID, role string) error
	Delete(ctx context.Context, userID string) error
	Claims(ctx context.Context, userID string) (map[string]string, error)
	UpsertClaim(ctx context.Context, userID, claimType, claimValue string) error
}

type Reconciler struct {
	store UserStore
}

func NewReconciler(store UserStore) *Reconciler {
	return &Reconciler{store: store}
}

// FindOrCreate returns the local account for an external identity,
// provisioning one on first login. A freshly created account that
// cannot be given its default role is deleted again; the system never
// leaves an account with no role.
func (r *Reconciler) FindOrCreate(ctx context.Context, identity *auth.Identity) (*credentials.User, error) {
	if identity == nil || identity.Email == "" {
		return nil, auth.ErrMissingIdentityData
	}

	u, err := r.store.FindByEmail(ctx, identity.Email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, credentials.ErrNotFound) {
		return nil, fmt.Errorf("find account by email: %w", err)
	}

	// First OAuth login: the provider-verified email is trusted.
	u, err = r.store.CreateExternal(ctx, identity.Email, identity.Email, true)
	if err != nil {
		return nil, &auth.ProvisioningError{Err: fmt.Errorf("create account: %w", err)}
	}

	if err := r.store.AddRole(ctx, u.ID, defaultRole); err != nil {
		if delErr := r.store.Delete(ctx, u.ID); delErr != nil {
			slog.Error("compensating account delete failed",
				"user_id", u.ID,
				"error", delErr,
			)
		}
		return nil, &auth.ProvisioningError{Err: fmt.Errorf("assign default role: %w", err)}
	}

	return u, nil
}

// SyncProfileClaims upserts the three OAuth-derived profile claims onto
// the account. It is diff-based: claims whose stored value already
// matches are left untouched, so repeated logins with identical data
// write nothing.
func (r *Reconciler) SyncProfileClaims(ctx context.Context, u *credentials.User, identity *auth.Identity) error {
	current, err := r.store.Claims(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("load claims: %w", err)
	}

	desired := map[string]string{
		ClaimExternalID:  identity.Subject,
		ClaimDisplayName: identity.Name,
		ClaimPicture:     identity.Picture,
	}

	for claimType, value := range desired {
		existing, ok := current[claimType]
		if ok && existing == value {
			continue
		}
		if err := r.store.UpsertClaim(ctx, u.ID, claimType, value); err != nil {
			return fmt.Errorf("upsert claim %s: %w", claimType, err)
		}
	}
	return nil
}
