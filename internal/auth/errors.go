package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument means the caller passed malformed input, such
	// as an empty authorization code or a blank ID token.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrMissingIdentityData means a validated ID token carried no email.
	ErrMissingIdentityData = errors.New("external identity has no email")

	// ErrAuthFailed is the uniform caller-visible login/callback failure.
	// It carries no detail about which check failed.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRegistration is the generic registration failure returned when
	// something other than input validation went wrong.
	ErrRegistration = errors.New("registration failed, try again")
)

// ExchangeError reports a failed authorization-code exchange with the
// provider. Body holds the provider's raw response for logging and must
// never be echoed to the end caller.
type ExchangeError struct {
	Reason string
	Body   string
	Err    error
}

func (e *ExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token exchange: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("token exchange: %s", e.Reason)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// ValidationError reports an ID token that failed validation. Check
// names the failed check (signature, issuer, audience, algorithm,
// expiry, claims) for logging only.
type ValidationError struct {
	Check string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("id token validation: %s: %v", e.Check, e.Err)
	}
	return fmt.Sprintf("id token validation: %s", e.Check)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ProvisioningError means account or role creation failed while
// reconciling an external identity; any partially created account has
// already been removed.
type ProvisioningError struct {
	Err error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("account provisioning: %v", e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }
