package credentials

import "strings"

const minPasswordLength = 8

// validateNewUser applies the store's registration rules. It returns a
// *ValidationError listing every rejected field, or nil.
func validateNewUser(username, email, password string) error {
	var fields []FieldError

	if strings.TrimSpace(username) == "" {
		fields = append(fields, FieldError{"username", "must not be empty"})
	}

	email = strings.TrimSpace(email)
	switch {
	case email == "":
		fields = append(fields, FieldError{"email", "must not be empty"})
	case !strings.Contains(email[1:], "@"):
		fields = append(fields, FieldError{"email", "must be a valid email address"})
	}

	if len(password) < minPasswordLength {
		fields = append(fields, FieldError{"password", "must be at least 8 characters"})
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
