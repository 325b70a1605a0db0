package credentials

import (
	"golang.org/x/crypto/bcrypt"
)

const hashVersionBcrypt = "bcrypt"

// hashPassword hashes a plaintext password using bcrypt. Length and
// content rules are enforced by validateNewUser before this runs.
func hashPassword(password string) (hash string, version string, err error) {
	bytes, err := bcrypt.GenerateFromPassword(
		[]byte(password),
		bcrypt.DefaultCost,
	)
	if err != nil {
		return "", "", err
	}
	return string(bytes), hashVersionBcrypt, nil
}

// verifyHash compares a plaintext password with a stored hash.
func verifyHash(hash string, password string) error {
	return bcrypt.CompareHashAndPassword(
		[]byte(hash),
		[]byte(password),
	)
}
