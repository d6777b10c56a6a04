package hash

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

// Passcode hashes a note lock passcode. Passcodes are short PINs rather
// than account passwords, so the minimum length is low.
func Passcode(passcode string) (string, error) {
	if len(passcode) < 4 {
		return "", fmt.Errorf("passcode must be at least 4 characters")
	}

	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(passcode), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash passcode: %w", err)
	}

	return string(hashedBytes), nil
}

// Compare reports whether passcode matches the stored hash.
func Compare(hashedPasscode, passcode string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPasscode), []byte(passcode))
}
