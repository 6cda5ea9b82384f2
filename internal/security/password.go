package security

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt work factor for stored passwords.
const PasswordCost = 10

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hashed, errHash := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if errHash != nil {
		return "", fmt.Errorf("hash password: %w", errHash)
	}
	return string(hashed), nil
}

// CheckPassword reports whether password matches the stored bcrypt hash.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	errCompare := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return errCompare == nil
}

// BurnPasswordCheck runs a compare against a throwaway hash so unknown accounts
// cost the same as a wrong password.
func BurnPasswordCheck(password string) {
	dummyHashOnce.Do(func() {
		hashed, errHash := bcrypt.GenerateFromPassword([]byte("qwmc-placeholder-password"), PasswordCost)
		if errHash != nil {
			return
		}
		dummyHash = hashed
	})
	if len(dummyHash) == 0 {
		return
	}
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}
