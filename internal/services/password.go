package services

import (
	"fmt"

	"dentalcrm/internal/apperrors"

	"golang.org/x/crypto/bcrypt"
)

const (
	// PasswordCost is the bcrypt work factor for every stored hash.
	PasswordCost = 10
	// bcrypt ignores input past 72 bytes, so longer passwords are refused outright.
	maxPasswordBytes = 72
)

type PasswordHasher struct {
	cost int
}

func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{cost: PasswordCost}
}

// NewPasswordHasherWithCost exists for tests, which use bcrypt.MinCost to stay fast.
func NewPasswordHasherWithCost(cost int) *PasswordHasher {
	return &PasswordHasher{cost: cost}
}

func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", apperrors.Validation("password must be at most 72 bytes")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Verify never errors: a malformed hash is simply a mismatch.
func (h *PasswordHasher) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
