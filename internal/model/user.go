package model

import (
	"fmt"
	"strings"
	"time"
)

// User is a login account. Its Address is the identity the lock sees.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Address      Address   `json:"address"`
	CreatedAt    time.Time `json:"created_at"`
}

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// ValidatePassword checks password strength requirements.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// ValidateUsername rejects empty names and names with surrounding whitespace.
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username required")
	}
	if strings.TrimSpace(username) != username {
		return fmt.Errorf("username must not start or end with whitespace")
	}
	if len(username) > 64 {
		return fmt.Errorf("username must be at most 64 characters")
	}
	return nil
}
