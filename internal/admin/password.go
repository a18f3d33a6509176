package admin

import (
	"errors"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes
	maxPasswordBytes = 72
)

// ErrInvalidPassword is returned for passwords breaking the policy.
var ErrInvalidPassword = errors.New(
	"Invalid password. Expected a minimum of 8 characters with at least one number and one uppercase letter",
)

// ValidatePassword checks the password policy: at least 8 characters,
// one lowercase letter, one uppercase letter and one digit, at most 72
// bytes.
func ValidatePassword(password string) error {
	if len([]rune(password)) < minPasswordLength || len(password) > maxPasswordBytes {
		return ErrInvalidPassword
	}
	var lower, upper, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !lower || !upper || !digit {
		return ErrInvalidPassword
	}
	return nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err //nolint:wrapcheck // caller wraps
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the hash stored on u.
func CheckPassword(u User, password string) bool {
	if u.Password == nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(*u.Password), []byte(password)) == nil
}

// newToken returns a random registration token.
func newToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func ptr[T any](v T) *T { return &v }
