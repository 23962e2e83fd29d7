package security

import (
	"errors"
	"fmt"

	"github.com/geocoder89/signalhub/internal/apperr"
	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is bcrypt's input limit. It counts bytes, not characters.
const MaxPasswordBytes = 72

var (
	ErrPasswordMismatch = errors.New("password does not match")
	ErrPasswordTooLong  = fmt.Errorf("%w: password must be at most %d bytes", apperr.ErrValidation, MaxPasswordBytes)
)

// HashPassword hashes a plain text password with bcrypt; the salt lives in the hash.
func HashPassword(plain string) (string, error) {
	if len(plain) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", err
	}

	return string(hash), nil
}

// CheckPassword compares a bcrypt hash with a plaintext password.
func CheckPassword(hash, plain string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}
