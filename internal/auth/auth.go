// Package auth authenticates admin API callers and infers endpoint permissions.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Errors for authentication failures.
var (
	// ErrMissingToken indicates no admin token was provided.
	ErrMissingToken = errors.New("auth: missing admin token")
	// ErrInvalidToken indicates the admin token does not match.
	ErrInvalidToken = errors.New("auth: invalid admin token")
)

// HashToken returns a bcrypt hash suitable for ADMIN_TOKEN_HASH.
func HashToken(token string) (string, error) {
	if token == "" {
		return "", ErrMissingToken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash token: %w", err)
	}
	return string(hash), nil
}

// Verifier checks admin tokens against a single bcrypt hash.
type Verifier struct {
	hash []byte
}

// NewVerifier creates a Verifier for the given bcrypt hash.
func NewVerifier(hash string) (*Verifier, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("invalid admin token hash: %w", err)
	}
	return &Verifier{hash: []byte(hash)}, nil
}

// Verify returns nil if token matches the configured hash.
func (v *Verifier) Verify(token string) error {
	if token == "" {
		return ErrMissingToken
	}
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(token)); err != nil {
		return ErrInvalidToken
	}
	return nil
}
