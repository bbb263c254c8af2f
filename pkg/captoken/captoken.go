// Package captoken issues opaque capability tokens and verifies them against
// stored bcrypt hashes.
package captoken

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const tokenBytes = 32

// ErrMismatch is returned when a presented token does not match the hash.
var ErrMismatch = errors.New("capability token mismatch")

// Issuer creates and checks tokens.
type Issuer struct {
	cost int
}

// NewIssuer builds an issuer; cost <= 0 selects bcrypt.DefaultCost.
func NewIssuer(cost int) *Issuer {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &Issuer{cost: cost}
}

// Issue returns a fresh token and its hash. Only the hash is persisted.
func (i *Issuer) Issue() (token string, hash string, err error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(buf)
	hashed, err := bcrypt.GenerateFromPassword([]byte(token), i.cost)
	if err != nil {
		return "", "", fmt.Errorf("hash token: %w", err)
	}
	return token, string(hashed), nil
}

// Verify reports ErrMismatch when token does not match hash.
func (i *Issuer) Verify(token, hash string) error {
	if token == "" || hash == "" {
		return ErrMismatch
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
		return ErrMismatch
	}
	return nil
}
