// Package confirm implements the two-phase confirmation handshake. The
// broker mints short-lived single-use tokens bound to an action
// fingerprint, validates resubmissions, and guarantees that concurrent
// validation of the same token yields exactly one success.
package confirm

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Validation failure reasons. Each is surfaced distinctly so the caller
// knows whether to re-request confirmation or investigate tampering.
var (
	// ErrTokenNotFound indicates the token was never issued or has been
	// garbage-collected.
	ErrTokenNotFound = errors.New("confirm token not found")

	// ErrTokenExpired indicates the token's expiry passed before
	// resubmission.
	ErrTokenExpired = errors.New("confirm token expired")

	// ErrTokenConsumed indicates the token was already used once.
	ErrTokenConsumed = errors.New("confirm token already consumed")

	// ErrFingerprintMismatch indicates the resubmitted action does not
	// hash to the fingerprint the token was issued for.
	ErrFingerprintMismatch = errors.New("confirm token fingerprint mismatch")
)

// Token is a single-use confirmation credential bound to one action
// fingerprint.
type Token struct {
	// ID is the audit cross-reference identifier. It is recorded in
	// audit entries instead of the secret value.
	ID string `json:"id"`

	// Value is the opaque secret handed to the caller.
	Value string `json:"value"`

	// Fingerprint is the action identity the token was issued for.
	Fingerprint string `json:"fingerprint"`

	// IssuedAt is the mint time.
	IssuedAt time.Time `json:"issued_at"`

	// ExpiresAt is the end of the validity window.
	ExpiresAt time.Time `json:"expires_at"`

	// Consumed marks a token that has been used. Consumed tokens are
	// retained for the audit retention window, then purged.
	Consumed bool `json:"consumed"`

	// ConsumedAt is when validation succeeded, zero otherwise.
	ConsumedAt time.Time `json:"consumed_at,omitempty"`
}

// newTokenValue mints the opaque secret: "conf_" plus 32 hex chars of
// CSPRNG output.
func newTokenValue() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate confirm token: %w", err)
	}
	return "conf_" + hex.EncodeToString(buf), nil
}

// newToken builds an unconsumed token for a fingerprint.
func newToken(fingerprint string, ttl time.Duration, now time.Time) (*Token, error) {
	value, err := newTokenValue()
	if err != nil {
		return nil, err
	}
	return &Token{
		ID:          uuid.New().String(),
		Value:       value,
		Fingerprint: fingerprint,
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
	}, nil
}
