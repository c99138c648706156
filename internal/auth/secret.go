// Package auth verifies the shared secret producers present when they
// connect to the dashboard socket.
package auth

import (
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/livedash/host/internal/errors"
)

// DefaultSecret is the secret used when none is configured.
const DefaultSecret = "secret password"

// VerifierConfig holds configuration for a SecretVerifier.
type VerifierConfig struct {
	// Hash is the bcrypt hash of the shared secret. Takes precedence
	// over Secret.
	Hash string

	// Secret is the plaintext shared secret, hashed at construction.
	Secret string

	// MaxFailuresPerMinute bounds failed verifications across all
	// connections. Once reached, further mismatches are reported as
	// rate limited until the window passes. A matching secret is always
	// accepted.
	// Default: 10.
	MaxFailuresPerMinute int

	// Cost is the bcrypt cost used when hashing Secret.
	// Default: bcrypt.DefaultCost.
	Cost int

	// TimeNow returns the current time. Useful for testing.
	// Default: time.Now.
	TimeNow func() time.Time
}

// SecretVerifier checks presented secrets against a bcrypt hash.
// It is safe for concurrent use by handshake goroutines.
type SecretVerifier struct {
	hash []byte

	mu       sync.Mutex
	config   VerifierConfig
	failures []time.Time
}

// NewSecretVerifier creates a verifier. An empty config verifies against
// DefaultSecret.
func NewSecretVerifier(config VerifierConfig) (*SecretVerifier, error) {
	if config.MaxFailuresPerMinute == 0 {
		config.MaxFailuresPerMinute = 10
	}
	if config.Cost == 0 {
		config.Cost = bcrypt.DefaultCost
	}
	if config.TimeNow == nil {
		config.TimeNow = time.Now
	}

	var hash []byte
	if config.Hash != "" {
		hash = []byte(config.Hash)
		if _, err := bcrypt.Cost(hash); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeAuthInvalid, "secret_hash is not a bcrypt hash", err)
		}
	} else {
		secret := config.Secret
		if secret == "" {
			secret = DefaultSecret
		}
		h, err := HashSecret(secret, config.Cost)
		if err != nil {
			return nil, err
		}
		hash = []byte(h)
	}

	return &SecretVerifier{hash: hash, config: config}, nil
}

// HashSecret returns the bcrypt hash of secret.
func HashSecret(secret string, cost int) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", apperrors.Internal("failed to hash secret", err)
	}
	return string(h), nil
}

// Verify returns nil when secret matches. A mismatch returns an
// "auth.invalid" error, or "auth.rate_limited" once too many recent
// mismatches have been recorded.
func (v *SecretVerifier) Verify(secret string) error {
	// bcrypt.CompareHashAndPassword is timing-safe.
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(secret)); err == nil {
		return nil
	}

	if v.limited() {
		return apperrors.RateLimited()
	}
	v.recordFailure()
	return apperrors.InvalidSecret()
}

func (v *SecretVerifier) limited() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pruneLocked()
	return len(v.failures) >= v.config.MaxFailuresPerMinute
}

func (v *SecretVerifier) recordFailure() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failures = append(v.failures, v.config.TimeNow())
}

func (v *SecretVerifier) pruneLocked() {
	cutoff := v.config.TimeNow().Add(-time.Minute)
	i := 0
	for i < len(v.failures) && !v.failures[i].After(cutoff) {
		i++
	}
	v.failures = v.failures[i:]
}
