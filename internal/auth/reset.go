package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	resetTokenBytes       = 32
	DefaultResetTicketTTL = 10 * time.Minute
)

// ResetTicket is a freshly issued password reset token. Only Digest and
// ExpiresAt are stored; Plaintext is handed to the user once.
type ResetTicket struct {
	Plaintext string
	Digest    string
	ExpiresAt time.Time
}

func NewResetTicket(now time.Time, ttl time.Duration) (*ResetTicket, error) {
	if ttl <= 0 {
		ttl = DefaultResetTicketTTL
	}

	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate reset token: %w", err)
	}
	plain := hex.EncodeToString(b)

	return &ResetTicket{
		Plaintext: plain,
		Digest:    DigestResetToken(plain),
		ExpiresAt: now.Add(ttl),
	}, nil
}

// DigestResetToken returns the hex SHA-256 digest of a plaintext reset token.
func DigestResetToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
