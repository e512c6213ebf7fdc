package models

import (
	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenClaims are the claims carried by both access and refresh tokens.
// The subject (sub) holds the user ID.
type TokenClaims struct {
	Type string `json:"type"`
	Role Role   `json:"role"`

	// Deprecated: tokens minted before the switch to "sub" carried the
	// user ID under these names. Read only through SubjectID.
	LegacyUserID string `json:"userId,omitempty"`
	LegacyID     string `json:"id,omitempty"`

	jwt.RegisteredClaims
}

// SubjectID returns the user ID of the token, falling back to the legacy
// claim names. The second result is true when a legacy name was used.
func (c *TokenClaims) SubjectID() (string, bool) {
	if c.Subject != "" {
		return c.Subject, false
	}
	if c.LegacyUserID != "" {
		return c.LegacyUserID, true
	}
	if c.LegacyID != "" {
		return c.LegacyID, true
	}
	return "", false
}

// TokenPair is an access token plus its companion refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessClaims *TokenClaims
}
