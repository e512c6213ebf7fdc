package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name       string
		password   string
		shouldFail bool
		reason     string
	}{
		{name: "valid strong password", password: "SecureP@ss123"},
		{name: "valid with dollar sign", password: "pw123$Strong"},
		{name: "valid with multiple special chars", password: "Secure#P@ssw0rd"},
		{name: "too short", password: "Pass@1", shouldFail: true, reason: "at least"},
		{name: "missing uppercase", password: "securepass@123", shouldFail: true, reason: "uppercase"},
		{name: "missing lowercase", password: "SECUREPASS@123", shouldFail: true, reason: "lowercase"},
		{name: "missing digit", password: "SecurePass@xyz", shouldFail: true, reason: "digit"},
		{name: "missing special character", password: "SecurePass123", shouldFail: true, reason: "special"},
		{name: "common password rejected", password: "Password123!", shouldFail: true, reason: "too common"},
		{name: "too long", password: "Aa1@" + strings.Repeat("x", 130), shouldFail: true, reason: "at most"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if !tt.shouldFail {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.Equal(t, "invalid password", err.Error())

			var pve *PasswordValidationError
			require.True(t, errors.As(err, &pve))
			assert.Contains(t, strings.Join(pve.Errors, "; "), tt.reason)
		})
	}
}

func TestHasher_HashAndVerify(t *testing.T) {
	h, err := NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	hash, err := h.Hash("SecureP@ss123")
	require.NoError(t, err)
	assert.NotEqual(t, "SecureP@ss123", hash)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)

	assert.True(t, h.Verify("SecureP@ss123", hash))
	assert.False(t, h.Verify("WrongPassword123!", hash))
	assert.False(t, h.Verify("SecureP@ss123", "not-a-bcrypt-digest"))
}

func TestHasher_EmptyPassword(t *testing.T) {
	h, err := NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	_, err = h.Hash("")
	assert.Error(t, err)
}

func TestHasher_DummyDigestUsesSameCost(t *testing.T) {
	h, err := NewHasher(5)
	require.NoError(t, err)

	cost, err := bcrypt.Cost(h.dummy)
	require.NoError(t, err)
	assert.Equal(t, 5, cost)

	assert.False(t, h.VerifyDummy("anything"))
	assert.False(t, h.VerifyDummy(""))
}
