package auth

import (
	"testing"
	"time"

	"github.com/BradenHooton/farmtrack/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccessSecret  = "access-secret-for-tests-0123456789"
	testRefreshSecret = "refresh-secret-for-tests-987654321"
)

func newTestTokenManager(t *testing.T) *TokenManager {
	t.Helper()
	tm, err := NewTokenManager(TokenConfig{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 7 * 24 * time.Hour,
		Issuer:        "FarmTrack",
		Audience:      "FarmTrackUsers",
	})
	require.NoError(t, err)
	return tm
}

func signRaw(t *testing.T, secret string, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestNewTokenManager_RejectsSharedSecret(t *testing.T) {
	_, err := NewTokenManager(TokenConfig{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testAccessSecret,
		AccessExpiry:  time.Minute,
		RefreshExpiry: time.Hour,
	})
	assert.Error(t, err)
}

func TestTokenManager_GenerateTokenPair(t *testing.T) {
	tm := newTestTokenManager(t)
	user := &models.User{ID: "6f1c1f9e-1111-4c1b-9a55-000000000001", Role: models.RoleFarmer}

	pair, err := tm.GenerateTokenPair(user)
	require.NoError(t, err)

	access, err := tm.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, access.Subject)
	assert.Equal(t, models.RoleFarmer, access.Role)
	assert.Equal(t, models.TokenTypeAccess, access.Type)
	assert.Equal(t, "FarmTrack", access.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"FarmTrackUsers"}, access.Audience)
	assert.NotEmpty(t, access.ID)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), access.ExpiresAt.Time, 2*time.Second)

	refresh, err := tm.ValidateRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, models.TokenTypeRefresh, refresh.Type)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), refresh.ExpiresAt.Time, 2*time.Second)
}

func TestTokenManager_RefreshTokensAreUniquePerIssue(t *testing.T) {
	tm := newTestTokenManager(t)

	a, err := tm.GenerateRefreshToken("u1", models.RoleWorker)
	require.NoError(t, err)
	b, err := tm.GenerateRefreshToken("u1", models.RoleWorker)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestTokenManager_KeysAreIndependent(t *testing.T) {
	tm := newTestTokenManager(t)

	refresh, err := tm.GenerateRefreshToken("u1", models.RoleFarmer)
	require.NoError(t, err)
	_, err = tm.ValidateAccessToken(refresh)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)

	access, err := tm.GenerateAccessToken("u1", models.RoleFarmer)
	require.NoError(t, err)
	_, err = tm.ValidateRefreshToken(access)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestTokenManager_Expired(t *testing.T) {
	tm := newTestTokenManager(t)
	issued := time.Now().Add(-time.Hour)
	tm.SetClock(func() time.Time { return issued })

	token, err := tm.GenerateAccessToken("u1", models.RoleFarmer)
	require.NoError(t, err)

	tm.SetClock(time.Now)
	_, err = tm.ValidateAccessToken(token)
	assert.ErrorIs(t, err, models.ErrTokenExpired)
}

func TestTokenManager_RejectsForeignTokens(t *testing.T) {
	tm := newTestTokenManager(t)
	now := time.Now()
	base := func() models.TokenClaims {
		return models.TokenClaims{
			Type: models.TokenTypeAccess,
			Role: models.RoleFarmer,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "u1",
				Issuer:    "FarmTrack",
				Audience:  jwt.ClaimStrings{"FarmTrackUsers"},
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			},
		}
	}

	wrongIssuer := base()
	wrongIssuer.Issuer = "SomeoneElse"

	wrongAudience := base()
	wrongAudience.Audience = jwt.ClaimStrings{"Others"}

	noExpiry := base()
	noExpiry.ExpiresAt = nil

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, func() *models.TokenClaims { c := base(); return &c }()).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"wrong issuer":   signRaw(t, testAccessSecret, &wrongIssuer),
		"wrong audience": signRaw(t, testAccessSecret, &wrongAudience),
		"missing expiry": signRaw(t, testAccessSecret, &noExpiry),
		"wrong key":      signRaw(t, "some-other-secret-value-123456", func() *models.TokenClaims { c := base(); return &c }()),
		"alg none":       unsigned,
		"garbage":        "not.a.jwt",
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := tm.ValidateAccessToken(token)
			assert.ErrorIs(t, err, models.ErrTokenInvalid)
		})
	}
}

func TestTokenManager_MissingSubject(t *testing.T) {
	tm := newTestTokenManager(t)
	now := time.Now()

	token := signRaw(t, testAccessSecret, &models.TokenClaims{
		Type: models.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "FarmTrack",
			Audience:  jwt.ClaimStrings{"FarmTrackUsers"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	})

	_, err := tm.ValidateAccessToken(token)
	assert.ErrorIs(t, err, models.ErrTokenPayloadInvalid)
}

func TestTokenManager_LegacySubjectClaim(t *testing.T) {
	tm := newTestTokenManager(t)
	now := time.Now()

	token := signRaw(t, testAccessSecret, &models.TokenClaims{
		Type:         models.TokenTypeAccess,
		LegacyUserID: "legacy-user",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "FarmTrack",
			Audience:  jwt.ClaimStrings{"FarmTrackUsers"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	})

	claims, err := tm.ValidateAccessToken(token)
	require.NoError(t, err)
	id, legacy := claims.SubjectID()
	assert.Equal(t, "legacy-user", id)
	assert.True(t, legacy)
}
