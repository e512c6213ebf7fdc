package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/farmtrack/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenConfig configures a TokenManager.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
	Audience      string
}

// TokenManager handles JWT token generation and validation.
// Access and refresh tokens are signed with independent keys.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	issuer        string
	audience      string
	now           func() time.Time
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(cfg TokenConfig) (*TokenManager, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("token secrets must not be empty")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, fmt.Errorf("access and refresh token secrets must differ")
	}
	if cfg.AccessExpiry <= 0 || cfg.RefreshExpiry <= 0 {
		return nil, fmt.Errorf("token expiries must be positive")
	}

	return &TokenManager{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessExpiry:  cfg.AccessExpiry,
		refreshExpiry: cfg.RefreshExpiry,
		issuer:        cfg.Issuer,
		audience:      cfg.Audience,
		now:           time.Now,
	}, nil
}

// SetClock replaces the time source used to stamp and validate tokens.
func (tm *TokenManager) SetClock(now func() time.Time) {
	tm.now = now
}

func (tm *TokenManager) AccessExpiry() time.Duration  { return tm.accessExpiry }
func (tm *TokenManager) RefreshExpiry() time.Duration { return tm.refreshExpiry }

// GenerateTokenPair issues a fresh access and refresh token for the user.
func (tm *TokenManager) GenerateTokenPair(user *models.User) (*models.TokenPair, error) {
	access, claims, err := tm.sign(user.ID, user.Role, models.TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	refresh, _, err := tm.sign(user.ID, user.Role, models.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	return &models.TokenPair{AccessToken: access, RefreshToken: refresh, AccessClaims: claims}, nil
}

// GenerateAccessToken creates a short-lived access token with JTI
func (tm *TokenManager) GenerateAccessToken(userID string, role models.Role) (string, error) {
	token, _, err := tm.sign(userID, role, models.TokenTypeAccess)
	return token, err
}

// GenerateRefreshToken creates a long-lived refresh token with JTI
func (tm *TokenManager) GenerateRefreshToken(userID string, role models.Role) (string, error) {
	token, _, err := tm.sign(userID, role, models.TokenTypeRefresh)
	return token, err
}

func (tm *TokenManager) sign(userID string, role models.Role, tokenType string) (string, *models.TokenClaims, error) {
	key, expiry := tm.accessSecret, tm.accessExpiry
	if tokenType == models.TokenTypeRefresh {
		key, expiry = tm.refreshSecret, tm.refreshExpiry
	}

	now := tm.now()
	claims := &models.TokenClaims{
		Type: tokenType,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userID,
			Issuer:    tm.issuer,
			Audience:  jwt.ClaimStrings{tm.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, claims, nil
}

// ValidateAccessToken verifies an access token and returns its claims.
func (tm *TokenManager) ValidateAccessToken(tokenString string) (*models.TokenClaims, error) {
	return tm.validate(tokenString, tm.accessSecret, models.TokenTypeAccess)
}

// ValidateRefreshToken verifies a refresh token and returns its claims.
func (tm *TokenManager) ValidateRefreshToken(tokenString string) (*models.TokenClaims, error) {
	return tm.validate(tokenString, tm.refreshSecret, models.TokenTypeRefresh)
}

// validate returns models.ErrTokenExpired, models.ErrTokenInvalid or
// models.ErrTokenPayloadInvalid on failure.
func (tm *TokenManager) validate(tokenString string, key []byte, tokenType string) (*models.TokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(tm.now),
	}
	if tm.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tm.issuer))
	}
	if tm.audience != "" {
		opts = append(opts, jwt.WithAudience(tm.audience))
	}

	claims := &models.TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", models.ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, models.ErrTokenInvalid
	}

	if claims.Type != tokenType {
		return nil, fmt.Errorf("%w: expected %s token", models.ErrTokenInvalid, tokenType)
	}
	if id, _ := claims.SubjectID(); id == "" {
		return nil, models.ErrTokenPayloadInvalid
	}

	return claims, nil
}
