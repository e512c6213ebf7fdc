package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/farmtrack/internal/auth"
	"github.com/BradenHooton/farmtrack/internal/metrics"
	"github.com/BradenHooton/farmtrack/internal/models"
	pkgauth "github.com/BradenHooton/farmtrack/pkg/auth"
	pkglogger "github.com/BradenHooton/farmtrack/pkg/logger"
)

const defaultWriteTimeout = 5 * time.Second

// Password reset stages reported to metrics
const (
	resetStageRequested      = "requested"
	resetStageDeliveryFailed = "delivery_failed"
	resetStageCompleted      = "completed"
	resetStageRejected       = "rejected"
)

// Token refresh outcomes reported to metrics
const (
	refreshSuccess  = "success"
	refreshMissing  = "missing"
	refreshInvalid  = "invalid"
	refreshRejected = "rejected"
)

// CacheInvalidator drops cached user snapshots after writes to cached fields
type CacheInvalidator interface {
	Invalidate(id string)
}

// ClientInfo describes the caller of an authentication flow for auditing
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// AuthConfig holds the policy knobs of the authentication flows
type AuthConfig struct {
	Lockout      auth.LockoutPolicy
	ResetTTL     time.Duration
	AppBaseURL   string
	WriteTimeout time.Duration // bound on auth-state writes detached from the request
}

// AuthServiceDeps are the collaborators of AuthService. Cache, Mailer,
// Timing, Metrics and Audit may be nil.
type AuthServiceDeps struct {
	Repo    UserRepository
	Hasher  *pkgauth.Hasher
	Tokens  *auth.TokenManager
	Cache   CacheInvalidator
	Mailer  Mailer
	Timing  *auth.TimingDelay
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Audit   *pkglogger.AuditLogger
}

// AuthService handles authentication business logic
type AuthService struct {
	repo        UserRepository
	hasher      *pkgauth.Hasher
	tm          *auth.TokenManager
	cache       CacheInvalidator
	mailer      Mailer
	timing      *auth.TimingDelay
	metrics     *metrics.Metrics
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	cfg         AuthConfig
	now         func() time.Time
}

// NewAuthService creates a new AuthService
func NewAuthService(deps AuthServiceDeps, cfg AuthConfig) *AuthService {
	if cfg.Lockout.Threshold <= 0 || cfg.Lockout.Duration <= 0 {
		cfg.Lockout = auth.NewLockoutPolicy(cfg.Lockout.Threshold, cfg.Lockout.Duration)
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = auth.DefaultResetTicketTTL
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	cfg.AppBaseURL = strings.TrimRight(cfg.AppBaseURL, "/")

	mailer := deps.Mailer
	if mailer == nil {
		mailer = NewLogMailer(deps.Logger)
	}

	return &AuthService{
		repo:        deps.Repo,
		hasher:      deps.Hasher,
		tm:          deps.Tokens,
		cache:       deps.Cache,
		mailer:      mailer,
		timing:      deps.Timing,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		auditLogger: deps.Audit,
		cfg:         cfg,
		now:         time.Now,
	}
}

// SetClock replaces the clock used for lockout and reset expiry decisions.
func (s *AuthService) SetClock(now func() time.Time) {
	s.now = now
}

// AuthResult is returned by the flows that sign a user in
type AuthResult struct {
	User         *UserResponse `json:"user"`
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"-"`
}

// RegisterInput carries the fields of a new account
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Password  string
	Role      models.Role
}

// Register creates a new account and signs it in
func (s *AuthService) Register(ctx context.Context, in RegisterInput, client ClientInfo) (*AuthResult, error) {
	in.Email = normalizeEmail(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	if in.Role == "" {
		in.Role = models.RoleFarmer
	}
	// Admins are appointed, never self-registered
	if !in.Role.Valid() || in.Role == models.RoleAdmin {
		return nil, models.ErrBadRequest
	}

	if err := pkgauth.ValidatePassword(in.Password); err != nil {
		return nil, err
	}

	emailTaken, phoneTaken, err := s.repo.ExistsByEmailOrPhone(ctx, in.Email, in.Phone)
	if err != nil {
		s.logger.Error("failed to check for existing user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	switch {
	case emailTaken && phoneTaken:
		return nil, models.ErrEmailAndPhoneTaken
	case emailTaken:
		return nil, models.ErrEmailTaken
	case phoneTaken:
		return nil, models.ErrPhoneTaken
	}

	hashedPassword, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.now().UTC()
	user := &models.User{
		ID:                uuid.New().String(),
		Email:             in.Email,
		Phone:             in.Phone,
		FirstName:         in.FirstName,
		LastName:          in.LastName,
		PasswordHash:      hashedPassword,
		Role:              in.Role,
		IsActive:          true,
		PasswordChangedAt: &now,
	}

	pair, err := s.tm.GenerateTokenPair(user)
	if err != nil {
		s.logger.Error("failed to generate tokens", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	user.RefreshToken = &pair.RefreshToken

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		// Lost a race with a concurrent registration
		if errors.Is(err, models.ErrEmailTaken) || errors.Is(err, models.ErrPhoneTaken) {
			return nil, err
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user registered", slog.String("user_id", created.ID), slog.String("role", string(created.Role)))
	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventRegister,
		UserID:    created.ID,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Success:   true,
	})

	return &AuthResult{
		User:         toUserResponse(created),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// Login authenticates a user by email or phone. Every failure is padded to
// the configured minimum duration.
func (s *AuthService) Login(ctx context.Context, identifier, password string, client ClientInfo) (*AuthResult, error) {
	start := time.Now()
	result, err := s.login(ctx, identifier, password, client)
	s.timing.WaitFrom(ctx, start, err == nil)
	return result, err
}

func (s *AuthService) login(ctx context.Context, identifier, password string, client ClientInfo) (*AuthResult, error) {
	identifier = normalizeIdentifier(identifier)

	var user *models.User
	if identifier != "" {
		found, err := s.repo.FindByEmailOrPhone(ctx, identifier)
		switch {
		case err == nil:
			user = found
		case !errors.Is(err, models.ErrNotFound):
			s.logger.Error("failed to look up user for login", slog.Any("error", err))
			s.metrics.LoginAttempt(metrics.LoginError)
			return nil, models.ErrInternalServer
		}
	}

	if user == nil {
		s.hasher.VerifyDummy(password)
		s.logger.Info("login failed: invalid credentials",
			slog.String("identifier", pkglogger.SanitizedIdentifier(identifier)))
		s.auditFailure(ctx, "", client, "invalid_credentials")
		s.metrics.LoginAttempt(metrics.LoginInvalidCredentials)
		return nil, models.ErrInvalidCredentials
	}

	now := s.now()
	match := s.hasher.Verify(password, user.PasswordHash)

	state := models.LockoutState{FailedAttempts: user.FailedLoginAttempts, LockedUntil: user.LockedUntil}
	if locked, until := s.cfg.Lockout.IsLocked(state, now); locked {
		s.logger.Info("login blocked: account locked",
			slog.String("user_id", user.ID),
			slog.Time("locked_until", until))
		s.auditFailure(ctx, user.ID, client, "account_locked")
		s.metrics.LoginAttempt(metrics.LoginLocked)
		return nil, &models.AccountLockedError{Until: until}
	}

	if !match {
		return nil, s.recordFailure(ctx, user, client, now)
	}

	if !user.IsActive {
		s.logger.Info("login blocked: account deactivated", slog.String("user_id", user.ID))
		s.auditFailure(ctx, user.ID, client, "account_deactivated")
		s.metrics.LoginAttempt(metrics.LoginDeactivated)
		return nil, models.ErrAccountDeactivated
	}

	pair, err := s.tm.GenerateTokenPair(user)
	if err != nil {
		s.logger.Error("failed to generate tokens", slog.String("user_id", user.ID), slog.Any("error", err))
		s.metrics.LoginAttempt(metrics.LoginError)
		return nil, models.ErrInternalServer
	}

	wctx, cancel := s.writeContext(ctx)
	defer cancel()
	if err := s.repo.RecordSuccessfulLogin(wctx, user.ID, pair.RefreshToken, now); err != nil {
		s.logger.Error("failed to record successful login", slog.String("user_id", user.ID), slog.Any("error", err))
		s.metrics.LoginAttempt(metrics.LoginError)
		return nil, models.ErrInternalServer
	}
	s.invalidate(user.ID)

	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now
	user.RefreshToken = &pair.RefreshToken

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventLogin,
		UserID:    user.ID,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Success:   true,
	})
	s.metrics.LoginAttempt(metrics.LoginSuccess)

	return &AuthResult{
		User:         toUserResponse(user),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// recordFailure counts a wrong password against the account and reports a
// lockout when the threshold is crossed.
func (s *AuthService) recordFailure(ctx context.Context, user *models.User, client ClientInfo, now time.Time) error {
	wctx, cancel := s.writeContext(ctx)
	defer cancel()

	next, err := s.repo.RecordFailedLogin(wctx, user.ID, s.cfg.Lockout, now)
	if err != nil {
		s.logger.Error("failed to record failed login", slog.String("user_id", user.ID), slog.Any("error", err))
		s.metrics.LoginAttempt(metrics.LoginError)
		return models.ErrInternalServer
	}

	if locked, until := s.cfg.Lockout.IsLocked(next, now); locked {
		s.logger.Warn("account locked after failed logins",
			slog.String("user_id", user.ID),
			slog.Int("failed_attempts", next.FailedAttempts),
			slog.Time("locked_until", until))
		s.auditLogger.LogLockout(ctx, user.ID, client.IPAddress, until)
		s.metrics.Lockout()
	}

	s.logger.Info("login failed: invalid credentials", slog.String("user_id", user.ID))
	s.auditFailure(ctx, user.ID, client, "invalid_credentials")
	s.metrics.LoginAttempt(metrics.LoginInvalidCredentials)
	return models.ErrInvalidCredentials
}

// RefreshToken exchanges the stored refresh token for a new pair. The
// presented token must equal the one on record, so each refresh token is
// honored at most once.
func (s *AuthService) RefreshToken(ctx context.Context, presented string, client ClientInfo) (*AuthResult, error) {
	if presented = strings.TrimSpace(presented); presented == "" {
		s.metrics.TokenRefresh(refreshMissing)
		return nil, models.ErrRefreshTokenMissing
	}

	claims, err := s.tm.ValidateRefreshToken(presented)
	if err != nil {
		s.logger.Info("refresh token validation failed", slog.Any("error", err))
		s.metrics.TokenRefresh(refreshInvalid)
		return nil, models.ErrTokenInvalid
	}

	userID, legacy := claims.SubjectID()
	if legacy {
		s.logger.Warn("refresh token carries deprecated subject claim", slog.String("user_id", userID))
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("user not found for token refresh", slog.String("user_id", userID))
			s.metrics.TokenRefresh(refreshInvalid)
			return nil, models.ErrTokenInvalid
		}
		s.logger.Error("failed to get user for token refresh", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !user.IsActive {
		s.logger.Info("token refresh blocked: account deactivated", slog.String("user_id", user.ID))
		s.metrics.TokenRefresh(refreshRejected)
		return nil, models.ErrAccountDeactivated
	}

	if !refreshTokenMatches(user.RefreshToken, presented) {
		s.logger.Warn("refresh token does not match the active session", slog.String("user_id", user.ID))
		s.metrics.TokenRefresh(refreshRejected)
		return nil, models.ErrTokenInvalid
	}

	pair, err := s.tm.GenerateTokenPair(user)
	if err != nil {
		s.logger.Error("failed to generate tokens", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	wctx, cancel := s.writeContext(ctx)
	defer cancel()
	if err := s.repo.RotateRefreshToken(wctx, user.ID, presented, pair.RefreshToken); err != nil {
		if errors.Is(err, models.ErrTokenInvalid) {
			s.logger.Warn("refresh token rotated concurrently", slog.String("user_id", user.ID))
			s.metrics.TokenRefresh(refreshRejected)
			return nil, models.ErrTokenInvalid
		}
		s.logger.Error("failed to rotate refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	s.invalidate(user.ID)
	user.RefreshToken = &pair.RefreshToken

	s.logger.Info("token refreshed", slog.String("user_id", user.ID))
	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventTokenRefresh,
		UserID:    user.ID,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Success:   true,
	})
	s.metrics.TokenRefresh(refreshSuccess)

	return &AuthResult{
		User:         toUserResponse(user),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// Logout ends the stored session of userID. When userID is empty the user
// is resolved from refreshToken instead, which must still be the active one.
func (s *AuthService) Logout(ctx context.Context, userID, refreshToken string, client ClientInfo) error {
	if userID == "" {
		id, err := s.resolveRefreshSession(ctx, refreshToken)
		if err != nil {
			return err
		}
		userID = id
	}

	wctx, cancel := s.writeContext(ctx)
	defer cancel()
	err := s.repo.UpdateAuthFields(wctx, userID, models.AuthFieldsUpdate{ClearRefreshToken: true})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrUnauthorized
		}
		s.logger.Error("failed to clear refresh token", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	s.invalidate(userID)

	s.logger.Info("user logged out", slog.String("user_id", userID))
	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventLogout,
		UserID:    userID,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Success:   true,
	})
	return nil
}

func (s *AuthService) resolveRefreshSession(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", models.ErrUnauthorized
	}
	claims, err := s.tm.ValidateRefreshToken(refreshToken)
	if err != nil {
		return "", models.ErrUnauthorized
	}
	userID, _ := claims.SubjectID()

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", models.ErrUnauthorized
		}
		s.logger.Error("failed to get user for logout", slog.String("user_id", userID), slog.Any("error", err))
		return "", models.ErrInternalServer
	}
	if !refreshTokenMatches(user.RefreshToken, refreshToken) {
		return "", models.ErrUnauthorized
	}
	return user.ID, nil
}

// ForgotPassword issues a reset ticket to an active account and emails it.
// It reports nothing to the caller: the outcome is the same whether or not
// the account exists, and every call is padded to the same minimum duration.
func (s *AuthService) ForgotPassword(ctx context.Context, email string, client ClientInfo) {
	start := time.Now()
	defer s.timing.WaitFrom(ctx, start, false)

	email = normalizeEmail(email)
	if email == "" {
		return
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to look up user for password reset", slog.Any("error", err))
			return
		}
		s.logger.Info("password reset requested for unknown email",
			slog.String("email", pkglogger.SanitizedEmail(email)))
		return
	}
	if !user.IsActive {
		s.logger.Info("password reset requested for deactivated account", slog.String("user_id", user.ID))
		return
	}

	ticket, err := auth.NewResetTicket(s.now(), s.cfg.ResetTTL)
	if err != nil {
		s.logger.Error("failed to issue reset ticket", slog.String("user_id", user.ID), slog.Any("error", err))
		return
	}

	wctx, cancel := s.writeContext(ctx)
	defer cancel()

	err = s.repo.UpdateAuthFields(wctx, user.ID, models.AuthFieldsUpdate{
		PasswordResetTokenHash: &ticket.Digest,
		PasswordResetExpiresAt: &ticket.ExpiresAt,
	})
	if err != nil {
		s.logger.Error("failed to store reset ticket", slog.String("user_id", user.ID), slog.Any("error", err))
		return
	}

	link := s.cfg.AppBaseURL + "/reset-password/" + ticket.Plaintext
	msg := passwordResetMessage(user.Email, user.FirstName, link, s.cfg.ResetTTL)
	if _, err := s.mailer.Send(wctx, msg); err != nil {
		s.logger.Error("failed to deliver reset email, clearing ticket",
			slog.String("user_id", user.ID), slog.Any("error", err))
		s.metrics.PasswordReset(resetStageDeliveryFailed)

		cleanupErr := s.repo.UpdateAuthFields(wctx, user.ID, models.AuthFieldsUpdate{ClearPasswordReset: true})
		if cleanupErr != nil {
			s.logger.Error("failed to clear undelivered reset ticket",
				slog.String("user_id", user.ID), slog.Any("error", cleanupErr))
		}
		return
	}

	s.logger.Info("password reset requested", slog.String("user_id", user.ID))
	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventResetRequested,
		UserID:    user.ID,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Success:   true,
	})
	s.metrics.PasswordReset(resetStageRequested)
}

// ResetPassword consumes a reset ticket, sets the new password and signs the
// user in. Unknown, used and expired tickets are all rejected alike.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string, client ClientInfo) (*AuthResult, error) {
	if token = strings.TrimSpace(token); token == "" {
		s.metrics.PasswordReset(resetStageRejected)
		return nil, models.ErrResetTokenRejected
	}

	// Checked before the ticket so a weak password is reported the same way
	// whether or not the ticket is live.
	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return nil, err
	}

	digest := auth.DigestResetToken(token)
	now := s.now()

	user, err := s.repo.FindByResetTokenDigest(ctx, digest, now)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("password reset rejected: unknown or expired ticket")
			s.metrics.PasswordReset(resetStageRejected)
			return nil, models.ErrResetTokenRejected
		}
		s.logger.Error("failed to look up reset ticket", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !user.IsActive {
		s.logger.Info("password reset blocked: account deactivated", slog.String("user_id", user.ID))
		return nil, models.ErrAccountDeactivated
	}

	hashedPassword, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	pair, err := s.tm.GenerateTokenPair(user)
	if err != nil {
		s.logger.Error("failed to generate tokens", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	wctx, cancel := s.writeContext(ctx)
	defer cancel()
	updated, err := s.repo.ConsumeResetToken(wctx, user.ID, digest, hashedPassword, pair.RefreshToken, now)
	if err != nil {
		if errors.Is(err, models.ErrResetTokenRejected) {
			s.logger.Info("password reset rejected: ticket consumed concurrently", slog.String("user_id", user.ID))
			s.metrics.PasswordReset(resetStageRejected)
			return nil, models.ErrResetTokenRejected
		}
		s.logger.Error("failed to consume reset ticket", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	s.invalidate(user.ID)

	s.logger.Info("password reset completed", slog.String("user_id", user.ID))
	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventResetCompleted,
		UserID:    user.ID,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Success:   true,
	})
	s.metrics.PasswordReset(resetStageCompleted)

	return &AuthResult{
		User:         toUserResponse(updated),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// writeContext detaches auth-state writes from the request so that a client
// disconnect cannot abandon them halfway.
func (s *AuthService) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
}

func (s *AuthService) invalidate(userID string) {
	if s.cache != nil {
		s.cache.Invalidate(userID)
	}
}

func (s *AuthService) auditFailure(ctx context.Context, userID string, client ClientInfo, reason string) {
	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType:     pkglogger.EventLogin,
		UserID:        userID,
		IPAddress:     client.IPAddress,
		UserAgent:     client.UserAgent,
		Success:       false,
		FailureReason: reason,
	})
}

func refreshTokenMatches(stored *string, presented string) bool {
	if stored == nil || *stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*stored), []byte(presented)) == 1
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// normalizeIdentifier lower-cases email identifiers and leaves phone
// numbers as typed.
func normalizeIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		return strings.ToLower(identifier)
	}
	return identifier
}
