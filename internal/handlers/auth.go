package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/farmtrack/internal/auth"
	"github.com/BradenHooton/farmtrack/internal/models"
	"github.com/BradenHooton/farmtrack/internal/services"
	pkgauth "github.com/BradenHooton/farmtrack/pkg/auth"
	pkghttp "github.com/BradenHooton/farmtrack/pkg/http"
)

// Response messages shared by the auth endpoints
const (
	msgInvalidCredentials  = "Email/phone or password is incorrect"
	msgAccountDeactivated  = "Account is deactivated. Contact admin."
	msgForgotPassword      = "If an account with that email exists and is active, a password reset link has been sent."
	msgResetTokenRejected  = "Token is invalid or has expired"
	msgPasswordReset       = "Password has been reset successfully. You are now logged in."
	msgPasswordRequirement = "Password must be 8-128 characters and contain upper and lower case letters, a digit and a special character"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Register(ctx context.Context, in services.RegisterInput, client services.ClientInfo) (*services.AuthResult, error)
	Login(ctx context.Context, identifier, password string, client services.ClientInfo) (*services.AuthResult, error)
	RefreshToken(ctx context.Context, refreshToken string, client services.ClientInfo) (*services.AuthResult, error)
	Logout(ctx context.Context, userID, refreshToken string, client services.ClientInfo) error
	ForgotPassword(ctx context.Context, email string, client services.ClientInfo)
	ResetPassword(ctx context.Context, token, newPassword string, client services.ClientInfo) (*services.AuthResult, error)
}

// SessionCookies describes the cookies that carry a session to the browser
type SessionCookies struct {
	Config        auth.CookieConfig
	AccessMaxAge  time.Duration
	RefreshMaxAge time.Duration
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
	cookies  SessionCookies
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig, cookies SessionCookies, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
		cookies:  cookies,
		logger:   logger,
	}
}

// Request DTOs

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	FirstName string `json:"first_name" validate:"required,min=1,max=100"`
	LastName  string `json:"last_name" validate:"required,min=1,max=100"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Phone     string `json:"phone" validate:"required,e164"`
	Password  string `json:"password" validate:"required"`
	Role      string `json:"role" validate:"omitempty,oneof=farmer worker"`
}

// LoginRequest represents the request body for login. The identifier is
// either the account email or its phone number.
type LoginRequest struct {
	EmailOrPhone string `json:"email_or_phone" validate:"required,max=254"`
	Password     string `json:"password" validate:"required,max=128"`
}

// ForgotPasswordRequest represents the request body for a reset request
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// ResetPasswordRequest represents the request body for completing a reset
type ResetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required"`
}

// AuthResponse is returned by the flows that establish a session
type AuthResponse struct {
	Message     string                 `json:"message,omitempty"`
	AccessToken string                 `json:"access_token"`
	User        *services.UserResponse `json:"user"`
}

// MessageResponse is a body carrying only a human-readable message
type MessageResponse struct {
	Message string `json:"message"`
}

// Register handles user registration
// @Summary User registration
// @Accept json
// @Param request body RegisterRequest true "Register request"
// @Produce json
// @Success 201 {object} AuthResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.Register(r.Context(), services.RegisterInput{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     req.Email,
		Phone:     strings.TrimSpace(req.Phone),
		Password:  req.Password,
		Role:      models.Role(req.Role),
	}, h.clientInfo(r))
	if err != nil {
		var pwErr *pkgauth.PasswordValidationError
		switch {
		case errors.As(err, &pwErr):
			pkghttp.WriteError(w, http.StatusBadRequest, "invalid_password", msgPasswordRequirement)
		case errors.Is(err, models.ErrEmailAndPhoneTaken):
			pkghttp.WriteError(w, http.StatusBadRequest, "duplicate_account", "Email and phone number are already registered")
		case errors.Is(err, models.ErrEmailTaken):
			pkghttp.WriteError(w, http.StatusBadRequest, "duplicate_account", "Email is already registered")
		case errors.Is(err, models.ErrPhoneTaken):
			pkghttp.WriteError(w, http.StatusBadRequest, "duplicate_account", "Phone number is already registered")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteError(w, http.StatusBadRequest, "invalid_role", "Role must be one of: farmer, worker")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	h.writeSession(w, http.StatusCreated, "User registered successfully", result)
}

// Login handles user login
// @Summary User login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} AuthResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.Login(r.Context(), req.EmailOrPhone, req.Password, h.clientInfo(r))
	if err != nil {
		var locked *models.AccountLockedError
		switch {
		case errors.As(err, &locked):
			until := locked.Until.UTC().Format(time.RFC3339)
			pkghttp.WriteErrorResponse(w, http.StatusForbidden, pkghttp.ErrorResponse{
				Error:       "account_locked",
				Message:     fmt.Sprintf("Account is locked until %s due to multiple failed login attempts.", until),
				LockedUntil: until,
			})
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_credentials", msgInvalidCredentials)
		case errors.Is(err, models.ErrAccountDeactivated):
			pkghttp.WriteError(w, http.StatusForbidden, auth.CodeAccountDeactivated, msgAccountDeactivated)
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	h.writeSession(w, http.StatusOK, "Login successful", result)
}

// RefreshToken exchanges the refresh cookie for a new token pair
// @Summary Refresh access token
// @Produce json
// @Success 200 {object} AuthResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /auth/refresh-token [post]
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	presented := auth.GetRefreshTokenCookie(r)
	if presented == "" {
		pkghttp.WriteError(w, http.StatusUnauthorized, "refresh_token_missing", "Refresh token is required")
		return
	}

	result, err := h.service.RefreshToken(r.Context(), presented, h.clientInfo(r))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrRefreshTokenMissing):
			pkghttp.WriteError(w, http.StatusUnauthorized, "refresh_token_missing", "Refresh token is required")
		case errors.Is(err, models.ErrTokenInvalid):
			h.clearSession(w)
			pkghttp.WriteError(w, http.StatusForbidden, "invalid_refresh_token", "Refresh token is invalid or has been revoked")
		case errors.Is(err, models.ErrAccountDeactivated):
			h.clearSession(w)
			pkghttp.WriteError(w, http.StatusForbidden, auth.CodeAccountDeactivated, msgAccountDeactivated)
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	h.writeSession(w, http.StatusOK, "", result)
}

// Logout ends the current session. The caller is identified by the access
// token when one was attached, otherwise by the refresh cookie.
// @Summary Logout
// @Produce json
// @Success 200 {object} MessageResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var userID string
	if id, ok := auth.IdentityFromContext(r.Context()); ok {
		userID = id.ID
	}
	refresh := auth.GetRefreshTokenCookie(r)

	// Cookies go regardless of the outcome.
	h.clearSession(w)

	if userID == "" && refresh == "" {
		pkghttp.WriteError(w, http.StatusUnauthorized, auth.CodeTokenRequired, "No active session")
		return
	}

	if err := h.service.Logout(r.Context(), userID, refresh, h.clientInfo(r)); err != nil {
		switch {
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteError(w, http.StatusUnauthorized, "unauthorized", "No active session")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

// ForgotPassword starts a password reset. The response is identical whether
// or not the email belongs to an active account.
// @Summary Request password reset
// @Accept json
// @Param request body ForgotPasswordRequest true "Forgot password request"
// @Produce json
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Router /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	h.service.ForgotPassword(r.Context(), req.Email, h.clientInfo(r))

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: msgForgotPassword})
}

// ResetPassword completes a reset with the token from the emailed link and
// signs the user in.
// @Summary Reset password
// @Accept json
// @Param token path string true "Reset token"
// @Param request body ResetPasswordRequest true "Reset password request"
// @Produce json
// @Success 200 {object} AuthResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /auth/reset-password/{token} [patch]
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		pkghttp.WriteError(w, http.StatusBadRequest, "invalid_reset_token", msgResetTokenRejected)
		return
	}

	var req ResetPasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.ResetPassword(r.Context(), token, req.NewPassword, h.clientInfo(r))
	if err != nil {
		var pwErr *pkgauth.PasswordValidationError
		switch {
		case errors.Is(err, models.ErrResetTokenRejected):
			pkghttp.WriteError(w, http.StatusBadRequest, "invalid_reset_token", msgResetTokenRejected)
		case errors.As(err, &pwErr):
			pkghttp.WriteError(w, http.StatusBadRequest, "invalid_password", msgPasswordRequirement)
		case errors.Is(err, models.ErrAccountDeactivated):
			pkghttp.WriteError(w, http.StatusForbidden, auth.CodeAccountDeactivated, msgAccountDeactivated)
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	h.writeSession(w, http.StatusOK, msgPasswordReset, result)
}

func (h *AuthHandler) clientInfo(r *http.Request) services.ClientInfo {
	return services.ClientInfo{
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.UserAgent(),
	}
}

// writeSession sets both session cookies and writes the result body
func (h *AuthHandler) writeSession(w http.ResponseWriter, status int, message string, result *services.AuthResult) {
	if result.RefreshToken != "" {
		auth.SetRefreshTokenCookie(w, result.RefreshToken, h.cookies.RefreshMaxAge, h.cookies.Config)
	}
	auth.SetAccessTokenCookie(w, result.AccessToken, h.cookies.AccessMaxAge, h.cookies.Config)

	pkghttp.WriteJSON(w, status, AuthResponse{
		Message:     message,
		AccessToken: result.AccessToken,
		User:        result.User,
	})
}

func (h *AuthHandler) clearSession(w http.ResponseWriter) {
	auth.ClearRefreshTokenCookie(w, h.cookies.Config)
	auth.ClearAccessTokenCookie(w, h.cookies.Config)
}

// decodeAndValidate decodes the JSON body into dst and validates it, writing
// a 400 on failure. It reports whether the handler should continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := pkghttp.DecodeJSON(w, r, dst); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}
	if err := ValidateRequest(dst); err != nil {
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "validation_failed", "Request validation failed", err.Error())
		return false
	}
	return true
}
