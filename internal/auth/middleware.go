package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/farmtrack/internal/cache"
	"github.com/BradenHooton/farmtrack/internal/models"
	pkghttp "github.com/BradenHooton/farmtrack/pkg/http"
)

const (
	minTokenLength = 10
	maxTokenLength = 4096
)

// Rejection codes written by the authentication pipeline
const (
	CodeTokenRequired       = "token_required"
	CodeInvalidTokenFormat  = "invalid_token_format"
	CodeTokenExpired        = "token_expired"
	CodeInvalidToken        = "invalid_token"
	CodeInvalidTokenPayload = "invalid_token_payload"
	CodeAccountNotFound     = "account_not_found"
	CodeAccountDeactivated  = "account_deactivated"
	CodeInsufficientRole    = "insufficient_role"
	CodeTokenTooOld         = "token_too_old"
	CodeInternalError       = "internal_error"
)

// Rejection is a terminal response produced by a pipeline stage.
type Rejection struct {
	Status        int
	Code          string
	Message       string
	RequiredRoles []string
	CurrentRole   string
}

func (rj *Rejection) Write(w http.ResponseWriter) {
	pkghttp.WriteErrorResponse(w, rj.Status, pkghttp.ErrorResponse{
		Error:         rj.Code,
		Message:       rj.Message,
		RequiredRoles: rj.RequiredRoles,
		CurrentRole:   rj.CurrentRole,
	})
}

// IdentityResolver resolves a token subject to the current user snapshot.
type IdentityResolver interface {
	Get(ctx context.Context, id string) (*cache.Snapshot, error)
}

// AuthState is the per-request state threaded through the stages.
type AuthState struct {
	Request  *http.Request
	Token    string
	Claims   *models.TokenClaims
	Identity *Identity
}

// Stage inspects or extends the state. Returning a non-nil Rejection stops
// the pipeline and is written as the response.
type Stage func(*AuthState) *Rejection

// Authenticator resolves the bearer credential of a request into an Identity.
type Authenticator struct {
	tokens *TokenManager
	users  IdentityResolver
	logger *slog.Logger
	stages []Stage
}

func NewAuthenticator(tokens *TokenManager, users IdentityResolver, logger *slog.Logger) *Authenticator {
	a := &Authenticator{tokens: tokens, users: users, logger: logger}
	a.stages = []Stage{a.extract, a.verify, a.resolve}
	return a
}

// Authenticate runs the pipeline and returns the request with the identity
// and claims attached, or the rejection of the first failing stage.
func (a *Authenticator) Authenticate(r *http.Request) (*http.Request, *Rejection) {
	state := &AuthState{Request: r}
	for _, stage := range a.stages {
		if rej := stage(state); rej != nil {
			return r, rej
		}
	}
	ctx := WithIdentity(r.Context(), state.Identity, state.Claims)
	return r.WithContext(ctx), nil
}

// Middleware rejects unauthenticated requests.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authed, rej := a.Authenticate(r)
		if rej != nil {
			rej.Write(w)
			return
		}
		next.ServeHTTP(w, authed)
	})
}

// Optional attaches the identity when the request carries a valid access
// token and otherwise passes the request through untouched.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authed, rej := a.Authenticate(r); rej == nil {
			r = authed
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) extract(s *AuthState) *Rejection {
	token := bearerToken(s.Request.Header.Get("Authorization"))
	if token == "" {
		if c, err := s.Request.Cookie(AccessTokenCookie); err == nil {
			token = c.Value
		}
	}

	if token == "" {
		return &Rejection{Status: http.StatusUnauthorized, Code: CodeTokenRequired, Message: "Access token required"}
	}
	if len(token) < minTokenLength || len(token) > maxTokenLength {
		return &Rejection{Status: http.StatusUnauthorized, Code: CodeInvalidTokenFormat, Message: "Invalid token format"}
	}

	s.Token = token
	return nil
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func (a *Authenticator) verify(s *AuthState) *Rejection {
	claims, err := a.tokens.ValidateAccessToken(s.Token)
	switch {
	case err == nil:
		s.Claims = claims
		return nil
	case errors.Is(err, models.ErrTokenExpired):
		return &Rejection{Status: http.StatusUnauthorized, Code: CodeTokenExpired, Message: "Access token has expired"}
	case errors.Is(err, models.ErrTokenPayloadInvalid):
		return &Rejection{Status: http.StatusUnauthorized, Code: CodeInvalidTokenPayload, Message: "Invalid token payload"}
	default:
		return &Rejection{Status: http.StatusUnauthorized, Code: CodeInvalidToken, Message: "Invalid access token"}
	}
}

func (a *Authenticator) resolve(s *AuthState) *Rejection {
	userID, legacy := s.Claims.SubjectID()
	if legacy {
		a.logger.Warn("access token carries deprecated subject claim",
			slog.String("user_id", userID),
			slog.String("jti", s.Claims.ID))
	}

	snap, err := a.users.Get(s.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &Rejection{Status: http.StatusForbidden, Code: CodeAccountNotFound, Message: "Account not found"}
		}
		a.logger.Error("failed to resolve authenticated user",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return &Rejection{Status: http.StatusInternalServerError, Code: CodeInternalError, Message: "Internal server error"}
	}
	if !snap.IsActive {
		return &Rejection{Status: http.StatusForbidden, Code: CodeAccountDeactivated, Message: "Account is deactivated"}
	}

	s.Identity = &Identity{ID: snap.ID, Email: snap.Email, Role: snap.Role, IsActive: snap.IsActive}
	return nil
}

// RequireRole allows the request only if the authenticated identity holds
// one of roles. It must run after Authenticator.Middleware.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	required := make([]string, len(roles))
	for i, r := range roles {
		required[i] = string(r)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				(&Rejection{Status: http.StatusUnauthorized, Code: CodeTokenRequired, Message: "Authentication required"}).Write(w)
				return
			}
			if !id.HasRole(roles...) {
				(&Rejection{
					Status:        http.StatusForbidden,
					Code:          CodeInsufficientRole,
					Message:       "Insufficient permissions",
					RequiredRoles: required,
					CurrentRole:   string(id.Role),
				}).Write(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireFreshToken rejects access tokens issued more than maxAge ago.
func RequireFreshToken(maxAge time.Duration, now func() time.Time) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				(&Rejection{Status: http.StatusUnauthorized, Code: CodeTokenRequired, Message: "Authentication required"}).Write(w)
				return
			}
			if claims.IssuedAt == nil || now().Sub(claims.IssuedAt.Time) > maxAge {
				(&Rejection{Status: http.StatusUnauthorized, Code: CodeTokenTooOld, Message: "Please sign in again to continue"}).Write(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
