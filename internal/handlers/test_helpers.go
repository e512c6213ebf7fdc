package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/farmtrack/internal/auth"
	"github.com/BradenHooton/farmtrack/internal/models"
	"github.com/BradenHooton/farmtrack/internal/services"
	pkghttp "github.com/BradenHooton/farmtrack/pkg/http"
)

// TestCookies is a cookie setup suitable for handler tests
var TestCookies = SessionCookies{
	Config:        auth.CookieConfig{SameSite: "strict"},
	AccessMaxAge:  15 * time.Minute,
	RefreshMaxAge: 7 * 24 * time.Hour,
}

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithIdentity attaches an authenticated identity to the request context
func WithIdentity(req *http.Request, userID string, role models.Role) *http.Request {
	identity := &auth.Identity{ID: userID, Email: userID + "@example.com", Role: role, IsActive: true}
	claims := &models.TokenClaims{Type: models.TokenTypeAccess, Role: role}
	claims.Subject = userID
	return req.WithContext(auth.WithIdentity(req.Context(), identity, claims))
}

// WithChiRouteContext adds chi URL parameters to request context for testing
//
// Example usage:
//
//	req := httptest.NewRequest("PATCH", "/users/user123/role", body)
//	req = WithChiRouteContext(req, map[string]string{"id": "user123"})
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// FindCookie returns the named cookie set on the response, or nil
func FindCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	RegisterFunc       func(ctx context.Context, in services.RegisterInput, client services.ClientInfo) (*services.AuthResult, error)
	LoginFunc          func(ctx context.Context, identifier, password string, client services.ClientInfo) (*services.AuthResult, error)
	RefreshTokenFunc   func(ctx context.Context, refreshToken string, client services.ClientInfo) (*services.AuthResult, error)
	LogoutFunc         func(ctx context.Context, userID, refreshToken string, client services.ClientInfo) error
	ForgotPasswordFunc func(ctx context.Context, email string, client services.ClientInfo)
	ResetPasswordFunc  func(ctx context.Context, token, newPassword string, client services.ClientInfo) (*services.AuthResult, error)
}

func (m *MockAuthService) Register(ctx context.Context, in services.RegisterInput, client services.ClientInfo) (*services.AuthResult, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.RegisterFunc(ctx, in, client)
}

func (m *MockAuthService) Login(ctx context.Context, identifier, password string, client services.ClientInfo) (*services.AuthResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, identifier, password, client)
}

func (m *MockAuthService) RefreshToken(ctx context.Context, refreshToken string, client services.ClientInfo) (*services.AuthResult, error) {
	if m.RefreshTokenFunc == nil {
		return nil, models.ErrTokenInvalid
	}
	return m.RefreshTokenFunc(ctx, refreshToken, client)
}

func (m *MockAuthService) Logout(ctx context.Context, userID, refreshToken string, client services.ClientInfo) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, userID, refreshToken, client)
}

func (m *MockAuthService) ForgotPassword(ctx context.Context, email string, client services.ClientInfo) {
	if m.ForgotPasswordFunc != nil {
		m.ForgotPasswordFunc(ctx, email, client)
	}
}

func (m *MockAuthService) ResetPassword(ctx context.Context, token, newPassword string, client services.ClientInfo) (*services.AuthResult, error) {
	if m.ResetPasswordFunc == nil {
		return nil, models.ErrResetTokenRejected
	}
	return m.ResetPasswordFunc(ctx, token, newPassword, client)
}

// MockUserService implements UserService for testing
type MockUserService struct {
	GetUserByIDFunc  func(ctx context.Context, id string) (*services.UserResponse, error)
	ListUsersFunc    func(ctx context.Context, limit, offset int) ([]*services.UserResponse, error)
	UpdateRoleFunc   func(ctx context.Context, actorID, targetID string, role models.Role) (*services.UserResponse, error)
	UpdateStatusFunc func(ctx context.Context, actorID, targetID string, active bool) (*services.UserResponse, error)
}

func (m *MockUserService) GetUserByID(ctx context.Context, id string) (*services.UserResponse, error) {
	if m.GetUserByIDFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetUserByIDFunc(ctx, id)
}

func (m *MockUserService) ListUsers(ctx context.Context, limit, offset int) ([]*services.UserResponse, error) {
	if m.ListUsersFunc == nil {
		return []*services.UserResponse{}, nil
	}
	return m.ListUsersFunc(ctx, limit, offset)
}

func (m *MockUserService) UpdateRole(ctx context.Context, actorID, targetID string, role models.Role) (*services.UserResponse, error) {
	if m.UpdateRoleFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UpdateRoleFunc(ctx, actorID, targetID, role)
}

func (m *MockUserService) UpdateStatus(ctx context.Context, actorID, targetID string, active bool) (*services.UserResponse, error) {
	if m.UpdateStatusFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UpdateStatusFunc(ctx, actorID, targetID, active)
}

// MockFarmService implements FarmServiceInterface for testing
type MockFarmService struct {
	CreateFunc func(ctx context.Context, owner *auth.Identity, in services.FarmInput) (*services.FarmResponse, error)
	ListFunc   func(ctx context.Context, owner *auth.Identity, limit, offset int) ([]*services.FarmResponse, error)
	GetFunc    func(ctx context.Context, caller *auth.Identity, id string) (*services.FarmResponse, error)
}

func (m *MockFarmService) Create(ctx context.Context, owner *auth.Identity, in services.FarmInput) (*services.FarmResponse, error) {
	if m.CreateFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.CreateFunc(ctx, owner, in)
}

func (m *MockFarmService) List(ctx context.Context, owner *auth.Identity, limit, offset int) ([]*services.FarmResponse, error) {
	if m.ListFunc == nil {
		return []*services.FarmResponse{}, nil
	}
	return m.ListFunc(ctx, owner, limit, offset)
}

func (m *MockFarmService) Get(ctx context.Context, caller *auth.Identity, id string) (*services.FarmResponse, error) {
	if m.GetFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetFunc(ctx, caller, id)
}

// MockHealthChecker implements HealthChecker for testing
type MockHealthChecker struct {
	Err error
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	return m.Err
}
