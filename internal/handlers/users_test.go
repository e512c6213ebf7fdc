package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/farmtrack/internal/handlers"
	"github.com/BradenHooton/farmtrack/internal/models"
	"github.com/BradenHooton/farmtrack/internal/services"
)

func TestMe_Success(t *testing.T) {
	mockService := &handlers.MockUserService{
		GetUserByIDFunc: func(ctx context.Context, id string) (*services.UserResponse, error) {
			return &services.UserResponse{ID: id, Email: "user@example.com", FirstName: "Test", Role: "farmer", IsActive: true}, nil
		},
	}

	req := handlers.WithIdentity(httptest.NewRequest("GET", "/api/users/me", nil), "user123", models.RoleFarmer)
	w := httptest.NewRecorder()
	handlers.NewUserHandler(mockService).Me(w, req)

	var resp services.UserResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "user123", resp.ID)
	assert.Equal(t, "Test", resp.FirstName)
}

func TestMe_Unauthenticated(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/users/me", nil)
	w := httptest.NewRecorder()
	handlers.NewUserHandler(&handlers.MockUserService{}).Me(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
}

func TestListUsers_Pagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", 200, 20, 0},
		{"explicit", "?limit=5&offset=10", 200, 5, 10},
		{"limit too large", "?limit=500", 400, 0, 0},
		{"negative offset", "?offset=-1", 400, 0, 0},
		{"not a number", "?limit=abc", 400, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotLimit, gotOffset int
			mockService := &handlers.MockUserService{
				ListUsersFunc: func(ctx context.Context, limit, offset int) ([]*services.UserResponse, error) {
					gotLimit, gotOffset = limit, offset
					return []*services.UserResponse{{ID: "u1"}}, nil
				},
			}

			req := httptest.NewRequest("GET", "/api/users"+tt.query, nil)
			w := httptest.NewRecorder()
			handlers.NewUserHandler(mockService).ListUsers(w, req)

			if tt.wantStatus != 200 {
				handlers.AssertErrorResponse(t, w, tt.wantStatus, "bad_request")
				return
			}
			var resp handlers.ListUsersResponse
			handlers.AssertJSONResponse(t, w, 200, &resp)
			assert.Len(t, resp.Users, 1)
			assert.Equal(t, tt.wantLimit, gotLimit)
			assert.Equal(t, tt.wantOffset, gotOffset)
		})
	}
}

func TestListUsers_ServiceError(t *testing.T) {
	mockService := &handlers.MockUserService{
		ListUsersFunc: func(ctx context.Context, limit, offset int) ([]*services.UserResponse, error) {
			return nil, errors.New("boom")
		},
	}

	req := httptest.NewRequest("GET", "/api/users", nil)
	w := httptest.NewRecorder()
	handlers.NewUserHandler(mockService).ListUsers(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusInternalServerError, "internal_error")
}

func TestUpdateRole_Success(t *testing.T) {
	mockService := &handlers.MockUserService{
		UpdateRoleFunc: func(ctx context.Context, actorID, targetID string, role models.Role) (*services.UserResponse, error) {
			assert.Equal(t, "admin-1", actorID)
			assert.Equal(t, "target", targetID)
			return &services.UserResponse{ID: targetID, Role: string(role)}, nil
		},
	}

	req := handlers.NewTestRequest(t, "PATCH", "/api/users/target/role", handlers.UpdateRoleRequest{Role: "worker"})
	req = handlers.WithIdentity(req, "admin-1", models.RoleAdmin)
	req = handlers.WithChiRouteContext(req, map[string]string{"id": "target"})
	w := httptest.NewRecorder()
	handlers.NewUserHandler(mockService).UpdateRole(w, req)

	var resp services.UserResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "worker", resp.Role)
}

func TestUpdateRole_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       handlers.UpdateRoleRequest
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unknown role", handlers.UpdateRoleRequest{Role: "owner"}, nil, 400, "validation_failed"},
		{"self", handlers.UpdateRoleRequest{Role: "farmer"}, models.ErrForbidden, 403, "forbidden"},
		{"missing user", handlers.UpdateRoleRequest{Role: "farmer"}, models.ErrNotFound, 404, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &handlers.MockUserService{
				UpdateRoleFunc: func(ctx context.Context, actorID, targetID string, role models.Role) (*services.UserResponse, error) {
					return nil, tt.err
				},
			}

			req := handlers.NewTestRequest(t, "PATCH", "/api/users/target/role", tt.body)
			req = handlers.WithIdentity(req, "admin-1", models.RoleAdmin)
			req = handlers.WithChiRouteContext(req, map[string]string{"id": "target"})
			w := httptest.NewRecorder()
			handlers.NewUserHandler(mockService).UpdateRole(w, req)

			handlers.AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestUpdateStatus_Deactivate(t *testing.T) {
	var gotActive = true
	mockService := &handlers.MockUserService{
		UpdateStatusFunc: func(ctx context.Context, actorID, targetID string, active bool) (*services.UserResponse, error) {
			gotActive = active
			return &services.UserResponse{ID: targetID, IsActive: active}, nil
		},
	}

	inactive := false
	req := handlers.NewTestRequest(t, "PATCH", "/api/users/target/status", handlers.UpdateStatusRequest{IsActive: &inactive})
	req = handlers.WithIdentity(req, "admin-1", models.RoleAdmin)
	req = handlers.WithChiRouteContext(req, map[string]string{"id": "target"})
	w := httptest.NewRecorder()
	handlers.NewUserHandler(mockService).UpdateStatus(w, req)

	var resp services.UserResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	require.False(t, gotActive)
	assert.False(t, resp.IsActive)
}

func TestUpdateStatus_MissingField(t *testing.T) {
	req := handlers.NewTestRequest(t, "PATCH", "/api/users/target/status", map[string]any{})
	req = handlers.WithIdentity(req, "admin-1", models.RoleAdmin)
	req = handlers.WithChiRouteContext(req, map[string]string{"id": "target"})
	w := httptest.NewRecorder()
	handlers.NewUserHandler(&handlers.MockUserService{}).UpdateStatus(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "validation_failed")
}
