package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/farmtrack/internal/handlers"
	"github.com/BradenHooton/farmtrack/internal/services"
)

// mockAdminService implements handlers.AdminServiceInterface for testing
type mockAdminService struct {
	GetDashboardStatsFunc func(ctx context.Context) (*services.DashboardStatsResponse, error)
}

func (m *mockAdminService) GetDashboardStats(ctx context.Context) (*services.DashboardStatsResponse, error) {
	if m.GetDashboardStatsFunc == nil {
		return &services.DashboardStatsResponse{}, nil
	}
	return m.GetDashboardStatsFunc(ctx)
}

func TestGetDashboardStats_Success_Returns200(t *testing.T) {
	mock := &mockAdminService{
		GetDashboardStatsFunc: func(ctx context.Context) (*services.DashboardStatsResponse, error) {
			return &services.DashboardStatsResponse{
				TotalUsers:    100,
				ActiveUsers:   80,
				InactiveUsers: 20,
				LockedUsers:   2,
				NewUsersToday: 7,
				TotalFarms:    42,
				RoleBreakdown: map[string]int64{"admin": 3, "farmer": 60, "worker": 37},
			}, nil
		},
	}
	h := handlers.NewAdminHandler(mock)

	req := httptest.NewRequest("GET", "/api/admin/dashboard/stats", nil)
	w := httptest.NewRecorder()
	h.GetDashboardStats(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp services.DashboardStatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(100), resp.TotalUsers)
	assert.Equal(t, int64(2), resp.LockedUsers)
	assert.Equal(t, int64(42), resp.TotalFarms)
	assert.Equal(t, int64(60), resp.RoleBreakdown["farmer"])
}

func TestGetDashboardStats_ServiceError_Returns500(t *testing.T) {
	mock := &mockAdminService{
		GetDashboardStatsFunc: func(ctx context.Context) (*services.DashboardStatsResponse, error) {
			return nil, errors.New("database connection lost")
		},
	}
	h := handlers.NewAdminHandler(mock)

	req := httptest.NewRequest("GET", "/api/admin/dashboard/stats", nil)
	w := httptest.NewRecorder()
	h.GetDashboardStats(w, req)

	handlers.AssertErrorResponse(t, w, 500, "internal_error")
}
