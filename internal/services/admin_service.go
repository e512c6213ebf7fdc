package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/farmtrack/internal/models"
)

// AdminUserRepository is the subset of the user store needed by AdminService.
type AdminUserRepository interface {
	CountTotal(ctx context.Context) (int64, error)
	CountByActive(ctx context.Context, active bool) (int64, error)
	CountByRole(ctx context.Context, role models.Role) (int64, error)
	CountLocked(ctx context.Context, now time.Time) (int64, error)
	CountNewSince(ctx context.Context, since time.Time) (int64, error)
}

// AdminFarmRepository is the subset of the farm store needed by AdminService.
type AdminFarmRepository interface {
	CountTotal(ctx context.Context) (int64, error)
}

// DashboardStatsResponse contains aggregate admin metrics.
type DashboardStatsResponse struct {
	TotalUsers    int64            `json:"total_users"`
	ActiveUsers   int64            `json:"active_users"`
	InactiveUsers int64            `json:"inactive_users"`
	LockedUsers   int64            `json:"locked_users"`
	NewUsersToday int64            `json:"new_users_today"`
	TotalFarms    int64            `json:"total_farms"`
	RoleBreakdown map[string]int64 `json:"role_breakdown"`
}

// AdminService aggregates data for admin dashboard endpoints.
type AdminService struct {
	userRepo AdminUserRepository
	farmRepo AdminFarmRepository
	logger   *slog.Logger
	now      func() time.Time
}

// NewAdminService creates a new AdminService.
func NewAdminService(userRepo AdminUserRepository, farmRepo AdminFarmRepository, logger *slog.Logger) *AdminService {
	return &AdminService{
		userRepo: userRepo,
		farmRepo: farmRepo,
		logger:   logger,
		now:      time.Now,
	}
}

// GetDashboardStats returns aggregate user and farm counts.
func (s *AdminService) GetDashboardStats(ctx context.Context) (*DashboardStatsResponse, error) {
	now := s.now().UTC()

	total, err := s.userRepo.CountTotal(ctx)
	if err != nil {
		s.logger.Error("dashboard: failed to count total users", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	active, err := s.userRepo.CountByActive(ctx, true)
	if err != nil {
		s.logger.Error("dashboard: failed to count active users", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	locked, err := s.userRepo.CountLocked(ctx, now)
	if err != nil {
		s.logger.Error("dashboard: failed to count locked users", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	newToday, err := s.userRepo.CountNewSince(ctx, now.Truncate(24*time.Hour))
	if err != nil {
		s.logger.Error("dashboard: failed to count new users today", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	roles := make(map[string]int64, 3)
	for _, role := range []models.Role{models.RoleAdmin, models.RoleFarmer, models.RoleWorker} {
		n, err := s.userRepo.CountByRole(ctx, role)
		if err != nil {
			s.logger.Error("dashboard: failed to count users by role",
				slog.String("role", string(role)), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		roles[string(role)] = n
	}

	farms, err := s.farmRepo.CountTotal(ctx)
	if err != nil {
		s.logger.Error("dashboard: failed to count farms", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &DashboardStatsResponse{
		TotalUsers:    total,
		ActiveUsers:   active,
		InactiveUsers: total - active,
		LockedUsers:   locked,
		NewUsersToday: newToday,
		TotalFarms:    farms,
		RoleBreakdown: roles,
	}, nil
}
