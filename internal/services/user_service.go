package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/BradenHooton/farmtrack/internal/auth"
	"github.com/BradenHooton/farmtrack/internal/models"
	pkglogger "github.com/BradenHooton/farmtrack/pkg/logger"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	FindByEmailOrPhone(ctx context.Context, identifier string) (*models.User, error)
	FindByResetTokenDigest(ctx context.Context, digest string, now time.Time) (*models.User, error)
	ExistsByEmailOrPhone(ctx context.Context, email, phone string) (emailTaken, phoneTaken bool, err error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdateAuthFields(ctx context.Context, id string, update models.AuthFieldsUpdate) error
	RecordFailedLogin(ctx context.Context, id string, policy auth.LockoutPolicy, now time.Time) (models.LockoutState, error)
	RecordSuccessfulLogin(ctx context.Context, id, refreshToken string, now time.Time) error
	RotateRefreshToken(ctx context.Context, id, presented, next string) error
	ConsumeResetToken(ctx context.Context, id, digest, passwordHash, refreshToken string, now time.Time) (*models.User, error)
	UpdateRole(ctx context.Context, id string, role models.Role) (*models.User, error)
	UpdateStatus(ctx context.Context, id string, active bool) (*models.User, error)
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID          string  `json:"id"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	Email       string  `json:"email"`
	Phone       string  `json:"phone"`
	Role        string  `json:"role"`
	IsActive    bool    `json:"is_active"`
	LastLoginAt *string `json:"last_login_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func toUserResponse(user *models.User) *UserResponse {
	resp := &UserResponse{
		ID:        user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		Phone:     user.Phone,
		Role:      string(user.Role),
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}
	if user.LastLoginAt != nil {
		ts := user.LastLoginAt.Format(time.RFC3339)
		resp.LastLoginAt = &ts
	}
	return resp
}

// UserService handles user business logic
type UserService struct {
	repo        UserRepository
	cache       CacheInvalidator
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewUserService creates a new UserService
func NewUserService(repo UserRepository, cache CacheInvalidator, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *UserService {
	return &UserService{
		repo:        repo,
		cache:       cache,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(ctx context.Context, id string) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("user not found", slog.String("user_id", id))
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return toUserResponse(user), nil
}

// ListUsers retrieves a list of users with pagination
func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]*UserResponse, error) {
	users, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list users", slog.Int("limit", limit), slog.Int("offset", offset), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	resp := make([]*UserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, toUserResponse(u))
	}
	return resp, nil
}

// UpdateRole changes the role of targetID. Admins cannot change their own role.
func (s *UserService) UpdateRole(ctx context.Context, actorID, targetID string, role models.Role) (*UserResponse, error) {
	if !role.Valid() {
		return nil, models.ErrBadRequest
	}
	if actorID == targetID {
		s.logger.Warn("admin attempted to change own role", slog.String("user_id", actorID))
		return nil, models.ErrForbidden
	}

	user, err := s.repo.UpdateRole(ctx, targetID, role)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to update role", slog.String("user_id", targetID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	s.invalidate(targetID)

	s.logger.Info("user role updated", slog.String("user_id", targetID), slog.String("role", string(role)))
	s.auditLogger.LogAccountAction(ctx, pkglogger.EventRoleChanged, actorID, targetID,
		map[string]string{"role": string(role)})

	return toUserResponse(user), nil
}

// UpdateStatus activates or deactivates targetID. Deactivation ends the
// stored session. Admins cannot change their own status.
func (s *UserService) UpdateStatus(ctx context.Context, actorID, targetID string, active bool) (*UserResponse, error) {
	if actorID == targetID {
		s.logger.Warn("admin attempted to change own status", slog.String("user_id", actorID))
		return nil, models.ErrForbidden
	}

	user, err := s.repo.UpdateStatus(ctx, targetID, active)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to update status", slog.String("user_id", targetID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	s.invalidate(targetID)

	s.logger.Info("user status updated", slog.String("user_id", targetID), slog.Bool("is_active", active))
	s.auditLogger.LogAccountAction(ctx, pkglogger.EventStatusChanged, actorID, targetID,
		map[string]string{"is_active": strconv.FormatBool(active)})

	return toUserResponse(user), nil
}

func (s *UserService) invalidate(userID string) {
	if s.cache != nil {
		s.cache.Invalidate(userID)
	}
}
