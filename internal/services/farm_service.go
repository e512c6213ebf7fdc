package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/farmtrack/internal/auth"
	"github.com/BradenHooton/farmtrack/internal/models"
)

// FarmRepository defines the interface for farm data access
type FarmRepository interface {
	Create(ctx context.Context, farm *models.Farm) (*models.Farm, error)
	GetByID(ctx context.Context, id string) (*models.Farm, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*models.Farm, error)
}

// FarmInput carries the fields of a new farm
type FarmInput struct {
	Name         string
	Location     string
	SizeHectares float64
	FarmType     string
	Description  *string
}

// FarmResponse represents a farm in the HTTP response
type FarmResponse struct {
	ID           string  `json:"id"`
	OwnerID      string  `json:"owner_id"`
	Name         string  `json:"name"`
	Location     string  `json:"location"`
	SizeHectares float64 `json:"size_hectares"`
	FarmType     string  `json:"farm_type"`
	Description  *string `json:"description,omitempty"`
	IsActive     bool    `json:"is_active"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

func toFarmResponse(f *models.Farm) *FarmResponse {
	return &FarmResponse{
		ID:           f.ID,
		OwnerID:      f.OwnerID,
		Name:         f.Name,
		Location:     f.Location,
		SizeHectares: f.SizeHectares,
		FarmType:     f.FarmType,
		Description:  f.Description,
		IsActive:     f.IsActive,
		CreatedAt:    f.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    f.UpdatedAt.Format(time.RFC3339),
	}
}

// FarmService scopes farm access to the owning user
type FarmService struct {
	repo   FarmRepository
	logger *slog.Logger
}

func NewFarmService(repo FarmRepository, logger *slog.Logger) *FarmService {
	return &FarmService{repo: repo, logger: logger}
}

// Create adds a farm owned by the caller. Farm names are unique per owner.
func (s *FarmService) Create(ctx context.Context, owner *auth.Identity, in FarmInput) (*FarmResponse, error) {
	farm := &models.Farm{
		OwnerID:      owner.ID,
		Name:         strings.TrimSpace(in.Name),
		Location:     strings.TrimSpace(in.Location),
		SizeHectares: in.SizeHectares,
		FarmType:     in.FarmType,
		Description:  in.Description,
	}

	created, err := s.repo.Create(ctx, farm)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			return nil, models.ErrConflict
		case errors.Is(err, models.ErrBadRequest):
			return nil, models.ErrBadRequest
		}
		s.logger.Error("failed to create farm", slog.String("owner_id", owner.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("farm created", slog.String("farm_id", created.ID), slog.String("owner_id", owner.ID))
	return toFarmResponse(created), nil
}

// List returns the farms owned by the caller
func (s *FarmService) List(ctx context.Context, owner *auth.Identity, limit, offset int) ([]*FarmResponse, error) {
	farms, err := s.repo.ListByOwner(ctx, owner.ID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list farms", slog.String("owner_id", owner.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	resp := make([]*FarmResponse, 0, len(farms))
	for _, f := range farms {
		resp = append(resp, toFarmResponse(f))
	}
	return resp, nil
}

// Get returns a farm the caller owns. Admins may read any farm.
func (s *FarmService) Get(ctx context.Context, caller *auth.Identity, id string) (*FarmResponse, error) {
	farm, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get farm", slog.String("farm_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if farm.OwnerID != caller.ID && !caller.HasRole(models.RoleAdmin) {
		s.logger.Warn("farm access denied",
			slog.String("farm_id", id),
			slog.String("user_id", caller.ID))
		return nil, models.ErrNotAuthorizedForResource
	}

	return toFarmResponse(farm), nil
}
