package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/farmtrack/internal/auth"
	"github.com/BradenHooton/farmtrack/internal/models"
	"github.com/BradenHooton/farmtrack/internal/services"
	pkghttp "github.com/BradenHooton/farmtrack/pkg/http"
)

// FarmServiceInterface defines the farm business logic used by FarmHandler
type FarmServiceInterface interface {
	Create(ctx context.Context, owner *auth.Identity, in services.FarmInput) (*services.FarmResponse, error)
	List(ctx context.Context, owner *auth.Identity, limit, offset int) ([]*services.FarmResponse, error)
	Get(ctx context.Context, caller *auth.Identity, id string) (*services.FarmResponse, error)
}

// FarmHandler handles farm HTTP requests
type FarmHandler struct {
	service FarmServiceInterface
}

// NewFarmHandler creates a new FarmHandler
func NewFarmHandler(service FarmServiceInterface) *FarmHandler {
	return &FarmHandler{service: service}
}

// CreateFarmRequest represents the request body for registering a farm
type CreateFarmRequest struct {
	Name         string  `json:"name" validate:"required,min=1,max=200"`
	Location     string  `json:"location" validate:"required,min=1,max=255"`
	SizeHectares float64 `json:"size_hectares" validate:"gt=0"`
	FarmType     string  `json:"farm_type" validate:"required,oneof=crop livestock dairy poultry orchard mixed"`
	Description  *string `json:"description" validate:"omitempty,max=2000"`
}

// ListFarmsResponse represents a page of farms
type ListFarmsResponse struct {
	Farms  []*services.FarmResponse `json:"farms"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

// Create handles POST /farms
func (h *FarmHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req CreateFarmRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		pkghttp.WriteBadRequest(w, "Farm name is required")
		return
	}

	farm, err := h.service.Create(r.Context(), owner, services.FarmInput{
		Name:         req.Name,
		Location:     req.Location,
		SizeHectares: req.SizeHectares,
		FarmType:     req.FarmType,
		Description:  req.Description,
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "You already have a farm with this name")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid farm")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, farm)
}

// List handles GET /farms, returning the caller's farms
func (h *FarmHandler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	limit, offset, err := parsePagination(r)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	farms, err := h.service.List(r.Context(), owner, limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ListFarmsResponse{Farms: farms, Limit: limit, Offset: offset})
}

// Get handles GET /farms/{id}
func (h *FarmHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	farm, err := h.service.Get(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotAuthorizedForResource):
			pkghttp.WriteForbidden(w, "You do not have access to this farm")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "Farm not found")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, farm)
}
