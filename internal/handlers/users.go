package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/farmtrack/internal/auth"
	"github.com/BradenHooton/farmtrack/internal/models"
	"github.com/BradenHooton/farmtrack/internal/services"
	pkghttp "github.com/BradenHooton/farmtrack/pkg/http"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// UserService defines the interface for user business logic
type UserService interface {
	GetUserByID(ctx context.Context, id string) (*services.UserResponse, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*services.UserResponse, error)
	UpdateRole(ctx context.Context, actorID, targetID string, role models.Role) (*services.UserResponse, error)
	UpdateStatus(ctx context.Context, actorID, targetID string, active bool) (*services.UserResponse, error)
}

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	service UserService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(service UserService) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// UpdateRoleRequest represents the request body for changing a user's role
type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin farmer worker"`
}

// UpdateStatusRequest represents the request body for (de)activating a user
type UpdateStatusRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// ListUsersResponse represents a page of users
type ListUsersResponse struct {
	Users  []*services.UserResponse `json:"users"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

// Me returns the profile of the authenticated caller
// @Summary Current user profile
// @Produce json
// @Success 200 {object} services.UserResponse
// @Failure 401 {object} ErrorResponse
// @Router /users/me [get]
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	user, err := h.service.GetUserByID(r.Context(), identity.ID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, user)
}

// ListUsers retrieves a list of users with pagination
//
// @Summary List users
// @Param limit query int false "Limit (default 20, max 100)"
// @Param offset query int false "Offset (default 0)"
// @Produce json
// @Success 200 {object} ListUsersResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /users [get]
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	users, err := h.service.ListUsers(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ListUsersResponse{Users: users, Limit: limit, Offset: offset})
}

// UpdateRole changes the role of another user
// @Summary Update user role
// @Param id path string true "User ID"
// @Accept json
// @Produce json
// @Success 200 {object} services.UserResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /users/{id}/role [patch]
func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	actor, targetID, ok := adminTarget(w, r)
	if !ok {
		return
	}

	var req UpdateRoleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.service.UpdateRole(r.Context(), actor.ID, targetID, models.Role(req.Role))
	if err != nil {
		writeUserUpdateError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, user)
}

// UpdateStatus activates or deactivates another user
// @Summary Update user status
// @Param id path string true "User ID"
// @Accept json
// @Produce json
// @Success 200 {object} services.UserResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /users/{id}/status [patch]
func (h *UserHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, targetID, ok := adminTarget(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.service.UpdateStatus(r.Context(), actor.ID, targetID, *req.IsActive)
	if err != nil {
		writeUserUpdateError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, user)
}

func adminTarget(w http.ResponseWriter, r *http.Request) (*auth.Identity, string, bool) {
	actor, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return nil, "", false
	}
	targetID := chi.URLParam(r, "id")
	if targetID == "" {
		pkghttp.WriteBadRequest(w, "User ID is required")
		return nil, "", false
	}
	return actor, targetID, true
}

func writeUserUpdateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Role must be one of: admin, farmer, worker")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "Administrators cannot change their own role or status")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "User not found")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// parsePagination reads limit and offset query parameters
func parsePagination(r *http.Request) (int, int, error) {
	limit, offset := defaultPageLimit, 0

	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 || n > maxPageLimit {
			return 0, 0, errors.New("limit must be between 1 and 100")
		}
		limit = n
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		n, err := strconv.Atoi(o)
		if err != nil || n < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
		offset = n
	}
	return limit, offset, nil
}
