package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/farmtrack/internal/models"
	pkglogger "github.com/BradenHooton/farmtrack/pkg/logger"
)

func newTestUserService(repo UserRepository) (*UserService, *MockInvalidator) {
	inv := &MockInvalidator{}
	logger := slog.Default()
	return NewUserService(repo, inv, logger, pkglogger.NewAuditLogger(logger)), inv
}

func TestUserService_GetUserByID(t *testing.T) {
	user := NewTestUser("user123", "user@example.com", "hash")

	tests := []struct {
		name    string
		repoErr error
		wantErr error
	}{
		{"found", nil, nil},
		{"not found", models.ErrNotFound, models.ErrNotFound},
		{"store failure", errors.New("connection reset"), models.ErrInternalServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestUserService(&MockUserRepository{
				GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
					if tt.repoErr != nil {
						return nil, tt.repoErr
					}
					return user, nil
				},
			})

			result, err := svc.GetUserByID(context.Background(), "user123")

			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				assert.Nil(t, result)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "user123", result.ID)
			assert.Equal(t, "user@example.com", result.Email)
			assert.Equal(t, "farmer", result.Role)
		})
	}
}

func TestUserService_ListUsers(t *testing.T) {
	svc, _ := newTestUserService(&MockUserRepository{
		ListFunc: func(ctx context.Context, limit, offset int) ([]*models.User, error) {
			assert.Equal(t, 10, limit)
			assert.Equal(t, 20, offset)
			return []*models.User{
				NewTestUser("user1", "user1@example.com", "h"),
				NewTestUser("user2", "user2@example.com", "h"),
			}, nil
		},
	})

	result, err := svc.ListUsers(context.Background(), 10, 20)

	require.NoError(t, err)
	assert.Len(t, result, 2)
}

func TestUserService_UpdateRole_InvalidatesCache(t *testing.T) {
	store := NewMemoryUserStore()
	store.Put(NewTestUser("target", "target@example.com", "h"))
	svc, inv := newTestUserService(store)

	result, err := svc.UpdateRole(context.Background(), "admin-1", "target", models.RoleWorker)

	require.NoError(t, err)
	assert.Equal(t, "worker", result.Role)
	assert.Equal(t, []string{"target"}, inv.Invalidated())
}

func TestUserService_UpdateRole_Rejections(t *testing.T) {
	store := NewMemoryUserStore()
	svc, inv := newTestUserService(store)
	ctx := context.Background()

	_, err := svc.UpdateRole(ctx, "admin-1", "target", models.Role("owner"))
	assert.ErrorIs(t, err, models.ErrBadRequest)

	_, err = svc.UpdateRole(ctx, "admin-1", "admin-1", models.RoleFarmer)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = svc.UpdateRole(ctx, "admin-1", "missing", models.RoleFarmer)
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.Empty(t, inv.Invalidated())
}

func TestUserService_UpdateStatus_DeactivationEndsSession(t *testing.T) {
	store := NewMemoryUserStore()
	u := NewTestUser("target", "target@example.com", "h")
	token := "refresh-token"
	u.RefreshToken = &token
	store.Put(u)
	svc, inv := newTestUserService(store)

	result, err := svc.UpdateStatus(context.Background(), "admin-1", "target", false)

	require.NoError(t, err)
	assert.False(t, result.IsActive)
	stored, err := store.GetByID(context.Background(), "target")
	require.NoError(t, err)
	assert.Nil(t, stored.RefreshToken)
	assert.Equal(t, []string{"target"}, inv.Invalidated())
}

func TestUserService_UpdateStatus_Self(t *testing.T) {
	svc, _ := newTestUserService(NewMemoryUserStore())

	_, err := svc.UpdateStatus(context.Background(), "admin-1", "admin-1", false)

	assert.ErrorIs(t, err, models.ErrForbidden)
}
