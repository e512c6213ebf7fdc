package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/farmtrack/internal/auth"
	"github.com/BradenHooton/farmtrack/internal/models"
)

func TestFarmService_CreateAndList(t *testing.T) {
	svc := NewFarmService(NewMemoryFarmStore(), slog.Default())
	owner := &auth.Identity{ID: "owner-1", Role: models.RoleFarmer, IsActive: true}
	ctx := context.Background()

	created, err := svc.Create(ctx, owner, FarmInput{Name: " North Field ", Location: "Valley", SizeHectares: 12.5, FarmType: "crop"})
	require.NoError(t, err)
	assert.Equal(t, "North Field", created.Name)
	assert.Equal(t, "owner-1", created.OwnerID)
	assert.True(t, created.IsActive)

	_, err = svc.Create(ctx, owner, FarmInput{Name: "North Field", Location: "Hill", SizeHectares: 3, FarmType: "crop"})
	assert.ErrorIs(t, err, models.ErrConflict)

	other := &auth.Identity{ID: "owner-2", Role: models.RoleFarmer, IsActive: true}
	_, err = svc.Create(ctx, other, FarmInput{Name: "North Field", Location: "Elsewhere", SizeHectares: 1, FarmType: "mixed"})
	require.NoError(t, err)

	farms, err := svc.List(ctx, owner, 20, 0)
	require.NoError(t, err)
	require.Len(t, farms, 1)
	assert.Equal(t, created.ID, farms[0].ID)
}

func TestFarmService_Get_Ownership(t *testing.T) {
	store := NewMemoryFarmStore()
	svc := NewFarmService(store, slog.Default())
	ctx := context.Background()

	owner := &auth.Identity{ID: "owner-1", Role: models.RoleFarmer}
	farm, err := svc.Create(ctx, owner, FarmInput{Name: "Orchard", Location: "Ridge", SizeHectares: 4, FarmType: "orchard"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		caller  *auth.Identity
		id      string
		wantErr error
	}{
		{"owner", owner, farm.ID, nil},
		{"admin", &auth.Identity{ID: "admin-1", Role: models.RoleAdmin}, farm.ID, nil},
		{"other farmer", &auth.Identity{ID: "owner-2", Role: models.RoleFarmer}, farm.ID, models.ErrNotAuthorizedForResource},
		{"missing farm", owner, "does-not-exist", models.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Get(ctx, tt.caller, tt.id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, farm.ID, got.ID)
		})
	}
}

func TestFarmService_StoreFailure(t *testing.T) {
	svc := NewFarmService(&MockFarmRepository{
		ListByOwnerFunc: func(ctx context.Context, ownerID string, limit, offset int) ([]*models.Farm, error) {
			return nil, errors.New("pool closed")
		},
	}, slog.Default())

	_, err := svc.List(context.Background(), &auth.Identity{ID: "owner-1"}, 20, 0)

	assert.Equal(t, models.ErrInternalServer, err)
}
