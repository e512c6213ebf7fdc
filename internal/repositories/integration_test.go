//go:build integration

package repositories_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/BradenHooton/farmtrack/internal/auth"
	"github.com/BradenHooton/farmtrack/internal/database"
	"github.com/BradenHooton/farmtrack/internal/models"
	"github.com/BradenHooton/farmtrack/internal/repositories"
)

var testDB *database.DB

// TestMain starts one PostgreSQL container for the package and applies the
// embedded migrations to it.
func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("farmtrack"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	code := func() int {
		defer func() { _ = container.Terminate(ctx) }()

		connStr, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to get connection string: %v\n", err)
			return 1
		}

		pool, err := pgxpool.New(ctx, connStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create connection pool: %v\n", err)
			return 1
		}

		testDB = database.NewFromPool(pool, slog.New(slog.NewTextHandler(io.Discard, nil)))
		defer testDB.Close()

		if err := testDB.Migrate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
			return 1
		}

		return m.Run()
	}()

	os.Exit(code)
}

// resetTables truncates all tables for test isolation
func resetTables(t *testing.T) {
	t.Helper()
	_, err := testDB.Pool.Exec(context.Background(), "TRUNCATE TABLE farms, users CASCADE")
	require.NoError(t, err)
}

func seedUser(t *testing.T, repo *repositories.UserRepository, email, phone string) *models.User {
	t.Helper()
	user, err := repo.Create(context.Background(), &models.User{
		FirstName:    "Test",
		LastName:     "Farmer",
		Email:        email,
		Phone:        phone,
		PasswordHash: "$2a$04$placeholderplaceholderplaceholderplaceholderplacehold",
		IsActive:     true,
	})
	require.NoError(t, err)
	return user
}

func TestUserRepository_CreateAndLookup(t *testing.T) {
	resetTables(t)
	repo := repositories.NewUserRepository(testDB)
	ctx := context.Background()

	user := seedUser(t, repo, "Alice@Example.com", "+15550001111")
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, models.RoleFarmer, user.Role)

	byEmail, err := repo.FindByEmailOrPhone(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	byPhone, err := repo.FindByEmailOrPhone(ctx, "+15550001111")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byPhone.ID)

	_, err = repo.GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, models.ErrNotFound)

	emailTaken, phoneTaken, err := repo.ExistsByEmailOrPhone(ctx, "alice@example.com", "+15559999999")
	require.NoError(t, err)
	assert.True(t, emailTaken)
	assert.False(t, phoneTaken)
}

func TestUserRepository_DuplicateContactDetails(t *testing.T) {
	resetTables(t)
	repo := repositories.NewUserRepository(testDB)
	ctx := context.Background()
	seedUser(t, repo, "alice@example.com", "+15550001111")

	_, err := repo.Create(ctx, &models.User{
		FirstName: "A", LastName: "B", Email: "ALICE@example.com", Phone: "+15550002222", PasswordHash: "x", IsActive: true,
	})
	assert.ErrorIs(t, err, models.ErrEmailTaken)

	_, err = repo.Create(ctx, &models.User{
		FirstName: "A", LastName: "B", Email: "other@example.com", Phone: "+15550001111", PasswordHash: "x", IsActive: true,
	})
	assert.ErrorIs(t, err, models.ErrPhoneTaken)
}

func TestUserRepository_RecordFailedLoginIsAtomic(t *testing.T) {
	resetTables(t)
	repo := repositories.NewUserRepository(testDB)
	user := seedUser(t, repo, "alice@example.com", "+15550001111")
	policy := auth.NewLockoutPolicy(5, 10*time.Minute)
	now := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.RecordFailedLogin(context.Background(), user.ID, policy, now)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := repo.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.FailedLoginAttempts)
	require.NotNil(t, stored.LockedUntil)
	assert.WithinDuration(t, now.Add(10*time.Minute), *stored.LockedUntil, time.Second)

	require.NoError(t, repo.RecordSuccessfulLogin(context.Background(), user.ID, "refresh-1", now))
	stored, err = repo.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.FailedLoginAttempts)
	assert.Nil(t, stored.LockedUntil)
	require.NotNil(t, stored.RefreshToken)
	assert.Equal(t, "refresh-1", *stored.RefreshToken)
}

func TestUserRepository_RotateRefreshTokenOnlyOnce(t *testing.T) {
	resetTables(t)
	repo := repositories.NewUserRepository(testDB)
	ctx := context.Background()
	user := seedUser(t, repo, "alice@example.com", "+15550001111")
	require.NoError(t, repo.RecordSuccessfulLogin(ctx, user.ID, "refresh-1", time.Now()))

	require.NoError(t, repo.RotateRefreshToken(ctx, user.ID, "refresh-1", "refresh-2"))
	assert.ErrorIs(t, repo.RotateRefreshToken(ctx, user.ID, "refresh-1", "refresh-3"), models.ErrTokenInvalid)

	stored, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "refresh-2", *stored.RefreshToken)
}

func TestUserRepository_ResetTickets(t *testing.T) {
	resetTables(t)
	repo := repositories.NewUserRepository(testDB)
	ctx := context.Background()
	now := time.Now().UTC()

	alice := seedUser(t, repo, "alice@example.com", "+15550001111")
	bob := seedUser(t, repo, "bob@example.com", "+15550002222")

	live, expired := "digest-live", "digest-expired"
	liveUntil, expiredAt := now.Add(10*time.Minute), now.Add(-time.Minute)
	require.NoError(t, repo.UpdateAuthFields(ctx, alice.ID, models.AuthFieldsUpdate{
		PasswordResetTokenHash: &live, PasswordResetExpiresAt: &liveUntil,
	}))
	require.NoError(t, repo.UpdateAuthFields(ctx, bob.ID, models.AuthFieldsUpdate{
		PasswordResetTokenHash: &expired, PasswordResetExpiresAt: &expiredAt,
	}))

	found, err := repo.FindByResetTokenDigest(ctx, live, now)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, found.ID)

	_, err = repo.FindByResetTokenDigest(ctx, expired, now)
	assert.ErrorIs(t, err, models.ErrNotFound)

	cleared, err := repo.ClearExpiredResetTokens(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleared)

	updated, err := repo.ConsumeResetToken(ctx, alice.ID, live, "new-hash", "refresh-after-reset", now)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", updated.PasswordHash)
	assert.Nil(t, updated.PasswordResetTokenHash)
	require.NotNil(t, updated.PasswordChangedAt)

	_, err = repo.ConsumeResetToken(ctx, alice.ID, live, "another-hash", "refresh-2", now)
	assert.ErrorIs(t, err, models.ErrResetTokenRejected)
}

func TestUserRepository_DeactivationEndsSession(t *testing.T) {
	resetTables(t)
	repo := repositories.NewUserRepository(testDB)
	ctx := context.Background()
	user := seedUser(t, repo, "alice@example.com", "+15550001111")
	require.NoError(t, repo.RecordSuccessfulLogin(ctx, user.ID, "refresh-1", time.Now()))

	updated, err := repo.UpdateStatus(ctx, user.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Nil(t, updated.RefreshToken)

	updated, err = repo.UpdateRole(ctx, user.ID, models.RoleWorker)
	require.NoError(t, err)
	assert.Equal(t, models.RoleWorker, updated.Role)
}

func TestFarmRepository_NamesUniquePerOwner(t *testing.T) {
	resetTables(t)
	users := repositories.NewUserRepository(testDB)
	farms := repositories.NewFarmRepository(testDB)
	ctx := context.Background()

	alice := seedUser(t, users, "alice@example.com", "+15550001111")
	bob := seedUser(t, users, "bob@example.com", "+15550002222")

	farm, err := farms.Create(ctx, &models.Farm{
		OwnerID: alice.ID, Name: "Sunny Acres", Location: "Valley Road", SizeHectares: 12.5, FarmType: "crop",
	})
	require.NoError(t, err)
	assert.InDelta(t, 12.5, farm.SizeHectares, 0.001)

	_, err = farms.Create(ctx, &models.Farm{
		OwnerID: alice.ID, Name: "Sunny Acres", Location: "Elsewhere", SizeHectares: 3, FarmType: "dairy",
	})
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = farms.Create(ctx, &models.Farm{
		OwnerID: bob.ID, Name: "Sunny Acres", Location: "Hill Lane", SizeHectares: 3, FarmType: "dairy",
	})
	require.NoError(t, err)

	owned, err := farms.ListByOwner(ctx, alice.ID, 20, 0)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, farm.ID, owned[0].ID)

	total, err := farms.CountTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}
