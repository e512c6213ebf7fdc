package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/farmtrack/internal/auth"
	"github.com/BradenHooton/farmtrack/internal/database"
	"github.com/BradenHooton/farmtrack/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, email, phone, first_name, last_name, password_hash, role, is_active,
	last_login_at, failed_login_attempts, locked_until, refresh_token,
	password_reset_token_hash, password_reset_expires_at, password_changed_at,
	created_at, updated_at`

// Unique constraint names created by the users migration
const (
	emailUniqueConstraint = "users_email_key"
	phoneUniqueConstraint = "users_phone_key"
)

type UserRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db, pool: db.Pool}
}

// rowScanner interface for scanning user rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var role string

	err := scanner.Scan(
		&user.ID, &user.Email, &user.Phone, &user.FirstName, &user.LastName,
		&user.PasswordHash, &role, &user.IsActive,
		&user.LastLoginAt, &user.FailedLoginAttempts, &user.LockedUntil, &user.RefreshToken,
		&user.PasswordResetTokenHash, &user.PasswordResetExpiresAt, &user.PasswordChangedAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	user.Role = models.Role(role)

	return &user, nil
}

func scanUserRows(rows pgx.Rows) ([]*models.User, error) {
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return users, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, strings.ToLower(email)))
}

// FindByEmailOrPhone looks a user up by a login identifier that may be
// either an email address or a phone number.
func (r *UserRepository) FindByEmailOrPhone(ctx context.Context, identifier string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = lower($1) OR phone = $1 LIMIT 1`
	return scanUserRow(r.pool.QueryRow(ctx, query, identifier))
}

// FindByResetTokenDigest returns the user holding an unexpired reset ticket
// with the given digest.
func (r *UserRepository) FindByResetTokenDigest(ctx context.Context, digest string, now time.Time) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE password_reset_token_hash = $1 AND password_reset_expires_at > $2`
	return scanUserRow(r.pool.QueryRow(ctx, query, digest, now))
}

// ExistsByEmailOrPhone reports which of email and phone are already taken.
func (r *UserRepository) ExistsByEmailOrPhone(ctx context.Context, email, phone string) (emailTaken, phoneTaken bool, err error) {
	query := `SELECT
		EXISTS (SELECT 1 FROM users WHERE email = lower($1)),
		EXISTS (SELECT 1 FROM users WHERE phone = $2)`

	if err := r.pool.QueryRow(ctx, query, email, phone).Scan(&emailTaken, &phoneTaken); err != nil {
		return false, false, database.MapPostgresError(err)
	}
	return emailTaken, phoneTaken, nil
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return scanUserRows(rows)
}

// Create inserts a new user, assigning an ID when none is set. A duplicate
// email or phone returns models.ErrEmailTaken or models.ErrPhoneTaken.
func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = models.RoleFarmer
	}

	query := `
		INSERT INTO users (id, email, phone, first_name, last_name, password_hash, role, is_active,
			refresh_token, password_changed_at, created_at, updated_at)
		VALUES ($1, lower($2), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + userColumns

	created, err := scanUserRow(r.pool.QueryRow(ctx, query,
		user.ID, user.Email, user.Phone, user.FirstName, user.LastName, user.PasswordHash,
		string(user.Role), user.IsActive, user.RefreshToken, user.PasswordChangedAt,
		user.CreatedAt, user.UpdatedAt,
	))
	if err != nil {
		var ce *database.ConstraintError
		if errors.As(err, &ce) {
			switch ce.Constraint {
			case emailUniqueConstraint:
				return nil, models.ErrEmailTaken
			case phoneUniqueConstraint:
				return nil, models.ErrPhoneTaken
			}
		}
		return nil, err
	}

	return created, nil
}

// UpdateAuthFields applies a partial update to the authentication columns
// of one user in a single statement.
func (r *UserRepository) UpdateAuthFields(ctx context.Context, id string, update models.AuthFieldsUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	sets, args := buildAuthFieldSets(update)
	args = append(args, time.Now().UTC(), id)
	query := fmt.Sprintf(`UPDATE users SET %s, updated_at = $%d WHERE id = $%d`,
		strings.Join(sets, ", "), len(args)-1, len(args))

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func buildAuthFieldSets(u models.AuthFieldsUpdate) ([]string, []any) {
	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if u.PasswordHash != nil {
		add("password_hash", *u.PasswordHash)
	}
	if u.FailedLoginAttempts != nil {
		add("failed_login_attempts", *u.FailedLoginAttempts)
	}
	switch {
	case u.ClearLockedUntil:
		sets = append(sets, "locked_until = NULL")
	case u.LockedUntil != nil:
		add("locked_until", *u.LockedUntil)
	}
	if u.LastLoginAt != nil {
		add("last_login_at", *u.LastLoginAt)
	}
	switch {
	case u.ClearRefreshToken:
		sets = append(sets, "refresh_token = NULL")
	case u.RefreshToken != nil:
		add("refresh_token", *u.RefreshToken)
	}
	switch {
	case u.ClearPasswordReset:
		sets = append(sets, "password_reset_token_hash = NULL", "password_reset_expires_at = NULL")
	case u.PasswordResetTokenHash != nil && u.PasswordResetExpiresAt != nil:
		add("password_reset_token_hash", *u.PasswordResetTokenHash)
		add("password_reset_expires_at", *u.PasswordResetExpiresAt)
	}
	if u.PasswordChangedAt != nil {
		add("password_changed_at", *u.PasswordChangedAt)
	}

	return sets, args
}

// RecordFailedLogin increments the failed-attempt counter of a user under a
// row lock and applies the lockout policy to the result.
func (r *UserRepository) RecordFailedLogin(ctx context.Context, id string, policy auth.LockoutPolicy, now time.Time) (models.LockoutState, error) {
	var next models.LockoutState

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		var current models.LockoutState
		err := tx.QueryRow(ctx,
			`SELECT failed_login_attempts, locked_until FROM users WHERE id = $1 FOR UPDATE`, id,
		).Scan(&current.FailedAttempts, &current.LockedUntil)
		if err != nil {
			return database.MapPostgresError(err)
		}

		next = policy.RegisterFailure(current, now)

		_, err = tx.Exec(ctx,
			`UPDATE users SET failed_login_attempts = $1, locked_until = $2, updated_at = $3 WHERE id = $4`,
			next.FailedAttempts, next.LockedUntil, now, id,
		)
		return database.MapPostgresError(err)
	})

	return next, err
}

// RecordSuccessfulLogin clears lockout state, stamps the login time and
// stores the rotated refresh token in one statement.
func (r *UserRepository) RecordSuccessfulLogin(ctx context.Context, id, refreshToken string, now time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET failed_login_attempts = 0, locked_until = NULL,
			last_login_at = $1, refresh_token = $2, updated_at = $1
		WHERE id = $3`, now, refreshToken, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// RotateRefreshToken replaces the stored refresh token only when it still
// equals presented. It returns models.ErrTokenInvalid when another request
// rotated it first.
func (r *UserRepository) RotateRefreshToken(ctx context.Context, id, presented, next string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET refresh_token = $1, updated_at = NOW()
		WHERE id = $2 AND refresh_token = $3`, next, id, presented)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrTokenInvalid
	}
	return nil
}

// ConsumeResetToken sets a new password for the holder of an unexpired reset
// ticket and clears the ticket. The ticket is matched again in the UPDATE so
// that two concurrent resets cannot both succeed.
func (r *UserRepository) ConsumeResetToken(ctx context.Context, id, digest, passwordHash, refreshToken string, now time.Time) (*models.User, error) {
	query := `
		UPDATE users SET password_hash = $1,
			password_reset_token_hash = NULL, password_reset_expires_at = NULL,
			password_changed_at = $2, failed_login_attempts = 0, locked_until = NULL,
			refresh_token = $3, last_login_at = $2, updated_at = $2
		WHERE id = $4 AND password_reset_token_hash = $5 AND password_reset_expires_at > $2
		RETURNING ` + userColumns

	user, err := scanUserRow(r.pool.QueryRow(ctx, query, passwordHash, now, refreshToken, id, digest))
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrResetTokenRejected
	}
	return user, err
}

// ClearExpiredResetTokens removes reset tickets whose expiry has passed.
func (r *UserRepository) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET password_reset_token_hash = NULL, password_reset_expires_at = NULL
		WHERE password_reset_expires_at IS NOT NULL AND password_reset_expires_at <= $1`, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}

func (r *UserRepository) UpdateRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	query := `UPDATE users SET role = $1, updated_at = NOW() WHERE id = $2 RETURNING ` + userColumns
	return scanUserRow(r.pool.QueryRow(ctx, query, string(role), id))
}

// UpdateStatus activates or deactivates a user. Deactivation also ends the
// stored session.
func (r *UserRepository) UpdateStatus(ctx context.Context, id string, active bool) (*models.User, error) {
	query := `UPDATE users SET is_active = $1,
			refresh_token = CASE WHEN $1 THEN refresh_token ELSE NULL END,
			updated_at = NOW()
		WHERE id = $2 RETURNING ` + userColumns
	return scanUserRow(r.pool.QueryRow(ctx, query, active, id))
}

func (r *UserRepository) count(ctx context.Context, where string, args ...any) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users `+where, args...).Scan(&n); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return n, nil
}

func (r *UserRepository) CountTotal(ctx context.Context) (int64, error) {
	return r.count(ctx, "")
}

func (r *UserRepository) CountByActive(ctx context.Context, active bool) (int64, error) {
	return r.count(ctx, "WHERE is_active = $1", active)
}

func (r *UserRepository) CountByRole(ctx context.Context, role models.Role) (int64, error) {
	return r.count(ctx, "WHERE role = $1", string(role))
}

// CountLocked counts users whose lockout is still in force at now.
func (r *UserRepository) CountLocked(ctx context.Context, now time.Time) (int64, error) {
	return r.count(ctx, "WHERE locked_until > $1", now)
}

func (r *UserRepository) CountNewSince(ctx context.Context, since time.Time) (int64, error) {
	return r.count(ctx, "WHERE created_at >= $1", since)
}
