package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/farmtrack/internal/database"
	"github.com/BradenHooton/farmtrack/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const farmColumns = `id, owner_id, name, location, size_hectares, farm_type, description, is_active, created_at, updated_at`

type FarmRepository struct {
	pool *pgxpool.Pool
}

func NewFarmRepository(db *database.DB) *FarmRepository {
	return &FarmRepository{pool: db.Pool}
}

func scanFarmRow(scanner rowScanner) (*models.Farm, error) {
	var f models.Farm
	err := scanner.Scan(
		&f.ID, &f.OwnerID, &f.Name, &f.Location, &f.SizeHectares, &f.FarmType,
		&f.Description, &f.IsActive, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &f, nil
}

func (r *FarmRepository) Create(ctx context.Context, farm *models.Farm) (*models.Farm, error) {
	farm.ID = uuid.New().String()
	now := time.Now().UTC()

	query := `
		INSERT INTO farms (id, owner_id, name, location, size_hectares, farm_type, description, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, $8)
		RETURNING ` + farmColumns

	return scanFarmRow(r.pool.QueryRow(ctx, query,
		farm.ID, farm.OwnerID, farm.Name, farm.Location, farm.SizeHectares, farm.FarmType, farm.Description, now,
	))
}

func (r *FarmRepository) GetByID(ctx context.Context, id string) (*models.Farm, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}
	return scanFarmRow(r.pool.QueryRow(ctx, `SELECT `+farmColumns+` FROM farms WHERE id = $1`, id))
}

func (r *FarmRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*models.Farm, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+farmColumns+` FROM farms WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		ownerID, limit, offset)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return scanFarmRows(rows)
}

func scanFarmRows(rows pgx.Rows) ([]*models.Farm, error) {
	defer rows.Close()

	farms := make([]*models.Farm, 0)
	for rows.Next() {
		f, err := scanFarmRow(rows)
		if err != nil {
			return nil, err
		}
		farms = append(farms, f)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return farms, nil
}

func (r *FarmRepository) CountTotal(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM farms`).Scan(&n); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return n, nil
}
