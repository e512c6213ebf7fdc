package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/farmtrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapPostgresError translates driver errors into model sentinels. Anything
// that is not a recognised data error is reported as ErrStoreUnavailable,
// wrapping the original for logs.
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return &ConstraintError{Constraint: pgErr.ConstraintName, err: models.ErrConflict}
		case "23503", "23502", "23514", "22P02": // fk, not null, check, invalid text representation
			return fmt.Errorf("%w: %s", models.ErrBadRequest, pgErr.Code)
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
}

// ConstraintError is a unique violation naming the violated constraint.
type ConstraintError struct {
	Constraint string
	err        error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%s: %s", e.err, e.Constraint)
}

func (e *ConstraintError) Unwrap() error {
	return e.err
}

// WithTransaction runs fn in a transaction, committing when fn returns nil.
func (db *DB) WithTransaction(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return MapPostgresError(err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = fn(tx)
	return err
}
