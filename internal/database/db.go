package database

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bimmatch/guard/internal/models"
)

// MapPostgresError converts driver errors into model sentinels. Anything that
// is not a missing row is treated as the store being unavailable.
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
		case "22P02", "23502": // invalid_text_representation, not_null_violation
			return fmt.Errorf("%w: %s", models.ErrBadRequest, pgErr.Message)
		}
	}

	return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
}
