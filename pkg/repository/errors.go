package repository

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// MapError translates database errors into domain errors. sql.ErrNoRows
// becomes notFoundErr and a unique violation (23505) becomes duplicateErr.
// Anything else is returned unchanged.
func MapError(err error, notFoundErr, duplicateErr error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return notFoundErr
	}

	if IsCode(err, pgUniqueViolation) {
		return duplicateErr
	}

	return err
}

// IsCode reports whether err wraps a PostgreSQL error with the given SQLSTATE.
func IsCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// IsForeignKeyViolation reports whether err is a 23503 violation.
func IsForeignKeyViolation(err error) bool {
	return IsCode(err, pgForeignKeyViolation)
}
