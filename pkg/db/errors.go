package db

import (
	"errors"
	"strings"

	cerrors "github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/railzwaylabs/tallybook/internal/apperror"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err was raised by a unique constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	// sqlite reports constraint failures only through the message
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Classify marks err as a conflict when a unique constraint rejected the
// write and as a store failure otherwise.
func Classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if IsUniqueViolation(err) && apperror.Kind(err) == nil {
		return apperror.Mark(cerrors.Wrap(err, op), apperror.ErrConflict)
	}
	return apperror.Store(err, op)
}
