package httperr

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	sqlStateUniqueViolation    = "23505"
	sqlStateExclusionViolation = "23P01"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func IsUniqueViolation(err error) bool {
	return pgCode(err) == sqlStateUniqueViolation
}

// IsExclusionConflict reports constraint failures that mean two rows claim
// the same slot.
func IsExclusionConflict(err error) bool {
	code := pgCode(err)
	return code == sqlStateExclusionViolation || code == sqlStateUniqueViolation
}
