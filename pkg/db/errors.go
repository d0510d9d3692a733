package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// pgUniqueViolation is the Postgres error code for unique violations.
const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether the error is a unique-constraint
// violation. Postgres errors are matched structurally; the sqlite driver
// only exposes message text. When constraintName is provided, a Postgres
// match must also reference that constraint.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return constraintName == "" || pgErr.ConstraintName == constraintName
	}

	msg := err.Error()
	if strings.Contains(msg, "duplicate key value") {
		return constraintName == "" || strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "UNIQUE constraint failed")
}
