package repository

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a record does not exist. It is pgx.ErrNoRows so
// callers can match either store with errors.Is.
var ErrNotFound = pgx.ErrNoRows

var (
	// ErrReservedAction is returned when a plain log write uses the escalation label.
	ErrReservedAction = errors.New("activity action is reserved for SLA escalation")
	// ErrDuplicate is returned when a unique name is already taken.
	ErrDuplicate = errors.New("record already exists")
)

const uniqueViolation = "23505"

// translate maps driver errors onto repository sentinels.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

// validID reports whether id can name a UUID-keyed row. Anything else cannot
// exist, so lookups short-circuit to ErrNotFound instead of a cast error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
