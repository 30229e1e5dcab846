package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrSlotTaken is returned when a booking or confirmation would overlap an
// already confirmed or running session of the same tutor. It covers both the
// in-transaction overlap check and the sessions_tutor_no_overlap exclusion
// constraint (SQLSTATE 23P01), which backstops concurrent writers.
var ErrSlotTaken = errors.New("time slot is already booked")

// ErrInvalidTransition is returned when a status change is not allowed by the
// session lifecycle.
var ErrInvalidTransition = errors.New("invalid session status transition")

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsUniqueViolation reports a duplicate-key insert (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}
