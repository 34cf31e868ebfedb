package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/apperr"
)

const (
	codeExclusionViolation = "23P01"
	codeUniqueViolation    = "23505"
	codeInvalidText        = "22P02"
)

// IsConflict reports an exclusion-constraint violation, i.e. an overlapping booking.
func IsConflict(err error) bool {
	return hasCode(err, codeExclusionViolation)
}

func IsUniqueViolation(err error) bool {
	return hasCode(err, codeUniqueViolation)
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// classify maps driver errors onto the domain taxonomy. Anything unrecognised
// is a transport failure: the store could not answer.
func classify(err error, notFound string) error {
	switch {
	case err == nil:
		return nil
	case apperr.KindOf(err) != apperr.KindInternal:
		return err
	case IsNotFound(err), hasCode(err, codeInvalidText):
		// A malformed uuid cannot match any row.
		return apperr.Wrap(apperr.KindNotFound, notFound, err)
	case IsConflict(err):
		return apperr.Wrap(apperr.KindSlotConflict, "slot already booked", err)
	default:
		return apperr.TransportFailure("database unavailable", err)
	}
}
