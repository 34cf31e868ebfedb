package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/docslot/libs/db"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/model"
)

// IdempotencyRepository reads and records the answers given to keyed booking
// requests. A successful booking claims its key inside the appointment insert
// (see BookingRepository.CreateAppointment); only refusals are recorded here.
// No connection is held while the booking itself runs.
type IdempotencyRepository struct {
	pool     *db.Pool
	bookings *BookingRepository
}

func NewIdempotencyRepository(pool *db.Pool, bookings *BookingRepository) *IdempotencyRepository {
	return &IdempotencyRepository{pool: pool, bookings: bookings}
}

// IdempotentResult is a recorded answer. Appointment is set when the key
// confirmed a booking; the response body is then rebuilt from it.
type IdempotentResult struct {
	StatusCode  int
	Body        []byte
	Appointment *model.Appointment
	Replayed    bool
}

// Lookup returns the recorded answer for key, if any.
func (r *IdempotencyRepository) Lookup(ctx context.Context, key model.IdempotencyKey) (IdempotentResult, bool, error) {
	var (
		status        int
		body          string
		appointmentID *string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(status_code, 0), COALESCE(response_payload::text, ''), appointment_id::text
		FROM booking_idempotency_keys
		WHERE scope = $1 AND idempotency_key = $2
	`, key.Scope, key.Key).Scan(&status, &body, &appointmentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return IdempotentResult{}, false, nil
	}
	if err != nil {
		return IdempotentResult{}, false, err
	}
	if status == 0 {
		return IdempotentResult{}, false, nil
	}

	res := IdempotentResult{StatusCode: status, Replayed: true}
	if appointmentID != nil {
		appt, err := r.bookings.GetAppointment(ctx, *appointmentID)
		if err != nil {
			return IdempotentResult{}, false, err
		}
		res.Appointment = &appt
		return res, true, nil
	}
	res.Body = []byte(body)
	return res, true, nil
}

// Record stores a refusal for key. The first answer wins: if the key already
// has one (for example a concurrent duplicate that booked), that answer is
// returned with Replayed set.
func (r *IdempotencyRepository) Record(ctx context.Context, key model.IdempotencyKey, status int, body []byte) (IdempotentResult, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (scope, idempotency_key, status_code, response_payload)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (scope, idempotency_key) DO NOTHING
	`, key.Scope, key.Key, status, string(body))
	if err != nil {
		return IdempotentResult{}, err
	}
	if tag.RowsAffected() == 1 {
		return IdempotentResult{StatusCode: status, Body: body}, nil
	}
	res, ok, err := r.Lookup(ctx, key)
	if err != nil {
		return IdempotentResult{}, err
	}
	if !ok {
		return IdempotentResult{StatusCode: status, Body: body}, nil
	}
	return res, nil
}
