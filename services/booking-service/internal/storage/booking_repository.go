package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/docslot/libs/db"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/outbox"
	"github.com/shopspring/decimal"
)

// BookingRepository is the authoritative booking store.
//
// CreateAppointment serializes writers per doctor with a transaction-scoped
// advisory lock, checks for overlap and inserts in the same transaction. The
// appointments_no_overlap exclusion constraint backs this up.
type BookingRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
	now    func() time.Time
}

// ErrIdempotencyKeyUsed is returned when the request's key already answered an
// earlier request. The insert is rolled back; the caller replays the recorded answer.
var ErrIdempotencyKeyUsed = errors.New("idempotency key already used")

func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outbox: outboxRepo, now: time.Now}
}

const appointmentColumns = `
	id::text, doctor_id::text, patient_id, start_time, end_time, status,
	fee::text, discount_amount::text, final_price::text, COALESCE(promotion_code, ''),
	source_type, source_id, cancelled_at, COALESCE(cancel_reason, ''), created_at`

// GetAppointment loads one appointment by id.
func (r *BookingRepository) GetAppointment(ctx context.Context, appointmentID string) (model.Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, appointmentID))
	if err != nil {
		return model.Appointment{}, classify(err, "appointment not found")
	}
	return appt, nil
}

// ListBookedAppointments returns non-cancelled appointments intersecting [from, to).
func (r *BookingRepository) ListBookedAppointments(ctx context.Context, doctorID string, from, to time.Time) ([]model.BookedAppointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, doctor_id::text, patient_id, start_time, end_time, status
		FROM appointments
		WHERE doctor_id = $1
			AND status <> 'cancelled'
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time
	`, doctorID, from, to)
	if err != nil {
		return nil, classify(err, "doctor not found")
	}
	booked, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.BookedAppointment, error) {
		var (
			b      model.BookedAppointment
			status string
		)
		err := row.Scan(&b.ID, &b.DoctorID, &b.PatientID, &b.StartTime, &b.EndTime, &status)
		b.Status = model.AppointmentStatus(status)
		return b, err
	})
	if err != nil {
		return nil, classify(err, "doctor not found")
	}
	return booked, nil
}

func (r *BookingRepository) CreateAppointment(ctx context.Context, req model.CreateAppointmentRequest) (model.Appointment, error) {
	if !req.EndTime.After(req.StartTime) {
		return model.Appointment{}, apperr.New(apperr.KindInvalidInterval, "appointment must end after it starts")
	}

	var appt model.Appointment
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, req.DoctorID); err != nil {
			return err
		}
		if !req.Idempotency.IsZero() {
			if err := claimIdempotencyKey(ctx, tx, req.Idempotency); err != nil {
				return err
			}
		}

		var taken bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM appointments
				WHERE doctor_id = $1
					AND status <> 'cancelled'
					AND start_time < $3
					AND end_time > $2
			)
		`, req.DoctorID, req.StartTime, req.EndTime).Scan(&taken)
		if err != nil {
			return err
		}
		if taken {
			return apperr.Conflict("slot already booked")
		}

		if req.PromotionCode != "" {
			if err := consumePromotion(ctx, tx, req.PromotionCode, r.now()); err != nil {
				return err
			}
		}

		var promo *string
		if req.PromotionCode != "" {
			promo = &req.PromotionCode
		}
		row := tx.QueryRow(ctx, `
			INSERT INTO appointments
				(doctor_id, patient_id, start_time, end_time, status, fee, discount_amount, final_price,
				 promotion_code, source_type, source_id)
			VALUES ($1, $2, $3, $4, 'confirmed', $5::numeric, $6::numeric, $7::numeric, $8, $9, $10)
			RETURNING `+appointmentColumns,
			req.DoctorID, req.PatientID, req.StartTime, req.EndTime,
			req.Fee.String(), req.DiscountAmount.String(), req.FinalPrice.String(),
			promo, string(req.SourceType), req.SourceID)
		if appt, err = scanAppointment(row); err != nil {
			return err
		}
		if !req.Idempotency.IsZero() {
			if _, err := tx.Exec(ctx, `
				UPDATE booking_idempotency_keys
				SET appointment_id = $3::uuid, updated_at = now()
				WHERE scope = $1 AND idempotency_key = $2
			`, req.Idempotency.Scope, req.Idempotency.Key, appt.ID); err != nil {
				return err
			}
		}

		evt, err := outbox.AppointmentEvent(outbox.EventAppointmentConfirmed, appt, r.now())
		if err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, evt)
	})
	if err != nil {
		if errors.Is(err, ErrIdempotencyKeyUsed) {
			return model.Appointment{}, apperr.Wrap(apperr.KindValidation, ErrIdempotencyKeyUsed.Error(), err)
		}
		if hasCode(err, "23503") {
			return model.Appointment{}, apperr.Wrap(apperr.KindNotFound, "doctor not found", err)
		}
		return model.Appointment{}, classify(err, "doctor not found")
	}
	return appt, nil
}

// claimIdempotencyKey records key as answered with 201. A concurrent claim of
// the same key blocks on the primary key until this transaction ends.
func claimIdempotencyKey(ctx context.Context, tx pgx.Tx, key model.IdempotencyKey) error {
	tag, err := tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (scope, idempotency_key, status_code)
		VALUES ($1, $2, 201)
		ON CONFLICT (scope, idempotency_key) DO NOTHING
	`, key.Scope, key.Key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyKeyUsed
	}
	return nil
}

// consumePromotion takes one use of code. The guarded update loses cleanly to a
// concurrent booking that took the last use.
func consumePromotion(ctx context.Context, tx pgx.Tx, code string, now time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE promotions
		SET used_count = used_count + 1
		WHERE upper(code) = upper($1)
			AND is_active
			AND starts_at <= $2
			AND (ends_at IS NULL OR ends_at > $2)
			AND (usage_limit = 0 OR used_count < usage_limit)
	`, code, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Invalid("promotion is no longer available")
	}
	return nil
}

// CancelAppointment is idempotent: cancelling a cancelled appointment returns it unchanged.
func (r *BookingRepository) CancelAppointment(ctx context.Context, appointmentID, reason string) (model.Appointment, error) {
	var appt model.Appointment
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		appt, err = scanAppointment(tx.QueryRow(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE id = $1
			FOR UPDATE
		`, appointmentID))
		if err != nil {
			return err
		}
		if appt.Status == model.StatusCancelled {
			return nil
		}
		if appt.Status == model.StatusCompleted {
			return apperr.Invalid("completed appointments cannot be cancelled")
		}

		appt, err = scanAppointment(tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = 'cancelled', cancelled_at = now(), cancel_reason = $2
			WHERE id = $1
			RETURNING `+appointmentColumns, appointmentID, reason))
		if err != nil {
			return err
		}
		evt, err := outbox.AppointmentEvent(outbox.EventAppointmentCancelled, appt, r.now())
		if err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, evt)
	})
	if err != nil {
		return model.Appointment{}, classify(err, "appointment not found")
	}
	return appt, nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		a                          model.Appointment
		status, source             string
		fee, discount, finalAmount string
	)
	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.StartTime, &a.EndTime, &status,
		&fee, &discount, &finalAmount, &a.PromotionCode,
		&source, &a.SourceID, &a.CancelledAt, &a.CancelReason, &a.CreatedAt)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.AppointmentStatus(status)
	a.SourceType = model.SourceType(source)
	if a.Fee, err = decimal.NewFromString(fee); err != nil {
		return model.Appointment{}, err
	}
	if a.DiscountAmount, err = decimal.NewFromString(discount); err != nil {
		return model.Appointment{}, err
	}
	if a.FinalPrice, err = decimal.NewFromString(finalAmount); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}
