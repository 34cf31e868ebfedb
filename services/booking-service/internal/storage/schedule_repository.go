package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/docslot/libs/db"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/model"
	"github.com/shopspring/decimal"
)

// ScheduleRepository stores doctors, their weekly templates and overrides.
// Dates are anchored to loc when read back.
type ScheduleRepository struct {
	pool *db.Pool
	loc  *time.Location
}

func NewScheduleRepository(pool *db.Pool, loc *time.Location) *ScheduleRepository {
	return &ScheduleRepository{pool: pool, loc: loc}
}

func (r *ScheduleRepository) GetDoctor(ctx context.Context, doctorID string) (model.Doctor, error) {
	var (
		d   model.Doctor
		fee string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, consultation_fee::text, is_active
		FROM doctors
		WHERE id = $1
	`, doctorID).Scan(&d.ID, &d.Name, &fee, &d.IsActive)
	if err != nil {
		return model.Doctor{}, classify(err, "doctor not found")
	}
	if d.ConsultationFee, err = decimal.NewFromString(fee); err != nil {
		return model.Doctor{}, err
	}
	return d, nil
}

func (r *ScheduleRepository) ListWeeklySchedules(ctx context.Context, doctorID string) ([]model.WeeklyScheduleEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, doctor_id::text, day_of_week,
			to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), is_available
		FROM weekly_schedules
		WHERE doctor_id = $1
		ORDER BY day_of_week, start_time
	`, doctorID)
	if err != nil {
		return nil, classify(err, "doctor not found")
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.WeeklyScheduleEntry, error) {
		var (
			e          model.WeeklyScheduleEntry
			start, end string
		)
		if err := row.Scan(&e.ID, &e.DoctorID, &e.DayOfWeek, &start, &end, &e.IsAvailable); err != nil {
			return e, err
		}
		span, err := interval.NewSpan(start, end)
		e.Span = span
		return e, err
	})
	if err != nil {
		return nil, classify(err, "doctor not found")
	}
	return entries, nil
}

func (r *ScheduleRepository) ListOverrides(ctx context.Context, doctorID string) ([]model.ScheduleOverride, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, doctor_id::text, to_char(override_date, 'YYYY-MM-DD'),
			to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
			COALESCE(override_type, ''), is_available, reason
		FROM schedule_overrides
		WHERE doctor_id = $1
		ORDER BY override_date, start_time
	`, doctorID)
	if err != nil {
		return nil, classify(err, "doctor not found")
	}
	ovs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ScheduleOverride, error) {
		var (
			o                       model.ScheduleOverride
			date, start, end, otype string
		)
		if err := row.Scan(&o.ID, &o.DoctorID, &date, &start, &end, &otype, &o.IsAvailable, &o.Reason); err != nil {
			return o, err
		}
		d, err := interval.ParseDate(date, r.loc)
		if err != nil {
			return o, err
		}
		o.OverrideDate = d
		o.Type = model.ParseOverrideType(otype)
		o.Span, err = interval.NewSpan(start, end)
		return o, err
	})
	if err != nil {
		return nil, classify(err, "doctor not found")
	}
	return ovs, nil
}

// ReplaceWeeklySchedules swaps the doctor's whole template in one transaction.
// Entries must already be validated.
func (r *ScheduleRepository) ReplaceWeeklySchedules(ctx context.Context, doctorID string, entries []model.WeeklyScheduleEntry) ([]model.WeeklyScheduleEntry, error) {
	out := make([]model.WeeklyScheduleEntry, 0, len(entries))
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM doctors WHERE id = $1)`, doctorID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return apperr.New(apperr.KindNotFound, "doctor not found")
		}
		if _, err := tx.Exec(ctx, `DELETE FROM weekly_schedules WHERE doctor_id = $1`, doctorID); err != nil {
			return err
		}
		for _, e := range entries {
			e.DoctorID = doctorID
			err := tx.QueryRow(ctx, `
				INSERT INTO weekly_schedules (doctor_id, day_of_week, start_time, end_time, is_available)
				VALUES ($1, $2, $3::time, $4::time, $5)
				RETURNING id::text
			`, doctorID, e.DayOfWeek, e.Span.Start.String(), e.Span.End.String(), e.IsAvailable).Scan(&e.ID)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, classify(err, "doctor not found")
	}
	return out, nil
}

func (r *ScheduleRepository) CreateOverride(ctx context.Context, o model.ScheduleOverride) (model.ScheduleOverride, error) {
	var otype *string
	if o.Type != model.OverrideUnspecified {
		s := string(o.Type)
		otype = &s
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO schedule_overrides (doctor_id, override_date, start_time, end_time, override_type, is_available, reason)
		VALUES ($1, $2::date, $3::time, $4::time, $5, $6, $7)
		RETURNING id::text
	`, o.DoctorID, interval.FormatDate(o.OverrideDate), o.Span.Start.String(), o.Span.End.String(),
		otype, o.IsAvailable, o.Reason).Scan(&o.ID)
	if err != nil {
		if hasCode(err, "23503") {
			return model.ScheduleOverride{}, apperr.Wrap(apperr.KindNotFound, "doctor not found", err)
		}
		return model.ScheduleOverride{}, classify(err, "doctor not found")
	}
	return o, nil
}

func (r *ScheduleRepository) DeleteOverride(ctx context.Context, doctorID, overrideID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM schedule_overrides WHERE id = $1 AND doctor_id = $2`, overrideID, doctorID)
	if err != nil {
		return classify(err, "override not found")
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "override not found")
	}
	return nil
}
