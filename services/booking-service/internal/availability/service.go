// Package availability answers "which slots can this doctor take on this date".
//
// It fetches the schedule template, overrides and bookings from the injected
// sources and runs them through the classifier, resolver and filter. The
// pipeline itself is pure; only the fetch can fail.
package availability

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/filter"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/overrides"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/resolver"
	"golang.org/x/sync/errgroup"
)

// MaxRangeDays bounds BookableDates.
const MaxRangeDays = 62

var ErrRangeTooLarge = errors.New("date range too large")

type ScheduleSource interface {
	ListWeeklySchedules(ctx context.Context, doctorID string) ([]model.WeeklyScheduleEntry, error)
	ListOverrides(ctx context.Context, doctorID string) ([]model.ScheduleOverride, error)
}

type BookingSource interface {
	// ListBookedAppointments returns non-cancelled appointments intersecting [from, to).
	ListBookedAppointments(ctx context.Context, doctorID string, from, to time.Time) ([]model.BookedAppointment, error)
}

type Service struct {
	schedules ScheduleSource
	bookings  BookingSource
	loc       *time.Location
	now       func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now; tests use it to pin "today".
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(schedules ScheduleSource, bookings BookingSource, loc *time.Location, opts ...Option) *Service {
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{schedules: schedules, bookings: bookings, loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) Now() time.Time { return s.now().In(s.loc) }

// Input is everything the pipeline needs for one date.
type Input struct {
	Date      time.Time
	Now       time.Time
	Weekly    []model.WeeklyScheduleEntry
	Overrides []model.ScheduleOverride
	Booked    []model.BookedAppointment
	Location  *time.Location
}

// Result keeps the classification next to the slots so callers can answer
// IsDateBookable without another pass.
type Result struct {
	Slots      []model.ResolvedSlot
	Classified overrides.Classified
}

// Compute runs classifier, resolver and filter over in-memory data.
func Compute(in Input) Result {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	date := interval.DayStart(in.Date, loc)
	classified := overrides.ClassifyForDate(in.Overrides, date, loc)
	slots := resolver.Resolve(date, in.Weekly, classified)
	return Result{
		Slots:      filter.Apply(slots, date, in.Now, in.Booked, loc),
		Classified: classified,
	}
}

// Bookable applies the calendar rule to a computed result.
//
// A date with a working override counts as bookable even if every override slot
// is already taken, so this may be true for a date whose slot list is empty.
func (r Result) Bookable(date, today time.Time) bool {
	if date.Before(today) {
		return false
	}
	return r.Classified.HasWorking() || len(r.Slots) > 0
}

func (s *Service) GetAvailableSlots(ctx context.Context, doctorID string, date time.Time) ([]model.ResolvedSlot, error) {
	res, err := s.compute(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	return res.Slots, nil
}

// IsDateBookable is the cheap calendar check; see Result.Bookable for the case where
// it reports true but GetAvailableSlots returns nothing.
func (s *Service) IsDateBookable(ctx context.Context, doctorID string, date time.Time) (bool, error) {
	now := s.Now()
	day := interval.DayStart(date, s.loc)
	if day.Before(interval.DayStart(now, s.loc)) {
		return false, nil
	}
	res, err := s.compute(ctx, doctorID, day)
	if err != nil {
		return false, err
	}
	return res.Bookable(day, interval.DayStart(now, s.loc)), nil
}

// BookableDates returns the bookable days in [from, to], inclusive, loading the
// template, overrides and bookings once for the whole range.
func (s *Service) BookableDates(ctx context.Context, doctorID string, from, to time.Time) ([]time.Time, error) {
	from = interval.DayStart(from, s.loc)
	to = interval.DayStart(to, s.loc)
	if to.Before(from) {
		return nil, apperr.Invalid("to must not be before from")
	}
	if interval.CalendarDays(from, to, s.loc) > MaxRangeDays {
		return nil, apperr.Wrap(apperr.KindValidation, "date range exceeds 62 days", ErrRangeTooLarge)
	}

	now := s.Now()
	today := interval.DayStart(now, s.loc)
	if to.Before(today) {
		return []time.Time{}, nil
	}
	if from.Before(today) {
		from = today
	}

	weekly, ovs, booked, err := s.fetch(ctx, doctorID, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	out := []time.Time{}
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		res := Compute(Input{Date: d, Now: now, Weekly: weekly, Overrides: ovs, Booked: booked, Location: s.loc})
		if res.Bookable(d, today) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Service) compute(ctx context.Context, doctorID string, date time.Time) (Result, error) {
	day := interval.DayStart(date, s.loc)
	weekly, ovs, booked, err := s.fetch(ctx, doctorID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return Result{}, err
	}
	return Compute(Input{Date: day, Now: s.Now(), Weekly: weekly, Overrides: ovs, Booked: booked, Location: s.loc}), nil
}

func (s *Service) fetch(ctx context.Context, doctorID string, from, to time.Time) ([]model.WeeklyScheduleEntry, []model.ScheduleOverride, []model.BookedAppointment, error) {
	var (
		weekly []model.WeeklyScheduleEntry
		ovs    []model.ScheduleOverride
		booked []model.BookedAppointment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		weekly, err = s.schedules.ListWeeklySchedules(gctx, doctorID)
		return asTransport("load weekly schedule", err)
	})
	g.Go(func() error {
		var err error
		ovs, err = s.schedules.ListOverrides(gctx, doctorID)
		return asTransport("load schedule overrides", err)
	})
	g.Go(func() error {
		var err error
		booked, err = s.bookings.ListBookedAppointments(gctx, doctorID, from, to)
		return asTransport("load booked appointments", err)
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return weekly, ovs, booked, nil
}

// asTransport keeps already-classified errors and marks everything else as a
// collaborator failure, so an unreachable source never reads as "no availability".
func asTransport(reason string, err error) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	return apperr.TransportFailure(reason, err)
}
