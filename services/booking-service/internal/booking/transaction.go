// Package booking drives one booking attempt from slot selection to a confirmed
// or rejected appointment.
//
//	SlotSelected -> PendingConfirmation -> Submitted -> Confirmed | Rejected
//
// Select re-derives the slot from current availability and prices it. Review
// stores the summary as a draft; nothing about the appointment is written yet.
// Submit makes exactly one create call. The store decides the outcome
// atomically; a Rejected transaction is final and is never retried here.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/kvstore"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/pricing"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/promotions"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/slotlock"
	"go.uber.org/zap"
)

type State string

const (
	StateSlotSelected        State = "SlotSelected"
	StatePendingConfirmation State = "PendingConfirmation"
	StateSubmitted           State = "Submitted"
	StateConfirmed           State = "Confirmed"
	StateRejected            State = "Rejected"
)

var ErrInvalidTransition = errors.New("invalid booking state transition")

type Availability interface {
	GetAvailableSlots(ctx context.Context, doctorID string, date time.Time) ([]model.ResolvedSlot, error)
	Location() *time.Location
	Now() time.Time
}

type Doctors interface {
	GetDoctor(ctx context.Context, doctorID string) (model.Doctor, error)
}

// Store is the authoritative booking store. CreateAppointment must reject an
// interval overlapping a non-cancelled appointment with an apperr.SlotConflict.
type Store interface {
	CreateAppointment(ctx context.Context, req model.CreateAppointmentRequest) (model.Appointment, error)
	CancelAppointment(ctx context.Context, appointmentID, reason string) (model.Appointment, error)
}

type Service struct {
	avail    Availability
	doctors  Doctors
	promos   promotions.Lookup
	store    Store
	locker   slotlock.Locker
	drafts   kvstore.Store
	draftTTL time.Duration
	log      *zap.Logger
}

type Deps struct {
	Availability Availability
	Doctors      Doctors
	Promotions   promotions.Lookup
	Store        Store
	Locker       slotlock.Locker
	Drafts       kvstore.Store
	DraftTTL     time.Duration
	Logger       *zap.Logger
}

func NewService(d Deps) *Service {
	s := &Service{
		avail:    d.Availability,
		doctors:  d.Doctors,
		promos:   d.Promotions,
		store:    d.Store,
		locker:   d.Locker,
		drafts:   d.Drafts,
		draftTTL: d.DraftTTL,
		log:      d.Logger,
	}
	if s.locker == nil {
		s.locker = slotlock.Noop{}
	}
	if s.drafts == nil {
		s.drafts = kvstore.NewMemory()
	}
	if s.draftTTL <= 0 {
		s.draftTTL = 15 * time.Minute
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

type SelectRequest struct {
	DoctorID      string
	PatientID     string
	Date          time.Time
	Start         interval.Clock
	PromotionCode string

	// IdempotencyKey is the client's request key. The store records it with
	// the appointment so a retry can be answered from what was booked.
	IdempotencyKey string
}

// Transaction is one booking attempt. It is not safe for concurrent use.
type Transaction struct {
	State       State
	DoctorID    string
	PatientID   string
	Date        time.Time
	Slot        model.ResolvedSlot
	Range       interval.Range
	Quote       pricing.Quote
	Idempotency model.IdempotencyKey
	Appointment *model.Appointment
	Err         error
}

// NeedsRefresh reports whether the caller should re-run the availability query
// before letting the user pick again.
func (t *Transaction) NeedsRefresh() bool {
	var e *apperr.Error
	return t.State == StateRejected && errors.As(t.Err, &e) && e.NeedsRefresh()
}

// Select moves a new transaction into SlotSelected. The slot must be in the
// doctor's current availability for that date.
func (s *Service) Select(ctx context.Context, req SelectRequest) (*Transaction, error) {
	if req.DoctorID == "" || req.PatientID == "" {
		return nil, apperr.Invalid("doctor and patient are required")
	}
	doc, err := s.doctors.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if !doc.IsActive {
		return nil, apperr.Invalid("doctor is not accepting bookings")
	}

	loc := s.avail.Location()
	date := interval.DayStart(req.Date, loc)
	slots, err := s.avail.GetAvailableSlots(ctx, req.DoctorID, date)
	if err != nil {
		return nil, err
	}
	slot, ok := findSlot(slots, req.Start)
	if !ok {
		return nil, apperr.Conflict("selected slot is no longer available")
	}

	promo, err := promotions.Resolve(ctx, s.promos, req.PromotionCode, s.avail.Now())
	if err != nil {
		return nil, err
	}

	return &Transaction{
		State:       StateSlotSelected,
		DoctorID:    req.DoctorID,
		PatientID:   req.PatientID,
		Date:        date,
		Slot:        slot,
		Range:       slot.Span.On(date, loc),
		Quote:       pricing.Calculate(doc.ConsultationFee, promo),
		Idempotency: model.BookingIdempotencyKey(req.PatientID, req.IdempotencyKey),
	}, nil
}

func findSlot(slots []model.ResolvedSlot, start interval.Clock) (model.ResolvedSlot, bool) {
	for _, s := range slots {
		if s.Span.Start == start {
			return s, true
		}
	}
	return model.ResolvedSlot{}, false
}

// Review moves SlotSelected to PendingConfirmation and saves the summary as the
// patient's draft for this doctor.
func (s *Service) Review(ctx context.Context, tx *Transaction) (Draft, error) {
	if tx.State != StateSlotSelected {
		return Draft{}, fmt.Errorf("%w: review from %s", ErrInvalidTransition, tx.State)
	}
	d := newDraft(tx)
	if err := s.drafts.Set(ctx, DraftKey(tx.PatientID, tx.DoctorID), d, s.draftTTL); err != nil {
		// A lost draft only costs the user a re-selection.
		s.log.Warn("save booking draft failed", zap.String("doctor_id", tx.DoctorID), zap.Error(err))
	}
	tx.State = StatePendingConfirmation
	return d, nil
}

// LoadDraft returns the last reviewed summary, or apperr.NotFound.
func (s *Service) LoadDraft(ctx context.Context, patientID, doctorID string) (Draft, error) {
	var d Draft
	err := s.drafts.Get(ctx, DraftKey(patientID, doctorID), &d)
	if errors.Is(err, kvstore.ErrNotFound) {
		return Draft{}, apperr.New(apperr.KindNotFound, "no booking draft")
	}
	if err != nil {
		return Draft{}, apperr.TransportFailure("could not load booking draft", err)
	}
	return d, nil
}

// Submit moves PendingConfirmation through Submitted to Confirmed or Rejected.
// The returned error is tx.Err; the transaction always ends in a final state.
func (s *Service) Submit(ctx context.Context, tx *Transaction) error {
	if tx.State != StatePendingConfirmation {
		return fmt.Errorf("%w: submit from %s", ErrInvalidTransition, tx.State)
	}
	tx.State = StateSubmitted

	hold, err := s.locker.Acquire(ctx, tx.DoctorID, tx.Range)
	switch {
	case errors.Is(err, slotlock.ErrHeld):
		return s.reject(tx, apperr.Conflict("slot is being booked by someone else"))
	case err != nil:
		// The hold is advisory; the store still arbitrates.
		s.log.Warn("slot hold unavailable", zap.String("doctor_id", tx.DoctorID), zap.Error(err))
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), hold); err != nil {
			s.log.Warn("release slot hold failed", zap.Error(err))
		}
	}()

	appt, err := s.store.CreateAppointment(ctx, model.CreateAppointmentRequest{
		DoctorID:       tx.DoctorID,
		PatientID:      tx.PatientID,
		StartTime:      tx.Range.Start,
		EndTime:        tx.Range.End,
		Fee:            tx.Quote.BaseFee,
		DiscountAmount: tx.Quote.DiscountAmount,
		FinalPrice:     tx.Quote.FinalPrice,
		PromotionCode:  tx.Quote.PromotionCode,
		SourceType:     tx.Slot.SourceType,
		SourceID:       tx.Slot.SourceID,
		Idempotency:    tx.Idempotency,
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			err = apperr.TransportFailure("could not submit booking", err)
		}
		return s.reject(tx, err)
	}

	tx.State = StateConfirmed
	tx.Appointment = &appt
	if err := s.drafts.Delete(ctx, DraftKey(tx.PatientID, tx.DoctorID)); err != nil {
		s.log.Warn("delete booking draft failed", zap.Error(err))
	}
	s.log.Info("appointment confirmed",
		zap.String("appointment_id", appt.ID),
		zap.String("doctor_id", tx.DoctorID),
		zap.Time("start", tx.Range.Start),
	)
	return nil
}

func (s *Service) reject(tx *Transaction, err error) error {
	tx.State = StateRejected
	tx.Err = err
	s.log.Info("booking rejected",
		zap.String("doctor_id", tx.DoctorID),
		zap.Time("start", tx.Range.Start),
		zap.String("kind", string(apperr.KindOf(err))),
		zap.Error(err),
	)
	return err
}

// Book runs Select, Review and Submit in order. Select failures return a nil
// transaction; otherwise the transaction is in a final state.
func (s *Service) Book(ctx context.Context, req SelectRequest) (*Transaction, error) {
	tx, err := s.Select(ctx, req)
	if err != nil {
		return nil, err
	}
	if _, err := s.Review(ctx, tx); err != nil {
		return tx, err
	}
	return tx, s.Submit(ctx, tx)
}

// Cancel frees the appointment's interval for future bookings.
func (s *Service) Cancel(ctx context.Context, appointmentID, reason string) (model.Appointment, error) {
	if appointmentID == "" {
		return model.Appointment{}, apperr.Invalid("appointment id is required")
	}
	appt, err := s.store.CancelAppointment(ctx, appointmentID, reason)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			err = apperr.TransportFailure("could not cancel appointment", err)
		}
		return model.Appointment{}, err
	}
	s.log.Info("appointment cancelled", zap.String("appointment_id", appt.ID))
	return appt, nil
}
