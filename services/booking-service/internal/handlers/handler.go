// Package handlers exposes availability queries, schedule ingestion and the
// booking transaction over JSON.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/md-rashed-zaman/docslot/libs/httpx"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/storage"
	"go.uber.org/zap"
)

type Availability interface {
	GetAvailableSlots(ctx context.Context, doctorID string, date time.Time) ([]model.ResolvedSlot, error)
	IsDateBookable(ctx context.Context, doctorID string, date time.Time) (bool, error)
	BookableDates(ctx context.Context, doctorID string, from, to time.Time) ([]time.Time, error)
	Location() *time.Location
}

type Bookings interface {
	Select(ctx context.Context, req booking.SelectRequest) (*booking.Transaction, error)
	Review(ctx context.Context, tx *booking.Transaction) (booking.Draft, error)
	Book(ctx context.Context, req booking.SelectRequest) (*booking.Transaction, error)
	LoadDraft(ctx context.Context, patientID, doctorID string) (booking.Draft, error)
	Cancel(ctx context.Context, appointmentID, reason string) (model.Appointment, error)
}

type Schedules interface {
	ReplaceWeeklySchedules(ctx context.Context, doctorID string, entries []model.WeeklyScheduleEntry) ([]model.WeeklyScheduleEntry, error)
	CreateOverride(ctx context.Context, o model.ScheduleOverride) (model.ScheduleOverride, error)
	DeleteOverride(ctx context.Context, doctorID, overrideID string) error
}

type CacheInvalidator interface {
	Invalidate(ctx context.Context, doctorID string) error
}

type Idempotency interface {
	Lookup(ctx context.Context, key model.IdempotencyKey) (storage.IdempotentResult, bool, error)
	Record(ctx context.Context, key model.IdempotencyKey, status int, body []byte) (storage.IdempotentResult, error)
}

type Deps struct {
	Availability Availability
	Bookings     Bookings
	Schedules    Schedules
	Cache        CacheInvalidator // optional
	Idempotency  Idempotency      // optional
	Logger       *zap.Logger
}

type Handler struct {
	avail     Availability
	bookings  Bookings
	schedules Schedules
	cache     CacheInvalidator
	idem      Idempotency
	log       *zap.Logger
	validate  *validator.Validate
}

func New(d Deps) *Handler {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		avail:     d.Availability,
		bookings:  d.Bookings,
		schedules: d.Schedules,
		cache:     d.Cache,
		idem:      d.Idempotency,
		log:       log,
		validate:  newValidator(),
	}
}

// Routes mounts the API under /api/v1.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/doctors/{doctorID}", func(r chi.Router) {
			r.Get("/slots", h.Slots)
			r.Get("/bookable", h.Bookable)
			r.Get("/calendar", h.Calendar)
			r.Put("/schedules", h.ReplaceSchedules)
			r.Post("/overrides", h.CreateOverride)
			r.Delete("/overrides/{overrideID}", h.DeleteOverride)
		})
		r.Post("/bookings/quote", h.Quote)
		r.Get("/bookings/draft", h.Draft)
		r.Post("/bookings", h.CreateBooking)
		r.Post("/appointments/{appointmentID}/cancel", h.CancelAppointment)
	})
}

func (h *Handler) logger(r *http.Request) *zap.Logger {
	if id := httpx.RequestIDFromContext(r.Context()); id != "" {
		return h.log.With(zap.String("request_id", id))
	}
	return h.log
}
