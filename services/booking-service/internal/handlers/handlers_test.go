package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/kvstore"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Monday 2026-10-19 09:00 UTC.
var now = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

type memSchedules struct {
	mu        sync.Mutex
	weekly    []model.WeeklyScheduleEntry
	overrides []model.ScheduleOverride
	seq       int
	fail      error
}

func (m *memSchedules) ListWeeklySchedules(_ context.Context, doctorID string) ([]model.WeeklyScheduleEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	return append([]model.WeeklyScheduleEntry(nil), m.weekly...), nil
}

func (m *memSchedules) ListOverrides(_ context.Context, doctorID string) ([]model.ScheduleOverride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ScheduleOverride(nil), m.overrides...), nil
}

func (m *memSchedules) GetDoctor(_ context.Context, doctorID string) (model.Doctor, error) {
	if doctorID != "doc-1" {
		return model.Doctor{}, apperr.New(apperr.KindNotFound, "doctor not found")
	}
	return model.Doctor{ID: "doc-1", ConsultationFee: decimal.NewFromInt(500000), IsActive: true}, nil
}

func (m *memSchedules) ReplaceWeeklySchedules(_ context.Context, doctorID string, entries []model.WeeklyScheduleEntry) ([]model.WeeklyScheduleEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range entries {
		m.seq++
		entries[i].ID = fmt.Sprintf("w%d", m.seq)
	}
	m.weekly = entries
	return entries, nil
}

func (m *memSchedules) CreateOverride(_ context.Context, o model.ScheduleOverride) (model.ScheduleOverride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	o.ID = fmt.Sprintf("o%d", m.seq)
	m.overrides = append(m.overrides, o)
	return o, nil
}

func (m *memSchedules) DeleteOverride(_ context.Context, doctorID, overrideID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, o := range m.overrides {
		if o.ID == overrideID {
			m.overrides = append(m.overrides[:i], m.overrides[i+1:]...)
			return nil
		}
	}
	return apperr.New(apperr.KindNotFound, "override not found")
}

type memBookings struct {
	mu      sync.Mutex
	appts   []model.Appointment
	creates int
	keys    map[model.IdempotencyKey]storage.IdempotentResult
}

func (m *memBookings) ListBookedAppointments(_ context.Context, doctorID string, from, to time.Time) ([]model.BookedAppointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.BookedAppointment
	for _, a := range m.appts {
		if a.Status == model.StatusCancelled {
			continue
		}
		out = append(out, model.BookedAppointment{ID: a.ID, DoctorID: a.DoctorID, StartTime: a.StartTime, EndTime: a.EndTime, Status: a.Status})
	}
	return out, nil
}

func (m *memBookings) CreateAppointment(_ context.Context, req model.CreateAppointmentRequest) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if !req.Idempotency.IsZero() {
		if _, used := m.keys[req.Idempotency]; used {
			return model.Appointment{}, apperr.Wrap(apperr.KindValidation, "idempotency key already used", storage.ErrIdempotencyKeyUsed)
		}
	}
	r := interval.Range{Start: req.StartTime, End: req.EndTime}
	for _, a := range m.appts {
		if a.Status != model.StatusCancelled && r.Overlaps(interval.Range{Start: a.StartTime, End: a.EndTime}) {
			return model.Appointment{}, apperr.Conflict("slot already booked")
		}
	}
	a := model.Appointment{
		ID: fmt.Sprintf("appt-%d", len(m.appts)+1), DoctorID: req.DoctorID, PatientID: req.PatientID,
		StartTime: req.StartTime, EndTime: req.EndTime, Status: model.StatusConfirmed,
		Fee: req.Fee, DiscountAmount: req.DiscountAmount, FinalPrice: req.FinalPrice, SourceType: req.SourceType,
	}
	m.appts = append(m.appts, a)
	if !req.Idempotency.IsZero() {
		m.keys[req.Idempotency] = storage.IdempotentResult{StatusCode: http.StatusCreated, Appointment: &a}
	}
	return a, nil
}

func (m *memBookings) CancelAppointment(_ context.Context, id, reason string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.appts {
		if a.ID == id {
			at := now
			m.appts[i].Status = model.StatusCancelled
			m.appts[i].CancelledAt = &at
			m.appts[i].CancelReason = reason
			return m.appts[i], nil
		}
	}
	return model.Appointment{}, apperr.New(apperr.KindNotFound, "appointment not found")
}

type noPromotions struct{}

func (noPromotions) GetPromotionByCode(context.Context, string) (*model.Promotion, error) {
	return nil, apperr.New(apperr.KindNotFound, "promotion code not found")
}

// memIdempotency reads the keys memBookings claims on insert, like the
// database-backed repository does.
type memIdempotency struct {
	b         *memBookings
	recordErr error
}

func (m *memIdempotency) Lookup(_ context.Context, key model.IdempotencyKey) (storage.IdempotentResult, bool, error) {
	m.b.mu.Lock()
	defer m.b.mu.Unlock()
	res, ok := m.b.keys[key]
	res.Replayed = ok
	return res, ok, nil
}

func (m *memIdempotency) Record(_ context.Context, key model.IdempotencyKey, status int, body []byte) (storage.IdempotentResult, error) {
	if m.recordErr != nil {
		return storage.IdempotentResult{}, m.recordErr
	}
	m.b.mu.Lock()
	defer m.b.mu.Unlock()
	if res, ok := m.b.keys[key]; ok {
		res.Replayed = true
		return res, nil
	}
	res := storage.IdempotentResult{StatusCode: status, Body: body}
	m.b.keys[key] = res
	return res, nil
}

type countingCache struct{ calls []string }

func (c *countingCache) Invalidate(_ context.Context, doctorID string) error {
	c.calls = append(c.calls, doctorID)
	return nil
}

type env struct {
	router    http.Handler
	schedules *memSchedules
	bookings  *memBookings
	idem      *memIdempotency
	cache     *countingCache
}

func clock(s string) interval.Clock { return interval.MustClock(s) }

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		schedules: &memSchedules{weekly: []model.WeeklyScheduleEntry{
			{ID: "w1", DayOfWeek: 1, Span: interval.Span{Start: clock("08:00"), End: clock("08:50")}, IsAvailable: true},
			{ID: "w2", DayOfWeek: 1, Span: interval.Span{Start: clock("09:00"), End: clock("09:50")}, IsAvailable: true},
			{ID: "w3", DayOfWeek: 1, Span: interval.Span{Start: clock("10:00"), End: clock("10:50")}, IsAvailable: true},
		}},
		bookings: &memBookings{keys: map[model.IdempotencyKey]storage.IdempotentResult{}},
		cache:    &countingCache{},
	}
	e.idem = &memIdempotency{b: e.bookings}
	avail := availability.NewService(e.schedules, e.bookings, time.UTC, availability.WithClock(func() time.Time { return now }))
	svc := booking.NewService(booking.Deps{
		Availability: avail,
		Doctors:      e.schedules,
		Promotions:   noPromotions{},
		Store:        e.bookings,
		Drafts:       kvstore.NewMemory(),
	})
	h := New(Deps{
		Availability: avail,
		Bookings:     svc,
		Schedules:    e.schedules,
		Cache:        e.cache,
		Idempotency:  e.idem,
	})
	r := chi.NewRouter()
	h.Routes(r)
	e.router = r
	return e
}

func (e *env) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func bookingBody(start string) map[string]string {
	return map[string]string{"doctor_id": "doc-1", "patient_id": "pat-1", "date": "2026-10-26", "start_time": start}
}

func TestSlots(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/doctors/doc-1/slots?date=2026-10-26", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[slotsResponse](t, rec)
	require.Len(t, resp.Slots, 3)
	assert.Equal(t, "08:00", resp.Slots[0].StartTime)
	assert.Equal(t, "08:50", resp.Slots[0].EndTime)
	assert.Equal(t, 50, resp.Slots[0].DurationMin)
	assert.Equal(t, model.SourceRegular, resp.Slots[0].SourceType)
	assert.Equal(t, "regular:w1", resp.Slots[0].SourceID)
	assert.True(t, resp.Slots[0].StartAt.Equal(time.Date(2026, 10, 26, 8, 0, 0, 0, time.UTC)))
}

func TestSlots_TodayDropsPast(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/doctors/doc-1/slots?date=2026-10-19", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[slotsResponse](t, rec)
	require.Len(t, resp.Slots, 1)
	assert.Equal(t, "10:00", resp.Slots[0].StartTime)
}

func TestSlots_BadDate(t *testing.T) {
	e := newEnv(t)
	for _, path := range []string{
		"/api/v1/doctors/doc-1/slots",
		"/api/v1/doctors/doc-1/slots?date=26-10-2026",
	} {
		rec := e.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, path)
		assert.Equal(t, "validation", decodeBody[errorResponse](t, rec).Kind)
	}
}

func TestSlots_TransportError(t *testing.T) {
	e := newEnv(t)
	e.schedules.fail = errors.New("connection refused")

	rec := e.do(t, http.MethodGet, "/api/v1/doctors/doc-1/slots?date=2026-10-26", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeBody[errorResponse](t, rec)
	assert.Equal(t, "transport", resp.Kind)
	assert.NotContains(t, resp.Error, "connection refused")
}

func TestBookableAndCalendar(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/api/v1/doctors/doc-1/bookable?date=2026-10-26", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[bookableResponse](t, rec).Bookable)

	rec = e.do(t, http.MethodGet, "/api/v1/doctors/doc-1/bookable?date=2026-10-27", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[bookableResponse](t, rec).Bookable)

	rec = e.do(t, http.MethodGet, "/api/v1/doctors/doc-1/calendar?from=2026-10-19&to=2026-11-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"2026-10-19", "2026-10-26"}, decodeBody[calendarResponse](t, rec).Dates)

	rec = e.do(t, http.MethodGet, "/api/v1/doctors/doc-1/calendar?from=2026-10-19&to=2027-10-19", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestReplaceSchedules(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPut, "/api/v1/doctors/doc-1/schedules", map[string]any{
		"entries": []map[string]any{{"day_of_week": 2, "start_time": "09:00", "end_time": "08:00"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_interval", decodeBody[errorResponse](t, rec).Kind)
	assert.Empty(t, e.cache.calls)

	rec = e.do(t, http.MethodPut, "/api/v1/doctors/doc-1/schedules", map[string]any{
		"entries": []map[string]any{{"day_of_week": 8, "start_time": "09:00", "end_time": "09:50"}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decodeBody[errorResponse](t, rec).Error, "day_of_week")

	rec = e.do(t, http.MethodPut, "/api/v1/doctors/doc-1/schedules", map[string]any{
		"entries": []map[string]any{{"day_of_week": 2, "start_time": "09:00", "end_time": "09:50"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"doc-1"}, e.cache.calls)

	rec = e.do(t, http.MethodGet, "/api/v1/doctors/doc-1/slots?date=2026-10-27", nil)
	require.Len(t, decodeBody[slotsResponse](t, rec).Slots, 1)
}

func TestOverrides(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/doctors/doc-1/overrides", map[string]any{
		"date": "2026-10-26", "start_time": "08:00", "end_time": "09:30", "reason": "conference",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[overrideResponse](t, rec)
	assert.Equal(t, "NotWorking", created.OverrideType, "untyped overrides read back as NotWorking")

	rec = e.do(t, http.MethodGet, "/api/v1/doctors/doc-1/slots?date=2026-10-26", nil)
	slots := decodeBody[slotsResponse](t, rec).Slots
	require.Len(t, slots, 1)
	assert.Equal(t, "10:00", slots[0].StartTime)

	rec = e.do(t, http.MethodDelete, "/api/v1/doctors/doc-1/overrides/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = e.do(t, http.MethodDelete, "/api/v1/doctors/doc-1/overrides/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/doctors/doc-1/overrides", map[string]any{
		"date": "2026-10-26", "start_time": "11:00", "end_time": "11:00",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuoteAndDraft(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/bookings/quote", bookingBody("09:00"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	q := decodeBody[quoteResponse](t, rec)
	assert.Equal(t, booking.StatePendingConfirmation, q.State)
	assert.True(t, q.Draft.FinalPrice.Equal(decimal.NewFromInt(500000)))
	assert.Equal(t, 0, e.bookings.creates)

	rec = e.do(t, http.MethodGet, "/api/v1/bookings/draft?patient_id=pat-1&doctor_id=doc-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "regular:w2", decodeBody[booking.Draft](t, rec).SourceID)

	rec = e.do(t, http.MethodGet, "/api/v1/bookings/draft?patient_id=pat-2&doctor_id=doc-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQuote_UnknownPromotion(t *testing.T) {
	e := newEnv(t)
	body := bookingBody("09:00")
	body["promotion_code"] = "NOPE"

	rec := e.do(t, http.MethodPost, "/api/v1/bookings/quote", body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "promotion code not found", decodeBody[errorResponse](t, rec).Error)
}

func TestCreateBooking_ThenConflict(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/bookings", bookingBody("09:00"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[createBookingResponse](t, rec)
	assert.Equal(t, booking.StateConfirmed, created.State)
	assert.Equal(t, "appt-1", created.Appointment.AppointmentID)

	rec = e.do(t, http.MethodPost, "/api/v1/bookings", bookingBody("09:00"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeBody[errorResponse](t, rec)
	assert.Equal(t, "slot_conflict", resp.Kind)
	assert.True(t, resp.Refresh)

	rec = e.do(t, http.MethodGet, "/api/v1/doctors/doc-1/slots?date=2026-10-26", nil)
	assert.Len(t, decodeBody[slotsResponse](t, rec).Slots, 2)
}

func TestCreateBooking_Validation(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/bookings", map[string]string{"doctor_id": "doc-1"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/bookings", map[string]any{"doctor_id": "doc-1", "surprise": true})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := bookingBody("9am")
	rec = e.do(t, http.MethodPost, "/api/v1/bookings", body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body = bookingBody("09:00")
	body["doctor_id"] = "doc-404"
	rec = e.do(t, http.MethodPost, "/api/v1/bookings", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateBooking_IdempotentReplay(t *testing.T) {
	e := newEnv(t)

	first := e.do(t, http.MethodPost, "/api/v1/bookings", bookingBody("10:00"), IdempotencyKeyHeader, "key-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := e.do(t, http.MethodPost, "/api/v1/bookings", bookingBody("10:00"), IdempotencyKeyHeader, "key-1")

	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 1, e.bookings.creates)
}

func TestCreateBooking_RetryAfterLostResponse(t *testing.T) {
	e := newEnv(t)
	// The first attempt committed, but its response never reached the client.
	committed, err := e.bookings.CreateAppointment(context.Background(), model.CreateAppointmentRequest{
		DoctorID:    "doc-1",
		PatientID:   "pat-1",
		StartTime:   time.Date(2026, 10, 26, 10, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2026, 10, 26, 10, 50, 0, 0, time.UTC),
		Idempotency: model.BookingIdempotencyKey("pat-1", "key-lost"),
	})
	require.NoError(t, err)

	rec := e.do(t, http.MethodPost, "/api/v1/bookings", bookingBody("10:00"), IdempotencyKeyHeader, "key-lost")

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "true", rec.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, committed.ID, decodeBody[createBookingResponse](t, rec).Appointment.AppointmentID)
	assert.Equal(t, 1, e.bookings.creates)
}

func TestCreateBooking_ConcurrentDuplicatesShareOneAppointment(t *testing.T) {
	e := newEnv(t)

	const n = 8
	recs := make([]*httptest.ResponseRecorder, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			recs[i] = e.do(t, http.MethodPost, "/api/v1/bookings", bookingBody("09:00"), IdempotencyKeyHeader, "key-dup")
		}(i)
	}
	wg.Wait()

	ids := map[string]bool{}
	for _, rec := range recs {
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		ids[decodeBody[createBookingResponse](t, rec).Appointment.AppointmentID] = true
	}
	assert.Len(t, ids, 1)
	assert.Len(t, e.bookings.appts, 1)
}

func TestCreateBooking_RefusalIsReplayed(t *testing.T) {
	e := newEnv(t)
	body := bookingBody("09:00")
	body["doctor_id"] = "doc-404"

	first := e.do(t, http.MethodPost, "/api/v1/bookings", body, IdempotencyKeyHeader, "key-404")
	require.Equal(t, http.StatusNotFound, first.Code)
	assert.Empty(t, first.Header().Get("Idempotent-Replayed"))

	second := e.do(t, http.MethodPost, "/api/v1/bookings", body, IdempotencyKeyHeader, "key-404")
	assert.Equal(t, http.StatusNotFound, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestCreateBooking_RecordFailureStillAnswers(t *testing.T) {
	e := newEnv(t)
	e.idem.recordErr = errors.New("db down")
	body := bookingBody("09:00")
	body["doctor_id"] = "doc-404"

	rec := e.do(t, http.MethodPost, "/api/v1/bookings", body, IdempotencyKeyHeader, "key-x")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Header().Get("Idempotent-Replayed"))
}

func TestCancelFreesSlot(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/api/v1/bookings", bookingBody("08:00"))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[createBookingResponse](t, rec).Appointment.AppointmentID

	rec = e.do(t, http.MethodPost, "/api/v1/appointments/"+id+"/cancel", map[string]string{"reason": "sick"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cancelled := decodeBody[appointmentResponse](t, rec)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Equal(t, "sick", cancelled.CancelReason)

	rec = e.do(t, http.MethodGet, "/api/v1/doctors/doc-1/slots?date=2026-10-26", nil)
	assert.Len(t, decodeBody[slotsResponse](t, rec).Slots, 3)

	rec = e.do(t, http.MethodPost, "/api/v1/appointments/nope/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
