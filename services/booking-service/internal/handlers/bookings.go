package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type bookingRequest struct {
	DoctorID      string `json:"doctor_id" validate:"required,max=64"`
	PatientID     string `json:"patient_id" validate:"required,max=128"`
	Date          string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime     string `json:"start_time" validate:"required"`
	PromotionCode string `json:"promotion_code" validate:"max=64"`
}

type quoteResponse struct {
	State booking.State `json:"state"`
	Draft booking.Draft `json:"draft"`
}

type appointmentResponse struct {
	AppointmentID  string           `json:"appointment_id"`
	DoctorID       string           `json:"doctor_id"`
	PatientID      string           `json:"patient_id"`
	Status         string           `json:"status"`
	StartTime      time.Time        `json:"start_time"`
	EndTime        time.Time        `json:"end_time"`
	SourceType     model.SourceType `json:"source_type,omitempty"`
	Fee            decimal.Decimal  `json:"fee"`
	DiscountAmount decimal.Decimal  `json:"discount_amount"`
	FinalPrice     decimal.Decimal  `json:"final_price"`
	PromotionCode  string           `json:"promotion_code,omitempty"`
	CancelledAt    *time.Time       `json:"cancelled_at,omitempty"`
	CancelReason   string           `json:"cancel_reason,omitempty"`
}

type createBookingResponse struct {
	State       booking.State       `json:"state"`
	Appointment appointmentResponse `json:"appointment"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	return appointmentResponse{
		AppointmentID:  a.ID,
		DoctorID:       a.DoctorID,
		PatientID:      a.PatientID,
		Status:         string(a.Status),
		StartTime:      a.StartTime,
		EndTime:        a.EndTime,
		SourceType:     a.SourceType,
		Fee:            a.Fee,
		DiscountAmount: a.DiscountAmount,
		FinalPrice:     a.FinalPrice,
		PromotionCode:  a.PromotionCode,
		CancelledAt:    a.CancelledAt,
		CancelReason:   a.CancelReason,
	}
}

func (h *Handler) selectRequest(req bookingRequest) (booking.SelectRequest, error) {
	date, err := interval.ParseDate(req.Date, h.avail.Location())
	if err != nil {
		return booking.SelectRequest{}, apperr.Wrap(apperr.KindValidation, err.Error(), err)
	}
	start, err := interval.ParseClock(req.StartTime)
	if err != nil {
		return booking.SelectRequest{}, apperr.Wrap(apperr.KindValidation, "invalid start_time (want HH:MM)", err)
	}
	return booking.SelectRequest{
		DoctorID:      strings.TrimSpace(req.DoctorID),
		PatientID:     strings.TrimSpace(req.PatientID),
		Date:          date,
		Start:         start,
		PromotionCode: req.PromotionCode,
	}, nil
}

// Quote selects a slot, prices it and stores the summary as a draft. Nothing is booked.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	sel, err := h.selectRequest(req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	tx, err := h.bookings.Select(r.Context(), sel)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	draft, err := h.bookings.Review(r.Context(), tx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{State: tx.State, Draft: draft})
}

func (h *Handler) Draft(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	patientID, doctorID := strings.TrimSpace(q.Get("patient_id")), strings.TrimSpace(q.Get("doctor_id"))
	if patientID == "" || doctorID == "" {
		h.writeError(w, r, apperr.Invalid("patient_id and doctor_id are required"))
		return
	}
	d, err := h.bookings.LoadDraft(r.Context(), patientID, doctorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// CreateBooking submits exactly one booking. A conflict answers 409 with
// refresh=true; the client must re-query availability before trying again.
//
// With an Idempotency-Key header, the first final answer for that key is
// replayed for retries. A confirmed booking claims the key in the same
// transaction as the appointment, so a retry after a lost response gets the
// appointment back rather than a conflict with itself. Transport failures are
// not recorded.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	sel, err := h.selectRequest(req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if key == "" || h.idem == nil {
		status, body, err := h.book(r, sel)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeRaw(w, status, body)
		return
	}
	if len(key) > 128 {
		h.writeError(w, r, apperr.Invalid("Idempotency-Key is too long"))
		return
	}

	ik := model.BookingIdempotencyKey(sel.PatientID, key)
	res, ok, err := h.idem.Lookup(r.Context(), ik)
	if err != nil {
		h.writeError(w, r, apperr.TransportFailure("could not read idempotency key", err))
		return
	}
	if ok {
		h.replay(w, r, res)
		return
	}

	sel.IdempotencyKey = key
	status, body, err := h.book(r, sel)
	// The answer is final now; a cancelled request must not lose the record.
	ctx := context.WithoutCancel(r.Context())
	if err != nil {
		// A concurrent duplicate may have booked with this key meanwhile.
		if res, ok, lerr := h.idem.Lookup(ctx, ik); lerr == nil && ok {
			h.replay(w, r, res)
			return
		}
		h.writeError(w, r, err)
		return
	}
	if status == http.StatusCreated {
		writeRaw(w, status, body)
		return
	}

	res, err = h.idem.Record(ctx, ik, status, body)
	if err != nil {
		h.logger(r).Warn("record idempotency key failed", zap.Error(err))
		writeRaw(w, status, body)
		return
	}
	if res.Replayed {
		h.replay(w, r, res)
		return
	}
	writeRaw(w, status, body)
}

// book runs the booking and renders the final answer. Validation and
// conflict refusals are answers; transport and internal failures are errors.
func (h *Handler) book(r *http.Request, sel booking.SelectRequest) (int, []byte, error) {
	tx, err := h.bookings.Book(r.Context(), sel)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindTransport, apperr.KindInternal:
			return 0, nil, err
		}
		status, body := errorBody(err)
		h.logFailure(r, status, err)
		return status, body, nil
	}
	body, err := confirmedBody(*tx.Appointment)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, body, nil
}

func confirmedBody(a model.Appointment) ([]byte, error) {
	return json.Marshal(createBookingResponse{State: booking.StateConfirmed, Appointment: toAppointmentResponse(a)})
}

func (h *Handler) replay(w http.ResponseWriter, r *http.Request, res storage.IdempotentResult) {
	body := res.Body
	if res.Appointment != nil {
		var err error
		if body, err = confirmedBody(*res.Appointment); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	w.Header().Set("Idempotent-Replayed", "true")
	writeRaw(w, res.StatusCode, body)
}

func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := h.decode(r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	appt, err := h.bookings.Cancel(r.Context(), chi.URLParam(r, "appointmentID"), strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}
