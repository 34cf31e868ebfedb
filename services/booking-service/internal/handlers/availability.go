package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/model"
)

type slotResponse struct {
	StartTime   string           `json:"start_time"`
	EndTime     string           `json:"end_time"`
	StartAt     time.Time        `json:"start_at"`
	EndAt       time.Time        `json:"end_at"`
	DurationMin int              `json:"duration_minutes"`
	SourceType  model.SourceType `json:"source_type"`
	SourceID    string           `json:"source_id"`
	Reason      string           `json:"reason,omitempty"`
}

type slotsResponse struct {
	DoctorID string         `json:"doctor_id"`
	Date     string         `json:"date"`
	Slots    []slotResponse `json:"slots"`
}

type bookableResponse struct {
	DoctorID string `json:"doctor_id"`
	Date     string `json:"date"`
	Bookable bool   `json:"bookable"`
}

type calendarResponse struct {
	DoctorID string   `json:"doctor_id"`
	From     string   `json:"from"`
	To       string   `json:"to"`
	Dates    []string `json:"dates"`
}

func (h *Handler) queryDate(r *http.Request, key string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return time.Time{}, apperr.Invalid(key + " is required")
	}
	d, err := interval.ParseDate(raw, h.avail.Location())
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.KindValidation, "invalid "+key+" (want YYYY-MM-DD)", err)
	}
	return d, nil
}

func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	date, err := h.queryDate(r, "date")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	slots, err := h.avail.GetAvailableSlots(r.Context(), doctorID, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	loc := h.avail.Location()
	resp := slotsResponse{DoctorID: doctorID, Date: interval.FormatDate(date), Slots: make([]slotResponse, 0, len(slots))}
	for _, s := range slots {
		abs := s.Span.On(date, loc)
		resp.Slots = append(resp.Slots, slotResponse{
			StartTime:   s.Span.Start.String(),
			EndTime:     s.Span.End.String(),
			StartAt:     abs.Start,
			EndAt:       abs.End,
			DurationMin: s.Span.Minutes(),
			SourceType:  s.SourceType,
			SourceID:    s.SourceID,
			Reason:      s.Reason,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Bookable may report true for a date whose slot list is empty; see availability.Result.Bookable.
func (h *Handler) Bookable(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	date, err := h.queryDate(r, "date")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok, err := h.avail.IsDateBookable(r.Context(), doctorID, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookableResponse{DoctorID: doctorID, Date: interval.FormatDate(date), Bookable: ok})
}

func (h *Handler) Calendar(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	from, err := h.queryDate(r, "from")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	to, err := h.queryDate(r, "to")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dates, err := h.avail.BookableDates(r.Context(), doctorID, from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := calendarResponse{DoctorID: doctorID, From: interval.FormatDate(from), To: interval.FormatDate(to), Dates: make([]string, 0, len(dates))}
	for _, d := range dates {
		resp.Dates = append(resp.Dates, interval.FormatDate(d))
	}
	writeJSON(w, http.StatusOK, resp)
}
