package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/model"
	"go.uber.org/zap"
)

type weeklyEntryRequest struct {
	DayOfWeek   int    `json:"day_of_week" validate:"min=1,max=7"`
	StartTime   string `json:"start_time" validate:"required"`
	EndTime     string `json:"end_time" validate:"required"`
	IsAvailable *bool  `json:"is_available"`
}

type replaceSchedulesRequest struct {
	Entries []weeklyEntryRequest `json:"entries" validate:"dive"`
}

type weeklyEntryResponse struct {
	ID          string `json:"id"`
	DayOfWeek   int    `json:"day_of_week"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	IsAvailable bool   `json:"is_available"`
}

type overrideRequest struct {
	Date         string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime    string `json:"start_time" validate:"required"`
	EndTime      string `json:"end_time" validate:"required"`
	OverrideType string `json:"override_type"`
	IsAvailable  bool   `json:"is_available"`
	Reason       string `json:"reason" validate:"max=500"`
}

type overrideResponse struct {
	ID           string `json:"id"`
	Date         string `json:"date"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	OverrideType string `json:"override_type"`
	IsAvailable  bool   `json:"is_available"`
	Reason       string `json:"reason,omitempty"`
}

// parseSpan rejects malformed or inverted intervals before they reach storage.
func parseSpan(start, end string) (interval.Span, error) {
	span, err := interval.NewSpan(start, end)
	if err != nil {
		return interval.Span{}, apperr.Wrap(apperr.KindInvalidInterval, err.Error(), err)
	}
	return span, nil
}

func (h *Handler) ReplaceSchedules(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	var req replaceSchedulesRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	entries := make([]model.WeeklyScheduleEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		span, err := parseSpan(e.StartTime, e.EndTime)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		available := true
		if e.IsAvailable != nil {
			available = *e.IsAvailable
		}
		entries = append(entries, model.WeeklyScheduleEntry{DoctorID: doctorID, DayOfWeek: e.DayOfWeek, Span: span, IsAvailable: available})
	}

	saved, err := h.schedules.ReplaceWeeklySchedules(r.Context(), doctorID, entries)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.invalidate(r, doctorID)

	resp := make([]weeklyEntryResponse, 0, len(saved))
	for _, e := range saved {
		resp = append(resp, weeklyEntryResponse{
			ID: e.ID, DayOfWeek: e.DayOfWeek, StartTime: e.Span.Start.String(), EndTime: e.Span.End.String(), IsAvailable: e.IsAvailable,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"doctor_id": doctorID, "entries": resp})
}

func (h *Handler) CreateOverride(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	var req overrideRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	span, err := parseSpan(req.StartTime, req.EndTime)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	date, err := interval.ParseDate(req.Date, h.avail.Location())
	if err != nil {
		h.writeError(w, r, apperr.Wrap(apperr.KindValidation, err.Error(), err))
		return
	}

	o, err := h.schedules.CreateOverride(r.Context(), model.ScheduleOverride{
		DoctorID:     doctorID,
		OverrideDate: date,
		Span:         span,
		Type:         model.ParseOverrideType(req.OverrideType),
		IsAvailable:  req.IsAvailable,
		Reason:       req.Reason,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.invalidate(r, doctorID)

	otype := o.Type
	if otype == model.OverrideUnspecified {
		otype = model.OverrideNotWorking
	}
	writeJSON(w, http.StatusCreated, overrideResponse{
		ID:           o.ID,
		Date:         interval.FormatDate(o.OverrideDate),
		StartTime:    o.Span.Start.String(),
		EndTime:      o.Span.End.String(),
		OverrideType: string(otype),
		IsAvailable:  o.IsAvailable,
		Reason:       o.Reason,
	})
}

func (h *Handler) DeleteOverride(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	if err := h.schedules.DeleteOverride(r.Context(), doctorID, chi.URLParam(r, "overrideID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.invalidate(r, doctorID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) invalidate(r *http.Request, doctorID string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Invalidate(context.WithoutCancel(r.Context()), doctorID); err != nil {
		h.logger(r).Warn("schedule cache invalidate failed", zap.String("doctor_id", doctorID), zap.Error(err))
	}
}
