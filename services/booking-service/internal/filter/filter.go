// Package filter removes resolved slots that can no longer be booked.
package filter

import (
	"time"

	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/model"
)

// Apply drops slots on date that start at or before now, and slots whose absolute
// interval overlaps a blocking appointment. Appointments on other dates never match
// because their instants cannot overlap the date's slots. Order is preserved.
//
// The start check compares instants, so it is not limited to today: every slot
// of a date before today starts before now, and a past date yields no slots.
func Apply(slots []model.ResolvedSlot, date, now time.Time, booked []model.BookedAppointment, loc *time.Location) []model.ResolvedSlot {
	busy := BusyRanges(booked)

	out := make([]model.ResolvedSlot, 0, len(slots))
	for _, s := range slots {
		r := s.Span.On(date, loc)
		if !r.Start.After(now) {
			continue
		}
		if r.OverlapsAny(busy) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// BusyRanges returns the intervals held by appointments whose status blocks the slot.
func BusyRanges(booked []model.BookedAppointment) []interval.Range {
	busy := make([]interval.Range, 0, len(booked))
	for _, b := range booked {
		if !b.Status.Blocks() {
			continue
		}
		r := b.Range()
		if !r.Valid() {
			continue
		}
		busy = append(busy, r)
	}
	return busy
}
