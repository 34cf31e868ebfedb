// Package overrides splits a date's schedule overrides into the ones that add
// availability and the ones that remove it.
package overrides

import (
	"time"

	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/model"
)

// Classified holds two disjoint buckets. An override in neither bucket has no effect.
type Classified struct {
	Working    []model.ScheduleOverride
	NonWorking []model.ScheduleOverride
}

// Classify buckets overrides that are already known to belong to one date.
//
// NotWorking, and any override without a recognised type, suppresses availability
// whatever its IsAvailable flag says. Working counts only when IsAvailable is set;
// a Working override with IsAvailable=false is inert.
func Classify(overrides []model.ScheduleOverride) Classified {
	var c Classified
	for _, o := range overrides {
		switch o.Type {
		case model.OverrideWorking:
			if o.IsAvailable {
				c.Working = append(c.Working, o)
			}
		default:
			c.NonWorking = append(c.NonWorking, o)
		}
	}
	return c
}

// ForDate keeps the overrides anchored to date's calendar day in loc.
func ForDate(overrides []model.ScheduleOverride, date time.Time, loc *time.Location) []model.ScheduleOverride {
	var out []model.ScheduleOverride
	for _, o := range overrides {
		if interval.SameDay(o.OverrideDate, date, loc) {
			out = append(out, o)
		}
	}
	return out
}

// ClassifyForDate is ForDate followed by Classify.
func ClassifyForDate(overrides []model.ScheduleOverride, date time.Time, loc *time.Location) Classified {
	return Classify(ForDate(overrides, date, loc))
}

// HasWorking reports whether any override adds availability.
func (c Classified) HasWorking() bool { return len(c.Working) > 0 }
