// Package resolver merges a doctor's weekly template with a date's classified
// overrides into a sorted list of non-overlapping candidate slots.
package resolver

import (
	"fmt"
	"sort"
	"time"

	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/overrides"
)

// Resolve returns the candidate slots for date.
//
// weekly may hold the doctor's whole template; entries for other weekdays and
// unavailable entries are ignored. A regular entry is dropped when it overlaps
// any non-working override, and also when it overlaps any working override,
// which replaces it. Working overrides are emitted as Override slots. The
// result is sorted by start and never contains two overlapping slots; an empty
// result means the date is closed.
func Resolve(date time.Time, weekly []model.WeeklyScheduleEntry, classified overrides.Classified) []model.ResolvedSlot {
	dow := interval.ISOWeekday(date)

	out := make([]model.ResolvedSlot, 0, len(weekly)+len(classified.Working))
	for _, e := range weekly {
		if e.DayOfWeek != dow || !e.IsAvailable {
			continue
		}
		if e.Span.Validate() != nil {
			continue
		}
		if overlapsAny(e.Span, classified.NonWorking) || overlapsAny(e.Span, classified.Working) {
			continue
		}
		out = append(out, model.ResolvedSlot{
			Span:       e.Span,
			SourceType: model.SourceRegular,
			SourceID:   regularSourceID(e),
		})
	}
	for _, o := range classified.Working {
		if o.Span.Validate() != nil {
			continue
		}
		out = append(out, model.ResolvedSlot{
			Span:       o.Span,
			SourceType: model.SourceOverride,
			Reason:     o.Reason,
			SourceID:   "override:" + o.ID,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return dedupe(out)
}

func overlapsAny(s interval.Span, list []model.ScheduleOverride) bool {
	for _, o := range list {
		if s.Overlaps(o.Span) {
			return true
		}
	}
	return false
}

// Overrides sort ahead of regular slots with the same start so the greedy pass keeps them.
func less(a, b model.ResolvedSlot) bool {
	if a.Span.Start != b.Span.Start {
		return a.Span.Start < b.Span.Start
	}
	if a.SourceType != b.SourceType {
		return a.SourceType == model.SourceOverride
	}
	if a.Span.End != b.Span.End {
		return a.Span.End < b.Span.End
	}
	return a.SourceID < b.SourceID
}

// dedupe keeps the earliest slot of any overlapping run. Input must be sorted by start,
// so comparing against the last kept slot is enough.
func dedupe(sorted []model.ResolvedSlot) []model.ResolvedSlot {
	out := sorted[:0]
	for _, s := range sorted {
		if n := len(out); n > 0 && out[n-1].Span.Overlaps(s.Span) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func regularSourceID(e model.WeeklyScheduleEntry) string {
	if e.ID != "" {
		return "regular:" + e.ID
	}
	return fmt.Sprintf("regular:%d:%s-%s", e.DayOfWeek, e.Span.Start, e.Span.End)
}
