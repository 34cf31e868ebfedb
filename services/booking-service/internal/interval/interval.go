// Package interval holds the half-open time range primitives used across slot resolution.
//
// Two flavours exist: Clock/Span for time-of-day values on a single calendar date,
// compared as minutes since midnight, and Range for absolute instants.
// Both treat the end as exclusive, so [08:00,08:50) and [08:50,09:40) do not overlap.
package interval

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidInterval = errors.New("interval start must be before end")

// Clock is a time of day in minutes since midnight.
type Clock int

const (
	MinutesPerDay       = 24 * 60
	dateLayout          = "2006-01-02"
	maxClock      Clock = MinutesPerDay
)

// ParseClock accepts "HH:MM" or "HH:MM:SS" (seconds are dropped). "24:00" is allowed as an end of day.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || len(parts[0]) == 0 || len(parts[0]) > 2 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || len(parts[1]) != 2 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if len(parts) == 3 {
		sec, err := strconv.Atoi(parts[2])
		if err != nil || len(parts[2]) != 2 || sec < 0 || sec > 59 {
			return 0, fmt.Errorf("invalid second in %q", s)
		}
	}
	c := Clock(h*60 + m)
	if h < 0 || c > maxClock {
		return 0, fmt.Errorf("time of day %q out of range", s)
	}
	return c, nil
}

func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) Duration() time.Duration {
	return time.Duration(c) * time.Minute
}

// Overlaps is the strict half-open test: aStart < bEnd && aEnd > bStart.
func Overlaps(aStart, aEnd, bStart, bEnd Clock) bool {
	return aStart < bEnd && aEnd > bStart
}

// Contains reports whether [innerStart,innerEnd) lies fully within [outerStart,outerEnd).
func Contains(outerStart, outerEnd, innerStart, innerEnd Clock) bool {
	return outerStart <= innerStart && innerEnd <= outerEnd && innerStart < innerEnd
}

// Span is a time-of-day interval on one calendar date.
type Span struct {
	Start Clock
	End   Clock
}

func NewSpan(start, end string) (Span, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Span{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Span{}, err
	}
	span := Span{Start: s, End: e}
	if err := span.Validate(); err != nil {
		return Span{}, err
	}
	return span, nil
}

func (s Span) Validate() error {
	if s.Start < 0 || s.End > maxClock || s.Start >= s.End {
		return fmt.Errorf("%w: [%s, %s)", ErrInvalidInterval, s.Start, s.End)
	}
	return nil
}

func (s Span) Overlaps(o Span) bool { return Overlaps(s.Start, s.End, o.Start, o.End) }

func (s Span) Contains(o Span) bool { return Contains(s.Start, s.End, o.Start, o.End) }

func (s Span) Minutes() int { return int(s.End - s.Start) }

// On anchors the span to a calendar date in loc.
func (s Span) On(date time.Time, loc *time.Location) Range {
	return Range{Start: At(date, s.Start, loc), End: At(date, s.End, loc)}
}

// Range is an absolute half-open interval.
type Range struct {
	Start time.Time
	End   time.Time
}

func (r Range) Valid() bool { return r.End.After(r.Start) }

// Overlaps: [start,end) overlaps [o.Start,o.End) iff start < o.End && o.Start < end.
func (r Range) Overlaps(o Range) bool {
	return r.Start.Before(o.End) && o.Start.Before(r.End)
}

func (r Range) OverlapsAny(busy []Range) bool {
	for _, b := range busy {
		if r.Overlaps(b) {
			return true
		}
	}
	return false
}

func (r Range) Duration() time.Duration { return r.End.Sub(r.Start) }

// At returns the instant at wall clock c on date's calendar day in loc.
// Clock 24:00 is midnight of the next day.
func At(date time.Time, c Clock, loc *time.Location) time.Time {
	y, m, d := date.In(loc).Date()
	return time.Date(y, m, d, 0, int(c), 0, 0, loc)
}

// DayStart truncates t to midnight of its calendar day in loc.
func DayStart(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// CalendarDays counts the days in [from, to] by calendar date in loc, so a
// 23- or 25-hour DST day still counts as one.
func CalendarDays(from, to time.Time, loc *time.Location) int {
	fy, fm, fd := from.In(loc).Date()
	ty, tm, td := to.In(loc).Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a)/(24*time.Hour)) + 1
}

func SameDay(a, b time.Time, loc *time.Location) bool {
	return DayStart(a, loc).Equal(DayStart(b, loc))
}

func ParseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return d, nil
}

func FormatDate(t time.Time) string { return t.Format(dateLayout) }

// ISOWeekday maps Monday=1 … Sunday=7.
func ISOWeekday(date time.Time) int {
	wd := int(date.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
