package model

import (
	"strings"
	"time"

	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/interval"
	"github.com/shopspring/decimal"
)

// WeeklyScheduleEntry is one recurring slot of a doctor's weekly template.
// Entries for the same day may overlap or arrive unsorted.
type WeeklyScheduleEntry struct {
	ID          string
	DoctorID    string
	DayOfWeek   int // 1 = Monday … 7 = Sunday
	Span        interval.Span
	IsAvailable bool
}

type OverrideType string

const (
	OverrideUnspecified OverrideType = ""
	OverrideWorking     OverrideType = "Working"
	OverrideNotWorking  OverrideType = "NotWorking"
)

// ParseOverrideType is lenient on spelling; anything unrecognised is unspecified,
// which the classifier treats as NotWorking.
func ParseOverrideType(s string) OverrideType {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "-", "_"))) {
	case "working", "work":
		return OverrideWorking
	case "notworking", "not_working", "non_working", "nonworking", "off":
		return OverrideNotWorking
	default:
		return OverrideUnspecified
	}
}

// ScheduleOverride is a one-off change anchored to a calendar date.
type ScheduleOverride struct {
	ID           string
	DoctorID     string
	OverrideDate time.Time // midnight in the clinic location
	Span         interval.Span
	Type         OverrideType
	IsAvailable  bool
	Reason       string
}

type SourceType string

const (
	SourceRegular  SourceType = "Regular"
	SourceOverride SourceType = "Override"
)

// ResolvedSlot is a derived, bookable candidate on one date. It is never persisted.
type ResolvedSlot struct {
	Span       interval.Span
	SourceType SourceType
	Reason     string
	SourceID   string
}

func (s ResolvedSlot) Duration() time.Duration {
	return time.Duration(s.Span.Minutes()) * time.Minute
}

// Doctor carries what the booking flow needs about a doctor.
type Doctor struct {
	ID              string
	Name            string
	ConsultationFee decimal.Decimal
	IsActive        bool
}
