package model

import (
	"time"

	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/interval"
	"github.com/shopspring/decimal"
)

type AppointmentStatus string

const (
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Blocks reports whether an appointment in this status occupies its interval.
func (s AppointmentStatus) Blocks() bool {
	return s != StatusCancelled
}

// BookedAppointment is the conflict-relevant view of an appointment.
type BookedAppointment struct {
	ID        string
	DoctorID  string
	PatientID string
	StartTime time.Time
	EndTime   time.Time
	Status    AppointmentStatus
}

func (a BookedAppointment) Range() interval.Range {
	return interval.Range{Start: a.StartTime, End: a.EndTime}
}

type Appointment struct {
	ID             string
	DoctorID       string
	PatientID      string
	StartTime      time.Time
	EndTime        time.Time
	Status         AppointmentStatus
	Fee            decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalPrice     decimal.Decimal
	PromotionCode  string
	SourceType     SourceType
	SourceID       string
	CancelledAt    *time.Time
	CancelReason   string
	CreatedAt      time.Time
}

// CreateAppointmentRequest is what the booking transaction submits to the store.
type CreateAppointmentRequest struct {
	DoctorID       string
	PatientID      string
	StartTime      time.Time
	EndTime        time.Time
	Fee            decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalPrice     decimal.Decimal
	PromotionCode  string
	SourceType     SourceType
	SourceID       string
	// Idempotency, when set, is claimed in the same transaction as the insert.
	Idempotency IdempotencyKey
}

// IdempotencyKey is a client-supplied request key, unique within Scope.
type IdempotencyKey struct {
	Scope string
	Key   string
}

func (k IdempotencyKey) IsZero() bool { return k.Key == "" }

// BookingIdempotencyKey scopes key to the patient submitting the booking.
func BookingIdempotencyKey(patientID, key string) IdempotencyKey {
	if key == "" {
		return IdempotencyKey{}
	}
	return IdempotencyKey{Scope: "booking:" + patientID, Key: key}
}
