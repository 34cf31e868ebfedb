package outbox

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/model"
	"github.com/shopspring/decimal"
)

// Event is the envelope written to outbox_events. The Kafka topic equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	AggregateAppointment = "appointment"

	EventAppointmentConfirmed = "booking.appointment.confirmed.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
)

type AppointmentPayload struct {
	AppointmentID  string           `json:"appointment_id"`
	DoctorID       string           `json:"doctor_id"`
	PatientID      string           `json:"patient_id"`
	StartTime      time.Time        `json:"start_time"`
	EndTime        time.Time        `json:"end_time"`
	Status         string           `json:"status"`
	SourceType     model.SourceType `json:"source_type,omitempty"`
	Fee            decimal.Decimal  `json:"fee"`
	DiscountAmount decimal.Decimal  `json:"discount_amount"`
	FinalPrice     decimal.Decimal  `json:"final_price"`
	PromotionCode  string           `json:"promotion_code,omitempty"`
	CancelReason   string           `json:"cancel_reason,omitempty"`
	OccurredAt     time.Time        `json:"occurred_at"`
}

// AppointmentEvent builds the event for a state change of appt.
func AppointmentEvent(eventType string, appt model.Appointment, at time.Time) (Event, error) {
	payload, err := json.Marshal(AppointmentPayload{
		AppointmentID:  appt.ID,
		DoctorID:       appt.DoctorID,
		PatientID:      appt.PatientID,
		StartTime:      appt.StartTime.UTC(),
		EndTime:        appt.EndTime.UTC(),
		Status:         string(appt.Status),
		SourceType:     appt.SourceType,
		Fee:            appt.Fee,
		DiscountAmount: appt.DiscountAmount,
		FinalPrice:     appt.FinalPrice,
		PromotionCode:  appt.PromotionCode,
		CancelReason:   appt.CancelReason,
		OccurredAt:     at.UTC(),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: AggregateAppointment,
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
