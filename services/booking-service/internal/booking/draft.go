package booking

import (
	"time"

	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/model"
	"github.com/shopspring/decimal"
)

// Draft is the PendingConfirmation summary shown to the patient.
type Draft struct {
	DoctorID       string           `json:"doctor_id"`
	PatientID      string           `json:"patient_id"`
	Date           string           `json:"date"`
	StartTime      time.Time        `json:"start_time"`
	EndTime        time.Time        `json:"end_time"`
	DurationMin    int              `json:"duration_minutes"`
	SourceType     model.SourceType `json:"source_type"`
	SourceID       string           `json:"source_id"`
	Reason         string           `json:"reason,omitempty"`
	Fee            decimal.Decimal  `json:"fee"`
	DiscountAmount decimal.Decimal  `json:"discount_amount"`
	FinalPrice     decimal.Decimal  `json:"final_price"`
	PromotionCode  string           `json:"promotion_code,omitempty"`
}

func DraftKey(patientID, doctorID string) string {
	return "booking:draft:" + patientID + ":" + doctorID
}

func newDraft(tx *Transaction) Draft {
	return Draft{
		DoctorID:       tx.DoctorID,
		PatientID:      tx.PatientID,
		Date:           interval.FormatDate(tx.Date),
		StartTime:      tx.Range.Start,
		EndTime:        tx.Range.End,
		DurationMin:    tx.Slot.Span.Minutes(),
		SourceType:     tx.Slot.SourceType,
		SourceID:       tx.Slot.SourceID,
		Reason:         tx.Slot.Reason,
		Fee:            tx.Quote.BaseFee,
		DiscountAmount: tx.Quote.DiscountAmount,
		FinalPrice:     tx.Quote.FinalPrice,
		PromotionCode:  tx.Quote.PromotionCode,
	}
}
