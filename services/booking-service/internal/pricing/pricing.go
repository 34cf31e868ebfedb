// Package pricing computes what a patient pays for one consultation.
package pricing

import (
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/model"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Quote struct {
	BaseFee        decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalPrice     decimal.Decimal
	PromotionCode  string
}

// Calculate applies promo (may be nil) to fee. The discount never exceeds the fee,
// so FinalPrice is never negative. Amounts are rounded to 2 places.
func Calculate(fee decimal.Decimal, promo *model.Promotion) Quote {
	if fee.IsNegative() {
		fee = decimal.Zero
	}
	q := Quote{BaseFee: fee.Round(2), DiscountAmount: decimal.Zero, FinalPrice: fee.Round(2)}
	if promo == nil {
		return q
	}

	discount := Discount(fee, promo.DiscountType, promo.DiscountValue)
	q.DiscountAmount = discount.Round(2)
	q.FinalPrice = fee.Sub(discount).Round(2)
	q.PromotionCode = promo.Code
	return q
}

// Discount returns the amount taken off fee, clamped to [0, fee].
func Discount(fee decimal.Decimal, kind model.DiscountType, value decimal.Decimal) decimal.Decimal {
	if value.IsNegative() || fee.IsNegative() {
		return decimal.Zero
	}
	var d decimal.Decimal
	switch kind {
	case model.DiscountPercentage:
		d = fee.Mul(value).Div(hundred)
	case model.DiscountFixedAmount:
		d = value
	default:
		return decimal.Zero
	}
	if d.GreaterThan(fee) {
		return fee
	}
	return d
}
