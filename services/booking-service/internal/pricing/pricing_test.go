package pricing

import (
	"testing"

	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculate_Percentage(t *testing.T) {
	q := Calculate(dec("500000"), &model.Promotion{Code: "OCT20", DiscountType: model.DiscountPercentage, DiscountValue: dec("20")})

	assert.True(t, q.FinalPrice.Equal(dec("400000")), q.FinalPrice.String())
	assert.True(t, q.DiscountAmount.Equal(dec("100000")), q.DiscountAmount.String())
	assert.True(t, q.BaseFee.Equal(dec("500000")))
	assert.Equal(t, "OCT20", q.PromotionCode)
}

func TestCalculate_NoPromotion(t *testing.T) {
	q := Calculate(dec("350000"), nil)
	assert.True(t, q.FinalPrice.Equal(dec("350000")))
	assert.True(t, q.DiscountAmount.IsZero())
	assert.Empty(t, q.PromotionCode)
}

func TestCalculate_Clamped(t *testing.T) {
	cases := []struct {
		name     string
		kind     model.DiscountType
		value    string
		discount string
		final    string
	}{
		{"percentage over 100", model.DiscountPercentage, "150", "200", "0"},
		{"fixed over fee", model.DiscountFixedAmount, "250", "200", "0"},
		{"fixed under fee", model.DiscountFixedAmount, "50.5", "50.5", "149.5"},
		{"negative value", model.DiscountFixedAmount, "-10", "0", "200"},
		{"unknown type", model.DiscountType("bogus"), "10", "0", "200"},
		{"fractional percentage", model.DiscountPercentage, "12.5", "25", "175"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := Calculate(dec("200"), &model.Promotion{DiscountType: tc.kind, DiscountValue: dec(tc.value)})
			assert.True(t, q.DiscountAmount.Equal(dec(tc.discount)), "discount %s", q.DiscountAmount)
			assert.True(t, q.FinalPrice.Equal(dec(tc.final)), "final %s", q.FinalPrice)
			assert.False(t, q.FinalPrice.IsNegative())
		})
	}
}

func TestCalculate_Rounding(t *testing.T) {
	q := Calculate(dec("99.99"), &model.Promotion{DiscountType: model.DiscountPercentage, DiscountValue: dec("33")})
	assert.Equal(t, "33", q.DiscountAmount.String())
	assert.Equal(t, "66.99", q.FinalPrice.String())
}
