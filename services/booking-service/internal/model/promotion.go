package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage  DiscountType = "Percentage"
	DiscountFixedAmount DiscountType = "FixedAmount"
)

type Promotion struct {
	ID            string
	Code          string
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	StartsAt      time.Time
	EndsAt        *time.Time
	UsageLimit    int // 0 means unlimited
	UsedCount     int
	IsActive      bool
}
