// Package promotions decides whether a promotion code may be applied to a booking.
package promotions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/model"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

var (
	ErrNotFound      = errors.New("promotion code not found")
	ErrInactive      = errors.New("promotion is not active")
	ErrNotStarted    = errors.New("promotion has not started")
	ErrExpired       = errors.New("promotion has expired")
	ErrUsageExceeded = errors.New("promotion usage limit reached")
	ErrInvalidValue  = errors.New("promotion has an invalid discount value")
)

type Lookup interface {
	GetPromotionByCode(ctx context.Context, code string) (*model.Promotion, error)
}

// Validate checks the active window and usage limit at now.
func Validate(p *model.Promotion, now time.Time) error {
	if p == nil {
		return ErrNotFound
	}
	if !p.IsActive {
		return ErrInactive
	}
	if !p.StartsAt.IsZero() && now.Before(p.StartsAt) {
		return ErrNotStarted
	}
	if p.EndsAt != nil && !now.Before(*p.EndsAt) {
		return ErrExpired
	}
	if p.UsageLimit > 0 && p.UsedCount >= p.UsageLimit {
		return ErrUsageExceeded
	}
	switch p.DiscountType {
	case model.DiscountPercentage:
		if !p.DiscountValue.IsPositive() || p.DiscountValue.GreaterThan(hundred) {
			return ErrInvalidValue
		}
	case model.DiscountFixedAmount:
		if !p.DiscountValue.IsPositive() {
			return ErrInvalidValue
		}
	default:
		return ErrInvalidValue
	}
	return nil
}

// Resolve looks code up and validates it. An empty code means "no promotion" and
// returns nil, nil. Every rejection is a validation error carrying a user-facing reason.
func Resolve(ctx context.Context, lookup Lookup, code string, now time.Time) (*model.Promotion, error) {
	code = Normalize(code)
	if code == "" {
		return nil, nil
	}
	p, err := lookup.GetPromotionByCode(ctx, code)
	if err != nil {
		if errors.Is(err, apperr.NotFound) || errors.Is(err, ErrNotFound) {
			return nil, apperr.Wrap(apperr.KindValidation, ErrNotFound.Error(), ErrNotFound)
		}
		if apperr.KindOf(err) != apperr.KindInternal {
			return nil, err
		}
		return nil, apperr.TransportFailure("could not look up promotion", err)
	}
	if err := Validate(p, now); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err.Error(), err)
	}
	return p, nil
}

func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
