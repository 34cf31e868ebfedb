package promotions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func valid() *model.Promotion {
	end := now.Add(24 * time.Hour)
	return &model.Promotion{
		Code:          "OCT20",
		DiscountType:  model.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(20),
		StartsAt:      now.Add(-24 * time.Hour),
		EndsAt:        &end,
		UsageLimit:    10,
		UsedCount:     3,
		IsActive:      true,
	}
}

func TestValidate(t *testing.T) {
	past := now.Add(-time.Minute)
	cases := []struct {
		name   string
		mutate func(p *model.Promotion)
		want   error
	}{
		{"ok", func(p *model.Promotion) {}, nil},
		{"inactive", func(p *model.Promotion) { p.IsActive = false }, ErrInactive},
		{"not started", func(p *model.Promotion) { p.StartsAt = now.Add(time.Hour) }, ErrNotStarted},
		{"expired", func(p *model.Promotion) { p.EndsAt = &past }, ErrExpired},
		{"ends exactly now", func(p *model.Promotion) { p.EndsAt = &now }, ErrExpired},
		{"no end date", func(p *model.Promotion) { p.EndsAt = nil }, nil},
		{"usage exhausted", func(p *model.Promotion) { p.UsedCount = 10 }, ErrUsageExceeded},
		{"unlimited usage", func(p *model.Promotion) { p.UsageLimit = 0; p.UsedCount = 999 }, nil},
		{"percentage over 100", func(p *model.Promotion) { p.DiscountValue = decimal.NewFromInt(101) }, ErrInvalidValue},
		{"zero fixed", func(p *model.Promotion) {
			p.DiscountType = model.DiscountFixedAmount
			p.DiscountValue = decimal.Zero
		}, ErrInvalidValue},
		{"unknown type", func(p *model.Promotion) { p.DiscountType = "" }, ErrInvalidValue},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := valid()
			tc.mutate(p)
			err := Validate(p, now)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.ErrorIs(t, Validate(nil, now), ErrNotFound)
}

type lookupFunc func(ctx context.Context, code string) (*model.Promotion, error)

func (f lookupFunc) GetPromotionByCode(ctx context.Context, code string) (*model.Promotion, error) {
	return f(ctx, code)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	var seen string
	p, err := Resolve(ctx, lookupFunc(func(_ context.Context, code string) (*model.Promotion, error) {
		seen = code
		return valid(), nil
	}), "  oct20 ", now)
	require.NoError(t, err)
	assert.Equal(t, "OCT20", seen)
	assert.Equal(t, "OCT20", p.Code)

	p, err = Resolve(ctx, nil, "", now)
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestResolve_Rejections(t *testing.T) {
	ctx := context.Background()

	_, err := Resolve(ctx, lookupFunc(func(context.Context, string) (*model.Promotion, error) {
		return nil, apperr.New(apperr.KindNotFound, "promotion not found")
	}), "NOPE", now)
	assert.True(t, errors.Is(err, apperr.Validation))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "promotion code not found", apperr.ReasonOf(err))

	_, err = Resolve(ctx, lookupFunc(func(context.Context, string) (*model.Promotion, error) {
		p := valid()
		p.UsedCount = p.UsageLimit
		return p, nil
	}), "OCT20", now)
	assert.True(t, errors.Is(err, apperr.Validation))
	assert.Equal(t, "promotion usage limit reached", apperr.ReasonOf(err))

	_, err = Resolve(ctx, lookupFunc(func(context.Context, string) (*model.Promotion, error) {
		return nil, errors.New("dial tcp: timeout")
	}), "OCT20", now)
	assert.True(t, errors.Is(err, apperr.Transport))
}
