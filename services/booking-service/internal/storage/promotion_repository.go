package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/docslot/libs/db"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/model"
	"github.com/shopspring/decimal"
)

type PromotionRepository struct {
	pool *db.Pool
}

func NewPromotionRepository(pool *db.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

func (r *PromotionRepository) GetPromotionByCode(ctx context.Context, code string) (*model.Promotion, error) {
	var (
		p      model.Promotion
		dtype  string
		value  string
		endsAt *time.Time
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, code, discount_type, discount_value::text, starts_at, ends_at,
			usage_limit, used_count, is_active
		FROM promotions
		WHERE upper(code) = upper($1)
	`, code).Scan(&p.ID, &p.Code, &dtype, &value, &p.StartsAt, &endsAt, &p.UsageLimit, &p.UsedCount, &p.IsActive)
	if err != nil {
		return nil, classify(err, "promotion code not found")
	}
	p.DiscountType = model.DiscountType(dtype)
	p.EndsAt = endsAt
	if p.DiscountValue, err = decimal.NewFromString(value); err != nil {
		return nil, err
	}
	return &p, nil
}
