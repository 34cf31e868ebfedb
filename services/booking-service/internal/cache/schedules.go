// Package cache keeps a doctor's schedule template and overrides in Redis so
// repeated availability queries do not hit PostgreSQL.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Source is the uncached schedule store.
type Source interface {
	ListWeeklySchedules(ctx context.Context, doctorID string) ([]model.WeeklyScheduleEntry, error)
	ListOverrides(ctx context.Context, doctorID string) ([]model.ScheduleOverride, error)
}

// Schedules is a read-through cache in front of Source. Redis errors are logged
// and the call falls through to Source; they never fail a read.
type Schedules struct {
	src    Source
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewSchedules(src Source, client *redis.Client, ttl time.Duration, log *zap.Logger) *Schedules {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Schedules{src: src, client: client, ttl: ttl, log: log}
}

func weeklyKey(doctorID string) string   { return "schedule:weekly:" + doctorID }
func overrideKey(doctorID string) string { return "schedule:overrides:" + doctorID }

// versionKey counts schedule writes for a doctor. A fill only lands if the
// count is unchanged since before its load, so a reader that loaded the old
// schedule cannot overwrite an invalidation.
func versionKey(doctorID string) string { return "schedule:version:" + doctorID }

// KEYS[1] version, KEYS[2] entry; ARGV[1] version seen before the load ("" if unset),
// ARGV[2] payload, ARGV[3] ttl in ms.
var fillIfUnchanged = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if (v or "") ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

func (c *Schedules) ListWeeklySchedules(ctx context.Context, doctorID string) ([]model.WeeklyScheduleEntry, error) {
	return readThrough(ctx, c, doctorID, weeklyKey(doctorID), func() ([]model.WeeklyScheduleEntry, error) {
		return c.src.ListWeeklySchedules(ctx, doctorID)
	})
}

func (c *Schedules) ListOverrides(ctx context.Context, doctorID string) ([]model.ScheduleOverride, error) {
	return readThrough(ctx, c, doctorID, overrideKey(doctorID), func() ([]model.ScheduleOverride, error) {
		return c.src.ListOverrides(ctx, doctorID)
	})
}

// Invalidate drops both cached lists for doctorID and fences out fills that
// loaded before the write. Call it after any schedule write has committed.
func (c *Schedules) Invalidate(ctx context.Context, doctorID string) error {
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, versionKey(doctorID))
		p.Del(ctx, weeklyKey(doctorID), overrideKey(doctorID))
		return nil
	})
	return err
}

func readThrough[T any](ctx context.Context, c *Schedules, doctorID, key string, load func() ([]T, error)) ([]T, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v []T
		if err := json.Unmarshal(b, &v); err == nil {
			return v, nil
		}
		c.log.Warn("schedule cache entry unreadable", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("schedule cache get failed", zap.String("key", key), zap.Error(err))
	}

	version, verr := c.client.Get(ctx, versionKey(doctorID)).Result()
	if verr != nil && !errors.Is(verr, redis.Nil) {
		c.log.Warn("schedule cache version read failed", zap.String("key", key), zap.Error(verr))
	}

	v, err := load()
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = []T{}
	}
	enc, err := json.Marshal(v)
	if err != nil {
		return v, nil
	}
	if verr != nil && !errors.Is(verr, redis.Nil) {
		return v, nil
	}
	keys := []string{versionKey(doctorID), key}
	if err := fillIfUnchanged.Run(ctx, c.client, keys, version, enc, c.ttl.Milliseconds()).Err(); err != nil {
		c.log.Warn("schedule cache set failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}
