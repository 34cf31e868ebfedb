// Package slotlock places a short-lived hold on a doctor's interval while a
// booking is being submitted.
//
// The hold only turns away a second submission of the same interval that
// arrives while the first is still in flight. It is not what prevents double
// booking; the store's transactional check-and-insert does that, and a hold
// that expires early or is never released is harmless.
package slotlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/interval"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrHeld = errors.New("slot is being booked by another request")

// Hold identifies an acquired lock. Release with the same Hold.
type Hold struct {
	Key   string
	Token string
}

type Locker interface {
	Acquire(ctx context.Context, doctorID string, r interval.Range) (Hold, error)
	Release(ctx context.Context, h Hold) error
}

// Key is stable for a doctor and an exact interval.
func Key(doctorID string, r interval.Range) string {
	return fmt.Sprintf("slotlock:%s:%d:%d", doctorID, r.Start.Unix(), r.End.Unix())
}

// Redis releases only when the stored token still matches.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisLocker{client: client, ttl: ttl, log: log}
}

// Acquire returns ErrHeld when another request holds the same interval.
func (l *RedisLocker) Acquire(ctx context.Context, doctorID string, r interval.Range) (Hold, error) {
	h := Hold{Key: Key(doctorID, r), Token: uuid.NewString()}
	ok, err := l.client.SetNX(ctx, h.Key, h.Token, l.ttl).Result()
	if err != nil {
		return Hold{}, fmt.Errorf("acquire slot hold: %w", err)
	}
	if !ok {
		l.log.Info("slot hold busy", zap.String("key", h.Key))
		return Hold{}, ErrHeld
	}
	return h, nil
}

func (l *RedisLocker) Release(ctx context.Context, h Hold) error {
	if h.Key == "" {
		return nil
	}
	n, err := releaseScript.Run(ctx, l.client, []string{h.Key}, h.Token).Int()
	if err != nil {
		return fmt.Errorf("release slot hold: %w", err)
	}
	if n == 0 {
		l.log.Warn("slot hold expired before release", zap.String("key", h.Key))
	}
	return nil
}

// Noop always succeeds. It is used when Redis is not configured.
type Noop struct{}

func (Noop) Acquire(_ context.Context, doctorID string, r interval.Range) (Hold, error) {
	return Hold{}, nil
}

func (Noop) Release(context.Context, Hold) error { return nil }
