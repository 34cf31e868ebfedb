// Package kvstore is the small key-value persistence the booking flow uses for
// drafts and per-user flags. Callers get a Store injected instead of reaching
// for shared global state.
package kvstore

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("kvstore: key not found")

// Store holds JSON-encodable values under string keys. A ttl <= 0 means no expiry.
type Store interface {
	Get(ctx context.Context, key string, dst any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Scoped prefixes every key, so unrelated features can share one backing store.
type Scoped struct {
	Store  Store
	Prefix string
}

func (s Scoped) Get(ctx context.Context, key string, dst any) error {
	return s.Store.Get(ctx, s.Prefix+key, dst)
}

func (s Scoped) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return s.Store.Set(ctx, s.Prefix+key, value, ttl)
}

func (s Scoped) Delete(ctx context.Context, key string) error {
	return s.Store.Delete(ctx, s.Prefix+key)
}
