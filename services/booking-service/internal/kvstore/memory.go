package kvstore

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

type memEntry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is an in-process Store. Values are stored encoded so readers never
// share memory with writers.
type Memory struct {
	mu   sync.Mutex
	data map[string]memEntry
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]memEntry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string, dst any) error {
	m.mu.Lock()
	e, ok := m.data[key]
	if ok && !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.data, key)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(e.data, dst)
}

func (m *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	e := memEntry{data: b}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.data[key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}
