package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// cleanupInterval is how often expired in-memory entries are purged.
const cleanupInterval = 10 * time.Minute

// Memory is a Store backed by an in-process go-cache map. Its content does
// not survive a restart.
type Memory struct {
	db *gocache.Cache
}

// NewMemory builds an in-memory store. ttl <= 0 disables expiry.
func NewMemory(ttl time.Duration) *Memory {
	exp := ttl
	cleanup := cleanupInterval

	if ttl <= 0 {
		exp = gocache.NoExpiration
		cleanup = -1
	}

	return &Memory{db: gocache.New(exp, cleanup)}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	x, found := m.db.Get(key)
	if !found {
		return nil, false, nil
	}

	data, ok := x.([]byte)
	if !ok {
		return nil, false, nil
	}

	return data, true, nil
}

// Set implements Store. The value is copied.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	data := make([]byte, len(value))
	copy(data, value)
	m.db.Set(key, data, gocache.DefaultExpiration)

	return nil
}

// InvalidateAll implements Store.
func (m *Memory) InvalidateAll(_ context.Context) error {
	m.db.Flush()
	return nil
}

// Len reports the number of entries, including expired ones not yet purged.
func (m *Memory) Len() int {
	return m.db.ItemCount()
}

// Close implements Store.
func (m *Memory) Close() error {
	m.db.Flush()
	return nil
}
