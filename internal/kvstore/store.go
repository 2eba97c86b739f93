// Package kvstore is the local key-value store used for capture records.
// Values are opaque strings; no schema versioning or transactions beyond
// what the backend gives.
package kvstore

import (
	"context"
	"fmt"
	"sync"
)

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// Open picks a backend by name. Redis and Postgres read their
// connection settings from the environment.
func Open(backend string) (Store, func() error, error) {
	switch backend {
	case "", "memory":
		return NewMemory(), func() error { return nil }, nil
	case "redis":
		rc := OpenRedisFromEnv()
		return NewRedis(rc, "leads:"), rc.Close, nil
	case "postgres":
		pg, err := OpenPostgresFromEnv()
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", backend)
}
