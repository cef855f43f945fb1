// Package storage provides the scoped key/value store the driver persists
// application data to.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/conneroisu/payload/internal/errors"
	"github.com/conneroisu/payload/internal/logging"
)

// Supported backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Store is a byte-valued key/value store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend       string
	Path          string
	RedisAddr     string
	RedisDB       int
	RedisPassword string
	Prefix        string
}

// Open creates the configured backend.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendFile:
		return NewFile(cfg.Path)
	case BackendRedis:
		return NewRedis(RedisConfig{
			Addr:     cfg.RedisAddr,
			DB:       cfg.RedisDB,
			Password: cfg.RedisPassword,
			Prefix:   cfg.Prefix,
		}), nil
	}

	return nil, errors.NewConfigurationError(errors.ErrCodeConfigInvalid,
		fmt.Sprintf("unknown storage backend %q", cfg.Backend))
}

// Memory is an in-process store.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}

	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

// Keys returns the stored keys in order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Memory) Close() error { return nil }

// Scoped never fails its caller: every backend error is logged as a warning
// and reported as an absent value or a no-op.
type Scoped struct {
	store  Store
	logger logging.Logger
}

// Safe wraps store.
func Safe(store Store, logger logging.Logger) *Scoped {
	return &Scoped{store: store, logger: logging.OrNop(logger).WithComponent("storage")}
}

// Get returns the value under key, or false when it is missing or unreadable.
func (s *Scoped) Get(ctx context.Context, key string) ([]byte, bool) {
	v, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Warn(ctx, errors.NewStorageError("get", key, err), "storage read failed", "key", key)
		return nil, false
	}

	return v, ok
}

// Set stores value under key.
func (s *Scoped) Set(ctx context.Context, key string, value []byte) {
	if err := s.store.Set(ctx, key, value); err != nil {
		s.logger.Warn(ctx, errors.NewStorageError("set", key, err), "storage write failed", "key", key)
	}
}

// Remove deletes key.
func (s *Scoped) Remove(ctx context.Context, key string) {
	if err := s.store.Remove(ctx, key); err != nil {
		s.logger.Warn(ctx, errors.NewStorageError("remove", key, err), "storage remove failed", "key", key)
	}
}

// Close closes the backend.
func (s *Scoped) Close() {
	if err := s.store.Close(); err != nil {
		s.logger.Warn(context.Background(), err, "storage close failed")
	}
}
