package learning

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jmoiron/sqlx"
)

// Backend names a WordStatsStore implementation
type Backend string

const (
	BackendSQL   Backend = "sql"
	BackendRedis Backend = "redis"
)

// Deps carries the connections a backend factory may need
type Deps struct {
	DB    *sqlx.DB
	Redis *RedisConfig
}

// Factory opens a WordStatsStore
type Factory func(ctx context.Context, deps Deps) (WordStatsStore, error)

// Registry maps backend names to factories
type Registry struct {
	factories map[Backend]Factory
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Backend]Factory)}
}

// DefaultRegistry returns a registry with the sql and redis backends
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(BackendSQL, openSQL)
	_ = r.Register(BackendRedis, openRedis)
	return r
}

// Register adds a backend factory
func (r *Registry) Register(name Backend, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("backend %s already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Open creates the store of the named backend
func (r *Registry) Open(ctx context.Context, name Backend, deps Deps) (WordStatsStore, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown classifier backend %q (available: %v)", name, r.Backends())
	}
	return factory(ctx, deps)
}

// Backends lists the registered names in order
func (r *Registry) Backends() []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]Backend, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func openSQL(_ context.Context, deps Deps) (WordStatsStore, error) {
	if deps.DB == nil {
		return nil, errors.New("sql backend requires a database connection")
	}
	return NewSQLStore(deps.DB), nil
}

func openRedis(ctx context.Context, deps Deps) (WordStatsStore, error) {
	return NewRedisStore(ctx, deps.Redis)
}
