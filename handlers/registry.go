package handlers

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonwraymond/rendercache/cache"
	"github.com/jonwraymond/rendercache/observe"
)

// Settings configures one handler instance.
type Settings struct {
	// Type selects the factory. Default: "memory"
	Type string `mapstructure:"type"`

	// DSN is the data source for persistent handlers.
	DSN string `mapstructure:"dsn"`

	// SweepInterval purges expired entries periodically when positive.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	// LogLevel is the SQL log level: silent, error, warn or info.
	LogLevel string `mapstructure:"log_level"`

	Now    func() time.Time `mapstructure:"-"`
	Logger observe.Logger   `mapstructure:"-"`
}

// Factory creates a handler from settings.
type Factory func(s Settings) (cache.Handler, error)

// Registry manages handler factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// NewDefaultRegistry creates a registry with the built-in "memory" and "sql"
// factories.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register("memory", newMemory)
	_ = r.Register("sql", newSQL)
	return r
}

// Register adds a factory under name.
func (r *Registry) Register(name string, factory Factory) error {
	name = strings.TrimSpace(name)
	if name == "" || factory == nil {
		return ErrInvalidRegistration
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateType, name)
	}
	r.factories[name] = factory
	return nil
}

// Create instantiates a handler of s.Type.
func (r *Registry) Create(s Settings) (cache.Handler, error) {
	name := strings.TrimSpace(s.Type)
	if name == "" {
		name = "memory"
	}

	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return factory(s)
}

// List returns registered type names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Set is the handlers built for a store, keyed by kind.
type Set struct {
	Handlers map[cache.Kind]cache.Handler
	closers  []io.Closer
}

// Close releases every handler that holds resources.
func (s *Set) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build creates one handler per configured kind. Kinds sharing identical
// settings share one handler instance. Kinds without settings fall back to
// the public handler inside cache.Store.
func Build(r *Registry, byKind map[string]Settings) (*Set, error) {
	set := &Set{Handlers: make(map[cache.Kind]cache.Handler, len(byKind))}
	shared := make(map[string]cache.Handler)

	names := make([]string, 0, len(byKind))
	for name := range byKind {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		kind, err := cache.ParseKind(name)
		if err != nil {
			_ = set.Close()
			return nil, err
		}
		s := byKind[name]
		id := strings.TrimSpace(s.Type) + "|" + s.DSN
		if h, ok := shared[id]; ok {
			set.Handlers[kind] = h
			continue
		}

		h, err := r.Create(s)
		if err != nil {
			_ = set.Close()
			return nil, fmt.Errorf("handler for kind %s: %w", name, err)
		}
		shared[id] = h
		set.Handlers[kind] = h
		if c, ok := h.(io.Closer); ok {
			set.closers = append(set.closers, c)
		}
	}
	return set, nil
}

func newMemory(s Settings) (cache.Handler, error) {
	return cache.NewMemoryHandler(cache.MemoryConfig{SweepInterval: s.SweepInterval, Now: s.Now}), nil
}

func newSQL(s Settings) (cache.Handler, error) {
	return NewSQLHandler(SQLConfig{
		DSN:           s.DSN,
		LogLevel:      s.LogLevel,
		SweepInterval: s.SweepInterval,
		Now:           s.Now,
		Logger:        s.Logger,
	})
}
