package db

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

type snapshot struct {
	connections map[string]Connection
	models      map[string]*Model
	order       []*Model
}

// Registry maps logical connection names to shared connections and keeps the
// models modules registered. It is filled during startup; after Freeze every
// lookup reads an immutable snapshot without locking.
type Registry struct {
	logger *zap.Logger

	mu      sync.Mutex
	pending snapshot
	frozen  atomic.Pointer[snapshot]
}

// NewRegistry returns an empty, writable registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger: logger.Named("db"),
		pending: snapshot{
			connections: make(map[string]Connection),
			models:      make(map[string]*Model),
		},
	}
}

// Register stores conn under key. The first registration of a key wins.
func (r *Registry) Register(key string, conn Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() != nil {
		return ErrRegistryFrozen
	}
	if _, exists := r.pending.connections[key]; exists {
		r.logger.Warn("database key already registered, keeping the first connection",
			zap.String("key", key))
		return nil
	}

	r.pending.connections[key] = conn
	r.logger.Info("registered database connection", zap.String("key", key))
	return nil
}

// PrepareModel registers model and prepares it on the connection under key.
func (r *Registry) PrepareModel(ctx context.Context, key string, model *Model) error {
	conn, ok := r.Find(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownConnection, key)
	}

	r.mu.Lock()
	if r.frozen.Load() != nil {
		r.mu.Unlock()
		return ErrRegistryFrozen
	}
	if _, exists := r.pending.models[model.Name]; exists {
		r.mu.Unlock()
		r.logger.Warn("model already registered", zap.String("model", model.Name),
			zap.String("origin", model.Origin))
		return nil
	}
	r.pending.models[model.Name] = model
	r.pending.order = append(r.pending.order, model)
	r.mu.Unlock()

	if err := conn.PrepareModel(ctx, model); err != nil {
		return fmt.Errorf("prepare model %s: %w", model.Name, err)
	}

	r.logger.Info("registered model",
		zap.String("model", model.Name),
		zap.String("origin", model.Origin),
		zap.Int("fields", len(model.Fields)))
	return nil
}

// Freeze ends startup. Later writes fail with ErrRegistryFrozen.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() != nil {
		return
	}
	frozen := r.pending
	r.frozen.Store(&frozen)
}

func (r *Registry) view() (*snapshot, func()) {
	if s := r.frozen.Load(); s != nil {
		return s, func() {}
	}
	r.mu.Lock()
	return &r.pending, r.mu.Unlock
}

// Find looks up the connection registered under key.
func (r *Registry) Find(key string) (Connection, bool) {
	s, done := r.view()
	defer done()

	conn, ok := s.connections[key]
	return conn, ok
}

// Handle wraps the connection under key, or returns nil when there is none.
func (r *Registry) Handle(key string) *Handle {
	conn, ok := r.Find(key)
	if !ok {
		return nil
	}
	return &Handle{key: key, conn: conn, logger: r.logger}
}

// Model returns a registered model by name.
func (r *Registry) Model(name string) (*Model, bool) {
	s, done := r.view()
	defer done()

	model, ok := s.models[name]
	return model, ok
}

// Models returns registered models in registration order.
func (r *Registry) Models() []*Model {
	s, done := r.view()
	defer done()

	return append([]*Model(nil), s.order...)
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	s, done := r.view()
	defer done()

	return len(s.connections)
}

// Scope binds model registrations to the module that makes them.
func (r *Registry) Scope(origin string) *Scope {
	return &Scope{registry: r, origin: origin}
}

// Close closes every registered connection.
func (r *Registry) Close(ctx context.Context) error {
	s, done := r.view()
	conns := maps.Clone(s.connections)
	done()

	var errs []error
	for key, conn := range conns {
		if err := conn.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Scope is the view of a Registry handed to one module's model hook.
type Scope struct {
	registry *Registry
	origin   string
}

// Origin is the module name models are tagged with.
func (s *Scope) Origin() string {
	return s.origin
}

// PrepareModel tags model with the module name and registers it.
func (s *Scope) PrepareModel(ctx context.Context, key string, model *Model) error {
	model.Origin = s.origin
	return s.registry.PrepareModel(ctx, key, model)
}

// Find looks up a connection.
func (s *Scope) Find(key string) (Connection, bool) {
	return s.registry.Find(key)
}
