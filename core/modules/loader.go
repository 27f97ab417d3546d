package modules

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/DimaCrafter/photonyx/core/db"
	"github.com/DimaCrafter/photonyx/core/router"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"
)

// Loader owns every loaded module for the lifetime of the process.
type Loader struct {
	logger   *zap.Logger
	open     Opener
	callback CallbackFactory
	bridge   *bridge
	modules  []*Module
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithOpener replaces the platform library loader.
func WithOpener(open Opener) LoaderOption {
	return func(l *Loader) {
		l.open = open
	}
}

// WithCallbackFactory replaces the platform callback constructor used to
// build the host function table.
func WithCallbackFactory(callback CallbackFactory) LoaderOption {
	return func(l *Loader) {
		l.callback = callback
	}
}

// NewLoader returns a loader without modules.
func NewLoader(logger *zap.Logger, opts ...LoaderOption) *Loader {
	l := &Loader{
		logger:   logger.Named("modules"),
		open:     openLibrary,
		callback: newCallback,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Modules returns the loaded modules in load order.
func (l *Loader) Modules() []*Module {
	return l.modules
}

func (l *Loader) Len() int {
	return len(l.modules)
}

// LoadStatic loads every module registered with RegisterStatic, sorted by
// name.
func (l *Loader) LoadStatic() {
	for _, static := range registeredStatic() {
		if err := l.add(&Module{name: static.name, hooks: static.hooks}); err != nil {
			l.logger.Error("failed to load module", zap.String("module", static.name), zap.Error(err))
		}
	}
}

// Add loads hooks as a module owned by this loader only. It fails when the
// name is taken or init fails.
func (l *Loader) Add(name string, hooks Hooks) error {
	for _, m := range l.modules {
		if m.name == name {
			return fmt.Errorf("module %q already loaded", name)
		}
	}
	return l.add(&Module{name: name, hooks: hooks})
}

// LoadDir loads every library in dir with the host's library suffix. A
// library that fails to open or initialize is logged and skipped. A missing
// directory loads nothing.
func (l *Loader) LoadDir(dir string) error {
	ext, err := hostLibraryExt()
	if err != nil {
		return err
	}
	return l.loadDir(dir, ext)
}

func (l *Loader) loadDir(dir, ext string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("modules directory not found", zap.String("dir", dir))
			return nil
		}
		return fmt.Errorf("read modules directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ext) {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), ext)
		path := filepath.Join(dir, entry.Name())
		if err := l.loadNative(name, path); err != nil {
			l.logger.Error("failed to load module", zap.String("module", name), zap.Error(err))
		}
	}
	return nil
}

func (l *Loader) loadNative(name, path string) error {
	lib, err := l.open(path)
	if err != nil {
		return err
	}
	if l.bridge == nil {
		l.bridge = newBridge(l.logger, l.callback)
	}

	return l.add(&Module{
		name:  name,
		path:  path,
		hooks: nativeHooks(lib, l.bridge),
		lib:   lib,
	})
}

// add runs the init hook and keeps the module when it succeeds.
func (l *Loader) add(m *Module) error {
	if m.hooks.Init != nil {
		l.logger.Info("calling init", zap.String("module", m.name))
		if err := m.hooks.Init(); err != nil {
			return fmt.Errorf("init: %w", err)
		}
	}

	l.modules = append(l.modules, m)
	l.logger.Info("loaded", zap.String("module", m.name), zap.Strings("capabilities", m.Capabilities()))
	return nil
}

// ProvideDatabases connects every module's database provider with options
// and registers the connection under key. The first successful connection
// for a key wins; failures are logged and the module contributes nothing.
func (l *Loader) ProvideDatabases(ctx context.Context, registry *db.Registry, key string, options *structpb.Struct) {
	for _, m := range l.modules {
		if m.hooks.ProvideDatabase == nil {
			continue
		}

		l.logger.Info("calling provide_database", zap.String("module", m.name))
		provider := m.hooks.ProvideDatabase()
		if provider == nil {
			l.logger.Warn("module provided no database", zap.String("module", m.name))
			continue
		}
		if _, exists := registry.Find(key); exists {
			l.logger.Warn("database key already provided, skipping",
				zap.String("module", m.name), zap.String("key", key))
			continue
		}

		conn, err := provider.Connect(ctx, options)
		if err != nil {
			l.logger.Error("database connection failed", zap.String("module", m.name), zap.Error(err))
			continue
		}
		if err := registry.Register(key, conn); err != nil {
			l.logger.Error("database registration failed", zap.String("module", m.name), zap.Error(err))
			conn.Close(ctx)
		}
	}
}

// ProvideModels lets every module register its models. Models are tagged
// with the module name.
func (l *Loader) ProvideModels(registry *db.Registry) {
	for _, m := range l.modules {
		if m.hooks.ProvideModels == nil {
			continue
		}

		l.logger.Info("calling provide_models", zap.String("module", m.name))
		if err := m.hooks.ProvideModels(registry.Scope(m.name)); err != nil {
			l.logger.Error("provide_models failed", zap.String("module", m.name), zap.Error(err))
		}
	}
}

// ProvideRoutes lets every module register routes on r. Routes are tagged
// with the module name.
func (l *Loader) ProvideRoutes(r *router.Router) {
	for _, m := range l.modules {
		if m.hooks.ProvideRoutes != nil {
			l.logger.Info("calling provide_routes", zap.String("module", m.name))
			r.WithModule(m.name, m.hooks.ProvideRoutes)
		}
		if m.hooks.OnAttach != nil {
			l.logger.Info("calling on_attach", zap.String("module", m.name))
			r.WithModule(m.name, m.hooks.OnAttach)
		}
	}
}
