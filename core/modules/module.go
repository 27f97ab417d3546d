// Package modules discovers plugin modules, loads them and drives their
// lifecycle hooks against the shared router and database registry.
//
// A module is either a native dynamic library found in the modules directory
// or a set of Go hooks registered in-process with RegisterStatic. Both kinds
// go through the same phases in the same order:
//
//  1. init, right after the module is loaded
//  2. provide_database, for every module, before any models
//  3. provide_models
//  4. provide_routes and on_attach
//
// Loaded libraries are never unloaded, so entry points resolved from them
// stay valid for the lifetime of the process.
package modules

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/DimaCrafter/photonyx/core/db"
	"github.com/DimaCrafter/photonyx/core/router"
)

var (
	// ErrUnsupportedOS is returned when the host OS has no known dynamic
	// library suffix.
	ErrUnsupportedOS = errors.New("modules: unsupported OS")
	// ErrSymbolNotFound means a library does not export a symbol.
	ErrSymbolNotFound = errors.New("modules: symbol not found")
	// ErrNativeUnsupported is returned by builds without a native loader.
	ErrNativeUnsupported = errors.New("modules: native libraries are not supported on this platform")
)

// Hooks are the optional entry points of a module. A nil hook means the
// capability is absent.
type Hooks struct {
	Init            func() error
	ProvideDatabase func() db.Provider
	ProvideModels   func(scope *db.Scope) error
	ProvideRoutes   func(r *router.Router)
	OnAttach        func(r *router.Router)
}

// Module is a loaded module. For native modules it owns the library the
// hooks were resolved from.
type Module struct {
	name  string
	path  string
	hooks Hooks
	lib   Library
}

// Name is the module name used in logs and route origins.
func (m *Module) Name() string {
	return m.name
}

// Path is the library file, empty for static modules.
func (m *Module) Path() string {
	return m.path
}

// Native reports whether the module came from a dynamic library.
func (m *Module) Native() bool {
	return m.lib != nil
}

// Capabilities lists the hooks the module exposes, by symbol name.
func (m *Module) Capabilities() []string {
	var caps []string
	if m.hooks.Init != nil {
		caps = append(caps, SymbolInit)
	}
	if m.hooks.ProvideDatabase != nil {
		caps = append(caps, SymbolProvideDatabase)
	}
	if m.hooks.ProvideModels != nil {
		caps = append(caps, SymbolProvideModels)
	}
	if m.hooks.ProvideRoutes != nil {
		caps = append(caps, SymbolProvideRoutes)
	}
	if m.hooks.OnAttach != nil {
		caps = append(caps, SymbolOnAttach)
	}
	return caps
}

type staticModule struct {
	name  string
	hooks Hooks
}

var (
	staticMu      sync.Mutex
	staticModules = map[string]Hooks{}
)

// RegisterStatic makes hooks available as a module named name, typically
// from an init function. Registering the same name twice panics.
func RegisterStatic(name string, hooks Hooks) {
	staticMu.Lock()
	defer staticMu.Unlock()

	if _, dup := staticModules[name]; dup {
		panic("modules: RegisterStatic called twice for " + name)
	}
	staticModules[name] = hooks
}

func registeredStatic() []staticModule {
	staticMu.Lock()
	defer staticMu.Unlock()

	list := make([]staticModule, 0, len(staticModules))
	for name, hooks := range staticModules {
		list = append(list, staticModule{name: name, hooks: hooks})
	}
	slices.SortFunc(list, func(a, b staticModule) int {
		return strings.Compare(a.name, b.name)
	})
	return list
}
