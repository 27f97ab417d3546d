package modules

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/DimaCrafter/photonyx/core/db"
	"github.com/DimaCrafter/photonyx/core/db/pebbledb"
	"github.com/DimaCrafter/photonyx/core/http"
	"github.com/DimaCrafter/photonyx/core/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"
)

type fakeLibrary struct {
	symbols map[string]uintptr
	procs   map[uintptr]func(args ...uintptr) uintptr
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{
		symbols: make(map[string]uintptr),
		procs:   make(map[uintptr]func(args ...uintptr) uintptr),
	}
}

// export adds a function. An empty name keeps it unexported, like a
// function pointer handed over at runtime.
func (l *fakeLibrary) export(name string, fn func(args ...uintptr) uintptr) uintptr {
	id := uintptr(len(l.procs) + 1)
	l.procs[id] = fn
	if name != "" {
		l.symbols[name] = id
	}
	return id
}

func (l *fakeLibrary) Symbol(name string) (uintptr, error) {
	if fn, ok := l.symbols[name]; ok {
		return fn, nil
	}
	return 0, ErrSymbolNotFound
}

func (l *fakeLibrary) Call(fn uintptr, args ...uintptr) uintptr {
	return l.procs[fn](args...)
}

func noCallbacks(any) uintptr { return 0 }

func ptr(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

type stubConn struct{}

func (stubConn) Parse() http.ParseResult { return http.Invalid() }

func (stubConn) Respond(*http.Response) error { return nil }

func (stubConn) Disconnect() error { return nil }

func (stubConn) RemoteIP() net.IP { return net.IPv4(127, 0, 0, 1) }

func (stubConn) Hijack() (net.Conn, *bufio.ReadWriter) { return nil, nil }

func resetStatic(t *testing.T) {
	t.Helper()
	staticMu.Lock()
	saved := staticModules
	staticModules = map[string]Hooks{}
	staticMu.Unlock()

	t.Cleanup(func() {
		staticMu.Lock()
		staticModules = saved
		staticMu.Unlock()
	})
}

func memoryOptions(t *testing.T) *structpb.Struct {
	t.Helper()
	options, err := structpb.NewStruct(map[string]any{"in_memory": true})
	require.NoError(t, err)
	return options
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}
}

func TestLibraryExt(t *testing.T) {
	tests := []struct {
		goos string
		ext  string
	}{
		{"linux", ".so"},
		{"windows", ".dll"},
		{"darwin", ".dylib"},
	}
	for _, tt := range tests {
		ext, err := LibraryExt(tt.goos)
		require.NoError(t, err)
		assert.Equal(t, tt.ext, ext)
	}

	_, err := LibraryExt("plan9")
	assert.ErrorIs(t, err, ErrUnsupportedOS)
}

func TestLoadDirDiscovery(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "beta.so", "alpha.so", "broken.so", "notes.txt", "alpha.so.bak")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.so"), 0o700))

	var opened []string
	loader := NewLoader(zap.NewNop(), WithCallbackFactory(noCallbacks), WithOpener(func(path string) (Library, error) {
		opened = append(opened, filepath.Base(path))
		if filepath.Base(path) == "broken.so" {
			return nil, errors.New("invalid ELF header")
		}
		return newFakeLibrary(), nil
	}))

	require.NoError(t, loader.loadDir(dir, ".so"))

	assert.Equal(t, []string{"alpha.so", "beta.so", "broken.so"}, opened)
	require.Equal(t, 2, loader.Len())
	assert.Equal(t, "alpha", loader.Modules()[0].Name())
	assert.Equal(t, "beta", loader.Modules()[1].Name())
	assert.True(t, loader.Modules()[0].Native())
	assert.Equal(t, filepath.Join(dir, "alpha.so"), loader.Modules()[0].Path())
}

func TestLoadDirMissing(t *testing.T) {
	loader := NewLoader(zap.NewNop())
	assert.NoError(t, loader.loadDir(filepath.Join(t.TempDir(), "absent"), ".so"))
	assert.Zero(t, loader.Len())
}

func TestModuleWithoutSymbols(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "empty.so")

	loader := NewLoader(zap.NewNop(), WithCallbackFactory(noCallbacks), WithOpener(func(string) (Library, error) {
		return newFakeLibrary(), nil
	}))
	require.NoError(t, loader.loadDir(dir, ".so"))
	require.Equal(t, 1, loader.Len())
	assert.Empty(t, loader.Modules()[0].Capabilities())

	registry := db.NewRegistry(zap.NewNop())
	r := router.New(zap.NewNop())
	loader.ProvideDatabases(context.Background(), registry, "primary", nil)
	loader.ProvideModels(registry)
	loader.ProvideRoutes(r)

	assert.Zero(t, r.Len())
	assert.Zero(t, registry.Len())
	assert.Empty(t, registry.Models())
}

func TestNativeInit(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "good.so", "bad.so")

	var loader *Loader
	libs := map[string]*fakeLibrary{"good.so": newFakeLibrary(), "bad.so": newFakeLibrary()}
	libs["good.so"].export(SymbolInit, func(args ...uintptr) uintptr {
		assert.Equal(t, loader.bridge.api(), args[0])
		assert.Equal(t, uint32(ABIVersion), loader.bridge.table.ABIVersion)
		return 0
	})
	libs["bad.so"].export(SymbolInit, func(...uintptr) uintptr {
		return callFailed
	})

	loader = NewLoader(zap.NewNop(), WithCallbackFactory(noCallbacks), WithOpener(func(path string) (Library, error) {
		return libs[filepath.Base(path)], nil
	}))
	require.NoError(t, loader.loadDir(dir, ".so"))

	require.Equal(t, 1, loader.Len())
	assert.Equal(t, "good", loader.Modules()[0].Name())
	assert.Equal(t, []string{SymbolInit}, loader.Modules()[0].Capabilities())
}

func TestStaticLifecycleOrder(t *testing.T) {
	resetStatic(t)

	var calls []string
	hooks := func(name string) Hooks {
		return Hooks{
			Init: func() error {
				calls = append(calls, name+":init")
				return nil
			},
			ProvideDatabase: func() db.Provider {
				calls = append(calls, name+":database")
				return pebbledb.Provider{}
			},
			ProvideModels: func(scope *db.Scope) error {
				calls = append(calls, name+":models")
				return scope.PrepareModel(context.Background(), "primary", db.NewModel(name+"_items"))
			},
			ProvideRoutes: func(r *router.Router) {
				calls = append(calls, name+":routes")
				r.Register("/"+name, func(ctx *http.Context) http.Outcome {
					return ctx.Text(name)
				})
			},
		}
	}
	RegisterStatic("beta", hooks("beta"))
	RegisterStatic("alpha", hooks("alpha"))

	loader := NewLoader(zap.NewNop())
	loader.LoadStatic()

	registry := db.NewRegistry(zap.NewNop())
	r := router.New(zap.NewNop())
	loader.ProvideDatabases(context.Background(), registry, "primary", memoryOptions(t))
	loader.ProvideModels(registry)
	loader.ProvideRoutes(r)
	t.Cleanup(func() { registry.Close(context.Background()) })

	assert.Equal(t, []string{
		"alpha:init", "beta:init",
		"alpha:database", "beta:database",
		"alpha:models", "beta:models",
		"alpha:routes", "beta:routes",
	}, calls)

	assert.Equal(t, 1, registry.Len())
	model, ok := registry.Model("beta_items")
	require.True(t, ok)
	assert.Equal(t, "beta", model.Origin)

	require.Len(t, r.Routes(), 2)
	assert.Equal(t, "alpha", r.Routes()[0].Origin)
	assert.Equal(t, "beta", r.Routes()[1].Origin)
	assert.False(t, loader.Modules()[0].Native())
}

func TestRegisterStaticTwicePanics(t *testing.T) {
	resetStatic(t)
	RegisterStatic("dup", Hooks{})
	assert.Panics(t, func() { RegisterStatic("dup", Hooks{}) })
}

func TestStaticInitFailureSkipsModule(t *testing.T) {
	resetStatic(t)
	RegisterStatic("failing", Hooks{Init: func() error { return errors.New("no config") }})
	RegisterStatic("working", Hooks{})

	loader := NewLoader(zap.NewNop())
	loader.LoadStatic()

	require.Equal(t, 1, loader.Len())
	assert.Equal(t, "working", loader.Modules()[0].Name())
}

func TestAddRejectsDuplicateName(t *testing.T) {
	loader := NewLoader(zap.NewNop())

	require.NoError(t, loader.Add("builtin", Hooks{}))
	assert.Error(t, loader.Add("builtin", Hooks{}))
	assert.Error(t, loader.Add("broken", Hooks{Init: func() error { return errors.New("boom") }}))
	assert.Equal(t, 1, loader.Len())
}

func TestDatabaseFailureIsSkipped(t *testing.T) {
	resetStatic(t)
	RegisterStatic("a_down", Hooks{ProvideDatabase: func() db.Provider {
		return db.ProviderFunc(func(context.Context, *structpb.Struct) (db.Connection, error) {
			return nil, errors.New("connection refused")
		})
	}})
	RegisterStatic("b_nil", Hooks{ProvideDatabase: func() db.Provider { return nil }})
	RegisterStatic("c_up", Hooks{ProvideDatabase: func() db.Provider { return pebbledb.Provider{} }})

	loader := NewLoader(zap.NewNop())
	loader.LoadStatic()

	registry := db.NewRegistry(zap.NewNop())
	loader.ProvideDatabases(context.Background(), registry, "primary", memoryOptions(t))
	t.Cleanup(func() { registry.Close(context.Background()) })

	_, ok := registry.Find("primary")
	assert.True(t, ok)
}

func loadNativeModule(t *testing.T, name string, lib *fakeLibrary) *Loader {
	t.Helper()
	dir := t.TempDir()
	touch(t, dir, name+".so")

	loader := NewLoader(zap.NewNop(), WithCallbackFactory(noCallbacks), WithOpener(func(string) (Library, error) {
		return lib, nil
	}))
	require.NoError(t, loader.loadDir(dir, ".so"))
	require.Equal(t, 1, loader.Len())
	return loader
}

func TestNativeRoutes(t *testing.T) {
	lib := newFakeLibrary()
	var loader *Loader

	show := lib.export("", func(args ...uintptr) uintptr {
		b, ctx := loader.bridge, args[0]

		name := []byte("id")
		var out uintptr
		n := b.contextParam(ctx, ptr(name), uintptr(len(name)), uintptr(unsafe.Pointer(&out)))
		body := []byte("user " + readString(out, n))

		header := []byte("x-module")
		value := []byte("users")
		b.contextSetStatus(ctx, 201)
		b.contextSetHeader(ctx, ptr(header), uintptr(len(header)), ptr(value), uintptr(len(value)))
		b.contextSetPayload(ctx, ptr(body), uintptr(len(body)))
		return actionContinue
	})
	missing := lib.export("", func(args ...uintptr) uintptr {
		name := []byte("nope")
		var out uintptr
		assert.Equal(t, absent, loader.bridge.contextParam(args[0], ptr(name), uintptr(len(name)), uintptr(unsafe.Pointer(&out))))
		return 404
	})
	drop := lib.export("", func(...uintptr) uintptr {
		return uintptr(0xFFFFFFFF)
	})
	bogus := lib.export("", func(...uintptr) uintptr {
		return 70000
	})
	tiny := lib.export("", func(args ...uintptr) uintptr {
		loader.bridge.contextSetStatus(args[0], 1)
		return actionContinue
	})

	register := func(h uintptr, pattern string, action uintptr) {
		p := []byte(pattern)
		assert.Zero(t, loader.bridge.routerRegister(h, ptr(p), uintptr(len(p)), action))
	}
	lib.export(SymbolProvideRoutes, func(args ...uintptr) uintptr {
		assert.Equal(t, loader.bridge.api(), args[0])
		register(args[1], "/users/{id}", show)
		register(args[1], "/missing", missing)
		return 0
	})
	lib.export(SymbolOnAttach, func(args ...uintptr) uintptr {
		register(args[1], "/drop", drop)
		register(args[1], "/bogus", bogus)
		register(args[1], "/tiny", tiny)

		bad := []byte("/broken/{")
		assert.Equal(t, callFailed, loader.bridge.routerRegister(args[1], ptr(bad), uintptr(len(bad)), drop))
		return 0
	})

	loader = loadNativeModule(t, "users", lib)
	r := router.New(zap.NewNop())
	loader.ProvideRoutes(r)

	require.Equal(t, 5, r.Len())
	for _, route := range r.Routes() {
		assert.Equal(t, "users", route.Origin)
	}

	serve := func(path string) (*http.Context, http.Outcome) {
		route, params, ok := r.Match(path)
		require.True(t, ok, path)
		ctx := http.AcquireContext(stubConn{}, http.NewRequest(http.MethodGET, path), params, nil)
		t.Cleanup(func() { http.ReleaseContext(ctx) })
		return ctx, route.Handler(ctx)
	}

	ctx, outcome := serve("/users/7")
	assert.False(t, outcome.IsValue())
	assert.False(t, outcome.IsReplace())
	assert.Equal(t, http.StatusCreated, ctx.Response.Status)
	assert.Equal(t, "user 7", string(ctx.Response.Body))
	assert.Equal(t, "users", ctx.Response.Headers.Get("x-module"))

	_, outcome = serve("/missing")
	require.True(t, outcome.IsReplace())
	assert.Equal(t, http.StatusNotFound, outcome.Response().Status)

	_, outcome = serve("/drop")
	require.True(t, outcome.IsReplace())
	assert.True(t, outcome.Response().IsDrop())

	_, outcome = serve("/bogus")
	require.True(t, outcome.IsReplace())
	assert.Equal(t, http.StatusInternalServerError, outcome.Response().Status)

	ctx, outcome = serve("/tiny")
	assert.False(t, outcome.IsReplace())
	assert.Equal(t, http.StatusInternalServerError, ctx.Response.Status)

	assert.Zero(t, loader.bridge.handles.len(), "call frames must be released")
}

func TestNativeModels(t *testing.T) {
	lib := newFakeLibrary()
	var loader *Loader

	lib.export(SymbolProvideModels, func(args ...uintptr) uintptr {
		b, scope := loader.bridge, args[1]

		name := []byte("posts")
		model := b.modelNew(scope, ptr(name), uintptr(len(name)))
		require.NotZero(t, model)

		title := []byte("title")
		b.modelAddField(model, ptr(title), uintptr(len(title)), uintptr(unsafe.Pointer(&fieldMetaABI{
			Type:   uint32(db.FieldString),
			Length: 16,
		})))

		draft, published := []byte("draft"), []byte("published")
		values := []sliceABI{
			{Ptr: ptr(draft), Len: uintptr(len(draft))},
			{Ptr: ptr(published), Len: uintptr(len(published))},
		}
		state := []byte("state")
		b.modelAddField(model, ptr(state), uintptr(len(state)), uintptr(unsafe.Pointer(&fieldMetaABI{
			Type:      uint32(db.FieldEnum),
			Optional:  1,
			EnumPtr:   uintptr(unsafe.Pointer(&values[0])),
			EnumCount: uintptr(len(values)),
		})))

		scratch := []byte("scratch")
		require.NotZero(t, b.modelNew(scope, ptr(scratch), uintptr(len(scratch))))

		key := []byte("primary")
		return b.modelPrepare(scope, ptr(key), uintptr(len(key)), model)
	})

	loader = loadNativeModule(t, "blog", lib)

	registry := db.NewRegistry(zap.NewNop())
	conn, err := pebbledb.Provider{}.Connect(context.Background(), memoryOptions(t))
	require.NoError(t, err)
	require.NoError(t, registry.Register("primary", conn))
	t.Cleanup(func() { registry.Close(context.Background()) })

	loader.ProvideModels(registry)

	model, ok := registry.Model("posts")
	require.True(t, ok)
	assert.Equal(t, "blog", model.Origin)

	title, ok := model.Field("title")
	require.True(t, ok)
	assert.Equal(t, db.FieldMeta{Type: db.FieldString, Length: 16}, title)

	state, ok := model.Field("state")
	require.True(t, ok)
	assert.True(t, state.Optional)
	assert.Equal(t, []string{"draft", "published"}, state.EnumValues)

	assert.Error(t, model.Check(db.Entity{"title": "this title is far too long"}))
	assert.NoError(t, model.Check(db.Entity{"title": "short", "state": "draft"}))

	_, ok = registry.Model("scratch")
	assert.False(t, ok)
	assert.Zero(t, loader.bridge.handles.len(), "unprepared models must be released")
}

func TestNativeDatabase(t *testing.T) {
	lib := newFakeLibrary()
	var loader *Loader
	var gotConfig map[string]any
	var gotQuery nativeQuery
	stored := map[string][]byte{}

	table := &databaseTable{}
	table.Connect = lib.export("", func(args ...uintptr) uintptr {
		require.NoError(t, json.Unmarshal([]byte(readString(args[0], args[1])), &gotConfig))
		return 99
	})
	table.PrepareModel = lib.export("", func(args ...uintptr) uintptr {
		assert.Equal(t, uintptr(99), args[0])
		return 0
	})
	table.Insert = lib.export("", func(args ...uintptr) uintptr {
		collection := readString(args[1], args[2])
		doc := readBytes(args[3], args[4])
		stored[collection] = doc
		loader.bridge.sinkWrite(args[5], ptr(doc), uintptr(len(doc)))
		return 0
	})
	table.Exec = lib.export("", func(args ...uintptr) uintptr {
		require.NoError(t, json.Unmarshal([]byte(readString(args[1], args[2])), &gotQuery))
		if gotQuery.Collection == "broken" {
			return callFailed
		}
		for _, doc := range stored {
			loader.bridge.sinkWrite(args[3], ptr(doc), uintptr(len(doc)))
		}
		return 0
	})
	lib.export(SymbolProvideDatabase, func(...uintptr) uintptr {
		return uintptr(unsafe.Pointer(table))
	})

	loader = loadNativeModule(t, "store", lib)
	registry := db.NewRegistry(zap.NewNop())
	loader.ProvideDatabases(context.Background(), registry, "primary", memoryOptions(t))

	assert.Equal(t, true, gotConfig["in_memory"])
	handle := registry.Handle("primary")
	require.NotNil(t, handle)

	ctx := context.Background()
	model := db.NewModel("notes")
	require.NoError(t, handle.Connection().PrepareModel(ctx, model))

	entity, ok := handle.Insert(ctx, model, db.Entity{"text": "hi"})
	require.True(t, ok)
	assert.NotEmpty(t, entity.ID())
	assert.Equal(t, "hi", entity["text"])

	found, ok := handle.First(ctx, model, handle.NewQuery(model).Where(map[string]any{"text": "hi"}).Select("text"))
	require.True(t, ok)
	assert.Equal(t, entity.ID(), found.ID())
	assert.Equal(t, "notes", gotQuery.Collection)
	assert.Equal(t, 1, gotQuery.Limit)
	assert.Equal(t, []string{"text"}, gotQuery.Select)

	assert.Empty(t, handle.All(ctx, db.NewModel("broken"), db.NewQuery("broken")))
	assert.Zero(t, loader.bridge.handles.len())
}

func TestHandleTable(t *testing.T) {
	table := newHandleTable()
	a := table.put("a")
	b := table.put(42)
	assert.NotZero(t, a)
	assert.NotEqual(t, a, b)

	s, ok := lookup[string](table, a)
	assert.True(t, ok)
	assert.Equal(t, "a", s)

	_, ok = lookup[string](table, b)
	assert.False(t, ok, "wrong type")

	table.delete(a)
	_, ok = table.get(a)
	assert.False(t, ok)
	assert.Equal(t, 1, table.len())
}
