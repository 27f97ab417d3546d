package modules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/DimaCrafter/photonyx/core/db"
	"github.com/DimaCrafter/photonyx/core/router"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// nativeHooks resolves the exported entry points of lib. Missing symbols
// leave the matching hook nil.
func nativeHooks(lib Library, b *bridge) Hooks {
	var hooks Hooks

	if fn, err := lib.Symbol(SymbolInit); err == nil {
		hooks.Init = func() error {
			if code := int32(lib.Call(fn, b.api())); code != 0 {
				return fmt.Errorf("%s returned %d", SymbolInit, code)
			}
			return nil
		}
	}

	if fn, err := lib.Symbol(SymbolProvideDatabase); err == nil {
		hooks.ProvideDatabase = func() db.Provider {
			table := lib.Call(fn, b.api())
			if table == 0 {
				return nil
			}
			return &nativeProvider{
				lib:    lib,
				bridge: b,
				table:  (*databaseTable)(unsafe.Pointer(table)),
			}
		}
	}

	if fn, err := lib.Symbol(SymbolProvideModels); err == nil {
		hooks.ProvideModels = func(scope *db.Scope) error {
			target := &modelScope{scope: scope, ctx: context.Background()}
			h := b.handles.put(target)
			defer func() {
				for _, model := range target.models {
					b.handles.delete(model)
				}
				b.handles.delete(h)
			}()

			if code := int32(lib.Call(fn, b.api(), h)); code != 0 {
				return fmt.Errorf("%s returned %d", SymbolProvideModels, code)
			}
			return nil
		}
	}

	routeHook := func(fn uintptr) func(r *router.Router) {
		return func(r *router.Router) {
			h := b.handles.put(&routeTarget{router: r, lib: lib})
			defer b.handles.delete(h)

			lib.Call(fn, b.api(), h)
		}
	}
	if fn, err := lib.Symbol(SymbolProvideRoutes); err == nil {
		hooks.ProvideRoutes = routeHook(fn)
	}
	if fn, err := lib.Symbol(SymbolOnAttach); err == nil {
		hooks.OnAttach = routeHook(fn)
	}

	return hooks
}

var errNativeCall = errors.New("native database call failed")

// nativeProvider adapts a px_database table into a db.Provider.
type nativeProvider struct {
	lib    Library
	bridge *bridge
	table  *databaseTable
}

func (p *nativeProvider) Connect(_ context.Context, options *structpb.Struct) (db.Connection, error) {
	config := []byte("{}")
	if options != nil {
		encoded, err := protojson.Marshal(options)
		if err != nil {
			return nil, fmt.Errorf("encode database options: %w", err)
		}
		config = encoded
	}

	handle := p.lib.Call(p.table.Connect, bytesArg(config), uintptr(len(config)))
	runtime.KeepAlive(config)
	if handle == 0 {
		return nil, fmt.Errorf("%w: connect", errNativeCall)
	}
	return &nativeConn{provider: p, handle: handle}, nil
}

// nativeConn is a connection owned by native code.
type nativeConn struct {
	provider *nativeProvider
	handle   uintptr
}

func (c *nativeConn) PrepareModel(_ context.Context, model *db.Model) error {
	encoded, err := json.Marshal(model)
	if err != nil {
		return err
	}
	code := int32(c.provider.lib.Call(c.provider.table.PrepareModel, c.handle, bytesArg(encoded), uintptr(len(encoded))))
	runtime.KeepAlive(encoded)
	if code != 0 {
		return fmt.Errorf("%w: prepare model %s", errNativeCall, model.Name)
	}
	return nil
}

func (c *nativeConn) NewQuery(model *db.Model) *db.Query {
	return db.NewQuery(model.Name)
}

func (c *nativeConn) ExecFirst(ctx context.Context, model *db.Model, query *db.Query) (db.Entity, error) {
	entities, err := c.ExecAll(ctx, model, query.Limit(1))
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, db.ErrNotFound
	}
	return entities[0], nil
}

func (c *nativeConn) ExecAll(_ context.Context, _ *db.Model, query *db.Query) ([]db.Entity, error) {
	encoded, err := json.Marshal(queryOf(query))
	if err != nil {
		return nil, err
	}
	return c.collect(func(sinkHandle uintptr) uintptr {
		code := c.provider.lib.Call(c.provider.table.Exec, c.handle, bytesArg(encoded), uintptr(len(encoded)), sinkHandle)
		runtime.KeepAlive(encoded)
		return code
	}, "exec "+query.Collection)
}

func (c *nativeConn) Insert(_ context.Context, model *db.Model, entity db.Entity) (db.Entity, error) {
	doc := entity.Clone()
	doc.EnsureID()
	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	name := []byte(model.Name)

	stored, err := c.collect(func(sinkHandle uintptr) uintptr {
		code := c.provider.lib.Call(c.provider.table.Insert, c.handle,
			bytesArg(name), uintptr(len(name)), bytesArg(encoded), uintptr(len(encoded)), sinkHandle)
		runtime.KeepAlive(name)
		runtime.KeepAlive(encoded)
		return code
	}, "insert "+model.Name)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return doc, nil
	}
	return stored[0], nil
}

func (c *nativeConn) Close(context.Context) error {
	if c.provider.table.Close != 0 {
		c.provider.lib.Call(c.provider.table.Close, c.handle)
	}
	return nil
}

func (c *nativeConn) collect(call func(sinkHandle uintptr) uintptr, op string) ([]db.Entity, error) {
	out := &sink{}
	h := c.provider.bridge.handles.put(out)
	defer c.provider.bridge.handles.delete(h)

	if int32(call(h)) != 0 {
		return nil, fmt.Errorf("%w: %s", errNativeCall, op)
	}
	if out.err != nil {
		return nil, fmt.Errorf("decode %s result: %w", op, out.err)
	}
	if out.entities == nil {
		out.entities = []db.Entity{}
	}
	return out.entities, nil
}

func bytesArg(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}
