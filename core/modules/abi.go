package modules

import (
	"context"
	"encoding/json"
	"math"
	"unsafe"

	"github.com/DimaCrafter/photonyx/core/db"
	"github.com/DimaCrafter/photonyx/core/http"
	"github.com/DimaCrafter/photonyx/core/router"
	"go.uber.org/zap"
)

// ABIVersion is written into every host table handed to native code.
const ABIVersion = 1

// Exported symbol names.
const (
	SymbolInit            = "init_module"
	SymbolProvideDatabase = "provide_database"
	SymbolProvideModels   = "provide_models"
	SymbolProvideRoutes   = "provide_routes"
	SymbolOnAttach        = "on_attach"
)

// Action results.
const (
	actionContinue = 0
	actionDrop     = -1
)

const (
	absent     = ^uintptr(0)
	callFailed = uintptr(math.MaxUint32) // int32(-1) in the low half
)

// hostTable mirrors px_host in photonyx.h field for field.
type hostTable struct {
	ABIVersion uint32
	_          uint32

	Log              uintptr
	RouterRegister   uintptr
	ContextBody      uintptr
	ContextParam     uintptr
	ContextHeader    uintptr
	ContextQuery     uintptr
	ContextSetStatus uintptr
	ContextSetHeader uintptr
	ContextSetBody   uintptr
	ContextDBQuery   uintptr
	ContextDBInsert  uintptr
	ModelNew         uintptr
	ModelAddField    uintptr
	ModelPrepare     uintptr
	SinkWrite        uintptr
}

// databaseTable mirrors px_database.
type databaseTable struct {
	Connect      uintptr
	PrepareModel uintptr
	Exec         uintptr
	Insert       uintptr
	Close        uintptr
}

// fieldMetaABI mirrors px_field_meta.
type fieldMetaABI struct {
	Type      uint32
	Optional  uint32
	Length    uint64
	EnumPtr   uintptr
	EnumCount uintptr
}

// sliceABI mirrors px_slice.
type sliceABI struct {
	Ptr uintptr
	Len uintptr
}

// routeTarget is what a router handle resolves to.
type routeTarget struct {
	router *router.Router
	lib    Library
}

// callFrame is what a context handle resolves to. Memory handed to native
// code during the call is pinned in it until the action returns.
type callFrame struct {
	ctx    *http.Context
	pinned [][]byte
}

func (f *callFrame) pin(b []byte) []byte {
	f.pinned = append(f.pinned, b)
	return b
}

// modelScope is what a scope handle resolves to.
type modelScope struct {
	scope *db.Scope
	ctx   context.Context
	// models are the handles created through this scope, released when the
	// hook returns whether or not they were prepared.
	models []uintptr
}

// sink collects entities written by a native database provider.
type sink struct {
	entities []db.Entity
	err      error
}

// bridge implements the host side of the C boundary.
type bridge struct {
	logger  *zap.Logger
	handles *handleTable
	table   *hostTable
}

func newBridge(logger *zap.Logger, callback CallbackFactory) *bridge {
	b := &bridge{
		logger:  logger,
		handles: newHandleTable(),
	}
	b.table = &hostTable{
		ABIVersion:       ABIVersion,
		Log:              callback(b.log),
		RouterRegister:   callback(b.routerRegister),
		ContextBody:      callback(b.contextBody),
		ContextParam:     callback(b.contextParam),
		ContextHeader:    callback(b.contextHeader),
		ContextQuery:     callback(b.contextQuery),
		ContextSetStatus: callback(b.contextSetStatus),
		ContextSetHeader: callback(b.contextSetHeader),
		ContextSetBody:   callback(b.contextSetPayload),
		ContextDBQuery:   callback(b.contextDBQuery),
		ContextDBInsert:  callback(b.contextDBInsert),
		ModelNew:         callback(b.modelNew),
		ModelAddField:    callback(b.modelAddField),
		ModelPrepare:     callback(b.modelPrepare),
		SinkWrite:        callback(b.sinkWrite),
	}
	return b
}

// api is the px_host pointer passed to every native hook.
func (b *bridge) api() uintptr {
	return uintptr(unsafe.Pointer(b.table))
}

func readString(ptr, n uintptr) string {
	if ptr == 0 || n == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n))
}

func readBytes(ptr, n uintptr) []byte {
	if ptr == 0 || n == 0 {
		return nil
	}
	return append([]byte(nil), unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n)...)
}

// writeOut stores the address of b in *out and returns its length.
func writeOut(out uintptr, b []byte) uintptr {
	if out == 0 {
		return uintptr(len(b))
	}
	var addr uintptr
	if len(b) > 0 {
		addr = uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	}
	*(*uintptr)(unsafe.Pointer(out)) = addr
	return uintptr(len(b))
}

func (b *bridge) log(level, msg, n uintptr) uintptr {
	text := readString(msg, n)
	switch int32(level) {
	case 0:
		b.logger.Debug(text)
	case 1:
		b.logger.Info(text)
	case 2:
		b.logger.Warn(text)
	default:
		b.logger.Error(text)
	}
	return 0
}

func (b *bridge) routerRegister(h, pattern, n, action uintptr) uintptr {
	target, ok := lookup[*routeTarget](b.handles, h)
	if !ok {
		return callFailed
	}

	err := target.router.Register(readString(pattern, n), b.nativeHandler(target.lib, action))
	if err != nil {
		b.logger.Error("native route rejected", zap.Error(err))
		return callFailed
	}
	return 0
}

// nativeHandler adapts a px_action into a route handler.
func (b *bridge) nativeHandler(lib Library, action uintptr) router.Handler {
	return func(ctx *http.Context) http.Outcome {
		frame := &callFrame{ctx: ctx}
		h := b.handles.put(frame)
		defer b.handles.delete(h)

		switch code := int32(lib.Call(action, h)); {
		case code == actionContinue:
			return http.Continue[http.Done]()
		case code == actionDrop:
			return ctx.Drop()
		default:
			return http.Replace[http.Done](http.FromStatus(b.status(int64(code))))
		}
	}
}

// status maps a code returned by native code to a response status. Codes
// that cannot form a status line become 500.
func (b *bridge) status(code int64) http.Status {
	if code < 100 || code > 999 {
		b.logger.Warn("native code returned an invalid status", zap.Int64("code", code))
		return http.StatusInternalServerError
	}
	return http.Status(code)
}

func (b *bridge) frame(h uintptr) (*callFrame, bool) {
	return lookup[*callFrame](b.handles, h)
}

func (b *bridge) contextBody(h, out uintptr) uintptr {
	frame, ok := b.frame(h)
	if !ok {
		return absent
	}
	return writeOut(out, frame.ctx.Request.Body)
}

func (b *bridge) contextParam(h, name, n, out uintptr) uintptr {
	frame, ok := b.frame(h)
	if !ok {
		return absent
	}
	value, ok := frame.ctx.Params[readString(name, n)]
	if !ok {
		return absent
	}
	return writeOut(out, frame.pin([]byte(value)))
}

func (b *bridge) contextHeader(h, name, n, out uintptr) uintptr {
	frame, ok := b.frame(h)
	if !ok {
		return absent
	}
	value, ok := frame.ctx.Header(readString(name, n))
	if !ok {
		return absent
	}
	return writeOut(out, frame.pin([]byte(value)))
}

func (b *bridge) contextQuery(h, out uintptr) uintptr {
	frame, ok := b.frame(h)
	if !ok {
		return absent
	}
	return writeOut(out, frame.pin([]byte(frame.ctx.Query())))
}

func (b *bridge) contextSetStatus(h, code uintptr) uintptr {
	if frame, ok := b.frame(h); ok {
		frame.ctx.Response.Status = b.status(int64(int32(code)))
	}
	return 0
}

func (b *bridge) contextSetHeader(h, name, nameLen, value, valueLen uintptr) uintptr {
	if frame, ok := b.frame(h); ok {
		frame.ctx.SetHeader(readString(name, nameLen), readString(value, valueLen))
	}
	return 0
}

func (b *bridge) contextSetPayload(h, body, n uintptr) uintptr {
	if frame, ok := b.frame(h); ok {
		frame.ctx.Response.SetPayload(readBytes(body, n))
	}
	return 0
}

// nativeQuery is the JSON query shape native code sends.
type nativeQuery struct {
	Collection string         `json:"collection"`
	Where      map[string]any `json:"where,omitempty"`
	Select     []string       `json:"select,omitempty"`
	Limit      int            `json:"limit,omitempty"`
}

func (q nativeQuery) build() *db.Query {
	return db.NewQuery(q.Collection).Where(q.Where).Select(q.Select...).Limit(q.Limit)
}

func queryOf(q *db.Query) nativeQuery {
	return nativeQuery{
		Collection: q.Collection,
		Where:      q.Conditions(),
		Select:     q.Fields(),
		Limit:      q.MaxResults(),
	}
}

func (b *bridge) contextDBQuery(h, key, keyLen, query, queryLen, out uintptr) uintptr {
	frame, ok := b.frame(h)
	if !ok {
		return absent
	}
	handle := frame.ctx.Database(readString(key, keyLen))
	if handle == nil {
		return absent
	}

	var request nativeQuery
	if err := json.Unmarshal(readBytes(query, queryLen), &request); err != nil {
		b.logger.Debug("malformed native query", zap.Error(err))
		return absent
	}

	model, ok := modelFor(frame.ctx, request.Collection)
	if !ok {
		return absent
	}
	entities := handle.All(context.Background(), model, request.build())
	encoded, err := json.Marshal(entities)
	if err != nil {
		return absent
	}
	return writeOut(out, frame.pin(encoded))
}

func (b *bridge) contextDBInsert(h, key, keyLen, model, modelLen, entity, entityLen uintptr) uintptr {
	frame, ok := b.frame(h)
	if !ok {
		return callFailed
	}
	handle := frame.ctx.Database(readString(key, keyLen))
	if handle == nil {
		return callFailed
	}
	meta, ok := modelFor(frame.ctx, readString(model, modelLen))
	if !ok {
		return callFailed
	}

	var doc db.Entity
	if err := json.Unmarshal(readBytes(entity, entityLen), &doc); err != nil {
		return callFailed
	}
	if _, ok := handle.Insert(context.Background(), meta, doc); !ok {
		return callFailed
	}
	return 0
}

// modelFor resolves registered model metadata, falling back to a bare model
// for collections nobody registered.
func modelFor(ctx *http.Context, name string) (*db.Model, bool) {
	if name == "" {
		return nil, false
	}
	if model, ok := ctx.Model(name); ok {
		return model, true
	}
	return db.NewModel(name), true
}

func (b *bridge) modelNew(scope, name, n uintptr) uintptr {
	target, ok := lookup[*modelScope](b.handles, scope)
	if !ok {
		return 0
	}
	h := b.handles.put(db.NewModel(readString(name, n)))
	target.models = append(target.models, h)
	return h
}

func (b *bridge) modelAddField(h, name, n, meta uintptr) uintptr {
	model, ok := lookup[*db.Model](b.handles, h)
	if !ok || meta == 0 {
		return 0
	}

	raw := (*fieldMetaABI)(unsafe.Pointer(meta))
	field := db.FieldMeta{
		Type:     db.FieldType(raw.Type),
		Length:   int(raw.Length),
		Optional: raw.Optional != 0,
	}
	if raw.EnumPtr != 0 && raw.EnumCount > 0 {
		values := unsafe.Slice((*sliceABI)(unsafe.Pointer(raw.EnumPtr)), raw.EnumCount)
		for _, v := range values {
			field.EnumValues = append(field.EnumValues, readString(v.Ptr, v.Len))
		}
	}

	model.AddField(readString(name, n), field)
	return 0
}

func (b *bridge) modelPrepare(scope, key, n, h uintptr) uintptr {
	target, ok := lookup[*modelScope](b.handles, scope)
	if !ok {
		return callFailed
	}
	model, ok := lookup[*db.Model](b.handles, h)
	if !ok {
		return callFailed
	}
	b.handles.delete(h)

	if err := target.scope.PrepareModel(target.ctx, readString(key, n), model); err != nil {
		b.logger.Error("failed to prepare model", zap.String("model", model.Name), zap.Error(err))
		return callFailed
	}
	return 0
}

func (b *bridge) sinkWrite(h, data, n uintptr) uintptr {
	s, ok := lookup[*sink](b.handles, h)
	if !ok {
		return 0
	}

	var entity db.Entity
	if err := json.Unmarshal(readBytes(data, n), &entity); err != nil {
		s.err = err
		return 0
	}
	s.entities = append(s.entities, entity)
	return 0
}
