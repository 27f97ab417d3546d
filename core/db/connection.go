// Package db holds the database contracts modules implement and the registry
// the server hands out connections from.
package db

import (
	"context"
	"errors"

	"google.golang.org/protobuf/types/known/structpb"
)

var (
	ErrNotFound          = errors.New("entity not found")
	ErrInvalidEntity     = errors.New("invalid entity")
	ErrUnknownConnection = errors.New("unknown database connection")
	ErrUnknownModel      = errors.New("model is not prepared")
	ErrRegistryFrozen    = errors.New("database registry is frozen")
)

// Connection is a live database connection shared by every worker.
// Implementations synchronize internally.
type Connection interface {
	// PrepareModel makes the collection behind model usable.
	PrepareModel(ctx context.Context, model *Model) error
	// NewQuery starts a query over the model's collection.
	NewQuery(model *Model) *Query
	// ExecFirst returns the first match or ErrNotFound.
	ExecFirst(ctx context.Context, model *Model, query *Query) (Entity, error)
	// ExecAll returns every match, honouring the query limit.
	ExecAll(ctx context.Context, model *Model, query *Query) ([]Entity, error)
	// Insert stores entity, assigning an id when it has none.
	Insert(ctx context.Context, model *Model, entity Entity) (Entity, error)
	Close(ctx context.Context) error
}

// Provider opens connections from the opaque database configuration tree.
type Provider interface {
	Connect(ctx context.Context, options *structpb.Struct) (Connection, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, options *structpb.Struct) (Connection, error)

func (f ProviderFunc) Connect(ctx context.Context, options *structpb.Struct) (Connection, error) {
	return f(ctx, options)
}

// Option reads a string option, returning def when absent.
func Option(options *structpb.Struct, key, def string) string {
	if options == nil {
		return def
	}
	value, ok := options.GetFields()[key]
	if !ok {
		return def
	}
	if s, ok := value.GetKind().(*structpb.Value_StringValue); ok {
		return s.StringValue
	}
	return def
}

// BoolOption reads a boolean option, returning def when absent.
func BoolOption(options *structpb.Struct, key string, def bool) bool {
	if options == nil {
		return def
	}
	value, ok := options.GetFields()[key]
	if !ok {
		return def
	}
	if b, ok := value.GetKind().(*structpb.Value_BoolValue); ok {
		return b.BoolValue
	}
	return def
}

// NumberOption reads a numeric option, returning def when absent.
func NumberOption(options *structpb.Struct, key string, def float64) float64 {
	if options == nil {
		return def
	}
	value, ok := options.GetFields()[key]
	if !ok {
		return def
	}
	if n, ok := value.GetKind().(*structpb.Value_NumberValue); ok {
		return n.NumberValue
	}
	return def
}
