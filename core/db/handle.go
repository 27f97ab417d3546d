package db

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Handle is what request handlers use to reach a connection. Query failures
// are logged and turned into empty results so a broken database never fails
// the request pipeline.
type Handle struct {
	key    string
	conn   Connection
	logger *zap.Logger
}

// NewHandle wraps conn directly, bypassing a Registry.
func NewHandle(key string, conn Connection, logger *zap.Logger) *Handle {
	return &Handle{key: key, conn: conn, logger: logger}
}

func (h *Handle) Key() string { return h.key }

func (h *Handle) Connection() Connection { return h.conn }

// NewQuery starts a query over model.
func (h *Handle) NewQuery(model *Model) *Query {
	return h.conn.NewQuery(model)
}

// First returns the first match, or false when there is none or the query failed.
func (h *Handle) First(ctx context.Context, model *Model, query *Query) (Entity, bool) {
	entity, err := h.conn.ExecFirst(ctx, model, query)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			h.queryFailed(query, err)
		}
		return nil, false
	}
	return entity, true
}

// All returns every match. A failed query yields an empty list.
func (h *Handle) All(ctx context.Context, model *Model, query *Query) []Entity {
	entities, err := h.conn.ExecAll(ctx, model, query)
	if err != nil {
		h.queryFailed(query, err)
		return []Entity{}
	}
	return entities
}

// Insert validates and stores entity. Rejected or failed writes return false.
func (h *Handle) Insert(ctx context.Context, model *Model, entity Entity) (Entity, bool) {
	if err := model.Check(entity); err != nil {
		h.logger.Debug("entity rejected", zap.String("db", h.key), zap.Error(err))
		return nil, false
	}

	stored, err := h.conn.Insert(ctx, model, entity)
	if err != nil {
		h.logger.Error("insert failed", zap.String("db", h.key),
			zap.String("model", model.Name), zap.Error(err))
		return nil, false
	}
	return stored, true
}

func (h *Handle) queryFailed(query *Query, err error) {
	h.logger.Error("query failed",
		zap.String("db", h.key),
		zap.String("query", query.Debug()),
		zap.Error(err))
}
