// Package pebbledb is an embedded database provider backed by Pebble.
// Entities are stored as JSON documents under "<collection>/<id>".
package pebbledb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/DimaCrafter/photonyx/core/db"
)

const modelsPrefix = "_models/"

// Provider opens Pebble stores. Options: "path" (directory) and "in_memory".
type Provider struct{}

func (Provider) Connect(_ context.Context, options *structpb.Struct) (db.Connection, error) {
	opts := &pebble.Options{}
	path := db.Option(options, "path", "data")

	if db.BoolOption(options, "in_memory", false) {
		opts.FS = vfs.NewMem()
	} else if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	return Open(path, opts)
}

// Conn is one open Pebble store.
type Conn struct {
	db *pebble.DB
}

// Open opens the store at path with opts.
func Open(path string, opts *pebble.Options) (*Conn, error) {
	store, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	return &Conn{db: store}, nil
}

func (c *Conn) PrepareModel(_ context.Context, model *db.Model) error {
	meta, err := json.Marshal(model)
	if err != nil {
		return err
	}
	return c.db.Set([]byte(modelsPrefix+model.Name), meta, pebble.Sync)
}

func (c *Conn) NewQuery(model *db.Model) *db.Query {
	return db.NewQuery(model.Name)
}

func (c *Conn) ExecFirst(ctx context.Context, model *db.Model, query *db.Query) (db.Entity, error) {
	var found db.Entity
	err := c.scan(ctx, query, func(entity db.Entity) bool {
		found = entity
		return false
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, db.ErrNotFound
	}
	return found, nil
}

func (c *Conn) ExecAll(ctx context.Context, model *db.Model, query *db.Query) ([]db.Entity, error) {
	entities := []db.Entity{}
	err := c.scan(ctx, query, func(entity db.Entity) bool {
		entities = append(entities, entity)
		return query.MaxResults() == 0 || len(entities) < query.MaxResults()
	})
	if err != nil {
		return nil, err
	}
	return entities, nil
}

func (c *Conn) Insert(_ context.Context, model *db.Model, entity db.Entity) (db.Entity, error) {
	stored := entity.Clone()
	id := stored.EnsureID()

	value, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encode entity: %w", err)
	}
	if err := c.db.Set(entityKey(model.Name, id), value, pebble.Sync); err != nil {
		return nil, err
	}
	return stored, nil
}

// Get reads one entity by id.
func (c *Conn) Get(collection, id string) (db.Entity, error) {
	value, closer, err := c.db.Get(entityKey(collection, id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()

	var entity db.Entity
	if err := json.Unmarshal(value, &entity); err != nil {
		return nil, err
	}
	return entity, nil
}

func (c *Conn) Close(context.Context) error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// scan walks the collection in key order, calling fn with every projected
// match until fn returns false.
func (c *Conn) scan(ctx context.Context, query *db.Query, fn func(db.Entity) bool) error {
	prefix := collectionPrefix(query.Collection)
	it, err := c.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return err
	}
	defer it.Close()

	for ok := it.First(); ok; ok = it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !bytes.HasPrefix(it.Key(), prefix) {
			break
		}

		var entity db.Entity
		if err := json.Unmarshal(it.Value(), &entity); err != nil {
			return fmt.Errorf("decode %s: %w", it.Key(), err)
		}
		if !query.Matches(entity) {
			continue
		}
		if !fn(query.Project(entity)) {
			break
		}
	}
	return it.Error()
}

func collectionPrefix(collection string) []byte {
	return []byte(collection + "/")
}

func entityKey(collection, id string) []byte {
	return append(collectionPrefix(collection), id...)
}

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
