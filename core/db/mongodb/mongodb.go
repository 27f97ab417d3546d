// Package mongodb is a database provider backed by MongoDB.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/DimaCrafter/photonyx/core/db"
)

const modelsCollection = "_models"

// Provider connects to MongoDB. Options: "uri", "database" and "timeout"
// (seconds).
type Provider struct{}

func (Provider) Connect(ctx context.Context, opts *structpb.Struct) (db.Connection, error) {
	uri := db.Option(opts, "uri", "mongodb://localhost:27017")
	database := db.Option(opts, "database", "photonyx")
	timeout := time.Duration(db.NumberOption(opts, "timeout", 10)) * time.Second

	clientOptions := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(timeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Conn{client: client, database: client.Database(database)}, nil
}

// Conn is a MongoDB connection. The driver client is safe for concurrent use.
type Conn struct {
	client   *mongo.Client
	database *mongo.Database
}

func (c *Conn) PrepareModel(ctx context.Context, model *db.Model) error {
	_, err := c.database.Collection(modelsCollection).ReplaceOne(ctx,
		bson.M{"_id": model.Name},
		bson.M{"_id": model.Name, "origin": model.Origin, "fields": model.Fields},
		options.Replace().SetUpsert(true),
	)
	return err
}

func (c *Conn) NewQuery(model *db.Model) *db.Query {
	return db.NewQuery(model.Name)
}

func (c *Conn) ExecFirst(ctx context.Context, model *db.Model, query *db.Query) (db.Entity, error) {
	opts := options.FindOne()
	if projection := projectionOf(query); projection != nil {
		opts.SetProjection(projection)
	}

	var doc bson.M
	err := c.database.Collection(query.Collection).FindOne(ctx, filterOf(query), opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}
	return toEntity(doc), nil
}

func (c *Conn) ExecAll(ctx context.Context, model *db.Model, query *db.Query) ([]db.Entity, error) {
	opts := options.Find()
	if projection := projectionOf(query); projection != nil {
		opts.SetProjection(projection)
	}
	if query.MaxResults() > 0 {
		opts.SetLimit(int64(query.MaxResults()))
	}

	cursor, err := c.database.Collection(query.Collection).Find(ctx, filterOf(query), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	entities := []db.Entity{}
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		entities = append(entities, toEntity(doc))
	}
	return entities, cursor.Err()
}

func (c *Conn) Insert(ctx context.Context, model *db.Model, entity db.Entity) (db.Entity, error) {
	stored := entity.Clone()
	stored.EnsureID()

	if _, err := c.database.Collection(model.Name).InsertOne(ctx, bson.M(stored)); err != nil {
		return nil, err
	}
	return stored, nil
}

// Drop removes the whole database.
func (c *Conn) Drop(ctx context.Context) error {
	return c.database.Drop(ctx)
}

func (c *Conn) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

func filterOf(query *db.Query) bson.M {
	filter := bson.M{}
	for key, value := range query.Conditions() {
		filter[key] = value
	}
	return filter
}

func projectionOf(query *db.Query) bson.D {
	fields := query.Fields()
	if len(fields) == 0 {
		return nil
	}

	projection := make(bson.D, 0, len(fields))
	for _, field := range fields {
		projection = append(projection, bson.E{Key: field, Value: 1})
	}
	return projection
}

func toEntity(doc bson.M) db.Entity {
	entity := make(db.Entity, len(doc))
	for key, value := range doc {
		entity[key] = normalize(value)
	}
	return entity
}

// normalize converts driver container types into the plain JSON shapes the
// rest of the server works with.
func normalize(value any) any {
	switch v := value.(type) {
	case bson.M:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = normalize(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(v))
		for _, item := range v {
			out[item.Key] = normalize(item.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalize(item)
		}
		return out
	case primitive.ObjectID:
		return v.Hex()
	case primitive.DateTime:
		return v.Time().UTC().Format(time.RFC3339Nano)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return v
	}
}
